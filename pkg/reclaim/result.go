package reclaim

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/code-payments/reclaim-server/pkg/solana"
)

type Status uint8

const (
	StatusSuccess Status = iota
	StatusPartial
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// SkippedAccount is a candidate the session gave up on
type SkippedAccount struct {
	Address ed25519.PublicKey
	Reason  error
}

// SessionResult is the outcome of a reclamation session across all batches
type SessionResult struct {
	Id     uuid.UUID
	Mode   Mode
	Status Status

	ClosedCount             int
	ConvertedNotClosedCount int

	Signatures         []solana.Signature
	ProcessedAccounts  []ed25519.PublicKey
	ConvertedNotClosed []ed25519.PublicKey
	Skipped            []SkippedAccount

	// UnconfirmedSignatures are the subset of Signatures whose transactions
	// were never observed, but whose accounts were found closed afterwards
	UnconfirmedSignatures []solana.Signature

	// UnprocessedCount is the number of candidates left when the session was
	// aborted
	UnprocessedCount int

	// ReclaimedLamports is closed accounts × rent plus converted quotes
	ReclaimedLamports uint64

	// TransferredLamports is the sum of trailing transfers to the
	// destination. NetLamports is what the wallet keeps.
	TransferredLamports uint64
	NetLamports         uint64

	Message string
}

// ProcessedCount is the number of accounts closed or converted
func (r *SessionResult) ProcessedCount() int {
	return len(r.ProcessedAccounts)
}

// resultAggregator accumulates batch outcomes into a SessionResult
type resultAggregator struct {
	result         *SessionResult
	failedAttempts int
}

func newResultAggregator(mode Mode) *resultAggregator {
	return &resultAggregator{
		result: &SessionResult{
			Id:   uuid.New(),
			Mode: mode,
		},
	}
}

func (a *resultAggregator) addBatch(sig solana.Signature, batch *Batch) {
	r := a.result

	r.Signatures = append(r.Signatures, sig)
	for _, op := range batch.Operations() {
		r.ProcessedAccounts = append(r.ProcessedAccounts, op.Candidate.Address)
		if op.Kind == OperationConvertOnly {
			r.ConvertedNotClosed = append(r.ConvertedNotClosed, op.Candidate.Address)
		}
	}
	r.ClosedCount += batch.ClosedCount()
	r.ConvertedNotClosedCount += batch.ConvertedOnlyCount()

	value := batch.Value()
	transferred := batch.TransferAmount()
	r.ReclaimedLamports += value
	r.TransferredLamports += transferred
	r.NetLamports += value - transferred
}

// addUnconfirmedBatch records a batch assumed to have landed under sig. It
// counts like a confirmed batch but leaves the session partial.
func (a *resultAggregator) addUnconfirmedBatch(sig solana.Signature, batch *Batch) {
	a.addBatch(sig, batch)
	a.result.UnconfirmedSignatures = append(a.result.UnconfirmedSignatures, sig)
}

func (a *resultAggregator) addSkipped(address ed25519.PublicKey, reason error) {
	a.result.Skipped = append(a.result.Skipped, SkippedAccount{
		Address: address,
		Reason:  reason,
	})
}

func (a *resultAggregator) addFailedAttempt() {
	a.failedAttempts++
}

func (a *resultAggregator) finalize(unprocessed int) *SessionResult {
	r := a.result
	r.UnprocessedCount = unprocessed

	processed := r.ProcessedCount()
	incomplete := len(r.Skipped) > 0 || unprocessed > 0 || len(r.UnconfirmedSignatures) > 0
	switch {
	case processed > 0 && !incomplete:
		r.Status = StatusSuccess
	case processed > 0:
		r.Status = StatusPartial
	case incomplete || a.failedAttempts > 0:
		r.Status = StatusFailure
	default:
		r.Status = StatusSuccess
	}

	r.Message = a.message()
	return r
}

func (a *resultAggregator) message() string {
	r := a.result

	if r.ProcessedCount() == 0 && len(r.Skipped) == 0 && r.UnprocessedCount == 0 && a.failedAttempts == 0 {
		return "No accounts to reclaim."
	}

	var sb strings.Builder
	switch r.Status {
	case StatusFailure:
		sb.WriteString("No accounts could be reclaimed.")
	default:
		fmt.Fprintf(&sb, "Closed %d account(s), reclaiming %s SOL", r.ClosedCount, formatLamports(r.ReclaimedLamports))
		if r.Mode == ModeWager {
			fmt.Fprintf(&sb, ", all of which was transferred to your wagering balance.")
		} else {
			fmt.Fprintf(&sb, " (%s SOL after fees).", formatLamports(r.NetLamports))
		}
	}

	if r.ConvertedNotClosedCount > 0 {
		fmt.Fprintf(&sb, " %d account(s) were converted but left open, and can be closed in a later session.", r.ConvertedNotClosedCount)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, " %d account(s) were skipped.", len(r.Skipped))
	}
	if len(r.UnconfirmedSignatures) > 0 {
		fmt.Fprintf(&sb, " %d transaction(s) could not be confirmed and should be checked by signature.", len(r.UnconfirmedSignatures))
	}
	if r.UnprocessedCount > 0 {
		fmt.Fprintf(&sb, " %d account(s) were not processed.", r.UnprocessedCount)
	}
	return sb.String()
}

func formatLamports(lamports uint64) string {
	return fmt.Sprintf("%d.%09d", lamports/1_000_000_000, lamports%1_000_000_000)
}
