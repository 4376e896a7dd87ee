package reclaim

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/solana/system"
)

// Platform fee taken from reclaimed value in direct mode, as a fraction
const (
	FeeNumerator   = 21
	FeeDenominator = 1000
)

// Mode decides where a batch's reclaimed value is routed
type Mode uint8

const (
	// ModeDirect leaves reclaimed value with the wallet, minus a platform fee
	// transferred to the destination
	ModeDirect Mode = iota

	// ModeWager transfers the full reclaimed value to the destination, where
	// it is credited as a wagering balance
	ModeWager
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeWager:
		return "wager"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode from its string form
func ParseMode(value string) (Mode, error) {
	switch value {
	case "direct":
		return ModeDirect, nil
	case "wager":
		return ModeWager, nil
	default:
		return ModeDirect, errors.Errorf("unknown mode: %q", value)
	}
}

// Settlement is where, and how much of, each batch's value is transferred
type Settlement struct {
	Mode        Mode
	Destination ed25519.PublicKey
}

// TransferAmount is the lamports routed to the destination for value
func (s Settlement) TransferAmount(value uint64) uint64 {
	if s.Mode == ModeWager {
		return value
	}
	return value * FeeNumerator / FeeDenominator
}

// Batch is a set of operations submitted as a single transaction, framed by
// compute budget instructions and exactly one trailing transfer.
type Batch struct {
	payer      ed25519.PublicKey
	framing    []solana.Instruction
	settlement Settlement
	operations []*PlannedOperation
}

func newBatch(payer ed25519.PublicKey, framing []solana.Instruction, settlement Settlement) *Batch {
	return &Batch{
		payer:      payer,
		framing:    framing,
		settlement: settlement,
	}
}

func (b *Batch) Payer() ed25519.PublicKey {
	return b.payer
}

func (b *Batch) Settlement() Settlement {
	return b.settlement
}

func (b *Batch) Operations() []*PlannedOperation {
	return b.operations
}

// shape is shapeValue if any operation's account holds tokens
func (b *Batch) shape() batchShape {
	for _, op := range b.operations {
		if candidateShape(op.Candidate) == shapeValue {
			return shapeValue
		}
	}
	return shapeEmpty
}

// Len is the number of operations in the batch
func (b *Batch) Len() int {
	return len(b.operations)
}

func (b *Batch) add(op *PlannedOperation) {
	b.operations = append(b.operations, op)
}

// Value is closed accounts × rent plus the sum of converted quotes
func (b *Batch) Value() uint64 {
	var value uint64
	for _, op := range b.operations {
		value += op.Value()
	}
	return value
}

// TransferAmount is the value of the trailing transfer
func (b *Batch) TransferAmount() uint64 {
	return b.settlement.TransferAmount(b.Value())
}

// ClosedCount is the number of accounts the batch closes
func (b *Batch) ClosedCount() int {
	var count int
	for _, op := range b.operations {
		if op.Closes() {
			count++
		}
	}
	return count
}

// ConvertedOnlyCount is the number of accounts converted but left open
func (b *Batch) ConvertedOnlyCount() int {
	var count int
	for _, op := range b.operations {
		if op.Kind == OperationConvertOnly {
			count++
		}
	}
	return count
}

// Instructions is the full instruction list of the batch transaction
func (b *Batch) Instructions() []solana.Instruction {
	return b.instructionsWith()
}

func (b *Batch) instructionsWith(extra ...solana.Instruction) []solana.Instruction {
	ixns := make([]solana.Instruction, 0, len(b.framing)+2*len(b.operations)+len(extra)+1)
	ixns = append(ixns, b.framing...)
	for _, op := range b.operations {
		ixns = append(ixns, op.Instructions...)
	}
	ixns = append(ixns, extra...)
	return append(ixns, system.Transfer(b.payer, b.settlement.Destination, b.TransferAmount()))
}

// Size is the exact serialized size of the batch transaction
func (b *Batch) Size() int {
	return solana.EstimateTransactionSize(b.payer, b.Instructions()...)
}

// SizeWith is the size of the batch transaction if extra were appended to it
func (b *Batch) SizeWith(extra ...solana.Instruction) int {
	return solana.EstimateTransactionSize(b.payer, b.instructionsWith(extra...)...)
}

// Fits returns whether extra can be appended without exceeding the
// transaction size limit
func (b *Batch) Fits(extra ...solana.Instruction) bool {
	return b.SizeWith(extra...) <= solana.MaxTransactionSize
}

// prefix returns a batch with only the first n operations
func (b *Batch) prefix(n int) *Batch {
	if n > len(b.operations) {
		n = len(b.operations)
	}
	return &Batch{
		payer:      b.payer,
		framing:    b.framing,
		settlement: b.settlement,
		operations: b.operations[:n],
	}
}

// largestFittingPrefix returns the largest number of leading operations that
// fit in a transaction, or zero if none do
func (b *Batch) largestFittingPrefix() int {
	for n := len(b.operations); n > 0; n-- {
		if b.prefix(n).Size() <= solana.MaxTransactionSize {
			return n
		}
	}
	return 0
}
