package verify

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/retry"
	"github.com/code-payments/reclaim-server/pkg/retry/backoff"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/solana/system"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
	sync_util "github.com/code-payments/reclaim-server/pkg/sync"
)

const (
	metricsStructName = "verify.verifier"
)

var (
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionFailed     = errors.New("transaction failed on chain")
	ErrTransactionTooOld     = errors.New("transaction is too old to credit")
	ErrOwnerMismatch         = errors.New("transaction was not paid for by the owner")
	ErrNotReclaimTransaction = errors.New("transaction does not reclaim any owner value")
	ErrInsufficientTransfer  = errors.New("transfer to destination is below the required amount")
)

// TransactionSource fetches confirmed transactions
type TransactionSource interface {
	GetTransaction(solana.Signature, solana.Commitment) (solana.ConfirmedTransaction, error)
}

// Request identifies a submitted reclaim transaction to verify. FeeSignature
// optionally names a second transaction carrying the destination transfer.
type Request struct {
	Owner        ed25519.PublicKey
	Mode         reclaim.Mode
	Signature    solana.Signature
	FeeSignature *solana.Signature
}

// Verification is what the chain says a reclaim transaction did, independent
// of what the submitting client reported
type Verification struct {
	Slot uint64

	ClosedAccounts uint64

	// ReclaimedLamports is derived from the owner's balance change when the
	// transaction metadata is available, and from the rent deposit of every
	// closed account otherwise.
	ReclaimedLamports   uint64
	TransferredLamports uint64
	RequiredLamports    uint64
}

// Verifier re-derives reclaim outcomes from on-chain data before crediting
type Verifier struct {
	log         *logrus.Entry
	conf        *conf
	source      TransactionSource
	credits     credit.Store
	destination ed25519.PublicKey
	ownerLocks  *sync_util.StripedLock
}

func NewVerifier(source TransactionSource, credits credit.Store, destination ed25519.PublicKey, configProvider ConfigProvider) *Verifier {
	return &Verifier{
		log:         logrus.StandardLogger().WithField("type", "verify/verifier"),
		conf:        configProvider(),
		source:      source,
		credits:     credits,
		destination: destination,
		ownerLocks:  sync_util.NewStripedLock(64),
	}
}

// VerifyAndCredit verifies a reclaim transaction and records a credit for it.
// Crediting is idempotent by signature: an already credited transaction
// returns its existing record.
func (v *Verifier) VerifyAndCredit(ctx context.Context, req *Request) (*credit.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "VerifyAndCredit")
	defer tracer.End()

	log := v.log.WithFields(logrus.Fields{
		"method":    "VerifyAndCredit",
		"owner":     base58.Encode(req.Owner),
		"signature": req.Signature.String(),
		"mode":      req.Mode.String(),
	})

	// A fee signature can be presented alongside different transactions, so
	// credits are serialized per owner rather than per signature
	ownerLock := v.ownerLocks.Get(req.Owner)
	ownerLock.Lock()
	defer ownerLock.Unlock()

	existing, err := v.getExistingCredit(ctx, req)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	} else if existing != nil {
		log.Debug("transaction already credited")
		return existing, nil
	}

	verification, err := v.Verify(ctx, req)
	if err != nil {
		log.WithError(err).Info("transaction failed verification")
		tracer.OnError(err)
		return nil, err
	}

	record := &credit.Record{
		Signature:           req.Signature.String(),
		Owner:               base58.Encode(req.Owner),
		Destination:         base58.Encode(v.destination),
		Mode:                req.Mode,
		ClosedAccounts:      verification.ClosedAccounts,
		TransferredLamports: verification.TransferredLamports,
		Slot:                verification.Slot,
	}
	if req.FeeSignature != nil {
		record.FeeSignature = req.FeeSignature.String()
	}
	if req.Mode == reclaim.ModeWager {
		record.CreditedLamports = verification.TransferredLamports
	}

	err = v.credits.Put(ctx, record)
	if err == credit.ErrCreditExists {
		// Lost a race with a concurrent credit for the same transaction
		existing, err = v.getExistingCredit(ctx, req)
		if err == nil && existing != nil {
			return existing, nil
		}
		err = credit.ErrCreditExists
	}
	if err != nil {
		log.WithError(err).Warn("failure saving credit")
		tracer.OnError(err)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"closed_accounts":      record.ClosedAccounts,
		"transferred_lamports": record.TransferredLamports,
		"credited_lamports":    record.CreditedLamports,
	}).Info("credited reclaim transaction")
	recordCreditIssuedEvent(ctx, record, verification)

	return record, nil
}

// Verify derives the outcome of a reclaim transaction from the chain and
// checks it against the mode's transfer requirement
func (v *Verifier) Verify(ctx context.Context, req *Request) (*Verification, error) {
	txn, err := v.getTransaction(ctx, req.Signature)
	if err != nil {
		return nil, err
	}
	if err := v.checkTransaction(ctx, req, txn); err != nil {
		return nil, err
	}

	verification := &Verification{
		Slot: txn.Slot,
	}

	closed := make(map[string]struct{})
	var transferredInMain uint64
	for i := range txn.Transaction.Message.Instructions {
		if closeIxn, err := token.DecompileCloseAccount(txn.Transaction.Message, i); err == nil {
			if bytes.Equal(closeIxn.Owner, req.Owner) {
				closed[string(closeIxn.Account)] = struct{}{}
			}
			continue
		}

		if transfer, err := system.DecompileTransfer(txn.Transaction.Message, i); err == nil {
			if bytes.Equal(transfer.From, req.Owner) && bytes.Equal(transfer.To, v.destination) {
				transferredInMain += transfer.Lamports
			}
		}
	}
	verification.ClosedAccounts = uint64(len(closed))
	verification.TransferredLamports = transferredInMain
	verification.ReclaimedLamports = reclaimedLamports(txn, verification.ClosedAccounts, transferredInMain)

	// Conversions that leave their accounts open close nothing, so they must
	// show value gained and routed to the destination instead
	if verification.ClosedAccounts == 0 && (transferredInMain == 0 || verification.ReclaimedLamports == 0) {
		return nil, ErrNotReclaimTransaction
	}

	if req.FeeSignature != nil {
		feeTxn, err := v.getTransaction(ctx, *req.FeeSignature)
		if err != nil {
			return nil, errors.Wrap(err, "error getting fee transaction")
		}
		if err := v.checkTransaction(ctx, req, feeTxn); err != nil {
			return nil, errors.Wrap(err, "invalid fee transaction")
		}

		for i := range feeTxn.Transaction.Message.Instructions {
			transfer, err := system.DecompileTransfer(feeTxn.Transaction.Message, i)
			if err != nil {
				continue
			}
			if bytes.Equal(transfer.From, req.Owner) && bytes.Equal(transfer.To, v.destination) {
				verification.TransferredLamports += transfer.Lamports
			}
		}
	}

	settlement := reclaim.Settlement{Mode: req.Mode, Destination: v.destination}
	verification.RequiredLamports = settlement.TransferAmount(verification.ReclaimedLamports)

	tolerance := verification.RequiredLamports * v.conf.transferToleranceBps.Get(ctx) / 10_000
	if v.conf.enforceMinimumFee.Get(ctx) && verification.TransferredLamports+tolerance < verification.RequiredLamports {
		return nil, errors.Wrapf(
			ErrInsufficientTransfer,
			"transferred %d lamports, require %d",
			verification.TransferredLamports,
			verification.RequiredLamports,
		)
	}

	return verification, nil
}

func (v *Verifier) checkTransaction(ctx context.Context, req *Request, txn *solana.ConfirmedTransaction) error {
	if txn.Err != nil {
		return errors.Wrap(ErrTransactionFailed, txn.Err.Error())
	}

	accounts := txn.Transaction.Message.Accounts
	if len(accounts) == 0 || !bytes.Equal(accounts[0], req.Owner) {
		return ErrOwnerMismatch
	}

	if txn.BlockTime != nil && time.Since(*txn.BlockTime) > v.conf.maxTransactionAge.Get(ctx) {
		return ErrTransactionTooOld
	}

	return nil
}

func (v *Verifier) getTransaction(ctx context.Context, sig solana.Signature) (*solana.ConfirmedTransaction, error) {
	var txn solana.ConfirmedTransaction

	// Recently confirmed transactions may not be visible on every node yet
	_, err := retry.RetryContext(
		ctx,
		func() error {
			var err error
			txn, err = v.source.GetTransaction(sig, solana.CommitmentConfirmed)
			return err
		},
		retry.RetriableErrors(solana.ErrSignatureNotFound),
		retry.Limit(uint(v.conf.notFoundRetries.Get(ctx))+1),
		retry.BackoffContext(ctx, backoff.Constant(v.conf.notFoundRetryDelay.Get(ctx)), time.Minute),
	)
	if err == solana.ErrSignatureNotFound {
		return nil, ErrTransactionNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting transaction")
	}
	return &txn, nil
}

func (v *Verifier) getExistingCredit(ctx context.Context, req *Request) (*credit.Record, error) {
	signatures := []string{req.Signature.String()}
	if req.FeeSignature != nil {
		signatures = append(signatures, req.FeeSignature.String())
	}

	for _, signature := range signatures {
		existing, err := v.credits.GetBySignature(ctx, signature)
		if err == credit.ErrCreditNotFound {
			continue
		} else if err != nil {
			return nil, errors.Wrap(err, "error getting existing credit")
		}

		if existing.Owner != base58.Encode(req.Owner) || existing.Signature != req.Signature.String() {
			return nil, credit.ErrCreditExists
		}
		return existing, nil
	}
	return nil, nil
}

// reclaimedLamports is the value the owner gained from the transaction before
// any transfer to the destination. The fee payer's balance delta is used when
// available, with the network fee and transfers added back.
func reclaimedLamports(txn *solana.ConfirmedTransaction, closedAccounts, transferred uint64) uint64 {
	lowerBound := closedAccounts * reclaim.RentExemptLamports

	meta := txn.Meta
	if meta == nil || len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
		return lowerBound
	}

	gained := int64(meta.PostBalances[0]) - int64(meta.PreBalances[0]) + int64(meta.Fee) + int64(transferred)
	if gained < int64(lowerBound) {
		return lowerBound
	}
	return uint64(gained)
}
