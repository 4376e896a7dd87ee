package reclaim

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/retry"
	"github.com/code-payments/reclaim-server/pkg/retry/backoff"
	"github.com/code-payments/reclaim-server/pkg/solana"
)

const submitMetricsStructName = "reclaim.submitter"

var (
	errPending            = errors.New("transaction not yet confirmed")
	errBlockHeightExpired = errors.New("blockhash expired before confirmation")
)

// SubmitResult is a batch transaction observed on chain without error
type SubmitResult struct {
	Signature solana.Signature
	Slot      uint64
}

// Submitter executes batches as single transactions and waits for them to
// resolve
type Submitter struct {
	log  *logrus.Entry
	conf *conf
}

func NewSubmitter(configProvider ConfigProvider) *Submitter {
	return &Submitter{
		log:  logrus.StandardLogger().WithField("type", "reclaim/submitter"),
		conf: configProvider(),
	}
}

// Submit signs, sends and confirms batch. Definite failures are returned as
// a *SubmissionError or *SizeExceededError and are never retried here.
// Signer failures are returned as is. A sent transaction that can't be
// observed fails with ErrConfirmationTimeout and its signature.
func (s *Submitter) Submit(ctx context.Context, wallet Wallet, batch *Batch) (*SubmitResult, error) {
	tracer := metrics.TraceMethodCall(ctx, submitMetricsStructName, "Submit")
	defer tracer.End()

	result, err := s.submit(ctx, wallet, batch)
	if err != nil {
		tracer.OnError(err)
	}
	return result, err
}

func (s *Submitter) submit(ctx context.Context, wallet Wallet, batch *Batch) (*SubmitResult, error) {
	log := s.log.WithField("batch_size", batch.Len())

	if !wallet.IsConnected() {
		return nil, ErrSignerUnavailable
	}
	conn := wallet.Connection()

	blockhash, lastValidBlockHeight, err := conn.GetLatestBlockhashAndHeight(solana.CommitmentConfirmed)
	if err != nil {
		return nil, newSubmissionError(ErrSubmissionRejected, errors.Wrap(err, "error getting latest blockhash"))
	}

	txn := solana.NewTransaction(batch.Payer(), batch.Instructions()...)
	txn.SetBlockhash(blockhash)

	if size := len(txn.Marshal()); size > solana.MaxTransactionSize {
		return nil, &SizeExceededError{
			Size:                 size,
			RecommendedBatchSize: batch.largestFittingPrefix(),
		}
	}

	sig, err := wallet.SignAndSendTransaction(ctx, &txn)
	if IsSessionFatal(err) {
		return nil, err
	} else if err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			return nil, classifyTransactionError(txErr)
		}
		var sizeErr *SizeExceededError
		if errors.As(err, &sizeErr) {
			return nil, sizeErr
		}
		if isOversizeRejection(err) {
			return nil, &SizeExceededError{RecommendedBatchSize: batch.largestFittingPrefix() - 1}
		}
		if sig == (solana.Signature{}) || errors.Is(err, solana.ErrTransactionRejected) {
			return nil, newSubmissionError(ErrSubmissionRejected, err)
		}

		// The transaction may still have been forwarded, so resolve it by
		// its signature like any unconfirmed transaction
		log.WithError(err).Warn("failure sending transaction, checking status")
	}

	log = log.WithField("signature", sig.String())
	log.Debug("transaction sent")

	status, err := s.awaitConfirmation(ctx, conn, sig, lastValidBlockHeight)
	switch {
	case err == nil:
	case errors.Is(err, errBlockHeightExpired), errors.Is(err, errPending), errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Info("confirmation unresolved, checking transaction status")

		status, err = s.checkStatus(ctx, conn, sig)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if status.ErrorResult != nil {
		return nil, classifyTransactionError(status.ErrorResult)
	}

	return &SubmitResult{
		Signature: sig,
		Slot:      status.Slot,
	}, nil
}

// awaitConfirmation polls the signature's status until it is confirmed,
// fails, the blockhash expires or the confirmation timeout elapses
func (s *Submitter) awaitConfirmation(ctx context.Context, conn Connection, sig solana.Signature, lastValidBlockHeight uint64) (*solana.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.conf.confirmationTimeout.Get(ctx))
	defer cancel()

	var confirmed *solana.SignatureStatus
	_, err := retry.RetryContext(
		ctx,
		func() error {
			statuses, err := conn.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				s.log.WithError(err).Debug("failure getting signature status")
				return errPending
			}

			if len(statuses) > 0 && statuses[0] != nil {
				status := statuses[0]
				if status.ErrorResult != nil || status.Confirmed() {
					confirmed = status
					return nil
				}
			}

			height, err := conn.GetBlockHeight(solana.CommitmentConfirmed)
			if err == nil && height > lastValidBlockHeight {
				return errBlockHeightExpired
			}
			return errPending
		},
		retry.RetriableErrors(errPending),
		retry.BackoffContext(ctx, backoff.Constant(s.conf.pollInterval.Get(ctx)), time.Minute),
	)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, errPending) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return confirmed, nil
}

// checkStatus queries the signature's status once after a short delay. A
// status without an error counts as success. Failures carry sig, since the
// transaction may still land.
func (s *Submitter) checkStatus(ctx context.Context, conn Connection, sig solana.Signature) (*solana.SignatureStatus, error) {
	select {
	case <-ctx.Done():
		return nil, newUnconfirmedError(sig, ctx.Err())
	case <-time.After(s.conf.statusCheckDelay.Get(ctx)):
	}

	statuses, err := conn.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, newUnconfirmedError(sig, errors.Wrap(err, "error getting signature status"))
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, newUnconfirmedError(sig, errors.Errorf("no status for %s", sig))
	}
	return statuses[0], nil
}

func classifyTransactionError(txErr *solana.TransactionError) *SubmissionError {
	if txErr.IsComputeBudgetExceeded() {
		return newSubmissionError(ErrComputeBudgetExceeded, txErr)
	}
	return newSubmissionError(ErrSubmissionRejected, txErr)
}

// isOversizeRejection detects the RPC node refusing a transaction above the
// packet size limit
func isOversizeRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "too large") && strings.Contains(msg, "1232")
}
