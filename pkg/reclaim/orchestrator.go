package reclaim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"sort"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/solana"
	compute_budget "github.com/code-payments/reclaim-server/pkg/solana/computebudget"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

const (
	orchestratorMetricsStructName = "reclaim.orchestrator"

	// maxBatchSize bounds configured batch sizes. Far fewer operations fit
	// in a transaction.
	maxBatchSize = 256
)

// sentAttempt is a batch sent under sig whose outcome wasn't observed
type sentAttempt struct {
	sig   solana.Signature
	batch *Batch
}

func (a *sentAttempt) contains(addresses map[string]struct{}) bool {
	included := make(map[string]struct{}, a.batch.Len())
	for _, op := range a.batch.Operations() {
		included[op.Candidate.String()] = struct{}{}
	}
	for address := range addresses {
		if _, ok := included[address]; !ok {
			return false
		}
	}
	return true
}

// Orchestrator runs a reclamation session: it packs candidates into batches,
// submits them one at a time and adapts batch sizes to failures.
type Orchestrator struct {
	log       *logrus.Entry
	conf      *conf
	planner   *Planner
	submitter *Submitter
}

func NewOrchestrator(planner *Planner, submitter *Submitter, configProvider ConfigProvider) *Orchestrator {
	return &Orchestrator{
		log:       logrus.StandardLogger().WithField("type", "reclaim/orchestrator"),
		conf:      configProvider(),
		planner:   planner,
		submitter: submitter,
	}
}

// Run reclaims candidates owned by wallet, routing value per settlement.
//
// A result is always returned, including when the session ends early. The
// error is non-nil only if the session was aborted, either because the
// signer failed or ctx was done. Failures isolated to accounts are reported
// in the result's skipped list.
func (o *Orchestrator) Run(ctx context.Context, wallet Wallet, settlement Settlement, candidates []*CandidateAccount) (*SessionResult, error) {
	tracer := metrics.TraceMethodCall(ctx, orchestratorMetricsStructName, "Run")
	defer tracer.End()

	start := time.Now()
	agg := newResultAggregator(settlement.Mode)
	sessionId := agg.result.Id.String()

	log := o.log.WithFields(logrus.Fields{
		"session":     sessionId,
		"mode":        settlement.Mode.String(),
		"destination": base58.Encode(settlement.Destination),
		"candidates":  len(candidates),
	})

	queue := candidates
	var batch *Batch

	finish := func(err error) (*SessionResult, error) {
		unprocessed := len(queue)
		if batch != nil {
			unprocessed += batch.Len()
		}

		result := agg.finalize(unprocessed)
		recordSessionCompletedEvent(ctx, result, time.Since(start))

		log.WithFields(logrus.Fields{
			"status":  result.Status.String(),
			"closed":  result.ClosedCount,
			"skipped": len(result.Skipped),
		}).Info("session completed")

		if err != nil {
			tracer.OnError(err)
		}
		return result, err
	}

	if len(candidates) == 0 {
		return finish(nil)
	}
	if !wallet.IsConnected() {
		return finish(ErrSignerUnavailable)
	}

	queue = orderCandidates(o.refresh(wallet, candidates))

	framing := o.framing(ctx)
	policy := newAttemptPolicy(int(o.conf.maxTransientRetries.Get(ctx)))

	// Sent attempts of the current batch whose outcome was never observed
	var unresolved []*sentAttempt

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		if batch == nil {
			if len(queue) == 0 {
				break
			}

			var err error
			batch, queue, err = o.fill(ctx, wallet.PublicKey(), framing, settlement, queue, policy, agg)
			if err != nil {
				return finish(err)
			}
			if batch.Len() == 0 {
				batch = nil
				continue
			}
		}

		batchLog := log.WithField("batch_size", batch.Len())

		submitStart := time.Now()
		result, err := o.submitter.Submit(ctx, wallet, batch)
		if err == nil {
			batchLog.WithField("signature", result.Signature.String()).Info("batch confirmed")

			markPlanned(batch)
			agg.addBatch(result.Signature, batch)
			policy.onSuccess()
			recordBatchSubmittedEvent(ctx, sessionId, batch, result, time.Since(submitStart))

			batch = nil
			unresolved = nil
			if len(queue) > 0 {
				if err := o.pace(ctx); err != nil {
					return finish(err)
				}
			}
			continue
		}

		agg.addFailedAttempt()
		if sig, ok := unconfirmedSignature(err); ok {
			unresolved = append(unresolved, &sentAttempt{sig: sig, batch: batch})
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(ctxErr)
		}

		action := policy.onFailure(err, batch.shape(), batch.Len())
		recordBatchFailedEvent(ctx, sessionId, batch, err, action)
		batchLog.WithError(err).WithField("action", action.String()).Warn("batch submission failed")

		if action == actionAbort {
			return finish(err)
		}

		// A failure may be reported for a transaction that landed anyway, so
		// state is reconciled before trying again
		batch, queue, unresolved = o.reconcile(wallet, batch, queue, unresolved, agg)
		if batch.Len() == 0 {
			batch = nil
			unresolved = nil
			continue
		}

		switch action {
		case actionRetrySame:
		case actionShrink:
			size := policy.limit(batch.shape(), batch.Len())
			var requeued []*CandidateAccount
			for _, op := range batch.Operations()[size:] {
				requeued = append(requeued, op.Candidate)
			}
			queue = append(requeued, queue...)
			batch = batch.prefix(size)
		case actionSkip:
			for _, op := range batch.Operations() {
				agg.addSkipped(op.Candidate.Address, submissionReason(err))
			}
			batch = nil
			unresolved = nil
		}
	}

	return finish(nil)
}

// Estimate packs candidates into batches the way Run would, without
// refreshing or submitting anything. Accounts the planner skips are returned
// alongside the batches.
func (o *Orchestrator) Estimate(ctx context.Context, payer ed25519.PublicKey, settlement Settlement, candidates []*CandidateAccount) ([]*Batch, []SkippedAccount, error) {
	tracer := metrics.TraceMethodCall(ctx, orchestratorMetricsStructName, "Estimate")
	defer tracer.End()

	agg := newResultAggregator(settlement.Mode)
	queue := orderCandidates(append([]*CandidateAccount{}, candidates...))
	framing := o.framing(ctx)
	policy := newAttemptPolicy(0)

	var batches []*Batch
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			tracer.OnError(err)
			return batches, agg.result.Skipped, err
		}

		batch, rest, err := o.fill(ctx, payer, framing, settlement, queue, policy, agg)
		if err != nil {
			tracer.OnError(err)
			return batches, agg.result.Skipped, err
		}
		queue = rest

		if batch.Len() > 0 {
			batches = append(batches, batch)
		}
	}
	return batches, agg.result.Skipped, nil
}

// fill plans candidates from the front of queue into a new batch until the
// batch reaches its size limit or an operation no longer fits. Candidates
// not consumed are returned as the new queue.
func (o *Orchestrator) fill(
	ctx context.Context,
	payer ed25519.PublicKey,
	framing []solana.Instruction,
	settlement Settlement,
	queue []*CandidateAccount,
	policy *attemptPolicy,
	agg *resultAggregator,
) (*Batch, []*CandidateAccount, error) {
	batch := newBatch(payer, framing, settlement)

	for len(queue) > 0 {
		candidate := queue[0]
		if batch.Len() >= policy.limit(candidateShape(candidate), o.batchSizeFor(ctx, candidate)) {
			break
		}

		op, err := o.planner.Plan(ctx, candidate, batch)
		if err != nil {
			return batch, queue, err
		}

		if op.Kind == OperationSkip {
			o.log.WithError(op.Reason).WithField("account", candidate.String()).Debug("skipping account")
			agg.addSkipped(candidate.Address, op.Reason)
			queue = queue[1:]
			continue
		}

		if !batch.Fits(op.Instructions...) {
			if batch.Len() > 0 {
				break
			}

			// The operation doesn't fit on its own
			agg.addSkipped(candidate.Address, &SizeExceededError{
				Size: batch.SizeWith(op.Instructions...),
			})
			queue = queue[1:]
			continue
		}

		batch.add(op)
		queue = queue[1:]
	}

	return batch, queue, nil
}

func (o *Orchestrator) framing(ctx context.Context) []solana.Instruction {
	return compute_budget.Framing(
		uint32(o.conf.computeUnitLimit.Get(ctx)),
		o.conf.computeUnitPrice.Get(ctx),
	)
}

// batchSizeFor is the configured batch size for candidate, at least 1
func (o *Orchestrator) batchSizeFor(ctx context.Context, candidate *CandidateAccount) int {
	size := o.conf.valueBatchSize.Get(ctx)
	if candidate.IsEmpty() {
		size = o.conf.emptyBatchSize.Get(ctx)
	}
	if size < 1 {
		return 1
	}
	if size > maxBatchSize {
		return maxBatchSize
	}
	return int(size)
}

// refresh re-reads candidates from chain. Accounts that no longer exist are
// dropped. Balances and frozen state are taken from the latest data into
// session-local copies. If accounts can't be fetched, candidates are used as
// provided.
func (o *Orchestrator) refresh(wallet Wallet, candidates []*CandidateAccount) []*CandidateAccount {
	addresses := make([]ed25519.PublicKey, len(candidates))
	for i, candidate := range candidates {
		addresses[i] = candidate.Address
	}

	infos, err := wallet.Connection().GetMultipleAccounts(addresses, solana.CommitmentConfirmed)
	if err != nil || len(infos) != len(candidates) {
		o.log.WithError(err).Warn("failure refreshing candidates, using provided state")
		return append([]*CandidateAccount{}, candidates...)
	}

	refreshed := make([]*CandidateAccount, 0, len(candidates))
	for i, candidate := range candidates {
		info := infos[i]
		if info == nil {
			o.log.WithField("account", candidate.String()).Debug("account no longer exists")
			continue
		}

		var account token.Account
		if bytes.Equal(info.Owner, candidate.TokenProgram) && account.Unmarshal(info.Data) {
			refreshed = append(refreshed, candidate.refreshed(account.Amount, account.IsFrozen()))
			continue
		}
		refreshed = append(refreshed, candidate)
	}
	return refreshed
}

// reconcile drops operations on accounts that no longer exist from batch.
// If one of the unresolved attempts landed, its batch is recorded under its
// signature and its accounts are removed from both batch and queue. The
// inputs are returned as is if state can't be fetched.
func (o *Orchestrator) reconcile(
	wallet Wallet,
	batch *Batch,
	queue []*CandidateAccount,
	unresolved []*sentAttempt,
	agg *resultAggregator,
) (*Batch, []*CandidateAccount, []*sentAttempt) {
	conn := wallet.Connection()

	ops := batch.Operations()
	addresses := make([]ed25519.PublicKey, len(ops))
	for i, op := range ops {
		addresses[i] = op.Candidate.Address
	}

	infos, err := conn.GetMultipleAccounts(addresses, solana.CommitmentConfirmed)
	if err != nil || len(infos) != len(ops) {
		return batch, queue, unresolved
	}

	// Transactions are atomic, so an attempt that landed closed every account
	// of the batch it closes
	closed := make(map[string]struct{})
	allClosed := true
	for i, op := range ops {
		if infos[i] == nil {
			closed[op.Candidate.String()] = struct{}{}
		} else if op.Closes() {
			allClosed = false
		}
	}
	if len(closed) == 0 && len(unresolved) == 0 {
		return batch, queue, unresolved
	}

	landed := make(map[string]struct{})
	if attempt, confirmed := o.landedAttempt(conn, unresolved, closed, allClosed); attempt != nil {
		log := o.log.WithFields(logrus.Fields{
			"signature":  attempt.sig.String(),
			"batch_size": attempt.batch.Len(),
		})
		if confirmed {
			log.Info("failed attempt landed")
			agg.addBatch(attempt.sig, attempt.batch)
		} else {
			log.Warn("accounts closed by an unconfirmed transaction")
			agg.addUnconfirmedBatch(attempt.sig, attempt.batch)
		}

		markPlanned(attempt.batch)
		for _, op := range attempt.batch.Operations() {
			landed[op.Candidate.String()] = struct{}{}
		}
		unresolved = nil
	}

	reconciled := newBatch(batch.Payer(), batch.framing, batch.Settlement())
	for _, op := range ops {
		address := op.Candidate.String()
		if _, ok := landed[address]; ok {
			continue
		}
		if _, ok := closed[address]; ok {
			o.log.WithField("account", address).Warn("account closed outside of the session")
			continue
		}
		reconciled.add(op)
	}

	if len(landed) == 0 {
		return reconciled, queue, unresolved
	}

	remaining := make([]*CandidateAccount, 0, len(queue))
	for _, candidate := range queue {
		if _, ok := landed[candidate.String()]; !ok {
			remaining = append(remaining, candidate)
		}
	}
	return reconciled, remaining, unresolved
}

// landedAttempt returns the unresolved attempt that executed, if any, and
// whether its status confirms it. Without a status, the most recent attempt
// including every closed account is assumed to have landed, provided the
// batch's closes all happened.
func (o *Orchestrator) landedAttempt(conn Connection, unresolved []*sentAttempt, closed map[string]struct{}, allClosed bool) (*sentAttempt, bool) {
	if len(unresolved) == 0 {
		return nil, false
	}

	sigs := make([]solana.Signature, len(unresolved))
	for i, attempt := range unresolved {
		sigs[i] = attempt.sig
	}

	statuses, err := conn.GetSignatureStatuses(sigs)
	if err != nil {
		o.log.WithError(err).Warn("failure getting statuses of unresolved attempts")
	}
	for i, status := range statuses {
		if i < len(unresolved) && status != nil && status.ErrorResult == nil {
			return unresolved[i], true
		}
	}

	if len(closed) == 0 || !allClosed {
		return nil, false
	}
	for i := len(unresolved) - 1; i >= 0; i-- {
		if unresolved[i].contains(closed) {
			return unresolved[i], false
		}
	}
	return nil, false
}

func (o *Orchestrator) pace(ctx context.Context) error {
	delay := o.conf.batchPacingDelay.Get(ctx)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func markPlanned(batch *Batch) {
	for _, op := range batch.Operations() {
		op.Candidate.setPlanned(op.Kind)
	}
}

// orderCandidates puts empty accounts ahead of ones holding value, keeping
// the relative order otherwise
func orderCandidates(candidates []*CandidateAccount) []*CandidateAccount {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].IsEmpty() && !candidates[j].IsEmpty()
	})
	return candidates
}

// submissionReason is the classified kind of err, falling back to err itself
func submissionReason(err error) error {
	if kind := Kind(err); kind != nil {
		return kind
	}
	return err
}
