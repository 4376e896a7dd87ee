package reclaim

import (
	"github.com/pkg/errors"
)

type attemptAction uint8

const (
	actionRetrySame attemptAction = iota
	actionShrink
	actionSkip
	actionAbort
)

func (a attemptAction) String() string {
	switch a {
	case actionRetrySame:
		return "retry_same"
	case actionShrink:
		return "shrink"
	case actionSkip:
		return "skip"
	case actionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// batchShape separates batches of empty accounts from batches holding value,
// since their operations differ in size by an order of magnitude
type batchShape uint8

const (
	shapeEmpty batchShape = iota
	shapeValue
)

func candidateShape(candidate *CandidateAccount) batchShape {
	if candidate.IsEmpty() {
		return shapeEmpty
	}
	return shapeValue
}

// attemptPolicy decides how the orchestrator reacts to a failed batch
// submission. Transient failures are retried with the same batch a bounded
// number of times before they're treated as a rejection.
type attemptPolicy struct {
	maxTransientRetries int
	transientRetries    int

	// caps are the batch size limits learned from failures per shape, or zero
	// if none applies
	caps [2]int
}

func newAttemptPolicy(maxTransientRetries int) *attemptPolicy {
	return &attemptPolicy{
		maxTransientRetries: maxTransientRetries,
	}
}

// onFailure classifies err for a batch of batchSize operations and updates
// the policy state accordingly
func (p *attemptPolicy) onFailure(err error, shape batchShape, batchSize int) attemptAction {
	if IsSessionFatal(err) {
		return actionAbort
	}

	var sizeErr *SizeExceededError
	switch {
	case errors.As(err, &sizeErr):
		return p.shrink(shape, batchSize, sizeErr.RecommendedBatchSize)
	case errors.Is(err, ErrSizeExceeded):
		return p.shrink(shape, batchSize, 0)
	case errors.Is(err, ErrComputeBudgetExceeded), errors.Is(err, ErrConfirmationTimeout):
		if p.transientRetries < p.maxTransientRetries {
			p.transientRetries++
			return actionRetrySame
		}
	}

	// Rejections, and transient failures that exhausted their retries
	return p.shrink(shape, batchSize, 0)
}

// onSuccess resets per batch retry state. Learned size caps persist.
func (p *attemptPolicy) onSuccess() {
	p.transientRetries = 0
}

func (p *attemptPolicy) shrink(shape batchShape, batchSize, recommended int) attemptAction {
	p.transientRetries = 0

	if batchSize <= 1 {
		return actionSkip
	}

	next := recommended
	if next <= 0 || next >= batchSize {
		next = batchSize / 2
	}
	if next < 1 {
		next = 1
	}
	p.caps[shape] = next
	return actionShrink
}

// limit applies the cap learned for shape to a batch size
func (p *attemptPolicy) limit(shape batchShape, size int) int {
	if learned := p.caps[shape]; learned > 0 && learned < size {
		return learned
	}
	return size
}
