package reclaim

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/code-payments/reclaim-server/pkg/solana"
)

func TestKind(t *testing.T) {
	assert.Nil(t, Kind(nil))
	assert.Nil(t, Kind(errors.New("unclassified")))

	assert.Equal(t, ErrSizeExceeded, Kind(&SizeExceededError{Size: 1300}))
	assert.Equal(t, ErrConfirmationTimeout, Kind(newSubmissionError(ErrConfirmationTimeout, errors.New("no status"))))
	assert.Equal(t, ErrRouteNotFound, Kind(errors.Wrap(ErrRouteNotFound, "quote failed")))

	// A size rejection wrapped in a rejection is still a size failure
	assert.Equal(t, ErrSizeExceeded, Kind(newSubmissionError(ErrSubmissionRejected, &SizeExceededError{})))
}

func TestIsSessionFatal(t *testing.T) {
	assert.True(t, IsSessionFatal(ErrSignerRejected))
	assert.True(t, IsSessionFatal(errors.Wrap(ErrSignerUnavailable, "disconnected")))
	assert.False(t, IsSessionFatal(newSubmissionError(ErrSubmissionRejected, nil)))
	assert.False(t, IsSessionFatal(nil))
}

func TestSizeExceededError(t *testing.T) {
	err := &SizeExceededError{Size: 1300, RecommendedBatchSize: 7}
	assert.Equal(t, "reclaim: transaction size exceeded: 1300 bytes, recommended batch size 7", err.Error())
	assert.True(t, errors.Is(err, ErrSizeExceeded))

	err = &SizeExceededError{Size: 1300}
	assert.Equal(t, "reclaim: transaction size exceeded: 1300 bytes", err.Error())
}

func TestUnconfirmedSignature(t *testing.T) {
	sig := solana.Signature{9}

	actual, ok := unconfirmedSignature(errors.Wrap(newUnconfirmedError(sig, errors.New("no status")), "batch failed"))
	assert.True(t, ok)
	assert.Equal(t, sig, actual)

	_, ok = unconfirmedSignature(newSubmissionError(ErrSubmissionRejected, nil))
	assert.False(t, ok)

	_, ok = unconfirmedSignature(&SizeExceededError{})
	assert.False(t, ok)
}
