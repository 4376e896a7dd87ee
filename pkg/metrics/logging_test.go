package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestForwardedMessage(t *testing.T) {
	entry := logrus.NewEntry(logrus.StandardLogger())
	entry.Message = "batch submitted"
	assert.Equal(t, "batch submitted", forwardedMessage(entry))

	entry = entry.WithFields(logrus.Fields{
		"type":       "reclaim/submitter",
		"batch_size": 15,
	})
	entry.Message = "batch submitted"
	assert.Equal(t, `message="batch submitted", error=<nil>, data={"batch_size":15,"type":"reclaim/submitter"}`, forwardedMessage(entry))

	entry = entry.WithError(errors.New("blockhash not found"))
	entry.Message = "batch failed"
	assert.Equal(t, `message="batch failed", error="blockhash not found", data={"batch_size":15,"type":"reclaim/submitter"}`, forwardedMessage(entry))
}
