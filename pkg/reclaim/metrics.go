package reclaim

import (
	"context"
	"time"

	"github.com/code-payments/reclaim-server/pkg/metrics"
)

const (
	batchSubmittedEventName   = "ReclaimBatchSubmitted"
	batchFailedEventName      = "ReclaimBatchFailed"
	sessionCompletedEventName = "ReclaimSessionCompleted"

	skippedAccountsMetricName = "Reclaim/skipped_accounts"
)

func recordBatchSubmittedEvent(ctx context.Context, sessionId string, batch *Batch, result *SubmitResult, latency time.Duration) {
	metrics.RecordEvent(ctx, batchSubmittedEventName, map[string]interface{}{
		"session":        sessionId,
		"signature":      result.Signature.String(),
		"slot":           result.Slot,
		"mode":           batch.Settlement().Mode.String(),
		"size":           batch.Len(),
		"closed":         batch.ClosedCount(),
		"converted_only": batch.ConvertedOnlyCount(),
		"value":          batch.Value(),
		"transferred":    batch.TransferAmount(),
		"latency_ms":     int(latency / time.Millisecond),
	})
}

func recordBatchFailedEvent(ctx context.Context, sessionId string, batch *Batch, err error, action attemptAction) {
	kind := "unknown"
	if k := Kind(err); k != nil {
		kind = k.Error()
	}

	metrics.RecordEvent(ctx, batchFailedEventName, map[string]interface{}{
		"session": sessionId,
		"size":    batch.Len(),
		"kind":    kind,
		"action":  action.String(),
	})
}

func recordSessionCompletedEvent(ctx context.Context, result *SessionResult, latency time.Duration) {
	metrics.RecordEvent(ctx, sessionCompletedEventName, map[string]interface{}{
		"session":              result.Id.String(),
		"mode":                 result.Mode.String(),
		"status":               result.Status.String(),
		"closed":               result.ClosedCount,
		"converted_not_closed": result.ConvertedNotClosedCount,
		"skipped":              len(result.Skipped),
		"batches":              len(result.Signatures),
		"reclaimed":            result.ReclaimedLamports,
		"transferred":          result.TransferredLamports,
		"latency_ms":           int(latency / time.Millisecond),
	})

	if len(result.Skipped) > 0 {
		metrics.RecordCount(ctx, skippedAccountsMetricName, uint64(len(result.Skipped)))
	}
}
