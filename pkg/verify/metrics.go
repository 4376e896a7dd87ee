package verify

import (
	"context"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
	"github.com/code-payments/reclaim-server/pkg/metrics"
)

const (
	creditIssuedEventName = "ReclaimCreditIssued"
)

func recordCreditIssuedEvent(ctx context.Context, record *credit.Record, verification *Verification) {
	metrics.RecordEvent(ctx, creditIssuedEventName, map[string]interface{}{
		"signature":            record.Signature,
		"owner":                record.Owner,
		"mode":                 record.Mode.String(),
		"closed_accounts":      record.ClosedAccounts,
		"reclaimed_lamports":   verification.ReclaimedLamports,
		"transferred_lamports": record.TransferredLamports,
		"credited_lamports":    record.CreditedLamports,
	})
}
