package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
)

func RunTests(t *testing.T, s credit.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s credit.Store){
		testRoundTrip,
		testFeeSignatureUniqueness,
		testTotalCreditedByOwner,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s credit.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.GetBySignature(ctx, "signature")
		assert.Equal(t, credit.ErrCreditNotFound, err)
		assert.Nil(t, actual)

		expected := &credit.Record{
			Signature:           "signature",
			FeeSignature:        "fee_signature",
			Owner:               "owner",
			Destination:         "destination",
			Mode:                reclaim.ModeWager,
			ClosedAccounts:      15,
			TransferredLamports: 15 * 2_039_280,
			CreditedLamports:    15 * 2_039_280,
			Slot:                12345,
			CreatedAt:           time.Now(),
		}
		cloned := expected.Clone()
		require.NoError(t, s.Put(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)

		assert.Equal(t, credit.ErrCreditExists, s.Put(ctx, expected))

		for _, signature := range []string{"signature", "fee_signature"} {
			actual, err = s.GetBySignature(ctx, signature)
			require.NoError(t, err)
			assertEquivalentRecords(t, &cloned, actual)
			assert.EqualValues(t, 1, actual.Id)
		}

		invalid := cloned.Clone()
		invalid.Signature = "other"
		invalid.CreditedLamports = invalid.TransferredLamports + 1
		assert.Error(t, s.Put(ctx, &invalid))
	})
}

func testFeeSignatureUniqueness(t *testing.T, s credit.Store) {
	t.Run("testFeeSignatureUniqueness", func(t *testing.T) {
		ctx := context.Background()

		first := &credit.Record{
			Signature:   "signature1",
			Owner:       "owner",
			Destination: "destination",
			Mode:        reclaim.ModeDirect,
		}
		require.NoError(t, s.Put(ctx, first))

		// A signature can't be credited again as another transaction's fee signature
		second := &credit.Record{
			Signature:    "signature2",
			FeeSignature: "signature1",
			Owner:        "owner",
			Destination:  "destination",
			Mode:         reclaim.ModeDirect,
		}
		assert.Equal(t, credit.ErrCreditExists, s.Put(ctx, second))

		second.FeeSignature = ""
		require.NoError(t, s.Put(ctx, second))

		actual, err := s.GetBySignature(ctx, "signature2")
		require.NoError(t, err)
		assert.Empty(t, actual.FeeSignature)
	})
}

func testTotalCreditedByOwner(t *testing.T, s credit.Store) {
	t.Run("testTotalCreditedByOwner", func(t *testing.T) {
		ctx := context.Background()

		total, err := s.GetTotalCreditedByOwner(ctx, "owner1")
		require.NoError(t, err)
		assert.Zero(t, total)

		for i, owner := range []string{"owner1", "owner2", "owner1"} {
			require.NoError(t, s.Put(ctx, &credit.Record{
				Signature:           owner + string(rune('a'+i)),
				Owner:               owner,
				Destination:         "destination",
				Mode:                reclaim.ModeWager,
				ClosedAccounts:      1,
				TransferredLamports: 1000,
				CreditedLamports:    uint64(100 * (i + 1)),
			}))
		}

		total, err = s.GetTotalCreditedByOwner(ctx, "owner1")
		require.NoError(t, err)
		assert.EqualValues(t, 400, total)

		total, err = s.GetTotalCreditedByOwner(ctx, "owner2")
		require.NoError(t, err)
		assert.EqualValues(t, 200, total)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *credit.Record) {
	assert.Equal(t, obj1.Signature, obj2.Signature)
	assert.Equal(t, obj1.FeeSignature, obj2.FeeSignature)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Destination, obj2.Destination)
	assert.Equal(t, obj1.Mode, obj2.Mode)
	assert.Equal(t, obj1.ClosedAccounts, obj2.ClosedAccounts)
	assert.Equal(t, obj1.TransferredLamports, obj2.TransferredLamports)
	assert.Equal(t, obj1.CreditedLamports, obj2.CreditedLamports)
	assert.Equal(t, obj1.Slot, obj2.Slot)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
}
