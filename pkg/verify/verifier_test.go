package verify

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
	credit_memory "github.com/code-payments/reclaim-server/pkg/data/credit/memory"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/solana"
	compute_budget "github.com/code-payments/reclaim-server/pkg/solana/computebudget"
	"github.com/code-payments/reclaim-server/pkg/solana/system"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

const testNetworkFee = 15_000

type testEnv struct {
	ctx         context.Context
	source      *fakeSource
	credits     credit.Store
	owner       ed25519.PublicKey
	destination ed25519.PublicKey
	verifier    *Verifier
}

func setup(t *testing.T, overrides *testOverrides) *testEnv {
	if overrides == nil {
		overrides = &testOverrides{}
	}

	env := &testEnv{
		ctx:         context.Background(),
		source:      &fakeSource{transactions: make(map[solana.Signature]solana.ConfirmedTransaction)},
		credits:     credit_memory.New(),
		owner:       mustGenerateKey(t),
		destination: mustGenerateKey(t),
	}
	env.verifier = NewVerifier(env.source, env.credits, env.destination, withManualTestOverrides(overrides))
	return env
}

// addReclaimTransaction stores a confirmed transaction closing the given
// number of accounts, with reclaimed value converted on top of their rent
func (e *testEnv) addReclaimTransaction(t *testing.T, closed int, converted, transferred uint64) solana.Signature {
	ixns := []solana.Instruction{
		compute_budget.SetComputeUnitLimit(200_000),
	}
	for i := 0; i < closed; i++ {
		ixns = append(ixns, token.CloseAccount(token.ProgramKey, mustGenerateKey(t), e.owner, e.owner))
	}
	if transferred > 0 {
		ixns = append(ixns, system.Transfer(e.owner, e.destination, transferred))
	}

	value := uint64(closed)*reclaim.RentExemptLamports + converted
	pre := uint64(10_000_000)
	return e.addTransaction(t, ixns, &solana.TransactionMeta{
		Fee:          testNetworkFee,
		PreBalances:  []uint64{pre},
		PostBalances: []uint64{pre + value - transferred - testNetworkFee},
	})
}

func (e *testEnv) addTransaction(t *testing.T, ixns []solana.Instruction, meta *solana.TransactionMeta) solana.Signature {
	txn := solana.NewTransaction(e.owner, ixns...)

	var sig solana.Signature
	_, err := rand.Read(sig[:])
	require.NoError(t, err)
	txn.Signatures[0] = sig

	blockTime := time.Now().Add(-time.Minute)
	e.source.add(sig, solana.ConfirmedTransaction{
		Slot:        42,
		BlockTime:   &blockTime,
		Transaction: txn,
		Meta:        meta,
	})
	return sig
}

func TestVerifyAndCredit_Wager(t *testing.T) {
	env := setup(t, nil)

	value := 3*uint64(reclaim.RentExemptLamports) + 1_000_000
	sig := env.addReclaimTransaction(t, 3, 1_000_000, value)

	req := &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig}
	record, err := env.verifier.VerifyAndCredit(env.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, sig.String(), record.Signature)
	assert.Equal(t, base58.Encode(env.owner), record.Owner)
	assert.Equal(t, base58.Encode(env.destination), record.Destination)
	assert.EqualValues(t, 3, record.ClosedAccounts)
	assert.Equal(t, value, record.TransferredLamports)
	assert.Equal(t, value, record.CreditedLamports)
	assert.EqualValues(t, 42, record.Slot)

	// Crediting again is a no-op
	again, err := env.verifier.VerifyAndCredit(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, record.Id, again.Id)

	total, err := env.credits.GetTotalCreditedByOwner(env.ctx, base58.Encode(env.owner))
	require.NoError(t, err)
	assert.Equal(t, value, total)

	// The same signature can't be claimed by someone else
	_, err = env.verifier.VerifyAndCredit(env.ctx, &Request{Owner: mustGenerateKey(t), Mode: reclaim.ModeWager, Signature: sig})
	assert.Equal(t, credit.ErrCreditExists, err)
}

func TestVerifyAndCredit_Direct(t *testing.T) {
	env := setup(t, nil)

	value := 2 * uint64(reclaim.RentExemptLamports)
	fee := value * reclaim.FeeNumerator / reclaim.FeeDenominator
	sig := env.addReclaimTransaction(t, 2, 0, fee)

	record, err := env.verifier.VerifyAndCredit(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	require.NoError(t, err)
	assert.EqualValues(t, 2, record.ClosedAccounts)
	assert.Equal(t, fee, record.TransferredLamports)
	assert.Zero(t, record.CreditedLamports)
}

func TestVerify_ValueFromBalances(t *testing.T) {
	env := setup(t, nil)

	converted := uint64(50_000_000)
	value := uint64(reclaim.RentExemptLamports) + converted
	fee := value * reclaim.FeeNumerator / reclaim.FeeDenominator
	sig := env.addReclaimTransaction(t, 1, converted, fee)

	verification, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	require.NoError(t, err)
	assert.Equal(t, value, verification.ReclaimedLamports)
	assert.Equal(t, fee, verification.RequiredLamports)
	assert.Equal(t, fee, verification.TransferredLamports)

	// Paying only the rent based fee doesn't cover the converted value
	sig = env.addReclaimTransaction(t, 1, converted, uint64(reclaim.RentExemptLamports)*reclaim.FeeNumerator/reclaim.FeeDenominator)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.True(t, errors.Is(err, ErrInsufficientTransfer))
}

func TestVerify_MissingMetaUsesRent(t *testing.T) {
	env := setup(t, nil)

	fee := 4 * uint64(reclaim.RentExemptLamports) * reclaim.FeeNumerator / reclaim.FeeDenominator
	ixns := []solana.Instruction{system.Transfer(env.owner, env.destination, fee)}
	for i := 0; i < 4; i++ {
		ixns = append(ixns, token.CloseAccount(token.ProgramKey, mustGenerateKey(t), env.owner, env.owner))
	}
	sig := env.addTransaction(t, ixns, nil)

	verification, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	require.NoError(t, err)
	assert.EqualValues(t, 4, verification.ClosedAccounts)
	assert.EqualValues(t, 4*reclaim.RentExemptLamports, verification.ReclaimedLamports)
}

func TestVerify_TransferTolerance(t *testing.T) {
	env := setup(t, nil)

	value := uint64(reclaim.RentExemptLamports) + 100_000_000
	required := value * reclaim.FeeNumerator / reclaim.FeeDenominator

	// Within the tolerance of a conversion settling above its quote
	sig := env.addReclaimTransaction(t, 1, 100_000_000, required*99/100)
	_, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	require.NoError(t, err)

	sig = env.addReclaimTransaction(t, 1, 100_000_000, required*90/100)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.True(t, errors.Is(err, ErrInsufficientTransfer))

	env = setup(t, &testOverrides{disableMinimumFee: true})
	sig = env.addReclaimTransaction(t, 1, 100_000_000, 0)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.NoError(t, err)
}

func TestVerify_FeeSignature(t *testing.T) {
	env := setup(t, nil)

	value := 5 * uint64(reclaim.RentExemptLamports)
	fee := value * reclaim.FeeNumerator / reclaim.FeeDenominator

	sig := env.addReclaimTransaction(t, 5, 0, 0)
	feeSig := env.addTransaction(t, []solana.Instruction{system.Transfer(env.owner, env.destination, fee)}, nil)

	_, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.True(t, errors.Is(err, ErrInsufficientTransfer))

	req := &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig, FeeSignature: &feeSig}
	record, err := env.verifier.VerifyAndCredit(env.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, fee, record.TransferredLamports)
	assert.Equal(t, feeSig.String(), record.FeeSignature)

	// A fee transaction can only be used once
	other := env.addReclaimTransaction(t, 5, 0, 0)
	_, err = env.verifier.VerifyAndCredit(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: other, FeeSignature: &feeSig})
	assert.Equal(t, credit.ErrCreditExists, err)
}

func TestVerifyAndCredit_ConvertOnlyWager(t *testing.T) {
	env := setup(t, nil)

	sig := env.addReclaimTransaction(t, 0, 3_000_000, 3_000_000)

	record, err := env.verifier.VerifyAndCredit(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	require.NoError(t, err)
	assert.Zero(t, record.ClosedAccounts)
	assert.EqualValues(t, 3_000_000, record.TransferredLamports)
	assert.EqualValues(t, 3_000_000, record.CreditedLamports)

	verification, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	require.NoError(t, err)
	assert.EqualValues(t, 3_000_000, verification.ReclaimedLamports)
	assert.EqualValues(t, 3_000_000, verification.RequiredLamports)

	// A conversion whose value never reached the destination isn't credited
	sig = env.addReclaimTransaction(t, 0, 3_000_000, 0)
	_, err = env.verifier.VerifyAndCredit(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	assert.Equal(t, ErrNotReclaimTransaction, err)
}

func TestVerify_Rejections(t *testing.T) {
	env := setup(t, nil)

	// Nothing closed or converted
	sig := env.addTransaction(t, []solana.Instruction{system.Transfer(env.owner, env.destination, 1_000)}, nil)
	_, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.Equal(t, ErrNotReclaimTransaction, err)

	// Accounts closed by someone else don't count
	other := mustGenerateKey(t)
	sig = env.addTransaction(t, []solana.Instruction{
		system.Transfer(env.owner, env.destination, 1_000_000),
		token.CloseAccount(token.ProgramKey, mustGenerateKey(t), other, other),
	}, nil)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeDirect, Signature: sig})
	assert.Equal(t, ErrNotReclaimTransaction, err)

	// Paid for by another wallet
	sig = env.addReclaimTransaction(t, 1, 0, reclaim.RentExemptLamports)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: other, Mode: reclaim.ModeWager, Signature: sig})
	assert.Equal(t, ErrOwnerMismatch, err)

	// Failed on chain
	sig = env.addReclaimTransaction(t, 1, 0, reclaim.RentExemptLamports)
	env.source.setError(sig, solana.NewTransactionError(solana.TransactionErrorAccountInUse))
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	assert.True(t, errors.Is(err, ErrTransactionFailed))

	// Wager mode requires the full value
	sig = env.addReclaimTransaction(t, 2, 0, reclaim.RentExemptLamports)
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	assert.True(t, errors.Is(err, ErrInsufficientTransfer))

	// Unknown
	_, err = env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: solana.Signature{1}})
	assert.Equal(t, ErrTransactionNotFound, err)
	assert.Equal(t, 3, env.source.getCalls(solana.Signature{1}))

	total, err := env.credits.GetTotalCreditedByOwner(env.ctx, base58.Encode(env.owner))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestVerify_TooOld(t *testing.T) {
	env := setup(t, &testOverrides{maxTransactionAge: time.Second})

	sig := env.addReclaimTransaction(t, 1, 0, reclaim.RentExemptLamports)
	_, err := env.verifier.Verify(env.ctx, &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig})
	assert.Equal(t, ErrTransactionTooOld, err)
}

type fakeSource struct {
	mu           sync.Mutex
	transactions map[solana.Signature]solana.ConfirmedTransaction
	calls        map[solana.Signature]int
}

func (s *fakeSource) add(sig solana.Signature, txn solana.ConfirmedTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[sig] = txn
}

func (s *fakeSource) setError(sig solana.Signature, txErr *solana.TransactionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.transactions[sig]
	txn.Err = txErr
	s.transactions[sig] = txn
}

func (s *fakeSource) getCalls(sig solana.Signature) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[sig]
}

func (s *fakeSource) GetTransaction(sig solana.Signature, _ solana.Commitment) (solana.ConfirmedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calls == nil {
		s.calls = make(map[solana.Signature]int)
	}
	s.calls[sig]++

	txn, ok := s.transactions[sig]
	if !ok {
		return solana.ConfirmedTransaction{}, solana.ErrSignatureNotFound
	}
	return txn, nil
}

func mustGenerateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestVerifyAndCredit_Concurrent(t *testing.T) {
	env := setup(t, nil)

	value := uint64(reclaim.RentExemptLamports)
	sig := env.addReclaimTransaction(t, 1, 0, value)
	req := &Request{Owner: env.owner, Mode: reclaim.ModeWager, Signature: sig}

	var wg sync.WaitGroup
	ids := make([]uint64, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			record, err := env.verifier.VerifyAndCredit(env.ctx, req)
			if assert.NoError(t, err) {
				ids[i] = record.Id
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.EqualValues(t, 1, id)
	}

	total, err := env.credits.GetTotalCreditedByOwner(env.ctx, base58.Encode(env.owner))
	require.NoError(t, err)
	assert.Equal(t, value, total)
}
