package discovery

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/reclaim-server/pkg/cache"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

type testEnv struct {
	ctx    context.Context
	source *fakeSource
	tokens *TokenInfo
	finder *Finder
	owner  ed25519.PublicKey
}

func setup(t *testing.T, overrides *testOverrides) *testEnv {
	if overrides == nil {
		overrides = &testOverrides{}
	}
	configProvider := withManualTestOverrides(overrides)

	source := &fakeSource{
		byProgram: make(map[string][]solana.KeyedAccountInfo),
		mints:     make(map[string]solana.AccountInfo),
		mintReads: make(map[string]int),
	}
	tokens := NewTokenInfo(source, cache.NewMemoryStore(1024), configProvider)

	return &testEnv{
		ctx:    context.Background(),
		source: source,
		tokens: tokens,
		finder: NewFinder(source, tokens, configProvider),
		owner:  generateKey(t),
	}
}

func TestFindCandidates(t *testing.T) {
	env := setup(t, nil)

	mint := env.source.addMint(t, 6)
	emptyLegacy := env.source.addTokenAccount(t, token.ProgramKey, env.owner, generateKey(t), 0, token.AccountStateInitialized)
	valueLegacy := env.source.addTokenAccount(t, token.ProgramKey, env.owner, mint, 1_500_000, token.AccountStateInitialized)
	frozen := env.source.addTokenAccount(t, token.Program2022Key, env.owner, generateKey(t), 0, token.AccountStateFrozen)
	emptyNative := env.source.addTokenAccount(t, token.ProgramKey, env.owner, token.NativeMint, 0, token.AccountStateInitialized)
	env.source.addTokenAccount(t, token.ProgramKey, env.owner, token.NativeMint, 10, token.AccountStateInitialized)
	env.source.addTokenAccount(t, token.ProgramKey, generateKey(t), generateKey(t), 0, token.AccountStateInitialized)

	candidates, err := env.finder.FindCandidates(env.ctx, env.owner)
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	byAddress := make(map[string]int)
	for i, candidate := range candidates {
		byAddress[candidate.String()] = i
	}

	c := candidates[byAddress[base58.Encode(emptyLegacy)]]
	assert.True(t, c.IsEmpty())
	assert.EqualValues(t, token.ProgramKey, c.TokenProgram)

	c = candidates[byAddress[base58.Encode(valueLegacy)]]
	assert.EqualValues(t, 1_500_000, c.Amount)
	assert.EqualValues(t, 6, c.Decimals)
	assert.Equal(t, 1.5, c.UiAmount())
	assert.EqualValues(t, mint, c.Mint)

	c = candidates[byAddress[base58.Encode(frozen)]]
	assert.True(t, c.Frozen)
	assert.EqualValues(t, token.Program2022Key, c.TokenProgram)

	c = candidates[byAddress[base58.Encode(emptyNative)]]
	assert.EqualValues(t, 9, c.Decimals)
}

func TestFindCandidates_SourceError(t *testing.T) {
	env := setup(t, nil)
	env.source.err = errors.New("rpc unavailable")

	_, err := env.finder.FindCandidates(env.ctx, env.owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestFindCandidates_Timeout(t *testing.T) {
	env := setup(t, &testOverrides{timeout: 20 * time.Millisecond})
	env.source.delay = time.Second

	start := time.Now()
	_, err := env.finder.FindCandidates(env.ctx, env.owner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenInfo_GetDecimals(t *testing.T) {
	env := setup(t, nil)
	mint := env.source.addMint(t, 8)

	for i := 0; i < 3; i++ {
		decimals, err := env.tokens.GetDecimals(env.ctx, mint)
		require.NoError(t, err)
		assert.EqualValues(t, 8, decimals)
	}
	assert.Equal(t, 1, env.source.getMintReads(mint))

	_, err := env.tokens.GetDecimals(env.ctx, generateKey(t))
	assert.Error(t, err)

	notMint := generateKey(t)
	env.source.mints[base58.Encode(notMint)] = solana.AccountInfo{Owner: generateKey(t), Data: make([]byte, token.MintAccountSize)}
	_, err = env.tokens.GetDecimals(env.ctx, notMint)
	assert.True(t, errors.Is(err, ErrInvalidMint))

	uninitialized := generateKey(t)
	env.source.mints[base58.Encode(uninitialized)] = solana.AccountInfo{Owner: token.ProgramKey, Data: make([]byte, token.MintAccountSize)}
	_, err = env.tokens.GetDecimals(env.ctx, uninitialized)
	assert.True(t, errors.Is(err, ErrInvalidMint))
}

type fakeSource struct {
	sync.Mutex

	byProgram map[string][]solana.KeyedAccountInfo
	mints     map[string]solana.AccountInfo
	mintReads map[string]int

	err   error
	delay time.Duration
}

func (s *fakeSource) addMint(t *testing.T, decimals uint8) ed25519.PublicKey {
	mint := generateKey(t)
	m := token.Mint{
		Supply:        1_000_000_000,
		Decimals:      decimals,
		IsInitialized: true,
	}
	s.mints[base58.Encode(mint)] = solana.AccountInfo{
		Owner: token.ProgramKey,
		Data:  m.Marshal(),
	}
	return mint
}

func (s *fakeSource) addTokenAccount(t *testing.T, program, owner, mint ed25519.PublicKey, amount uint64, state token.AccountState) ed25519.PublicKey {
	address := generateKey(t)
	account := token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  state,
	}

	key := base58.Encode(program)
	s.byProgram[key] = append(s.byProgram[key], solana.KeyedAccountInfo{
		PublicKey: address,
		AccountInfo: solana.AccountInfo{
			Owner: program,
			Data:  account.Marshal(),
		},
	})
	return address
}

func (s *fakeSource) getMintReads(mint ed25519.PublicKey) int {
	s.Lock()
	defer s.Unlock()
	return s.mintReads[base58.Encode(mint)]
}

func (s *fakeSource) GetTokenAccountsByOwner(_, program ed25519.PublicKey) ([]solana.KeyedAccountInfo, error) {
	time.Sleep(s.delay)

	s.Lock()
	defer s.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return s.byProgram[base58.Encode(program)], nil
}

func (s *fakeSource) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	s.Lock()
	defer s.Unlock()

	key := base58.Encode(account)
	s.mintReads[key]++

	info, ok := s.mints[key]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}
