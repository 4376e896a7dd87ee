package reclaim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/reclaim-server/pkg/jupiter"
	"github.com/code-payments/reclaim-server/pkg/solana"
	compute_budget "github.com/code-payments/reclaim-server/pkg/solana/computebudget"
	"github.com/code-payments/reclaim-server/pkg/solana/system"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

// testSwapProgram stands in for the aggregator's program. Executing one of its
// instructions drains the token account passed as its first account.
var testSwapProgram = mustGenerateKey()

type testEnv struct {
	ctx          context.Context
	chain        *fakeChain
	wallet       *fakeWallet
	settlement   Settlement
	quoter       *mockQuoter
	swaps        *mockSwapProvider
	planner      *Planner
	submitter    *Submitter
	orchestrator *Orchestrator
}

func setup(t *testing.T, overrides *testOverrides) *testEnv {
	if overrides == nil {
		overrides = &testOverrides{maxTransientRetries: defaultMaxTransientRetries}
	}
	configProvider := withManualTestOverrides(overrides)

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	chain := newFakeChain()
	quoter := &mockQuoter{}
	swaps := &mockSwapProvider{}
	planner := NewPlanner(quoter, swaps, configProvider)
	submitter := NewSubmitter(configProvider)

	return &testEnv{
		ctx:   context.Background(),
		chain: chain,
		wallet: &fakeWallet{
			chain: chain,
			key:   key,
		},
		settlement: Settlement{
			Mode:        ModeDirect,
			Destination: mustGenerateKey(),
		},
		quoter:       quoter,
		swaps:        swaps,
		planner:      planner,
		submitter:    submitter,
		orchestrator: NewOrchestrator(planner, submitter, configProvider),
	}
}

func (e *testEnv) payer() ed25519.PublicKey {
	return e.wallet.PublicKey()
}

func (e *testEnv) newDraft() *Batch {
	return newBatch(e.payer(), compute_budget.Framing(defaultComputeUnitLimit, defaultComputeUnitPrice), e.settlement)
}

// addEmptyAccounts creates n zero balance token accounts owned by the wallet
func (e *testEnv) addEmptyAccounts(t *testing.T, n int) []*CandidateAccount {
	var candidates []*CandidateAccount
	for i := 0; i < n; i++ {
		candidates = append(candidates, e.addAccount(t, mustGenerateKey(), mustGenerateKey(), 0, token.AccountStateInitialized))
	}
	return candidates
}

// addValueAccount creates the wallet's associated account for a new mint
func (e *testEnv) addValueAccount(t *testing.T, amount uint64) *CandidateAccount {
	mint := mustGenerateKey()
	address, err := token.GetAssociatedAccountForProgram(e.payer(), mint, token.ProgramKey)
	require.NoError(t, err)
	return e.addAccount(t, address, mint, amount, token.AccountStateInitialized)
}

func (e *testEnv) addAccount(t *testing.T, address, mint ed25519.PublicKey, amount uint64, state token.AccountState) *CandidateAccount {
	account := &token.Account{
		Mint:   mint,
		Owner:  e.payer(),
		Amount: amount,
		State:  state,
	}
	e.chain.setTokenAccount(address, account)

	candidate := NewCandidateAccount(address, token.ProgramKey, account, 6)
	require.Equal(t, amount, candidate.Amount)
	return candidate
}

// expectConversion sets up a route and swap instructions for candidate
func (e *testEnv) expectConversion(candidate *CandidateAccount, outAmount uint64, swap *jupiter.SwapInstructions) {
	e.quoter.On("GetQuote", mock.Anything, matchInputMint(candidate.Mint)).Return(&jupiter.Quote{
		InputMint:           base58.Encode(candidate.Mint),
		OutputMint:          base58.Encode(token.NativeMint),
		InAmount:            candidate.Amount,
		OutAmount:           outAmount,
		AsLegacyTransaction: true,
	}, nil).Once()

	e.swaps.On("GetSwapInstructions", mock.Anything, matchQuotedMint(candidate.Mint)).Return(swap, nil).Once()
}

func matchInputMint(mint ed25519.PublicKey) interface{} {
	return mock.MatchedBy(func(req *jupiter.QuoteRequest) bool {
		return req.InputMint == base58.Encode(mint)
	})
}

func matchQuotedMint(mint ed25519.PublicKey) interface{} {
	return mock.MatchedBy(func(req *jupiter.SwapInstructionsRequest) bool {
		return req.Quote != nil && req.Quote.InputMint == base58.Encode(mint)
	})
}

// newTestSwap returns swap instructions that drain candidate, with padding
// bytes of swap data to control the conversion's size
func newTestSwap(candidate *CandidateAccount, payer ed25519.PublicKey, padding int) *jupiter.SwapInstructions {
	return &jupiter.SwapInstructions{
		ComputeBudgetInstructions: compute_budget.Framing(200_000, 1),
		SetupInstructions: []solana.Instruction{
			compute_budget.SetComputeUnitLimit(300_000),
		},
		SwapInstruction: solana.NewInstruction(
			testSwapProgram,
			make([]byte, 8+padding),
			solana.NewAccountMeta(candidate.Address, false),
			solana.NewReadonlyAccountMeta(payer, true),
			solana.NewReadonlyAccountMeta(candidate.Mint, false),
		),
	}
}

// newConvertOnlySwap returns swap instructions for candidate that fit in an
// empty draft, but not alongside the account's close instruction
func newConvertOnlySwap(t *testing.T, draft *Batch, candidate *CandidateAccount) *jupiter.SwapInstructions {
	closeIxn := token.CloseAccount(candidate.TokenProgram, candidate.Address, draft.Payer(), draft.Payer())

	for padding := 0; padding < solana.MaxTransactionSize; padding++ {
		swap := newTestSwap(candidate, draft.Payer(), padding)
		if draft.Fits(swap.SwapInstruction) && !draft.Fits(swap.SwapInstruction, closeIxn) {
			return swap
		}
	}

	require.Fail(t, "no padding produces a convert only swap")
	return nil
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) GetQuote(ctx context.Context, req *jupiter.QuoteRequest) (*jupiter.Quote, error) {
	args := m.Called(ctx, req)
	quote, _ := args.Get(0).(*jupiter.Quote)
	return quote, args.Error(1)
}

type mockSwapProvider struct {
	mock.Mock
}

func (m *mockSwapProvider) GetSwapInstructions(ctx context.Context, req *jupiter.SwapInstructionsRequest) (*jupiter.SwapInstructions, error) {
	args := m.Called(ctx, req)
	swap, _ := args.Get(0).(*jupiter.SwapInstructions)
	return swap, args.Error(1)
}

type fakeWallet struct {
	chain *fakeChain
	key   ed25519.PrivateKey
}

func (w *fakeWallet) Connection() Connection {
	return w.chain
}

func (w *fakeWallet) PublicKey() ed25519.PublicKey {
	return w.key.Public().(ed25519.PublicKey)
}

func (w *fakeWallet) IsConnected() bool {
	return w.chain.isConnected()
}

func (w *fakeWallet) SignAndSendTransaction(_ context.Context, txn *solana.Transaction) (solana.Signature, error) {
	if err := txn.Sign(w.key); err != nil {
		return solana.Signature{}, errors.Wrap(ErrSignerRejected, err.Error())
	}
	return w.chain.send(*txn)
}

// fakeChain executes close, burn, transfer and test swap instructions against
// in memory accounts
type fakeChain struct {
	sync.Mutex

	connected   bool
	slot        uint64
	blockHeight uint64

	accounts    map[string]*solana.AccountInfo
	statuses    map[string]*solana.SignatureStatus
	transferred map[string]uint64

	submitted []solana.Transaction

	// sendErrors are returned by successive sends, with nil meaning the send
	// succeeds
	sendErrors []error

	// onChainErrors fail successive successfully sent transactions
	onChainErrors []*solana.TransactionError

	// hiddenStatusPolls is the number of status queries that report nothing
	// before statuses become visible
	hiddenStatusPolls int

	// landUnobserved applies sent transactions without ever reporting their
	// status
	landUnobserved bool

	// lateStatuses withholds the statuses of sent transactions until accounts
	// are next fetched
	lateStatuses bool
	withheld     map[string]*solana.SignatureStatus

	// signedSendErrors returns the transaction's signature along with send
	// errors, as the RPC client does
	signedSendErrors bool

	expireBlockhash bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		connected:   true,
		blockHeight: 1_000,
		accounts:    make(map[string]*solana.AccountInfo),
		statuses:    make(map[string]*solana.SignatureStatus),
		withheld:    make(map[string]*solana.SignatureStatus),
		transferred: make(map[string]uint64),
	}
}

func (c *fakeChain) isConnected() bool {
	c.Lock()
	defer c.Unlock()
	return c.connected
}

func (c *fakeChain) setTokenAccount(address ed25519.PublicKey, account *token.Account) {
	c.Lock()
	defer c.Unlock()

	c.accounts[base58.Encode(address)] = &solana.AccountInfo{
		Data:     account.Marshal(),
		Owner:    token.ProgramKey,
		Lamports: RentExemptLamports,
	}
}

func (c *fakeChain) exists(address ed25519.PublicKey) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.accounts[base58.Encode(address)]
	return ok
}

func (c *fakeChain) tokenBalance(t *testing.T, address ed25519.PublicKey) uint64 {
	c.Lock()
	defer c.Unlock()

	info, ok := c.accounts[base58.Encode(address)]
	require.True(t, ok)

	var account token.Account
	require.True(t, account.Unmarshal(info.Data))
	return account.Amount
}

func (c *fakeChain) transferredTo(address ed25519.PublicKey) uint64 {
	c.Lock()
	defer c.Unlock()
	return c.transferred[base58.Encode(address)]
}

func (c *fakeChain) getSubmitted() []solana.Transaction {
	c.Lock()
	defer c.Unlock()
	return append([]solana.Transaction{}, c.submitted...)
}

func (c *fakeChain) GetMultipleAccounts(addresses []ed25519.PublicKey, _ solana.Commitment) ([]*solana.AccountInfo, error) {
	c.Lock()
	defer c.Unlock()

	for sig, status := range c.withheld {
		c.statuses[sig] = status
		delete(c.withheld, sig)
	}

	infos := make([]*solana.AccountInfo, len(addresses))
	for i, address := range addresses {
		if info, ok := c.accounts[base58.Encode(address)]; ok {
			cloned := *info
			cloned.Data = append([]byte{}, info.Data...)
			infos[i] = &cloned
		}
	}
	return infos, nil
}

func (c *fakeChain) GetLatestBlockhashAndHeight(_ solana.Commitment) (solana.Blockhash, uint64, error) {
	c.Lock()
	defer c.Unlock()

	var blockhash solana.Blockhash
	blockhash[0] = byte(c.slot)
	return blockhash, c.blockHeight + 150, nil
}

func (c *fakeChain) GetBlockHeight(_ solana.Commitment) (uint64, error) {
	c.Lock()
	defer c.Unlock()

	if c.expireBlockhash {
		return c.blockHeight + 1_000, nil
	}
	return c.blockHeight, nil
}

func (c *fakeChain) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.Lock()
	defer c.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	if c.hiddenStatusPolls > 0 {
		c.hiddenStatusPolls--
		return statuses, nil
	}

	for i, sig := range sigs {
		statuses[i] = c.statuses[sig.String()]
	}
	return statuses, nil
}

func (c *fakeChain) send(txn solana.Transaction) (solana.Signature, error) {
	c.Lock()
	defer c.Unlock()

	c.submitted = append(c.submitted, txn)
	if len(c.sendErrors) > 0 {
		err := c.sendErrors[0]
		c.sendErrors = c.sendErrors[1:]
		if err != nil && c.signedSendErrors {
			return txn.Signatures[0], err
		}
		if err != nil {
			return solana.Signature{}, err
		}
	}

	c.slot++
	sig := txn.Signatures[0]

	var onChainErr *solana.TransactionError
	if len(c.onChainErrors) > 0 {
		onChainErr = c.onChainErrors[0]
		c.onChainErrors = c.onChainErrors[1:]
	}

	if onChainErr == nil {
		c.apply(txn.Message)
	}

	status := &solana.SignatureStatus{
		Slot:               c.slot,
		ErrorResult:        onChainErr,
		ConfirmationStatus: "confirmed",
	}
	switch {
	case c.landUnobserved:
	case c.lateStatuses:
		c.withheld[sig.String()] = status
	default:
		c.statuses[sig.String()] = status
	}
	return sig, nil
}

func (c *fakeChain) apply(m solana.Message) {
	for i, ixn := range m.Instructions {
		if closeIxn, err := token.DecompileCloseAccount(m, i); err == nil {
			delete(c.accounts, base58.Encode(closeIxn.Account))
			continue
		}
		if burn, err := token.DecompileBurn(m, i); err == nil {
			c.setBalance(burn.Account, 0)
			continue
		}
		if transfer, err := system.DecompileTransfer(m, i); err == nil {
			c.transferred[base58.Encode(transfer.To)] += transfer.Lamports
			continue
		}
		if bytes.Equal(m.Accounts[ixn.ProgramIndex], testSwapProgram) && len(ixn.Accounts) > 0 {
			c.setBalance(m.Accounts[ixn.Accounts[0]], 0)
		}
	}
}

func (c *fakeChain) setBalance(address ed25519.PublicKey, amount uint64) {
	info, ok := c.accounts[base58.Encode(address)]
	if !ok {
		return
	}

	var account token.Account
	if !account.Unmarshal(info.Data) {
		return
	}
	account.Amount = amount
	info.Data = account.Marshal()
}

// closedAccounts returns the accounts closed by txn
func closedAccounts(txn solana.Transaction) []string {
	var closed []string
	for i := range txn.Message.Instructions {
		if closeIxn, err := token.DecompileCloseAccount(txn.Message, i); err == nil {
			closed = append(closed, base58.Encode(closeIxn.Account))
		}
	}
	return closed
}

// referencesAccount returns whether any instruction of txn uses address
func referencesAccount(txn solana.Transaction, address ed25519.PublicKey) bool {
	for _, ixn := range txn.Message.Instructions {
		for _, index := range ixn.Accounts {
			if bytes.Equal(txn.Message.Accounts[index], address) {
				return true
			}
		}
	}
	return false
}

func newComputeBudgetExceededError(t *testing.T) *solana.TransactionError {
	txErr, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 2,
		Err:   errors.New(string(solana.InstructionErrorComputationalBudgetExceeded)),
	})
	require.NoError(t, err)
	return txErr
}

func mustGenerateKey() ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return pub
}
