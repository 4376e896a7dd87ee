package reclaim

import (
	"crypto/ed25519"
	"math"

	"github.com/mr-tron/base58"

	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

// RentExemptLamports is the rent deposit recovered by closing a token account
const RentExemptLamports = 2_039_280

// CandidateAccount is a token account considered for reclamation
type CandidateAccount struct {
	Address      ed25519.PublicKey
	Mint         ed25519.PublicKey
	TokenProgram ed25519.PublicKey

	// Amount is the raw token balance in the mint's smallest unit
	Amount   uint64
	Decimals uint8

	// QuotedLamports is an optional, externally supplied value of the balance
	// in lamports. HasRoute qualifies it: a quote with no route means the
	// balance can't be converted.
	QuotedLamports *uint64
	HasRoute       bool

	// Frozen accounts can be neither burned nor closed, and are never planned
	Frozen bool

	planned OperationKind

	// origin is the caller's candidate when this is a session-local copy
	origin *CandidateAccount
}

// NewCandidateAccount returns a candidate from a parsed token account
func NewCandidateAccount(address ed25519.PublicKey, program ed25519.PublicKey, account *token.Account, decimals uint8) *CandidateAccount {
	return &CandidateAccount{
		Address:      address,
		Mint:         account.Mint,
		TokenProgram: program,
		Amount:       account.Amount,
		Decimals:     decimals,
		Frozen:       account.IsFrozen(),
	}
}

// UiAmount is the balance scaled by the mint's decimals
func (c *CandidateAccount) UiAmount() float64 {
	return float64(c.Amount) / math.Pow10(int(c.Decimals))
}

// IsEmpty returns whether the account holds no tokens
func (c *CandidateAccount) IsEmpty() bool {
	return c.Amount == 0
}

// Planned returns the operation the account was last planned for, if any
func (c *CandidateAccount) Planned() OperationKind {
	return c.planned
}

// refreshed returns a session-local copy of c with the given on-chain state.
// Only the planned operation is written back to c.
func (c *CandidateAccount) refreshed(amount uint64, frozen bool) *CandidateAccount {
	cloned := *c
	cloned.Amount = amount
	cloned.Frozen = frozen
	cloned.origin = c
	if c.origin != nil {
		cloned.origin = c.origin
	}
	return &cloned
}

func (c *CandidateAccount) setPlanned(kind OperationKind) {
	c.planned = kind
	if c.origin != nil {
		c.origin.planned = kind
	}
}

func (c *CandidateAccount) String() string {
	return base58.Encode(c.Address)
}
