package token

import (
	"crypto/ed25519"

	"github.com/code-payments/reclaim-server/pkg/solana/binary"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Reference: https://github.com/solana-labs/solana-program-library/blob/8944f428fe693c3a4226bf766a79be9c75e8e520/token/program/src/state.rs#L214
const MultisigAccountSize = 355

// Token-2022 accounts with extensions carry an account type discriminator
// directly after the base layout.
const (
	accountTypeOffset  = AccountSize
	accountTypeAccount = 2
)

type Account struct {
	// The mint associated with this account
	Mint ed25519.PublicKey
	// The owner of this account.
	Owner ed25519.PublicKey
	// The amount of tokens this account holds.
	Amount uint64
	// If set, then the 'DelegatedAmount' represents the amount
	// authorized by the delegate.
	Delegate ed25519.PublicKey
	/// The account's state
	State AccountState
	// If set, this is a native token, and the value logs the rent-exempt reserve.
	IsNative *uint64
	// The amount delegated
	DelegatedAmount uint64
	// Optional authority to close the account.
	CloseAuthority ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	e := binary.NewEncoder(AccountSize)
	e.Key(a.Mint)
	e.Key(a.Owner)
	e.Uint64(a.Amount)
	e.OptionalKey(a.Delegate)
	e.Uint8(byte(a.State))
	e.OptionalUint64(a.IsNative)
	e.Uint64(a.DelegatedAmount)
	e.OptionalKey(a.CloseAuthority)
	return e.Bytes()
}

// Unmarshal decodes a token account. Token-2022 accounts carrying extensions
// are accepted, with only the base layout decoded.
func (a *Account) Unmarshal(b []byte) bool {
	switch {
	case len(b) == AccountSize:
	case len(b) > accountTypeOffset && len(b) != MultisigAccountSize && b[accountTypeOffset] == accountTypeAccount:
	default:
		return false
	}

	d := binary.NewDecoder(b)
	a.Mint = d.Key()
	a.Owner = d.Key()
	a.Amount = d.Uint64()
	a.Delegate = d.OptionalKey()
	a.State = AccountState(d.Uint8())
	a.IsNative = d.OptionalUint64()
	a.DelegatedAmount = d.Uint64()
	a.CloseAuthority = d.OptionalKey()
	return true
}

// IsFrozen returns whether the account state forbids burns and closes.
func (a *Account) IsFrozen() bool {
	return a.State == AccountStateFrozen
}
