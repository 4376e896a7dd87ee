package token

import (
	"crypto/ed25519"

	"github.com/code-payments/reclaim-server/pkg/solana/binary"
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L13-L30
const MintAccountSize = 82

type Mint struct {
	// Optional authority used to mint new tokens
	MintAuthority ed25519.PublicKey
	// Total supply of tokens
	Supply uint64
	// Number of base 10 digits to the right of the decimal place
	Decimals uint8
	// Is this mint initialized
	IsInitialized bool
	// Optional authority to freeze token accounts
	FreezeAuthority ed25519.PublicKey
}

func (m *Mint) Marshal() []byte {
	e := binary.NewEncoder(MintAccountSize)
	e.OptionalKey(m.MintAuthority)
	e.Uint64(m.Supply)
	e.Uint8(m.Decimals)
	e.Bool(m.IsInitialized)
	e.OptionalKey(m.FreezeAuthority)
	return e.Bytes()
}

// Unmarshal decodes a mint. Token-2022 mints carrying extensions are
// accepted, with only the base layout decoded.
func (m *Mint) Unmarshal(b []byte) bool {
	if len(b) < MintAccountSize {
		return false
	}

	d := binary.NewDecoder(b)
	m.MintAuthority = d.OptionalKey()
	m.Supply = d.Uint64()
	m.Decimals = d.Uint8()
	m.IsInitialized = d.Bool()
	m.FreezeAuthority = d.OptionalKey()
	return true
}
