package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	programAddressMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidPublicKey      = errors.New("invalid public key")
	ErrNoProgramAddress      = errors.New("no viable bump seed for program address")
)

// isOnCurve reports whether key decodes to a valid compressed Edwards point,
// i.e. whether a private key could exist for it. The edwards25519 group
// element in x/crypto is internal, so the check goes through jdgcs/ed25519.
var isOnCurve = defaultIsOnCurve

func defaultIsOnCurve(key [32]byte) bool {
	var point edwards25519.ExtendedGroupElement
	return point.FromBytes(&key)
}

// CreateProgramAddress derives a program address from seeds. Program addresses
// must lie off the ed25519 curve; ErrInvalidPublicKey is returned when the
// derived key is on it.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(program)
	h.Write([]byte(programAddressMarker))

	var key [32]byte
	copy(key[:], h.Sum(nil))
	if isOnCurve(key) {
		return nil, ErrInvalidPublicKey
	}
	return key[:], nil
}

// FindProgramAddress searches bump seeds from 255 downward and returns the
// first off-curve program address.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	withBump := append(seeds[:len(seeds):len(seeds)], []byte{0})
	for bump := math.MaxUint8; bump > 0; bump-- {
		withBump[len(withBump)-1][0] = byte(bump)

		key, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return key, nil
		} else if err != ErrInvalidPublicKey {
			return nil, err
		}
	}
	return nil, ErrNoProgramAddress
}
