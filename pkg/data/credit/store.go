package credit

import (
	"context"
	"errors"
)

var (
	ErrCreditNotFound = errors.New("credit record not found")
	ErrCreditExists   = errors.New("credit record already exists")
)

type Store interface {
	// Put creates a new credit record. ErrCreditExists is returned when either
	// signature has already been credited.
	Put(ctx context.Context, record *Record) error

	// GetBySignature gets a credit record by its transaction signature, or by
	// its fee signature
	GetBySignature(ctx context.Context, signature string) (*Record, error)

	// GetTotalCreditedByOwner sums the lamports credited to an owner
	GetTotalCreditedByOwner(ctx context.Context, owner string) (uint64, error)
}
