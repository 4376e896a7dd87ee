package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) credit.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements credit.Store.Put
func (s *store) Put(ctx context.Context, record *credit.Record) error {
	m, err := toModel(record)
	if err != nil {
		return err
	}

	err = m.dbPut(ctx, s.db)
	if err != nil {
		return err
	}

	res := fromModel(m)
	res.CopyTo(record)

	return nil
}

// GetBySignature implements credit.Store.GetBySignature
func (s *store) GetBySignature(ctx context.Context, signature string) (*credit.Record, error) {
	m, err := dbGetBySignature(ctx, s.db, signature)
	if err != nil {
		return nil, err
	}
	return fromModel(m), nil
}

// GetTotalCreditedByOwner implements credit.Store.GetTotalCreditedByOwner
func (s *store) GetTotalCreditedByOwner(ctx context.Context, owner string) (uint64, error) {
	return dbGetTotalCreditedByOwner(ctx, s.db, owner)
}
