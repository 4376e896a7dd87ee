package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
	pgutil "github.com/code-payments/reclaim-server/pkg/database/postgres"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
)

const (
	tableName = "reclaim__core_credit"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Signature    string         `db:"signature"`
	FeeSignature sql.NullString `db:"fee_signature"`

	Owner       string `db:"owner"`
	Destination string `db:"destination"`
	Mode        uint8  `db:"mode"`

	ClosedAccounts      int64 `db:"closed_accounts"`
	TransferredLamports int64 `db:"transferred_lamports"`
	CreditedLamports    int64 `db:"credited_lamports"`

	Slot int64 `db:"slot"`

	CreatedAt time.Time `db:"created_at"`
}

func toModel(obj *credit.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Signature: obj.Signature,
		FeeSignature: sql.NullString{
			String: obj.FeeSignature,
			Valid:  len(obj.FeeSignature) > 0,
		},
		Owner:               obj.Owner,
		Destination:         obj.Destination,
		Mode:                uint8(obj.Mode),
		ClosedAccounts:      int64(obj.ClosedAccounts),
		TransferredLamports: int64(obj.TransferredLamports),
		CreditedLamports:    int64(obj.CreditedLamports),
		Slot:                int64(obj.Slot),
		CreatedAt:           obj.CreatedAt,
	}, nil
}

func fromModel(obj *model) *credit.Record {
	return &credit.Record{
		Id:                  uint64(obj.Id.Int64),
		Signature:           obj.Signature,
		FeeSignature:        obj.FeeSignature.String,
		Owner:               obj.Owner,
		Destination:         obj.Destination,
		Mode:                reclaim.Mode(obj.Mode),
		ClosedAccounts:      uint64(obj.ClosedAccounts),
		TransferredLamports: uint64(obj.TransferredLamports),
		CreditedLamports:    uint64(obj.CreditedLamports),
		Slot:                uint64(obj.Slot),
		CreatedAt:           obj.CreatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteRetryable(func() error {
		return m.dbPutInTx(ctx, db)
	})
}

func (m *model) dbPutInTx(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelSerializable, func(tx *sqlx.Tx) error {
		// Unique constraints cover each column on its own, so a signature
		// credited in one column is checked against the other explicitly.
		var existing int
		countQuery := `SELECT COUNT(*) FROM ` + tableName + `
			WHERE signature = $1 OR fee_signature = $1 OR signature = $2 OR fee_signature = $2`
		err := tx.GetContext(ctx, &existing, countQuery, m.Signature, m.FeeSignature)
		if err != nil {
			return err
		}
		if existing > 0 {
			return credit.ErrCreditExists
		}

		query := `INSERT INTO ` + tableName + `
			(signature, fee_signature, owner, destination, mode, closed_accounts, transferred_lamports, credited_lamports, slot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, signature, fee_signature, owner, destination, mode, closed_accounts, transferred_lamports, credited_lamports, slot, created_at`

		err = tx.QueryRowxContext(
			ctx,
			query,
			m.Signature,
			m.FeeSignature,
			m.Owner,
			m.Destination,
			m.Mode,
			m.ClosedAccounts,
			m.TransferredLamports,
			m.CreditedLamports,
			m.Slot,
			m.CreatedAt,
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, credit.ErrCreditExists)
	})
}

func dbGetBySignature(ctx context.Context, db *sqlx.DB, signature string) (*model, error) {
	res := &model{}

	query := `SELECT id, signature, fee_signature, owner, destination, mode, closed_accounts, transferred_lamports, credited_lamports, slot, created_at FROM ` + tableName + `
			WHERE signature = $1 OR fee_signature = $1
			LIMIT 1`

	err := db.GetContext(
		ctx,
		res,
		query,
		signature,
	)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, credit.ErrCreditNotFound)
	}
	return res, nil
}

func dbGetTotalCreditedByOwner(ctx context.Context, db *sqlx.DB, owner string) (uint64, error) {
	var res int64

	query := `SELECT COALESCE(SUM(credited_lamports), 0) FROM ` + tableName + `
			WHERE owner = $1`

	err := db.GetContext(
		ctx,
		&res,
		query,
		owner,
	)
	if err != nil {
		return 0, err
	}
	return uint64(res), nil
}
