package credit

import (
	"errors"
	"time"

	"github.com/code-payments/reclaim-server/pkg/reclaim"
)

// Record is a verified reclaim transaction that has been credited to its owner
type Record struct {
	Id uint64

	Signature    string
	FeeSignature string

	Owner       string
	Destination string
	Mode        reclaim.Mode

	ClosedAccounts      uint64
	TransferredLamports uint64
	CreditedLamports    uint64

	Slot uint64

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Signature) == 0 {
		return errors.New("signature is required")
	}

	if r.Signature == r.FeeSignature {
		return errors.New("fee signature must differ from signature")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	if len(r.Destination) == 0 {
		return errors.New("destination is required")
	}

	if r.Mode != reclaim.ModeDirect && r.Mode != reclaim.ModeWager {
		return errors.New("invalid mode")
	}

	if r.CreditedLamports > r.TransferredLamports {
		return errors.New("credited lamports cannot exceed transferred lamports")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Signature:    r.Signature,
		FeeSignature: r.FeeSignature,

		Owner:       r.Owner,
		Destination: r.Destination,
		Mode:        r.Mode,

		ClosedAccounts:      r.ClosedAccounts,
		TransferredLamports: r.TransferredLamports,
		CreditedLamports:    r.CreditedLamports,

		Slot: r.Slot,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Signature = r.Signature
	dst.FeeSignature = r.FeeSignature

	dst.Owner = r.Owner
	dst.Destination = r.Destination
	dst.Mode = r.Mode

	dst.ClosedAccounts = r.ClosedAccounts
	dst.TransferredLamports = r.TransferredLamports
	dst.CreditedLamports = r.CreditedLamports

	dst.Slot = r.Slot

	dst.CreatedAt = r.CreatedAt
}
