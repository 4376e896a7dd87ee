package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/reclaim-server/pkg/data/credit"
)

type store struct {
	mu      sync.Mutex
	records []*credit.Record
	last    uint64
}

func New() credit.Store {
	return &store{
		records: make([]*credit.Record, 0),
		last:    0,
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make([]*credit.Record, 0)
	s.last = 0
	s.mu.Unlock()
}

// Put implements credit.Store.Put
func (s *store) Put(_ context.Context, data *credit.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(data); item != nil {
		return credit.ErrCreditExists
	}

	s.last++
	data.Id = s.last
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	c := data.Clone()
	s.records = append(s.records, &c)

	return nil
}

// GetBySignature implements credit.Store.GetBySignature
func (s *store) GetBySignature(_ context.Context, signature string) (*credit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findBySignature(signature)
	if item == nil {
		return nil, credit.ErrCreditNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

// GetTotalCreditedByOwner implements credit.Store.GetTotalCreditedByOwner
func (s *store) GetTotalCreditedByOwner(_ context.Context, owner string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint64
	for _, item := range s.records {
		if item.Owner == owner {
			total += item.CreditedLamports
		}
	}
	return total, nil
}

func (s *store) find(data *credit.Record) *credit.Record {
	if item := s.findBySignature(data.Signature); item != nil {
		return item
	}
	if len(data.FeeSignature) > 0 {
		return s.findBySignature(data.FeeSignature)
	}
	return nil
}

func (s *store) findBySignature(signature string) *credit.Record {
	for _, item := range s.records {
		if item.Signature == signature {
			return item
		}
		if len(item.FeeSignature) > 0 && item.FeeSignature == signature {
			return item
		}
	}
	return nil
}
