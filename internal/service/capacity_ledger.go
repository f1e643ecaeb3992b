package service

import (
	"context"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// CapacityLedger derives company occupancy from the live approved count.
// It never caches; every call reads through the given reader.
type CapacityLedger struct {
	store repository.Store
}

// NewCapacityLedger creates a ledger over store.
func NewCapacityLedger(store repository.Store) *CapacityLedger {
	return &CapacityLedger{store: store}
}

// Current reads a company's snapshot outside any transaction.
func (l *CapacityLedger) Current(ctx context.Context, companyID string) (placement.Snapshot, error) {
	c, err := l.store.GetCompany(ctx, companyID)
	if err != nil {
		return placement.Snapshot{}, err
	}
	return l.Within(ctx, l.store, c)
}

// Within counts approved applications through r. Inside a transaction the
// caller must already hold the company lock for the figure to be
// authoritative.
func (l *CapacityLedger) Within(ctx context.Context, r repository.Reader, c *placement.Company) (placement.Snapshot, error) {
	filled, err := r.CountApproved(ctx, c.ID)
	if err != nil {
		return placement.Snapshot{}, err
	}
	return c.Snapshot(filled), nil
}

// Batch computes snapshots for many companies with one count query.
func (l *CapacityLedger) Batch(ctx context.Context, companies []*placement.Company) (map[string]placement.Snapshot, error) {
	ids := make([]string, len(companies))
	for i, c := range companies {
		ids[i] = c.ID
	}
	counts, err := l.store.CountApprovedByCompany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]placement.Snapshot, len(companies))
	for _, c := range companies {
		out[c.ID] = c.Snapshot(counts[c.ID])
	}
	return out, nil
}
