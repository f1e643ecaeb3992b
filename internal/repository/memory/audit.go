package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// AuditLog is an append-only in-memory audit trail.
type AuditLog struct {
	mu      sync.Mutex
	entries []repository.AuditEntry
	nextID  int64
	now     func() time.Time
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Record appends entry, assigning its ID and timestamp.
func (l *AuditLog) Record(_ context.Context, entry *repository.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	entry.ID = l.nextID
	entry.PerformedAt = l.now().UTC()

	stored := *entry
	stored.Metadata = maps.Clone(entry.Metadata)
	l.entries = append(l.entries, stored)
	return nil
}

// List returns entries for one resource in insertion order.
func (l *AuditLog) List(_ context.Context, resourceType, resourceID string) ([]*repository.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*repository.AuditEntry, 0)
	for _, e := range l.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			e.Metadata = maps.Clone(e.Metadata)
			out = append(out, &e)
		}
	}
	return out, nil
}
