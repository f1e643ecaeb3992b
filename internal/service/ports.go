// Package service implements the placement workflows on top of a
// repository.Store.
package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// Notifier delivers a student-facing notification.
type Notifier interface {
	Notify(ctx context.Context, studentID, kind string, data map[string]any) error
}

// DocumentStore holds requirement files outside the database.
type DocumentStore interface {
	Store(ctx context.Context, content []byte, doc placement.Document) (string, error)
	Delete(ctx context.Context, fileRef string) error
}

// AuditLog appends and reads audit entries.
type AuditLog interface {
	Record(ctx context.Context, entry *repository.AuditEntry) error
	List(ctx context.Context, resourceType, resourceID string) ([]*repository.AuditEntry, error)
}

// Notification kinds.
const (
	NotifyApproved            = "application_approved"
	NotifyRejected            = "application_rejected"
	NotifyCapacityUnavailable = "capacity_unavailable"
)

func actorFrom(ctx context.Context) (identity.Actor, error) {
	actor, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Actor{}, errors.New(errors.ErrCodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// auditor records entries without letting audit failures fail the caller.
type auditor struct {
	log    AuditLog
	logger *logger.Logger
}

func (a auditor) record(ctx context.Context, actorID, action, resourceType, resourceID, description string, metadata map[string]any) {
	if a.log == nil {
		return
	}
	entry := &repository.AuditEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		Metadata:     metadata,
	}
	if err := a.log.Record(ctx, entry); err != nil {
		a.logger.Warn().Err(err).
			Str("action", action).
			Str("resource_id", resourceID).
			Msg("Failed to write audit entry")
	}
}

// notify sends one notification and converts a failure into a warning.
func notify(ctx context.Context, n Notifier, log *logger.Logger, studentID, kind string, data map[string]any) string {
	if n == nil {
		return ""
	}
	if err := n.Notify(ctx, studentID, kind, data); err != nil {
		log.Warn().Err(err).
			Str("student_id", studentID).
			Str("kind", kind).
			Msg("Notification failed")
		return fmt.Sprintf("%s: %s notification to %s failed: %v", errors.ErrCodeNotify, kind, studentID, err)
	}
	return ""
}

func appendWarning(warnings []string, w string) []string {
	if w == "" {
		return warnings
	}
	return append(warnings, w)
}
