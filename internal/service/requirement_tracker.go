package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// MaxDocumentSize caps one uploaded requirement file.
const MaxDocumentSize = 10 << 20

// RequirementTracker manages the document checklist of an application.
type RequirementTracker struct {
	store  repository.Store
	policy *policy.Table
	docs   DocumentStore
	audit  auditor
	log    *logger.Logger
	now    func() time.Time
}

// NewRequirementTracker creates a new requirement tracker.
func NewRequirementTracker(
	store repository.Store,
	table *policy.Table,
	docs DocumentStore,
	audit AuditLog,
	log *logger.Logger,
) *RequirementTracker {
	return &RequirementTracker{
		store:  store,
		policy: table,
		docs:   docs,
		audit:  auditor{log: audit, logger: log},
		log:    log,
		now:    time.Now,
	}
}

// AttachRequest carries one uploaded document.
type AttachRequest struct {
	ApplicationID string
	Type          string
	Filename      string
	ContentType   string
	Content       []byte
}

func (t *RequirementTracker) authorize(ctx context.Context, applicationID string, action policy.Action) (string, *placement.Application, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return "", nil, err
	}
	app, err := t.store.GetApplication(ctx, applicationID)
	if err != nil {
		return "", nil, err
	}
	if _, err := t.policy.Check(actor, action, app.StudentID); err != nil {
		return "", nil, err
	}
	return actor.ID, app, nil
}

func attachable(app *placement.Application) error {
	if app.IsArchived() {
		return errors.InvalidState("cannot change requirements of an archived application").
			WithDetail("application_id", app.ID)
	}
	switch app.Status {
	case placement.StatusRejected, placement.StatusCancelled:
		return errors.InvalidState("cannot change requirements of a closed application").
			WithDetail("application_id", app.ID).
			WithDetail("status", string(app.Status))
	}
	return nil
}

// Attach stores the document, then records it against the application.
// Attaching a type that is already present replaces its file. The stored
// file is removed again if the database write fails.
func (t *RequirementTracker) Attach(ctx context.Context, req *AttachRequest) (*placement.Requirement, error) {
	actorID, app, err := t.authorize(ctx, req.ApplicationID, policy.RequirementAttach)
	if err != nil {
		return nil, err
	}
	reqType, err := placement.ParseRequirementType(req.Type)
	if err != nil {
		return nil, err
	}
	if len(req.Content) == 0 {
		return nil, errors.InvalidInput("file", "document is empty")
	}
	if len(req.Content) > MaxDocumentSize {
		return nil, errors.InvalidInput("file", "document exceeds the size limit").
			WithDetail("max_bytes", MaxDocumentSize)
	}
	if err := attachable(app); err != nil {
		return nil, err
	}

	ref, err := t.docs.Store(ctx, req.Content, placement.Document{
		ApplicationID: app.ID,
		Type:          reqType,
		Filename:      req.Filename,
		ContentType:   req.ContentType,
	})
	if err != nil {
		if _, coded := errors.As(err); !coded {
			err = errors.Wrap(err, errors.ErrCodeStorage, "failed to store document")
		}
		return nil, err
	}

	now := t.now().UTC()
	requirement := &placement.Requirement{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Type:          reqType,
		CreatedAt:     now,
	}
	requirement.Replace(ref, now)

	var previous string
	err = t.store.InTransaction(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if err := attachable(locked); err != nil {
			return err
		}
		existing, err := tx.ListRequirements(ctx, app.ID)
		if err != nil {
			return err
		}
		if len(existing) >= placement.ChecklistSize && !hasType(existing, reqType) {
			return errors.InvalidInput("type", "requirement checklist is already complete")
		}
		previous, err = tx.UpsertRequirement(ctx, requirement)
		return err
	})
	if err != nil {
		if delErr := t.docs.Delete(ctx, ref); delErr != nil {
			t.log.Warn().Err(delErr).Str("file_ref", ref).Msg("Failed to remove orphaned document")
		}
		return nil, err
	}

	if previous != "" && previous != ref {
		if err := t.docs.Delete(ctx, previous); err != nil {
			t.log.Warn().Err(err).Str("file_ref", previous).Msg("Failed to delete replaced document")
		}
	}

	t.log.Info().
		Str("application_id", app.ID).
		Str("requirement_type", string(reqType)).
		Bool("replaced", previous != "").
		Msg("Requirement attached")
	t.audit.record(ctx, actorID, "attach", "application", app.ID, "Requirement attached",
		map[string]any{"requirement_type": string(reqType), "replaced": previous != ""})
	return requirement, nil
}

func hasType(reqs []*placement.Requirement, rt placement.RequirementType) bool {
	for _, r := range reqs {
		if r.Type == rt {
			return true
		}
	}
	return false
}

// Detach hard-deletes a requirement and its file.
func (t *RequirementTracker) Detach(ctx context.Context, requirementID string) error {
	current, err := t.store.GetRequirement(ctx, requirementID)
	if err != nil {
		return err
	}
	actorID, app, err := t.authorize(ctx, current.ApplicationID, policy.RequirementDetach)
	if err != nil {
		return err
	}

	var ref string
	err = t.store.InTransaction(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if err := attachable(locked); err != nil {
			return err
		}
		req, err := tx.GetRequirement(ctx, requirementID)
		if err != nil {
			return err
		}
		ref = req.FileRef
		return tx.DeleteRequirement(ctx, requirementID)
	})
	if err != nil {
		return err
	}

	if ref != "" {
		if err := t.docs.Delete(ctx, ref); err != nil {
			t.log.Warn().Err(err).Str("file_ref", ref).Msg("Failed to delete detached document")
		}
	}
	t.audit.record(ctx, actorID, "detach", "application", app.ID, "Requirement detached",
		map[string]any{"requirement_type": string(current.Type)})
	return nil
}

// Verify records staff sign-off on a submitted requirement.
func (t *RequirementTracker) Verify(ctx context.Context, requirementID, notes string) (*placement.Requirement, error) {
	current, err := t.store.GetRequirement(ctx, requirementID)
	if err != nil {
		return nil, err
	}
	actorID, app, err := t.authorize(ctx, current.ApplicationID, policy.RequirementVerify)
	if err != nil {
		return nil, err
	}

	var out *placement.Requirement
	err = t.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockApplication(ctx, app.ID); err != nil {
			return err
		}
		req, err := tx.GetRequirement(ctx, requirementID)
		if err != nil {
			return err
		}
		if !req.Submitted {
			return errors.InvalidState("requirement has not been submitted").
				WithDetail("requirement_id", requirementID)
		}
		now := t.now().UTC()
		req.Verification = &placement.Verification{By: actorID, At: now, Notes: notes}
		req.UpdatedAt = now
		if err := tx.UpdateRequirement(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.audit.record(ctx, actorID, "verify", "application", app.ID, "Requirement verified",
		map[string]any{"requirement_type": string(out.Type)})
	return out, nil
}

// CompletionRatio returns submitted requirements out of the full checklist.
func (t *RequirementTracker) CompletionRatio(ctx context.Context, applicationID string) (int, int, error) {
	reqs, err := t.List(ctx, applicationID)
	if err != nil {
		return 0, 0, err
	}
	submitted, total := placement.Completion(reqs)
	return submitted, total, nil
}

// List returns an application's requirements.
func (t *RequirementTracker) List(ctx context.Context, applicationID string) ([]*placement.Requirement, error) {
	if _, _, err := t.authorize(ctx, applicationID, policy.RequirementRead); err != nil {
		return nil, err
	}
	return t.store.ListRequirements(ctx, applicationID)
}
