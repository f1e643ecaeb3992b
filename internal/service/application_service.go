package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// ApplicationService handles the student-owned side of an application.
type ApplicationService struct {
	store  repository.Store
	ledger *CapacityLedger
	policy *policy.Table
	docs   DocumentStore
	audit  auditor
	trail  AuditLog
	log    *logger.Logger
	now    func() time.Time
}

// NewApplicationService creates a new application service
func NewApplicationService(
	store repository.Store,
	ledger *CapacityLedger,
	table *policy.Table,
	docs DocumentStore,
	audit AuditLog,
	log *logger.Logger,
) *ApplicationService {
	return &ApplicationService{
		store:  store,
		ledger: ledger,
		policy: table,
		docs:   docs,
		audit:  auditor{log: audit, logger: log},
		trail:  audit,
		log:    log,
		now:    time.Now,
	}
}

// CreateApplicationRequest represents a create application request
type CreateApplicationRequest struct {
	StudentID     string
	CompanyID     string
	StartDate     string
	EndDate       string
	ProposedHours int
	CoverLetter   string
	Skills        string
}

// UpdateDraftRequest holds the draft fields to change. Nil fields are kept.
type UpdateDraftRequest struct {
	CompanyID     *string
	StartDate     *string
	EndDate       *string
	ProposedHours *int
	CoverLetter   *string
	Skills        *string
}

// ApplicationDetail is an application with its checklist and company
// occupancy.
type ApplicationDetail struct {
	Application  *placement.Application   `json:"application"`
	Requirements []*placement.Requirement `json:"requirements"`
	Submitted    int                      `json:"requirements_submitted"`
	Total        int                      `json:"requirements_total"`
	Capacity     placement.Occupancy      `json:"capacity"`
}

// Create opens a draft for the acting student.
func (s *ApplicationService) Create(ctx context.Context, req *CreateApplicationRequest) (*placement.Application, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	studentID := req.StudentID
	if studentID == "" {
		studentID = actor.ID
	}
	if _, err := s.policy.Check(actor, policy.ApplicationCreate, studentID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		return nil, errors.InvalidInput("company_id", "company is required")
	}

	start, err := placement.ParseDate("proposed_start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := placement.ParseDate("proposed_end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	if err := placement.ValidateProposal(start, end, req.ProposedHours); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &placement.Application{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		CompanyID:     req.CompanyID,
		Status:        placement.StatusDraft,
		StartDate:     start,
		EndDate:       end,
		ProposedHours: req.ProposedHours,
		CoverLetter:   strings.TrimSpace(req.CoverLetter),
		Skills:        strings.TrimSpace(req.Skills),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		company, err := tx.LockCompany(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if company.IsArchived() {
			return errors.InvalidState("company is archived").WithDetail("company_id", company.ID)
		}
		existing, err := tx.FindActiveApplication(ctx, studentID, company.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.New(errors.ErrCodeDuplicateApplication, "student already has an active application for this company").
				WithDetail("student_id", studentID).
				WithDetail("company_id", company.ID).
				WithDetail("existing_application_id", existing.ID)
		}
		return tx.CreateApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("student_id", studentID).
		Str("company_id", app.CompanyID).
		Msg("Application created")
	s.audit.record(ctx, actor.ID, "create", "application", app.ID, "Application created",
		map[string]any{"company_id": app.CompanyID})
	return app, nil
}

// UpdateDraft edits a draft. Moving it to another company re-checks the
// duplicate rule there.
func (s *ApplicationService) UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*placement.Application, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Check(actor, policy.ApplicationUpdate, current.StudentID); err != nil {
		return nil, err
	}

	target := current.CompanyID
	if req.CompanyID != nil && *req.CompanyID != "" {
		target = *req.CompanyID
	}

	var out *placement.Application
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		company, err := tx.LockCompany(ctx, target)
		if err != nil {
			return err
		}
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return err
		}
		if app.IsArchived() || app.Status != placement.StatusDraft {
			return errors.InvalidState("only drafts can be edited").
				WithDetail("application_id", id).
				WithDetail("status", string(app.Status))
		}
		if target == current.CompanyID && app.CompanyID != current.CompanyID {
			return errors.New(errors.ErrCodeConflict, "application changed company, retry the operation").
				WithDetail("retryable", true)
		}
		if company.ID != app.CompanyID && company.IsArchived() {
			return errors.InvalidState("company is archived").WithDetail("company_id", company.ID)
		}

		app.CompanyID = company.ID
		if req.StartDate != nil {
			if app.StartDate, err = placement.ParseDate("proposed_start_date", *req.StartDate); err != nil {
				return err
			}
		}
		if req.EndDate != nil {
			if app.EndDate, err = placement.ParseDate("proposed_end_date", *req.EndDate); err != nil {
				return err
			}
		}
		if req.ProposedHours != nil {
			app.ProposedHours = *req.ProposedHours
		}
		if req.CoverLetter != nil {
			app.CoverLetter = strings.TrimSpace(*req.CoverLetter)
		}
		if req.Skills != nil {
			app.Skills = strings.TrimSpace(*req.Skills)
		}
		if err := placement.ValidateProposal(app.StartDate, app.EndDate, app.ProposedHours); err != nil {
			return err
		}
		app.UpdatedAt = s.now().UTC()

		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, actor.ID, "update", "application", id, "Draft updated", nil)
	return out, nil
}

// Submit moves a draft to submitted once the mandatory documents are in.
// Submitting to a company with no room succeeds with a warning.
func (s *ApplicationService) Submit(ctx context.Context, id string) (*Outcome, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Check(actor, policy.ApplicationSubmit, current.StudentID); err != nil {
		return nil, err
	}

	var out *placement.Application
	var snap placement.Snapshot
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		company, err := tx.LockCompany(ctx, current.CompanyID)
		if err != nil {
			return err
		}
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return err
		}
		reqs, err := tx.ListRequirements(ctx, id)
		if err != nil {
			return err
		}
		attached := make([]placement.RequirementType, 0, len(reqs))
		for _, r := range reqs {
			if r.Submitted {
				attached = append(attached, r.Type)
			}
		}
		if err := app.Submit(attached, s.now().UTC()); err != nil {
			return err
		}
		if snap, err = s.ledger.Within(ctx, tx, company); err != nil {
			return err
		}
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("application_id", id).Msg("Application submitted")
	s.audit.record(ctx, actor.ID, "submit", "application", id, "Application submitted", nil)

	result := &Outcome{Application: out, Capacity: snap.Occupancy()}
	if !snap.CanAccept() {
		result.Warnings = append(result.Warnings, "company cannot accept more students; approval will fail until a slot frees up")
	}
	return result, nil
}

// Get returns an application with its requirements and company occupancy.
func (s *ApplicationService) Get(ctx context.Context, id string) (*ApplicationDetail, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Check(actor, policy.ApplicationRead, app.StudentID); err != nil {
		return nil, err
	}

	reqs, err := s.store.ListRequirements(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.ledger.Current(ctx, app.CompanyID)
	if err != nil {
		return nil, err
	}
	submitted, total := placement.Completion(reqs)
	return &ApplicationDetail{
		Application:  app,
		Requirements: reqs,
		Submitted:    submitted,
		Total:        total,
		Capacity:     snap.Occupancy(),
	}, nil
}

// Delete hard-deletes an application and its requirements. Stored files
// are removed best-effort after the commit.
func (s *ApplicationService) Delete(ctx context.Context, id string) error {
	actor, err := actorFrom(ctx)
	if err != nil {
		return err
	}
	current, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.policy.Check(actor, policy.ApplicationDelete, current.StudentID); err != nil {
		return err
	}

	var refs []string
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockCompany(ctx, current.CompanyID); err != nil {
			return err
		}
		if _, err := tx.LockApplication(ctx, id); err != nil {
			return err
		}
		reqs, err := tx.ListRequirements(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			if r.FileRef != "" {
				refs = append(refs, r.FileRef)
			}
		}
		return tx.DeleteApplication(ctx, id)
	})
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if err := s.docs.Delete(ctx, ref); err != nil {
			s.log.Warn().Err(err).Str("file_ref", ref).Msg("Failed to delete requirement file")
		}
	}
	s.log.Info().Str("application_id", id).Str("deleted_by", actor.ID).Msg("Application deleted")
	s.audit.record(ctx, actor.ID, "delete", "application", id, "Application deleted",
		map[string]any{"student_id": current.StudentID, "company_id": current.CompanyID, "status": string(current.Status)})
	return nil
}

// ListAudit returns the audit trail of one application.
func (s *ApplicationService) ListAudit(ctx context.Context, id string) ([]*repository.AuditEntry, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Check(actor, policy.ApplicationAudit, ""); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []*repository.AuditEntry{}, nil
	}
	return s.trail.List(ctx, "application", id)
}
