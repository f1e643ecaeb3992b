package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// WorkflowCoordinator runs every capacity-affecting transition. Each
// operation validates and writes inside one transaction holding the company
// lock, and emits notifications only after the commit.
type WorkflowCoordinator struct {
	store    repository.Store
	ledger   *CapacityLedger
	policy   *policy.Table
	notifier Notifier
	audit    auditor
	log      *logger.Logger
	now      func() time.Time
}

// NewWorkflowCoordinator creates a new coordinator.
func NewWorkflowCoordinator(
	store repository.Store,
	ledger *CapacityLedger,
	table *policy.Table,
	notifier Notifier,
	audit AuditLog,
	log *logger.Logger,
) *WorkflowCoordinator {
	return &WorkflowCoordinator{
		store:    store,
		ledger:   ledger,
		policy:   table,
		notifier: notifier,
		audit:    auditor{log: audit, logger: log},
		log:      log,
		now:      time.Now,
	}
}

// Outcome is the result of a transition.
type Outcome struct {
	Application *placement.Application `json:"application"`
	Capacity    placement.Occupancy    `json:"capacity"`
	Demoted     []string               `json:"demoted,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// transition is one locked read-modify-write of an application.
type transition func(tx repository.Tx, app *placement.Application, snap placement.Snapshot) error

// authorize loads the application and checks action for the current actor.
func (c *WorkflowCoordinator) authorize(ctx context.Context, id string, action policy.Action) (identity.Actor, *placement.Application, policy.Scope, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return actor, nil, policy.ScopeNone, err
	}
	app, err := c.store.GetApplication(ctx, id)
	if err != nil {
		return actor, nil, policy.ScopeNone, err
	}
	scope, err := c.policy.Check(actor, action, app.StudentID)
	if err != nil {
		return actor, nil, policy.ScopeNone, err
	}
	return actor, app, scope, nil
}

// apply locks the company, then the application, builds the snapshot and
// runs fn. The written application is returned with the capacity status the
// company had before fn ran.
func (c *WorkflowCoordinator) apply(ctx context.Context, id, companyID string, fn transition) (*placement.Application, placement.CapacityStatus, error) {
	var (
		out    *placement.Application
		before placement.CapacityStatus
	)
	err := c.store.InTransaction(ctx, func(tx repository.Tx) error {
		company, err := tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return err
		}
		if app.CompanyID != company.ID {
			return errors.New(errors.ErrCodeConflict, "application changed company, retry the operation").
				WithDetail("retryable", true)
		}
		snap, err := c.ledger.Within(ctx, tx, company)
		if err != nil {
			return err
		}
		before = snap.Status()
		if err := fn(tx, app, snap); err != nil {
			return err
		}
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, before, nil
}

// settle reads the post-commit capacity and runs the cascade only when the
// operation moved the company from having room to Full. A cascade that
// demotes the operated application itself reloads it.
func (c *WorkflowCoordinator) settle(ctx context.Context, out *Outcome, before placement.CapacityStatus, trigger string) {
	snap, err := c.ledger.Current(ctx, out.Application.CompanyID)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("failed to read capacity: %v", err))
		return
	}
	out.Capacity = snap.Occupancy()
	if !becameFull(before, snap.Status()) {
		return
	}

	demoted, warnings, err := c.RunFullCompanyCascade(ctx, out.Application.CompanyID, trigger)
	if err != nil {
		c.log.Error().Err(err).
			Str("company_id", out.Application.CompanyID).
			Msg("Full company cascade failed")
		out.Warnings = append(out.Warnings, fmt.Sprintf("cascade failed: %v", err))
		return
	}
	out.Demoted = demoted
	out.Warnings = append(out.Warnings, warnings...)
	if slices.Contains(demoted, out.Application.ID) {
		app, err := c.store.GetApplication(ctx, out.Application.ID)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("failed to reload application: %v", err))
			return
		}
		out.Application = app
	}
}

// becameFull reports a transition into Full.
func becameFull(before, after placement.CapacityStatus) bool {
	return before != placement.CapacityFull && after == placement.CapacityFull
}

// Approve admits a submitted or under-review application if its company
// can accept one more student.
func (c *WorkflowCoordinator) Approve(ctx context.Context, id, notes string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationApprove)
	if err != nil {
		return nil, err
	}

	app, before, err := c.apply(ctx, id, current.CompanyID, func(_ repository.Tx, app *placement.Application, snap placement.Snapshot) error {
		return app.Approve(actor.ID, notes, snap, c.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("application_id", id).
		Str("company_id", app.CompanyID).
		Str("approved_by", actor.ID).
		Msg("Application approved")
	c.audit.record(ctx, actor.ID, "approve", "application", id, "Application approved",
		map[string]any{"from": string(app.Approval.From), "notes": notes})

	out := &Outcome{Application: app}
	out.Warnings = appendWarning(out.Warnings, notify(ctx, c.notifier, c.log, app.StudentID, NotifyApproved,
		map[string]any{"application_id": id, "company_id": app.CompanyID}))
	c.settle(ctx, out, before, "approve:"+id)
	return out, nil
}

// Reject closes an application. Rejecting an approved application frees
// its seat.
func (c *WorkflowCoordinator) Reject(ctx context.Context, id, reason, notes string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationReject)
	if err != nil {
		return nil, err
	}

	var from placement.Status
	app, before, err := c.apply(ctx, id, current.CompanyID, func(_ repository.Tx, app *placement.Application, _ placement.Snapshot) error {
		from = app.Status
		return app.Reject(actor.ID, reason, notes, c.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("application_id", id).
		Str("from", string(from)).
		Str("rejected_by", actor.ID).
		Msg("Application rejected")
	c.audit.record(ctx, actor.ID, "reject", "application", id, "Application rejected",
		map[string]any{"from": string(from), "reason": reason, "notes": notes})

	out := &Outcome{Application: app}
	out.Warnings = appendWarning(out.Warnings, notify(ctx, c.notifier, c.log, app.StudentID, NotifyRejected,
		map[string]any{"application_id": id, "company_id": app.CompanyID, "reason": reason}))
	c.settle(ctx, out, before, "reject:"+id)
	return out, nil
}

// BeginReview moves a submitted application under review. An incomplete
// checklist is reported as a warning, not an error.
func (c *WorkflowCoordinator) BeginReview(ctx context.Context, id, notes string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationReview)
	if err != nil {
		return nil, err
	}

	var submitted, total int
	app, before, err := c.apply(ctx, id, current.CompanyID, func(tx repository.Tx, app *placement.Application, _ placement.Snapshot) error {
		reqs, err := tx.ListRequirements(ctx, app.ID)
		if err != nil {
			return err
		}
		submitted, total = placement.Completion(reqs)
		return app.BeginReview(actor.ID, notes, c.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	c.audit.record(ctx, actor.ID, "review", "application", id, "Review started",
		map[string]any{"requirements_submitted": submitted})

	out := &Outcome{Application: app}
	if submitted < total {
		out.Warnings = append(out.Warnings, fmt.Sprintf("requirement checklist incomplete: %d of %d submitted", submitted, total))
	}
	c.settle(ctx, out, before, "review:"+id)
	return out, nil
}

// Cancel withdraws an undecided application.
func (c *WorkflowCoordinator) Cancel(ctx context.Context, id string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationCancel)
	if err != nil {
		return nil, err
	}

	var from placement.Status
	app, before, err := c.apply(ctx, id, current.CompanyID, func(_ repository.Tx, app *placement.Application, _ placement.Snapshot) error {
		from = app.Status
		return app.Cancel(c.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	c.audit.record(ctx, actor.ID, "cancel", "application", id, "Application cancelled",
		map[string]any{"previous_status": string(from)})

	out := &Outcome{Application: app}
	c.settle(ctx, out, before, "cancel:"+id)
	return out, nil
}

// Archive applies the soft-delete overlay. Decided applications also need
// the archive_decided grant.
func (c *WorkflowCoordinator) Archive(ctx context.Context, id string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationArchive)
	if err != nil {
		return nil, err
	}

	undecidedOnly := !c.policy.Allowed(actor, policy.ApplicationArchiveDecided)
	app, before, err := c.apply(ctx, id, current.CompanyID, func(_ repository.Tx, app *placement.Application, _ placement.Snapshot) error {
		return app.Archive(actor.ID, undecidedOnly, c.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("application_id", id).
		Str("previous_status", string(app.Archived.PreviousStatus)).
		Str("archived_by", actor.ID).
		Msg("Application archived")
	c.audit.record(ctx, actor.ID, "archive", "application", id, "Application archived",
		map[string]any{"previous_status": string(app.Archived.PreviousStatus)})

	out := &Outcome{Application: app}
	c.settle(ctx, out, before, "archive:"+id)
	return out, nil
}

// Retrieve clears the archive overlay, re-evaluating capacity at this
// moment. A company that cannot accept sends the application back to draft.
func (c *WorkflowCoordinator) Retrieve(ctx context.Context, id string) (*Outcome, error) {
	actor, current, _, err := c.authorize(ctx, id, policy.ApplicationRetrieve)
	if err != nil {
		return nil, err
	}

	var previous, restored placement.Status
	app, before, err := c.apply(ctx, id, current.CompanyID, func(_ repository.Tx, app *placement.Application, snap placement.Snapshot) error {
		if app.Archived != nil {
			previous = app.Archived.PreviousStatus
		}
		var err error
		restored, err = app.Retrieve(snap, c.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("application_id", id).
		Str("previous_status", string(previous)).
		Str("restored_status", string(restored)).
		Msg("Application retrieved")
	c.audit.record(ctx, actor.ID, "retrieve", "application", id, "Application retrieved",
		map[string]any{"previous_status": string(previous), "restored_status": string(restored)})

	out := &Outcome{Application: app}
	if restored != previous {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("company cannot accept more students; application restored to %s instead of %s", restored, previous))
	}
	c.settle(ctx, out, before, "retrieve:"+id)
	return out, nil
}

// RunFullCompanyCascade demotes every pending application of a Full company
// back to draft and notifies each student. It re-checks Full under the
// company lock, so running it on a company with room is a no-op.
func (c *WorkflowCoordinator) RunFullCompanyCascade(ctx context.Context, companyID, trigger string) ([]string, []string, error) {
	actorID := "system"
	if actor, ok := identity.FromContext(ctx); ok {
		actorID = actor.ID
	}

	var demoted []*placement.Application
	err := c.store.InTransaction(ctx, func(tx repository.Tx) error {
		company, err := tx.LockCompany(ctx, companyID)
		if err != nil {
			return err
		}
		snap, err := c.ledger.Within(ctx, tx, company)
		if err != nil {
			return err
		}
		if snap.Status() != placement.CapacityFull {
			return nil
		}

		pending, err := tx.ListPending(ctx, companyID)
		if err != nil {
			return err
		}
		now := c.now().UTC()
		for _, p := range pending {
			app, err := tx.LockApplication(ctx, p.ID)
			if err != nil {
				return err
			}
			if app.IsArchived() || !app.Status.Pending() {
				continue
			}
			if err := app.Demote(now); err != nil {
				return err
			}
			if err := tx.UpdateApplication(ctx, app); err != nil {
				return err
			}
			demoted = append(demoted, app)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(demoted))
	var warnings []string
	for _, app := range demoted {
		ids = append(ids, app.ID)
		c.audit.record(ctx, actorID, "demote", "application", app.ID, "Company is full; application returned to draft",
			map[string]any{"company_id": companyID, "trigger": trigger})
		warnings = appendWarning(warnings, notify(ctx, c.notifier, c.log, app.StudentID, NotifyCapacityUnavailable,
			map[string]any{"application_id": app.ID, "company_id": companyID}))
	}
	if len(ids) > 0 {
		c.log.Info().
			Str("company_id", companyID).
			Str("trigger", trigger).
			Int("demoted", len(ids)).
			Msg("Full company cascade demoted pending applications")
	}
	return ids, warnings, nil
}
