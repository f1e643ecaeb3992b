package placement

import (
	"fmt"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

// Status is the closed set of application states. Archival is tracked
// separately so an archived application still has exactly one Status.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled,
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.InvalidInput("status", fmt.Sprintf("unknown application status %q", s))
}

// Pending reports whether the status competes for a slot.
func (s Status) Pending() bool {
	return s == StatusSubmitted || s == StatusUnderReview
}

// Application is one student's request for a placement at one company.
type Application struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	CompanyID       string     `json:"company_id"`
	Status          Status     `json:"status"`
	StartDate       time.Time  `json:"proposed_start_date"`
	EndDate         time.Time  `json:"proposed_end_date"`
	ProposedHours   int        `json:"proposed_hours"`
	CoverLetter     string     `json:"cover_letter,omitempty"`
	Skills          string     `json:"skills,omitempty"`
	ApplicationDate *time.Time `json:"application_date,omitempty"`
	Approval        *Approval  `json:"approval,omitempty"`
	Review          *Review    `json:"review,omitempty"`
	Archived        *Archival  `json:"archived,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Approval is set when the application enters approved. From records the
// status it left for the audit trail.
type Approval struct {
	By    string    `json:"by"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
	From  Status    `json:"from"`
}

// Review holds staff review metadata.
type Review struct {
	By              string    `json:"by"`
	At              time.Time `json:"at"`
	Notes           string    `json:"notes,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// Archival is the soft-delete overlay. PreviousStatus only exists here, so
// it cannot be read off an application that is not archived.
type Archival struct {
	At             time.Time `json:"at"`
	By             string    `json:"by"`
	PreviousStatus Status    `json:"previous_status"`
}

func (a *Application) IsArchived() bool {
	return a.Archived != nil
}

// Occupies reports whether the application counts toward filled slots.
func (a *Application) Occupies() bool {
	return a.Status == StatusApproved && !a.IsArchived()
}

func (a *Application) guardActive(op string) error {
	if a.IsArchived() {
		return errors.InvalidState(fmt.Sprintf("cannot %s an archived application", op)).
			WithDetail("application_id", a.ID)
	}
	return nil
}

func (a *Application) invalidFrom(op string) error {
	return errors.InvalidState(fmt.Sprintf("cannot %s an application in status %s", op, a.Status)).
		WithDetail("application_id", a.ID).
		WithDetail("status", string(a.Status))
}

// ── Student transitions ───────────────────────────────────────────────────────

// Submit moves a draft to submitted once every mandatory requirement type is
// attached.
func (a *Application) Submit(attached []RequirementType, now time.Time) error {
	if err := a.guardActive("submit"); err != nil {
		return err
	}
	if a.Status != StatusDraft {
		return a.invalidFrom("submit")
	}
	if missing := MissingMandatory(attached); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return errors.InvalidInput("requirements", "mandatory requirements are missing").
			WithDetail("missing", names)
	}
	a.Status = StatusSubmitted
	a.ApplicationDate = &now
	a.UpdatedAt = now
	return nil
}

// Cancel withdraws an application that has not been decided yet.
func (a *Application) Cancel(now time.Time) error {
	if err := a.guardActive("cancel"); err != nil {
		return err
	}
	switch a.Status {
	case StatusDraft, StatusSubmitted, StatusUnderReview:
	default:
		return a.invalidFrom("cancel")
	}
	a.Status = StatusCancelled
	a.UpdatedAt = now
	return nil
}

// ── Staff transitions ─────────────────────────────────────────────────────────

// BeginReview moves a submitted application under review.
func (a *Application) BeginReview(by, notes string, now time.Time) error {
	if err := a.guardActive("review"); err != nil {
		return err
	}
	if a.Status != StatusSubmitted {
		return a.invalidFrom("review")
	}
	a.Status = StatusUnderReview
	a.Review = &Review{By: by, At: now, Notes: notes}
	a.UpdatedAt = now
	return nil
}

// Approve admits the application against the given snapshot, which must have
// been read under the company lock. Capacity is checked before the status
// guard so a request racing a cascade sees the capacity failure.
func (a *Application) Approve(by, notes string, snap Snapshot, now time.Time) error {
	if err := a.guardActive("approve"); err != nil {
		return err
	}
	if !snap.CanAccept() {
		msg := "company has no remaining slots"
		if snap.Archived {
			msg = "company is archived"
		}
		return errors.New(errors.ErrCodeCapacityExceeded, msg).
			WithDetails(snap.Details()).
			WithDetail("application_id", a.ID)
	}
	if !a.Status.Pending() {
		return a.invalidFrom("approve")
	}
	a.Approval = &Approval{By: by, At: now, Notes: notes, From: a.Status}
	a.Status = StatusApproved
	a.UpdatedAt = now
	return nil
}

// Reject closes the application. Rejecting an approved application frees
// its slot because occupancy is derived from status.
func (a *Application) Reject(by, reason, notes string, now time.Time) error {
	if err := a.guardActive("reject"); err != nil {
		return err
	}
	if reason == "" {
		return errors.InvalidInput("reason", "rejection reason is required")
	}
	if !a.Status.Pending() && a.Status != StatusApproved {
		return a.invalidFrom("reject")
	}
	a.Status = StatusRejected
	a.Review = &Review{By: by, At: now, Notes: notes, RejectionReason: reason}
	a.UpdatedAt = now
	return nil
}

// Demote returns a pending application to draft after its company filled up.
func (a *Application) Demote(now time.Time) error {
	if err := a.guardActive("demote"); err != nil {
		return err
	}
	if !a.Status.Pending() {
		return a.invalidFrom("demote")
	}
	a.Status = StatusDraft
	a.UpdatedAt = now
	return nil
}

// ── Archive overlay ───────────────────────────────────────────────────────────

// Archive soft-deletes the application and remembers its status. With
// undecidedOnly set, approved, rejected and cancelled applications are refused.
func (a *Application) Archive(by string, undecidedOnly bool, now time.Time) error {
	if a.IsArchived() {
		return errors.InvalidState("application is already archived").
			WithDetail("application_id", a.ID)
	}
	if undecidedOnly {
		switch a.Status {
		case StatusDraft, StatusSubmitted, StatusUnderReview:
		default:
			return errors.PermissionDenied(fmt.Sprintf("not permitted to archive an application in status %s", a.Status)).
				WithDetail("status", string(a.Status))
		}
	}
	a.Archived = &Archival{At: now, By: by, PreviousStatus: a.Status}
	a.UpdatedAt = now
	return nil
}

// Retrieve clears the overlay. The remembered status is restored only if
// the company can accept another student at this moment; otherwise the
// application returns to draft so it never re-occupies a seat that is gone.
func (a *Application) Retrieve(snap Snapshot, now time.Time) (Status, error) {
	if !a.IsArchived() {
		return "", errors.InvalidState("application is not archived").
			WithDetail("application_id", a.ID)
	}

	restored := a.Archived.PreviousStatus
	if restored == "" {
		restored = StatusDraft
	}
	if !snap.CanAccept() {
		restored = StatusDraft
	}
	if restored == StatusDraft {
		a.Approval = nil
	}

	a.Status = restored
	a.Archived = nil
	a.UpdatedAt = now
	return restored, nil
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	if a.ApplicationDate != nil {
		d := *a.ApplicationDate
		out.ApplicationDate = &d
	}
	if a.Approval != nil {
		ap := *a.Approval
		out.Approval = &ap
	}
	if a.Review != nil {
		r := *a.Review
		out.Review = &r
	}
	if a.Archived != nil {
		ar := *a.Archived
		out.Archived = &ar
	}
	return &out
}
