package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ojt-placements/internal/database"
	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

const activeApplicationConstraint = "applications_active_student_company_key"

const applicationColumns = `
	a.id, a.student_id, a.company_id, a.status,
	a.proposed_start_date, a.proposed_end_date, a.proposed_hours,
	a.cover_letter, a.skills, a.application_date,
	a.approved_by, a.approved_at, a.approval_notes, a.approved_from,
	a.reviewed_by, a.reviewed_at, a.review_notes, a.rejection_reason,
	a.archived_at, a.archived_by, a.previous_status,
	a.created_at, a.updated_at
`

var applicationSortColumns = map[string]string{
	"created_at":          "a.created_at",
	"application_date":    "a.application_date",
	"status":              "a.status",
	"proposed_start_date": "a.proposed_start_date",
	"student_id":          "a.student_id",
}

// GetApplication retrieves an application by ID.
func (r queries) GetApplication(ctx context.Context, id string) (*placement.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE a.id = $1`
	return r.oneApplication(ctx, query, id)
}

// LockApplication retrieves an application and holds its row lock.
func (r queries) LockApplication(ctx context.Context, id string) (*placement.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE a.id = $1 FOR UPDATE`
	return r.oneApplication(ctx, query, id)
}

func (r queries) oneApplication(ctx context.Context, query, id string) (*placement.Application, error) {
	a, err := scanApplication(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, database.MapError(err, "failed to get application")
	}
	return a, nil
}

// FindActiveApplication returns the student's non-archived application for
// the company, or nil.
func (r queries) FindActiveApplication(ctx context.Context, studentID, companyID string) (*placement.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.student_id = $1 AND a.company_id = $2 AND a.archived_at IS NULL
	`
	a, err := scanApplication(r.q.QueryRow(ctx, query, studentID, companyID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err, "failed to find active application")
	}
	return a, nil
}

// ListPending returns the company's non-archived applications still
// competing for a slot, oldest first.
func (r queries) ListPending(ctx context.Context, companyID string) ([]*placement.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.company_id = $1
		  AND a.archived_at IS NULL
		  AND a.status IN ('submitted', 'under_review')
		ORDER BY a.created_at, a.id
	`
	rows, err := r.q.Query(ctx, query, companyID)
	if err != nil {
		return nil, database.MapError(err, "failed to list pending applications")
	}
	defer rows.Close()
	return scanApplications(rows)
}

// ListApplications retrieves applications with filtering and pagination.
func (r queries) ListApplications(ctx context.Context, f ApplicationFilter) ([]*placement.Application, int, error) {
	from := ` FROM applications a JOIN companies c ON c.id = a.company_id`
	where := " WHERE 1=1"
	args := []any{}
	argCount := 1

	switch {
	case f.ArchivedOnly:
		where += " AND a.archived_at IS NOT NULL"
	case !f.IncludeArchived:
		where += " AND a.archived_at IS NULL"
	}

	if f.CompanyID != "" {
		where += fmt.Sprintf(" AND a.company_id = $%d", argCount)
		args = append(args, f.CompanyID)
		argCount++
	}

	if f.StudentID != "" {
		where += fmt.Sprintf(" AND a.student_id = $%d", argCount)
		args = append(args, f.StudentID)
		argCount++
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where += fmt.Sprintf(" AND a.status = ANY($%d)", argCount)
		args = append(args, statuses)
		argCount++
	}

	if f.From != nil {
		where += fmt.Sprintf(" AND a.created_at >= $%d", argCount)
		args = append(args, *f.From)
		argCount++
	}

	if f.To != nil {
		where += fmt.Sprintf(" AND a.created_at < $%d", argCount)
		args = append(args, *f.To)
		argCount++
	}

	if f.Search != "" {
		where += fmt.Sprintf(" AND (a.student_id ILIKE $%d OR a.skills ILIKE $%d OR a.cover_letter ILIKE $%d OR c.name ILIKE $%d)",
			argCount, argCount, argCount, argCount)
		args = append(args, "%"+f.Search+"%")
		argCount++
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, database.MapError(err, "failed to count applications")
	}

	query := `SELECT ` + applicationColumns + from + where +
		orderByQualified(applicationSortColumns, f.Sort, f.Desc, "created_at")
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, database.MapError(err, "failed to list applications")
	}
	defer rows.Close()

	apps, err := scanApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// CountApproved counts the approved, non-archived applications of a company.
func (r queries) CountApproved(ctx context.Context, companyID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE company_id = $1 AND status = 'approved' AND archived_at IS NULL
	`
	var n int
	if err := r.q.QueryRow(ctx, query, companyID).Scan(&n); err != nil {
		return 0, database.MapError(err, "failed to count approved applications")
	}
	return n, nil
}

// CountApprovedByCompany counts approved applications for many companies at once.
func (r queries) CountApprovedByCompany(ctx context.Context, companyIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(companyIDs))
	if len(companyIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT company_id, COUNT(*)
		FROM applications
		WHERE company_id = ANY($1) AND status = 'approved' AND archived_at IS NULL
		GROUP BY company_id
	`
	rows, err := r.q.Query(ctx, query, companyIDs)
	if err != nil {
		return nil, database.MapError(err, "failed to count approved applications")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, database.MapError(err, "failed to scan approved count")
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapError(err, "failed to count approved applications")
	}
	return counts, nil
}

// CreateApplication inserts an application.
func (r queries) CreateApplication(ctx context.Context, a *placement.Application) error {
	query := `
		INSERT INTO applications (id, student_id, company_id, status,
		                          proposed_start_date, proposed_end_date, proposed_hours,
		                          cover_letter, skills, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.StudentID, a.CompanyID, string(a.Status),
		a.StartDate, a.EndDate, a.ProposedHours,
		a.CoverLetter, a.Skills, a.CreatedAt,
	)
	if err != nil {
		return applicationWriteError(err, a, "failed to create application")
	}
	return nil
}

// UpdateApplication writes the full application state, overlays included.
func (r queries) UpdateApplication(ctx context.Context, a *placement.Application) error {
	var (
		approvedBy, approvalNotes, approvedFrom  *string
		reviewedBy, reviewNotes, rejectionReason *string
		archivedBy, previousStatus               *string
		approvedAt, reviewedAt, archivedAt       *time.Time
	)
	if a.Approval != nil {
		approvedBy = &a.Approval.By
		approvedAt = &a.Approval.At
		approvalNotes = nullable(a.Approval.Notes)
		approvedFrom = nullable(string(a.Approval.From))
	}
	if a.Review != nil {
		reviewedBy = &a.Review.By
		reviewedAt = &a.Review.At
		reviewNotes = nullable(a.Review.Notes)
		rejectionReason = nullable(a.Review.RejectionReason)
	}
	if a.Archived != nil {
		archivedAt = &a.Archived.At
		archivedBy = &a.Archived.By
		prev := string(a.Archived.PreviousStatus)
		previousStatus = &prev
	}

	query := `
		UPDATE applications
		SET company_id = $2,
		    status = $3,
		    proposed_start_date = $4,
		    proposed_end_date = $5,
		    proposed_hours = $6,
		    cover_letter = $7,
		    skills = $8,
		    application_date = $9,
		    approved_by = $10,
		    approved_at = $11,
		    approval_notes = $12,
		    approved_from = $13,
		    reviewed_by = $14,
		    reviewed_at = $15,
		    review_notes = $16,
		    rejection_reason = $17,
		    archived_at = $18,
		    archived_by = $19,
		    previous_status = $20,
		    updated_at = $21
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query,
		a.ID, a.CompanyID, string(a.Status),
		a.StartDate, a.EndDate, a.ProposedHours,
		a.CoverLetter, a.Skills, a.ApplicationDate,
		approvedBy, approvedAt, approvalNotes, approvedFrom,
		reviewedBy, reviewedAt, reviewNotes, rejectionReason,
		archivedAt, archivedBy, previousStatus,
		a.UpdatedAt,
	)
	if err != nil {
		return applicationWriteError(err, a, "failed to update application")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("application", a.ID)
	}
	return nil
}

// DeleteApplication hard-deletes an application; requirements cascade.
func (r queries) DeleteApplication(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return database.MapError(err, "failed to delete application")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("application", id)
	}
	return nil
}

func applicationWriteError(err error, a *placement.Application, message string) error {
	if database.IsUniqueViolation(err, activeApplicationConstraint) {
		return errors.New(errors.ErrCodeDuplicateApplication, "student already has an active application for this company").
			WithDetail("student_id", a.StudentID).
			WithDetail("company_id", a.CompanyID)
	}
	return database.MapError(err, message)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanApplications(rows pgx.Rows) ([]*placement.Application, error) {
	apps := make([]*placement.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, database.MapError(err, "failed to scan application")
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapError(err, "failed to read applications")
	}
	return apps, nil
}

func scanApplication(sc scanner) (*placement.Application, error) {
	a := &placement.Application{}
	var (
		status                                   string
		approvedBy, approvalNotes, approvedFrom  *string
		reviewedBy, reviewNotes, rejectionReason *string
		archivedBy, previousStatus               *string
		approvedAt, reviewedAt, archivedAt       *time.Time
	)

	err := sc.Scan(
		&a.ID,
		&a.StudentID,
		&a.CompanyID,
		&status,
		&a.StartDate,
		&a.EndDate,
		&a.ProposedHours,
		&a.CoverLetter,
		&a.Skills,
		&a.ApplicationDate,
		&approvedBy,
		&approvedAt,
		&approvalNotes,
		&approvedFrom,
		&reviewedBy,
		&reviewedAt,
		&reviewNotes,
		&rejectionReason,
		&archivedAt,
		&archivedBy,
		&previousStatus,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = placement.Status(status)
	if approvedBy != nil && approvedAt != nil {
		a.Approval = &placement.Approval{
			By:    *approvedBy,
			At:    *approvedAt,
			Notes: deref(approvalNotes),
			From:  placement.Status(deref(approvedFrom)),
		}
	}
	if reviewedBy != nil && reviewedAt != nil {
		a.Review = &placement.Review{
			By:              *reviewedBy,
			At:              *reviewedAt,
			Notes:           deref(reviewNotes),
			RejectionReason: deref(rejectionReason),
		}
	}
	if archivedAt != nil {
		a.Archived = &placement.Archival{
			At:             *archivedAt,
			By:             deref(archivedBy),
			PreviousStatus: placement.Status(deref(previousStatus)),
		}
	}
	return a, nil
}

func orderByQualified(columns map[string]string, key string, desc bool, fallback string) string {
	col, ok := columns[key]
	if !ok {
		col = columns[fallback]
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, a.id ASC", col, dir)
}
