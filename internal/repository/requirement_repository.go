package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ojt-placements/internal/database"
	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

const requirementColumns = `
	id, application_id, requirement_type, file_ref, is_submitted, submitted_at,
	verified_by, verified_at, verification_notes, created_at, updated_at
`

// GetRequirement retrieves a requirement by ID.
func (r queries) GetRequirement(ctx context.Context, id string) (*placement.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE id = $1`
	req, err := scanRequirement(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("requirement", id)
	}
	if err != nil {
		return nil, database.MapError(err, "failed to get requirement")
	}
	return req, nil
}

// ListRequirements returns an application's requirements by type.
func (r queries) ListRequirements(ctx context.Context, applicationID string) ([]*placement.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE application_id = $1 ORDER BY requirement_type`
	rows, err := r.q.Query(ctx, query, applicationID)
	if err != nil {
		return nil, database.MapError(err, "failed to list requirements")
	}
	defer rows.Close()

	reqs := make([]*placement.Requirement, 0)
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, database.MapError(err, "failed to scan requirement")
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapError(err, "failed to list requirements")
	}
	return reqs, nil
}

// UpsertRequirement replaces the file for an existing type or inserts a new
// row. The existing row is locked so concurrent attaches of one type
// serialize.
func (r queries) UpsertRequirement(ctx context.Context, req *placement.Requirement) (string, error) {
	var existingID, previousRef string
	var createdAt time.Time
	err := r.q.QueryRow(ctx, `
		SELECT id, file_ref, created_at
		FROM requirements
		WHERE application_id = $1 AND requirement_type = $2
		FOR UPDATE
	`, req.ApplicationID, string(req.Type)).Scan(&existingID, &previousRef, &createdAt)

	switch {
	case stderrors.Is(err, pgx.ErrNoRows):
		_, err = r.q.Exec(ctx, `
			INSERT INTO requirements (id, application_id, requirement_type, file_ref,
			                          is_submitted, submitted_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, req.ID, req.ApplicationID, string(req.Type), req.FileRef,
			req.Submitted, req.SubmittedAt, req.CreatedAt)
		if err != nil {
			return "", database.MapError(err, "failed to create requirement")
		}
		return "", nil

	case err != nil:
		return "", database.MapError(err, "failed to look up requirement")
	}

	req.ID = existingID
	req.CreatedAt = createdAt
	_, err = r.q.Exec(ctx, `
		UPDATE requirements
		SET file_ref = $2,
		    is_submitted = $3,
		    submitted_at = $4,
		    verified_by = NULL,
		    verified_at = NULL,
		    verification_notes = NULL,
		    updated_at = $5
		WHERE id = $1
	`, existingID, req.FileRef, req.Submitted, req.SubmittedAt, req.UpdatedAt)
	if err != nil {
		return "", database.MapError(err, "failed to replace requirement")
	}
	return previousRef, nil
}

// UpdateRequirement writes submission and verification state.
func (r queries) UpdateRequirement(ctx context.Context, req *placement.Requirement) error {
	var verifiedBy, verificationNotes *string
	var verifiedAt *time.Time
	if req.Verification != nil {
		verifiedBy = &req.Verification.By
		verifiedAt = &req.Verification.At
		verificationNotes = nullable(req.Verification.Notes)
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE requirements
		SET file_ref = $2,
		    is_submitted = $3,
		    submitted_at = $4,
		    verified_by = $5,
		    verified_at = $6,
		    verification_notes = $7,
		    updated_at = $8
		WHERE id = $1
	`, req.ID, req.FileRef, req.Submitted, req.SubmittedAt,
		verifiedBy, verifiedAt, verificationNotes, req.UpdatedAt)
	if err != nil {
		return database.MapError(err, "failed to update requirement")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("requirement", req.ID)
	}
	return nil
}

// DeleteRequirement hard-deletes one requirement.
func (r queries) DeleteRequirement(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM requirements WHERE id = $1`, id)
	if err != nil {
		return database.MapError(err, "failed to delete requirement")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("requirement", id)
	}
	return nil
}

func scanRequirement(sc scanner) (*placement.Requirement, error) {
	req := &placement.Requirement{}
	var reqType string
	var verifiedBy, verificationNotes *string
	var verifiedAt *time.Time

	err := sc.Scan(
		&req.ID,
		&req.ApplicationID,
		&reqType,
		&req.FileRef,
		&req.Submitted,
		&req.SubmittedAt,
		&verifiedBy,
		&verifiedAt,
		&verificationNotes,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Type = placement.RequirementType(reqType)
	if verifiedBy != nil && verifiedAt != nil {
		req.Verification = &placement.Verification{By: *verifiedBy, At: *verifiedAt, Notes: deref(verificationNotes)}
	}
	return req, nil
}
