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

const companyColumns = `
	id, name, address, contact_person, contact_email, contact_phone,
	available_slots, archived_at, archived_by, created_by, created_at, updated_at
`

var companySortColumns = map[string]string{
	"name":            "name",
	"created_at":      "created_at",
	"available_slots": "available_slots",
}

// GetCompany retrieves a company by ID.
func (r queries) GetCompany(ctx context.Context, id string) (*placement.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return r.oneCompany(ctx, query, id)
}

// LockCompany retrieves a company and holds its row lock.
func (r queries) LockCompany(ctx context.Context, id string) (*placement.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1 FOR UPDATE`
	return r.oneCompany(ctx, query, id)
}

func (r queries) oneCompany(ctx context.Context, query, id string) (*placement.Company, error) {
	c, err := scanCompany(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("company", id)
	}
	if err != nil {
		return nil, database.MapError(err, "failed to get company")
	}
	return c, nil
}

// ListCompanies retrieves companies with filtering and pagination.
func (r queries) ListCompanies(ctx context.Context, f CompanyFilter) ([]*placement.Company, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argCount := 1

	switch {
	case f.ArchivedOnly:
		where += " AND archived_at IS NOT NULL"
	case !f.IncludeArchived:
		where += " AND archived_at IS NULL"
	}

	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR address ILIKE $%d OR contact_person ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+f.Search+"%")
		argCount++
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, database.MapError(err, "failed to count companies")
	}

	query := `SELECT ` + companyColumns + ` FROM companies` + where + orderBy(companySortColumns, f.Sort, f.Desc, "name")
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, database.MapError(err, "failed to list companies")
	}
	defer rows.Close()

	companies := make([]*placement.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, database.MapError(err, "failed to scan company")
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, database.MapError(err, "failed to list companies")
	}

	return companies, total, nil
}

// CreateCompany inserts a company.
func (r queries) CreateCompany(ctx context.Context, c *placement.Company) error {
	query := `
		INSERT INTO companies (id, name, address, contact_person, contact_email, contact_phone,
		                       available_slots, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.Name, c.Address, c.ContactPerson, c.ContactEmail, c.ContactPhone,
		c.AvailableSlots, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return database.MapError(err, "failed to create company")
	}
	return nil
}

// UpdateCompany writes every mutable company column.
func (r queries) UpdateCompany(ctx context.Context, c *placement.Company) error {
	var archivedAt *time.Time
	var archivedBy *string
	if c.Archived != nil {
		archivedAt = &c.Archived.At
		archivedBy = &c.Archived.By
	}

	query := `
		UPDATE companies
		SET name = $2,
		    address = $3,
		    contact_person = $4,
		    contact_email = $5,
		    contact_phone = $6,
		    available_slots = $7,
		    archived_at = $8,
		    archived_by = $9,
		    updated_at = $10
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.Name, c.Address, c.ContactPerson, c.ContactEmail, c.ContactPhone,
		c.AvailableSlots, archivedAt, archivedBy, c.UpdatedAt,
	)
	if err != nil {
		return database.MapError(err, "failed to update company")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("company", c.ID)
	}
	return nil
}

func scanCompany(sc scanner) (*placement.Company, error) {
	c := &placement.Company{}
	var slots *int32
	var archivedAt *time.Time
	var archivedBy *string

	err := sc.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.ContactPerson,
		&c.ContactEmail,
		&c.ContactPhone,
		&slots,
		&archivedAt,
		&archivedBy,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if slots != nil {
		n := int(*slots)
		c.AvailableSlots = &n
	}
	if archivedAt != nil {
		c.Archived = &placement.CompanyArchival{At: *archivedAt, By: deref(archivedBy)}
	}
	return c, nil
}

// orderBy renders a whitelisted ORDER BY clause with id as the tiebreaker.
func orderBy(columns map[string]string, key string, desc bool, fallback string) string {
	col, ok := columns[key]
	if !ok {
		col = columns[fallback]
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, id ASC", col, dir)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
