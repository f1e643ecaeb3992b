package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
)

// Sort keys accepted by list queries.
var (
	CompanySortKeys     = []string{"name", "created_at", "available_slots"}
	ApplicationSortKeys = []string{"created_at", "application_date", "status", "proposed_start_date", "student_id"}
)

// CompanyFilter narrows ListCompanies. Limit 0 returns every match.
type CompanyFilter struct {
	Search          string
	IncludeArchived bool
	ArchivedOnly    bool
	Sort            string
	Desc            bool
	Limit           int
	Offset          int
}

// ApplicationFilter narrows ListApplications. Limit 0 returns every match.
type ApplicationFilter struct {
	Search          string
	Statuses        []placement.Status
	CompanyID       string
	StudentID       string
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
	ArchivedOnly    bool
	Sort            string
	Desc            bool
	Limit           int
	Offset          int
}

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	GetCompany(ctx context.Context, id string) (*placement.Company, error)
	ListCompanies(ctx context.Context, f CompanyFilter) ([]*placement.Company, int, error)

	GetApplication(ctx context.Context, id string) (*placement.Application, error)
	// FindActiveApplication returns the non-archived application for the
	// pair, or nil when there is none.
	FindActiveApplication(ctx context.Context, studentID, companyID string) (*placement.Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*placement.Application, int, error)
	// ListPending returns non-archived submitted and under_review
	// applications for a company.
	ListPending(ctx context.Context, companyID string) ([]*placement.Application, error)

	// CountApproved counts non-archived approved applications.
	CountApproved(ctx context.Context, companyID string) (int, error)
	CountApprovedByCompany(ctx context.Context, companyIDs []string) (map[string]int, error)

	GetRequirement(ctx context.Context, id string) (*placement.Requirement, error)
	ListRequirements(ctx context.Context, applicationID string) ([]*placement.Requirement, error)
}

// Tx is a unit of work. Lock methods hold the row until commit or rollback;
// callers lock a company before any of its applications.
type Tx interface {
	Reader

	LockCompany(ctx context.Context, id string) (*placement.Company, error)
	LockApplication(ctx context.Context, id string) (*placement.Application, error)

	CreateCompany(ctx context.Context, c *placement.Company) error
	UpdateCompany(ctx context.Context, c *placement.Company) error

	CreateApplication(ctx context.Context, a *placement.Application) error
	UpdateApplication(ctx context.Context, a *placement.Application) error
	DeleteApplication(ctx context.Context, id string) error

	// UpsertRequirement inserts or replaces the requirement of r.Type for
	// r.ApplicationID and returns the replaced file reference, if any.
	UpsertRequirement(ctx context.Context, r *placement.Requirement) (string, error)
	UpdateRequirement(ctx context.Context, r *placement.Requirement) error
	DeleteRequirement(ctx context.Context, id string) error
}

// Store is the persistence boundary for the placement core.
type Store interface {
	Reader
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID           int64          `json:"id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PerformedAt  time.Time      `json:"performed_at"`
}

// ValidSort reports whether key is one of keys.
func ValidSort(key string, keys []string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
