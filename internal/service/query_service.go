package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// Page size bounds for list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// QueryService serves the read-only list endpoints.
type QueryService struct {
	store  repository.Store
	ledger *CapacityLedger
	policy *policy.Table
}

// NewQueryService creates a new query service.
func NewQueryService(store repository.Store, ledger *CapacityLedger, table *policy.Table) *QueryService {
	return &QueryService{store: store, ledger: ledger, policy: table}
}

// PageMeta describes one page of a list result.
type PageMeta struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

func newPageMeta(page, size, total int) PageMeta {
	pages := (total + size - 1) / size
	return PageMeta{
		Page:        page,
		PageSize:    size,
		TotalPages:  pages,
		TotalCount:  total,
		HasNext:     page < pages,
		HasPrevious: page > 1,
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// CompanyQuery filters the company list. Status filters on the derived
// capacity class.
type CompanyQuery struct {
	Search          string
	Status          string
	IncludeArchived bool
	ArchivedOnly    bool
	Sort            string
	Desc            bool
	Page            int
	PageSize        int
}

// CompanyRow is one company with its occupancy.
type CompanyRow struct {
	Company  *placement.Company  `json:"company"`
	Capacity placement.Occupancy `json:"capacity"`
}

// CompanyPage is one page of companies.
type CompanyPage struct {
	Items []CompanyRow `json:"items"`
	Meta  PageMeta     `json:"pagination"`
}

// ListCompanies returns companies with occupancy from one batched count.
func (s *QueryService) ListCompanies(ctx context.Context, q *CompanyQuery) (*CompanyPage, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Check(actor, policy.CompanyList, ""); err != nil {
		return nil, err
	}
	if q.Sort != "" && !repository.ValidSort(q.Sort, repository.CompanySortKeys) {
		return nil, errors.InvalidInput("sort", "unsupported sort key").
			WithDetail("allowed", repository.CompanySortKeys)
	}
	var status placement.CapacityStatus
	if q.Status != "" {
		var ok bool
		if status, ok = placement.ParseCapacityStatus(q.Status); !ok {
			return nil, errors.InvalidInput("status", "unknown capacity status")
		}
	}
	page, size := normalizePage(q.Page, q.PageSize)

	filter := repository.CompanyFilter{
		Search:          strings.TrimSpace(q.Search),
		IncludeArchived: q.IncludeArchived || status == placement.CapacityArchived,
		ArchivedOnly:    q.ArchivedOnly,
		Sort:            q.Sort,
		Desc:            q.Desc,
	}
	// The capacity class is derived, so that filter runs after the batch
	// count and pagination follows it.
	if status == "" {
		filter.Limit = size
		filter.Offset = (page - 1) * size
	}

	companies, total, err := s.store.ListCompanies(ctx, filter)
	if err != nil {
		return nil, err
	}
	snaps, err := s.ledger.Batch(ctx, companies)
	if err != nil {
		return nil, err
	}

	rows := make([]CompanyRow, 0, len(companies))
	for _, c := range companies {
		snap := snaps[c.ID]
		if status != "" && snap.Status() != status {
			continue
		}
		rows = append(rows, CompanyRow{Company: c, Capacity: snap.Occupancy()})
	}
	if status != "" {
		total = len(rows)
		rows = pageOf(rows, page, size)
	}
	return &CompanyPage{Items: rows, Meta: newPageMeta(page, size, total)}, nil
}

func pageOf[T any](rows []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(rows) {
		return []T{}
	}
	end := min(start+size, len(rows))
	return rows[start:end]
}

// ApplicationQuery filters the application list. From and To bound the
// creation date, inclusive, as YYYY-MM-DD.
type ApplicationQuery struct {
	Search          string
	Statuses        []string
	CompanyID       string
	StudentID       string
	From            string
	To              string
	IncludeArchived bool
	ArchivedOnly    bool
	Sort            string
	Desc            bool
	Page            int
	PageSize        int
}

// ApplicationPage is one page of applications.
type ApplicationPage struct {
	Items []*placement.Application `json:"items"`
	Meta  PageMeta                 `json:"pagination"`
}

// ListApplications lists applications. Students only ever see their own.
func (s *QueryService) ListApplications(ctx context.Context, q *ApplicationQuery) (*ApplicationPage, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	studentID := q.StudentID
	scope := s.policy.Grant(actor, policy.ApplicationList)
	if scope == policy.ScopeOwn && studentID == "" {
		studentID = actor.ID
	}
	if _, err := s.policy.Check(actor, policy.ApplicationList, studentID); err != nil {
		return nil, err
	}
	if q.Sort != "" && !repository.ValidSort(q.Sort, repository.ApplicationSortKeys) {
		return nil, errors.InvalidInput("sort", "unsupported sort key").
			WithDetail("allowed", repository.ApplicationSortKeys)
	}

	statuses := make([]placement.Status, 0, len(q.Statuses))
	for _, raw := range q.Statuses {
		st, err := placement.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}

	var from, to *time.Time
	if q.From != "" {
		d, err := placement.ParseDate("from", q.From)
		if err != nil {
			return nil, err
		}
		from = &d
	}
	if q.To != "" {
		d, err := placement.ParseDate("to", q.To)
		if err != nil {
			return nil, err
		}
		d = d.AddDate(0, 0, 1)
		to = &d
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, errors.InvalidInput("to", "date range end must not be before its start")
	}

	page, size := normalizePage(q.Page, q.PageSize)
	apps, total, err := s.store.ListApplications(ctx, repository.ApplicationFilter{
		Search:          strings.TrimSpace(q.Search),
		Statuses:        statuses,
		CompanyID:       q.CompanyID,
		StudentID:       studentID,
		From:            from,
		To:              to,
		IncludeArchived: q.IncludeArchived,
		ArchivedOnly:    q.ArchivedOnly,
		Sort:            q.Sort,
		Desc:            q.Desc,
		Limit:           size,
		Offset:          (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	return &ApplicationPage{Items: apps, Meta: newPageMeta(page, size, total)}, nil
}
