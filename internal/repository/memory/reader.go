package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// source is the row view a reader works over: committed state for the
// store, committed plus staged state for a transaction.
type source interface {
	company(id string) *placement.Company
	application(id string) *placement.Application
	requirement(id string) *placement.Requirement
	allCompanies() []*placement.Company
	allApplications() []*placement.Application
	allRequirements() []*placement.Requirement
}

// reader implements repository.Reader over a source. Every returned row is
// a copy.
type reader struct {
	src source
}

func (r reader) GetCompany(_ context.Context, id string) (*placement.Company, error) {
	c := r.src.company(id)
	if c == nil {
		return nil, errors.NotFound("company", id)
	}
	return c.Clone(), nil
}

func (r reader) ListCompanies(_ context.Context, f repository.CompanyFilter) ([]*placement.Company, int, error) {
	var out []*placement.Company
	for _, c := range r.src.allCompanies() {
		switch {
		case f.ArchivedOnly && !c.IsArchived():
			continue
		case !f.ArchivedOnly && !f.IncludeArchived && c.IsArchived():
			continue
		}
		if f.Search != "" && !containsFold(f.Search, c.Name, c.Address, c.ContactPerson) {
			continue
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b *placement.Company) int {
		var c int
		switch f.Sort {
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "available_slots":
			if n := nullsLast(a.AvailableSlots == nil, b.AvailableSlots == nil); n != 0 {
				return n
			}
			if a.AvailableSlots != nil {
				c = cmp.Compare(*a.AvailableSlots, *b.AvailableSlots)
			}
		default:
			c = strings.Compare(a.Name, b.Name)
		}
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(out)
	page := paginate(out, f.Limit, f.Offset)
	clones := make([]*placement.Company, len(page))
	for i, c := range page {
		clones[i] = c.Clone()
	}
	return clones, total, nil
}

func (r reader) GetApplication(_ context.Context, id string) (*placement.Application, error) {
	a := r.src.application(id)
	if a == nil {
		return nil, errors.NotFound("application", id)
	}
	return a.Clone(), nil
}

func (r reader) FindActiveApplication(_ context.Context, studentID, companyID string) (*placement.Application, error) {
	for _, a := range r.src.allApplications() {
		if a.StudentID == studentID && a.CompanyID == companyID && !a.IsArchived() {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (r reader) ListApplications(_ context.Context, f repository.ApplicationFilter) ([]*placement.Application, int, error) {
	var names map[string]string
	if f.Search != "" {
		names = make(map[string]string)
		for _, c := range r.src.allCompanies() {
			names[c.ID] = c.Name
		}
	}

	var out []*placement.Application
	for _, a := range r.src.allApplications() {
		switch {
		case f.ArchivedOnly && !a.IsArchived():
			continue
		case !f.ArchivedOnly && !f.IncludeArchived && a.IsArchived():
			continue
		case f.CompanyID != "" && a.CompanyID != f.CompanyID:
			continue
		case f.StudentID != "" && a.StudentID != f.StudentID:
			continue
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status):
			continue
		case f.From != nil && a.CreatedAt.Before(*f.From):
			continue
		case f.To != nil && !a.CreatedAt.Before(*f.To):
			continue
		}
		if f.Search != "" && !containsFold(f.Search, a.StudentID, a.Skills, a.CoverLetter, names[a.CompanyID]) {
			continue
		}
		out = append(out, a)
	}

	slices.SortFunc(out, func(a, b *placement.Application) int {
		var c int
		switch f.Sort {
		case "application_date":
			if n := nullsLast(a.ApplicationDate == nil, b.ApplicationDate == nil); n != 0 {
				return n
			}
			if a.ApplicationDate != nil {
				c = a.ApplicationDate.Compare(*b.ApplicationDate)
			}
		case "status":
			c = strings.Compare(string(a.Status), string(b.Status))
		case "proposed_start_date":
			c = a.StartDate.Compare(b.StartDate)
		case "student_id":
			c = strings.Compare(a.StudentID, b.StudentID)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(out)
	page := paginate(out, f.Limit, f.Offset)
	clones := make([]*placement.Application, len(page))
	for i, a := range page {
		clones[i] = a.Clone()
	}
	return clones, total, nil
}

func (r reader) ListPending(_ context.Context, companyID string) ([]*placement.Application, error) {
	var out []*placement.Application
	for _, a := range r.src.allApplications() {
		if a.CompanyID == companyID && !a.IsArchived() && a.Status.Pending() {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *placement.Application) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r reader) CountApproved(_ context.Context, companyID string) (int, error) {
	n := 0
	for _, a := range r.src.allApplications() {
		if a.CompanyID == companyID && a.Occupies() {
			n++
		}
	}
	return n, nil
}

func (r reader) CountApprovedByCompany(_ context.Context, companyIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(companyIDs))
	for _, a := range r.src.allApplications() {
		if a.Occupies() && slices.Contains(companyIDs, a.CompanyID) {
			counts[a.CompanyID]++
		}
	}
	return counts, nil
}

func (r reader) GetRequirement(_ context.Context, id string) (*placement.Requirement, error) {
	req := r.src.requirement(id)
	if req == nil {
		return nil, errors.NotFound("requirement", id)
	}
	return req.Clone(), nil
}

func (r reader) ListRequirements(_ context.Context, applicationID string) ([]*placement.Requirement, error) {
	out := make([]*placement.Requirement, 0)
	for _, req := range r.src.allRequirements() {
		if req.ApplicationID == applicationID {
			out = append(out, req.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *placement.Requirement) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out, nil
}

func containsFold(needle string, haystacks ...string) bool {
	needle = strings.ToLower(needle)
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

// nullsLast orders nil values after non-nil ones regardless of direction.
func nullsLast(aNil, bNil bool) int {
	switch {
	case aNil && bNil:
		return 0
	case aNil:
		return 1
	case bNil:
		return -1
	}
	return 0
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset > len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
