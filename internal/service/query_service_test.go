package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

func TestListCompaniesWithDerivedStatus(t *testing.T) {
	f := newFixture(t)
	alpha := f.company(t, "Alpha", intPtr(1))
	beta := f.company(t, "Beta", nil)
	gamma := f.company(t, "Gamma", intPtr(4))
	_, err := f.companies.Archive(staff, gamma)
	require.NoError(t, err)

	a := f.submitted(t, "stu-1", alpha)
	_, err = f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	page, err := f.queries.ListCompanies(asStudent("stu-1"), &CompanyQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, alpha, page.Items[0].Company.ID)
	assert.Equal(t, placement.CapacityFull, page.Items[0].Capacity.Status)
	assert.Equal(t, beta, page.Items[1].Company.ID)
	assert.Equal(t, 2, page.Meta.TotalCount)

	full, err := f.queries.ListCompanies(staff, &CompanyQuery{Status: "Full"})
	require.NoError(t, err)
	require.Len(t, full.Items, 1)
	assert.Equal(t, alpha, full.Items[0].Company.ID)
	assert.Equal(t, 1, full.Meta.TotalCount)

	archived, err := f.queries.ListCompanies(staff, &CompanyQuery{Status: "Archived"})
	require.NoError(t, err)
	require.Len(t, archived.Items, 1)
	assert.Equal(t, gamma, archived.Items[0].Company.ID)

	paged, err := f.queries.ListCompanies(staff, &CompanyQuery{PageSize: 1, Page: 1})
	require.NoError(t, err)
	assert.Len(t, paged.Items, 1)
	assert.Equal(t, PageMeta{Page: 1, PageSize: 1, TotalPages: 2, TotalCount: 2, HasNext: true}, paged.Meta)

	_, err = f.queries.ListCompanies(staff, &CompanyQuery{Sort: "password"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	_, err = f.queries.ListCompanies(staff, &CompanyQuery{Status: "full"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestStudentsListOnlyTheirApplications(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	mine := f.draft(t, "stu-1", c)
	f.draft(t, "stu-2", c)

	page, err := f.queries.ListApplications(asStudent("stu-1"), &ApplicationQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine, page.Items[0].ID)

	_, err = f.queries.ListApplications(asStudent("stu-1"), &ApplicationQuery{StudentID: "stu-2"})
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	all, err := f.queries.ListApplications(staff, &ApplicationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Meta.TotalCount)
	assert.False(t, all.Meta.HasNext)
	assert.False(t, all.Meta.HasPrevious)
}

func TestListApplicationsFilters(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	submitted := f.submitted(t, "stu-1", c)
	f.draft(t, "stu-2", c)

	page, err := f.queries.ListApplications(staff, &ApplicationQuery{Statuses: []string{"submitted"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, submitted, page.Items[0].ID)

	_, err = f.queries.ListApplications(staff, &ApplicationQuery{Statuses: []string{"pending"}})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = f.queries.ListApplications(staff, &ApplicationQuery{From: "2026-02-01", To: "2026-01-01"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	empty, err := f.queries.ListApplications(staff, &ApplicationQuery{To: "2000-01-01"})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.Meta.TotalPages)
}
