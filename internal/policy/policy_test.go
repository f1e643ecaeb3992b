package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
)

var (
	student = identity.Actor{ID: "stu-1", Role: identity.RoleStudent}
	staff   = identity.Actor{ID: "staff-1", Role: identity.RoleStaff}
	admin   = identity.Actor{ID: "root", Role: identity.RoleSuperAdmin}
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	scope, err := table.Check(student, ApplicationArchive, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, ScopeOwn, scope)

	_, err = table.Check(student, ApplicationArchive, "stu-2")
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	_, err = table.Check(student, ApplicationApprove, "stu-1")
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	scope, err = table.Check(staff, ApplicationArchive, "stu-2")
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, scope)

	_, err = table.Check(staff, ApplicationDelete, "stu-2")
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	scope, err = table.Check(admin, ApplicationDelete, "")
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, scope)

	_, err = table.Check(identity.Actor{}, CompanyRead, "")
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestAllowed(t *testing.T) {
	table := Default()
	assert.True(t, table.Allowed(student, ApplicationList))
	assert.False(t, table.Allowed(student, CompanyCreate))
	assert.True(t, table.Allowed(admin, Action("anything.at.all")))
	assert.True(t, table.Allowed(staff, ApplicationArchiveDecided))
	assert.False(t, table.Allowed(student, ApplicationArchiveDecided))
}

func TestParseRejectsBadTables(t *testing.T) {
	_, err := Parse([]byte("roles:\n  janitor:\n    company.read: any\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("roles:\n  staff:\n    company.read: sometimes\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("roles: {}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("roles: [\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  staff:\n    company.read: any\n"), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.True(t, table.Allowed(staff, CompanyRead))
	assert.False(t, table.Allowed(staff, CompanyCreate))

	table, err = Load("")
	require.NoError(t, err)
	assert.True(t, table.Allowed(staff, CompanyCreate))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
