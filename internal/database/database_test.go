package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Code
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, errors.ErrCodeConflict},
		{"serialization", &pgconn.PgError{Code: "40001"}, errors.ErrCodeConflict},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), errors.ErrCodeConflict},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "x"}, errors.ErrCodeConflict},
		{"deadline", context.DeadlineExceeded, errors.ErrCodeConflict},
		{"other pg", &pgconn.PgError{Code: "42P01"}, errors.ErrCodeInternal},
		{"plain", stderrors.New("boom"), errors.ErrCodeInternal},
		{"already coded", errors.NotFound("company", "c"), errors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.CodeOf(MapError(tt.err, "op failed")))
		})
	}

	assert.NoError(t, MapError(nil, "noop"))
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "applications_active_student_company_key"})

	assert.True(t, IsUniqueViolation(err, "applications_active_student_company_key"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "requirements_application_type_key"))
	assert.False(t, IsUniqueViolation(stderrors.New("x"), ""))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "applications_active_student_company_key")
	assert.Contains(t, schemaSQL, "WHERE archived_at IS NULL")
}
