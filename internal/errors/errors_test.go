package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("company", "c-1")))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeCapacityExceeded, "company is full"))
	assert.Equal(t, ErrCodeCapacityExceeded, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeCapacityExceeded))
	assert.False(t, Is(nil, ErrCodeInternal))
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeStorage, "failed to store document")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "STORAGE_ERROR: failed to store document: connection reset", err.Error())
}

func TestDetails(t *testing.T) {
	err := New(ErrCodeCapacityExceeded, "no remaining slots").
		WithDetail("remaining_slots", 0).
		WithDetails(map[string]any{"filled_slots": 3, "available_slots": 3})

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, 0, e.Details["remaining_slots"])
	assert.Equal(t, 3, e.Details["filled_slots"])
	assert.Equal(t, 3, e.Details["available_slots"])
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("proposed_hours", "must be between 240 and 1000")
	assert.Equal(t, "proposed_hours", err.Field)
	assert.Equal(t, "INVALID_INPUT: must be between 240 and 1000", err.Error())
}
