package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSort(t *testing.T) {
	assert.True(t, ValidSort("available_slots", CompanySortKeys))
	assert.True(t, ValidSort("application_date", ApplicationSortKeys))
	assert.False(t, ValidSort("name; DROP TABLE companies", CompanySortKeys))
	assert.False(t, ValidSort("", ApplicationSortKeys))
}

func TestOrderByFallsBackForUnknownKey(t *testing.T) {
	assert.Equal(t, " ORDER BY name ASC NULLS LAST, id ASC",
		orderBy(companySortColumns, "bogus", false, "name"))
	assert.Equal(t, " ORDER BY available_slots DESC NULLS LAST, id ASC",
		orderBy(companySortColumns, "available_slots", true, "name"))
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	s := nullable("x")
	if assert.NotNil(t, s) {
		assert.Equal(t, "x", deref(s))
	}
	assert.Equal(t, "", deref(nil))
}
