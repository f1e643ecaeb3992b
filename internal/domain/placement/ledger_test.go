package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func slots(n int) *int { return &n }

func TestSnapshotStatus(t *testing.T) {
	tests := []struct {
		name      string
		snap      Snapshot
		status    CapacityStatus
		remaining int
		bounded   bool
		accept    bool
	}{
		{"unbounded", Snapshot{FilledSlots: 40}, CapacityAvailable, 0, false, true},
		{"fresh single slot", Snapshot{AvailableSlots: slots(1)}, CapacityAvailable, 1, true, true},
		{"full", Snapshot{AvailableSlots: slots(1), FilledSlots: 1}, CapacityFull, 0, true, false},
		{"limited", Snapshot{AvailableSlots: slots(5), FilledSlots: 3}, CapacityLimited, 2, true, true},
		{"limited one left", Snapshot{AvailableSlots: slots(5), FilledSlots: 4}, CapacityLimited, 1, true, true},
		{"available", Snapshot{AvailableSlots: slots(5), FilledSlots: 2}, CapacityAvailable, 3, true, true},
		{"zero capacity", Snapshot{AvailableSlots: slots(0)}, CapacityFull, 0, true, false},
		{"overfilled clamps", Snapshot{AvailableSlots: slots(2), FilledSlots: 3}, CapacityFull, 0, true, false},
		{"archived", Snapshot{AvailableSlots: slots(5), Archived: true}, CapacityArchived, 0, true, false},
		{"archived unbounded", Snapshot{Archived: true}, CapacityArchived, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.snap.Status())
			remaining, bounded := tt.snap.RemainingSlots()
			assert.Equal(t, tt.remaining, remaining)
			assert.Equal(t, tt.bounded, bounded)
			assert.Equal(t, tt.accept, tt.snap.CanAccept())
		})
	}
}

func TestUtilizationRate(t *testing.T) {
	assert.InDelta(t, 75.0, Snapshot{AvailableSlots: slots(4), FilledSlots: 3}.UtilizationRate(), 0.001)
	assert.Equal(t, 0.0, Snapshot{FilledSlots: 9}.UtilizationRate())
	assert.Equal(t, 100.0, Snapshot{AvailableSlots: slots(0)}.UtilizationRate())
}

func TestOccupancy(t *testing.T) {
	o := Snapshot{CompanyID: "c-1", AvailableSlots: slots(3), FilledSlots: 1}.Occupancy()
	assert.Equal(t, "c-1", o.CompanyID)
	if assert.NotNil(t, o.RemainingSlots) {
		assert.Equal(t, 2, *o.RemainingSlots)
	}
	assert.Equal(t, CapacityLimited, o.Status)

	unbounded := Snapshot{CompanyID: "c-2"}.Occupancy()
	assert.Nil(t, unbounded.RemainingSlots)
	assert.Equal(t, CapacityAvailable, unbounded.Status)
}

func TestCompanySnapshotCopiesSlots(t *testing.T) {
	c := &Company{ID: "c-1", AvailableSlots: slots(2)}
	snap := c.Snapshot(1)
	*c.AvailableSlots = 10

	assert.Equal(t, 2, *snap.AvailableSlots)
	assert.Equal(t, 1, snap.FilledSlots)
}

func TestParseCapacityStatus(t *testing.T) {
	s, ok := ParseCapacityStatus("Full")
	assert.True(t, ok)
	assert.Equal(t, CapacityFull, s)

	_, ok = ParseCapacityStatus("full")
	assert.False(t, ok)
}
