package placement

import (
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

// Proposed training hours bounds, inclusive.
const (
	MinProposedHours = 240
	MaxProposedHours = 1000
)

// DateLayout is the wire format for proposed dates.
const DateLayout = "2006-01-02"

// ParseDate parses a proposed date.
func ParseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, errors.InvalidInput(field, "invalid date format, expected YYYY-MM-DD")
	}
	return d, nil
}

// ValidateProposal checks the placement window and hours.
func ValidateProposal(start, end time.Time, hours int) error {
	if hours < MinProposedHours || hours > MaxProposedHours {
		return errors.InvalidInput("proposed_hours",
			fmt.Sprintf("proposed hours must be between %d and %d", MinProposedHours, MaxProposedHours)).
			WithDetail("proposed_hours", hours)
	}
	if !end.After(start) {
		return errors.InvalidInput("proposed_end_date", "end date must be after start date")
	}
	return nil
}
