package placement

// CapacityStatus is the derived availability class of a company.
type CapacityStatus string

const (
	CapacityArchived  CapacityStatus = "Archived"
	CapacityFull      CapacityStatus = "Full"
	CapacityLimited   CapacityStatus = "Limited"
	CapacityAvailable CapacityStatus = "Available"
)

// LimitedThreshold is the largest remaining slot count reported as Limited.
const LimitedThreshold = 2

// ParseCapacityStatus parses a status name, case-sensitively.
func ParseCapacityStatus(s string) (CapacityStatus, bool) {
	switch c := CapacityStatus(s); c {
	case CapacityArchived, CapacityFull, CapacityLimited, CapacityAvailable:
		return c, true
	}
	return "", false
}

// Snapshot is a company's occupancy as counted inside one read. It is never
// stored; callers rebuild it from the live approved count each time.
type Snapshot struct {
	CompanyID      string
	AvailableSlots *int
	FilledSlots    int
	Archived       bool
}

// Bounded reports whether the company has a capacity ceiling.
func (s Snapshot) Bounded() bool {
	return s.AvailableSlots != nil
}

// RemainingSlots returns the free slots and whether the figure is bounded.
// Archived companies have zero remaining slots.
func (s Snapshot) RemainingSlots() (int, bool) {
	if s.Archived {
		return 0, true
	}
	if s.AvailableSlots == nil {
		return 0, false
	}
	remaining := *s.AvailableSlots - s.FilledSlots
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CanAccept reports whether one more application may be approved.
func (s Snapshot) CanAccept() bool {
	if s.Archived {
		return false
	}
	remaining, bounded := s.RemainingSlots()
	return !bounded || remaining > 0
}

// Status classifies the snapshot. Limited applies only once at least one
// slot has been filled, so a fresh small company reads as Available.
func (s Snapshot) Status() CapacityStatus {
	if s.Archived {
		return CapacityArchived
	}
	remaining, bounded := s.RemainingSlots()
	switch {
	case !bounded:
		return CapacityAvailable
	case remaining == 0:
		return CapacityFull
	case remaining <= LimitedThreshold && s.FilledSlots > 0:
		return CapacityLimited
	default:
		return CapacityAvailable
	}
}

// UtilizationRate is filled/available as a percentage. Unbounded companies
// report 0 and a zero-capacity company reports 100.
func (s Snapshot) UtilizationRate() float64 {
	if s.AvailableSlots == nil {
		return 0
	}
	if *s.AvailableSlots == 0 {
		return 100
	}
	return float64(s.FilledSlots) / float64(*s.AvailableSlots) * 100
}

// Occupancy is the serializable view of a Snapshot.
type Occupancy struct {
	CompanyID       string         `json:"company_id"`
	AvailableSlots  *int           `json:"available_slots"`
	FilledSlots     int            `json:"filled_slots"`
	RemainingSlots  *int           `json:"remaining_slots"`
	UtilizationRate float64        `json:"utilization_rate"`
	Status          CapacityStatus `json:"status"`
}

// Occupancy renders the derived figures. RemainingSlots is nil when unbounded.
func (s Snapshot) Occupancy() Occupancy {
	o := Occupancy{
		CompanyID:       s.CompanyID,
		AvailableSlots:  s.AvailableSlots,
		FilledSlots:     s.FilledSlots,
		UtilizationRate: s.UtilizationRate(),
		Status:          s.Status(),
	}
	if remaining, bounded := s.RemainingSlots(); bounded {
		o.RemainingSlots = &remaining
	}
	return o
}

// Details returns the authoritative figures attached to capacity errors.
func (s Snapshot) Details() map[string]any {
	d := map[string]any{
		"company_id":   s.CompanyID,
		"filled_slots": s.FilledSlots,
		"status":       string(s.Status()),
	}
	if s.AvailableSlots != nil {
		d["available_slots"] = *s.AvailableSlots
	}
	if remaining, bounded := s.RemainingSlots(); bounded {
		d["remaining_slots"] = remaining
	}
	return d
}
