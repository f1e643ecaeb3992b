package placement

import "time"

// Company hosts OJT students. Occupancy is never stored on it.
type Company struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Address        string           `json:"address,omitempty"`
	ContactPerson  string           `json:"contact_person,omitempty"`
	ContactEmail   string           `json:"contact_email,omitempty"`
	ContactPhone   string           `json:"contact_phone,omitempty"`
	AvailableSlots *int             `json:"available_slots"`
	Archived       *CompanyArchival `json:"archived,omitempty"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CompanyArchival records a soft delete.
type CompanyArchival struct {
	At time.Time `json:"at"`
	By string    `json:"by"`
}

func (c *Company) IsArchived() bool {
	return c.Archived != nil
}

// Snapshot builds the ledger view for the given approved count.
func (c *Company) Snapshot(filled int) Snapshot {
	var slots *int
	if c.AvailableSlots != nil {
		n := *c.AvailableSlots
		slots = &n
	}
	return Snapshot{
		CompanyID:      c.ID,
		AvailableSlots: slots,
		FilledSlots:    filled,
		Archived:       c.IsArchived(),
	}
}

// Clone returns a deep copy.
func (c *Company) Clone() *Company {
	if c == nil {
		return nil
	}
	out := *c
	if c.AvailableSlots != nil {
		n := *c.AvailableSlots
		out.AvailableSlots = &n
	}
	if c.Archived != nil {
		a := *c.Archived
		out.Archived = &a
	}
	return &out
}
