package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// CompanyService manages host companies and their capacity.
type CompanyService struct {
	store       repository.Store
	ledger      *CapacityLedger
	coordinator *WorkflowCoordinator
	policy      *policy.Table
	audit       auditor
	log         *logger.Logger
	now         func() time.Time
}

// NewCompanyService creates a new company service.
func NewCompanyService(
	store repository.Store,
	ledger *CapacityLedger,
	coordinator *WorkflowCoordinator,
	table *policy.Table,
	audit AuditLog,
	log *logger.Logger,
) *CompanyService {
	return &CompanyService{
		store:       store,
		ledger:      ledger,
		coordinator: coordinator,
		policy:      table,
		audit:       auditor{log: audit, logger: log},
		log:         log,
		now:         time.Now,
	}
}

// CompanyRequest represents a create company request. Nil AvailableSlots
// means unbounded.
type CompanyRequest struct {
	Name           string
	Address        string
	ContactPerson  string
	ContactEmail   string
	ContactPhone   string
	AvailableSlots *int
}

// UpdateCompanyRequest holds the fields to change. Unbounded clears the
// capacity ceiling and wins over AvailableSlots.
type UpdateCompanyRequest struct {
	Name           *string
	Address        *string
	ContactPerson  *string
	ContactEmail   *string
	ContactPhone   *string
	AvailableSlots *int
	Unbounded      bool
}

// CompanyView is a company with its derived occupancy.
type CompanyView struct {
	Company  *placement.Company  `json:"company"`
	Capacity placement.Occupancy `json:"capacity"`
	Demoted  []string            `json:"demoted,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (s *CompanyService) check(ctx context.Context, action policy.Action) (string, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return "", err
	}
	if _, err := s.policy.Check(actor, action, ""); err != nil {
		return "", err
	}
	return actor.ID, nil
}

func validateCompany(name string, slots *int) error {
	if strings.TrimSpace(name) == "" {
		return errors.InvalidInput("name", "company name is required")
	}
	if slots != nil && *slots < 0 {
		return errors.InvalidInput("available_slots", "available slots cannot be negative")
	}
	return nil
}

// Create registers a company.
func (s *CompanyService) Create(ctx context.Context, req *CompanyRequest) (*CompanyView, error) {
	actorID, err := s.check(ctx, policy.CompanyCreate)
	if err != nil {
		return nil, err
	}
	if err := validateCompany(req.Name, req.AvailableSlots); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	company := &placement.Company{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(req.Name),
		Address:        strings.TrimSpace(req.Address),
		ContactPerson:  strings.TrimSpace(req.ContactPerson),
		ContactEmail:   strings.TrimSpace(req.ContactEmail),
		ContactPhone:   strings.TrimSpace(req.ContactPhone),
		AvailableSlots: req.AvailableSlots,
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		return tx.CreateCompany(ctx, company)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("company_id", company.ID).Str("name", company.Name).Msg("Company created")
	s.audit.record(ctx, actorID, "create", "company", company.ID, "Company created", nil)
	return &CompanyView{Company: company, Capacity: company.Snapshot(0).Occupancy()}, nil
}

// Update edits a company. Capacity may not drop below the approved count;
// dropping it to exactly that count makes the company Full and demotes its
// pending applications.
func (s *CompanyService) Update(ctx context.Context, id string, req *UpdateCompanyRequest) (*CompanyView, error) {
	actorID, err := s.check(ctx, policy.CompanyUpdate)
	if err != nil {
		return nil, err
	}

	var (
		out    *placement.Company
		before placement.CapacityStatus
	)
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCompany(ctx, id)
		if err != nil {
			return err
		}
		prior, err := s.ledger.Within(ctx, tx, c)
		if err != nil {
			return err
		}
		before = prior.Status()
		if req.Name != nil {
			c.Name = strings.TrimSpace(*req.Name)
		}
		if req.Address != nil {
			c.Address = strings.TrimSpace(*req.Address)
		}
		if req.ContactPerson != nil {
			c.ContactPerson = strings.TrimSpace(*req.ContactPerson)
		}
		if req.ContactEmail != nil {
			c.ContactEmail = strings.TrimSpace(*req.ContactEmail)
		}
		if req.ContactPhone != nil {
			c.ContactPhone = strings.TrimSpace(*req.ContactPhone)
		}
		switch {
		case req.Unbounded:
			c.AvailableSlots = nil
		case req.AvailableSlots != nil:
			n := *req.AvailableSlots
			c.AvailableSlots = &n
		}
		if err := validateCompany(c.Name, c.AvailableSlots); err != nil {
			return err
		}

		if c.AvailableSlots != nil {
			snap, err := s.ledger.Within(ctx, tx, c)
			if err != nil {
				return err
			}
			if *c.AvailableSlots < snap.FilledSlots {
				return errors.New(errors.ErrCodeCapacityExceeded, "available slots cannot be lower than filled slots").
					WithDetails(snap.Details())
			}
		}
		c.UpdatedAt = s.now().UTC()
		if err := tx.UpdateCompany(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, actorID, "update", "company", id, "Company updated", nil)
	return s.view(ctx, out, before, "company_update:"+id)
}

// Archive soft-deletes a company. Its applications stay as they are but no
// further approvals are possible.
func (s *CompanyService) Archive(ctx context.Context, id string) (*CompanyView, error) {
	actorID, err := s.check(ctx, policy.CompanyArchive)
	if err != nil {
		return nil, err
	}
	out, err := s.setArchived(ctx, id, func(c *placement.Company, now time.Time) error {
		if c.IsArchived() {
			return errors.InvalidState("company is already archived").WithDetail("company_id", id)
		}
		c.Archived = &placement.CompanyArchival{At: now, By: actorID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.record(ctx, actorID, "archive", "company", id, "Company archived", nil)
	return s.view(ctx, out, "", "")
}

// Restore clears a company's archive flag.
func (s *CompanyService) Restore(ctx context.Context, id string) (*CompanyView, error) {
	actorID, err := s.check(ctx, policy.CompanyRestore)
	if err != nil {
		return nil, err
	}
	out, err := s.setArchived(ctx, id, func(c *placement.Company, _ time.Time) error {
		if !c.IsArchived() {
			return errors.InvalidState("company is not archived").WithDetail("company_id", id)
		}
		c.Archived = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.record(ctx, actorID, "restore", "company", id, "Company restored", nil)
	return s.view(ctx, out, placement.CapacityArchived, "company_restore:"+id)
}

func (s *CompanyService) setArchived(ctx context.Context, id string, fn func(*placement.Company, time.Time) error) (*placement.Company, error) {
	var out *placement.Company
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCompany(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := fn(c, now); err != nil {
			return err
		}
		c.UpdatedAt = now
		if err := tx.UpdateCompany(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Get returns a company with its occupancy.
func (s *CompanyService) Get(ctx context.Context, id string) (*CompanyView, error) {
	if _, err := s.check(ctx, policy.CompanyRead); err != nil {
		return nil, err
	}
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c, "", "")
}

// view reads fresh occupancy and, when trigger is set and the company went
// from before to Full, runs the cascade.
func (s *CompanyService) view(ctx context.Context, c *placement.Company, before placement.CapacityStatus, trigger string) (*CompanyView, error) {
	snap, err := s.ledger.Within(ctx, s.store, c)
	if err != nil {
		return nil, err
	}
	v := &CompanyView{Company: c, Capacity: snap.Occupancy()}
	if trigger == "" || !becameFull(before, snap.Status()) || s.coordinator == nil {
		return v, nil
	}

	demoted, warnings, err := s.coordinator.RunFullCompanyCascade(ctx, c.ID, trigger)
	if err != nil {
		s.log.Error().Err(err).Str("company_id", c.ID).Msg("Full company cascade failed")
		v.Warnings = append(v.Warnings, "cascade failed: "+err.Error())
		return v, nil
	}
	v.Demoted = demoted
	v.Warnings = warnings
	return v, nil
}
