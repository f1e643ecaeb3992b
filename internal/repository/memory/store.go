// Package memory is an in-process Store with the same locking and
// constraint behavior as the Postgres store. It backs local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

// Store keeps committed rows in maps. Committed objects are never mutated
// in place; commits swap in fresh copies, so readers may hold pointers
// obtained under the read lock.
type Store struct {
	reader

	mu           sync.RWMutex
	companies    map[string]*placement.Company
	applications map[string]*placement.Application
	requirements map[string]*placement.Requirement
	commitErr    error

	locks       *keyedLocks
	lockTimeout time.Duration
}

// New creates an empty store. Row locks wait at most lockTimeout.
func New(lockTimeout time.Duration) *Store {
	s := &Store{
		companies:    make(map[string]*placement.Company),
		applications: make(map[string]*placement.Application),
		requirements: make(map[string]*placement.Requirement),
		locks:        newKeyedLocks(),
		lockTimeout:  lockTimeout,
	}
	s.reader = reader{src: s}
	return s
}

// FailNextCommit makes the next commit fail with err after all guards have
// passed. It simulates a storage outage at the last possible moment.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// InTransaction runs fn in a transaction. Staged writes become visible
// only if fn succeeds and the commit passes its constraint checks.
func (s *Store) InTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	t := &tx{
		s:            s,
		held:         make(map[string]bool),
		companies:    make(map[string]*placement.Company),
		applications: make(map[string]*placement.Application),
		requirements: make(map[string]*placement.Requirement),
		deletedApps:  make(map[string]bool),
		deletedReqs:  make(map[string]bool),
	}
	t.reader = reader{src: t}
	defer t.releaseAll()

	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// ── committed source ──────────────────────────────────────────────────────────

func (s *Store) company(id string) *placement.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companies[id]
}

func (s *Store) application(id string) *placement.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applications[id]
}

func (s *Store) requirement(id string) *placement.Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requirements[id]
}

func (s *Store) allCompanies() []*placement.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*placement.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	return out
}

func (s *Store) allApplications() []*placement.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*placement.Application, 0, len(s.applications))
	for _, a := range s.applications {
		out = append(out, a)
	}
	return out
}

func (s *Store) allRequirements() []*placement.Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*placement.Requirement, 0, len(s.requirements))
	for _, r := range s.requirements {
		out = append(out, r)
	}
	return out
}

// ── transaction ───────────────────────────────────────────────────────────────

type tx struct {
	reader

	s    *Store
	held map[string]bool
	keys []string

	companies    map[string]*placement.Company
	applications map[string]*placement.Application
	requirements map[string]*placement.Requirement
	deletedApps  map[string]bool
	deletedReqs  map[string]bool
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	t.keys = append(t.keys, key)
	return nil
}

func (t *tx) releaseAll() {
	for i := len(t.keys) - 1; i >= 0; i-- {
		t.s.locks.release(t.keys[i])
	}
	t.keys = nil
	t.held = map[string]bool{}
}

func (t *tx) company(id string) *placement.Company {
	if c, ok := t.companies[id]; ok {
		return c
	}
	return t.s.company(id)
}

func (t *tx) application(id string) *placement.Application {
	if t.deletedApps[id] {
		return nil
	}
	if a, ok := t.applications[id]; ok {
		return a
	}
	return t.s.application(id)
}

func (t *tx) requirement(id string) *placement.Requirement {
	if t.deletedReqs[id] {
		return nil
	}
	r, ok := t.requirements[id]
	if !ok {
		r = t.s.requirement(id)
	}
	if r == nil || t.deletedApps[r.ApplicationID] {
		return nil
	}
	return r
}

func (t *tx) allCompanies() []*placement.Company {
	base := t.s.allCompanies()
	out := make([]*placement.Company, 0, len(base)+len(t.companies))
	for _, c := range base {
		if _, staged := t.companies[c.ID]; !staged {
			out = append(out, c)
		}
	}
	for _, c := range t.companies {
		out = append(out, c)
	}
	return out
}

func (t *tx) allApplications() []*placement.Application {
	base := t.s.allApplications()
	out := make([]*placement.Application, 0, len(base)+len(t.applications))
	for _, a := range base {
		if _, staged := t.applications[a.ID]; !staged && !t.deletedApps[a.ID] {
			out = append(out, a)
		}
	}
	for _, a := range t.applications {
		out = append(out, a)
	}
	return out
}

func (t *tx) allRequirements() []*placement.Requirement {
	base := t.s.allRequirements()
	out := make([]*placement.Requirement, 0, len(base)+len(t.requirements))
	for _, r := range base {
		if _, staged := t.requirements[r.ID]; staged || t.deletedReqs[r.ID] || t.deletedApps[r.ApplicationID] {
			continue
		}
		out = append(out, r)
	}
	for _, r := range t.requirements {
		if !t.deletedApps[r.ApplicationID] {
			out = append(out, r)
		}
	}
	return out
}

// LockCompany holds the company lock until the transaction ends.
func (t *tx) LockCompany(ctx context.Context, id string) (*placement.Company, error) {
	if err := t.lock(ctx, "company:"+id); err != nil {
		return nil, err
	}
	return t.GetCompany(ctx, id)
}

// LockApplication holds the application lock until the transaction ends.
func (t *tx) LockApplication(ctx context.Context, id string) (*placement.Application, error) {
	if err := t.lock(ctx, "application:"+id); err != nil {
		return nil, err
	}
	return t.GetApplication(ctx, id)
}

func (t *tx) CreateCompany(_ context.Context, c *placement.Company) error {
	if t.company(c.ID) != nil {
		return errors.Newf(errors.ErrCodeConflict, "company %s already exists", c.ID)
	}
	t.companies[c.ID] = c.Clone()
	return nil
}

func (t *tx) UpdateCompany(_ context.Context, c *placement.Company) error {
	if t.company(c.ID) == nil {
		return errors.NotFound("company", c.ID)
	}
	t.companies[c.ID] = c.Clone()
	return nil
}

func (t *tx) CreateApplication(_ context.Context, a *placement.Application) error {
	if t.company(a.CompanyID) == nil {
		return errors.NotFound("company", a.CompanyID)
	}
	if t.application(a.ID) != nil {
		return errors.Newf(errors.ErrCodeConflict, "application %s already exists", a.ID)
	}
	if err := duplicateOf(a, t.allApplications()); err != nil {
		return err
	}
	t.applications[a.ID] = a.Clone()
	return nil
}

func (t *tx) UpdateApplication(_ context.Context, a *placement.Application) error {
	if t.application(a.ID) == nil {
		return errors.NotFound("application", a.ID)
	}
	if t.company(a.CompanyID) == nil {
		return errors.NotFound("company", a.CompanyID)
	}
	if err := duplicateOf(a, t.allApplications()); err != nil {
		return err
	}
	t.applications[a.ID] = a.Clone()
	return nil
}

func (t *tx) DeleteApplication(_ context.Context, id string) error {
	if t.application(id) == nil {
		return errors.NotFound("application", id)
	}
	delete(t.applications, id)
	t.deletedApps[id] = true
	return nil
}

func (t *tx) UpsertRequirement(_ context.Context, r *placement.Requirement) (string, error) {
	if t.application(r.ApplicationID) == nil {
		return "", errors.NotFound("application", r.ApplicationID)
	}
	for _, existing := range t.allRequirements() {
		if existing.ApplicationID == r.ApplicationID && existing.Type == r.Type {
			previous := existing.FileRef
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			t.requirements[r.ID] = r.Clone()
			return previous, nil
		}
	}
	t.requirements[r.ID] = r.Clone()
	return "", nil
}

func (t *tx) UpdateRequirement(_ context.Context, r *placement.Requirement) error {
	if t.requirement(r.ID) == nil {
		return errors.NotFound("requirement", r.ID)
	}
	t.requirements[r.ID] = r.Clone()
	return nil
}

func (t *tx) DeleteRequirement(_ context.Context, id string) error {
	if t.requirement(id) == nil {
		return errors.NotFound("requirement", id)
	}
	delete(t.requirements, id)
	t.deletedReqs[id] = true
	return nil
}

// commit re-checks the active-application constraint against the latest
// committed state and applies staged writes atomically.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitErr; err != nil {
		s.commitErr = nil
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to commit transaction")
	}

	merged := make([]*placement.Application, 0, len(s.applications)+len(t.applications))
	for id, a := range s.applications {
		if _, staged := t.applications[id]; !staged && !t.deletedApps[id] {
			merged = append(merged, a)
		}
	}
	for _, a := range t.applications {
		merged = append(merged, a)
	}
	for _, a := range t.applications {
		if err := duplicateOf(a, merged); err != nil {
			return err
		}
	}

	for id, c := range t.companies {
		s.companies[id] = c
	}
	for id, a := range t.applications {
		s.applications[id] = a
	}
	for id, r := range t.requirements {
		s.requirements[id] = r
	}
	for id := range t.deletedReqs {
		delete(s.requirements, id)
	}
	for id := range t.deletedApps {
		delete(s.applications, id)
		for rid, r := range s.requirements {
			if r.ApplicationID == id {
				delete(s.requirements, rid)
			}
		}
	}
	return nil
}

// duplicateOf fails when another active application holds a's student and
// company pair.
func duplicateOf(a *placement.Application, pool []*placement.Application) error {
	if a.IsArchived() {
		return nil
	}
	for _, o := range pool {
		if o.ID == a.ID || o.IsArchived() {
			continue
		}
		if o.StudentID == a.StudentID && o.CompanyID == a.CompanyID {
			return errors.New(errors.ErrCodeDuplicateApplication, "student already has an active application for this company").
				WithDetail("student_id", a.StudentID).
				WithDetail("company_id", a.CompanyID).
				WithDetail("existing_application_id", o.ID)
		}
	}
	return nil
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)
