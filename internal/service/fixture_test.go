package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository/memory"
)

var staff = identity.WithActor(context.Background(), identity.Actor{ID: "staff-1", Role: identity.RoleStaff})

func asStudent(id string) context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: id, Role: identity.RoleStudent})
}

func asAdmin() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: "root", Role: identity.RoleSuperAdmin})
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

type sentNotification struct {
	StudentID string
	Kind      string
	Data      map[string]any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, studentID, kind string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{StudentID: studentID, Kind: kind, Data: data})
	return nil
}

func (n *fakeNotifier) kinds(studentID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.StudentID == studentID {
			out = append(out, s.Kind)
		}
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// fakeDocuments is an in-package DocumentStore; the client package depends
// on service, so its memory store cannot be used here.
type fakeDocuments struct {
	mu    sync.Mutex
	files map[string][]byte
	next  int
	fail  error
}

func (d *fakeDocuments) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDocuments) Store(_ context.Context, content []byte, _ placement.Document) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return "", errors.Wrap(d.fail, errors.ErrCodeStorage, "failed to store document")
	}
	d.next++
	ref := fmt.Sprintf("doc-%d", d.next)
	d.files[ref] = append([]byte(nil), content...)
	return ref, nil
}

func (d *fakeDocuments) Delete(_ context.Context, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, ref)
	return nil
}

func (d *fakeDocuments) Has(ref string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[ref]
	return ok
}

func (d *fakeDocuments) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

type fixture struct {
	store     *memory.Store
	audit     *memory.AuditLog
	docs      *fakeDocuments
	notifier  *fakeNotifier
	ledger    *CapacityLedger
	workflow  *WorkflowCoordinator
	apps      *ApplicationService
	reqs      *RequirementTracker
	companies *CompanyService
	queries   *QueryService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithTimeout(t, 5*time.Second)
}

func newFixtureWithTimeout(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()
	log := logger.Nop()
	table := policy.Default()

	f := &fixture{
		store:    memory.New(lockTimeout),
		audit:    memory.NewAuditLog(),
		docs:     &fakeDocuments{files: make(map[string][]byte)},
		notifier: &fakeNotifier{},
	}
	f.ledger = NewCapacityLedger(f.store)
	f.workflow = NewWorkflowCoordinator(f.store, f.ledger, table, f.notifier, f.audit, log)
	f.apps = NewApplicationService(f.store, f.ledger, table, f.docs, f.audit, log)
	f.reqs = NewRequirementTracker(f.store, table, f.docs, f.audit, log)
	f.companies = NewCompanyService(f.store, f.ledger, f.workflow, table, f.audit, log)
	f.queries = NewQueryService(f.store, f.ledger, table)
	return f
}

func (f *fixture) company(t *testing.T, name string, slots *int) string {
	t.Helper()
	v, err := f.companies.Create(staff, &CompanyRequest{Name: name, AvailableSlots: slots})
	require.NoError(t, err)
	return v.Company.ID
}

func (f *fixture) draft(t *testing.T, studentID, companyID string) string {
	t.Helper()
	app, err := f.apps.Create(asStudent(studentID), &CreateApplicationRequest{
		CompanyID:     companyID,
		StartDate:     "2026-07-01",
		EndDate:       "2026-10-01",
		ProposedHours: 480,
		Skills:        "Go",
	})
	require.NoError(t, err)
	return app.ID
}

func (f *fixture) attach(t *testing.T, studentID, appID string, rt placement.RequirementType) *placement.Requirement {
	t.Helper()
	req, err := f.reqs.Attach(asStudent(studentID), &AttachRequest{
		ApplicationID: appID,
		Type:          string(rt),
		Filename:      string(rt) + ".pdf",
		ContentType:   "application/pdf",
		Content:       []byte("%PDF-1.7 " + string(rt)),
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) submitted(t *testing.T, studentID, companyID string) string {
	t.Helper()
	id := f.draft(t, studentID, companyID)
	for _, rt := range placement.MandatoryRequirements {
		f.attach(t, studentID, id, rt)
	}
	_, err := f.apps.Submit(asStudent(studentID), id)
	require.NoError(t, err)
	return id
}

func (f *fixture) status(t *testing.T, id string) placement.Status {
	t.Helper()
	app, err := f.store.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app.Status
}
