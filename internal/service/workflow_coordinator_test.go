package service

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ojt-placements/internal/domain/placement"
	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
)

func TestAcmeEndToEnd(t *testing.T) {
	f := newFixture(t)
	acme := f.company(t, "Acme", intPtr(1))

	v, err := f.companies.Get(staff, acme)
	require.NoError(t, err)
	assert.Equal(t, placement.CapacityAvailable, v.Capacity.Status)

	a := f.submitted(t, "stu-a", acme)
	out, err := f.workflow.Approve(staff, a, "welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Status)
	assert.Equal(t, placement.CapacityFull, out.Capacity.Status)
	assert.Empty(t, out.Demoted)

	b := f.submitted(t, "stu-b", acme)
	assert.Equal(t, placement.StatusSubmitted, f.status(t, b))

	_, err = f.workflow.Approve(staff, b, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCapacityExceeded))
	e, _ := errors.As(err)
	assert.Equal(t, 0, e.Details["remaining_slots"])
	assert.Equal(t, 1, e.Details["filled_slots"])
	assert.Equal(t, placement.StatusSubmitted, f.status(t, b))

	out, err = f.workflow.Reject(staff, a, "student withdrew", "")
	require.NoError(t, err)
	assert.Equal(t, placement.CapacityAvailable, out.Capacity.Status)
	require.NotNil(t, out.Capacity.RemainingSlots)
	assert.Equal(t, 1, *out.Capacity.RemainingSlots)

	out, err = f.workflow.Approve(staff, b, "")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Status)
	assert.Equal(t, placement.CapacityFull, out.Capacity.Status)

	assert.Equal(t, []string{NotifyApproved, NotifyRejected}, f.notifier.kinds("stu-a"))
	assert.Equal(t, []string{NotifyApproved}, f.notifier.kinds("stu-b"))
}

func TestConcurrentApprovalsOnLastSlot(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		c := f.company(t, "OneSeat", intPtr(1))
		ids := []string{f.submitted(t, "stu-1", c), f.submitted(t, "stu-2", c)}

		errs := make([]error, len(ids))
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[i] = f.workflow.Approve(staff, id, "")
			}()
		}
		close(start)
		wg.Wait()

		var ok, exceeded int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errors.ErrCodeCapacityExceeded):
				exceeded++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, exceeded)

		filled, err := f.store.CountApproved(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, 1, filled)
	}
}

func TestApprovalThatFillsCompanyDemotesPending(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "TwoSeats", intPtr(2))

	first := f.submitted(t, "stu-1", c)
	out, err := f.workflow.Approve(staff, first, "")
	require.NoError(t, err)
	assert.Equal(t, placement.CapacityLimited, out.Capacity.Status)

	second := f.submitted(t, "stu-2", c)
	reviewing := f.submitted(t, "stu-3", c)
	_, err = f.workflow.BeginReview(staff, reviewing, "")
	require.NoError(t, err)
	later := f.submitted(t, "stu-4", c)
	drafted := f.draft(t, "stu-5", c)

	out, err = f.workflow.Approve(staff, second, "")
	require.NoError(t, err)
	assert.Equal(t, placement.CapacityFull, out.Capacity.Status)
	assert.ElementsMatch(t, []string{reviewing, later}, out.Demoted)

	assert.Equal(t, placement.StatusApproved, f.status(t, first))
	assert.Equal(t, placement.StatusApproved, f.status(t, second))
	assert.Equal(t, placement.StatusDraft, f.status(t, reviewing))
	assert.Equal(t, placement.StatusDraft, f.status(t, later))
	assert.Equal(t, placement.StatusDraft, f.status(t, drafted))

	assert.Equal(t, []string{NotifyCapacityUnavailable}, f.notifier.kinds("stu-3"))
	assert.Equal(t, []string{NotifyCapacityUnavailable}, f.notifier.kinds("stu-4"))
	assert.Empty(t, f.notifier.kinds("stu-5"))
}

func TestReviewAtFullCompanyKeepsApplication(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Acme", intPtr(1))
	a := f.submitted(t, "stu-a", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	b := f.submitted(t, "stu-b", c)
	out, err := f.workflow.BeginReview(staff, b, "")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusUnderReview, out.Application.Status)
	assert.Empty(t, out.Demoted)
	assert.Equal(t, placement.CapacityFull, out.Capacity.Status)
	assert.Equal(t, placement.StatusUnderReview, f.status(t, b))
	assert.Empty(t, f.notifier.kinds("stu-b"))

	_, err = f.workflow.Approve(staff, b, "")
	assert.True(t, errors.Is(err, errors.ErrCodeCapacityExceeded))
	assert.Equal(t, placement.StatusUnderReview, f.status(t, b))
}

func TestRejectAtFullCompanyLeavesOthersPending(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Acme", intPtr(1))
	a := f.submitted(t, "stu-a", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	waiting := f.submitted(t, "stu-c", c)
	rejected := f.submitted(t, "stu-d", c)
	withdrawn := f.submitted(t, "stu-e", c)

	out, err := f.workflow.Reject(staff, rejected, "incomplete documents", "")
	require.NoError(t, err)
	assert.Empty(t, out.Demoted)

	out, err = f.workflow.Cancel(asStudent("stu-e"), withdrawn)
	require.NoError(t, err)
	assert.Empty(t, out.Demoted)

	assert.Equal(t, placement.StatusSubmitted, f.status(t, waiting))
	assert.Empty(t, f.notifier.kinds("stu-c"))
}

func TestCascadeIsNoopWhenCompanyHasRoom(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", intPtr(3))
	f.submitted(t, "stu-1", c)

	demoted, warnings, err := f.workflow.RunFullCompanyCascade(staff, c, "manual")
	require.NoError(t, err)
	assert.Empty(t, demoted)
	assert.Empty(t, warnings)
}

func TestRetrieveIntoFullCompanyRestoresDraft(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "OneSeat", intPtr(1))

	a := f.submitted(t, "stu-a", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	out, err := f.workflow.Archive(staff, a)
	require.NoError(t, err)
	require.NotNil(t, out.Application.Archived)
	assert.Equal(t, placement.StatusApproved, out.Application.Archived.PreviousStatus)
	assert.Equal(t, placement.CapacityAvailable, out.Capacity.Status, "archived approval frees its seat")

	b := f.submitted(t, "stu-b", c)
	_, err = f.workflow.Approve(staff, b, "")
	require.NoError(t, err)

	out, err = f.workflow.Retrieve(staff, a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusDraft, out.Application.Status)
	assert.Nil(t, out.Application.Archived)
	assert.Nil(t, out.Application.Approval)
	assert.NotEmpty(t, out.Warnings)
	assert.Equal(t, placement.CapacityFull, out.Capacity.Status)
	assert.Equal(t, 1, out.Capacity.FilledSlots)
}

func TestRetrieveWithRoomRestoresApproval(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "TwoSeats", intPtr(2))

	a := f.submitted(t, "stu-a", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)
	_, err = f.workflow.Archive(staff, a)
	require.NoError(t, err)

	out, err := f.workflow.Retrieve(staff, a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Status)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, 1, out.Capacity.FilledSlots)
}

func TestRetrieveApprovedIntoLastSlotRunsCascade(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "OneSeat", intPtr(1))

	a := f.submitted(t, "stu-a", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)
	_, err = f.workflow.Archive(staff, a)
	require.NoError(t, err)
	b := f.submitted(t, "stu-b", c)

	out, err := f.workflow.Retrieve(staff, a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Status)
	assert.Equal(t, []string{b}, out.Demoted)
	assert.Equal(t, placement.StatusDraft, f.status(t, b))
}

func TestStudentArchiveRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)

	out, err := f.workflow.Archive(asStudent("stu-1"), a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusSubmitted, out.Application.Status)
	assert.True(t, out.Application.IsArchived())

	_, err = f.workflow.Approve(staff, a, "")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))

	out, err = f.workflow.Retrieve(asStudent("stu-1"), a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusSubmitted, out.Application.Status)
	assert.False(t, out.Application.IsArchived())
}

func TestStudentCannotArchiveDecidedApplication(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	_, err = f.workflow.Archive(asStudent("stu-1"), a)
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	_, err = f.workflow.Archive(asStudent("stu-2"), a)
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))
}

func TestArchiveDecidedFollowsPolicyTable(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)
	_, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)

	table, err := policy.Parse([]byte("roles:\n  staff:\n    application.approve: any\n    application.archive: any\n"))
	require.NoError(t, err)
	f.workflow.policy = table

	_, err = f.workflow.Archive(staff, a)
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))
	stored, err := f.store.GetApplication(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, stored.IsArchived())

	f.workflow.policy = policy.Default()
	out, err := f.workflow.Archive(staff, a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Archived.PreviousStatus)
}

func TestStudentCannotApprove(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)

	_, err := f.workflow.Approve(asStudent("stu-1"), a, "")
	assert.True(t, errors.Is(err, errors.ErrCodePermissionDenied))

	_, err = f.workflow.Approve(context.Background(), a, "")
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)

	_, err := f.workflow.Reject(staff, a, "", "")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, placement.StatusSubmitted, f.status(t, a))
}

func TestCancelRecordsPreviousStatus(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)

	out, err := f.workflow.Cancel(asStudent("stu-1"), a)
	require.NoError(t, err)
	assert.Equal(t, placement.StatusCancelled, out.Application.Status)

	entries, err := f.apps.ListAudit(staff, a)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "cancel", last.Action)
	assert.Equal(t, "submitted", last.Metadata["previous_status"])

	_, err = f.workflow.Cancel(asStudent("stu-1"), a)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
}

func TestApproveAuditsPriorStatus(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)
	_, err := f.workflow.BeginReview(staff, a, "")
	require.NoError(t, err)

	out, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusUnderReview, out.Application.Approval.From)

	entries, err := f.apps.ListAudit(staff, a)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "approve", last.Action)
	assert.Equal(t, "under_review", last.Metadata["from"])
}

func TestBeginReviewWarnsOnIncompleteChecklist(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)

	out, err := f.workflow.BeginReview(staff, a, "looking")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusUnderReview, out.Application.Status)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "3 of 13")
}

func TestApproveStorageFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "OneSeat", intPtr(1))
	a := f.submitted(t, "stu-1", c)
	b := f.submitted(t, "stu-2", c)

	f.store.FailNextCommit(stderrors.New("connection reset"))
	_, err := f.workflow.Approve(staff, a, "")
	require.Error(t, err)

	assert.Equal(t, placement.StatusSubmitted, f.status(t, a))
	assert.Equal(t, placement.StatusSubmitted, f.status(t, b))
	assert.Zero(t, f.notifier.count())
	snap, err := f.ledger.Current(context.Background(), c)
	require.NoError(t, err)
	assert.Zero(t, snap.FilledSlots)

	entries, err := f.apps.ListAudit(staff, a)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "approve", e.Action)
	}
}

func TestNotifyFailureBecomesWarning(t *testing.T) {
	f := newFixture(t)
	c := f.company(t, "Roomy", nil)
	a := f.submitted(t, "stu-1", c)
	f.notifier.err = stderrors.New("smtp down")

	out, err := f.workflow.Approve(staff, a, "")
	require.NoError(t, err)
	assert.Equal(t, placement.StatusApproved, out.Application.Status)
	require.Len(t, out.Warnings, 1)
	assert.True(t, strings.HasPrefix(out.Warnings[0], string(errors.ErrCodeNotify)))
	assert.Equal(t, placement.StatusApproved, f.status(t, a))
}

func TestBusyCompanyReportsConflict(t *testing.T) {
	f := newFixtureWithTimeout(t, 50*time.Millisecond)
	c := f.company(t, "Busy", intPtr(1))
	a := f.submitted(t, "stu-1", c)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.store.InTransaction(context.Background(), func(tx repository.Tx) error {
			if _, err := tx.LockCompany(context.Background(), c); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.workflow.Approve(staff, a, "")
	close(release)
	<-done

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Equal(t, placement.StatusSubmitted, f.status(t, a))

	_, err = f.workflow.Approve(staff, a, "")
	assert.NoError(t, err, "retry succeeds once the lock is free")
}
