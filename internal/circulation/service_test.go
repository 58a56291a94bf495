package circulation_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/borrows"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/entities"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc     *circulation.Service
	db      *gorm.DB
	catalog *catalog.Repository
	persons *persons.Repository
	clock   *testClock
}

func newFixture(t *testing.T, policy circulation.Policy) *fixture {
	t.Helper()
	db, err := database.Open(database.Options{Path: filepath.Join(t.TempDir(), "circulation.db"), LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	personRepo := persons.NewRepository(db.DB)
	return &fixture{
		svc:     circulation.NewService(borrows.NewRepository(db.DB), personRepo, policy, clock),
		db:      db.DB,
		catalog: catalog.NewRepository(db.DB),
		persons: personRepo,
		clock:   clock,
	}
}

func (f *fixture) person(t *testing.T, username string, role entities.Role) *entities.Person {
	t.Helper()
	p := &entities.Person{Username: username, FullName: username, Role: role}
	require.NoError(t, f.persons.CreatePerson(context.Background(), p))
	return p
}

func (f *fixture) work(t *testing.T, title string, copies int) (*entities.WorkView, []*entities.Copy) {
	t.Helper()
	ctx := context.Background()
	w, err := f.catalog.CreateWork(ctx, catalog.WorkInput{Title: title})
	require.NoError(t, err)
	var out []*entities.Copy
	for i := 0; i < copies; i++ {
		cp, err := f.catalog.AddCopy(ctx, w.ID, nil, fmt.Sprintf("%s-%d", title, i+1))
		require.NoError(t, err)
		out = append(out, cp)
	}
	return w, out
}

func (f *fixture) copyStatus(t *testing.T, id uint) entities.CopyStatus {
	t.Helper()
	cp, err := f.catalog.GetCopy(context.Background(), id)
	require.NoError(t, err)
	return cp.Status
}

func (f *fixture) borrowCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entities.Borrow{}).Count(&n).Error)
	return n
}

// assertHoldInvariant checks that every borrowed copy is held by exactly one
// borrow and every copy held by a borrow is borrowed.
func (f *fixture) assertHoldInvariant(t *testing.T) {
	t.Helper()
	var copies []entities.Copy
	require.NoError(t, f.db.Find(&copies).Error)
	for _, cp := range copies {
		var holders int64
		require.NoError(t, f.db.Model(&entities.Borrow{}).
			Where("copy_id = ? AND copy_held = ?", cp.ID, true).
			Count(&holders).Error)
		if cp.Status == entities.CopyStatusBorrowed {
			assert.Equal(t, int64(1), holders, "borrowed copy %d must have exactly one holder", cp.ID)
		} else {
			assert.Zero(t, holders, "copy %d in status %s must not be held", cp.ID, cp.Status)
		}
	}

	var strayHolds int64
	require.NoError(t, f.db.Model(&entities.Borrow{}).
		Where("copy_held = ? AND status NOT IN ?", true, []entities.BorrowStatus{
			entities.BorrowStatusPending, entities.BorrowStatusActive, entities.BorrowStatusOverdue,
		}).Count(&strayHolds).Error)
	assert.Zero(t, strayHolds, "terminal borrows must not hold copies")
}

func TestLifecycle_RequestApproveReturn(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	borrower := f.person(t, "p1", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, copies := f.work(t, "Dune", 1)
	created := f.clock.Now()

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, DurationDays: 14})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusPending, b.Status)
	assert.Equal(t, copies[0].ID, b.CopyID)
	assert.False(t, b.CopyHeld)
	assert.Nil(t, b.DueDate)
	assert.Equal(t, entities.CopyStatusAvailable, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)

	b, err = f.svc.ApproveBorrow(ctx, b.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusActive, b.Status)
	require.NotNil(t, b.StaffID)
	assert.Equal(t, staff.ID, *b.StaffID)
	require.NotNil(t, b.DueDate)
	assert.True(t, created.AddDate(0, 0, 14).Equal(*b.DueDate))
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)

	f.clock.Advance(48 * time.Hour)
	b, err = f.svc.ReturnBorrow(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusReturned, b.Status)
	require.NotNil(t, b.ReturnDate)
	assert.True(t, f.clock.Now().Equal(*b.ReturnDate))
	assert.Equal(t, entities.CopyStatusAvailable, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)

	view, err := f.svc.GetBorrow(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusReturned, view.Status)
	assert.Equal(t, "Dune", view.WorkTitle)
	assert.Equal(t, "p1", view.BorrowerName)
	assert.Equal(t, "s1", view.StaffName)
}

func TestCreateBorrow_NoAvailableCopy(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	w, copies := f.work(t, "Emma", 1)

	first, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 7})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusActive, first.Status)
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))

	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, DurationDays: 7})
	require.ErrorIs(t, err, circulation.ErrNoAvailableCopy)
	assert.Equal(t, int64(1), f.borrowCount(t))
	f.assertHoldInvariant(t)
}

func TestCreateBorrow_WorkWithoutCopies(t *testing.T) {
	for _, policy := range []circulation.Policy{circulation.DefaultPolicy(), {}} {
		f := newFixture(t, policy)
		p := f.person(t, "p1", entities.RoleBorrower)
		w, _ := f.work(t, "Empty", 0)

		_, err := f.svc.CreateBorrow(context.Background(), circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
		require.ErrorIs(t, err, circulation.ErrNoAvailableCopy)
		assert.Zero(t, f.borrowCount(t))
	}
}

func TestCreateBorrow_SkipsUnavailableCopies(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	p := f.person(t, "p1", entities.RoleBorrower)
	w, copies := f.work(t, "Ulysses", 3)
	_, err := f.catalog.SetCopyStatus(ctx, copies[0].ID, entities.CopyStatusLost)
	require.NoError(t, err)

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.NoError(t, err)
	assert.Equal(t, copies[1].ID, b.CopyID, "lowest-id available copy wins")
}

func TestCreateBorrow_Validation(t *testing.T) {
	f := newFixture(t, circulation.Policy{RequiresApproval: true, MaxLoanDays: 30})
	ctx := context.Background()
	borrower := f.person(t, "p1", entities.RoleBorrower)
	plain := f.person(t, "p2", entities.RoleBorrower)
	inactive := f.person(t, "p3", entities.RoleBorrower)
	require.NoError(t, f.persons.SetActive(ctx, inactive.ID, false))
	w, _ := f.work(t, "Kim", 1)
	missing := uint(999)

	tests := []struct {
		name string
		req  circulation.CreateBorrowRequest
		want error
	}{
		{"zero duration", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, DurationDays: 0}, circulation.ErrInvalidDuration},
		{"negative duration", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, DurationDays: -3}, circulation.ErrInvalidDuration},
		{"too long", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, DurationDays: 31}, circulation.ErrInvalidDuration},
		{"missing work id", circulation.CreateBorrowRequest{BorrowerID: borrower.ID, DurationDays: 7}, circulation.ErrInvalidInput},
		{"unknown work", circulation.CreateBorrowRequest{WorkID: 404, BorrowerID: borrower.ID, DurationDays: 7}, circulation.ErrNotFound},
		{"unknown borrower", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: missing, DurationDays: 7}, circulation.ErrPersonNotFound},
		{"inactive borrower", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: inactive.ID, DurationDays: 7}, circulation.ErrPersonNotFound},
		{"unknown staff", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, StaffID: &missing, DurationDays: 7}, circulation.ErrPersonNotFound},
		{"staff without role", circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, StaffID: &plain.ID, DurationDays: 7}, circulation.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBorrow(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.borrowCount(t))
		})
	}
}

func TestCreateBorrow_StaffBypassesApproval(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	borrower := f.person(t, "p1", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleAdmin)
	w, copies := f.work(t, "Beloved", 1)

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrower.ID, StaffID: &staff.ID, DurationDays: 21})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusActive, b.Status)
	assert.True(t, b.CopyHeld)
	require.NotNil(t, b.DueDate)
	assert.True(t, f.clock.Now().AddDate(0, 0, 21).Equal(*b.DueDate))
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)
}

func TestCreateBorrow_HoldPendingCopies(t *testing.T) {
	f := newFixture(t, circulation.Policy{RequiresApproval: true, HoldPendingCopies: true})
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, copies := f.work(t, "Solaris", 1)

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 7})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusPending, b.Status)
	assert.True(t, b.CopyHeld)
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)

	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, DurationDays: 7})
	require.ErrorIs(t, err, circulation.ErrNoAvailableCopy)

	b, err = f.svc.RejectBorrow(ctx, b.ID, staff.ID, "damaged request")
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusRejected, b.Status)
	assert.False(t, b.CopyHeld)
	assert.Equal(t, "damaged request", b.Note)
	assert.Equal(t, entities.CopyStatusAvailable, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)

	held, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, DurationDays: 7})
	require.NoError(t, err)
	held, err = f.svc.ApproveBorrow(ctx, held.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusActive, held.Status)
	assert.Equal(t, copies[0].ID, held.CopyID)
	f.assertHoldInvariant(t)
}

func TestCreateBorrow_DuplicateOpenBorrow(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	p := f.person(t, "p1", entities.RoleBorrower)
	w, _ := f.work(t, "Ivanhoe", 2)

	first, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.NoError(t, err)

	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.ErrorIs(t, err, circulation.ErrDuplicateBorrow)

	_, err = f.svc.CancelBorrow(ctx, first.ID, p.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.NoError(t, err)
}

func TestApproveBorrow_ReassignsTakenCopy(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, copies := f.work(t, "Middlemarch", 2)

	pending, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 7})
	require.NoError(t, err)
	assert.Equal(t, copies[0].ID, pending.CopyID)

	walkIn, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, StaffID: &staff.ID, DurationDays: 7})
	require.NoError(t, err)
	assert.Equal(t, copies[0].ID, walkIn.CopyID)

	approved, err := f.svc.ApproveBorrow(ctx, pending.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, copies[1].ID, approved.CopyID)
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[1].ID))
	f.assertHoldInvariant(t)
}

func TestApproveBorrow_NoCopyLeftKeepsPending(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, _ := f.work(t, "Lolita", 1)

	pending, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 7})
	require.NoError(t, err)
	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, StaffID: &staff.ID, DurationDays: 7})
	require.NoError(t, err)

	_, err = f.svc.ApproveBorrow(ctx, pending.ID, staff.ID)
	require.ErrorIs(t, err, circulation.ErrNoAvailableCopy)

	view, err := f.svc.GetBorrow(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusPending, view.Status)
	assert.Nil(t, view.StaffID)
	f.assertHoldInvariant(t)
}

func TestApproveBorrow_Errors(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	p := f.person(t, "p1", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, _ := f.work(t, "Nostromo", 1)

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.NoError(t, err)

	_, err = f.svc.ApproveBorrow(ctx, b.ID, p.ID)
	require.ErrorIs(t, err, circulation.ErrUnauthorized)

	_, err = f.svc.ApproveBorrow(ctx, 4040, staff.ID)
	require.ErrorIs(t, err, circulation.ErrNotFound)

	_, err = f.svc.ApproveBorrow(ctx, b.ID, staff.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveBorrow(ctx, b.ID, staff.ID)
	require.ErrorIs(t, err, circulation.ErrInvalidStateTransition)
}

func TestReturnBorrow_InvalidStatesLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	staff := f.person(t, "s1", entities.RoleStaff)
	w, copies := f.work(t, "Walden", 4)

	newPending := func(name string) *entities.Borrow {
		p := f.person(t, name, entities.RoleBorrower)
		b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
		require.NoError(t, err)
		return b
	}

	pending := newPending("pending")
	cancelled := newPending("cancelled")
	_, err := f.svc.CancelBorrow(ctx, cancelled.ID, 0)
	require.NoError(t, err)
	rejected := newPending("rejected")
	_, err = f.svc.RejectBorrow(ctx, rejected.ID, staff.ID, "")
	require.NoError(t, err)
	returned := newPending("returned")
	_, err = f.svc.ApproveBorrow(ctx, returned.ID, staff.ID)
	require.NoError(t, err)
	_, err = f.svc.ReturnBorrow(ctx, returned.ID)
	require.NoError(t, err)

	snapshot := func() ([]entities.Borrow, []entities.Copy) {
		var bs []entities.Borrow
		var cs []entities.Copy
		require.NoError(t, f.db.Order("id").Find(&bs).Error)
		require.NoError(t, f.db.Order("id").Find(&cs).Error)
		return bs, cs
	}
	beforeBorrows, beforeCopies := snapshot()
	require.Len(t, beforeCopies, len(copies))

	for _, id := range []uint{pending.ID, cancelled.ID, rejected.ID, returned.ID} {
		_, err := f.svc.ReturnBorrow(ctx, id)
		require.ErrorIs(t, err, circulation.ErrInvalidStateTransition, "borrow %d", id)
	}

	afterBorrows, afterCopies := snapshot()
	assert.Equal(t, beforeBorrows, afterBorrows)
	assert.Equal(t, beforeCopies, afterCopies)
	f.assertHoldInvariant(t)
}

func TestCancelBorrow_Authorization(t *testing.T) {
	f := newFixture(t, circulation.Policy{RequiresApproval: true, HoldPendingCopies: true})
	ctx := context.Background()
	owner := f.person(t, "owner", entities.RoleBorrower)
	other := f.person(t, "other", entities.RoleBorrower)
	staff := f.person(t, "staff", entities.RoleStaff)
	w, copies := f.work(t, "Persuasion", 2)

	b1, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: owner.ID, DurationDays: 7})
	require.NoError(t, err)
	b2, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: other.ID, DurationDays: 7})
	require.NoError(t, err)

	_, err = f.svc.CancelBorrow(ctx, b1.ID, other.ID)
	require.ErrorIs(t, err, circulation.ErrUnauthorized)

	cancelled, err := f.svc.CancelBorrow(ctx, b1.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusCancelled, cancelled.Status)
	assert.Equal(t, entities.CopyStatusAvailable, f.copyStatus(t, copies[0].ID))

	cancelled, err = f.svc.CancelBorrow(ctx, b2.ID, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusCancelled, cancelled.Status)

	_, err = f.svc.CancelBorrow(ctx, b2.ID, staff.ID)
	require.ErrorIs(t, err, circulation.ErrInvalidStateTransition)
	f.assertHoldInvariant(t)
}

func TestMarkOverdueSweep(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	w, copies := f.work(t, "Beowulf", 2)

	due, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 1})
	require.NoError(t, err)
	notDue, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, DurationDays: 30})
	require.NoError(t, err)

	today := f.clock.Now().AddDate(0, 0, 2)
	n, err := f.svc.MarkOverdueSweep(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	view, err := f.svc.GetBorrow(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusOverdue, view.Status)
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))

	view, err = f.svc.GetBorrow(ctx, notDue.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusActive, view.Status)

	var before []entities.Borrow
	require.NoError(t, f.db.Order("id").Find(&before).Error)
	n, err = f.svc.MarkOverdueSweep(ctx, today)
	require.NoError(t, err)
	assert.Zero(t, n)
	var after []entities.Borrow
	require.NoError(t, f.db.Order("id").Find(&after).Error)
	assert.Equal(t, before, after)

	returned, err := f.svc.ReturnBorrow(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusReturned, returned.Status)
	assert.Equal(t, entities.CopyStatusAvailable, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)
}

func TestMarkOverdueSweep_UsesClockWhenNowIsZero(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	p := f.person(t, "p1", entities.RoleBorrower)
	w, _ := f.work(t, "Hamlet", 1)
	_, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 3})
	require.NoError(t, err)

	n, err := f.svc.MarkOverdueSweep(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(4 * 24 * time.Hour)
	n, err = f.svc.MarkOverdueSweep(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkOverdueSweep_ClockOutsideUTC(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	f.clock.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.FixedZone("UTC+5", 5*60*60))
	p := f.person(t, "p1", entities.RoleBorrower)
	w, _ := f.work(t, "Odyssey", 1)

	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 1})
	require.NoError(t, err)
	require.NotNil(t, b.DueDate)
	assert.Equal(t, time.UTC, b.DueDate.Location())

	// One hour past due, expressed in UTC.
	n, err := f.svc.MarkOverdueSweep(ctx, time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	view, err := f.svc.GetBorrow(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusOverdue, view.Status)
}

func TestConcurrentCreate_LastCopy(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	w, copies := f.work(t, "Moby Dick", 1)

	const callers = 4
	borrowers := make([]*entities.Person, callers)
	for i := range borrowers {
		borrowers[i] = f.person(t, fmt.Sprintf("racer%d", i), entities.RoleBorrower)
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: borrowers[i].ID, DurationDays: 7})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, circulation.ErrNoAvailableCopy)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, int64(1), f.borrowCount(t))
	assert.Equal(t, entities.CopyStatusBorrowed, f.copyStatus(t, copies[0].ID))
	f.assertHoldInvariant(t)
}

func TestConcurrentReturn_OneWinner(t *testing.T) {
	f := newFixture(t, circulation.Policy{})
	ctx := context.Background()
	p := f.person(t, "p1", entities.RoleBorrower)
	w, _ := f.work(t, "Odyssey", 1)
	b, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p.ID, DurationDays: 7})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ReturnBorrow(ctx, b.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, circulation.ErrInvalidStateTransition)
	}
	assert.Equal(t, 1, ok)
	f.assertHoldInvariant(t)
}

func TestListBorrows(t *testing.T) {
	f := newFixture(t, circulation.DefaultPolicy())
	ctx := context.Background()
	p1 := f.person(t, "p1", entities.RoleBorrower)
	p2 := f.person(t, "p2", entities.RoleBorrower)
	staff := f.person(t, "s1", entities.RoleStaff)
	w, _ := f.work(t, "Faust", 3)

	b1, err := f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p1.ID, DurationDays: 7})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{WorkID: w.ID, BorrowerID: p2.ID, DurationDays: 7})
	require.NoError(t, err)
	_, err = f.svc.RejectBorrow(ctx, b1.ID, staff.ID, "")
	require.NoError(t, err)

	all, total, err := f.svc.ListBorrows(ctx, circulation.BorrowFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, "p2", all[0].BorrowerName, "newest first")

	open, err := f.svc.ListOpenBorrows(ctx, p1.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	rejected, total, err := f.svc.ListBorrows(ctx, circulation.BorrowFilter{Statuses: []entities.BorrowStatus{entities.BorrowStatusRejected}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, b1.ID, rejected[0].ID)

	_, _, err = f.svc.ListBorrows(ctx, circulation.BorrowFilter{Statuses: []entities.BorrowStatus{"lost"}})
	require.ErrorIs(t, err, circulation.ErrInvalidInput)

	_, err = f.svc.GetBorrow(ctx, 9999)
	require.ErrorIs(t, err, circulation.ErrNotFound)
}
