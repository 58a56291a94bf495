package circulation

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
)

// copyCandidates is how many available copies are fetched per claim round.
const (
	copyCandidates  = 8
	maxClaimRounds  = 3
	defaultPageSize = 50
	maxPageSize     = 500
)

// CreateBorrowRequest is the input of CreateBorrow. StaffID is set when a
// staff member creates the borrow on behalf of the borrower.
type CreateBorrowRequest struct {
	WorkID       uint   `json:"work_id"`
	BorrowerID   uint   `json:"borrower_id"`
	StaffID      *uint  `json:"staff_id,omitempty"`
	DurationDays int    `json:"duration_days"`
	Note         string `json:"note,omitempty"`
}

// Service runs the borrow lifecycle. Each operation is one transaction that
// changes the borrow row and, where the ledger says so, its copy.
type Service struct {
	repo     Repository
	identity IdentityProvider
	policy   Policy
	clock    Clock
}

// NewService wires the service. A nil clock means SystemClock.
func NewService(repo Repository, identity IdentityProvider, policy Policy, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		repo:     repo,
		identity: identity,
		policy:   policy,
		clock:    clock,
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// CreateBorrow opens a borrow on the lowest-id available copy of a work.
// Depending on the policy the borrow starts Pending or Active; when the
// copy is claimed the claim and the insert commit together.
func (s *Service) CreateBorrow(ctx context.Context, req CreateBorrowRequest) (*entities.Borrow, error) {
	const op = "create_borrow"

	if req.DurationDays <= 0 {
		return nil, boundary(op, newError(KindInvalidDuration, "duration must be a positive number of days, got %d", req.DurationDays))
	}
	if s.policy.MaxLoanDays > 0 && req.DurationDays > s.policy.MaxLoanDays {
		return nil, boundary(op, newError(KindInvalidDuration, "duration %d exceeds the maximum of %d days", req.DurationDays, s.policy.MaxLoanDays))
	}
	if req.WorkID == 0 {
		return nil, boundary(op, newError(KindInvalidInput, "work_id is required"))
	}

	borrower, err := s.resolveBorrower(ctx, req.BorrowerID)
	if err != nil {
		return nil, boundary(op, err)
	}

	var staff *entities.Person
	if req.StaffID != nil {
		if staff, err = s.resolveStaff(ctx, *req.StaffID); err != nil {
			return nil, boundary(op, err)
		}
	}

	event := s.policy.creationEvent(staff != nil)
	transition, _ := Next(noStatus, event)
	claim := s.policy.claimsOnCreate(event)
	now := s.now()

	var created entities.Borrow
	err = s.repo.Transaction(ctx, func(tx Tx) error {
		work, err := tx.GetWork(req.WorkID)
		if err != nil {
			return err
		}
		if work == nil {
			return newError(KindNotFound, "work %d not found", req.WorkID)
		}

		if s.policy.OneOpenBorrowPerWork {
			open, err := tx.HasOpenBorrow(borrower.ID, work.ID)
			if err != nil {
				return err
			}
			if open {
				return newError(KindDuplicateBorrow, "person %d already has an open borrow of work %d", borrower.ID, work.ID)
			}
		}

		cp, err := pickCopy(tx, work.ID, claim)
		if err != nil {
			return err
		}

		b := entities.Borrow{
			CopyID:       cp.ID,
			WorkID:       work.ID,
			BorrowerID:   borrower.ID,
			DurationDays: req.DurationDays,
			Status:       transition.To,
			CopyHeld:     claim,
			Note:         req.Note,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if staff != nil {
			b.StaffID = &staff.ID
		}
		if transition.To == entities.BorrowStatusActive {
			startLoan(&b, now)
		}

		if err := tx.InsertBorrow(&b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, boundary(op, err)
	}
	return &created, nil
}

// ApproveBorrow starts the loan of a Pending borrow. If its copy was taken in
// the meantime another available copy of the same work is assigned; if there
// is none the borrow stays Pending and ErrNoAvailableCopy is returned.
func (s *Service) ApproveBorrow(ctx context.Context, borrowID, staffID uint) (*entities.Borrow, error) {
	const op = "approve_borrow"

	staff, err := s.resolveStaff(ctx, staffID)
	if err != nil {
		return nil, boundary(op, err)
	}
	now := s.now()

	b, err := s.transition(ctx, borrowID, EventApprove, func(tx Tx, b *entities.Borrow) error {
		if !b.CopyHeld {
			ok, err := tx.ClaimCopy(b.CopyID)
			if err != nil {
				return err
			}
			if !ok {
				replacement, err := pickCopy(tx, b.WorkID, true)
				if err != nil {
					return err
				}
				b.CopyID = replacement.ID
			}
			b.CopyHeld = true
		}
		b.StaffID = &staff.ID
		startLoan(b, now)
		return nil
	})
	return b, boundary(op, err)
}

// RejectBorrow declines a Pending borrow.
func (s *Service) RejectBorrow(ctx context.Context, borrowID, staffID uint, reason string) (*entities.Borrow, error) {
	const op = "reject_borrow"

	staff, err := s.resolveStaff(ctx, staffID)
	if err != nil {
		return nil, boundary(op, err)
	}
	now := s.now()

	b, err := s.transition(ctx, borrowID, EventReject, func(tx Tx, b *entities.Borrow) error {
		b.StaffID = &staff.ID
		b.DecidedAt = &now
		if reason != "" {
			b.Note = reason
		}
		return nil
	})
	return b, boundary(op, err)
}

// CancelBorrow withdraws a Pending borrow. actorID must be the borrower or a
// staff member; zero skips the check for trusted internal callers.
func (s *Service) CancelBorrow(ctx context.Context, borrowID, actorID uint) (*entities.Borrow, error) {
	const op = "cancel_borrow"

	var actor *entities.Person
	if actorID != 0 {
		var err error
		if actor, err = s.resolveActive(ctx, actorID, "actor"); err != nil {
			return nil, boundary(op, err)
		}
	}
	now := s.now()

	b, err := s.transition(ctx, borrowID, EventCancel, func(tx Tx, b *entities.Borrow) error {
		b.DecidedAt = &now
		return nil
	}, func(b *entities.Borrow) error {
		if actor == nil || actor.ID == b.BorrowerID || s.identity.HasRole(actor, entities.RoleStaff) {
			return nil
		}
		return newError(KindUnauthorized, "person %d may not cancel borrow %d", actor.ID, b.ID)
	})
	return b, boundary(op, err)
}

// ReturnBorrow ends an Active or Overdue loan and puts the copy back.
func (s *Service) ReturnBorrow(ctx context.Context, borrowID uint) (*entities.Borrow, error) {
	const op = "return_borrow"
	now := s.now()

	b, err := s.transition(ctx, borrowID, EventReturn, func(tx Tx, b *entities.Borrow) error {
		b.ReturnDate = &now
		return nil
	})
	return b, boundary(op, err)
}

// MarkOverdueSweep moves every Active borrow whose due date is before now to
// Overdue and returns how many rows changed. Running it again with the same
// now changes nothing.
func (s *Service) MarkOverdueSweep(ctx context.Context, now time.Time) (int64, error) {
	const op = "mark_overdue_sweep"
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	var count int64
	err := s.repo.Transaction(ctx, func(tx Tx) error {
		n, err := tx.MarkOverdue(now)
		count = n
		return err
	})
	if err != nil {
		return 0, boundary(op, err)
	}
	return count, nil
}

func (s *Service) GetBorrow(ctx context.Context, id uint) (*entities.BorrowView, error) {
	const op = "get_borrow"
	b, err := s.repo.GetBorrow(ctx, id)
	if err != nil {
		return nil, boundary(op, err)
	}
	if b == nil {
		return nil, boundary(op, newError(KindNotFound, "borrow %d not found", id))
	}
	return b, nil
}

// ListBorrows returns one page of borrows and the total matching count.
func (s *Service) ListBorrows(ctx context.Context, filter BorrowFilter) ([]entities.BorrowView, int64, error) {
	const op = "list_borrows"
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, boundary(op, newError(KindInvalidInput, "unknown borrow status %q", st))
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.repo.ListBorrows(ctx, filter)
	if err != nil {
		return nil, 0, boundary(op, err)
	}
	return items, total, nil
}

// ListOpenBorrows returns the borrows a person still has to return or that
// are still awaiting a decision.
func (s *Service) ListOpenBorrows(ctx context.Context, personID uint) ([]entities.BorrowView, error) {
	items, _, err := s.ListBorrows(ctx, BorrowFilter{
		BorrowerID: personID,
		Statuses:   entities.OpenBorrowStatuses,
		Limit:      maxPageSize,
	})
	return items, err
}

// transition loads the borrow, checks ev against the ledger, lets mutate fill
// in the event-specific fields and then applies the copy effect and the
// compare-and-swap status write in the same transaction. Optional guards run
// before the state check.
func (s *Service) transition(ctx context.Context, borrowID uint, ev Event, mutate func(Tx, *entities.Borrow) error, guards ...func(*entities.Borrow) error) (*entities.Borrow, error) {
	var out entities.Borrow
	err := s.repo.Transaction(ctx, func(tx Tx) error {
		b, err := tx.GetBorrowForUpdate(borrowID)
		if err != nil {
			return err
		}
		if b == nil {
			return newError(KindNotFound, "borrow %d not found", borrowID)
		}
		for _, guard := range guards {
			if err := guard(b); err != nil {
				return err
			}
		}

		t, ok := Next(b.Status, ev)
		if !ok {
			return illegal(ev, b)
		}
		from := b.Status

		if err := mutate(tx, b); err != nil {
			return err
		}
		if t.Effect == CopyRelease && b.CopyHeld {
			released, err := tx.ReleaseCopy(b.CopyID)
			if err != nil {
				return err
			}
			if !released {
				return newError(KindInternal, "copy %d of borrow %d was not borrowed", b.CopyID, b.ID)
			}
			b.CopyHeld = false
		}

		b.Status = t.To
		b.UpdatedAt = s.now()
		moved, err := tx.TransitionBorrow(b, from)
		if err != nil {
			return err
		}
		if !moved {
			return newError(KindInvalidStateTransition, "borrow %d changed concurrently", b.ID)
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// pickCopy selects the lowest-id available copy of a work. With claim set it
// moves the copy to borrowed, falling through to the next candidate when a
// concurrent transaction got there first.
func pickCopy(tx Tx, workID uint, claim bool) (*entities.Copy, error) {
	for round := 0; round < maxClaimRounds; round++ {
		candidates, err := tx.AvailableCopies(workID, copyCandidates)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		if !claim {
			return &candidates[0], nil
		}
		for i := range candidates {
			ok, err := tx.ClaimCopy(candidates[i].ID)
			if err != nil {
				return nil, err
			}
			if ok {
				candidates[i].Status = entities.CopyStatusBorrowed
				return &candidates[i], nil
			}
		}
	}
	return nil, newError(KindNoAvailableCopy, "no available copy of work %d", workID)
}

// now reads the clock in UTC so stored timestamps compare correctly as text
// on sqlite whatever zone the clock reports.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func startLoan(b *entities.Borrow, now time.Time) {
	due := now.AddDate(0, 0, b.DurationDays)
	b.BorrowDate = &now
	b.DueDate = &due
	b.DecidedAt = &now
}

func (s *Service) resolveActive(ctx context.Context, id uint, what string) (*entities.Person, error) {
	if id == 0 {
		return nil, newError(KindPersonNotFound, "%s id is required", what)
	}
	p, err := s.identity.ResolvePerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, newError(KindPersonNotFound, "%s %d not found", what, id)
	}
	if !p.Active {
		return nil, newError(KindPersonNotFound, "%s %d is deactivated", what, id)
	}
	return p, nil
}

func (s *Service) resolveBorrower(ctx context.Context, id uint) (*entities.Person, error) {
	return s.resolveActive(ctx, id, "borrower")
}

func (s *Service) resolveStaff(ctx context.Context, id uint) (*entities.Person, error) {
	p, err := s.resolveActive(ctx, id, "staff")
	if err != nil {
		return nil, err
	}
	if !s.identity.HasRole(p, entities.RoleStaff) {
		return nil, newError(KindUnauthorized, "person %d does not have the staff role", id)
	}
	return p, nil
}
