package circulation

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
)

// Repository is the transactional store behind the service.
type Repository interface {
	// Transaction runs fn in one database transaction. fn's error rolls
	// everything back; lost races come back as ErrConcurrencyConflict.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	GetBorrow(ctx context.Context, id uint) (*entities.BorrowView, error)
	ListBorrows(ctx context.Context, filter BorrowFilter) ([]entities.BorrowView, int64, error)
}

// Tx is the set of storage operations available inside a transaction.
// Lookups return nil, nil when the row does not exist.
type Tx interface {
	GetWork(id uint) (*entities.Work, error)
	// AvailableCopies returns up to limit available copies of a work, lowest
	// id first, locked for update where the driver supports it.
	AvailableCopies(workID uint, limit int) ([]entities.Copy, error)
	// ClaimCopy moves a copy from available to borrowed. It reports false
	// when the copy was not available.
	ClaimCopy(copyID uint) (bool, error)
	// ReleaseCopy moves a copy from borrowed to available. It reports false
	// when the copy was not borrowed.
	ReleaseCopy(copyID uint) (bool, error)

	GetBorrowForUpdate(id uint) (*entities.Borrow, error)
	InsertBorrow(b *entities.Borrow) error
	// TransitionBorrow writes b's workflow columns if the stored status is
	// still from. It reports false when another caller moved the borrow.
	TransitionBorrow(b *entities.Borrow, from entities.BorrowStatus) (bool, error)
	HasOpenBorrow(borrowerID, workID uint) (bool, error)
	// MarkOverdue moves every active borrow due before now to overdue.
	MarkOverdue(now time.Time) (int64, error)
}

// IdentityProvider resolves persons. ResolvePerson returns nil, nil for an
// unknown id.
type IdentityProvider interface {
	ResolvePerson(ctx context.Context, id uint) (*entities.Person, error)
	HasRole(person *entities.Person, role entities.Role) bool
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// BorrowFilter narrows ListBorrows. Zero values mean "any".
type BorrowFilter struct {
	BorrowerID uint
	WorkID     uint
	CopyID     uint
	Statuses   []entities.BorrowStatus
	Limit      int
	Offset     int
}
