package http

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/recognition"
	"github.com/mrlokans/librarian/internal/reports"
)

// Each controller declares the narrow interface it needs; this file keeps
// them together.

// BorrowService runs the borrow lifecycle.
type BorrowService interface {
	CreateBorrow(ctx context.Context, req circulation.CreateBorrowRequest) (*entities.Borrow, error)
	ApproveBorrow(ctx context.Context, borrowID, staffID uint) (*entities.Borrow, error)
	RejectBorrow(ctx context.Context, borrowID, staffID uint, reason string) (*entities.Borrow, error)
	CancelBorrow(ctx context.Context, borrowID, actorID uint) (*entities.Borrow, error)
	ReturnBorrow(ctx context.Context, borrowID uint) (*entities.Borrow, error)
	GetBorrow(ctx context.Context, id uint) (*entities.BorrowView, error)
	ListBorrows(ctx context.Context, filter circulation.BorrowFilter) ([]entities.BorrowView, int64, error)
	ListOpenBorrows(ctx context.Context, personID uint) ([]entities.BorrowView, error)
}

// OverdueSweeper runs an overdue sweep on demand.
type OverdueSweeper interface {
	RunNow(ctx context.Context) (int64, error)
}

// CatalogStore covers works, copies and reference data.
type CatalogStore interface {
	CreateWork(ctx context.Context, in catalog.WorkInput) (*entities.WorkView, error)
	GetWork(ctx context.Context, id uint) (*entities.WorkView, error)
	ListWorks(ctx context.Context, filter catalog.WorkFilter) ([]entities.WorkView, int64, error)
	UpdateWork(ctx context.Context, id uint, in catalog.WorkInput) (*entities.WorkView, error)
	DeleteWork(ctx context.Context, id uint) error

	AddCopy(ctx context.Context, workID uint, bookshelfID *uint, barcode string) (*entities.Copy, error)
	GetCopy(ctx context.Context, id uint) (*entities.Copy, error)
	ListCopies(ctx context.Context, workID uint) ([]entities.Copy, error)
	MoveCopy(ctx context.Context, id uint, bookshelfID *uint) (*entities.Copy, error)
	SetCopyStatus(ctx context.Context, id uint, to entities.CopyStatus) (*entities.Copy, error)
	DeleteCopy(ctx context.Context, id uint) error

	CreateAuthor(ctx context.Context, name string) (*entities.Author, error)
	ListAuthors(ctx context.Context) ([]entities.Author, error)
	CreatePublisher(ctx context.Context, name string) (*entities.Publisher, error)
	ListPublishers(ctx context.Context) ([]entities.Publisher, error)
	CreateCategory(ctx context.Context, name string) (*entities.Category, error)
	ListCategories(ctx context.Context) ([]entities.Category, error)
	CreateBookshelf(ctx context.Context, name, location string) (*entities.Bookshelf, error)
	ListBookshelves(ctx context.Context) ([]entities.Bookshelf, error)
}

// PersonStore reads and updates person records.
type PersonStore interface {
	GetPersonByID(ctx context.Context, id uint) (*entities.Person, error)
	ListPersons(ctx context.Context, filter persons.Filter) ([]entities.Person, int64, error)
	UpdateProfile(ctx context.Context, id uint, fullName, email, phone string, role entities.Role) (*entities.Person, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

// AccountCreator creates persons with hashed credentials.
type AccountCreator interface {
	CreateAccount(in auth.AccountInput) (*entities.Person, error)
	SetPassword(personID uint, password string) error
}

// FaceRegistry enrolls and removes face encodings.
type FaceRegistry interface {
	FaceEnabled() bool
	EnrollFace(ctx context.Context, personID uint, image []byte) error
	RemoveFace(ctx context.Context, personID uint) (bool, error)
}

// CoverIdentifier resolves a cover photo to a work.
type CoverIdentifier interface {
	CoverEnabled() bool
	ClassifyCover(ctx context.Context, image []byte) (*entities.WorkView, *recognition.Classification, error)
}

// ReportsStore computes library statistics.
type ReportsStore interface {
	Summary(ctx context.Context) (*reports.Summary, error)
	MonthlyBorrows(ctx context.Context, months int, now time.Time) ([]reports.MonthlyCount, error)
	TopWorks(ctx context.Context, limit int) ([]reports.TopWork, error)
}

// AuditReader lists audit events.
type AuditReader interface {
	GetEvents(ctx context.Context, filter auditRepo.Filter) ([]entities.AuditEvent, int64, error)
}

// Auditor records changes made through the API. Calls must not block.
type Auditor interface {
	LogBorrow(actorID uint, action string, borrowID uint, b *entities.Borrow, err error)
	LogCatalog(actorID uint, action, entityType string, entityID uint, description string)
	LogPerson(actorID uint, action string, personID uint, description string)
}

type nopAuditor struct{}

func (nopAuditor) LogBorrow(uint, string, uint, *entities.Borrow, error) {}
func (nopAuditor) LogCatalog(uint, string, string, uint, string) {}
func (nopAuditor) LogPerson(uint, string, uint, string) {}
