// Package borrows stores the borrow ledger and implements
// circulation.Repository on top of gorm.
//
// Copy claims and borrow status changes are compare-and-swap updates
// (UPDATE ... WHERE status = <expected>), so a transaction that lost a race
// sees zero affected rows instead of overwriting the winner. On Postgres the
// rows are additionally locked with SELECT ... FOR UPDATE.
//
// # Usage
//
//	repo := borrows.NewRepository(db)
//	svc := circulation.NewService(repo, persons.NewRepository(db), policy, nil)
package borrows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles all borrow database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new borrows repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn inside a database transaction. Driver errors that mean
// the transaction lost a race are reported as circulation conflicts.
func (r *Repository) Transaction(ctx context.Context, fn func(tx circulation.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&txStore{db: db})
	})
	if err != nil && database.IsConflict(err) {
		return circulation.Conflict(err)
	}
	return err
}

// GetBorrow returns the joined view of one borrow, or nil if it does not exist.
func (r *Repository) GetBorrow(ctx context.Context, id uint) (*entities.BorrowView, error) {
	var views []entities.BorrowView
	err := viewQuery(r.db.WithContext(ctx)).Where("borrows.id = ?", id).Limit(1).Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow %d: %w", id, err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// ListBorrows returns one page of borrows, newest first, and the total count.
func (r *Repository) ListBorrows(ctx context.Context, filter circulation.BorrowFilter) ([]entities.BorrowView, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := applyFilter(db.Model(&entities.Borrow{}), filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count borrows: %w", err)
	}

	views := []entities.BorrowView{}
	query := applyFilter(viewQuery(db), filter).Order("borrows.created_at DESC, borrows.id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Scan(&views).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list borrows: %w", err)
	}
	return views, total, nil
}

// CountByStatus returns how many borrows are in each status.
func (r *Repository) CountByStatus(ctx context.Context) (map[entities.BorrowStatus]int64, error) {
	var rows []struct {
		Status entities.BorrowStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entities.Borrow{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count borrows by status: %w", err)
	}

	counts := make(map[entities.BorrowStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// viewQuery selects borrows joined with the names shown to clients.
func viewQuery(db *gorm.DB) *gorm.DB {
	return db.Table("borrows").
		Select(`borrows.*,
			works.title AS work_title,
			copies.barcode AS copy_barcode,
			COALESCE(NULLIF(borrower.full_name, ''), borrower.username) AS borrower_name,
			COALESCE(NULLIF(staff.full_name, ''), staff.username, '') AS staff_name`).
		Joins("JOIN works ON works.id = borrows.work_id").
		Joins("JOIN copies ON copies.id = borrows.copy_id").
		Joins("JOIN persons AS borrower ON borrower.id = borrows.borrower_id").
		Joins("LEFT JOIN persons AS staff ON staff.id = borrows.staff_id")
}

func applyFilter(db *gorm.DB, filter circulation.BorrowFilter) *gorm.DB {
	if filter.BorrowerID != 0 {
		db = db.Where("borrows.borrower_id = ?", filter.BorrowerID)
	}
	if filter.WorkID != 0 {
		db = db.Where("borrows.work_id = ?", filter.WorkID)
	}
	if filter.CopyID != 0 {
		db = db.Where("borrows.copy_id = ?", filter.CopyID)
	}
	if len(filter.Statuses) > 0 {
		db = db.Where("borrows.status IN ?", filter.Statuses)
	}
	return db
}

// txStore is the circulation.Tx handed to the service inside a transaction.
type txStore struct {
	db *gorm.DB
}

func (t *txStore) GetWork(id uint) (*entities.Work, error) {
	var work entities.Work
	err := t.db.First(&work, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work %d: %w", id, err)
	}
	return &work, nil
}

func (t *txStore) AvailableCopies(workID uint, limit int) ([]entities.Copy, error) {
	var copies []entities.Copy
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("work_id = ? AND status = ?", workID, entities.CopyStatusAvailable).
		Order("id ASC").
		Limit(limit).
		Find(&copies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find available copies of work %d: %w", workID, err)
	}
	return copies, nil
}

func (t *txStore) ClaimCopy(copyID uint) (bool, error) {
	return t.swapCopyStatus(copyID, entities.CopyStatusAvailable, entities.CopyStatusBorrowed)
}

func (t *txStore) ReleaseCopy(copyID uint) (bool, error) {
	return t.swapCopyStatus(copyID, entities.CopyStatusBorrowed, entities.CopyStatusAvailable)
}

func (t *txStore) swapCopyStatus(copyID uint, from, to entities.CopyStatus) (bool, error) {
	result := t.db.Model(&entities.Copy{}).
		Where("id = ? AND status = ?", copyID, from).
		Update("status", to)
	if result.Error != nil {
		return false, fmt.Errorf("failed to move copy %d from %s to %s: %w", copyID, from, to, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (t *txStore) GetBorrowForUpdate(id uint) (*entities.Borrow, error) {
	var borrow entities.Borrow
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&borrow, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow %d: %w", id, err)
	}
	return &borrow, nil
}

func (t *txStore) InsertBorrow(b *entities.Borrow) error {
	if err := t.db.Omit(clause.Associations).Create(b).Error; err != nil {
		return fmt.Errorf("failed to insert borrow: %w", err)
	}
	return nil
}

func (t *txStore) TransitionBorrow(b *entities.Borrow, from entities.BorrowStatus) (bool, error) {
	result := t.db.Model(&entities.Borrow{}).
		Where("id = ? AND status = ?", b.ID, from).
		Updates(map[string]any{
			"status":      b.Status,
			"copy_id":     b.CopyID,
			"copy_held":   b.CopyHeld,
			"staff_id":    b.StaffID,
			"note":        b.Note,
			"borrow_date": b.BorrowDate,
			"due_date":    b.DueDate,
			"return_date": b.ReturnDate,
			"decided_at":  b.DecidedAt,
			"updated_at":  b.UpdatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update borrow %d: %w", b.ID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (t *txStore) HasOpenBorrow(borrowerID, workID uint) (bool, error) {
	var count int64
	err := t.db.Model(&entities.Borrow{}).
		Where("borrower_id = ? AND work_id = ? AND status IN ?", borrowerID, workID, entities.OpenBorrowStatuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open borrows: %w", err)
	}
	return count > 0, nil
}

func (t *txStore) MarkOverdue(now time.Time) (int64, error) {
	now = now.UTC()
	result := t.db.Model(&entities.Borrow{}).
		Where("status = ? AND due_date < ?", entities.BorrowStatusActive, now).
		Updates(map[string]any{
			"status":     entities.BorrowStatusOverdue,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark overdue borrows: %w", result.Error)
	}
	return result.RowsAffected, nil
}
