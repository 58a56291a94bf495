// Package catalog provides database operations for works, their copies and
// the reference data (authors, publishers, categories, bookshelves) they
// point to.
//
// Copy status is owned by the circulation service. This package only moves
// copies between available and the staff-only states (reserved, lost).
//
// # Usage
//
//	repo := catalog.NewRepository(db)
//	view, err := repo.GetWork(ctx, workID)
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrTitleRequired     = errors.New("title is required")
	ErrNameRequired      = errors.New("name is required")
	ErrDuplicate         = errors.New("already exists")
	ErrWorkHasCopies     = errors.New("work still has copies")
	ErrCopyInUse         = errors.New("copy is referenced by borrows")
	ErrCopyNotAvailable  = errors.New("copy is not in the expected status")
	ErrInvalidCopyStatus = errors.New("invalid copy status")
	ErrInvalidReference  = errors.New("referenced author, publisher, category or bookshelf does not exist")
)

// WorkFilter narrows ListWorks. Zero values mean "any".
type WorkFilter struct {
	Query      string // matches title, ISBN or author name
	AuthorID   uint
	CategoryID uint
	Limit      int
	Offset     int
}

// WorkInput carries the editable fields of a Work.
type WorkInput struct {
	Title           string `json:"title"`
	ISBN            string `json:"isbn"`
	Summary         string `json:"summary"`
	PublicationYear int    `json:"publication_year"`
	CoverLabel      string `json:"cover_label"`
	AuthorID        *uint  `json:"author_id"`
	PublisherID     *uint  `json:"publisher_id"`
	CategoryID      *uint  `json:"category_id"`
}

// Repository handles all catalog database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

const workViewColumns = `works.id, works.title, works.isbn, works.summary, works.publication_year, works.cover_label,
	works.author_id, authors.name AS author_name,
	works.publisher_id, publishers.name AS publisher_name,
	works.category_id, categories.name AS category_name,
	(SELECT COUNT(*) FROM copies c WHERE c.work_id = works.id) AS total_copies,
	(SELECT COUNT(*) FROM copies c WHERE c.work_id = works.id AND c.status = ?) AS available_copies`

// workViews builds the flat joined projection of works.
func workViews(db *gorm.DB) *gorm.DB {
	return db.Table("works").
		Select(workViewColumns, entities.CopyStatusAvailable).
		Joins("LEFT JOIN authors ON authors.id = works.author_id").
		Joins("LEFT JOIN publishers ON publishers.id = works.publisher_id").
		Joins("LEFT JOIN categories ON categories.id = works.category_id")
}

// CreateWork catalogues a new work.
func (r *Repository) CreateWork(ctx context.Context, in WorkInput) (*entities.WorkView, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	work := &entities.Work{
		Title:           strings.TrimSpace(in.Title),
		ISBN:            in.ISBN,
		Summary:         in.Summary,
		PublicationYear: in.PublicationYear,
		CoverLabel:      in.CoverLabel,
		AuthorID:        in.AuthorID,
		PublisherID:     in.PublisherID,
		CategoryID:      in.CategoryID,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(work).Error; err != nil {
		return nil, translate("create work", err)
	}
	return r.GetWork(ctx, work.ID)
}

// GetWork returns the joined view of a work.
func (r *Repository) GetWork(ctx context.Context, id uint) (*entities.WorkView, error) {
	var views []entities.WorkView
	if err := workViews(r.db.WithContext(ctx)).Where("works.id = ?", id).Limit(1).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to get work %d: %w", id, err)
	}
	if len(views) == 0 {
		return nil, ErrNotFound
	}
	return &views[0], nil
}

// FindWorkByCoverLabel resolves a cover classifier label to a work.
func (r *Repository) FindWorkByCoverLabel(ctx context.Context, label string) (*entities.WorkView, error) {
	if label == "" {
		return nil, ErrNotFound
	}
	var views []entities.WorkView
	err := workViews(r.db.WithContext(ctx)).Where("works.cover_label = ?", label).Order("works.id ASC").Limit(1).Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find work by cover label: %w", err)
	}
	if len(views) == 0 {
		return nil, ErrNotFound
	}
	return &views[0], nil
}

// ListWorks returns one page of works ordered by title and the total count.
func (r *Repository) ListWorks(ctx context.Context, filter WorkFilter) ([]entities.WorkView, int64, error) {
	db := r.db.WithContext(ctx)
	where := func(q *gorm.DB) *gorm.DB {
		if filter.AuthorID != 0 {
			q = q.Where("works.author_id = ?", filter.AuthorID)
		}
		if filter.CategoryID != 0 {
			q = q.Where("works.category_id = ?", filter.CategoryID)
		}
		if s := strings.TrimSpace(filter.Query); s != "" {
			pattern := "%" + strings.ToLower(s) + "%"
			q = q.Where("LOWER(works.title) LIKE ? OR works.isbn = ? OR LOWER(authors.name) LIKE ?", pattern, s, pattern)
		}
		return q
	}

	var total int64
	countQuery := db.Table("works").Joins("LEFT JOIN authors ON authors.id = works.author_id")
	if err := where(countQuery).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count works: %w", err)
	}

	views := []entities.WorkView{}
	query := where(workViews(db)).Order("works.title ASC, works.id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Scan(&views).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list works: %w", err)
	}
	return views, total, nil
}

// UpdateWork replaces the editable fields of a work.
func (r *Repository) UpdateWork(ctx context.Context, id uint, in WorkInput) (*entities.WorkView, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	result := r.db.WithContext(ctx).Model(&entities.Work{}).Where("id = ?", id).Updates(map[string]any{
		"title":            strings.TrimSpace(in.Title),
		"isbn":             in.ISBN,
		"summary":          in.Summary,
		"publication_year": in.PublicationYear,
		"cover_label":      in.CoverLabel,
		"author_id":        in.AuthorID,
		"publisher_id":     in.PublisherID,
		"category_id":      in.CategoryID,
	})
	if result.Error != nil {
		return nil, translate("update work", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetWork(ctx, id)
}

// DeleteWork removes a work that has no copies left.
func (r *Repository) DeleteWork(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var copies int64
		if err := tx.Model(&entities.Copy{}).Where("work_id = ?", id).Count(&copies).Error; err != nil {
			return fmt.Errorf("failed to count copies: %w", err)
		}
		if copies > 0 {
			return ErrWorkHasCopies
		}
		result := tx.Delete(&entities.Work{}, id)
		if result.Error != nil {
			return translate("delete work", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddCopy catalogues a new available copy of a work.
func (r *Repository) AddCopy(ctx context.Context, workID uint, bookshelfID *uint, barcode string) (*entities.Copy, error) {
	cp := &entities.Copy{
		WorkID:      workID,
		BookshelfID: bookshelfID,
		Barcode:     barcode,
		Status:      entities.CopyStatusAvailable,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(cp).Error; err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to add copy: %w", err)
	}
	return cp, nil
}

// GetCopy retrieves a copy by ID.
func (r *Repository) GetCopy(ctx context.Context, id uint) (*entities.Copy, error) {
	var cp entities.Copy
	if err := r.db.WithContext(ctx).First(&cp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cp, nil
}

// ListCopies returns the copies of a work, oldest first.
func (r *Repository) ListCopies(ctx context.Context, workID uint) ([]entities.Copy, error) {
	copies := []entities.Copy{}
	err := r.db.WithContext(ctx).Where("work_id = ?", workID).Order("id ASC").Find(&copies).Error
	return copies, err
}

// MoveCopy shelves a copy somewhere else. A nil shelf clears the location.
func (r *Repository) MoveCopy(ctx context.Context, id uint, bookshelfID *uint) (*entities.Copy, error) {
	result := r.db.WithContext(ctx).Model(&entities.Copy{}).Where("id = ?", id).Update("bookshelf_id", bookshelfID)
	if result.Error != nil {
		return nil, translate("move copy", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetCopy(ctx, id)
}

// SetCopyStatus moves a copy between available and a staff-only status
// (reserved or lost). Borrowed is never set or cleared here.
func (r *Repository) SetCopyStatus(ctx context.Context, id uint, to entities.CopyStatus) (*entities.Copy, error) {
	var from entities.CopyStatus
	switch to {
	case entities.CopyStatusLost, entities.CopyStatusReserved:
		from = entities.CopyStatusAvailable
	case entities.CopyStatusAvailable:
		return r.restoreCopy(ctx, id)
	default:
		return nil, ErrInvalidCopyStatus
	}

	result := r.db.WithContext(ctx).Model(&entities.Copy{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update copy %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetCopy(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrCopyNotAvailable
	}
	return r.GetCopy(ctx, id)
}

func (r *Repository) restoreCopy(ctx context.Context, id uint) (*entities.Copy, error) {
	result := r.db.WithContext(ctx).Model(&entities.Copy{}).
		Where("id = ? AND status IN ?", id, []entities.CopyStatus{entities.CopyStatusLost, entities.CopyStatusReserved}).
		Update("status", entities.CopyStatusAvailable)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update copy %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetCopy(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrCopyNotAvailable
	}
	return r.GetCopy(ctx, id)
}

// DeleteCopy removes a copy that no borrow has ever referenced.
func (r *Repository) DeleteCopy(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var borrows int64
		if err := tx.Model(&entities.Borrow{}).Where("copy_id = ?", id).Count(&borrows).Error; err != nil {
			return fmt.Errorf("failed to count borrows: %w", err)
		}
		if borrows > 0 {
			return ErrCopyInUse
		}
		result := tx.Delete(&entities.Copy{}, id)
		if result.Error != nil {
			return translate("delete copy", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// translate maps constraint failures onto the package errors.
func translate(action string, err error) error {
	switch {
	case database.IsForeignKeyViolation(err):
		return ErrInvalidReference
	case database.IsUniqueViolation(err):
		return ErrDuplicate
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
