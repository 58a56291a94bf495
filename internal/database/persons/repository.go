// Package persons provides database operations for borrowers and staff.
//
// It also implements circulation.IdentityProvider, the only view of people
// the borrow workflow gets.
//
// # Usage
//
//	repo := persons.NewRepository(db)
//	person, err := repo.ResolvePerson(ctx, id)
package persons

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

var (
	ErrPersonNotFound = errors.New("person not found")
	ErrPersonExists   = errors.New("person already exists")
	ErrInvalidRole    = errors.New("invalid role")
)

// Filter narrows ListPersons. Zero values mean "any".
type Filter struct {
	Role       entities.Role
	ActiveOnly bool
	Query      string // matches username, full name or email
	Limit      int
	Offset     int
}

// Repository handles all person database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new persons repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreatePerson inserts a new active person.
func (r *Repository) CreatePerson(ctx context.Context, person *entities.Person) error {
	if person.Role == "" {
		person.Role = entities.RoleBorrower
	}
	if !person.Role.Valid() {
		return ErrInvalidRole
	}
	person.Active = true

	if err := r.db.WithContext(ctx).Create(person).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return ErrPersonExists
		}
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// GetPersonByID retrieves a person by ID.
func (r *Repository) GetPersonByID(ctx context.Context, id uint) (*entities.Person, error) {
	var person entities.Person
	err := r.db.WithContext(ctx).First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return &person, nil
}

// GetPersonByUsername retrieves a person by username.
func (r *Repository) GetPersonByUsername(ctx context.Context, username string) (*entities.Person, error) {
	var person entities.Person
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return &person, nil
}

// ListPersons returns one page of persons ordered by username and the total count.
func (r *Repository) ListPersons(ctx context.Context, filter Filter) ([]entities.Person, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Person{})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count persons: %w", err)
	}

	persons := []entities.Person{}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Order("username ASC").Find(&persons).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list persons: %w", err)
	}
	return persons, total, nil
}

// UpdateProfile changes contact details and role. Empty strings leave a field unchanged.
func (r *Repository) UpdateProfile(ctx context.Context, id uint, fullName, email, phone string, role entities.Role) (*entities.Person, error) {
	updates := map[string]any{}
	if fullName != "" {
		updates["full_name"] = fullName
	}
	if email != "" {
		updates["email"] = email
	}
	if phone != "" {
		updates["phone"] = phone
	}
	if role != "" {
		if !role.Valid() {
			return nil, ErrInvalidRole
		}
		updates["role"] = role
	}

	if len(updates) > 0 {
		result := r.db.WithContext(ctx).Model(&entities.Person{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update person %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrPersonNotFound
		}
	}
	return r.GetPersonByID(ctx, id)
}

// SetActive activates or deactivates a person. Persons are never deleted so
// that historical borrows keep their references.
func (r *Repository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&entities.Person{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update person %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// CountActive returns the number of active persons.
func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Person{}).Where("active = ?", true).Count(&count).Error
	return count, err
}

// ResolvePerson implements circulation.IdentityProvider. Unknown ids yield nil, nil.
func (r *Repository) ResolvePerson(ctx context.Context, id uint) (*entities.Person, error) {
	person, err := r.GetPersonByID(ctx, id)
	if errors.Is(err, ErrPersonNotFound) {
		return nil, nil
	}
	return person, err
}

// HasRole implements circulation.IdentityProvider. Admins hold the staff role.
func (r *Repository) HasRole(person *entities.Person, role entities.Role) bool {
	if person == nil || !person.Active {
		return false
	}
	return person.Role.Includes(role)
}
