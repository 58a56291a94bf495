// Package faces stores one face encoding per person.
//
// # Usage
//
//	repo := faces.NewRepository(db).WithSealer(sealer) // sealer is optional
//	index := recognition.NewFaceIndex(repo, cfg.Recognition.FaceTolerance)
package faces

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/crypto"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles face encoding database operations.
type Repository struct {
	db     *gorm.DB
	sealer *crypto.Sealer
}

// NewRepository creates a new faces repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithSealer encrypts vectors on write and decrypts them on read.
// Rows written without a sealer are still readable.
func (r *Repository) WithSealer(sealer *crypto.Sealer) *Repository {
	r.sealer = sealer
	return r
}

// ListEncodings returns the encodings of all active persons.
func (r *Repository) ListEncodings(ctx context.Context) ([]entities.FaceEncoding, error) {
	var encodings []entities.FaceEncoding
	err := r.db.WithContext(ctx).
		Joins("JOIN persons ON persons.id = face_encodings.person_id").
		Where("persons.active = ?", true).
		Order("face_encodings.person_id ASC").
		Find(&encodings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list face encodings: %w", err)
	}
	if r.sealer != nil {
		for i := range encodings {
			vector, err := r.sealer.Open(encodings[i].Vector)
			if err != nil {
				return nil, fmt.Errorf("failed to open face encoding of person %d: %w", encodings[i].PersonID, err)
			}
			encodings[i].Vector = vector
		}
	}
	return encodings, nil
}

// SaveEncoding stores or replaces the encoding of a person.
func (r *Repository) SaveEncoding(ctx context.Context, personID uint, vector string) error {
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(vector)
		if err != nil {
			return fmt.Errorf("failed to seal face encoding: %w", err)
		}
		vector = sealed
	}

	now := time.Now().UTC()
	encoding := entities.FaceEncoding{
		PersonID:  personID,
		Vector:    vector,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vector", "updated_at"}),
	}).Create(&encoding).Error
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("person %d does not exist: %w", personID, err)
		}
		return fmt.Errorf("failed to save face encoding: %w", err)
	}
	return nil
}

// DeleteEncoding removes the encoding of a person. It reports whether one existed.
func (r *Repository) DeleteEncoding(ctx context.Context, personID uint) (bool, error) {
	result := r.db.WithContext(ctx).Where("person_id = ?", personID).Delete(&entities.FaceEncoding{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete face encoding: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
