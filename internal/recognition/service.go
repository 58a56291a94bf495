// Package recognition identifies persons by face and works by cover photo.
//
// Inference itself is delegated to external models behind FaceEncoder and
// CoverClassifier. This package only matches their output against enrolled
// persons and catalogued works.
//
// # Usage
//
//	index := recognition.NewFaceIndex(facesRepo, cfg.Recognition.FaceTolerance)
//	svc := recognition.NewService(index, personsRepo, catalogRepo, encoder, classifier, cfg.Recognition.MinCoverConfidence)
//	person, err := svc.IdentifyPerson(ctx, image)
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/entities"
)

var (
	// ErrNoMatch indicates no enrolled face or catalogued work matched.
	ErrNoMatch = errors.New("no match found")
	// ErrNotConfigured indicates the required inference backend is missing.
	ErrNotConfigured = errors.New("recognition backend not configured")
	// ErrLowConfidence indicates the classifier was not confident enough.
	ErrLowConfidence = errors.New("classification confidence too low")
)

// FaceEncoder turns a photo into a face embedding.
type FaceEncoder interface {
	Encode(ctx context.Context, image []byte) ([]float64, error)
}

// Classification is a cover classifier result.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// CoverClassifier labels a cover photo.
type CoverClassifier interface {
	Classify(ctx context.Context, image []byte) (*Classification, error)
}

// PersonResolver loads persons. Returns nil, nil when not found.
type PersonResolver interface {
	ResolvePerson(ctx context.Context, id uint) (*entities.Person, error)
}

// WorkResolver maps a cover label to a work.
type WorkResolver interface {
	FindWorkByCoverLabel(ctx context.Context, label string) (*entities.WorkView, error)
}

// Service ties inference output to persons and works.
type Service struct {
	index         *FaceIndex
	persons       PersonResolver
	works         WorkResolver
	encoder       FaceEncoder
	classifier    CoverClassifier
	minConfidence float64
}

// NewService creates a recognition service. encoder and classifier may be
// nil, in which case the matching operations return ErrNotConfigured.
func NewService(index *FaceIndex, persons PersonResolver, works WorkResolver, encoder FaceEncoder, classifier CoverClassifier, minConfidence float64) *Service {
	return &Service{
		index:         index,
		persons:       persons,
		works:         works,
		encoder:       encoder,
		classifier:    classifier,
		minConfidence: minConfidence,
	}
}

// FaceEnabled reports whether face identification is available.
func (s *Service) FaceEnabled() bool {
	return s.encoder != nil
}

// CoverEnabled reports whether cover classification is available.
func (s *Service) CoverEnabled() bool {
	return s.classifier != nil
}

// IdentifyPerson returns the active person whose enrolled face matches image.
func (s *Service) IdentifyPerson(ctx context.Context, image []byte) (*entities.Person, error) {
	if s.encoder == nil {
		return nil, ErrNotConfigured
	}
	vector, err := s.encoder.Encode(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to encode face: %w", err)
	}

	match, err := s.index.Match(ctx, vector)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrNoMatch
	}

	person, err := s.persons.ResolvePerson(ctx, match.PersonID)
	if err != nil {
		return nil, err
	}
	if person == nil || !person.Active {
		return nil, ErrNoMatch
	}
	return person, nil
}

// EnrollFace encodes image and stores it as the face of personID.
func (s *Service) EnrollFace(ctx context.Context, personID uint, image []byte) error {
	if s.encoder == nil {
		return ErrNotConfigured
	}
	person, err := s.persons.ResolvePerson(ctx, personID)
	if err != nil {
		return err
	}
	if person == nil {
		return fmt.Errorf("person %d: %w", personID, ErrNoMatch)
	}

	vector, err := s.encoder.Encode(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to encode face: %w", err)
	}
	return s.index.Enroll(ctx, personID, vector)
}

// RemoveFace deletes the enrolled face of personID.
func (s *Service) RemoveFace(ctx context.Context, personID uint) (bool, error) {
	return s.index.Remove(ctx, personID)
}

// ClassifyCover returns the catalogued work whose cover label matches image.
func (s *Service) ClassifyCover(ctx context.Context, image []byte) (*entities.WorkView, *Classification, error) {
	if s.classifier == nil {
		return nil, nil, ErrNotConfigured
	}
	result, err := s.classifier.Classify(ctx, image)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to classify cover: %w", err)
	}
	if result == nil || result.Label == "" {
		return nil, result, ErrNoMatch
	}
	if result.Confidence < s.minConfidence {
		return nil, result, ErrLowConfidence
	}

	work, err := s.works.FindWorkByCoverLabel(ctx, result.Label)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && work == nil) {
		return nil, result, ErrNoMatch
	}
	if err != nil {
		return nil, result, err
	}
	return work, result, nil
}
