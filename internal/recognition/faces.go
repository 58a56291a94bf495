package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/librarian/internal/entities"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyEncoding is returned when an encoder produced no vector.
var ErrEmptyEncoding = errors.New("face encoding is empty")

// EncodingStore persists face encodings. Implemented by faces.Repository.
type EncodingStore interface {
	ListEncodings(ctx context.Context) ([]entities.FaceEncoding, error)
	SaveEncoding(ctx context.Context, personID uint, vector string) error
	DeleteEncoding(ctx context.Context, personID uint) (bool, error)
}

// Match is the nearest enrolled person for a probe vector.
type Match struct {
	PersonID uint
	Distance float64
}

type indexEntry struct {
	personID uint
	vector   []float64
}

// FaceIndex keeps every enrolled encoding in memory. It loads lazily on the
// first lookup and reloads after each write that goes through it.
type FaceIndex struct {
	store     EncodingStore
	tolerance float64

	mu      sync.RWMutex
	loaded  bool
	entries []indexEntry
}

// NewFaceIndex creates an index over store. Matches farther than tolerance
// are rejected.
func NewFaceIndex(store EncodingStore, tolerance float64) *FaceIndex {
	return &FaceIndex{store: store, tolerance: tolerance}
}

// Match returns the closest enrolled person within tolerance, or nil.
func (idx *FaceIndex) Match(ctx context.Context, probe []float64) (*Match, error) {
	if len(probe) == 0 {
		return nil, ErrEmptyEncoding
	}
	if err := idx.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *Match
	for _, e := range idx.entries {
		if len(e.vector) != len(probe) {
			continue
		}
		d := euclidean(e.vector, probe)
		if d > idx.tolerance {
			continue
		}
		if best == nil || d < best.Distance {
			best = &Match{PersonID: e.personID, Distance: d}
		}
	}
	return best, nil
}

// Enroll stores the encoding for a person, replacing any previous one.
func (idx *FaceIndex) Enroll(ctx context.Context, personID uint, vector []float64) error {
	if len(vector) == 0 {
		return ErrEmptyEncoding
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode face vector: %w", err)
	}
	if err := idx.store.SaveEncoding(ctx, personID, string(raw)); err != nil {
		return err
	}
	return idx.Reload(ctx)
}

// Remove deletes the encoding for a person.
func (idx *FaceIndex) Remove(ctx context.Context, personID uint) (bool, error) {
	removed, err := idx.store.DeleteEncoding(ctx, personID)
	if err != nil {
		return false, err
	}
	if removed {
		if err := idx.Reload(ctx); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// Size reports how many encodings are loaded.
func (idx *FaceIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Reload replaces the in-memory entries with the stored encodings.
func (idx *FaceIndex) Reload(ctx context.Context) error {
	rows, err := idx.store.ListEncodings(ctx)
	if err != nil {
		return err
	}

	entries := make([]indexEntry, 0, len(rows))
	for _, row := range rows {
		var vector []float64
		if err := json.Unmarshal([]byte(row.Vector), &vector); err != nil {
			// Corrupt rows are skipped.
			continue
		}
		entries = append(entries, indexEntry{personID: row.PersonID, vector: vector})
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.loaded = true
	idx.mu.Unlock()
	return nil
}

func (idx *FaceIndex) ensureLoaded(ctx context.Context) error {
	idx.mu.RLock()
	loaded := idx.loaded
	idx.mu.RUnlock()
	if loaded {
		return nil
	}
	return idx.Reload(ctx)
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
