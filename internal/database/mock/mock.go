// Package mock provides in-memory implementations of the measurement
// store interfaces for testing and for running without a database.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/database"
)

// MockStore is an in-memory measurement store implementing
// database.MeasurementWriter, MeasurementReader and SimilaritySearcher.
type MockStore struct {
	mu   sync.RWMutex
	sets map[uuid.UUID]*database.StoredMeasurementSet

	// Error injection
	SaveError        error
	GetError         error
	ListError        error
	FindSimilarError error
}

// NewMockStore creates a new empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		sets: make(map[uuid.UUID]*database.StoredMeasurementSet),
	}
}

// Register wires the mock store as the active backend.
func (m *MockStore) Register() {
	database.RegisterBackend("mock",
		func() database.MeasurementReader { return m },
		func() database.MeasurementWriter { return m },
		func() database.SimilaritySearcher { return m },
	)
}

// SaveAccepted stores an accepted set. A second save for the same
// session fails, matching the SQL backends' unique constraint.
func (m *MockStore) SaveAccepted(ctx context.Context, set *database.StoredMeasurementSet) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sets {
		if existing.UserID == set.UserID && existing.CaptureSessionID == set.CaptureSessionID {
			return fmt.Errorf("measurement set for user %s session %s already exists", set.UserID, set.CaptureSessionID)
		}
	}

	clone := *set
	clone.Values = append([]database.StoredValue(nil), set.Values...)
	clone.Vector = append([]float32(nil), set.Vector...)
	m.sets[set.ID] = &clone
	return nil
}

// Get retrieves one stored set by ID, nil if not found.
func (m *MockStore) Get(ctx context.Context, id uuid.UUID) (*database.StoredMeasurementSet, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[id], nil
}

// GetBySession retrieves the accepted set for a capture session.
func (m *MockStore) GetBySession(ctx context.Context, userID, sessionID string) (*database.StoredMeasurementSet, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, set := range m.sets {
		if set.UserID == userID && set.CaptureSessionID == sessionID {
			return set, nil
		}
	}
	return nil, nil
}

// ListByUser returns all accepted sets owned by a user, newest first.
func (m *MockStore) ListByUser(ctx context.Context, userID string) ([]database.StoredMeasurementSet, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredMeasurementSet
	for _, set := range m.sets {
		if set.UserID == userID {
			out = append(out, *set)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FindSimilar does a brute-force cosine scan over the stored sets.
func (m *MockStore) FindSimilar(ctx context.Context, vector []float32, limit int) ([]database.SimilarResult, error) {
	if m.FindSimilarError != nil {
		return nil, m.FindSimilarError
	}
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.SimilarResult
	for _, set := range m.sets {
		if len(set.Vector) == 0 {
			continue
		}
		results = append(results, database.SimilarResult{
			Set:      set,
			Distance: database.CosineDistance(vector, set.Vector),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of stored sets.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sets)
}
