package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MeasurementWriter persists accepted measurement sets.
type MeasurementWriter interface {
	// SaveAccepted stores an accepted reconciled set. Accepted sets are
	// immutable; saving the same session twice is an error.
	SaveAccepted(ctx context.Context, set *StoredMeasurementSet) error
}

// MeasurementReader reads persisted measurement sets.
type MeasurementReader interface {
	// Get retrieves one stored set by ID, nil if not found.
	Get(ctx context.Context, id uuid.UUID) (*StoredMeasurementSet, error)
	// GetBySession retrieves the accepted set for a capture session,
	// nil if none was accepted.
	GetBySession(ctx context.Context, userID, sessionID string) (*StoredMeasurementSet, error)
	// ListByUser returns all accepted sets owned by a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]StoredMeasurementSet, error)
}

// SimilaritySearcher finds stored sets near a measurement vector.
type SimilaritySearcher interface {
	FindSimilar(ctx context.Context, vector []float32, limit int) ([]SimilarResult, error)
}

// HNSWRebuilder is implemented by repositories that maintain an
// in-memory HNSW index alongside their backing store.
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory index from the store.
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of indexed sets.
	HNSWCount() int
	// IsHNSWEnabled reports whether the index is active.
	IsHNSWEnabled() bool
	// SaveHNSWIndex persists the index to disk if a path is configured.
	SaveHNSWIndex() error
}

var (
	backendReader   func() MeasurementReader
	backendWriter   func() MeasurementWriter
	backendSearcher func() SimilaritySearcher
	backendHNSW     HNSWRebuilder
	backendName     string
)

// RegisterBackend registers the active measurement store constructors.
// Called once at startup by the chosen backend to avoid import cycles.
func RegisterBackend(name string, reader func() MeasurementReader, writer func() MeasurementWriter, searcher func() SimilaritySearcher) {
	backendName = name
	backendReader = reader
	backendWriter = writer
	backendSearcher = searcher
}

// RegisterHNSWRebuilder registers the repository that owns the HNSW
// index so it can be rebuilt and saved without knowing the concrete type.
func RegisterHNSWRebuilder(rebuilder HNSWRebuilder) {
	backendHNSW = rebuilder
}

// GetHNSWRebuilder returns the registered rebuilder, or nil.
func GetHNSWRebuilder() HNSWRebuilder {
	return backendHNSW
}

// IsInitialized reports whether a backend has been registered.
func IsInitialized() bool {
	return backendName != ""
}

// BackendName returns the registered backend name, or empty.
func BackendName() string {
	return backendName
}

// GetReader returns the active MeasurementReader.
func GetReader() (MeasurementReader, error) {
	if backendReader == nil {
		return nil, fmt.Errorf("measurement store not initialized: DATABASE_URL or MARIADB_DSN is required")
	}
	return backendReader(), nil
}

// GetWriter returns the active MeasurementWriter.
func GetWriter() (MeasurementWriter, error) {
	if backendWriter == nil {
		return nil, fmt.Errorf("measurement store not initialized: DATABASE_URL or MARIADB_DSN is required")
	}
	return backendWriter(), nil
}

// GetSearcher returns the active SimilaritySearcher.
func GetSearcher() (SimilaritySearcher, error) {
	if backendSearcher == nil {
		return nil, fmt.Errorf("similarity search not available on the %q backend", backendName)
	}
	return backendSearcher(), nil
}
