package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/bodymorph/bodymorph/internal/database"
)

// MeasurementRepository provides PostgreSQL-backed measurement storage
// with an optional in-memory HNSW index for similar-body search.
type MeasurementRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist the HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewMeasurementRepository creates a new PostgreSQL measurement repository.
func NewMeasurementRepository(pool *Pool) *MeasurementRepository {
	return &MeasurementRepository{pool: pool}
}

// SaveAccepted stores an accepted reconciled set and its values in one
// transaction. There is no update path: accepted sets are immutable, and
// a second accept for the same session fails on the unique constraint.
func (r *MeasurementRepository) SaveAccepted(ctx context.Context, set *database.StoredMeasurementSet) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO measurement_sets
			(id, user_id, capture_session_id, pose_type, calibration_ratio,
			 is_accurate, verified_by_user, vector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		set.ID, set.UserID, set.CaptureSessionID, set.PoseType, set.CalibrationRatio,
		set.IsAccurate, set.VerifiedByUser, pgvector.NewVector(set.Vector), set.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert measurement set: %w", err)
	}

	for _, v := range set.Values {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO measurement_values
				(set_id, name, centimeters, confidence, estimated_from_front_only, conflicting, sources)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, set.ID, v.Name, v.Centimeters, v.Confidence, v.EstimatedFromFrontOnly, v.Conflicting, v.Sources)
		if err != nil {
			return fmt.Errorf("insert measurement value %s: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit measurement set: %w", err)
	}

	// Keep the similarity index in step with the store.
	r.hnswMu.RLock()
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if enabled {
		if err := r.hnswIndex.Add(set); err != nil {
			log.Printf("Warning: failed to index measurement set %s: %v", set.ID, err)
		}
	}
	return nil
}

// Get retrieves one stored set by ID, nil if not found.
func (r *MeasurementRepository) Get(ctx context.Context, id uuid.UUID) (*database.StoredMeasurementSet, error) {
	return r.scanOne(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector, created_at
		FROM measurement_sets
		WHERE id = $1
	`, id)
}

// GetBySession retrieves the accepted set for a capture session.
func (r *MeasurementRepository) GetBySession(ctx context.Context, userID, sessionID string) (*database.StoredMeasurementSet, error) {
	return r.scanOne(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector, created_at
		FROM measurement_sets
		WHERE user_id = $1 AND capture_session_id = $2
	`, userID, sessionID)
}

func (r *MeasurementRepository) scanOne(ctx context.Context, query string, args ...any) (*database.StoredMeasurementSet, error) {
	var set database.StoredMeasurementSet
	var vec pgvector.Vector

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&set.ID, &set.UserID, &set.CaptureSessionID, &set.PoseType, &set.CalibrationRatio,
		&set.IsAccurate, &set.VerifiedByUser, &vec, &set.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get measurement set: %w", err)
	}
	set.Vector = vec.Slice()

	if err := r.loadValues(ctx, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ListByUser returns all accepted sets owned by a user, newest first.
func (r *MeasurementRepository) ListByUser(ctx context.Context, userID string) ([]database.StoredMeasurementSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector, created_at
		FROM measurement_sets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets, err := scanSets(rows)
	if err != nil {
		return nil, err
	}
	for i := range sets {
		if err := r.loadValues(ctx, &sets[i]); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// listAll returns every stored set, used to build the HNSW index.
func (r *MeasurementRepository) listAll(ctx context.Context) ([]database.StoredMeasurementSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector, created_at
		FROM measurement_sets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

func scanSets(rows *sql.Rows) ([]database.StoredMeasurementSet, error) {
	var sets []database.StoredMeasurementSet
	for rows.Next() {
		var set database.StoredMeasurementSet
		var vec pgvector.Vector
		if err := rows.Scan(
			&set.ID, &set.UserID, &set.CaptureSessionID, &set.PoseType, &set.CalibrationRatio,
			&set.IsAccurate, &set.VerifiedByUser, &vec, &set.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan measurement set: %w", err)
		}
		set.Vector = vec.Slice()
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurement sets: %w", err)
	}
	return sets, nil
}

func (r *MeasurementRepository) loadValues(ctx context.Context, set *database.StoredMeasurementSet) error {
	rows, err := r.pool.Query(ctx, `
		SELECT name, centimeters, confidence, estimated_from_front_only, conflicting, sources
		FROM measurement_values
		WHERE set_id = $1
		ORDER BY name
	`, set.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var v database.StoredValue
		if err := rows.Scan(&v.Name, &v.Centimeters, &v.Confidence,
			&v.EstimatedFromFrontOnly, &v.Conflicting, &v.Sources); err != nil {
			return fmt.Errorf("scan measurement value: %w", err)
		}
		set.Values = append(set.Values, v)
	}
	return rows.Err()
}

// FindSimilar returns the stored sets nearest to the query vector.
// Uses the in-memory HNSW index when enabled, otherwise pgvector ordering.
func (r *MeasurementRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]database.SimilarResult, error) {
	if limit <= 0 {
		limit = 10
	}

	r.hnswMu.RLock()
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if enabled {
		return r.hnswIndex.Search(vector, limit)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector, created_at,
		       vector <=> $1::vector AS distance
		FROM measurement_sets
		ORDER BY vector <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []database.SimilarResult
	for rows.Next() {
		var set database.StoredMeasurementSet
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(
			&set.ID, &set.UserID, &set.CaptureSessionID, &set.PoseType, &set.CalibrationRatio,
			&set.IsAccurate, &set.VerifiedByUser, &vec, &set.CreatedAt, &distance,
		); err != nil {
			return nil, fmt.Errorf("scan similar set: %w", err)
		}
		set.Vector = vec.Slice()
		results = append(results, database.SimilarResult{Set: &set, Distance: distance})
	}
	return results, rows.Err()
}

// EnableHNSW builds or loads the in-memory similarity index.
func (r *MeasurementRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	sets, err := r.listAll(ctx)
	if err != nil {
		return fmt.Errorf("loading measurement sets for HNSW: %w", err)
	}

	idx := database.NewHNSWIndex()
	loaded := false
	if indexPath != "" {
		if err := idx.LoadWithSets(indexPath, sets); err != nil {
			log.Printf("Rebuilding HNSW index, saved copy unusable: %v", err)
		} else {
			loaded = true
		}
	}
	if !loaded {
		if err := idx.BuildFromSets(sets); err != nil {
			return fmt.Errorf("building HNSW index: %w", err)
		}
		idx.SetPath(indexPath)
		if indexPath != "" && len(sets) > 0 {
			if err := idx.Save(); err != nil {
				log.Printf("Warning: failed to save HNSW index to disk: %v", err)
			}
		}
	}

	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswIndexPath = indexPath
	return nil
}

// RebuildHNSW rebuilds the in-memory index from the store.
func (r *MeasurementRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if !enabled {
		return errors.New("HNSW index not enabled")
	}

	sets, err := r.listAll(ctx)
	if err != nil {
		return fmt.Errorf("loading measurement sets for HNSW: %w", err)
	}
	return r.hnswIndex.BuildFromSets(sets)
}

// HNSWCount returns the number of indexed sets.
func (r *MeasurementRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled {
		return 0
	}
	return r.hnswIndex.Count()
}

// IsHNSWEnabled reports whether the index is active.
func (r *MeasurementRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled
}

// SaveHNSWIndex persists the index to disk if a path is configured.
func (r *MeasurementRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled {
		return nil
	}
	return r.hnswIndex.Save()
}
