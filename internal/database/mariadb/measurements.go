package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/database"
)

// MeasurementRepository provides MariaDB-backed measurement storage.
// Similar-body search always goes through the HNSW index; without it
// the backend has no vector ordering.
type MeasurementRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string
	hnswMu        sync.RWMutex
}

// NewMeasurementRepository creates a new MariaDB measurement repository.
func NewMeasurementRepository(pool *Pool) *MeasurementRepository {
	return &MeasurementRepository{pool: pool}
}

// SaveAccepted stores an accepted reconciled set and its values in one
// transaction. Accepted sets are immutable; a second accept for the
// same session fails on the unique key.
func (r *MeasurementRepository) SaveAccepted(ctx context.Context, set *database.StoredMeasurementSet) error {
	vec, err := json.Marshal(set.Vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO measurement_sets
			(id, user_id, capture_session_id, pose_type, calibration_ratio,
			 is_accurate, verified_by_user, vector_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		set.ID.String(), set.UserID, set.CaptureSessionID, set.PoseType, set.CalibrationRatio,
		set.IsAccurate, set.VerifiedByUser, vec, set.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert measurement set: %w", err)
	}

	for _, v := range set.Values {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO measurement_values
				(set_id, name, centimeters, confidence, estimated_from_front_only, conflicting, sources)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, set.ID.String(), v.Name, v.Centimeters, v.Confidence, v.EstimatedFromFrontOnly, v.Conflicting, v.Sources)
		if err != nil {
			return fmt.Errorf("insert measurement value %s: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit measurement set: %w", err)
	}

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
		       is_accurate, verified_by_user, vector_json, created_at
		FROM measurement_sets
		WHERE id = ?
	`, id.String())
}

// GetBySession retrieves the accepted set for a capture session.
func (r *MeasurementRepository) GetBySession(ctx context.Context, userID, sessionID string) (*database.StoredMeasurementSet, error) {
	return r.scanOne(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector_json, created_at
		FROM measurement_sets
		WHERE user_id = ? AND capture_session_id = ?
	`, userID, sessionID)
}

func (r *MeasurementRepository) scanOne(ctx context.Context, query string, args ...any) (*database.StoredMeasurementSet, error) {
	row := r.pool.db.QueryRowContext(ctx, query, args...)
	set, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get measurement set: %w", err)
	}

	if err := r.loadValues(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// ListByUser returns all accepted sets owned by a user, newest first.
func (r *MeasurementRepository) ListByUser(ctx context.Context, userID string) ([]database.StoredMeasurementSet, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector_json, created_at
		FROM measurement_sets
		WHERE user_id = ?
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
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, user_id, capture_session_id, pose_type, calibration_ratio,
		       is_accurate, verified_by_user, vector_json, created_at
		FROM measurement_sets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSet(row rowScanner) (*database.StoredMeasurementSet, error) {
	var set database.StoredMeasurementSet
	var id string
	var vec []byte

	err := row.Scan(
		&id, &set.UserID, &set.CaptureSessionID, &set.PoseType, &set.CalibrationRatio,
		&set.IsAccurate, &set.VerifiedByUser, &vec, &set.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	set.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse set id %q: %w", id, err)
	}
	if len(vec) > 0 {
		if err := json.Unmarshal(vec, &set.Vector); err != nil {
			return nil, fmt.Errorf("unmarshal vector for set %s: %w", id, err)
		}
	}
	return &set, nil
}

func scanSets(rows *sql.Rows) ([]database.StoredMeasurementSet, error) {
	var sets []database.StoredMeasurementSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement set: %w", err)
		}
		sets = append(sets, *set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurement sets: %w", err)
	}
	return sets, nil
}

func (r *MeasurementRepository) loadValues(ctx context.Context, set *database.StoredMeasurementSet) error {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT name, centimeters, confidence, estimated_from_front_only, conflicting, sources
		FROM measurement_values
		WHERE set_id = ?
		ORDER BY name
	`, set.ID.String())
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
// Requires the HNSW index; MariaDB cannot order by vector distance.
func (r *MeasurementRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]database.SimilarResult, error) {
	if limit <= 0 {
		limit = 10
	}

	r.hnswMu.RLock()
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if !enabled {
		return nil, errors.New("similarity search requires the HNSW index on the mariadb backend")
	}
	return r.hnswIndex.Search(vector, limit)
}

// EnableHNSW builds or loads the in-memory similarity index.
func (r *MeasurementRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	idx := database.NewHNSWIndex()
	sets, err := r.listAll(ctx)
	if err != nil {
		return fmt.Errorf("loading measurement sets for HNSW: %w", err)
	}
	if err := idx.BuildFromSets(sets); err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}
	idx.SetPath(indexPath)

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
