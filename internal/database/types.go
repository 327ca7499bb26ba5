// Package database defines the measurement store interfaces, the typed
// records it persists, and the in-memory similarity index over accepted
// measurement sets.
package database

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/pose"
)

// StoredValue is one named measurement inside a stored set. Values are
// typed columns, not serialized blobs, so the schema is queryable and
// validated against the active plan.
type StoredValue struct {
	Name                   string
	Centimeters            float64
	Confidence             float64
	EstimatedFromFrontOnly bool
	Conflicting            bool
	Sources                string // comma-separated contributing views
}

// StoredMeasurementSet is a persisted measurement set, keyed by
// (user_id, capture_session_id). Accepted sets are write-once; the store
// exposes no update path for them.
type StoredMeasurementSet struct {
	ID               uuid.UUID
	UserID           string
	CaptureSessionID string
	PoseType         string
	CalibrationRatio float64
	IsAccurate       bool
	VerifiedByUser   bool
	CreatedAt        time.Time
	Values           []StoredValue

	// Vector is the plan-ordered measurement vector used for
	// similar-body search.
	Vector []float32
}

// SimilarResult pairs a stored set with its cosine distance to a query.
type SimilarResult struct {
	Set      *StoredMeasurementSet
	Distance float64
}

// FromMeasureSet converts a reconciled measurement set into its stored
// form, deriving the similarity vector from the plan ordering.
func FromMeasureSet(set *measure.Set, plan *measure.Plan) *StoredMeasurementSet {
	out := &StoredMeasurementSet{
		ID:               uuid.New(),
		UserID:           set.UserID,
		CaptureSessionID: set.CaptureSessionID,
		PoseType:         string(set.View),
		CalibrationRatio: set.CalibrationRatio,
		IsAccurate:       set.IsAccurate,
		VerifiedByUser:   set.VerifiedByUser,
		CreatedAt:        set.CreatedAt,
		Vector:           set.Vector(plan),
	}

	// Keep plan order so rows are stable across saves.
	for _, entry := range plan.Measurements {
		v, ok := set.Values[entry.Name]
		if !ok {
			continue
		}
		out.Values = append(out.Values, StoredValue{
			Name:                   entry.Name,
			Centimeters:            v.Centimeters,
			Confidence:             v.Confidence,
			EstimatedFromFrontOnly: v.EstimatedFromFrontOnly,
			Conflicting:            v.Conflicting,
			Sources:                joinSources(v.Sources),
		})
	}
	return out
}

// ToMeasureSet converts a stored set back to the pipeline representation.
func (s *StoredMeasurementSet) ToMeasureSet() *measure.Set {
	out := &measure.Set{
		UserID:           s.UserID,
		CaptureSessionID: s.CaptureSessionID,
		View:             pose.View(s.PoseType),
		CalibrationRatio: s.CalibrationRatio,
		IsAccurate:       s.IsAccurate,
		VerifiedByUser:   s.VerifiedByUser,
		CreatedAt:        s.CreatedAt,
		Values:           make(map[string]measure.Value, len(s.Values)),
	}
	for _, v := range s.Values {
		out.Values[v.Name] = measure.Value{
			Centimeters:            v.Centimeters,
			Confidence:             v.Confidence,
			EstimatedFromFrontOnly: v.EstimatedFromFrontOnly,
			Conflicting:            v.Conflicting,
			Sources:                splitSources(v.Sources),
		}
	}
	return out
}

func joinSources(views []pose.View) string {
	parts := make([]string, len(views))
	for i, v := range views {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func splitSources(s string) []pose.View {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	views := make([]pose.View, len(parts))
	for i, p := range parts {
		views[i] = pose.View(p)
	}
	return views
}
