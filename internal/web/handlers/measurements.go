package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/database"
	"github.com/bodymorph/bodymorph/internal/pipeline"
)

// MeasurementsHandler serves persisted measurement sets, their mesh
// parameters and similar-body search.
type MeasurementsHandler struct {
	pipeline *pipeline.Pipeline
	reader   database.MeasurementReader
	searcher database.SimilaritySearcher
}

// NewMeasurementsHandler creates a measurements handler. searcher may be
// nil when the active backend has no similarity support.
func NewMeasurementsHandler(p *pipeline.Pipeline, reader database.MeasurementReader, searcher database.SimilaritySearcher) *MeasurementsHandler {
	return &MeasurementsHandler{pipeline: p, reader: reader, searcher: searcher}
}

// ListByUser returns all accepted measurement sets of a user, newest first.
func (h *MeasurementsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "uid")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing user ID")
		return
	}

	sets, err := h.reader.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list measurements")
		return
	}

	out := make([]map[string]any, 0, len(sets))
	for i := range sets {
		out = append(out, storedSetResponse(&sets[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"measurements": out})
}

// Get returns one accepted measurement set by ID.
func (h *MeasurementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	set, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, storedSetResponse(set))
}

// Mesh returns the mesh deformation parameters for a stored set.
func (h *MeasurementsHandler) Mesh(w http.ResponseWriter, r *http.Request) {
	set, ok := h.lookup(w, r)
	if !ok {
		return
	}

	params, warnings := h.pipeline.Parametrize(set.ToMeasureSet())
	respondJSON(w, http.StatusOK, map[string]any{
		"measurement_id": set.ID,
		"parameters":     params,
		"warnings":       warnings,
	})
}

type similarRequest struct {
	// MeasurementID searches near an existing stored set.
	MeasurementID string `json:"measurement_id,omitempty"`
	// Vector searches near an explicit plan-ordered vector.
	Vector []float32 `json:"vector,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// FindSimilar returns the stored sets with the most similar body shape,
// queried either by an existing measurement ID or a raw vector.
func (h *MeasurementsHandler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		respondError(w, http.StatusNotImplemented, "similarity search not available on this backend")
		return
	}

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	vector := req.Vector
	if req.MeasurementID != "" {
		id, err := uuid.Parse(req.MeasurementID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid measurement ID")
			return
		}
		set, err := h.reader.Get(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load measurement")
			return
		}
		if set == nil {
			respondError(w, http.StatusNotFound, "measurement not found")
			return
		}
		vector = set.Vector
	}
	if len(vector) == 0 {
		respondError(w, http.StatusBadRequest, "measurement_id or vector is required")
		return
	}

	results, err := h.searcher.FindSimilar(r.Context(), vector, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := storedSetResponse(res.Set)
		entry["distance"] = res.Distance
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *MeasurementsHandler) lookup(w http.ResponseWriter, r *http.Request) (*database.StoredMeasurementSet, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid measurement ID")
		return nil, false
	}

	set, err := h.reader.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load measurement")
		return nil, false
	}
	if set == nil {
		respondError(w, http.StatusNotFound, "measurement not found")
		return nil, false
	}
	return set, true
}

// storedSetResponse flattens a stored set for API responses, hiding the
// raw similarity vector.
func storedSetResponse(set *database.StoredMeasurementSet) map[string]any {
	values := make([]map[string]any, 0, len(set.Values))
	for _, v := range set.Values {
		entry := map[string]any{
			"name":       v.Name,
			"cm":         v.Centimeters,
			"confidence": v.Confidence,
			"sources":    v.Sources,
		}
		if v.EstimatedFromFrontOnly {
			entry["estimated_from_front_only"] = true
		}
		if v.Conflicting {
			entry["conflicting"] = true
		}
		values = append(values, entry)
	}

	return map[string]any{
		"id":                 set.ID,
		"user_id":            set.UserID,
		"capture_session_id": set.CaptureSessionID,
		"pose_type":          set.PoseType,
		"calibration_ratio":  set.CalibrationRatio,
		"is_accurate":        set.IsAccurate,
		"verified_by_user":   set.VerifiedByUser,
		"created_at":         set.CreatedAt,
		"values":             values,
	}
}
