package handlers

import (
	"net/http"

	"github.com/bodymorph/bodymorph/internal/database"
)

// StatsHandler reports store and similarity index status.
type StatsHandler struct{}

// NewStatsHandler creates a stats handler.
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// Get returns the active backend and similarity index state.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"backend": database.BackendName(),
	}
	if rebuilder := database.GetHNSWRebuilder(); rebuilder != nil {
		stats["hnsw_enabled"] = rebuilder.IsHNSWEnabled()
		stats["hnsw_count"] = rebuilder.HNSWCount()
	}
	respondJSON(w, http.StatusOK, stats)
}

// RebuildIndex rebuilds the similarity index from the store.
func (h *StatsHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	rebuilder := database.GetHNSWRebuilder()
	if rebuilder == nil {
		respondError(w, http.StatusNotImplemented, "no similarity index on this backend")
		return
	}
	if err := rebuilder.RebuildHNSW(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to rebuild index")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "rebuilt",
		"count":  rebuilder.HNSWCount(),
	})
}
