package handlers

import (
	"net/http"

	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/mesh"
)

// PlanHandler exposes the active measurement plan and mesh metadata so
// capture clients know which joints to detect.
type PlanHandler struct {
	plan *measure.Plan
	mesh *mesh.Metadata
}

// NewPlanHandler creates a plan handler.
func NewPlanHandler(plan *measure.Plan, meta *mesh.Metadata) *PlanHandler {
	return &PlanHandler{plan: plan, mesh: meta}
}

// Get returns the measurement plan, the joints each view requires, and
// the mesh axes.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	entries := make([]map[string]any, 0, len(h.plan.Measurements))
	for _, e := range h.plan.Measurements {
		entry := map[string]any{
			"name":  e.Name,
			"model": e.Model,
		}
		switch e.Model {
		case measure.ModelLinear:
			entry["view"] = e.View
			entry["joints"] = e.Joints
		case measure.ModelCircumference:
			entry["width_joints"] = e.WidthJoints
			entry["depth_joints"] = e.DepthJoints
		}
		entries = append(entries, entry)
	}

	ref := measure.DefaultReference(0)
	respondJSON(w, http.StatusOK, map[string]any{
		"measurements": entries,
		"required_joints": map[string]any{
			"front": h.plan.RequiredJoints("front", ref),
			"side":  h.plan.RequiredJoints("side", ref),
		},
		"mesh_axes": h.mesh.Axes,
	})
}
