package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/pipeline"
	"github.com/bodymorph/bodymorph/internal/pose"
)

// SessionsHandler drives the capture session lifecycle over HTTP.
type SessionsHandler struct {
	pipeline *pipeline.Pipeline
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(p *pipeline.Pipeline) *SessionsHandler {
	return &SessionsHandler{pipeline: p}
}

type startSessionRequest struct {
	UserID   string  `json:"user_id"`
	HeightCm float64 `json:"height_cm"`
	RetakeOf string  `json:"retake_of,omitempty"`
}

// Start opens a new capture session, optionally continuing a retake chain.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	retakeOf := uuid.Nil
	if req.RetakeOf != "" {
		var err error
		if retakeOf, err = uuid.Parse(req.RetakeOf); err != nil {
			respondError(w, http.StatusBadRequest, "invalid retake_of session ID")
			return
		}
	}

	sess, err := h.pipeline.StartSession(req.UserID, req.HeightCm, retakeOf)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	log.Printf("Started capture session %s for user %s", sess.ID, sanitizeForLog(req.UserID))
	snap, err := h.pipeline.Sessions.Snapshot(sess.ID)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

// Get returns the current snapshot of a session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.Sessions.Snapshot(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// AddFrame ingests one keypoint frame into a session. The whole frame is
// rejected if any required joint is missing, uncertain or out of bounds.
func (h *SessionsHandler) AddFrame(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var frame pose.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	// Only capture views are ingestable; combined is a reconciliation
	// product, not a frame.
	if frame.View != pose.ViewFront && frame.View != pose.ViewSide {
		respondError(w, http.StatusBadRequest, "view must be front or side")
		return
	}

	set, err := h.pipeline.IngestFrame(id, &frame)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, set)
}

// Finish reconciles the captured views and moves the session to review.
func (h *SessionsHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	reconciled, err := h.pipeline.Finish(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reconciled)
}

// Accept confirms the reconciled measurements, persists them and returns
// the measurement set together with its mesh parameters.
func (h *SessionsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.pipeline.Accept(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	log.Printf("Accepted session %s (%d measurements)", id, len(result.Set.Values))
	respondJSON(w, http.StatusOK, map[string]any{
		"measurement_set": result.Set,
		"measurement_id":  result.Stored.ID,
		"mesh_parameters": result.Parameters,
		"mesh_warnings":   result.Warnings,
	})
}

// Reject sends a session back for a retake.
func (h *SessionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := h.pipeline.Reject(id); err != nil {
		respondSessionError(w, err)
		return
	}
	snap, err := h.pipeline.Sessions.Snapshot(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Abandon ends a retake chain without a new capture.
func (h *SessionsHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := h.pipeline.Abandon(id); err != nil {
		respondSessionError(w, err)
		return
	}
	snap, err := h.pipeline.Sessions.Snapshot(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Events streams state transitions for one session as server-sent
// events until the client disconnects.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.Sessions.Snapshot(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventCh := h.pipeline.Sessions.Subscribe()
	defer h.pipeline.Sessions.Unsubscribe(eventCh)

	sendSSEEvent(w, flusher, "state", snap)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if event.SessionID != id {
				continue
			}
			sendSSEEvent(w, flusher, "transition", event)
			if event.To.Terminal() {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
