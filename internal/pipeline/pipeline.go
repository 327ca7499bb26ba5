// Package pipeline wires frame validation, calibration, measurement
// computation, multi-view reconciliation, session lifecycle and
// persistence into one orchestrator used by the web handlers and the CLI.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/aggregate"
	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database"
	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/mesh"
	"github.com/bodymorph/bodymorph/internal/pose"
	"github.com/bodymorph/bodymorph/internal/session"
)

// Pipeline drives a capture session from raw keypoint frames to an
// accepted, persisted measurement set with mesh parameters.
type Pipeline struct {
	Plan     *measure.Plan
	Mesh     *mesh.Metadata
	Sessions *session.Manager

	// Store receives accepted sets. Nil disables persistence, which
	// the one-shot CLI commands use.
	Store database.MeasurementWriter

	validator  *pose.Validator
	computer   *measure.Computer
	aggregator *aggregate.Aggregator
	minPixels  float64
}

// New builds a pipeline from configuration. Pass a fake clock in tests
// to drive the review grace timers; nil selects the wall clock.
func New(cfg *config.Config, clock session.Clock) *Pipeline {
	pc := cfg.Pipeline
	return &Pipeline{
		Plan:       cfg.Plan,
		Mesh:       cfg.Mesh,
		Sessions:   session.NewManager(clock, pc.GracePeriod, pc.MaxRetakes),
		validator:  pose.NewValidator(pc.MinConfidence),
		computer:   measure.NewComputer(cfg.Plan, pc.MinConfidence, pc.DepthRatio),
		aggregator: aggregate.NewAggregator(cfg.Plan, pc.ConflictTolerance, pc.MinConfidence),
		minPixels:  pc.MinCalibrationPixels,
	}
}

// StartSession opens a capture session for a user of known height.
// retakeOf continues an existing capture chain; pass uuid.Nil for a
// fresh capture.
func (p *Pipeline) StartSession(userID string, heightCm float64, retakeOf uuid.UUID) (*session.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if heightCm <= 0 {
		return nil, fmt.Errorf("height %.1fcm must be positive", heightCm)
	}
	return p.Sessions.Start(userID, measure.DefaultReference(heightCm), retakeOf)
}

// IngestFrame validates a keypoint frame, calibrates it against the
// session's reference and records the computed per-view measurements.
// The frame is rejected as a whole if any required joint is missing,
// below the confidence threshold or outside the frame bounds.
func (p *Pipeline) IngestFrame(sessionID uuid.UUID, frame *pose.Frame) (*measure.Set, error) {
	userID, ref, err := p.Sessions.Reference(sessionID)
	if err != nil {
		return nil, err
	}

	required := p.Plan.RequiredJoints(frame.View, ref)
	if err := p.validator.Validate(frame, required); err != nil {
		return nil, fmt.Errorf("%s frame rejected: %w", frame.View, err)
	}

	calib, err := measure.Calibrate(frame, ref, p.minPixels)
	if err != nil {
		return nil, fmt.Errorf("calibrating %s frame: %w", frame.View, err)
	}

	set, err := p.computer.Compute(frame, calib)
	if err != nil {
		return nil, fmt.Errorf("measuring %s frame: %w", frame.View, err)
	}
	set.UserID = userID
	set.CaptureSessionID = sessionID.String()

	if err := p.Sessions.AddViewSet(sessionID, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Finish reconciles the captured views into one measurement set and
// moves the session to PendingReview. At least one view must have been
// ingested.
func (p *Pipeline) Finish(sessionID uuid.UUID) (*measure.Set, error) {
	sets, err := p.Sessions.ViewSets(sessionID)
	if err != nil {
		return nil, err
	}

	reconciled, err := p.aggregator.Reconcile(sets)
	if err != nil {
		return nil, fmt.Errorf("reconciling session %s: %w", sessionID, err)
	}
	if err := p.Sessions.SetReconciled(sessionID, reconciled); err != nil {
		return nil, err
	}
	return reconciled, nil
}

// AcceptResult is the outcome of accepting a session: the verified
// measurement set, its mesh deformation parameters, and any values that
// fell outside their mesh axis ranges.
type AcceptResult struct {
	Set        *measure.Set
	Stored     *database.StoredMeasurementSet
	Parameters mesh.Parameters
	Warnings   []mesh.RangeWarning
}

// Accept confirms the reconciled measurements, persists them when a
// store is configured, and derives the mesh parameters. Persistence
// runs before the session commits to Accepted: a store failure leaves
// the session in PendingReview so the accept can be retried.
func (p *Pipeline) Accept(ctx context.Context, sessionID uuid.UUID) (*AcceptResult, error) {
	result := &AcceptResult{}
	set, err := p.Sessions.Accept(sessionID, func(verified *measure.Set) error {
		result.Stored = database.FromMeasureSet(verified, p.Plan)
		if p.Store == nil {
			return nil
		}
		if err := p.Store.SaveAccepted(ctx, result.Stored); err != nil {
			return fmt.Errorf("persisting accepted session %s: %w", sessionID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Set = set
	result.Parameters, result.Warnings = mesh.Parametrize(set, p.Mesh)
	return result, nil
}

// Reject sends a session under review back for a retake.
func (p *Pipeline) Reject(sessionID uuid.UUID) error {
	return p.Sessions.Reject(sessionID)
}

// Abandon ends a retake chain without a new capture.
func (p *Pipeline) Abandon(sessionID uuid.UUID) error {
	return p.Sessions.Abandon(sessionID)
}

// Parametrize derives mesh deformation parameters for any measurement
// set, including historical ones loaded from the store.
func (p *Pipeline) Parametrize(set *measure.Set) (mesh.Parameters, []mesh.RangeWarning) {
	return mesh.Parametrize(set, p.Mesh)
}
