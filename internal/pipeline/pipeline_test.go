package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database/mock"
	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/mesh"
	"github.com/bodymorph/bodymorph/internal/pose"
	"github.com/bodymorph/bodymorph/internal/session"
)

const testPlanYAML = `
measurements:
  - name: shoulder_width
    model: linear
    view: front
    joints: [left_shoulder, right_shoulder]
  - name: waist
    model: circumference
    width_joints: [left_hip, right_hip]
    depth_joints: [waist_front, waist_back]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	plan, err := measure.ParsePlan([]byte(testPlanYAML))
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	return &config.Config{
		Pipeline: config.PipelineConfig{
			MinConfidence:        0.5,
			ConflictTolerance:    0.08,
			DepthRatio:           0.75,
			MinCalibrationPixels: 10,
			GracePeriod:          15 * time.Minute,
			MaxRetakes:           3,
		},
		Plan: plan,
		Mesh: &mesh.Metadata{Axes: []mesh.Axis{
			{Name: "shoulder_span", Measurement: "shoulder_width", MinCm: 35, MaxCm: 55},
			{Name: "waist_girth", Measurement: "waist", MinCm: 60, MaxCm: 120},
			{Name: "arm_reach", Measurement: "arm_length", MinCm: 50, MaxCm: 80},
		}},
	}
}

// joints with confidence 0.9 at the given positions.
func joints(pos map[string][2]float64) map[string]pose.Keypoint {
	out := make(map[string]pose.Keypoint, len(pos))
	for name, p := range pos {
		out[name] = pose.Keypoint{X: p[0], Y: p[1], Confidence: 0.9}
	}
	return out
}

// frontFrame is a 170cm subject at 850px height: 0.2 cm per pixel.
// Shoulders 225px apart (45cm), hips 200px apart (40cm waist width).
func frontFrame() *pose.Frame {
	return &pose.Frame{
		View:   pose.ViewFront,
		Width:  1000,
		Height: 1080,
		Joints: joints(map[string][2]float64{
			pose.JointHeadTop:       {500, 100},
			pose.JointLeftAnkle:     {500, 950},
			pose.JointLeftShoulder:  {387.5, 300},
			pose.JointRightShoulder: {612.5, 300},
			pose.JointLeftHip:       {400, 500},
			pose.JointRightHip:      {600, 500},
		}),
		CapturedAt: time.Now(),
	}
}

// sideFrame matches the front frame's subject: the same 850px body
// height and a waist depth chosen relative to the front width.
func sideFrame(waistDepthPx float64) *pose.Frame {
	return &pose.Frame{
		View:   pose.ViewSide,
		Width:  1000,
		Height: 1080,
		Joints: joints(map[string][2]float64{
			pose.JointHeadTop:    {400, 120},
			pose.JointLeftAnkle:  {400, 970},
			pose.JointWaistFront: {350, 500},
			pose.JointWaistBack:  {350 + waistDepthPx, 500},
		}),
		CapturedAt: time.Now(),
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	store := mock.NewMockStore()
	p := New(testConfig(t), nil)
	p.Store = store

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	front, err := p.IngestFrame(sess.ID, frontFrame())
	if err != nil {
		t.Fatalf("IngestFrame(front) error = %v", err)
	}
	if got := front.Values["shoulder_width"].Centimeters; math.Abs(got-45) > 1e-6 {
		t.Errorf("shoulder_width = %v; want 45", got)
	}
	if front.CalibrationRatio != 0.2 {
		t.Errorf("CalibrationRatio = %v; want 0.2", front.CalibrationRatio)
	}
	if !front.Values["waist"].EstimatedFromFrontOnly {
		t.Error("front-view waist should be flagged as front-only estimate")
	}

	// Depth 150px = 30cm, exactly 0.75 of the 40cm width, so the two
	// single-view estimates agree.
	if _, err := p.IngestFrame(sess.ID, sideFrame(150)); err != nil {
		t.Fatalf("IngestFrame(side) error = %v", err)
	}

	reconciled, err := p.Finish(sess.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	waist := reconciled.Values["waist"]
	wantWaist := measure.EllipseCircumference(20, 15)
	if math.Abs(waist.Centimeters-wantWaist) > 1e-6 {
		t.Errorf("combined waist = %v; want %v", waist.Centimeters, wantWaist)
	}
	if waist.EstimatedFromFrontOnly || waist.Conflicting {
		t.Errorf("combined waist flags = %+v; want clean", waist)
	}
	if !reconciled.IsAccurate {
		t.Error("reconciled set should be accurate")
	}

	result, err := p.Accept(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if !result.Set.VerifiedByUser {
		t.Error("accepted set should carry verified_by_user")
	}
	if store.Count() != 1 {
		t.Errorf("store has %d sets; want 1", store.Count())
	}

	// Mesh parameters: shoulder 45cm sits mid-range, waist above
	// mid-range, undriven axis stays neutral.
	if got := result.Parameters["shoulder_span"]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("shoulder_span = %v; want 0.5", got)
	}
	wantGirth := (wantWaist - 60) / 60
	if got := result.Parameters["waist_girth"]; math.Abs(got-wantGirth) > 1e-9 {
		t.Errorf("waist_girth = %v; want %v", got, wantGirth)
	}
	if got := result.Parameters["arm_reach"]; got != mesh.NeutralParam {
		t.Errorf("arm_reach = %v; want neutral %v", got, mesh.NeutralParam)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected range warnings: %v", result.Warnings)
	}

	// Accepted sessions are immutable.
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err == nil {
		t.Error("IngestFrame() after accept should fail")
	}
}

func TestPipelineAcceptRetriesAfterStoreFailure(t *testing.T) {
	store := mock.NewMockStore()
	store.SaveError = errors.New("store unavailable")
	p := New(testConfig(t), nil)
	p.Store = store

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err != nil {
		t.Fatalf("IngestFrame(front) error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, sideFrame(150)); err != nil {
		t.Fatalf("IngestFrame(side) error = %v", err)
	}
	if _, err := p.Finish(sess.ID); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if _, err := p.Accept(context.Background(), sess.ID); err == nil {
		t.Fatal("Accept() with a failing store should error")
	}
	if store.Count() != 0 {
		t.Errorf("store has %d sets after failed save; want 0", store.Count())
	}

	// The session must not have committed to Accepted; the accept is
	// retryable once the store recovers.
	snap, err := p.Sessions.Snapshot(sess.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != session.StatePendingReview {
		t.Fatalf("state after failed accept = %s; want pending_review", snap.State)
	}

	store.SaveError = nil
	result, err := p.Accept(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("retried Accept() error = %v", err)
	}
	if !result.Set.VerifiedByUser {
		t.Error("retried accept should carry verified_by_user")
	}
	if store.Count() != 1 {
		t.Errorf("store has %d sets; want 1", store.Count())
	}
}

// withConfidence returns the frame with every joint at the given
// confidence.
func withConfidence(f *pose.Frame, conf float64) *pose.Frame {
	for name, kp := range f.Joints {
		kp.Confidence = conf
		f.Joints[name] = kp
	}
	return f
}

func TestPipelineModerateConfidenceTwoViewsAccurate(t *testing.T) {
	// Joints at 0.8 clear the 0.5 threshold. With both views captured
	// the waist confidence must stay at the raw 0.8; no front-only
	// estimation penalty applies to a proper two-view circumference.
	p := New(testConfig(t), nil)

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, withConfidence(frontFrame(), 0.8)); err != nil {
		t.Fatalf("IngestFrame(front) error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, withConfidence(sideFrame(150), 0.8)); err != nil {
		t.Fatalf("IngestFrame(side) error = %v", err)
	}

	reconciled, err := p.Finish(sess.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	waist := reconciled.Values["waist"]
	if waist.Confidence != 0.8 {
		t.Errorf("waist confidence = %v; want raw joint confidence 0.8", waist.Confidence)
	}
	if !reconciled.IsAccurate {
		t.Error("agreeing two-view capture at joint confidence 0.8 must be accurate")
	}
}

func TestPipelineConflictingViews(t *testing.T) {
	p := New(testConfig(t), nil)

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err != nil {
		t.Fatalf("IngestFrame(front) error = %v", err)
	}
	// Depth 100px = 20cm, far from 0.75 of the 40cm width: the two
	// single-view waist estimates disagree by well over the tolerance.
	if _, err := p.IngestFrame(sess.ID, sideFrame(100)); err != nil {
		t.Fatalf("IngestFrame(side) error = %v", err)
	}

	reconciled, err := p.Finish(sess.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !reconciled.Values["waist"].Conflicting {
		t.Error("waist should be flagged conflicting")
	}
	if reconciled.IsAccurate {
		t.Error("set with a conflicting value should not be accurate")
	}
}

func TestPipelineRejectsBadFrame(t *testing.T) {
	p := New(testConfig(t), nil)
	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*pose.Frame)
	}{
		{"missing joint", func(f *pose.Frame) {
			delete(f.Joints, pose.JointLeftShoulder)
		}},
		{"low confidence", func(f *pose.Frame) {
			kp := f.Joints[pose.JointLeftHip]
			kp.Confidence = 0.2
			f.Joints[pose.JointLeftHip] = kp
		}},
		{"out of bounds", func(f *pose.Frame) {
			kp := f.Joints[pose.JointHeadTop]
			kp.Y = -5
			f.Joints[pose.JointHeadTop] = kp
		}},
		{"degenerate calibration", func(f *pose.Frame) {
			f.Joints[pose.JointLeftAnkle] = pose.Keypoint{X: 500, Y: 105, Confidence: 0.9}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := frontFrame()
			tt.mutate(frame)
			if _, err := p.IngestFrame(sess.ID, frame); err == nil {
				t.Error("IngestFrame() should reject the frame")
			}
		})
	}

	// The session is untouched by rejected frames.
	if _, err := p.Finish(sess.ID); err == nil {
		t.Error("Finish() with no accepted frames should fail")
	}
}

func TestPipelineFrontOnlyCapture(t *testing.T) {
	p := New(testConfig(t), nil)
	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err != nil {
		t.Fatalf("IngestFrame(front) error = %v", err)
	}

	reconciled, err := p.Finish(sess.ID)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	waist := reconciled.Values["waist"]
	if !waist.EstimatedFromFrontOnly {
		t.Error("single-view waist should keep the front-only flag")
	}
	if reconciled.IsAccurate {
		t.Error("front-only capture should not be accurate")
	}
}

func TestPipelineRejectAndRetake(t *testing.T) {
	p := New(testConfig(t), nil)

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err != nil {
		t.Fatalf("IngestFrame() error = %v", err)
	}
	if _, err := p.Finish(sess.ID); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := p.Reject(sess.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	retake, err := p.StartSession("user-1", 170, sess.ID)
	if err != nil {
		t.Fatalf("StartSession(retake) error = %v", err)
	}
	if retake.RetakeCount != 1 {
		t.Errorf("RetakeCount = %d; want 1", retake.RetakeCount)
	}

	// Retakes by another user are refused.
	if _, err := p.StartSession("user-2", 170, sess.ID); err == nil {
		t.Error("retake by a different user should fail")
	}
}

// recordClock captures scheduled grace timers so tests fire them directly.
type recordClock struct {
	mu      sync.Mutex
	now     time.Time
	funcs   []func()
	stopped bool
}

func (c *recordClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *recordClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
	return c
}

func (c *recordClock) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return true
}

func (c *recordClock) fire() {
	c.mu.Lock()
	funcs := c.funcs
	c.funcs = nil
	c.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

func TestPipelineGraceExpiryProposesRetake(t *testing.T) {
	clock := &recordClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := New(testConfig(t), clock)

	sess, err := p.StartSession("user-1", 170, uuid.Nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	// Front-only capture reconciles as inaccurate, arming the timer.
	if _, err := p.IngestFrame(sess.ID, frontFrame()); err != nil {
		t.Fatalf("IngestFrame() error = %v", err)
	}
	if _, err := p.Finish(sess.ID); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if len(clock.funcs) != 1 {
		t.Fatalf("grace timer not armed: %d scheduled funcs", len(clock.funcs))
	}

	clock.fire()

	snap, err := p.Sessions.Snapshot(sess.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != session.StateRetaking {
		t.Errorf("state after grace expiry = %s; want %s", snap.State, session.StateRetaking)
	}
	if snap.StateReason != session.ReasonGracePeriodExpired {
		t.Errorf("reason = %s; want %s", snap.StateReason, session.ReasonGracePeriodExpired)
	}
	if snap.Reconciled == nil {
		t.Error("reconciled data should be retained after grace expiry")
	}

	if err := p.Abandon(sess.ID); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
}
