package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database/mock"
	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/mesh"
	"github.com/bodymorph/bodymorph/internal/pipeline"
	"github.com/bodymorph/bodymorph/internal/pose"
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

// testPipeline builds a pipeline over the mock store for handler tests.
func testPipeline(t *testing.T) (*pipeline.Pipeline, *mock.MockStore) {
	t.Helper()
	plan, err := measure.ParsePlan([]byte(testPlanYAML))
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	cfg := &config.Config{
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
		}},
	}

	store := mock.NewMockStore()
	p := pipeline.New(cfg, nil)
	p.Store = store
	return p, store
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeJSON decodes a response body into a generic map.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func confidentJoints(pos map[string][2]float64) map[string]pose.Keypoint {
	out := make(map[string]pose.Keypoint, len(pos))
	for name, p := range pos {
		out[name] = pose.Keypoint{X: p[0], Y: p[1], Confidence: 0.9}
	}
	return out
}

// testFrontFrame is a 170cm subject at 850px: scale 0.2 cm/px,
// shoulders 45cm apart, waist width 40cm.
func testFrontFrame() *pose.Frame {
	return &pose.Frame{
		View:   pose.ViewFront,
		Width:  1000,
		Height: 1080,
		Joints: confidentJoints(map[string][2]float64{
			pose.JointHeadTop:       {500, 100},
			pose.JointLeftAnkle:     {500, 950},
			pose.JointLeftShoulder:  {387.5, 300},
			pose.JointRightShoulder: {612.5, 300},
			pose.JointLeftHip:       {400, 500},
			pose.JointRightHip:      {600, 500},
		}),
	}
}

// testSideFrame matches the front subject with a 30cm waist depth.
func testSideFrame() *pose.Frame {
	return &pose.Frame{
		View:   pose.ViewSide,
		Width:  1000,
		Height: 1080,
		Joints: confidentJoints(map[string][2]float64{
			pose.JointHeadTop:    {400, 120},
			pose.JointLeftAnkle:  {400, 970},
			pose.JointWaistFront: {350, 500},
			pose.JointWaistBack:  {500, 500},
		}),
	}
}
