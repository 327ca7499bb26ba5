package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Pipeline.MinConfidence != 0.5 {
		t.Errorf("MinConfidence = %v; want 0.5", cfg.Pipeline.MinConfidence)
	}
	if cfg.Pipeline.ConflictTolerance != 0.08 {
		t.Errorf("ConflictTolerance = %v; want 0.08", cfg.Pipeline.ConflictTolerance)
	}
	if cfg.Pipeline.GracePeriod != 15*time.Minute {
		t.Errorf("GracePeriod = %v; want 15m", cfg.Pipeline.GracePeriod)
	}
	if cfg.Pipeline.MaxRetakes != 3 {
		t.Errorf("MaxRetakes = %d; want 3", cfg.Pipeline.MaxRetakes)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d; want 25", cfg.Database.MaxOpenConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_MIN_CONFIDENCE", "0.7")
	t.Setenv("PIPELINE_GRACE_PERIOD_MINUTES", "5")
	t.Setenv("PIPELINE_MAX_RETAKES", "1")
	t.Setenv("DATABASE_URL", "postgres://example/bodymorph")

	cfg := Load()
	if cfg.Pipeline.MinConfidence != 0.7 {
		t.Errorf("MinConfidence = %v; want 0.7", cfg.Pipeline.MinConfidence)
	}
	if cfg.Pipeline.GracePeriod != 5*time.Minute {
		t.Errorf("GracePeriod = %v; want 5m", cfg.Pipeline.GracePeriod)
	}
	if cfg.Pipeline.MaxRetakes != 1 {
		t.Errorf("MaxRetakes = %d; want 1", cfg.Pipeline.MaxRetakes)
	}
	if cfg.Database.URL != "postgres://example/bodymorph" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("PIPELINE_MIN_CONFIDENCE", "not-a-number")
	t.Setenv("PIPELINE_MAX_RETAKES", "-2")

	cfg := Load()
	if cfg.Pipeline.MinConfidence != 0.5 {
		t.Errorf("MinConfidence = %v; want default 0.5", cfg.Pipeline.MinConfidence)
	}
	if cfg.Pipeline.MaxRetakes != 3 {
		t.Errorf("MaxRetakes = %d; want default 3", cfg.Pipeline.MaxRetakes)
	}
}

func TestPlanFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	custom := []byte(`
measurements:
  - name: neck
    model: circumference
    width_joints: [left_shoulder, right_shoulder]
    depth_joints: [waist_front, waist_back]
`)
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatalf("writing plan file: %v", err)
	}
	t.Setenv("PLAN_FILE", path)

	cfg := Load()
	if _, ok := cfg.Plan.Entry("neck"); !ok {
		t.Error("PLAN_FILE override not loaded")
	}
	if _, ok := cfg.Plan.Entry("shoulder_width"); ok {
		t.Error("embedded plan should be fully replaced by PLAN_FILE")
	}
	if string(PlanYAML()) != string(custom) {
		t.Error("PlanYAML() should return the overriding file")
	}
}

func TestEmbeddedPlanAndMesh(t *testing.T) {
	cfg := Load()

	if _, ok := cfg.Plan.Entry("shoulder_width"); !ok {
		t.Error("embedded plan is missing shoulder_width")
	}
	if _, ok := cfg.Plan.Entry("waist"); !ok {
		t.Error("embedded plan is missing waist")
	}

	// Every mesh axis must be driven by a plan measurement.
	for _, axis := range cfg.Mesh.Axes {
		if _, ok := cfg.Plan.Entry(axis.Measurement); !ok {
			t.Errorf("mesh axis %s driven by unknown measurement %q", axis.Name, axis.Measurement)
		}
	}
}
