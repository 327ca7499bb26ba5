package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/mesh"
)

//go:embed plan.yaml
var planYAML []byte

//go:embed mesh.yaml
var meshYAML []byte

// Config holds all runtime configuration for bodymorph.
type Config struct {
	Pipeline PipelineConfig
	Database DatabaseConfig

	Plan *measure.Plan
	Mesh *mesh.Metadata
}

// PipelineConfig holds the measurement pipeline thresholds.
type PipelineConfig struct {
	MinConfidence        float64       // Per-joint and per-field confidence threshold (default 0.5)
	ConflictTolerance    float64       // Relative tolerance before two views conflict (default 0.08)
	DepthRatio           float64       // Assumed depth/width ratio for front-only circumference estimates
	MinCalibrationPixels float64       // Minimum pixel distance between calibration joints
	GracePeriod          time.Duration // Review grace period before a retake is proposed
	MaxRetakes           int           // Maximum retakes per capture chain
}

// DatabaseConfig holds measurement store settings.
type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MariaDBDSN    string // MariaDB DSN for the alternate backend (optional)
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the similarity index (optional, rebuilt on startup if empty)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// fileOrEmbedded returns the contents of the file named by the env var
// when set, the embedded default otherwise. A configured file that
// cannot be read fails startup.
func fileOrEmbedded(envKey string, embedded []byte) []byte {
	path := os.Getenv(envKey)
	if path == "" {
		return embedded
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic("failed to read " + envKey + ": " + err.Error())
	}
	return data
}

// Load builds the configuration from the environment and the plan and
// mesh files. PLAN_FILE and MESH_FILE override the embedded defaults.
func Load() *Config {
	plan, err := measure.ParsePlan(fileOrEmbedded("PLAN_FILE", planYAML))
	if err != nil {
		panic("failed to parse measurement plan: " + err.Error())
	}
	meshMeta, err := mesh.ParseMetadata(fileOrEmbedded("MESH_FILE", meshYAML))
	if err != nil {
		panic("failed to parse mesh metadata: " + err.Error())
	}

	return &Config{
		Pipeline: PipelineConfig{
			MinConfidence:        envFloat("PIPELINE_MIN_CONFIDENCE", 0.5),
			ConflictTolerance:    envFloat("PIPELINE_CONFLICT_TOLERANCE", 0.08),
			DepthRatio:           envFloat("PIPELINE_DEPTH_RATIO", measure.DefaultDepthRatio),
			MinCalibrationPixels: envFloat("PIPELINE_MIN_CALIBRATION_PIXELS", measure.DefaultMinCalibrationPixels),
			GracePeriod:          time.Duration(envInt("PIPELINE_GRACE_PERIOD_MINUTES", 15)) * time.Minute,
			MaxRetakes:           envInt("PIPELINE_MAX_RETAKES", 3),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MariaDBDSN:    os.Getenv("MARIADB_DSN"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Plan: plan,
		Mesh: meshMeta,
	}
}

// PlanYAML returns the active measurement plan source, used by the plan
// subcommand to print the active configuration.
func PlanYAML() []byte { return fileOrEmbedded("PLAN_FILE", planYAML) }

// MeshYAML returns the active reference mesh metadata source.
func MeshYAML() []byte { return fileOrEmbedded("MESH_FILE", meshYAML) }
