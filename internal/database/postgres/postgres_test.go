//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	cfg := &config.DatabaseConfig{URL: dbURL, MaxOpenConns: 5, MaxIdleConns: 2}

	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func storedSet(user, session string, vec []float32) *database.StoredMeasurementSet {
	return &database.StoredMeasurementSet{
		ID:               uuid.New(),
		UserID:           user,
		CaptureSessionID: session,
		PoseType:         "combined",
		CalibrationRatio: 0.2,
		IsAccurate:       true,
		VerifiedByUser:   true,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
		Vector:           vec,
		Values: []database.StoredValue{
			{Name: "shoulder_width", Centimeters: float64(vec[0]), Confidence: 0.9, Sources: "front"},
			{Name: "waist", Centimeters: float64(vec[1]), Confidence: 0.8, Sources: "front,side"},
		},
	}
}

func TestSaveAndGetMeasurementSet(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	repo := NewMeasurementRepository(pool)
	ctx := context.Background()

	set := storedSet("user-1", "session-1", []float32{45, 82})
	if err := repo.SaveAccepted(ctx, set); err != nil {
		t.Fatalf("SaveAccepted() error = %v", err)
	}

	got, err := repo.GetBySession(ctx, "user-1", "session-1")
	if err != nil {
		t.Fatalf("GetBySession() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetBySession() = nil; want stored set")
	}
	if got.ID != set.ID || len(got.Values) != 2 {
		t.Errorf("got %+v; want ID %s with 2 values", got, set.ID)
	}
	if !got.VerifiedByUser || !got.IsAccurate {
		t.Error("stored flags lost on round-trip")
	}

	// Accepted sets are write-once: a second save for the same session
	// must fail on the unique constraint.
	dup := storedSet("user-1", "session-1", []float32{46, 83})
	if err := repo.SaveAccepted(ctx, dup); err == nil {
		t.Error("second SaveAccepted() for the same session should fail")
	}
}

func TestGetBySessionNotFound(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	repo := NewMeasurementRepository(pool)
	got, err := repo.GetBySession(context.Background(), "user-1", "missing")
	if err != nil {
		t.Fatalf("GetBySession() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetBySession(missing) = %+v; want nil", got)
	}
}

func TestListByUser(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	repo := NewMeasurementRepository(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		set := storedSet("user-1", fmt.Sprintf("session-%d", i), []float32{45, 82})
		if err := repo.SaveAccepted(ctx, set); err != nil {
			t.Fatalf("SaveAccepted() error = %v", err)
		}
	}
	other := storedSet("user-2", "session-x", []float32{50, 90})
	if err := repo.SaveAccepted(ctx, other); err != nil {
		t.Fatalf("SaveAccepted() error = %v", err)
	}

	sets, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(sets) != 3 {
		t.Errorf("ListByUser() = %d sets; want 3", len(sets))
	}
}

func TestFindSimilarPgvector(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	repo := NewMeasurementRepository(pool)
	ctx := context.Background()

	near := storedSet("user-1", "session-near", []float32{45, 82})
	far := storedSet("user-2", "session-far", []float32{60, 130})
	for _, s := range []*database.StoredMeasurementSet{near, far} {
		if err := repo.SaveAccepted(ctx, s); err != nil {
			t.Fatalf("SaveAccepted() error = %v", err)
		}
	}

	results, err := repo.FindSimilar(ctx, []float32{45, 83}, 2)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("FindSimilar() = %d results; want 2", len(results))
	}
	if results[0].Set.CaptureSessionID != "session-near" {
		t.Errorf("nearest = %s; want session-near", results[0].Set.CaptureSessionID)
	}
}

func TestFindSimilarHNSW(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	repo := NewMeasurementRepository(pool)
	ctx := context.Background()

	set := storedSet("user-1", "session-1", []float32{45, 82})
	if err := repo.SaveAccepted(ctx, set); err != nil {
		t.Fatalf("SaveAccepted() error = %v", err)
	}

	if err := repo.EnableHNSW(ctx, ""); err != nil {
		t.Fatalf("EnableHNSW() error = %v", err)
	}
	if repo.HNSWCount() != 1 {
		t.Errorf("HNSWCount() = %d; want 1", repo.HNSWCount())
	}

	// New accepts are indexed incrementally.
	second := storedSet("user-1", "session-2", []float32{46, 83})
	if err := repo.SaveAccepted(ctx, second); err != nil {
		t.Fatalf("SaveAccepted() error = %v", err)
	}
	if repo.HNSWCount() != 2 {
		t.Errorf("HNSWCount() after save = %d; want 2", repo.HNSWCount())
	}

	results, err := repo.FindSimilar(ctx, set.Vector, 1)
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if len(results) != 1 || results[0].Set.ID != set.ID {
		t.Errorf("FindSimilar() nearest = %+v; want the identical vector's set", results)
	}
}
