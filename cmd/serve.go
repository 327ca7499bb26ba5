package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database"
	"github.com/bodymorph/bodymorph/internal/database/mariadb"
	"github.com/bodymorph/bodymorph/internal/database/mock"
	"github.com/bodymorph/bodymorph/internal/database/postgres"
	"github.com/bodymorph/bodymorph/internal/pipeline"
	"github.com/bodymorph/bodymorph/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the bodymorph web server.
The server exposes the capture session API: frame ingestion,
reconciliation, the review lifecycle, stored measurements, mesh
parameters and similar-body search.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("in-memory", false, "Run without a database (measurements are not persisted across restarts)")
}

// hnswEnabler is implemented by repositories with an in-memory
// similarity index.
type hnswEnabler interface {
	EnableHNSW(ctx context.Context, indexPath string) error
	HNSWCount() int
}

// initHNSW builds or loads the measurement HNSW index for fast
// similar-body search.
func initHNSW(ctx context.Context, repo hnswEnabler, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading measurement HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for similar-body search...\n")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build HNSW index: %v\n", err)
		return
	}
	fmt.Printf("Measurement HNSW index ready with %d sets\n", repo.HNSWCount())
}

// setupStore picks and initializes the measurement store backend:
// PostgreSQL when DATABASE_URL is set, MariaDB when MARIADB_DSN is set,
// otherwise the in-memory store if --in-memory was requested.
func setupStore(ctx context.Context, cfg *config.Config, inMemory bool) error {
	switch {
	case cfg.Database.URL != "":
		if err := postgres.Initialize(&cfg.Database); err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		repo := postgres.NewMeasurementRepository(postgres.GetGlobalPool())
		initHNSW(ctx, repo, cfg.Database.HNSWIndexPath)
		database.RegisterBackend("postgres",
			func() database.MeasurementReader { return repo },
			func() database.MeasurementWriter { return repo },
			func() database.SimilaritySearcher { return repo },
		)
		database.RegisterHNSWRebuilder(repo)
		fmt.Println("Using PostgreSQL backend")

	case cfg.Database.MariaDBDSN != "":
		pool, err := mariadb.NewPool(cfg.Database.MariaDBDSN)
		if err != nil {
			return fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			return err
		}
		repo := mariadb.NewMeasurementRepository(pool)
		initHNSW(ctx, repo, cfg.Database.HNSWIndexPath)
		database.RegisterBackend("mariadb",
			func() database.MeasurementReader { return repo },
			func() database.MeasurementWriter { return repo },
			func() database.SimilaritySearcher { return repo },
		)
		database.RegisterHNSWRebuilder(repo)
		fmt.Println("Using MariaDB backend")

	case inMemory:
		mock.NewMockStore().Register()
		fmt.Println("Using in-memory store (measurements are not persisted)")

	default:
		return fmt.Errorf("DATABASE_URL or MARIADB_DSN is required (or pass --in-memory)")
	}
	return nil
}

// saveHNSWIndex saves the similarity index to disk during shutdown.
func saveHNSWIndex() {
	if rebuilder := database.GetHNSWRebuilder(); rebuilder != nil {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
		} else if rebuilder.IsHNSWEnabled() {
			fmt.Println("HNSW index saved to disk")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	if err := setupStore(ctx, cfg, mustGetBool(cmd, "in-memory")); err != nil {
		return err
	}

	reader, err := database.GetReader()
	if err != nil {
		return err
	}
	writer, err := database.GetWriter()
	if err != nil {
		return err
	}
	searcher, _ := database.GetSearcher()

	p := pipeline.New(cfg, nil)
	p.Store = writer

	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")
	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}

	server := web.NewServer(p, host, port, reader, searcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting bodymorph API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
