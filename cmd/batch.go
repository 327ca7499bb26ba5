package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/database"
	"github.com/bodymorph/bodymorph/internal/pipeline"
	"github.com/bodymorph/bodymorph/internal/pose"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Measure captured sessions in bulk",
	Long: `Measure a directory of captured sessions in bulk.
Each subdirectory is one capture: a meta.json with the subject's
user_id and height_cm, a front.json keypoint file and an optional
side.json. Results are written back as measurements.json next to the
inputs. With --store, accepted sets are also persisted to the
configured database backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 4, "Number of sessions to process in parallel")
	batchCmd.Flags().Bool("store", false, "Persist accepted sets to the database")
	batchCmd.Flags().Bool("continue-on-error", true, "Keep going when a session fails")
}

// captureMeta describes one batch capture directory.
type captureMeta struct {
	UserID   string  `json:"user_id"`
	HeightCm float64 `json:"height_cm"`
}

func loadCaptureMeta(dir string) (*captureMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("reading meta.json: %w", err)
	}
	var meta captureMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta.json: %w", err)
	}
	return &meta, nil
}

// listCaptureDirs returns the subdirectories of root that contain a
// meta.json, skipping everything else.
func listCaptureDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "meta.json")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// processCapture runs one capture directory through the pipeline and
// writes measurements.json next to the inputs.
func processCapture(ctx context.Context, p *pipeline.Pipeline, dir string, store bool) error {
	meta, err := loadCaptureMeta(dir)
	if err != nil {
		return err
	}

	sess, err := p.StartSession(meta.UserID, meta.HeightCm, uuid.Nil)
	if err != nil {
		return err
	}

	front, err := loadFrame(filepath.Join(dir, "front.json"), pose.ViewFront)
	if err != nil {
		return err
	}
	if _, err := p.IngestFrame(sess.ID, front); err != nil {
		return fmt.Errorf("front frame: %w", err)
	}

	sidePath := filepath.Join(dir, "side.json")
	if _, err := os.Stat(sidePath); err == nil {
		side, err := loadFrame(sidePath, pose.ViewSide)
		if err != nil {
			return err
		}
		if _, err := p.IngestFrame(sess.ID, side); err != nil {
			return fmt.Errorf("side frame: %w", err)
		}
	}

	set, err := p.Finish(sess.ID)
	if err != nil {
		return err
	}

	if store {
		if _, err := p.Accept(ctx, sess.ID); err != nil {
			return fmt.Errorf("storing accepted set: %w", err)
		}
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "measurements.json"), data, 0o644)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store := mustGetBool(cmd, "store")
	if store {
		if err := setupStore(ctx, cfg, false); err != nil {
			return err
		}
	}

	p := pipeline.New(cfg, nil)
	if store {
		writer, err := database.GetWriter()
		if err != nil {
			return err
		}
		p.Store = writer
	}

	dirs, err := listCaptureDirs(args[0])
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Println("No capture directories found (each needs a meta.json)")
		return nil
	}

	fmt.Printf("Processing %d capture sessions...\n", len(dirs))
	bar := progressbar.NewOptions(len(dirs),
		progressbar.OptionSetDescription("Measuring"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sessions"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount int
	var errs []error
	var mu sync.Mutex

	concurrency := mustGetInt(cmd, "concurrency")
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, dir := range dirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := processCapture(ctx, p, dir, store); err != nil {
				mu.Lock()
				errorCount++
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(dir), err))
				mu.Unlock()
			} else {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
			bar.Add(1)
		}(dir)
	}

	wg.Wait()
	bar.Finish()
	fmt.Println()

	fmt.Printf("Processed: %d succeeded, %d failed\n", successCount, errorCount)
	for _, err := range errs {
		fmt.Printf("  Error: %v\n", err)
	}
	if errorCount > 0 && !mustGetBool(cmd, "continue-on-error") {
		return fmt.Errorf("%d sessions failed", errorCount)
	}
	if store {
		saveHNSWIndex()
	}
	return nil
}
