package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/pipeline"
	"github.com/bodymorph/bodymorph/internal/pose"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Compute measurements from keypoint files",
	Long: `Compute body measurements from pose keypoint JSON files.
Runs a full capture session locally: frames are validated, calibrated
against the subject height, measured and reconciled across views.
Nothing is persisted.`,
	RunE: runMeasure,
}

func init() {
	rootCmd.AddCommand(measureCmd)

	measureCmd.Flags().String("front", "", "Front view keypoint JSON file")
	measureCmd.Flags().String("side", "", "Side view keypoint JSON file (optional)")
	measureCmd.Flags().Float64("height", 0, "Subject height in centimeters")
	measureCmd.Flags().Bool("mesh", false, "Also print mesh deformation parameters")
	measureCmd.Flags().Bool("json", false, "Print the reconciled set as JSON")
	measureCmd.MarkFlagRequired("front")
	measureCmd.MarkFlagRequired("height")
}

// loadFrame reads a pose frame from a keypoint JSON file and forces
// the given view, so files exported without a view field still work.
func loadFrame(path string, view pose.View) (*pose.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var frame pose.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if frame.View == "" {
		frame.View = view
	}
	return &frame, nil
}

func printSet(plan *measure.Plan, set *measure.Set) {
	fmt.Printf("Calibration: %.4f cm/px\n", set.CalibrationRatio)
	if !set.IsAccurate {
		fmt.Println("Accuracy:    estimated (no side view or conflicting views)")
	}
	fmt.Println()
	for _, entry := range plan.Measurements {
		v, ok := set.Values[entry.Name]
		if !ok {
			continue
		}
		flags := ""
		if v.EstimatedFromFrontOnly {
			flags = " (estimated)"
		}
		if v.Conflicting {
			flags = " (views disagree)"
		}
		fmt.Printf("  %-24s %7.1f cm  confidence %.2f%s\n", entry.Name, v.Centimeters, v.Confidence, flags)
	}
}

func runMeasure(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	p := pipeline.New(cfg, nil)

	height := mustGetFloat64(cmd, "height")
	sess, err := p.StartSession("cli", height, uuid.Nil)
	if err != nil {
		return err
	}

	front, err := loadFrame(mustGetString(cmd, "front"), pose.ViewFront)
	if err != nil {
		return err
	}
	if _, err := p.IngestFrame(sess.ID, front); err != nil {
		return fmt.Errorf("front frame: %w", err)
	}

	if sidePath := mustGetString(cmd, "side"); sidePath != "" {
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

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}

	printSet(p.Plan, set)

	if mustGetBool(cmd, "mesh") {
		params, warnings := p.Parametrize(set)
		fmt.Println("\nMesh parameters:")
		for _, axis := range p.Mesh.Axes {
			fmt.Printf("  %-24s %.4f\n", axis.Name, params[axis.Name])
		}
		for _, w := range warnings {
			fmt.Printf("  Warning: %s\n", w)
		}
	}
	return nil
}
