package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bodymorph/bodymorph/internal/config"
	"github.com/bodymorph/bodymorph/internal/pose"
	"github.com/bodymorph/bodymorph/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <keypoints.json>",
	Short: "Render a keypoint frame as a PNG overlay",
	Long: `Render a pose keypoint frame as a PNG skeleton overlay.
Joints below the configured confidence threshold are drawn in a
warning color so bad captures are easy to spot.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("out", "overlay.png", "Output PNG file")
	renderCmd.Flags().Float64("scale", 1.0, "Scale factor for the output image")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var frame pose.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	outPath := mustGetString(cmd, "out")
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	opts := render.Options{Scale: mustGetFloat64(cmd, "scale")}
	if err := render.WritePNG(out, &frame, cfg.Pipeline.MinConfidence, opts); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	fmt.Printf("Wrote %s\n", outPath)
	return nil
}
