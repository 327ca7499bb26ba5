package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bodymorph",
	Short: "Body measurement pipeline from pose keypoints",
	Long: `Bodymorph turns detected pose keypoints into calibrated body
measurements: per-view computation, multi-view reconciliation, a user
verification lifecycle, and deformation parameters for a reference 3D
mesh. Run the web server for the full capture flow, or use the one-shot
commands to measure keypoint files directly.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
