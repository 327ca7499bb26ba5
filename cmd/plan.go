package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bodymorph/bodymorph/internal/config"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the built-in measurement plan",
	Long: `Print the built-in measurement plan and mesh metadata as YAML.
Useful as a starting point for a customized plan.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Bool("mesh", false, "Print mesh axis metadata instead of the measurement plan")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if mustGetBool(cmd, "mesh") {
		os.Stdout.Write(config.MeshYAML())
		return nil
	}
	fmt.Print(string(config.PlanYAML()))
	return nil
}
