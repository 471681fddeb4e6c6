package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labrat/cmd/labrat/ui"
	"labrat/internal/preflight"

	"github.com/spf13/cobra"
)

var doctorDeep bool

// doctorCmd verifies the experiment home before a labeler sits down.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the experiment home before a labeling session",
	Long: `Runs the preflight checks against the experiment home:

  - directory layout (stimuli, results, randomization lists)
  - entry point and requirements manifest
  - stimulus inventory (the test set must hold the full recording count)
  - Python interpreter and pip

The launch sequence itself only gates on the Python version; everything
else found here would otherwise surface as a confusing mid-session error.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorDeep, "deep", false, "Also open every recording and verify its WAVE header")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := preflight.Run(ctx, cfg, preflight.Options{Deep: doctorDeep})
	if err != nil {
		return fmt.Errorf("preflight failed to run: %w", err)
	}

	printReport(report)

	if report.Failed() {
		return fmt.Errorf("preflight found problems; fix the failed checks above and re-run")
	}
	return nil
}

func printReport(report *preflight.Report) {
	styles := ui.DefaultStyles()

	fmt.Println("🔬 labRAT Preflight")
	fmt.Println(strings.Repeat("─", 60))

	for _, c := range report.Checks {
		var icon string
		switch c.Status {
		case preflight.StatusPass:
			icon = styles.Success.Render("✓")
		case preflight.StatusWarn:
			icon = styles.Warning.Render("⚠")
		default:
			icon = styles.Error.Render("✗")
		}
		line := fmt.Sprintf("  %s %-32s", icon, c.Name)
		if c.Detail != "" {
			line += " " + styles.Muted.Render(c.Detail)
		}
		fmt.Println(line)
	}

	fmt.Println(strings.Repeat("─", 60))
	passed, warned, failed := report.Counts()
	fmt.Printf("%d passed, %d warnings, %d failed\n", passed, warned, failed)
}
