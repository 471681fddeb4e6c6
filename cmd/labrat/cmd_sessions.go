// Package main implements the launch history commands.
// This file reads the SQLite ledger the launcher writes to.
package main

import (
	"fmt"
	"sort"
	"strconv"

	"labrat/cmd/labrat/ui"
	"labrat/internal/store"

	"github.com/spf13/cobra"
)

var sessionsLimit int

// sessionsCmd lists recorded launches. The ledger is bookkeeping: exit
// codes appear here as recorded, never interpreted.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded launches from the ledger",
	Long: `Shows the launch history the launcher records: when each session
started, whether the version gate passed, and the exit codes of the
dependency install and the experiment process as pip and Python
reported them.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "How many launches to show")
}

func runSessions(cmd *cobra.Command, args []string) error {
	ledger, err := store.NewLedger(cfg.LedgerPath())
	if err != nil {
		return fmt.Errorf("opening launch ledger: %w", err)
	}
	defer ledger.Close()

	launches, err := ledger.RecentLaunches(sessionsLimit)
	if err != nil {
		return err
	}
	if len(launches) == 0 {
		fmt.Println("No launches recorded yet.")
		return nil
	}

	styles := ui.DefaultStyles()
	table := ui.NewSimpleTable("🚀 Recorded Launches", []string{"Started", "Outcome", "Python", "Gate", "Install", "Experiment"})
	for _, la := range launches {
		table.AddRow(
			la.StartedAt.Local().Format("2006-01-02 15:04"),
			la.Outcome,
			orDash(la.PythonVersion),
			gateCell(la),
			exitCell(la.InstallExitCode),
			exitCell(la.ExperimentExitCode),
		)
	}
	fmt.Print(table.View(styles))

	stats, err := ledger.GetStats()
	if err != nil {
		return nil
	}
	fmt.Printf("Total: %d launches", stats["total"])
	outcomes := make([]string, 0, len(stats))
	for k := range stats {
		if k != "total" {
			outcomes = append(outcomes, k)
		}
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Printf("  %s %d", k, stats[k])
	}
	fmt.Println()
	return nil
}

func gateCell(la store.Launch) string {
	if la.PythonVersion == "" {
		return "-"
	}
	if la.VersionOK {
		return "pass"
	}
	return "FAIL"
}

func exitCell(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
