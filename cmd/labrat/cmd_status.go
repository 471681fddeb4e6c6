package main

import (
	"fmt"
	"time"

	"labrat/cmd/labrat/ui"
	"labrat/internal/participant"
	"labrat/internal/session"

	"github.com/spf13/cobra"
)

// statusCmd reports labeling progress from the files the experiment writes.
var statusCmd = &cobra.Command{
	Use:   "status [labeler-code]",
	Short: "Show labeling progress",
	Long: `Shows how far each labeler has come, read from the progress files the
experiment writes after every trial. With a code as argument, shows that
labeler's session in detail.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		code := participant.Normalize(args[0])
		if err := participant.Validate(code); err != nil {
			return err
		}
		sum, err := session.BuildSummary(cfg.ResultsDir(), cfg.RandomizationDir(), code)
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	}

	ids, err := session.Labelers(cfg.ResultsDir(), cfg.RandomizationDir())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No labeler sessions found.")
		fmt.Println("Derive a code with 'labrat id', then start the experiment.")
		return nil
	}

	styles := ui.DefaultStyles()
	table := ui.NewSimpleTable("🧪 Labeling Sessions", []string{"Labeler", "Practice", "Test", "Complete", "Last Activity"})
	for _, id := range ids {
		sum, err := session.BuildSummary(cfg.ResultsDir(), cfg.RandomizationDir(), id)
		if err != nil {
			table.AddRow(id, "?", "?", "?", fmt.Sprintf("error: %v", err))
			continue
		}
		table.AddRow(
			sum.LabelerID,
			practiceCell(sum),
			fmt.Sprintf("%d/%d", sum.TestLabeled, sum.TestTotal),
			completeCell(sum),
			activityCell(sum.LastActivity),
		)
	}
	fmt.Print(table.View(styles))
	return nil
}

func printSummary(sum *session.Summary) {
	styles := ui.DefaultStyles()

	fmt.Printf("🧪 Session %s\n", styles.Bold.Render(sum.LabelerID))
	fmt.Println(styles.RenderDivider(50))
	fmt.Printf("  Practice:      %s", practiceCell(sum))
	if sum.PracticeLabeled > 0 {
		fmt.Printf(" (%d stimuli labeled)", sum.PracticeLabeled)
	}
	fmt.Println()

	fmt.Printf("  Test:          %d/%d labeled", sum.TestLabeled, sum.TestTotal)
	if sum.TestTotal > 0 {
		fmt.Printf(" (%.1f%%)", 100*float64(sum.TestLabeled)/float64(sum.TestTotal))
	}
	fmt.Println()

	fmt.Printf("  Result rows:   %d\n", sum.ResultRows)
	fmt.Printf("  Last activity: %s\n", activityCell(sum.LastActivity))

	fmt.Println(styles.RenderDivider(50))
	if sum.Complete {
		fmt.Println(styles.Success.Render("  ✅ Session complete"))
	} else if sum.TestTotal == 0 {
		fmt.Println(styles.Muted.Render("  Session not started (no randomization list yet)"))
	} else {
		fmt.Printf("  %d stimuli remaining\n", sum.TestTotal-sum.TestLabeled)
	}
}

func practiceCell(sum *session.Summary) string {
	if sum.PracticeDone {
		return "done"
	}
	if sum.PracticeLabeled > 0 {
		return "running"
	}
	return "pending"
}

func completeCell(sum *session.Summary) string {
	if sum.Complete {
		return "yes"
	}
	return "no"
}

func activityCell(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04")
}
