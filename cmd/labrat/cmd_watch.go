package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labrat/cmd/labrat/ui"
	"labrat/internal/participant"
	"labrat/internal/session"
	"labrat/internal/watch"

	"github.com/spf13/cobra"
)

// watchCmd follows a running session from a second terminal, printing a
// progress line whenever the experiment writes a file.
var watchCmd = &cobra.Command{
	Use:   "watch <labeler-code>",
	Short: "Follow a labeler's progress live",
	Long: `Watches the labeler's results directory and prints a progress line
whenever the experiment records a trial. Meant for a second terminal or
a remote shell while the labeler works. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	code := participant.Normalize(args[0])
	if err := participant.Validate(code); err != nil {
		return err
	}

	pw, err := watch.NewProgressWatcher(cfg.ResultsDir(), cfg.RandomizationDir(), code, cfg.GetWatchDebounce())
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pw.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	styles := ui.DefaultStyles()
	fmt.Printf("👀 Watching %s  (Ctrl+C to stop)\n", styles.Bold.Render(code))
	fmt.Println(styles.RenderDivider(60))

	wasComplete := false
	for {
		select {
		case sum, ok := <-pw.Updates():
			if !ok {
				return nil
			}
			printProgressLine(sum)
			if sum.Complete && !wasComplete {
				fmt.Println(styles.Success.Render("🎉 All stimuli labeled. The labeler is done."))
			}
			wasComplete = sum.Complete

		case <-sigCh:
			fmt.Println("\nStopped.")
			pw.Stop()
			return nil
		}
	}
}

func printProgressLine(sum session.Summary) {
	practice := "practice pending"
	switch {
	case sum.PracticeDone:
		practice = "practice done"
	case sum.PracticeLabeled > 0:
		practice = fmt.Sprintf("practice %d labeled", sum.PracticeLabeled)
	}

	fmt.Printf("%s │ test %d/%d labeled │ %s\n",
		time.Now().Format("15:04:05"), sum.TestLabeled, sum.TestTotal, practice)
}
