package main

import (
	"fmt"
	"math/rand"
	"time"

	"labrat/internal/logging"
	"labrat/internal/participant"
	"labrat/internal/randomization"

	"github.com/spf13/cobra"
)

var randomizeForce bool

// randomizeCmd generates a labeler's test-phase presentation order ahead of
// the session. The experiment does the same on first run, so this is mainly
// for operators who want to inspect the list beforehand.
var randomizeCmd = &cobra.Command{
	Use:   "randomize <labeler-code>",
	Short: "Generate the test-phase randomization list for a labeler",
	Long: `Shuffles the test stimulus inventory into the order the labeler will
hear it, keeping runs of similar recordings apart: no more than a handful
of consecutive stimuli may share a condition, word, speaker or recording
session. The list is persisted so a labeler resuming a session keeps the
exact order they started with.`,
	Args: cobra.ExactArgs(1),
	RunE: runRandomize,
}

func init() {
	randomizeCmd.Flags().BoolVar(&randomizeForce, "force", false, "Regenerate even if a list already exists")
}

func runRandomize(cmd *cobra.Command, args []string) error {
	code := participant.Normalize(args[0])
	if err := participant.Validate(code); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	list, err := randomization.EnsureTestList(cfg.TestStimuliDir(), cfg.RandomizationDir(), code, rng, randomizeForce)
	if err != nil {
		return err
	}

	if list.Reused {
		fmt.Printf("✅ Existing list kept for %s (%d stimuli).\n", code, len(list.Stimuli))
		fmt.Println("   Use --force to regenerate. That discards the labeler's presentation order.")
	} else {
		fmt.Printf("✅ Randomization list generated for %s: %d stimuli.\n", code, len(list.Stimuli))
		logging.Audit().ListGenerated(code, list.Path, len(list.Stimuli))
	}
	fmt.Printf("   %s\n", list.Path)
	return nil
}
