package main

import (
	_ "embed"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

//go:embed guide.md
var guideMarkdown string

var guideRaw bool

// guideCmd shows the embedded operator guide, so the document travels with
// the binary instead of living in a wiki nobody finds.
var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show the operator setup guide",
	RunE:  runGuide,
}

func init() {
	guideCmd.Flags().BoolVar(&guideRaw, "raw", false, "Print plain markdown without terminal rendering")
}

func runGuide(cmd *cobra.Command, args []string) error {
	if guideRaw {
		fmt.Print(guideMarkdown)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(guideMarkdown)
		return nil
	}

	out, err := renderer.Render(guideMarkdown)
	if err != nil {
		fmt.Print(guideMarkdown)
		return nil
	}
	fmt.Print(out)
	return nil
}
