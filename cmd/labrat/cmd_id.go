package main

import (
	"errors"
	"fmt"

	"labrat/cmd/labrat/idform"
	"labrat/cmd/labrat/ui"
	"labrat/internal/participant"
	"labrat/internal/session"

	"github.com/spf13/cobra"
)

var (
	idBirthName  string
	idBirthDay   int
	idBirthplace string
	idMother     string
)

// idCmd derives the 8-character labeler code a participant enters into the
// experiment. With a code as argument it checks well-formedness instead.
var idCmd = &cobra.Command{
	Use:   "id [code]",
	Short: "Derive or check a labeler code",
	Long: `Derives the 8-character labeler code from biographical fragments:
the first two letters of the family name at birth, the two-digit day of
birth, the last two letters of the birthplace, and the first two letters
of the mother's first name, all upper-case.

A returning participant re-derives the same code in a later session, so
the lab never needs a roster linking codes to people.

Without flags an interactive prompt collects the fragments. With a code
as argument the code is checked instead of derived.

Examples:
  labrat id
  labrat id --birth-name Müller --birth-day 3 --birthplace Bremen --mother Anna
  labrat id MU03ENAN`,
	Args: cobra.MaximumNArgs(1),
	RunE: runID,
}

func init() {
	idCmd.Flags().StringVar(&idBirthName, "birth-name", "", "Family name at birth")
	idCmd.Flags().IntVar(&idBirthDay, "birth-day", 0, "Day of the month of birth (1-31)")
	idCmd.Flags().StringVar(&idBirthplace, "birthplace", "", "Town or city of birth")
	idCmd.Flags().StringVar(&idMother, "mother", "", "Mother's first name")
}

func runID(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return checkCode(args[0])
	}

	frags := participant.Fragments{
		BirthName:       idBirthName,
		BirthDay:        idBirthDay,
		Birthplace:      idBirthplace,
		MotherFirstName: idMother,
	}

	if idBirthName == "" || idBirthDay == 0 || idBirthplace == "" || idMother == "" {
		var err error
		frags, err = idform.Run()
		if err != nil {
			if errors.Is(err, idform.ErrCancelled) {
				fmt.Println("Cancelled.")
				return nil
			}
			return err
		}
	}

	code, err := participant.Derive(frags)
	if err != nil {
		return err
	}

	printCode(code)
	return nil
}

func checkCode(raw string) error {
	code := participant.Normalize(raw)
	if err := participant.Validate(code); err != nil {
		return err
	}
	fmt.Printf("✅ %s is a well-formed labeler code.\n", code)
	return nil
}

func printCode(code string) {
	styles := ui.DefaultStyles()
	fmt.Println()
	fmt.Printf("  Labeler code: %s\n", styles.Badge.Render(code))
	fmt.Println()
	fmt.Println("  The experiment asks for this code at startup.")
	fmt.Println("  Session files for this labeler will appear under:")
	fmt.Printf("    %s\n", session.Dir(cfg.ResultsDir(), code))
}
