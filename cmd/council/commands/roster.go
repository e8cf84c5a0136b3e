package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RosterCmd rappresenta il comando roster
var RosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Show the council roster",
	Long: `Display the advisors currently configured for the council,
including the model and persona file backing each one.`,
	Example: `  # Show the current roster
  council roster

  # Show the roster from a specific config
  council roster -c config.yaml`,
	RunE: runRoster,
}

func runRoster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Println("Council Roster")
	fmt.Println("==============")
	fmt.Println()

	for _, a := range cfg.Council.Advisors {
		persona := a.PromptFile
		if persona == "" {
			persona = "(none)"
		} else if _, err := os.Stat(a.PromptFile); err != nil {
			persona = persona + " (missing)"
		}

		fmt.Printf("%-20s model: %-25s persona: %s\n", a.ID, a.Model, persona)
	}

	fmt.Println()
	fmt.Printf("Chairman model: %s\n", cfg.Council.ChairmanModel)
	fmt.Printf("Title model:    %s\n", cfg.Council.TitleModel)

	return nil
}
