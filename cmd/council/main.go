package main

import (
	"fmt"
	"os"

	"github.com/biodoia/gocouncil/cmd/council/commands"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "council",
		Short: "Council - Multi-model deliberation server",
		Long: `Council - Multi-model deliberation server

A backend that submits each question to a council of LLM advisors,
has the council rank its own anonymized answers, and lets a chairman
model synthesize the final response.

Features:
  • Parallel advisor fan-out against a local Ollama backend
  • Anonymized peer ranking with aggregate scoring
  • Chairman synthesis grounded in the full deliberation
  • Server-Sent Events progress streaming
  • Group chat sessions with a subset of the roster`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")

	// Add all commands
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.RosterCmd)
	rootCmd.AddCommand(commands.DoctorCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Council version %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
