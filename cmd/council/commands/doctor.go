package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/biodoia/gocouncil/internal/ollama"
	"github.com/biodoia/gocouncil/pkg/database"
	"github.com/spf13/cobra"
)

// DoctorCmd rappresenta il comando doctor
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health diagnostics",
	Long: `Run health checks on the council system.

This command checks database connectivity, the Ollama backend, and the
persona files of the configured roster.`,
	Example: `  # Run full diagnostic
  council doctor

  # Check only the inference backend
  council doctor --check ollama`,
	RunE: runDoctor,
}

var doctorCheck string

func init() {
	DoctorCmd.Flags().StringVar(&doctorCheck, "check", "", "Run specific check (database, ollama, personas)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Council System Health Check")
	fmt.Println("===========================")
	fmt.Println()

	checks := []struct {
		name string
		fn   func(*cobra.Command) error
	}{
		{"database", checkDatabase},
		{"ollama", checkOllama},
		{"personas", checkPersonas},
	}

	if doctorCheck != "" {
		for _, c := range checks {
			if c.name == doctorCheck {
				return c.fn(cmd)
			}
		}
		return fmt.Errorf("unknown check: %s", doctorCheck)
	}

	results := make(map[string]bool, len(checks))
	for _, c := range checks {
		err := c.fn(cmd)
		results[c.name] = err == nil
		fmt.Println()
	}

	fmt.Println("Summary")
	fmt.Println("-------")
	allPassed := true
	for _, c := range checks {
		status := "PASS"
		if !results[c.name] {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("%-12s %s\n", c.name+":", status)
	}

	fmt.Println()
	if !allPassed {
		return fmt.Errorf("health check failed")
	}
	fmt.Println("All checks passed - system is healthy")
	return nil
}

func checkDatabase(cmd *cobra.Command) error {
	fmt.Println("[1/3] Database Health Check")
	fmt.Println("---------------------------")

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return err
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Printf("failed to connect: %v\n", err)
		return err
	}
	defer db.Close()

	sqlDB, err := db.DB.DB()
	if err != nil {
		fmt.Printf("failed to get database instance: %v\n", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		fmt.Printf("database ping failed: %v\n", err)
		return err
	}

	fmt.Println("database connection OK")
	return nil
}

func checkOllama(cmd *cobra.Command) error {
	fmt.Println("[2/3] Ollama Health Check")
	fmt.Println("-------------------------")

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return err
	}

	client := ollama.NewClient(cfg.Ollama.BaseURL)
	status := client.GetStatus(context.Background())

	fmt.Printf("service: %s\n", status.Service)
	fmt.Printf("version: %s\n", status.Version)
	for _, m := range status.RunningModels {
		fmt.Printf("running: %s\n", m.Name)
	}

	if status.Service != "online" {
		return fmt.Errorf("ollama backend is %s", status.Service)
	}
	return nil
}

func checkPersonas(cmd *cobra.Command) error {
	fmt.Println("[3/3] Persona Files Check")
	fmt.Println("-------------------------")

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return err
	}

	missing := 0
	for _, a := range cfg.Council.Advisors {
		if a.PromptFile == "" {
			fmt.Printf("%-20s no persona file configured\n", a.ID)
			continue
		}
		if _, err := os.Stat(a.PromptFile); err != nil {
			fmt.Printf("%-20s missing: %s\n", a.ID, a.PromptFile)
			missing++
			continue
		}
		fmt.Printf("%-20s OK\n", a.ID)
	}

	if missing > 0 {
		return fmt.Errorf("%d persona file(s) missing", missing)
	}
	return nil
}
