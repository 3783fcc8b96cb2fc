package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/classmark/internal/config"
	"github.com/kozaktomas/classmark/internal/database/postgres"
	"github.com/kozaktomas/classmark/internal/qrtoken"
	"github.com/kozaktomas/classmark/internal/roster"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Generate printable QR attendance cards",
	Long: `Generate the QR attendance cards students scan to mark themselves
present. Cards are written as PNG files named after the roll number.

Examples:
  # One card
  classmark cards --roll BT23CSH013

  # Every enrolled student in a cohort
  classmark cards --branch CSH --year 2023 --out ./cards`,
	RunE: runCards,
}

func init() {
	rootCmd.AddCommand(cardsCmd)

	cardsCmd.Flags().String("roll", "", "Generate a card for a single roll number")
	cardsCmd.Flags().String("branch", "", "Branch code for cohort-wide generation")
	cardsCmd.Flags().String("year", "", "Enrollment year for cohort-wide generation")
	cardsCmd.Flags().String("out", ".", "Output directory")
}

func writeCard(outDir, roll, token string) error {
	card, err := qrtoken.Encode(token)
	if err != nil {
		return fmt.Errorf("encoding card for %s: %w", roll, err)
	}
	path := filepath.Join(outDir, roll+".png")
	if err := os.WriteFile(path, card, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runCards(cmd *cobra.Command, args []string) error {
	roll := mustGetString(cmd, "roll")
	branch := mustGetString(cmd, "branch")
	year := mustGetString(cmd, "year")
	outDir := mustGetString(cmd, "out")

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	// A single card never needs the database; the card payload is the roll.
	if roll != "" {
		parsed, err := roster.ParseRoll(roll)
		if err != nil {
			return err
		}
		return writeCard(outDir, parsed.Value, parsed.Value)
	}

	if branch == "" || year == "" {
		return errors.New("either --roll or both --branch and --year are required")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	students := postgres.NewStudentRepository(pool)
	list, err := students.List(context.Background(), roster.Cohort{Branch: branch, Year: year})
	if err != nil {
		return fmt.Errorf("listing students: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No enrolled students found.")
		return nil
	}

	for _, s := range list {
		if err := writeCard(outDir, s.Roll, s.QRToken); err != nil {
			return err
		}
	}
	fmt.Printf("Generated %d cards\n", len(list))
	return nil
}
