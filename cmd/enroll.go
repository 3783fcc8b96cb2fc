package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/classmark/internal/config"
	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/database/postgres"
	"github.com/kozaktomas/classmark/internal/fingerprint"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/roster"
)

// enrollSampleSize matches the normalization applied by the web register
// endpoint so batch-enrolled samples compare identically.
const enrollSampleSize = 640

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Batch-enroll students from a directory of face images",
	Long: `Enroll students in bulk from a directory of reference face images.
Each image file must be named after the student's roll number, e.g.
BT23CSH013.jpg. Student names can be supplied with a CSV manifest of
"roll,name" rows; rolls without a manifest entry use the roll as the name.

Already enrolled students are skipped, so the command can be re-run after
adding new images.

Examples:
  # Enroll every face image in ./freshers
  classmark enroll ./freshers --password welcome123

  # With display names from a manifest
  classmark enroll ./freshers --names roster.csv --concurrency 3`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("names", "", "CSV manifest with roll,name rows")
	enrollCmd.Flags().String("password", "", "Initial password for every enrolled student")
	enrollCmd.Flags().Int("concurrency", 5, "Number of parallel workers")
}

func loadNamesManifest(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	names := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		names[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
	}
	return names, nil
}

// faceImages lists the directory's image files keyed by the roll encoded in
// the filename. Files that are not images or not valid rolls are reported
// and skipped.
func faceImages(dir string) (map[roster.Roll]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	images := make(map[roster.Roll]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		parsed, err := roster.ParseRoll(stem)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", entry.Name(), err)
			continue
		}
		images[parsed] = filepath.Join(dir, entry.Name())
	}
	return images, nil
}

func enrollOne(
	ctx context.Context,
	students database.StudentStore,
	embedder gallery.Embedder,
	parsed roster.Roll,
	path, name, password string,
) error {
	sample, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	normalized, err := fingerprint.NormalizeSample(sample, enrollSampleSize)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	student := database.Student{
		Roll:       parsed.Value,
		Name:       name,
		Cohort:     parsed.Cohort,
		Password:   password,
		FaceSample: normalized,
		QRToken:    parsed.Value,
	}

	if embedder != nil {
		embedding, err := embedder.Embed(ctx, normalized)
		if err != nil {
			fmt.Printf("Warning: could not embed %s: %v\n", parsed.Value, err)
		} else {
			student.Embedding = embedding
		}
	}

	return students.Register(ctx, student)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := args[0]
	namesPath := mustGetString(cmd, "names")
	password := mustGetString(cmd, "password")
	concurrency := mustGetInt(cmd, "concurrency")

	ctx := context.Background()
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	names := map[string]string{}
	if namesPath != "" {
		var err error
		if names, err = loadNamesManifest(namesPath); err != nil {
			return fmt.Errorf("failed to load names manifest: %w", err)
		}
	}

	images, err := faceImages(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	if len(images) == 0 {
		fmt.Println("No face images found.")
		return nil
	}
	fmt.Printf("Found %d face images to enroll\n\n", len(images))

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()
	students := postgres.NewStudentRepository(pool)

	var embedder gallery.Embedder
	if cfg.Gallery.Backend == "embedding" {
		embedder = gallery.NewHTTPEmbedder(cfg.Embedding.URL)
	}

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped, failed int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for parsed, path := range images {
		wg.Add(1)
		go func(parsed roster.Roll, path string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			name := names[parsed.Value]
			if name == "" {
				name = parsed.Value
			}

			err := enrollOne(ctx, students, embedder, parsed, path, name, password)
			switch {
			case err == nil:
				atomic.AddInt64(&enrolled, 1)
			case errors.Is(err, database.ErrStudentExists):
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&failed, 1)
				fmt.Printf("\nError enrolling %s: %v\n", parsed.Value, err)
			}
			_ = bar.Add(1)
		}(parsed, path)
	}
	wg.Wait()

	fmt.Printf("\n\nEnrolled: %d, already present: %d, failed: %d\n", enrolled, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d enrollments failed", failed)
	}
	return nil
}
