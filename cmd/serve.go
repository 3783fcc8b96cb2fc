package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/classmark/internal/attendance"
	"github.com/kozaktomas/classmark/internal/config"
	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/database/postgres"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/session"
	"github.com/kozaktomas/classmark/internal/web"
)

// indexedYearSpan is how many enrollment years back the startup index
// rebuild covers. Older cohorts fall back to ErrNoMatch until a register
// call touches them.
const indexedYearSpan = 6

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Classmark web server.
The server exposes the marking endpoints used by classroom kiosks, the
teacher console for opening and closing sessions, and the attendance
reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// studentSource exposes the student table as a comparison gallery.
func studentSource(students database.StudentStore) gallery.Source {
	return gallery.SourceFunc(func(ctx context.Context, cohort roster.Cohort) ([]gallery.Candidate, error) {
		list, err := students.List(ctx, cohort)
		if err != nil {
			return nil, err
		}
		candidates := make([]gallery.Candidate, 0, len(list))
		for _, s := range list {
			candidates = append(candidates, gallery.Candidate{
				Roll:      s.Roll,
				Sample:    s.FaceSample,
				Embedding: s.Embedding,
			})
		}
		return candidates, nil
	})
}

// buildGallery selects the comparison backend from configuration. The
// embedder and index come back nil for backends that do not use them.
func buildGallery(cfg *config.Config, source gallery.Source) (gallery.Resolver, gallery.Embedder, *gallery.IndexedResolver, error) {
	switch cfg.Gallery.Backend {
	case "hash":
		fmt.Println("Using perceptual-hash gallery backend")
		return gallery.NewLinearResolver(source, gallery.NewHashComparator(cfg.Gallery.HashThreshold)), nil, nil, nil

	case "embedding":
		embedder := gallery.NewHTTPEmbedder(cfg.Embedding.URL)
		comparator := gallery.NewEmbeddingComparator(embedder, cfg.Gallery.VerifyThreshold)
		if cfg.Gallery.Indexed {
			fmt.Println("Using embedding gallery backend (HNSW indexed)")
			index := gallery.NewIndexedResolver(source, embedder, comparator)
			return index, embedder, index, nil
		}
		fmt.Println("Using embedding gallery backend (linear scan)")
		return gallery.NewLinearResolver(source, comparator), embedder, nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown gallery backend %q", cfg.Gallery.Backend)
	}
}

// rebuildIndex fills the HNSW graphs for every recent cohort known to the
// branch directory. Empty cohorts get an empty graph, which is harmless.
func rebuildIndex(ctx context.Context, index *gallery.IndexedResolver, branches database.BranchStore) error {
	dirs, err := branches.Branches(ctx)
	if err != nil {
		return fmt.Errorf("listing branches: %w", err)
	}

	currentYear := time.Now().Year()
	for _, branch := range dirs {
		for year := currentYear; year > currentYear-indexedYearSpan; year-- {
			cohort := roster.Cohort{Branch: branch.Code, Year: strconv.Itoa(year)}
			if err := index.Rebuild(ctx, cohort); err != nil {
				return fmt.Errorf("rebuilding index for %s: %w", cohort, err)
			}
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
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
	sessions := postgres.NewSessionRepository(pool)
	marks := postgres.NewAttendanceRepository(pool)
	teachers := postgres.NewTeacherRepository(pool)
	audit := postgres.NewAuditRepository(pool)

	manager := session.NewManager(sessions, students, marks)

	resolver, embedder, index, err := buildGallery(cfg, studentSource(students))
	if err != nil {
		return err
	}
	if index != nil {
		fmt.Println("Building HNSW gallery index...")
		if err := rebuildIndex(context.Background(), index, teachers); err != nil {
			return fmt.Errorf("failed to build gallery index: %w", err)
		}
	}

	pipeline := attendance.NewPipeline(manager, students, marks, audit, resolver)

	server := web.NewServer(cfg, web.Services{
		Students: students,
		Teachers: teachers,
		Branches: teachers,
		Marks:    marks,
		Audit:    audit,
		Sessions: manager,
		Pipeline: pipeline,
		Resolver: resolver,
		Embedder: embedder,
		Index:    index,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Classmark on http://localhost:%d\n", cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
