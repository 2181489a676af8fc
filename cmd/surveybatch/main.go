// Package main is the surveybatch command line entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/surveybatch/internal/archive"
	"github.com/example/surveybatch/internal/batch"
	"github.com/example/surveybatch/internal/config"
	"github.com/example/surveybatch/internal/events"
	"github.com/example/surveybatch/internal/logging"
	"github.com/example/surveybatch/internal/metadata"
	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/runner"
	"github.com/example/surveybatch/internal/stats"
	"github.com/example/surveybatch/internal/storage"
)

const version = "1.0.0"

var configFile string

// app bundles the wired collaborators every subcommand needs
type app struct {
	settings     *config.Settings
	log          *logrus.Logger
	backend      storage.Backend
	store        *metadata.Store
	orchestrator *batch.Orchestrator
	archiver     *archive.Manager
	hub          *events.Hub
}

// newApp loads configuration and wires the application graph
func newApp(ctx context.Context, withHub bool) (*app, error) {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	settings, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := logging.Setup(settings.Logging)

	backend, err := storage.NewBackend(ctx, settings.Storage)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	store := metadata.NewStore(backend, logrus.NewEntry(log))
	aggregator := stats.NewAggregator(backend, logrus.NewEntry(log))
	execRunner := runner.NewExecRunner(
		settings.Processing.Command,
		settings.Processing.ExtraArgs,
		time.Duration(settings.Processing.TimeoutSeconds)*time.Second,
		logrus.NewEntry(log),
	)

	var notifier events.Notifier = events.NopNotifier{}
	var hub *events.Hub
	if withHub {
		hub = events.NewHub(logrus.NewEntry(log))
		notifier = hub
	}

	orchestrator := batch.NewOrchestrator(store, backend, execRunner, aggregator, notifier, logrus.NewEntry(log))

	policy := archive.Policy{
		ProjectMaxAge: time.Duration(settings.Archive.ProjectMaxAgeDays) * 24 * time.Hour,
		BatchMaxAge:   time.Duration(settings.Archive.BatchMaxAgeDays) * 24 * time.Hour,
	}
	archiver := archive.NewManager(backend, store, policy, logrus.NewEntry(log))

	return &app{
		settings:     settings,
		log:          log,
		backend:      backend,
		store:        store,
		orchestrator: orchestrator,
		archiver:     archiver,
		hub:          hub,
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:           "surveybatch",
		Short:         "Batch processing for site survey projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path")

	root.AddCommand(
		newCreateCmd(),
		newProcessCmd(),
		newListCmd(),
		newSweepCmd(),
		newArchiveStatsCmd(),
		newExportCmd(),
		newServeEventsCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCreateCmd() *cobra.Command {
	var (
		projectIDs []string
		groupBy    string
		formats    []string
		visualize  bool
		opacity    float64
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a batch over existing projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = a.settings.Processing.WorkerCount
			}
			opts := models.ProcessingOptions{
				GroupingKey:            groupBy,
				OutputFormats:          formats,
				GenerateVisualizations: visualize,
				MarkerOpacity:          opacity,
			}
			b, err := a.orchestrator.Create(cmd.Context(), args[0], projectIDs, opts, workers)
			if err != nil {
				return err
			}
			fmt.Printf("Created batch %s (%d projects)\n", b.ID, len(b.ProjectIDs))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&projectIDs, "project", "p", nil, "project ID to include (repeatable)")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "grouping key passed to the processing tool")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output format (repeatable)")
	cmd.Flags().BoolVar(&visualize, "visualize", false, "generate visualization artifacts")
	cmd.Flags().Float64Var(&opacity, "marker-opacity", 0, "marker opacity for visualizations")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent projects (defaults to configuration)")
	return cmd
}

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <batch-id>",
		Short: "Run a batch and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			b, err := a.orchestrator.Run(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, batch.ErrBatchBusy) {
					return fmt.Errorf("batch %s is already running", args[0])
				}
				return err
			}
			printBatchSummary(b)
			return nil
		},
	}
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		status  string
		tags    []string
		search  string
		sortKey string
		desc    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			filter := batch.Filter{Tags: tags, Search: search}
			if status != "" {
				s := models.BatchStatus(status)
				filter.Status = &s
			}
			batches, err := a.orchestrator.List(cmd.Context(), filter, batch.Sort{
				Key:        batch.SortKey(sortKey),
				Descending: desc,
			})
			if err != nil {
				return err
			}
			for _, b := range batches {
				fmt.Printf("%s  %-24s %-10s %3d%%  %d projects\n",
					b.ID, b.Name, b.Status, b.Progress, len(b.ProjectIDs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by lifecycle status")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "require tag (repeatable)")
	cmd.Flags().StringVar(&search, "search", "", "substring of batch name or project filename")
	cmd.Flags().StringVar(&sortKey, "sort", "", "sort key: created, name, projects, success_rate")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Archive every project and batch past its retention threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			report, err := a.archiver.Sweep(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Printf("Would archive %d projects and %d batches\n",
					len(report.ProjectCandidates), len(report.BatchCandidates))
				return nil
			}
			fmt.Printf("Archived %d items (%d failed)\n", report.Archived, report.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without archiving")
	return cmd
}

func newArchiveStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive-stats",
		Short: "Show archive counts and space savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			s, err := a.archiver.ComputeStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Archived projects: %d\n", s.ArchivedProjects)
			fmt.Printf("Archived batches:  %d\n", s.ArchivedBatches)
			fmt.Printf("Space saved:       %d bytes\n", s.SpaceSavedBytes)
			fmt.Printf("Compression ratio: %.2f\n", s.CompressionRatio)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <batch-id>",
		Short: "Export a batch's statistics as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			b, err := a.orchestrator.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if b.Statistics == nil {
				return fmt.Errorf("batch %s has no statistics yet; run it first", b.ID)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := stats.ExportWorkbook(b.Name, b.Statistics, f); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "batch-stats.xlsx", "output spreadsheet path")
	return cmd
}

// newServeEventsCmd serves the websocket progress feed. Events are
// in-process only, so the command also accepts batch IDs to run while
// serving.
func newServeEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-events [batch-id...]",
		Short: "Serve live progress events and run the given batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			go a.hub.Run()
			defer a.hub.Shutdown()

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", a.hub.ServeWs)
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})
			server := &http.Server{Addr: a.settings.Events.Addr, Handler: mux}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				a.log.WithField("addr", server.Addr).Info("event server listening")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					a.log.WithError(err).Fatal("event server failed")
				}
			}()

			for _, batchID := range args {
				go func(id string) {
					if _, err := a.orchestrator.Run(cmd.Context(), id); err != nil {
						a.log.WithError(err).WithField("batch", id).Error("batch run failed")
					}
				}(batchID)
			}

			<-stop
			a.log.Info("shutting down event server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.WithError(err).Warn("event server forced to shut down")
			}
			return nil
		},
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("surveybatch v%s\n", version)
		},
	}
}

func printBatchSummary(b *models.BatchRecord) {
	successful := 0
	failed := 0
	for _, e := range b.ProjectStatuses {
		switch e.Status {
		case models.ProjectCompleted:
			successful++
		case models.ProjectFailed:
			failed++
		}
	}
	fmt.Printf("Batch %s finished: %s (%d succeeded, %d failed)\n", b.ID, b.Status, successful, failed)
	if b.Statistics != nil {
		fmt.Printf("Access points: %d across %d models\n",
			b.Statistics.TotalAccessPoints, len(b.Statistics.AccessPointModels))
		fmt.Printf("Antennas:      %d across %d models\n",
			b.Statistics.TotalAntennas, len(b.Statistics.AntennaModels))
	}
}
