package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/state"
)

var workerQueue string

// workerCmd runs one stage worker against its queue.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a stage worker bound to one queue",
	Long: `Run one pipeline stage as a queue worker. The worker consumes its queue
with prefetch 1, performs the stage, publishes the next message and
acknowledges. Failed deliveries are parked in the dead-letter queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(workerQueue)
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerQueue, "queue", "",
		"queue to serve (collect_queue, transcribe_queue, analyse_queue, edit_queue, completed_queue)")
	_ = workerCmd.MarkFlagRequired("queue")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(queue string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.WithComponent(slog.Default(), "worker")

	b, err := broker.Connect(cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.DeclareInfrastructure(); err != nil {
		return err
	}

	store := state.New(cfg.State.RedisURL, logger)

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}

	layout := artifacts.NewLayout(cfg.Storage.DataDir)

	w, err := buildWorker(cfg, b, store, repo, layout, logger)
	if err != nil {
		return err
	}
	handler, err := w.HandlerFor(queue)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The finalizer's queue also hosts the periodic parent sweep.
	if queue == broker.CompletedQueue {
		c := cron.New()
		if _, err := c.AddFunc("@every 1m", func() {
			w.Aggregator().Sweep(context.Background())
		}); err != nil {
			return fmt.Errorf("scheduling aggregator sweep: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	logger.Info("worker starting", slog.String("queue", queue))
	if err := b.Consume(ctx, queue, handler); err != nil {
		if ctx.Err() != nil {
			logger.Info("worker stopped")
			return nil
		}
		return err
	}
	return nil
}

// openRepository opens the video row store. A missing database is tolerated
// with a warning; the pipeline's correctness never depends on the row.
func openRepository(cfg *config.Config, logger *slog.Logger) (repository.VideoRepository, error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Warn("video row store unavailable, progress rows disabled",
			slog.String("error", err.Error()))
		return nil, nil
	}
	return repository.NewVideoRepository(db), nil
}
