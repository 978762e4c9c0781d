package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/repository"
)

var (
	processMaxHighlights int
	processSubtitles     bool
)

// processCmd runs the whole pipeline in process for one recorded video.
var processCmd = &cobra.Command{
	Use:   "process <url>",
	Short: "Process one recorded video end to end in this process",
	Long: `Run transcribe, analyse and edit synchronously for a single recorded
video, without traversing the broker. Artifacts land at the same paths the
queue workers would use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(args[0])
	},
}

func init() {
	processCmd.Flags().IntVar(&processMaxHighlights, "max-highlights", 5, "maximum number of clips (1-20)")
	processCmd.Flags().BoolVar(&processSubtitles, "subtitles", false, "burn subtitles into the clips")
	rootCmd.AddCommand(processCmd)
}

func runProcess(url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.WithComponent(slog.Default(), "process")

	layout := artifacts.NewLayout(cfg.Storage.DataDir)
	stages, err := buildStageList(cfg, layout, logger)
	if err != nil {
		return err
	}

	var sink progress.Sink = progress.NopSink{}
	var repo repository.VideoRepository
	if db, dbErr := database.Open(cfg.Database, logger); dbErr == nil {
		repo = repository.NewVideoRepository(db)
		sink = progress.NewBridge(repo, logger)
	} else {
		logger.Warn("video row store unavailable, progress rows disabled",
			slog.String("error", dbErr.Error()))
	}

	jobID := models.NewJobID()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if repo != nil {
		if err := repo.Create(ctx, &models.Video{
			JobID:  jobID,
			URL:    url,
			Status: models.JobStatusPending,
		}); err != nil {
			logger.Warn("video row create failed", slog.String("error", err.Error()))
		}
	}

	executor := pipeline.NewExecutor(stages, layout, logger)
	st, err := executor.Run(ctx, pipeline.Options{
		JobID:            jobID,
		SourceURL:        url,
		MaxHighlights:    models.ClampMaxHighlights(processMaxHighlights),
		IncludeSubtitles: processSubtitles,
	}, sink)

	// A user interrupt is a normal exit.
	if ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}
	if err != nil {
		if repo != nil {
			_ = repo.MarkFailed(context.Background(), jobID, err.Error())
		}
		return err
	}

	if repo != nil {
		_ = repo.MarkCompleted(ctx, jobID, st.OutputPath, st.Title, st.ThumbnailPath)
	}
	fmt.Printf("job %s completed: %d clips\n", jobID, len(st.ClipPaths))
	for _, clip := range st.ClipPaths {
		fmt.Println("  " + clip)
	}
	return nil
}
