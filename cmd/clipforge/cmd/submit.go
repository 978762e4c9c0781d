package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/observability"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/state"
)

var (
	submitStream          bool
	submitSegmentDuration int
	submitMaxDuration     int
	submitMaxHighlights   int
	submitSubtitles       bool
)

// submitCmd initializes a job and publishes its first message.
var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit a video or stream for asynchronous processing",
	Long: `Create a job for the given URL and publish its first message. Recorded
videos enter at the transcribe queue; live streams (--stream) enter at the
collect queue, which slices the capture into segments and fans out one
sub-job per segment.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubmit(args[0])
	},
}

func init() {
	submitCmd.Flags().BoolVar(&submitStream, "stream", false, "treat the URL as a live stream")
	submitCmd.Flags().IntVar(&submitSegmentDuration, "segment-duration", 0, "stream segment length in seconds (10-600)")
	submitCmd.Flags().IntVar(&submitMaxDuration, "max-duration", 0, "total stream capture length in seconds (30-3600)")
	submitCmd.Flags().IntVar(&submitMaxHighlights, "max-highlights", 5, "maximum number of clips (1-20)")
	submitCmd.Flags().BoolVar(&submitSubtitles, "subtitles", false, "burn subtitles into the clips")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.WithComponent(slog.Default(), "submit")

	b, err := broker.Connect(cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.DeclareInfrastructure(); err != nil {
		return err
	}

	store := state.New(cfg.State.RedisURL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobID := models.NewJobID()
	store.Initialize(ctx, jobID, url)
	store.Update(ctx, jobID, models.JobStatusPending, "START", map[string]any{
		"max_highlights":    models.ClampMaxHighlights(submitMaxHighlights),
		"include_subtitles": submitSubtitles,
	})

	if db, dbErr := database.Open(cfg.Database, logger); dbErr == nil {
		repo := repository.NewVideoRepository(db)
		if err := repo.Create(ctx, &models.Video{
			JobID:  jobID,
			URL:    url,
			Status: models.JobStatusPending,
		}); err != nil {
			logger.Warn("video row create failed", slog.String("error", err.Error()))
		}
	}

	var env *broker.Envelope
	queue := broker.TranscribeQueue
	if submitStream {
		queue = broker.CollectQueue
		env, err = broker.NewEnvelope(jobID, "collect", broker.CollectPayload{
			StreamURL:       url,
			SegmentDuration: submitSegmentDuration,
			MaxDuration:     submitMaxDuration,
		})
	} else {
		env, err = broker.NewEnvelope(jobID, "transcribe", broker.TranscribePayload{URL: url})
	}
	if err != nil {
		return err
	}
	if err := b.Publish(ctx, queue, env); err != nil {
		return err
	}

	fmt.Printf("job %s submitted to %s\n", jobID, queue)
	return nil
}
