package cmd

import (
	"log/slog"

	"github.com/clipforge/clipforge/internal/analyst"
	"github.com/clipforge/clipforge/internal/artifacts"
	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/broker"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/editor"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline/core"
	"github.com/clipforge/clipforge/internal/pipeline/stages/analyse"
	"github.com/clipforge/clipforge/internal/pipeline/stages/edit"
	"github.com/clipforge/clipforge/internal/pipeline/stages/transcribe"
	"github.com/clipforge/clipforge/internal/repository"
	"github.com/clipforge/clipforge/internal/state"
	"github.com/clipforge/clipforge/internal/worker"
)

// buildStages constructs the three pipeline stages and their collaborators
// from configuration. Shared by the worker and process commands so both
// executors run identical stage code.
func buildStages(cfg *config.Config, layout *artifacts.Layout, logger *slog.Logger) (*transcribe.Stage, *analyse.Stage, *edit.Stage, error) {
	downloader := media.NewDownloader(cfg.Media, layout, logger)
	transcriber := asr.NewWhisperTranscriber(cfg.Media, logger)

	client, err := llm.NewGeminiClient(cfg.Analyst, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	selector := analyst.New(client, cfg.Analyst, logger)

	cutter := media.NewCutter(cfg.Media, logger)
	screenwriter := media.NewScreenwriter(cutter, logger)
	renderer := editor.New(cutter, screenwriter, cfg.Editor, logger)

	return transcribe.NewStage(downloader, transcriber, logger),
		analyse.NewStage(selector, logger),
		edit.NewStage(renderer, logger),
		nil
}

// buildWorker assembles a queue worker over the shared stages.
func buildWorker(cfg *config.Config, b *broker.Broker, store *state.Store, repo repository.VideoRepository, layout *artifacts.Layout, logger *slog.Logger) (*worker.Worker, error) {
	transcribeStage, analyseStage, editStage, err := buildStages(cfg, layout, logger)
	if err != nil {
		return nil, err
	}
	collector := media.NewCollector(cfg.Media, layout, logger)
	return worker.New(b, store, repo, layout, collector,
		transcribeStage, analyseStage, editStage, logger), nil
}

// buildStageList is a convenience for the in-process executor.
func buildStageList(cfg *config.Config, layout *artifacts.Layout, logger *slog.Logger) ([]core.Stage, error) {
	t, a, e, err := buildStages(cfg, layout, logger)
	if err != nil {
		return nil, err
	}
	return []core.Stage{t, a, e}, nil
}
