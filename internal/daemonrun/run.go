// Package daemonrun assembles the daemon process runtime: logging, queue
// store, service clients, stage handlers, and the daemon lifecycle.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vignette/internal/analyzing"
	"vignette/internal/artifacts"
	"vignette/internal/composing"
	"vignette/internal/config"
	"vignette/internal/daemon"
	"vignette/internal/deps"
	"vignette/internal/generating"
	"vignette/internal/logging"
	"vignette/internal/queue"
	"vignette/internal/services/analyzer"
	"vignette/internal/services/encoder"
	"vignette/internal/services/imagegen"
	"vignette/internal/services/imagesearch"
	"vignette/internal/services/transcriber"
	"vignette/internal/transcribing"
	"vignette/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vignette daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.NewForDir(cfg.Paths.LogDir, level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "vignetted.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	store.SetLogger(logger)

	manager := workflow.NewManager(cfg, store, buildStages(cfg, store, logger), logger)
	d, err := daemon.New(cfg, store, manager, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("vignette daemon shutting down")
	return nil
}

func buildStages(cfg *config.Config, store *queue.Store, logger *slog.Logger) workflow.StageSet {
	art := artifacts.NewStore(cfg)

	transcribeClient := transcriber.NewClient(transcriber.Config{
		BaseURL:        cfg.Transcriber.BaseURL,
		APIKey:         cfg.Transcriber.APIKey,
		Model:          cfg.Transcriber.Model,
		TimeoutSeconds: cfg.Transcriber.TimeoutSeconds,
		RetryAttempts:  cfg.Transcriber.RetryAttempts,
	}, cfg.FFmpegBinary(), cfg.FFprobeBinary())

	analyzeClient := analyzer.NewClient(analyzer.Config{
		BaseURL:        cfg.Analyzer.BaseURL,
		APIKey:         cfg.Analyzer.APIKey,
		Model:          cfg.Analyzer.Model,
		TimeoutSeconds: cfg.Analyzer.TimeoutSeconds,
	})

	var searcher generating.Searcher
	if strings.TrimSpace(cfg.ImageSearch.APIKey) != "" {
		searcher = imagesearch.NewClient(imagesearch.Config{
			BaseURL:        cfg.ImageSearch.BaseURL,
			APIKey:         cfg.ImageSearch.APIKey,
			MaxResults:     cfg.ImageSearch.MaxResults,
			TimeoutSeconds: cfg.ImageSearch.TimeoutSeconds,
		})
	}
	var generator generating.Generator
	if strings.TrimSpace(cfg.ImageGen.APIKey) != "" {
		generator = imagegen.NewClient(imagegen.Config{
			BaseURL:        cfg.ImageGen.BaseURL,
			APIKey:         cfg.ImageGen.APIKey,
			TimeoutSeconds: cfg.ImageGen.TimeoutSeconds,
		})
	}

	encodeClient := encoder.NewClient(encoder.Config{
		FFmpegBinary:   cfg.FFmpegBinary(),
		Width:          cfg.Encoder.VideoWidth,
		Height:         cfg.Encoder.VideoHeight,
		FPS:            cfg.Encoder.FPS,
		TimeoutSeconds: cfg.Encoder.TimeoutSeconds,
	})

	return workflow.StageSet{
		Transcriber: transcribing.New(cfg, store, art, transcribeClient, logger),
		Analyzer:    analyzing.New(cfg, store, art, analyzeClient, logger),
		Generator:   generating.New(cfg, store, art, searcher, generator, logger),
		Composer:    composing.New(cfg, store, art, encodeClient, logger),
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("transcriber_key_present", strings.TrimSpace(cfg.Transcriber.APIKey) != ""),
		logging.Bool("analyzer_key_present", strings.TrimSpace(cfg.Analyzer.APIKey) != ""),
		logging.Bool("image_search_key_present", strings.TrimSpace(cfg.ImageSearch.APIKey) != ""),
		logging.Bool("image_gen_key_present", strings.TrimSpace(cfg.ImageGen.APIKey) != ""),
	)
	for _, status := range deps.CheckBinaries(deps.Media(cfg)) {
		if status.Available {
			logger.Info("external binary available",
				logging.String(logging.FieldEventType, "dependency_snapshot"),
				logging.String("name", status.Name),
				logging.String("command", status.Command),
			)
			continue
		}
		logger.Warn("external binary missing",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", status.Name),
			logging.String("detail", status.Detail),
		)
	}
}
