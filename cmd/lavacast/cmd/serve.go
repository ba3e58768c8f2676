package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lavacast/lavacast/internal/backup"
	"github.com/lavacast/lavacast/internal/events"
	"github.com/lavacast/lavacast/internal/ffmpeg"
	internalhttp "github.com/lavacast/lavacast/internal/http"
	"github.com/lavacast/lavacast/internal/http/handlers"
	"github.com/lavacast/lavacast/internal/logs"
	"github.com/lavacast/lavacast/internal/metrics"
	"github.com/lavacast/lavacast/internal/observability"
	"github.com/lavacast/lavacast/internal/registry"
	"github.com/lavacast/lavacast/internal/upload"
	"github.com/lavacast/lavacast/internal/version"
)

// Startup grace periods. Auto-start waits long enough for the HTTP server
// to come up so clients see the channels appear; thumbnail regeneration is
// background work that should not compete with startup.
const (
	autoStartDelay  = 2500 * time.Millisecond
	thumbRegenDelay = 1500 * time.Millisecond
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lavacast server",
	Long: `Start the lavacast HTTP server and streaming engine.

The server provides:
- REST API for channel management, uploads, and global settings
- Server-sent events for transcode progress and stream state
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().String("media-dir", "", "media directory (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	// CLI overrides, only when explicitly set.
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("media-dir") {
		cfg.Storage.MediaDir, _ = cmd.Flags().GetString("media-dir")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Mirror all log records into the queryable log ring, then make the
	// teed logger the process default.
	logsService := logs.NewService(cfg.Storage.LogFile, cfg.Storage.MaxLogLines)
	logger := slog.New(logs.NewTeeHandler(slog.Default().Handler(), logsService))
	observability.SetDefault(logger)

	info := version.GetInfo()
	logger.Info("lavacast starting",
		slog.String("version", info.Version),
		slog.String("commit", info.Commit),
		slog.String("go", info.GoVersion),
		slog.String("platform", info.Platform),
	)

	bins, err := ffmpeg.FindBinaries(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	logger.Info("ffmpeg located",
		slog.String("ffmpeg", bins.FFmpeg),
		slog.String("ffprobe", bins.FFprobe),
	)

	mediaDir, err := filepath.Abs(cfg.Storage.MediaDir)
	if err != nil {
		return fmt.Errorf("resolving media directory: %w", err)
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}

	runner := ffmpeg.NewRunner(bins.FFmpeg, logger)
	prober := ffmpeg.NewProber(bins.FFprobe, logger)
	bus := events.NewBus(64, logger)
	store := registry.NewStore(cfg.Storage.StateFile, logger)

	reg := registry.New(
		cfg.Streaming,
		registry.TranscodeDefaults(cfg.DefaultProfile(), cfg.Transcode.GlobalOn),
		mediaDir,
		runner, prober, bus, store, logger,
	)

	pipeline, err := upload.NewService(
		filepath.Join(mediaDir, "originals"),
		filepath.Join(mediaDir, "transcoded"),
		filepath.Join(mediaDir, "thumbnails"),
		runner, prober, reg, logger,
	)
	if err != nil {
		return fmt.Errorf("initializing upload pipeline: %w", err)
	}

	// Setup graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	collector := metrics.NewCollector(metrics.DefaultInterval, bus, logger)
	go collector.Run(ctx)

	if cfg.Backup.Enabled {
		scheduler, err := backup.New(store, cfg.Backup.Directory,
			cfg.Backup.Schedule, cfg.Backup.Retention, logger)
		if err != nil {
			return fmt.Errorf("initializing backup scheduler: %w", err)
		}
		go scheduler.Run(ctx)
	}

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	statusHandler := handlers.NewStatusHandler(reg, collector)
	statusHandler.Register(server.API())

	channelsHandler := handlers.NewChannelsHandler(reg, pipeline, cfg.MaxUploadBytes(), logger)
	channelsHandler.Register(server.API())
	channelsHandler.RegisterRaw(server.Router())

	settingsHandler := handlers.NewSettingsHandler(reg)
	settingsHandler.Register(server.API())

	eventsHandler := handlers.NewEventsHandler(bus, logger)
	eventsHandler.RegisterRaw(server.Router())

	logsHandler := handlers.NewLogsHandler(logsService)
	logsHandler.Register(server.API())
	logsHandler.RegisterRaw(server.Router())

	systemHandler := handlers.NewSystemHandler(reg, cancel, logger)
	systemHandler.Register(server.API())

	// Deferred startup work: bring persisted channels back on air and fill
	// in any thumbnails lost since the last run.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(thumbRegenDelay):
			pipeline.RegenerateMissing(ctx)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(autoStartDelay):
			if reg.AutoStart() && len(reg.Status()) > 0 {
				observability.System(logger, "auto-starting restored channels")
				reg.StartAll(ctx)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	reg.StopAll()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	observability.System(logger, "lavacast stopped")
	return nil
}
