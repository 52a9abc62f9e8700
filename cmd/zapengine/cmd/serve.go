package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/zapengine/internal/config"
	"github.com/jmylchreest/zapengine/internal/database"
	"github.com/jmylchreest/zapengine/internal/database/migrations"
	"github.com/jmylchreest/zapengine/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/zapengine/internal/http"
	"github.com/jmylchreest/zapengine/internal/http/handlers"
	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/nostr"
	"github.com/jmylchreest/zapengine/internal/observability"
	"github.com/jmylchreest/zapengine/internal/overseer"
	"github.com/jmylchreest/zapengine/internal/overseer/store"
	"github.com/jmylchreest/zapengine/internal/overseer/viewers"
	"github.com/jmylchreest/zapengine/internal/scheduler"
	logsvc "github.com/jmylchreest/zapengine/internal/service/logs"
	"github.com/jmylchreest/zapengine/internal/startup"
	"github.com/jmylchreest/zapengine/internal/storage"
	"github.com/jmylchreest/zapengine/internal/urlutil"
	"github.com/jmylchreest/zapengine/internal/variant"
	"github.com/jmylchreest/zapengine/internal/version"
	"github.com/jmylchreest/zapengine/pkg/format"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the zapengine ingest/transcode/packaging service",
	Long: `Start zapengine's ingest listeners (RTMP/SRT), the pipeline runner
that transcodes or copies each configured variant into HLS fMP4, and the
ambient HTTP status surface (health check, OpenAPI docs).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	logSvc := logsvc.New()
	logger = slog.New(logSvc.WrapHandler(logger.Handler()))
	slog.SetDefault(logger)

	if removed, err := startup.CleanupOrphanedTempDirs(logger, cfg.Storage.TempDir, 24*time.Hour); err != nil {
		logger.Warn("failed to clean orphaned temp directories", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("cleaned orphaned temp directories on startup", slog.Int("removed_count", removed))
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	sandbox, err := storage.NewSandbox(cfg.Storage.OutputDir)
	if err != nil {
		return fmt.Errorf("initializing storage sandbox: %w", err)
	}

	users := store.NewUserStore(db.DB)
	endpoints := store.NewEndpointStore(db.DB)
	streams := store.NewStreamStore(db.DB)

	var viewerTracker *viewers.Tracker
	if cfg.Viewers.RedisAddr != "" {
		viewerTracker = viewers.New(cfg.Viewers.RedisAddr, cfg.Viewers.RedisPassword, cfg.Viewers.RedisDB, cfg.Viewers.ViewerTTL)
	}

	var publisher *nostr.Publisher
	if cfg.Overseer.Nsec != "" {
		privKeyHex := cfg.Overseer.Nsec
		if _, decoded, derr := nip19.Decode(cfg.Overseer.Nsec); derr == nil {
			if hex, ok := decoded.(string); ok {
				privKeyHex = hex
			}
		}
		publisher = nostr.NewPublisher(privKeyHex, cfg.Overseer.Relays, logger)
	}

	engine := variant.New(logger, cfg.Segmenting.SegmentLengthSeconds)

	ov := overseer.New(overseer.Config{
		NodeName:                cfg.Ingress.NodeName,
		OutputDir:               cfg.Storage.OutputDir,
		PublicURL:               urlutil.NormalizeBaseURL(cfg.Storage.PublicURL),
		MinEventInterval:        time.Duration(cfg.Segmenting.MinEventUpdateIntervalSeconds) * time.Second,
		LowBalanceThresholdMsat: models.Money(cfg.Overseer.LowBalanceNotification.ThresholdMsat),
		AdminPubkey:             cfg.Overseer.LowBalanceNotification.AdminPubkey,
	}, users, endpoints, streams, viewerTracker, publisher, engine, logger)

	ffmpegPath, err := resolveFFmpegPath(cfg.FFmpeg)
	if err != nil {
		return fmt.Errorf("resolving ffmpeg binary: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Segmenting.BlocklistPollSeconds > 0 {
		go ov.RunBlocklistPoller(ctx, time.Duration(cfg.Segmenting.BlocklistPollSeconds)*time.Second)
	}

	const cleanupCron = "0 0 * * * *"
	sched := scheduler.NewScheduler().WithLogger(logger)
	logger.Info("registering scheduled maintenance task",
		slog.String("task", "orphaned-temp-dir-cleanup"),
		slog.String("schedule", format.CronDescription(cleanupCron)),
	)
	if err := sched.Register(scheduler.Task{
		Name: "orphaned-temp-dir-cleanup",
		Cron: cleanupCron,
		Fn: func() {
			if removed, err := startup.CleanupOrphanedTempDirs(logger, cfg.Storage.TempDir, 24*time.Hour); err != nil {
				logger.Warn("scheduled temp dir cleanup failed", slog.String("error", err.Error()))
			} else if removed > 0 {
				logger.Info("scheduled cleanup removed orphaned temp directories", slog.Int("removed_count", removed))
			}
		},
	}); err != nil {
		logger.Warn("failed to register scheduled cleanup task", slog.String("error", err.Error()))
	}
	sched.Start()
	defer sched.Stop()

	deps := &sessionDeps{
		overseer:   ov,
		sandbox:    sandbox,
		outputDir:  cfg.Storage.OutputDir,
		ffmpegPath: ffmpegPath,
		segmentSec: cfg.Segmenting.SegmentLengthSeconds,
		reorder:    16,
		thumbSec:   cfg.Segmenting.ThumbnailIntervalSeconds,
		logger:     logger,
	}

	dispatcher := ingest.NewDefaultDispatcher()
	var listeners []ingest.Listener
	for _, uri := range cfg.Ingress.Listen {
		l, err := dispatcher.Build(ingest.Config{ListenURI: uri}, deps.handleSession, logger)
		if err != nil {
			return fmt.Errorf("building listener %q: %w", uri, err)
		}
		listeners = append(listeners, l)
		go func(uri string, l ingest.Listener) {
			if err := l.Listen(ctx); err != nil && ctx.Err() == nil {
				logger.Error("listener exited", slog.String("listen_uri", uri), slog.String("error", err.Error()))
			}
		}(uri, l)
	}

	serverConfig := internalhttp.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	docsHandler := handlers.NewDocsHandler("zapengine API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db.DB).WithRegistry(ov.Registry())
	healthHandler.Register(server.API())

	circuitBreakerHandler := handlers.NewCircuitBreakerHandler(nil)
	circuitBreakerHandler.Register(server.API())

	server.Router().Get("/logs/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(logSvc.GetStats())
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	logger.Info("starting zapengine",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
		slog.Any("ingress_listen", cfg.Ingress.Listen),
	)

	return server.ListenAndServe(ctx)
}

// resolveFFmpegPath returns the configured ffmpeg binary path, or
// auto-detects one from PATH via internal/ffmpeg.BinaryDetector.
func resolveFFmpegPath(cfg config.FFmpegConfig) (string, error) {
	if cfg.BinaryPath != "" {
		return cfg.BinaryPath, nil
	}
	detector := ffmpeg.NewBinaryDetector()
	info, err := detector.Detect(context.Background())
	if err != nil {
		return "", err
	}
	return info.FFmpegPath, nil
}
