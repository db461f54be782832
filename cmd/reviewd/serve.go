package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-review/internal/api"
	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/config"
	"github.com/heimdex/heimdex-review/internal/db"
	"github.com/heimdex/heimdex-review/internal/export"
	"github.com/heimdex/heimdex-review/internal/index"
	"github.com/heimdex/heimdex-review/internal/logging"
	"github.com/heimdex/heimdex-review/internal/media"
	"github.com/heimdex/heimdex-review/internal/notify"
	"github.com/heimdex/heimdex-review/internal/playback"
	"github.com/heimdex/heimdex-review/internal/review"
	"github.com/heimdex/heimdex-review/internal/ui"
)

const trackInterval = 100 * time.Millisecond

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cfg, headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func serve(cfg *config.EnvConfig, headless bool) error {
	startTime := time.Now()

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex review agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()), "config", logging.SanitizePath(cfg.SourcePath()))

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another review agent is already running for this data directory")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                HEIMDEX REVIEW v%-26s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	var prober media.Prober
	if ff, err := media.NewFFprobe(cfg.FFprobePath(), logging.WithComponent(logger, "media")); err != nil {
		logger.Warn("ffprobe unavailable, using configured frame rate", "error", err, "frame_rate", cfg.FrameRate())
	} else {
		prober = media.NewCachedProber(ff, logging.WithComponent(logger, "media"))
	}

	exporter := export.NewFileExporter(cfg.ExportDir(), logging.WithComponent(logger, "export"))
	if err := exporter.EnsureDir(); err != nil {
		logger.Warn("export dir not usable, exports will fail", "dir", cfg.ExportDir(), "error", err)
	}

	svc := review.NewService(review.Options{
		Repository: repo,
		Projects:   catalog.NewConfigProjectContext(repo, logger),
		Exporter:   exporter,
		Prober:     prober,
		FrameRate:  cfg.FrameRate(),
		Logger:     logger,
	})

	engine := playback.NewClockEngine(0)
	controller := playback.NewController(engine, logging.WithComponent(logger, "playback"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The headless playhead stops at the end of the loaded recording.
	svc.OnReload(func(snap *index.Snapshot) {
		if snap.GameID == "" {
			engine.SetDuration(0)
			return
		}
		info, err := svc.MediaInfo(ctx, snap.GameID)
		if err != nil {
			logger.Debug("no media info for loaded game", "game_id", snap.GameID, "error", err)
			engine.SetDuration(0)
			return
		}
		engine.SetDuration(info.Duration)
	})

	hub := api.NewEventHub(controller, logging.WithComponent(logger, "events"))
	svc.OnReload(hub.PublishReload)
	go hub.Run(ctx)
	go controller.Track(ctx, trackInterval)

	if snap, err := svc.Reload(ctx); err != nil {
		logger.Warn("initial load failed", "error", err)
	} else {
		logger.Info("review state loaded",
			"project_id", snap.ProjectID,
			"game_id", snap.GameID,
			"moments", snap.MomentCount(),
			"annotations", len(snap.Annotations()),
		)
	}

	debouncer := notify.NewDebouncer(cfg.NotifyDebounce(), func(ctx context.Context) error {
		_, err := svc.Reload(ctx)
		return err
	}, logging.WithComponent(logger, "notify"))

	if cfg.RedisURL() != "" {
		src, err := notify.NewRedisSource(cfg.RedisURL(), cfg.RedisChannel(), debouncer, logging.WithComponent(logger, "notify"))
		if err != nil {
			logger.Warn("redis tag events disabled", "error", err)
		} else {
			defer src.Close()
			go func() {
				if err := src.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("redis tag event listener stopped", "error", err)
				}
			}()
		}
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Repository: repo,
		Review:     svc,
		Playback:   controller,
		Media:      playback.NewFileServer(logger),
		Notifier:   debouncer,
		Events:     hub,
		Logger:     logger,
		StartTime:  startTime,
		DeviceID:   deviceID,
	})

	logger.Info("review agent ready", "addr", apiServer.Addr(), "export_dir", logging.SanitizePath(cfg.ExportDir()))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Review:   svc,
			Playback: controller,
			Logger:   logging.WithComponent(logger, "tray"),
			OnQuit:   quit,
		})
		svc.OnReload(tray.ShowSnapshot)
		go tray.Watch(ctx)
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()
	debouncer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, "device_id", 16)
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, "auth_token", 32)
}

// ensureSecret returns the stored value of key, generating and storing a
// random hex value of n bytes on first use.
func ensureSecret(repo catalog.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
