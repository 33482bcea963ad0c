package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fraudguard/db"
	fhttp "fraudguard/http"
	"fraudguard/inference"
	"fraudguard/monitoring"
	"fraudguard/presentation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the fraud detection form and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runServe(cmd.Context(), configPath(cmd), port)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Override http.port")
}

func runServe(ctx context.Context, cfgPath string, port int) error {
	d, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer d.close()
	if port > 0 {
		d.cfg.Http.Port = port
	}
	logger := d.logger

	// 1. Model load log
	var loadLog *db.DB
	if d.cfg.Database.Path != "" {
		loadLog, err = db.InitDB(d.cfg.Database.Path)
		if err != nil {
			logger.Warn("model load log disabled", zap.String("path", d.cfg.Database.Path), zap.Error(err))
		} else {
			defer loadLog.Close()
			recordLoad(loadLog, d, logger)
		}
	}

	// 2. Metrics and live feed
	metrics := monitoring.NewMetrics()
	metrics.SetModelAvailable(d.facade.Available())
	hub := monitoring.NewHub(logger.Named("ws"), d.cfg.Http.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()
	d.facade.SetObserver(inference.Observers{metrics, hub})

	status := fhttp.ModelStatus{Kind: d.cfg.Model.Kind, Path: d.cfg.Model.Path, Error: d.loadErr}
	if d.handle != nil {
		info := d.handle.Info()
		status.Info = &info
		hub.SetModelFingerprint(info.SHA256)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Artifact watcher
	if d.cfg.Model.Watch {
		watcher, err := monitoring.WatchArtifact(ctx, d.cfg.Model.Path, logger, func(c monitoring.ArtifactChange) {
			metrics.ArtifactChanged()
			_ = hub.Publish(monitoring.ModelStatus, monitoring.ModelStatusMessage{
				Available: d.facade.Available(),
				Path:      c.Path,
				Message:   fmt.Sprintf("artifact %s on disk; restart to load it", c.Op),
			})
		})
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// 4. HTTP server
	formatter, err := presentation.NewFormatter(d.cfg.Presentation.Locale)
	if err != nil {
		return err
	}
	sessions, err := fhttp.NewSessionStore(d.cfg.Session.CookieName, d.cfg.Session.MaxSessions)
	if err != nil {
		return err
	}
	server := fhttp.NewServer(d.cfg.Http, &fhttp.App{
		Facade:    d.facade,
		Sessions:  sessions,
		Formatter: formatter,
		Model:     status,
		Hub:       hub,
		Metrics:   metrics,
		LoadLog:   loadLog,
		Logger:    logger.Named("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}

func recordLoad(loadLog *db.DB, d *deps, logger *zap.Logger) {
	entry := db.ModelLoad{
		Kind:     d.cfg.Model.Kind,
		Path:     d.cfg.Model.Path,
		Success:  d.loadErr == nil,
		LoadedAt: time.Now().UTC(),
	}
	if d.handle != nil {
		info := d.handle.Info()
		entry.SHA256, entry.Size, entry.LoadedAt = info.SHA256, info.Size, info.LoadedAt
	}
	if d.loadErr != nil {
		entry.Error = d.loadErr.Error()
	}
	if _, err := loadLog.RecordModelLoad(entry); err != nil {
		logger.Warn("failed to record model load", zap.Error(err))
	}
}
