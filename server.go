package main

import (
	"context"
	"log/slog"
	"os/signal"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/notify"
	"github.com/oszuidwest/zwfm-videoencoder/internal/observability"
	"github.com/oszuidwest/zwfm-videoencoder/internal/server"
	"github.com/oszuidwest/zwfm-videoencoder/internal/supervisor"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// encoderShutdownTimeout bounds the wait for the encoder process on exit. It
// covers the configured grace period plus the wait after the kill.
func encoderShutdownTimeout(cfg config.SupervisorConfig) time.Duration {
	return cfg.StopTimeout + types.KillTimeout
}

// runServer wires the supervisor, notifications and web server together and
// blocks until a shutdown signal arrives or the server fails.
func runServer(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, util.ShutdownSignals()...)
	defer stop()

	notifier := notify.NewExitNotifier(cfg.Notifications)

	sup := supervisor.New(supervisor.Options{
		Preset:      cfg.Preset(),
		LogCapacity: cfg.Supervisor.LogCapacity,
		StopTimeout: cfg.Supervisor.StopTimeout,
		OnExit:      notifier.HandleExit,
	})

	versions := NewVersionChecker(cfg.UpdateCheck.Repo)
	go versions.Run(ctx)

	srv := server.New(server.Options{
		Web:     cfg.Web,
		Encoder: sup,
		Tests: map[string]func() error{
			"webhook": notifier.TestWebhook,
			"email":   notifier.TestEmail,
			"log":     notifier.TestLog,
		},
		EventLogPath: cfg.Notifications.LogPath,
		Version:      versions.GetInfo,
		AppVersion:   Version,
		Assets: server.Assets{
			IndexHTML: indexHTML,
			StyleCSS:  styleCSS,
			AppJS:     appJS,
		},
		Logger: observability.WithComponent(slog.Default(), "http"),
	})

	err := srv.ListenAndServe(ctx)
	if err != nil {
		slog.Error("web server failed", "error", err)
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), encoderShutdownTimeout(cfg.Supervisor))
	defer cancel()
	if serr := sup.Shutdown(shutdownCtx); serr != nil {
		slog.Error("error stopping encoder", "error", serr)
	}
	notifier.Wait()

	slog.Info("shutdown complete")
	return err
}
