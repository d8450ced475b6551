package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petems/voicegate/internal/app"
	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/tray"
	"github.com/petems/voicegate/internal/voiceauth"
)

func newTrayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run in the system tray (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(flags)
		},
	}
}

func runTray(flags *globalFlags) error {
	cfg, log, err := setup(flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	serveMetrics(ctx, cfg.MetricsAddr, m, log)

	mic, err := audio.New(cfg.Audio)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
		return err
	}
	defer mic.Close()

	client := voiceauth.New(voiceauth.Config{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Server.Timeout(),
		Metrics: m,
		Logger:  log,
	})

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit, log)

	application := app.New(app.Config{
		Microphone:    mic,
		Auth:          client,
		Clipboard:     app.SystemClipboard{},
		Config:        cfg,
		Metrics:       m,
		Logger:        log,
		StatusUpdater: trayUI,
	})
	trayUI.SetApp(application)

	log.Info().Str("server", cfg.Server.BaseURL).Msg("voicegate starting...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		mic.Close()
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx)
}
