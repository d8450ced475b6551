package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/logging"
	"github.com/petems/voicegate/internal/metrics"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

type globalFlags struct {
	configFile string
	logLevel   string
	serverURL  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "voicegate",
		Short: "Voice passphrase registration and login",
		Long: `voicegate records a spoken passphrase, encodes it as 16 kHz mono 16-bit PCM WAV ` +
			`and submits it to a voice authentication service. Without a subcommand it runs in the system tray.`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(flags)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file (default "+config.Path()+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().StringVar(&flags.serverURL, "server", "", "Override the voice service base URL")

	root.AddCommand(
		newTrayCmd(flags),
		newCaptureCmd(flags, "register"),
		newCaptureCmd(flags, "login"),
		newValidateCmd(),
		newEncodeCmd(),
		newDevicesCmd(flags),
	)
	return root
}

// setup loads the config and builds the logger every command shares.
func setup(flags *globalFlags) (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configFile != "" {
		cfg, err = config.LoadFile(flags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return nil, log, err
	}

	if flags.serverURL != "" {
		cfg.Server.BaseURL = flags.serverURL
		if err := cfg.Validate(); err != nil {
			return nil, logging.New(), err
		}
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	return cfg, logging.NewWithLevel(level), nil
}

// serveMetrics exposes m on addr until ctx is done. An empty addr disables it.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log zerolog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics listener failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
