package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petems/voicegate/internal/app"
	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/voiceauth"
)

// newCaptureCmd builds the register and login commands, which differ only in
// the mode they submit with.
func newCaptureCmd(flags *globalFlags, name string) *cobra.Command {
	mode := app.Register
	short := "Record a passphrase and register it"
	if name == "login" {
		mode = app.Login
		short = "Record a passphrase and log in with it"
	}

	var (
		audioFile string
		id        config.IdentityConfig
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long: short + `. Recording stops after the configured countdown or on Ctrl-C. ` +
			`With --audio an existing wav, ogg/opus or mp3 file is transcoded and submitted instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context(), flags, mode, audioFile, id, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&audioFile, "audio", "a", "", "Submit this recording instead of using the microphone")
	cmd.Flags().StringVarP(&id.Username, "username", "u", "", "Override identity.username")
	if mode == app.Register {
		cmd.Flags().StringVar(&id.FullName, "fullname", "", "Override identity.fullname")
		cmd.Flags().StringVar(&id.Email, "email", "", "Override identity.email")
		cmd.Flags().StringVar(&id.DOB, "dob", "", "Override identity.dob (YYYY-MM-DD)")
	}
	return cmd
}

func runCapture(ctx context.Context, flags *globalFlags, mode app.Mode, audioFile string, id config.IdentityConfig, out io.Writer) error {
	cfg, log, err := setup(flags)
	if err != nil {
		return err
	}
	overrideIdentity(&cfg.Identity, id)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	serveMetrics(ctx, cfg.MetricsAddr, m, log)

	client := voiceauth.New(voiceauth.Config{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Server.Timeout(),
		Metrics: m,
		Logger:  log,
	})
	status := &consoleStatus{out: out}
	results := make(chan app.Result, 1)

	appCfg := app.Config{
		Auth:          client,
		Clipboard:     app.SystemClipboard{},
		Config:        cfg,
		Metrics:       m,
		Logger:        log,
		StatusUpdater: status,
		OnResult:      func(r app.Result) { results <- r },
	}

	if audioFile != "" {
		data, err := os.ReadFile(audioFile)
		if err != nil {
			return err
		}
		appCfg.Microphone = noMicrophone{}
		if _, err := app.New(appCfg).SubmitFile(ctx, mode, data); err != nil {
			return err
		}
		return resultErr(<-results)
	}

	mic, err := audio.New(cfg.Audio)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
		return err
	}
	defer mic.Close()
	appCfg.Microphone = mic

	application := app.New(appCfg)
	defer application.Shutdown(ctx)

	if err := application.Begin(ctx, mode); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	stopping := false
	for {
		select {
		case r := <-results:
			return resultErr(r)
		case <-sigChan:
			if stopping {
				return fmt.Errorf("interrupted")
			}
			stopping = true
			fmt.Fprintln(out, "Stopping early...")
			if err := application.StopCapture(); err != nil {
				return err
			}
		}
	}
}

// overrideIdentity copies the non-empty fields of flags over dst.
func overrideIdentity(dst *config.IdentityConfig, flags config.IdentityConfig) {
	if flags.FullName != "" {
		dst.FullName = flags.FullName
	}
	if flags.Email != "" {
		dst.Email = flags.Email
	}
	if flags.Username != "" {
		dst.Username = flags.Username
	}
	if flags.DOB != "" {
		dst.DOB = flags.DOB
	}
}

func resultErr(r app.Result) error {
	if r.Err != nil {
		return r.Err
	}
	if !r.Response.Success {
		return fmt.Errorf("%s rejected: %s", r.Mode, r.Response.Message)
	}
	return nil
}

// consoleStatus prints status messages and the countdown to the terminal.
type consoleStatus struct {
	out io.Writer
}

func (c *consoleStatus) SetIdle()       {}
func (c *consoleStatus) SetRecording()  {}
func (c *consoleStatus) SetProcessing() {}
func (c *consoleStatus) SetError()      {}

func (c *consoleStatus) SetCountdown(remaining int) {
	fmt.Fprintf(c.out, "\r%2ds remaining ", remaining)
}

func (c *consoleStatus) ShowMessage(msg string) {
	fmt.Fprintf(c.out, "\n%s\n", msg)
}

// noMicrophone backs file submissions, which never record.
type noMicrophone struct{}

func (noMicrophone) Acquire(ctx context.Context, c audio.Constraints) (audio.Track, error) {
	return nil, fmt.Errorf("%w: recording from a file", audio.ErrNoDevice)
}

func (noMicrophone) ListDevices() ([]audio.AudioDevice, error) { return nil, nil }
func (noMicrophone) SelectDevice(id string)                    {}
func (noMicrophone) Close() error                              { return nil }
