package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/encode"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/session"
	"github.com/petems/voicegate/internal/voiceauth"
	"github.com/petems/voicegate/internal/wav"
)

type Mode int

const (
	Register Mode = iota
	Login
)

func (m Mode) String() string {
	if m == Login {
		return "login"
	}
	return "register"
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetProcessing()
	SetError()
	SetCountdown(remaining int)
	ShowMessage(msg string)
}

// Authenticator submits a finished container to the voice service.
type Authenticator interface {
	Register(ctx context.Context, container []byte, id voiceauth.Identity) (*voiceauth.Response, error)
	Login(ctx context.Context, container []byte, username string) (*voiceauth.Response, error)
}

// Clipboard receives the passphrase after a registration.
type Clipboard interface {
	WriteAll(text string) error
}

// Result is the end of one register or login attempt.
type Result struct {
	Mode     Mode
	Response *voiceauth.Response
	Err      error
}

type Config struct {
	Microphone    audio.Microphone
	Encoder       session.Encoder // Optional - defaults to encode.Pipeline
	Auth          Authenticator
	Clipboard     Clipboard // Optional
	Config        *config.Config
	Metrics       *metrics.Metrics // Optional
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil

	// Session overrides the options derived from Config.Audio.
	Session *session.Options
	// OnResult is called after every attempt, successful or not.
	OnResult func(Result)
}

type App struct {
	mic      audio.Microphone
	auth     Authenticator
	clip     Clipboard
	cfg      *config.Config
	log      zerolog.Logger
	status   StatusUpdater
	onResult func(Result)
	session  *session.Session

	beginMu sync.Mutex

	mu   sync.Mutex
	mode Mode
	// captureMode is the mode of the capture being encoded and submitted.
	captureMode Mode
}

func New(cfg Config) *App {
	a := &App{
		mic:      cfg.Microphone,
		auth:     cfg.Auth,
		clip:     cfg.Clipboard,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		onResult: cfg.OnResult,
	}

	opts := session.OptionsFromConfig(cfg.Config.Audio)
	if cfg.Session != nil {
		opts = *cfg.Session
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = encode.Pipeline{}
	}
	a.session = session.New(session.Config{
		Microphone: cfg.Microphone,
		Encoder:    enc,
		Sink:       a,
		Observer:   a,
		Metrics:    cfg.Metrics,
		Logger:     cfg.Logger,
		Options:    opts,
	})
	return a
}

func (a *App) statusUpdater() StatusUpdater {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Begin starts a capture whose container will be submitted for mode.
func (a *App) Begin(ctx context.Context, mode Mode) error {
	if err := a.checkIdentity(mode); err != nil {
		a.report(err)
		return err
	}

	a.beginMu.Lock()
	defer a.beginMu.Unlock()

	if st := a.session.State(); st != session.Idle {
		err := &session.StateError{Op: "start", State: st}
		a.report(err)
		return err
	}
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()

	a.log.Info().Stringer("mode", mode).Msg("Starting capture")
	if err := a.session.Start(ctx); err != nil {
		a.report(err)
		return err
	}
	if s := a.statusUpdater(); s != nil {
		s.ShowMessage(fmt.Sprintf("Recording for %s. Speak your passphrase.", mode))
	}
	return nil
}

// Toggle stops an active capture or starts a new one for mode.
func (a *App) Toggle(ctx context.Context, mode Mode) error {
	if a.session.State() == session.Recording {
		return a.StopCapture()
	}
	return a.Begin(ctx, mode)
}

// StopCapture ends the recording early and submits what was captured.
func (a *App) StopCapture() error {
	if err := a.session.Stop(); err != nil {
		a.log.Debug().Err(err).Msg("Stop ignored")
		return err
	}
	return nil
}

func (a *App) checkIdentity(mode Mode) error {
	if mode == Register {
		return a.identity().CheckRegister()
	}
	return voiceauth.CheckLogin(a.cfg.Identity.Username)
}

func (a *App) identity() voiceauth.Identity {
	id := a.cfg.Identity
	return voiceauth.Identity{
		FullName: id.FullName,
		Email:    id.Email,
		Username: id.Username,
		DOB:      id.DOB,
	}
}

// StateChanged maps session states onto the status surface.
func (a *App) StateChanged(s session.State) {
	if s == session.Stopping {
		a.mu.Lock()
		a.captureMode = a.mode
		a.mu.Unlock()
	}

	st := a.statusUpdater()
	if st == nil {
		return
	}
	switch s {
	case session.Idle:
		st.SetIdle()
	case session.Acquiring, session.Stopping:
		st.SetProcessing()
	case session.Recording:
		st.SetRecording()
	case session.Error:
		st.SetError()
	}
}

func (a *App) CountdownChanged(remaining int) {
	if st := a.statusUpdater(); st != nil {
		st.SetCountdown(remaining)
	}
}

// Captured submits the container. It runs on the session's goroutine after
// the session is back to idle.
func (a *App) Captured(container []byte) {
	a.mu.Lock()
	mode := a.captureMode
	a.mu.Unlock()

	if st := a.statusUpdater(); st != nil {
		st.SetProcessing()
	}

	resp, err := a.Submit(context.Background(), mode, container)
	a.finish(Result{Mode: mode, Response: resp, Err: err})
}

// Failed reports a capture that produced no usable container.
func (a *App) Failed(err error) {
	a.mu.Lock()
	mode := a.captureMode
	a.mu.Unlock()
	a.finish(Result{Mode: mode, Err: err})
}

// Submit sends container for mode with the configured identity.
func (a *App) Submit(ctx context.Context, mode Mode, container []byte) (*voiceauth.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.Timeout())
	defer cancel()

	if mode == Register {
		return a.auth.Register(ctx, container, a.identity())
	}
	return a.auth.Login(ctx, container, a.cfg.Identity.Username)
}

// SubmitFile transcodes an existing recording and submits it.
func (a *App) SubmitFile(ctx context.Context, mode Mode, data []byte) (*voiceauth.Response, error) {
	container, err := encode.Transcode(data)
	if err != nil {
		a.finish(Result{Mode: mode, Err: err})
		return nil, err
	}
	resp, err := a.Submit(ctx, mode, container)
	a.finish(Result{Mode: mode, Response: resp, Err: err})
	return resp, err
}

func (a *App) finish(r Result) {
	switch {
	case r.Err != nil:
		a.report(r.Err)
	case !r.Response.Success:
		a.log.Warn().Stringer("mode", r.Mode).Str("message", r.Response.Message).Msg("Rejected")
		if st := a.statusUpdater(); st != nil {
			st.SetError()
			st.ShowMessage(rejectedMessage(r))
		}
	default:
		a.succeeded(r)
	}
	if a.onResult != nil {
		a.onResult(r)
	}
}

func (a *App) succeeded(r Result) {
	msg := successMessage(r)
	if r.Mode == Register && r.Response.Passphrase != "" && a.clip != nil {
		if err := a.clip.WriteAll(r.Response.Passphrase); err != nil {
			a.log.Warn().Err(err).Msg("Failed to copy passphrase")
		} else {
			msg += " (copied to clipboard)"
		}
	}

	a.log.Info().Stringer("mode", r.Mode).Msg("Accepted")
	if st := a.statusUpdater(); st != nil {
		st.SetIdle()
		st.ShowMessage(msg)
	}
}

// successMessage starts from the server's message and adds the passphrase
// and, for logins, the match score when the server sent them.
func successMessage(r Result) string {
	msg := r.Response.Message
	if msg == "" {
		msg = "Registered"
		if r.Mode == Login {
			msg = "Logged in"
		}
	}
	if p := r.Response.Passphrase; p != "" {
		if r.Mode == Register {
			msg = fmt.Sprintf("%s. Your passphrase is %q", msg, p)
		} else {
			msg = fmt.Sprintf("%s. Recognized passphrase %q", msg, p)
		}
	}
	if r.Mode == Login && r.Response.Match > 0 {
		msg = fmt.Sprintf("%s (match %.1f%%)", msg, r.Response.Match)
	}
	return msg
}

func rejectedMessage(r Result) string {
	msg := r.Response.Message
	if msg == "" {
		msg = fmt.Sprintf("%s rejected", r.Mode)
	}
	if r.Mode == Login && r.Response.Match > 0 {
		msg = fmt.Sprintf("%s (match %.1f%%)", msg, r.Response.Match)
	}
	return msg
}

// report logs err and shows it as a status message.
func (a *App) report(err error) {
	a.log.Error().Err(err).Msg("Voice authentication failed")
	if st := a.statusUpdater(); st != nil {
		st.SetError()
		st.ShowMessage(Describe(err))
	}
}

// Describe turns an error into a message for the user.
func Describe(err error) string {
	var (
		fieldErr     *voiceauth.FieldError
		transportErr *voiceauth.TransportError
		formatErr    *wav.FormatError
		decodeErr    *encode.DecodeError
	)
	switch {
	case errors.Is(err, audio.ErrPermission):
		return "Microphone access was denied. Allow access in system settings and try again."
	case errors.Is(err, audio.ErrNoDevice):
		return "No usable microphone was found."
	case errors.Is(err, session.ErrState):
		return "A recording is already in progress."
	case errors.Is(err, context.DeadlineExceeded):
		return "The voice service did not answer in time."
	case errors.As(err, &fieldErr):
		return fmt.Sprintf("Set %q in the identity section of %s.", fieldErr.Field, config.Path())
	case errors.As(err, &transportErr):
		return transportErr.Message
	case errors.As(err, &formatErr):
		return fmt.Sprintf("The recording is not valid 16 kHz mono PCM WAV (%s).", formatErr.Field)
	case errors.As(err, &decodeErr):
		if errors.Is(err, encode.ErrEmpty) {
			return "Nothing was recorded."
		}
		return "The recording could not be processed."
	}
	return err.Error()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.session.Close()
}

// Tray actions

func (a *App) SetDevice(id string) error {
	if a.session.State() != session.Idle {
		return fmt.Errorf("cannot change device while recording")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Audio.DeviceID = id
	a.mic.SelectDevice(id)
	return a.cfg.Save()
}

func (a *App) IsRecording() bool {
	return a.session.State() == session.Recording
}

func (a *App) State() session.State {
	return a.session.State()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.mic.ListDevices()
}
