// Package session drives one microphone capture from acquisition to an
// encoded, validated WAV container.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/wav"
)

type State int

const (
	Idle State = iota
	Acquiring
	Recording
	Stopping
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateNames lists every state, in order, by name.
func StateNames() []string {
	return []string{Idle.String(), Acquiring.String(), Recording.String(), Stopping.String(), Error.String()}
}

// ErrState reports an operation that is not valid in the current state.
var ErrState = errors.New("invalid session state")

type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrState
}

// Encoder turns a finished recording into a canonical container.
type Encoder interface {
	Encode(rec audio.Recording) ([]byte, error)
}

// Sink receives the single outcome of every capture that reached Recording.
type Sink interface {
	Captured(container []byte)
	Failed(err error)
}

// Observer is told about state and countdown changes. It is called with the
// session lock held and must not call back into the session.
type Observer interface {
	StateChanged(s State)
	CountdownChanged(remaining int)
}

// Ticker is the part of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

type Options struct {
	Path        string // config.PathRecorder or config.PathFrames
	Constraints audio.Constraints
	Countdown   int
	Tick        time.Duration
	Recorder    audio.RecorderOptions

	// NewTicker replaces the wall-clock ticker, mainly for tests.
	NewTicker func(d time.Duration) Ticker
}

func (o *Options) setDefaults() {
	if o.Path == "" {
		o.Path = config.PathRecorder
	}
	if o.Constraints == (audio.Constraints{}) {
		o.Constraints = audio.DefaultConstraints()
	}
	if o.Countdown <= 0 {
		o.Countdown = 10
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Recorder.Queue <= 0 {
		o.Recorder.Queue = 64
	}
	if o.Recorder.FlushTimeout <= 0 {
		o.Recorder.FlushTimeout = 500 * time.Millisecond
	}
	if o.NewTicker == nil {
		o.NewTicker = newTimeTicker
	}
}

// OptionsFromConfig maps the audio section of the user config.
func OptionsFromConfig(a config.AudioConfig) Options {
	return Options{
		Path:        a.CapturePath,
		Constraints: audio.DefaultConstraints(),
		Countdown:   a.CountdownSeconds,
		Recorder:    audio.RecorderOptions{Timeslice: a.Fragment()},
	}
}

type Config struct {
	Microphone audio.Microphone
	Encoder    Encoder
	Sink       Sink
	Observer   Observer         // Optional
	Metrics    *metrics.Metrics // Optional
	Logger     zerolog.Logger
	Options    Options
}

// Session is the capture state machine. All transitions happen under mu, so
// a user action, a tick and a recorder completion never interleave.
type Session struct {
	mic     audio.Microphone
	enc     Encoder
	sink    Sink
	obs     Observer
	metrics *metrics.Metrics
	log     zerolog.Logger
	opts    Options

	mu    sync.Mutex
	state State
	// gen changes on every cleanup; events from an earlier capture compare
	// unequal and are ignored.
	gen       uint64
	id        string
	started   time.Time
	format    audio.Format
	track     audio.Track
	recorder  *audio.Recorder
	producer  *audio.FrameProducer
	fragments [][]byte
	frames    audio.Buffer
	countdown int
	ticker    Ticker
	tickDone  chan struct{}
}

func New(cfg Config) *Session {
	cfg.Options.setDefaults()
	s := &Session{
		mic:     cfg.Microphone,
		enc:     cfg.Encoder,
		sink:    cfg.Sink,
		obs:     cfg.Observer,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		opts:    cfg.Options,
	}
	s.countdown = s.opts.Countdown
	if s.metrics != nil {
		s.metrics.SetState(Idle.String(), StateNames())
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Countdown returns the seconds left before the capture stops on its own.
func (s *Session) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// Start acquires the microphone and begins recording. Acquisition runs
// without the lock held because it may wait on a permission prompt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "start", State: st}
	}
	gen := s.gen
	s.id = uuid.NewString()
	s.setStateLocked(Acquiring)
	log := s.log.With().Str("capture_id", s.id).Logger()
	s.mu.Unlock()

	log.Info().Str("path", s.opts.Path).Msg("Acquiring microphone")
	track, err := s.mic.Acquire(ctx, s.opts.Constraints)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		if track != nil {
			_ = track.Stop()
		}
		log.Info().Msg("Capture torn down during acquisition")
		return &StateError{Op: "start", State: s.state}
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire microphone")
		s.setStateLocked(Error)
		s.cleanupLocked()
		return err
	}

	s.track = track
	s.format = track.Format()
	s.fragments = nil
	s.frames = audio.Buffer{SampleRate: s.format.SampleRate}

	switch s.opts.Path {
	case config.PathFrames:
		p := audio.NewFrameProducer(s.opts.Recorder.Queue)
		if err := track.Start(p.Process); err != nil {
			p.Close()
			return s.startFailedLocked(log, err)
		}
		s.producer = p
		go s.collectFrames(gen, p)
	default:
		rec := audio.NewRecorder(track, s.opts.Recorder)
		if err := rec.Start(); err != nil {
			return s.startFailedLocked(log, err)
		}
		s.recorder = rec
		go s.collectFragments(gen, rec)
	}

	s.started = time.Now()
	s.countdown = s.opts.Countdown
	s.ticker = s.opts.NewTicker(s.opts.Tick)
	s.tickDone = make(chan struct{})
	go s.runCountdown(gen, s.ticker, s.tickDone)

	s.setStateLocked(Recording)
	s.notifyCountdownLocked()

	log.Info().
		Int("sample_rate", s.format.SampleRate).
		Int("channels", s.format.Channels).
		Msg("Recording")
	return nil
}

func (s *Session) startFailedLocked(log zerolog.Logger, err error) error {
	log.Error().Err(err).Msg("Failed to start capture")
	s.setStateLocked(Error)
	s.cleanupLocked()
	return fmt.Errorf("start capture: %w", err)
}

// Stop ends the recording early. The flush, encode and Sink delivery happen
// asynchronously.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return &StateError{Op: "stop", State: s.state}
	}
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	s.setStateLocked(Stopping)
	s.cancelTickerLocked()

	if s.recorder != nil {
		s.recorder.Stop()
	}
	if s.producer != nil {
		audio.Drain(s.producer, s.track, s.opts.Recorder.FlushTimeout)
	}
}

// Cleanup tears the capture down from any state. Calls after the first
// are no-ops. Nothing is delivered to the Sink for a capture ended this way.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

// Close releases the capture on shutdown.
func (s *Session) Close() error {
	s.Cleanup()
	return nil
}

func (s *Session) cleanupLocked() {
	if s.state == Idle && s.track == nil {
		return
	}

	s.cancelTickerLocked()
	if s.recorder != nil {
		s.recorder.Stop()
	}
	if s.track != nil {
		if err := s.track.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to release microphone track")
		}
		s.track = nil
	}
	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}
	if s.producer != nil {
		s.producer.Close()
		s.producer = nil
	}

	s.fragments = nil
	s.frames = audio.Buffer{}
	s.gen++
	s.countdown = s.opts.Countdown
	s.setStateLocked(Idle)
	s.notifyCountdownLocked()
}

func (s *Session) cancelTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickDone)
	s.ticker = nil
	s.tickDone = nil
}

func (s *Session) runCountdown(gen uint64, t Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-t.C():
			if !s.tick(gen) {
				return
			}
		}
	}
}

func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != Recording {
		return false
	}
	s.countdown--
	s.notifyCountdownLocked()
	if s.countdown > 0 {
		return true
	}
	s.log.Info().Str("capture_id", s.id).Msg("Countdown expired")
	s.stopLocked()
	return false
}

func (s *Session) collectFragments(gen uint64, rec *audio.Recorder) {
	for frag := range rec.Fragments() {
		s.mu.Lock()
		if gen == s.gen {
			s.fragments = append(s.fragments, frag)
		}
		s.mu.Unlock()
	}
	s.finish(gen, rec.Dropped())
}

func (s *Session) collectFrames(gen uint64, p *audio.FrameProducer) {
	for f := range p.Frames() {
		s.mu.Lock()
		if gen == s.gen {
			s.frames.AppendFrame(f)
		}
		s.mu.Unlock()
		p.Release(f)
	}
	s.finish(gen, p.Dropped())
}

// finish runs once the capture stream has ended. Encoding happens outside
// the lock; a cleanup in the meantime discards the result.
func (s *Session) finish(gen uint64, dropped uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	log := s.log.With().Str("capture_id", s.id).Logger()
	if s.state == Recording {
		// The device ended the stream before any stop was requested.
		log.Warn().Msg("Input ended while recording")
		s.stopLocked()
	}

	rec := audio.Recording{
		ID:      s.id,
		Format:  s.format,
		Started: s.started,
		Stopped: time.Now(),
	}
	if s.opts.Path == config.PathFrames {
		buf := s.frames
		rec.Buffer = &buf
	} else {
		rec.Container = bytes.Join(s.fragments, nil)
	}
	s.mu.Unlock()

	if dropped > 0 {
		log.Warn().Uint64("dropped", dropped).Msg("Frames dropped during capture")
	}

	container, err := s.enc.Encode(rec)
	if err == nil {
		err = wav.Validate(container)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Info().Msg("Capture torn down during encoding")
		return
	}
	if err != nil {
		s.setStateLocked(Error)
	}
	s.cleanupLocked()
	s.mu.Unlock()

	s.record(rec, container, dropped, err)
	if err != nil {
		log.Error().Err(err).Msg("Capture failed")
		s.sink.Failed(err)
		return
	}
	log.Info().
		Int("bytes", len(container)).
		Dur("duration", rec.Stopped.Sub(rec.Started)).
		Msg("Captured")
	s.sink.Captured(container)
}

func (s *Session) record(rec audio.Recording, container []byte, dropped uint64, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.DroppedFrames.Add(float64(dropped))
	if err != nil {
		s.metrics.Captures.WithLabelValues(metrics.OutcomeFailed).Inc()
		var fe *wav.FormatError
		if errors.As(err, &fe) {
			s.metrics.ValidationFailures.WithLabelValues(string(fe.Field)).Inc()
		}
		return
	}
	s.metrics.Captures.WithLabelValues(metrics.OutcomeCaptured).Inc()
	s.metrics.CaptureDuration.Observe(rec.Stopped.Sub(rec.Started).Seconds())
	s.metrics.ContainerBytes.Observe(float64(len(container)))
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.metrics != nil {
		s.metrics.SetState(st.String(), StateNames())
	}
	if s.obs != nil {
		s.obs.StateChanged(st)
	}
}

func (s *Session) notifyCountdownLocked() {
	if s.obs != nil {
		s.obs.CountdownChanged(s.countdown)
	}
}
