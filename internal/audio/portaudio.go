package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/voicegate/internal/config"
	"github.com/petems/voicegate/internal/permissions"
)

type portAudioMicrophone struct {
	framesPerBuffer int

	mu       sync.Mutex
	deviceID string
}

// New creates a new PortAudio-based microphone
func New(cfg config.AudioConfig) (Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 128
	}
	return &portAudioMicrophone{deviceID: cfg.DeviceID, framesPerBuffer: frames}, nil
}

func (p *portAudioMicrophone) Acquire(ctx context.Context, c Constraints) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := permissions.EnsureMicrophone(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermission, err)
	}

	device, err := p.findDevice()
	if err != nil {
		return nil, err
	}

	channels := c.ChannelCount
	if channels < 1 {
		channels = 1
	}
	if channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.SampleRate),
		FramesPerBuffer: p.framesPerBuffer,
	}

	// The requested rate is only a hint; fall back to what the device runs at.
	if c.SampleRate <= 0 || portaudio.IsFormatSupported(params, func(in [][]float32) {}) != nil {
		params.SampleRate = device.DefaultSampleRate
	}

	return &portAudioTrack{params: params}, nil
}

func (p *portAudioMicrophone) SelectDevice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceID = id
}

func (p *portAudioMicrophone) findDevice() (*portaudio.DeviceInfo, error) {
	p.mu.Lock()
	id := p.deviceID
	p.mu.Unlock()

	var device *portaudio.DeviceInfo
	if id == "" {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get default input device: %v", ErrNoDevice, err)
		}
		device = d
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to enumerate devices: %v", ErrNoDevice, err)
		}
		for _, d := range devices {
			if d.Name == id {
				device = d
				break
			}
		}
	}

	if device == nil {
		return nil, fmt.Errorf("%w: device not found: %s", ErrNoDevice, id)
	}
	if device.MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %s has no input channels", ErrNoDevice, device.Name)
	}
	return device, nil
}

func (p *portAudioMicrophone) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioMicrophone) Close() error {
	return portaudio.Terminate()
}

// portAudioTrack opens its stream on Start with a non-interleaved float32
// callback; PortAudio calls it once per FramesPerBuffer frames.
type portAudioTrack struct {
	params portaudio.StreamParameters
	active atomic.Bool

	mu      sync.Mutex
	stream  *portaudio.Stream
	stopped bool
}

func (t *portAudioTrack) Format() Format {
	return Format{SampleRate: int(t.params.SampleRate), Channels: t.params.Input.Channels}
}

func (t *portAudioTrack) Start(process ProcessFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return fmt.Errorf("track already stopped")
	}
	if t.stream != nil {
		return fmt.Errorf("track already started")
	}

	t.active.Store(true)
	stream, err := portaudio.OpenStream(t.params, func(in [][]float32) {
		if !t.active.Load() {
			return
		}
		if !process(in) {
			t.active.Store(false)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: failed to open audio stream: %v", ErrNoDevice, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: failed to start audio stream: %v", ErrNoDevice, err)
	}

	t.stream = stream
	return nil
}

func (t *portAudioTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}
	t.stopped = true
	t.active.Store(false)

	if t.stream == nil {
		return nil
	}
	err := t.stream.Stop()
	if cerr := t.stream.Close(); err == nil {
		err = cerr
	}
	t.stream = nil
	return err
}
