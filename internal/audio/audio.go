// Package audio owns the microphone side of a capture: device acquisition,
// the real-time frame producer and the chunked recorder.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermission is returned when the user or OS denied microphone access.
	ErrPermission = errors.New("microphone access denied")

	// ErrNoDevice is returned when no usable input device could be opened.
	ErrNoDevice = errors.New("no usable input device")
)

// Constraints are preferred capture settings. Backends treat them as hints;
// the acquired Track reports what the hardware actually delivers.
type Constraints struct {
	ChannelCount int
	SampleRate   int
	SampleSize   int
}

// DefaultConstraints asks for the service's wire format.
func DefaultConstraints() Constraints {
	return Constraints{ChannelCount: 1, SampleRate: 16000, SampleSize: 16}
}

// Format is the format a Track delivers.
type Format struct {
	SampleRate int
	Channels   int
}

// ProcessFunc is called once per render quantum with one slice per channel.
// Returning false deregisters it; it is not called again.
type ProcessFunc func(in [][]float32) bool

// Microphone hands out input tracks.
type Microphone interface {
	Acquire(ctx context.Context, c Constraints) (Track, error)
	ListDevices() ([]AudioDevice, error)
	// SelectDevice sets the device later acquisitions use. Empty selects
	// the system default.
	SelectDevice(id string)
	Close() error
}

// Track is an acquired input stream. Stop releases the hardware and is safe
// to call more than once.
type Track interface {
	Format() Format
	Start(process ProcessFunc) error
	Stop() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

// Buffer is decoded audio: one sample slice per channel at SampleRate.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Len returns the number of samples per channel.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// AppendFrame appends one frame. Frames with a different channel count than
// the buffer are ignored.
func (b *Buffer) AppendFrame(f Frame) {
	if len(b.Channels) == 0 {
		b.Channels = make([][]float32, len(f.Data))
	}
	if len(f.Data) != len(b.Channels) {
		return
	}
	for c := range f.Data {
		b.Channels[c] = append(b.Channels[c], f.Data[c]...)
	}
}

// Recording is what a capture produced: either a native container assembled
// from recorder fragments or frames already collected into a Buffer.
type Recording struct {
	ID        string
	Container []byte
	Buffer    *Buffer
	Format    Format
	Started   time.Time
	Stopped   time.Time
}
