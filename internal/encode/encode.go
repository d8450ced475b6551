// Package encode turns captured audio into the canonical container: decode
// the native container, downmix to mono, resample to the target rate,
// quantize to 16-bit PCM and prepend the header.
package encode

import (
	"errors"
	"fmt"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/wav"
)

var (
	// ErrDecode matches every DecodeError with errors.Is.
	ErrDecode = errors.New("audio could not be decoded")

	// ErrEmpty is wrapped by a DecodeError when a recording has no samples.
	ErrEmpty = errors.New("recording contains no samples")
)

// DecodeError reports a container that could not be turned into samples.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Pipeline encodes recordings to the canonical container.
type Pipeline struct{}

// Encode decodes rec.Container unless rec.Buffer already holds the samples,
// then encodes the result.
func (Pipeline) Encode(rec audio.Recording) ([]byte, error) {
	buf := rec.Buffer
	if buf == nil {
		decoded, err := Decode(rec.Container)
		if err != nil {
			return nil, err
		}
		buf = decoded
	}
	return EncodeBuffer(buf)
}

// Transcode converts any supported container to the canonical one.
func Transcode(data []byte) ([]byte, error) {
	return Pipeline{}.Encode(audio.Recording{Container: data})
}

// EncodeBuffer downmixes, resamples to wav.TargetSampleRate, quantizes and
// wraps buf.
func EncodeBuffer(buf *audio.Buffer) ([]byte, error) {
	if buf.Len() == 0 {
		return nil, &DecodeError{Format: "pcm", Err: ErrEmpty}
	}
	if buf.SampleRate <= 0 {
		return nil, &DecodeError{Format: "pcm", Err: fmt.Errorf("invalid sample rate %d", buf.SampleRate)}
	}

	mono := Downmix(buf)
	if buf.SampleRate != wav.TargetSampleRate {
		mono = Resample(mono, buf.SampleRate, wav.TargetSampleRate)
	}
	return wav.Build(QuantizeAll(mono)), nil
}
