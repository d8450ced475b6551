package encode

import (
	"bytes"
	"fmt"

	"github.com/petems/voicegate/internal/audio"
)

// Container names reported by Detect.
const (
	ContainerWAV  = "wav"
	ContainerOgg  = "ogg"
	ContainerMP3  = "mp3"
	ContainerWebM = "webm"
)

// Detect guesses the container of data from its leading bytes. It returns ""
// when nothing matches.
func Detect(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return ContainerOgg
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerWebM
	case bytes.HasPrefix(data, []byte("ID3")):
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ""
}

// Decode turns a native container into samples at the container's own rate.
func Decode(data []byte) (*audio.Buffer, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Format: "unknown", Err: ErrEmpty}
	}

	var (
		buf *audio.Buffer
		err error
	)
	switch kind := Detect(data); kind {
	case ContainerWAV:
		buf, err = decodeWAV(data)
	case ContainerOgg:
		buf, err = decodeOpus(data)
	case ContainerMP3:
		buf, err = decodeMP3(data)
	case ContainerWebM:
		return nil, &DecodeError{Format: kind, Err: fmt.Errorf("webm is not supported, record with the built-in recorder or supply wav, ogg/opus or mp3")}
	default:
		return nil, &DecodeError{Format: "unknown", Err: fmt.Errorf("unrecognised container (leading bytes % x)", data[:min(4, len(data))])}
	}
	if err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, &DecodeError{Format: Detect(data), Err: ErrEmpty}
	}
	return buf, nil
}

// deinterleave splits interleaved samples into per-channel slices.
func deinterleave(samples []float32, channels int) [][]float32 {
	n := len(samples) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			out[c][i] = samples[i*channels+c]
		}
	}
	return out
}
