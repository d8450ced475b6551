package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/wav"
)

type wavFormat struct {
	code       uint16
	channels   int
	sampleRate int
	bits       int
}

// decodeWAV walks the RIFF chunks and converts the data chunk to float.
// Integer PCM of 8/16/24/32 bits and IEEE float of 32/64 bits are accepted,
// including WAVE_FORMAT_EXTENSIBLE. A data size of 0xFFFFFFFF, or one
// running past the end, means "until end of input".
func decodeWAV(data []byte) (*audio.Buffer, error) {
	le := binary.LittleEndian
	var (
		f       *wavFormat
		payload []byte
	)

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int64(le.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := int64(body) + size

		switch id {
		case "fmt ":
			if size < 16 || end > int64(len(data)) {
				return nil, &DecodeError{Format: ContainerWAV, Err: fmt.Errorf("truncated fmt chunk")}
			}
			f = parseFmt(data[body:end])
		case "data":
			if size == 0xFFFFFFFF || end > int64(len(data)) {
				end = int64(len(data))
			}
			payload = data[body:end]
		}
		if payload != nil {
			break
		}
		off = int(end + end%2)
	}

	if f == nil {
		return nil, &DecodeError{Format: ContainerWAV, Err: fmt.Errorf("missing fmt chunk")}
	}
	if payload == nil {
		return nil, &DecodeError{Format: ContainerWAV, Err: fmt.Errorf("missing data chunk")}
	}
	if f.channels < 1 || f.sampleRate < 1 {
		return nil, &DecodeError{Format: ContainerWAV, Err: fmt.Errorf("invalid format: %d channels at %d Hz", f.channels, f.sampleRate)}
	}

	samples, err := wavSamples(f, payload)
	if err != nil {
		return nil, &DecodeError{Format: ContainerWAV, Err: err}
	}
	return &audio.Buffer{Channels: deinterleave(samples, f.channels), SampleRate: f.sampleRate}, nil
}

func parseFmt(b []byte) *wavFormat {
	le := binary.LittleEndian
	f := &wavFormat{
		code:       le.Uint16(b[0:2]),
		channels:   int(le.Uint16(b[2:4])),
		sampleRate: int(le.Uint32(b[4:8])),
		bits:       int(le.Uint16(b[14:16])),
	}
	// The sub-format GUID of an extensible header starts with the real code.
	if f.code == wav.FormatExtensible && len(b) >= 26 {
		f.code = le.Uint16(b[24:26])
	}
	return f
}

func wavSamples(f *wavFormat, p []byte) ([]float32, error) {
	le := binary.LittleEndian
	width := f.bits / 8
	if width < 1 {
		return nil, fmt.Errorf("unsupported bit depth %d", f.bits)
	}
	n := len(p) / width
	out := make([]float32, n)

	switch {
	case f.code == wav.FormatPCM && f.bits == 8:
		for i := range out {
			out[i] = (float32(p[i]) - 128) / 128
		}
	case f.code == wav.FormatPCM && f.bits == 16:
		for i := range out {
			out[i] = float32(int16(le.Uint16(p[i*2:]))) / 32768
		}
	case f.code == wav.FormatPCM && f.bits == 24:
		for i := range out {
			b := p[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			out[i] = float32(v) / 8388608
		}
	case f.code == wav.FormatPCM && f.bits == 32:
		for i := range out {
			out[i] = float32(float64(int32(le.Uint32(p[i*4:]))) / 2147483648)
		}
	case f.code == wav.FormatFloat && f.bits == 32:
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(p[i*4:]))
		}
	case f.code == wav.FormatFloat && f.bits == 64:
		for i := range out {
			out[i] = float32(math.Float64frombits(le.Uint64(p[i*8:])))
		}
	default:
		return nil, fmt.Errorf("unsupported format code %d with %d bits", f.code, f.bits)
	}
	return out, nil
}
