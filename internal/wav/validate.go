package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Field names the header field a FormatError refers to.
type Field string

const (
	FieldSize          Field = "size"
	FieldRIFF          Field = "riff"
	FieldWAVE          Field = "wave"
	FieldFmt           Field = "fmt"
	FieldAudioFormat   Field = "audio_format"
	FieldChannels      Field = "channels"
	FieldSampleRate    Field = "sample_rate"
	FieldBitsPerSample Field = "bits_per_sample"
)

// ErrFormat matches every FormatError with errors.Is.
var ErrFormat = errors.New("invalid audio container")

// FormatError reports the first header field that does not match the
// canonical format.
type FormatError struct {
	Field Field
	Got   string
	Want  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid WAV file: %s is %s, want %s", e.Field, e.Got, e.Want)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Validate checks b against the canonical container. Checks run in header
// order and stop at the first mismatch.
func Validate(b []byte) error {
	if len(b) < HeaderSize {
		return &FormatError{
			Field: FieldSize,
			Got:   fmt.Sprintf("%d bytes", len(b)),
			Want:  fmt.Sprintf(">= %d bytes", HeaderSize),
		}
	}

	tags := []struct {
		field Field
		off   int
		want  string
	}{
		{FieldRIFF, 0, "RIFF"},
		{FieldWAVE, 8, "WAVE"},
		{FieldFmt, 12, "fmt "},
	}
	for _, t := range tags {
		if got := string(b[t.off : t.off+4]); got != t.want {
			return &FormatError{Field: t.field, Got: fmt.Sprintf("%q", got), Want: fmt.Sprintf("%q", t.want)}
		}
	}

	le := binary.LittleEndian
	ints := []struct {
		field Field
		got   uint32
		want  uint32
	}{
		{FieldAudioFormat, uint32(le.Uint16(b[20:22])), FormatPCM},
		{FieldChannels, uint32(le.Uint16(b[22:24])), Channels},
		{FieldSampleRate, le.Uint32(b[24:28]), TargetSampleRate},
		{FieldBitsPerSample, uint32(le.Uint16(b[34:36])), BitsPerSample},
	}
	for _, f := range ints {
		if f.got != f.want {
			return &FormatError{Field: f.field, Got: fmt.Sprint(f.got), Want: fmt.Sprint(f.want)}
		}
	}

	return nil
}

// Info describes a canonical container.
type Info struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	DataSize      uint32        `json:"data_size_bytes"`
	NumSamples    uint32        `json:"num_samples"`
	Duration      time.Duration `json:"duration"`
}

// Inspect validates b and returns its header values.
func Inspect(b []byte) (*Info, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	info := &Info{
		SampleRate:    le.Uint32(b[24:28]),
		Channels:      le.Uint16(b[22:24]),
		BitsPerSample: le.Uint16(b[34:36]),
		DataSize:      le.Uint32(b[40:44]),
	}
	if payload := uint32(len(b) - HeaderSize); info.DataSize > payload {
		info.DataSize = payload
	}
	info.NumSamples = info.DataSize / 2
	info.Duration = time.Duration(info.NumSamples) * time.Second / time.Duration(info.SampleRate)
	return info, nil
}
