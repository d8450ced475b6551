package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestBuildHeaderFields(t *testing.T) {
	samples := make([]int16, 1000)
	out := Build(samples)

	if len(out) != HeaderSize+2000 {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+2000, len(out))
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"chunk size", le.Uint32(out[4:8]), uint32(len(out) - 8)},
		{"fmt size", le.Uint32(out[16:20]), 16},
		{"audio format", uint32(le.Uint16(out[20:22])), 1},
		{"channels", uint32(le.Uint16(out[22:24])), 1},
		{"sample rate", le.Uint32(out[24:28]), 16000},
		{"byte rate", le.Uint32(out[28:32]), 32000},
		{"block align", uint32(le.Uint16(out[32:34])), 2},
		{"bits per sample", uint32(le.Uint16(out[34:36])), 16},
		{"data size", le.Uint32(out[40:44]), 2000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	for off, tag := range map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"} {
		if got := string(out[off : off+4]); got != tag {
			t.Errorf("tag at %d: expected %q, got %q", off, tag, got)
		}
	}
}

func TestBuildMatchesHeaderEncoding(t *testing.T) {
	samples := []int16{1, -1, 32767, -32768}
	out := Build(samples)

	hdr, err := NewHeader(uint32(len(samples) * 2)).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(out[:HeaderSize], hdr) {
		t.Fatalf("header mismatch:\n got %x\nwant %x", out[:HeaderSize], hdr)
	}

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(out[HeaderSize+i*2:]))
		if got != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestValidateAcceptsCanonical(t *testing.T) {
	if err := Validate(Build(make([]int16, 1000))); err != nil {
		t.Fatalf("expected valid container, got %v", err)
	}
}

func TestValidateRejectsFlippedField(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		patch func(b []byte)
	}{
		{"riff tag", FieldRIFF, func(b []byte) { copy(b[0:4], "RIFX") }},
		{"wave tag", FieldWAVE, func(b []byte) { copy(b[8:12], "AVI ") }},
		{"fmt tag", FieldFmt, func(b []byte) { copy(b[12:16], "junk") }},
		{"float format", FieldAudioFormat, func(b []byte) { binary.LittleEndian.PutUint16(b[20:22], 3) }},
		{"stereo", FieldChannels, func(b []byte) { binary.LittleEndian.PutUint16(b[22:24], 2) }},
		{"44.1kHz", FieldSampleRate, func(b []byte) { binary.LittleEndian.PutUint32(b[24:28], 44100) }},
		{"8-bit", FieldBitsPerSample, func(b []byte) { binary.LittleEndian.PutUint16(b[34:36], 8) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Build(make([]int16, 1000))
			tt.patch(b)

			err := Validate(b)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, fe.Field)
			}
			if !errors.Is(err, ErrFormat) {
				t.Error("expected errors.Is(err, ErrFormat)")
			}
		})
	}
}

func TestValidateChecksInOrder(t *testing.T) {
	b := Build(make([]int16, 10))
	binary.LittleEndian.PutUint16(b[22:24], 2)
	binary.LittleEndian.PutUint32(b[24:28], 44100)

	var fe *FormatError
	if !errors.As(Validate(b), &fe) || fe.Field != FieldChannels {
		t.Fatalf("expected channels to be reported first, got %v", fe)
	}
}

func TestValidateShortBuffer(t *testing.T) {
	// Garbage in every byte: the size check must fire before any field check.
	b := bytes.Repeat([]byte{0xAB}, 43)

	var fe *FormatError
	if !errors.As(Validate(b), &fe) {
		t.Fatal("expected FormatError")
	}
	if fe.Field != FieldSize {
		t.Fatalf("expected size error, got %s", fe.Field)
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect(Build(make([]int16, 8000)))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.NumSamples != 8000 {
		t.Errorf("expected 8000 samples, got %d", info.NumSamples)
	}
	if info.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", info.Duration)
	}
}

func TestStreamHeader(t *testing.T) {
	h := StreamHeader(48000, 2)
	if len(h) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(h))
	}

	le := binary.LittleEndian
	if le.Uint16(h[20:22]) != FormatFloat {
		t.Errorf("expected float format")
	}
	if le.Uint32(h[40:44]) != 0xFFFFFFFF {
		t.Errorf("expected unknown data size")
	}
	if le.Uint32(h[28:32]) != 48000*2*4 {
		t.Errorf("unexpected byte rate %d", le.Uint32(h[28:32]))
	}

	// Not canonical: the validator must refuse it.
	if err := Validate(h); !errors.Is(err, ErrFormat) {
		t.Errorf("expected stream header to fail validation, got %v", err)
	}
}
