package encode

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/petems/voicegate/internal/audio"
	"github.com/petems/voicegate/internal/wav"
)

// riff assembles a RIFF/WAVE file from a fmt chunk body, optional extra
// chunks and the data payload.
func riff(fmtBody []byte, extra []byte, payload []byte, dataSize uint32) []byte {
	le := binary.LittleEndian
	var b []byte
	b = append(b, "RIFF\x00\x00\x00\x00WAVE"...)
	b = append(b, "fmt "...)
	b = le.AppendUint32(b, uint32(len(fmtBody)))
	b = append(b, fmtBody...)
	b = append(b, extra...)
	b = append(b, "data"...)
	b = le.AppendUint32(b, dataSize)
	b = append(b, payload...)
	le.PutUint32(b[4:8], uint32(len(b)-8))
	return b
}

func fmtChunk(code uint16, channels uint16, rate uint32, bits uint16) []byte {
	le := binary.LittleEndian
	var b []byte
	b = le.AppendUint16(b, code)
	b = le.AppendUint16(b, channels)
	b = le.AppendUint32(b, rate)
	b = le.AppendUint32(b, rate*uint32(channels)*uint32(bits)/8)
	b = le.AppendUint16(b, channels*bits/8)
	b = le.AppendUint16(b, bits)
	return b
}

func TestDecodeWAVFormats(t *testing.T) {
	le := binary.LittleEndian
	f32 := func(vs ...float32) []byte {
		var b []byte
		for _, v := range vs {
			b = le.AppendUint32(b, math.Float32bits(v))
		}
		return b
	}

	tests := []struct {
		name    string
		fmt     []byte
		payload []byte
		want    []float32
	}{
		{"pcm8", fmtChunk(1, 1, 8000, 8), []byte{128, 255, 0}, []float32{0, 127.0 / 128, -1}},
		{"pcm16", fmtChunk(1, 1, 8000, 16), le.AppendUint16(le.AppendUint16(nil, 0x4000), 0x8000), []float32{0.5, -1}},
		{"pcm24", fmtChunk(1, 1, 8000, 24), []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0}, []float32{0.5, -0.5}},
		{"pcm32", fmtChunk(1, 1, 8000, 32), le.AppendUint32(nil, 0x40000000), []float32{0.5}},
		{"float32", fmtChunk(3, 1, 8000, 32), f32(0.25, -0.75), []float32{0.25, -0.75}},
		{"float64", fmtChunk(3, 1, 8000, 64), le.AppendUint64(nil, math.Float64bits(-0.125)), []float32{-0.125}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Decode(riff(tt.fmt, nil, tt.payload, uint32(len(tt.payload))))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if buf.SampleRate != 8000 {
				t.Errorf("expected 8000 Hz, got %d", buf.SampleRate)
			}
			got := buf.Channels[0]
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d samples, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d: expected %f, got %f", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestDecodeWAVSkipsUnknownChunksAndExtensible(t *testing.T) {
	le := binary.LittleEndian
	body := fmtChunk(wav.FormatExtensible, 2, 44100, 16)
	body = le.AppendUint16(body, 22)            // cbSize
	body = le.AppendUint16(body, 16)            // valid bits
	body = le.AppendUint32(body, 0x3)           // channel mask
	body = le.AppendUint16(body, wav.FormatPCM) // sub-format GUID prefix
	body = append(body, make([]byte, 14)...)

	list := append([]byte("LIST"), le.AppendUint32(nil, 3)...)
	list = append(list, 'a', 'b', 'c', 0) // odd size plus pad byte

	payload := le.AppendUint16(le.AppendUint16(nil, 0x4000), 0xC000)
	buf, err := Decode(riff(body, list, payload, uint32(len(payload))))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(buf.Channels) != 2 || buf.Len() != 1 {
		t.Fatalf("expected 2 channels of 1 sample, got %d x %d", len(buf.Channels), buf.Len())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 {
		t.Errorf("unexpected samples %v", buf.Channels)
	}
}

func TestDecodeStreamingHeader(t *testing.T) {
	data := wav.StreamHeader(48000, 1)
	for i := 0; i < 480; i++ {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(0.5))
	}

	buf, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Len() != 480 || buf.SampleRate != 48000 {
		t.Fatalf("expected 480 samples at 48 kHz, got %d at %d", buf.Len(), buf.SampleRate)
	}
}

func TestDecodeWAVEmptyDataChunkBeforeTrailer(t *testing.T) {
	le := binary.LittleEndian
	trailer := append([]byte("LIST"), le.AppendUint32(nil, 4)...)
	trailer = append(trailer, "INFO"...)

	_, err := Decode(riff(fmtChunk(1, 1, 16000, 16), nil, trailer, 0))
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected the trailing chunk to be ignored and ErrEmpty returned, got %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}},
		{"garbage", []byte("hello world")},
		{"vorbis", []byte("OggS\x00\x02\x00\x00\x01vorbis")},
		{"wav without data", riff(fmtChunk(1, 1, 16000, 16), nil, nil, 0)[:36]},
		{"wav without samples", riff(fmtChunk(1, 1, 16000, 16), nil, nil, 0)},
		{"unsupported bits", riff(fmtChunk(1, 1, 16000, 12), nil, []byte{1, 2}, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if !errors.Is(err, ErrDecode) {
				t.Error("expected errors.Is(err, ErrDecode)")
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := map[string][]byte{
		ContainerWAV:  wav.Build([]int16{0}),
		ContainerOgg:  []byte("OggS...."),
		ContainerMP3:  []byte("ID3\x04"),
		ContainerWebM: {0x1A, 0x45, 0xDF, 0xA3},
		"":            []byte("RIFF"),
	}
	for want, data := range tests {
		if got := Detect(data); got != want {
			t.Errorf("Detect(% x) = %q, want %q", data[:4], got, want)
		}
	}
	if got := Detect([]byte{0xFF, 0xFB, 0x90}); got != ContainerMP3 {
		t.Errorf("expected frame sync to be detected as mp3, got %q", got)
	}
}

func TestOpusChannels(t *testing.T) {
	head := append([]byte("OggS\x00\x02OpusHead\x01"), 2, 0x38, 0x01)
	n, err := opusChannels(head)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 channels, got %d (%v)", n, err)
	}
}

func TestPipelineEncodesNativeRecording(t *testing.T) {
	// One second of stereo 48 kHz float, as the recorder produces it.
	data := wav.StreamHeader(48000, 2)
	for i := 0; i < 48000; i++ {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(0.5))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(-0.5))
	}

	out, err := Pipeline{}.Encode(audio.Recording{Container: data})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := wav.Validate(out); err != nil {
		t.Fatalf("encoded container is invalid: %v", err)
	}

	info, err := wav.Inspect(out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.NumSamples != 16000 {
		t.Errorf("expected 16000 samples after resampling, got %d", info.NumSamples)
	}
	if int(info.DataSize) != len(out)-wav.HeaderSize {
		t.Errorf("data size %d does not match payload %d", info.DataSize, len(out)-wav.HeaderSize)
	}
	for i := wav.HeaderSize; i < len(out); i += 2 {
		if s := int16(binary.LittleEndian.Uint16(out[i:])); s != 0 {
			t.Fatalf("expected silence after downmix, got %d at byte %d", s, i)
		}
	}
}

func TestPipelineUsesBuffer(t *testing.T) {
	buf := &audio.Buffer{Channels: [][]float32{{1, -1, 0}}, SampleRate: 16000}
	out, err := Pipeline{}.Encode(audio.Recording{Buffer: buf, Container: []byte("ignored")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := []int16{32767, -32768, 0}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(out[wav.HeaderSize+i*2:])); got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestEncodeBufferEmpty(t *testing.T) {
	_, err := EncodeBuffer(&audio.Buffer{SampleRate: 16000})
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestTranscodeCanonicalIsStable(t *testing.T) {
	in := wav.Build([]int16{100, -100, 12000, -32768})
	out, err := Transcode(in)
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if string(out) != string(in) {
		t.Fatalf("canonical input changed:\n in %x\nout %x", in, out)
	}
}

func TestTranscodeCompressed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		kind    string
		samples int // at 16 kHz
		slack   int // one codec frame at 16 kHz
	}{
		// 518400 samples of mono speech at 48 kHz after the 312 sample pre-skip.
		{"ogg opus mono", "testdata/speech_mono.opus", ContainerOgg, 172800, 320},
		// 25 MPEG-1 layer III frames of 1152 samples, stereo at 48 kHz.
		{"mp3 stereo", "testdata/tone_stereo.mp3", ContainerMP3, 9600, 384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := os.ReadFile(tt.file)
			if err != nil {
				t.Fatalf("read fixture: %v", err)
			}
			if got := Detect(data); got != tt.kind {
				t.Fatalf("expected %q, detected %q", tt.kind, got)
			}

			out, err := Transcode(data)
			if err != nil {
				t.Fatalf("Transcode: %v", err)
			}
			if err := wav.Validate(out); err != nil {
				t.Fatalf("transcoded container is invalid: %v", err)
			}
			info, err := wav.Inspect(out)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if d := int(info.NumSamples) - tt.samples; d < -tt.slack || d > tt.slack {
				t.Errorf("expected %d±%d samples, got %d", tt.samples, tt.slack, info.NumSamples)
			}

			var peak int
			for i := wav.HeaderSize; i+1 < len(out); i += 2 {
				s := int(int16(binary.LittleEndian.Uint16(out[i:])))
				peak = max(peak, s, -s)
			}
			if peak < 100 {
				t.Errorf("expected audible output, peak is %d", peak)
			}
		})
	}
}

func TestDecodeCorruptCompressed(t *testing.T) {
	mp3, err := os.ReadFile("testdata/tone_stereo.mp3")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"opus head without pages", append([]byte("OggS\x00\x02OpusHead\x01\x01\x38\x01"), make([]byte, 64)...)},
		{"mp3 header without frame", append(append([]byte{}, mp3[:4]...), make([]byte, 100)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected errors.Is(err, ErrDecode), got %v", err)
			}
		})
	}
}
