// Package wav builds and checks the canonical RIFF/WAVE container that the
// voice service accepts: 16 kHz, mono, 16-bit signed PCM with a fixed 44-byte
// header.
package wav

import (
	"bytes"
	"encoding/binary"
)

const (
	// HeaderSize is the size of the canonical header in bytes.
	HeaderSize = 44

	// TargetSampleRate is the only sample rate the service accepts.
	TargetSampleRate = 16000

	// Channels is the only channel count the service accepts.
	Channels = 1

	// BitsPerSample is the only sample width the service accepts.
	BitsPerSample = 16

	// FormatPCM is the WAVE format code for integer PCM.
	FormatPCM = 1

	// FormatFloat is the WAVE format code for IEEE float samples.
	FormatFloat = 3

	// FormatExtensible marks a WAVE_FORMAT_EXTENSIBLE fmt chunk.
	FormatExtensible = 0xFFFE

	fmtChunkSize = 16
)

// Header mirrors the 44-byte canonical header field by field.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// NewHeader returns the canonical header for a payload of dataSize bytes.
func NewHeader(dataSize uint32) Header {
	return newHeader(FormatPCM, Channels, TargetSampleRate, BitsPerSample, dataSize)
}

func newHeader(format, channels uint16, sampleRate uint32, bits uint16, dataSize uint32) Header {
	blockAlign := channels * bits / 8
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   format,
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// MarshalBinary encodes the header little-endian.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Build concatenates the canonical header and the PCM payload. The header
// always declares TargetSampleRate, so samples must already be at that rate.
func Build(samples []int16) []byte {
	dataSize := uint32(len(samples) * 2)
	out := make([]byte, HeaderSize+len(samples)*2)
	putHeader(out, NewHeader(dataSize))

	payload := out[HeaderSize:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(s))
	}
	return out
}

// StreamHeader returns a 32-bit float header for a recording whose length is
// not known yet. Both size fields carry 0xFFFFFFFF; readers take everything
// after the header as payload.
func StreamHeader(sampleRate, channels int) []byte {
	h := newHeader(FormatFloat, uint16(channels), uint32(sampleRate), 32, 0)
	h.ChunkSize = 0xFFFFFFFF
	h.Subchunk2Size = 0xFFFFFFFF

	out := make([]byte, HeaderSize)
	putHeader(out, h)
	return out
}

func putHeader(b []byte, h Header) {
	le := binary.LittleEndian
	copy(b[0:4], h.ChunkID[:])
	le.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], h.Format[:])
	copy(b[12:16], h.Subchunk1ID[:])
	le.PutUint32(b[16:20], h.Subchunk1Size)
	le.PutUint16(b[20:22], h.AudioFormat)
	le.PutUint16(b[22:24], h.NumChannels)
	le.PutUint32(b[24:28], h.SampleRate)
	le.PutUint32(b[28:32], h.ByteRate)
	le.PutUint16(b[32:34], h.BlockAlign)
	le.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], h.Subchunk2ID[:])
	le.PutUint32(b[40:44], h.Subchunk2Size)
}
