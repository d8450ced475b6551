package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/petems/voicegate/internal/audio"
	"github.com/tosone/minimp3"
)

func decodeMP3(data []byte) (*audio.Buffer, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return nil, &DecodeError{Format: ContainerMP3, Err: err}
	}
	if dec.Channels < 1 || dec.SampleRate < 1 {
		return nil, &DecodeError{Format: ContainerMP3, Err: fmt.Errorf("no audio frames found")}
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return &audio.Buffer{Channels: deinterleave(samples, dec.Channels), SampleRate: dec.SampleRate}, nil
}
