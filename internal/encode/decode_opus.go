package encode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
	"github.com/petems/voicegate/internal/audio"
)

// opusRate is the rate libopusfile always decodes to.
const opusRate = 48000

// decodeOpus decodes an Ogg/Opus file. The channel count comes from the
// OpusHead packet since the stream reader does not expose it.
func decodeOpus(data []byte) (*audio.Buffer, error) {
	channels, err := opusChannels(data)
	if err != nil {
		return nil, &DecodeError{Format: ContainerOgg, Err: err}
	}

	s, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: ContainerOgg, Err: err}
	}
	defer s.Close()

	// 120 ms is the largest Opus frame.
	pcm := make([]float32, opusRate*120/1000*channels)
	var interleaved []float32
	for {
		n, err := s.ReadFloat32(pcm)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Format: ContainerOgg, Err: err}
		}
		interleaved = append(interleaved, pcm[:n*channels]...)
	}

	return &audio.Buffer{Channels: deinterleave(interleaved, channels), SampleRate: opusRate}, nil
}

// opusChannels reads the channel count byte of the OpusHead packet.
func opusChannels(data []byte) (int, error) {
	i := bytes.Index(data, []byte("OpusHead"))
	if i < 0 || i+10 > len(data) {
		return 0, fmt.Errorf("ogg stream does not carry opus audio")
	}
	channels := int(data[i+9])
	if channels < 1 {
		return 0, fmt.Errorf("opus header declares %d channels", channels)
	}
	return channels, nil
}
