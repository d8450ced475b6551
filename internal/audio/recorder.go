package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/petems/voicegate/internal/wav"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Timeslice is the amount of audio per emitted fragment.
	Timeslice time.Duration
	// Queue is the frame queue between the callback and the assembler.
	Queue int
	// FlushTimeout bounds how long Stop waits for the callback to notice the
	// stop request before the track is stopped underneath it.
	FlushTimeout time.Duration
}

func (o *RecorderOptions) setDefaults() {
	if o.Timeslice <= 0 {
		o.Timeslice = 100 * time.Millisecond
	}
	if o.Queue <= 0 {
		o.Queue = 64
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 500 * time.Millisecond
	}
}

// Recorder turns a Track into a stream of container fragments. Concatenated
// in order, the fragments form a float WAV file at the track's native format.
// Fragments is closed after Stop once every queued frame has been written.
type Recorder struct {
	track    Track
	format   Format
	opts     RecorderOptions
	producer *FrameProducer

	fragments chan []byte

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRecorder prepares a recorder on track. Nothing is captured until Start.
func NewRecorder(track Track, opts RecorderOptions) *Recorder {
	opts.setDefaults()
	return &Recorder{
		track:     track,
		format:    track.Format(),
		opts:      opts,
		producer:  NewFrameProducer(opts.Queue),
		fragments: make(chan []byte, 16),
	}
}

// Start registers the frame producer on the track and begins assembling
// fragments.
func (r *Recorder) Start() error {
	err := fmt.Errorf("recorder already started")
	r.startOnce.Do(func() {
		if err = r.track.Start(r.producer.Process); err != nil {
			r.producer.Close()
		}
		go r.assemble()
	})
	return err
}

// Fragments delivers fragments in capture order.
func (r *Recorder) Fragments() <-chan []byte {
	return r.fragments
}

// Stop asks the producer to deregister. Frames already queued are still
// written out before Fragments is closed. Stop does not block.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		Drain(r.producer, r.track, r.opts.FlushTimeout)
	})
}

// Close ends the frame stream at once. Call it only after the track has been
// stopped, when the callback can no longer run.
func (r *Recorder) Close() {
	r.Stop()
	r.producer.Close()
}

// Dropped returns the number of frames lost between callback and assembler.
func (r *Recorder) Dropped() uint64 {
	return r.producer.Dropped()
}

func (r *Recorder) assemble() {
	defer close(r.fragments)

	perFragment := int(r.opts.Timeslice.Seconds() * float64(r.format.SampleRate))
	if perFragment < 1 {
		perFragment = 1
	}

	pending := wav.StreamHeader(r.format.SampleRate, r.format.Channels)
	count := 0
	for f := range r.producer.Frames() {
		pending = appendInterleaved(pending, f.Data)
		count += len(f.Data[0])
		r.producer.Release(f)
		if count >= perFragment {
			r.fragments <- pending
			pending = nil
			count = 0
		}
	}
	if len(pending) > 0 {
		r.fragments <- pending
	}
}

// appendInterleaved writes channels as interleaved little-endian float32.
func appendInterleaved(dst []byte, channels [][]float32) []byte {
	if len(channels) == 0 {
		return dst
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		n = min(n, len(ch))
	}
	var b [4]byte
	for i := 0; i < n; i++ {
		for _, ch := range channels {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(ch[i]))
			dst = append(dst, b[:]...)
		}
	}
	return dst
}
