package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// Control is a message from the control side to the producer.
type Control int

const (
	// ControlStop makes the producer deregister on its next invocation.
	ControlStop Control = iota + 1
)

// Frame is one render quantum, copied out of the device buffer. Its memory
// belongs to the producer's pool once the consumer calls Release.
type Frame struct {
	Seq  uint64
	Data [][]float32

	buf *frameBuf
}

// frameBuf is the pooled storage behind a Frame.
type frameBuf struct {
	slab []float32
	data [][]float32
}

// fit reshapes b to channels x n, growing it only when the quantum grew.
func (b *frameBuf) fit(channels, n int) [][]float32 {
	if cap(b.slab) < channels*n {
		b.slab = make([]float32, channels*n)
	}
	if cap(b.data) < channels {
		b.data = make([][]float32, channels)
	}
	b.data = b.data[:channels]
	for c := range b.data {
		b.data[c] = b.slab[c*n : (c+1)*n : (c+1)*n]
	}
	return b.data
}

// FrameProducer runs on the device callback. It copies every quantum into a
// Frame and hands it to the consumer through a buffered channel; a full
// channel drops the frame instead of blocking the callback. Stop requests
// travel the other way on a separate channel.
//
// Frame storage comes from a pool of at most queue+1 buffers that consumers
// return with Release, so once the pool is warm the callback does not
// allocate. When every buffer is still held by the consumer the quantum is
// dropped.
//
// Process must only be called from the device callback. Close may be called
// from elsewhere once the device no longer invokes Process.
type FrameProducer struct {
	out     chan Frame
	control chan Control
	closed  chan struct{}
	free    chan *frameBuf

	// Touched only from the callback.
	seq        uint64
	registered bool
	allocated  int

	closeOnce sync.Once
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewFrameProducer returns a producer whose outbound channel holds up to
// queue frames.
func NewFrameProducer(queue int) *FrameProducer {
	if queue < 1 {
		queue = 1
	}
	return &FrameProducer{
		out:        make(chan Frame, queue),
		control:    make(chan Control, 1),
		closed:     make(chan struct{}),
		free:       make(chan *frameBuf, queue+1),
		registered: true,
	}
}

// Frames is closed once the producer deregisters or is closed.
func (p *FrameProducer) Frames() <-chan Frame {
	return p.out
}

// Stop posts a stop control. It never blocks.
func (p *FrameProducer) Stop() {
	select {
	case p.control <- ControlStop:
	default:
	}
}

// Process handles one quantum. It returns false when the producer has
// deregistered.
func (p *FrameProducer) Process(in [][]float32) bool {
	if !p.registered {
		return false
	}

	select {
	case c := <-p.control:
		if c == ControlStop {
			p.deregister()
			return false
		}
	default:
	}

	if len(in) == 0 || len(in[0]) == 0 {
		p.deregister()
		return false
	}

	buf := p.acquire()
	if buf == nil {
		p.dropped.Add(1)
		p.seq++
		return true
	}
	n := len(in[0])
	data := buf.fit(len(in), n)
	for c, ch := range in {
		copy(data[c], ch)
	}
	frame := Frame{Seq: p.seq, Data: data, buf: buf}
	p.seq++

	select {
	case p.out <- frame:
		p.delivered.Add(1)
	default:
		p.dropped.Add(1)
		p.recycle(buf)
	}
	return true
}

// acquire takes a pooled buffer, allocating only while the pool is below
// its limit. It returns nil when the consumer holds every buffer.
func (p *FrameProducer) acquire() *frameBuf {
	select {
	case b := <-p.free:
		return b
	default:
	}
	if p.allocated >= cap(p.free) {
		return nil
	}
	p.allocated++
	return &frameBuf{}
}

func (p *FrameProducer) recycle(b *frameBuf) {
	select {
	case p.free <- b:
	default:
	}
}

// Release hands f's memory back to the producer. f must not be used
// afterwards, and each frame is released at most once.
func (p *FrameProducer) Release(f Frame) {
	if f.buf != nil {
		p.recycle(f.buf)
	}
}

func (p *FrameProducer) deregister() {
	p.registered = false
	p.Close()
}

// Close closes the outbound channel. It is a no-op after the first call.
func (p *FrameProducer) Close() {
	p.closeOnce.Do(func() {
		close(p.out)
		close(p.closed)
	})
}

// Closed is closed together with the frames channel.
func (p *FrameProducer) Closed() <-chan struct{} {
	return p.closed
}

// Drain asks p to stop without blocking. If the callback does not run again
// within timeout to observe the request, track is stopped and p closed so
// that consumers still reach the end of the frame stream.
func Drain(p *FrameProducer, track Track, timeout time.Duration) {
	p.Stop()
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.Closed():
		case <-timer.C:
			_ = track.Stop()
			p.Close()
		}
	}()
}

// Dropped returns the number of frames lost to a slow consumer.
func (p *FrameProducer) Dropped() uint64 {
	return p.dropped.Load()
}

// Delivered returns the number of frames handed to the consumer.
func (p *FrameProducer) Delivered() uint64 {
	return p.delivered.Load()
}
