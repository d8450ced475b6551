package encode

import (
	"math"

	"github.com/petems/voicegate/internal/audio"
)

// Downmix averages all channels of buf into one. A mono buffer is copied.
func Downmix(buf *audio.Buffer) []float32 {
	n := buf.Len()
	out := make([]float32, n)
	if len(buf.Channels) == 1 {
		copy(out, buf.Channels[0])
		return out
	}

	numChannels := float64(len(buf.Channels))
	for i := 0; i < n; i++ {
		var sum float64
		for _, ch := range buf.Channels {
			if i < len(ch) {
				sum += float64(ch[i])
			}
		}
		out[i] = float32(sum / numChannels)
	}
	return out
}

// Quantize maps s to a 16-bit sample. s is clamped to [-1, 1]; negative
// values scale by 32768 and positive ones by 32767 so both ends of the
// signed range are reachable.
func Quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// QuantizeAll quantizes every sample of mono.
func QuantizeAll(mono []float32) []int16 {
	out := make([]int16, len(mono))
	for i, s := range mono {
		out[i] = Quantize(s)
	}
	return out
}

// Resample converts mono from rate `from` to rate `to` by linear
// interpolation. When downsampling, a moving average as wide as the rate
// ratio runs first to suppress content above the new Nyquist frequency.
func Resample(mono []float32, from, to int) []float32 {
	if from == to || len(mono) == 0 || from <= 0 || to <= 0 {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out
	}

	src := mono
	ratio := float64(from) / float64(to)
	if ratio > 1 {
		src = boxFilter(mono, int(math.Ceil(ratio)))
	}

	n := int(int64(len(mono)) * int64(to) / int64(from))
	if n < 1 {
		n = 1
	}
	out := make([]float32, n)
	last := len(src) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = src[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = src[j] + (src[j+1]-src[j])*frac
	}
	return out
}

// boxFilter returns the centred moving average of x over width samples.
func boxFilter(x []float32, width int) []float32 {
	if width <= 1 {
		return x
	}
	out := make([]float32, len(x))
	half := width / 2
	var sum float64
	lo, hi := 0, 0 // window is x[lo:hi]
	for i := range x {
		wantLo := max(0, i-half)
		wantHi := min(len(x), i-half+width)
		for hi < wantHi {
			sum += float64(x[hi])
			hi++
		}
		for lo < wantLo {
			sum -= float64(x[lo])
			lo++
		}
		out[i] = float32(sum / float64(hi-lo))
	}
	return out
}
