// Package audio holds decoded PCM buffers, the WAV container codec and the
// source decoding/caching used by both the live engine and the offline
// renderer.
package audio

// Buffer is a decoded stereo source at a known sample rate. Mono sources are
// stored with both channels pointing at the same data.
type Buffer struct {
	SampleRate int
	L, R       []float32
}

// Frames returns the buffer length in sample frames.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.L)
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Sample returns the frame at i, or silence when out of range.
func (b *Buffer) Sample(i int) (l, r float32) {
	if b == nil || i < 0 || i >= len(b.L) {
		return 0, 0
	}
	return b.L[i], b.R[i]
}

// NewMono builds a buffer from a single channel.
func NewMono(sampleRate int, data []float32) *Buffer {
	return &Buffer{SampleRate: sampleRate, L: data, R: data}
}

// NewStereo builds a buffer from two equal-length channels.
func NewStereo(sampleRate int, l, r []float32) *Buffer {
	return &Buffer{SampleRate: sampleRate, L: l, R: r}
}
