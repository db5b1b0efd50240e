package engine

import (
	"sync"

	"soundscape/core/audio"
)

// loopNode is one continuously looping source in the graph.
type loopNode struct {
	buf       *audio.Buffer
	gain      float64
	objectKey string // identifies the loaded asset so gain-only updates skip a restart
	pos       int
	loopStart int
	loopEnd   int
}

// oneShotNode is a scheduled event source. It removes itself when exhausted.
type oneShotNode struct {
	buf        *audio.Buffer
	gain       float64
	startFrame int64
	pos        int
}

// graph is the realtime mix graph. The output backend pulls interleaved
// 16-bit stereo frames through Read; everything else mutates nodes under the
// same lock, so there is no true parallelism over node state.
type graph struct {
	sampleRate int

	mu       sync.Mutex
	master   float64
	frame    int64 // audio clock: frames rendered since activation
	loops    map[string]*loopNode
	oneShots []*oneShotNode
}

func newGraph(sampleRate int) *graph {
	return &graph{
		sampleRate: sampleRate,
		master:     0.8,
		loops:      make(map[string]*loopNode),
	}
}

// Now returns the graph clock in seconds.
func (g *graph) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.frame) / float64(g.sampleRate)
}

func (g *graph) setMaster(v float64) {
	g.mu.Lock()
	g.master = v
	g.mu.Unlock()
}

// setLoop starts (or replaces) the loop source for a track.
func (g *graph) setLoop(trackID, objectKey string, buf *audio.Buffer, gain float64, loopStart, loopEnd int) {
	g.mu.Lock()
	g.loops[trackID] = &loopNode{
		buf:       buf,
		gain:      gain,
		objectKey: objectKey,
		loopStart: loopStart,
		loopEnd:   loopEnd,
	}
	g.mu.Unlock()
}

// loopAsset returns the asset key currently playing for a track.
func (g *graph) loopAsset(trackID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.loops[trackID]
	if !ok {
		return "", false
	}
	return n.objectKey, true
}

// setLoopGain adjusts a running loop in place, without restarting it.
func (g *graph) setLoopGain(trackID string, gain float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.loops[trackID]
	if !ok {
		return false
	}
	n.gain = gain
	return true
}

func (g *graph) removeLoop(trackID string) {
	g.mu.Lock()
	delete(g.loops, trackID)
	g.mu.Unlock()
}

func (g *graph) loopIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.loops))
	for id := range g.loops {
		ids = append(ids, id)
	}
	return ids
}

// scheduleOneShot queues an event source at an absolute clock time. Times in
// the past play immediately.
func (g *graph) scheduleOneShot(buf *audio.Buffer, gain float64, atSec float64) {
	g.mu.Lock()
	start := int64(atSec * float64(g.sampleRate))
	if start < g.frame {
		start = g.frame
	}
	g.oneShots = append(g.oneShots, &oneShotNode{buf: buf, gain: gain, startFrame: start})
	g.mu.Unlock()
}

// clear stops every source but keeps the clock running.
func (g *graph) clear() {
	g.mu.Lock()
	g.loops = make(map[string]*loopNode)
	g.oneShots = nil
	g.mu.Unlock()
}

// Read mixes the next len(p)/4 frames as interleaved int16le stereo.
func (g *graph) Read(p []byte) (int, error) {
	frames := len(p) / 4

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < frames; i++ {
		var l, r float64

		for _, n := range g.loops {
			sl, sr := n.buf.Sample(n.pos)
			l += float64(sl) * n.gain
			r += float64(sr) * n.gain
			n.pos++
			if n.pos >= n.loopEnd {
				if n.loopEnd > n.loopStart {
					n.pos = n.loopStart
				} else {
					n.pos = 0
				}
			}
		}

		kept := g.oneShots[:0]
		for _, n := range g.oneShots {
			if n.startFrame > g.frame {
				kept = append(kept, n)
				continue
			}
			sl, sr := n.buf.Sample(n.pos)
			l += float64(sl) * n.gain
			r += float64(sr) * n.gain
			n.pos++
			if n.pos < n.buf.Frames() {
				kept = append(kept, n)
			}
		}
		g.oneShots = kept

		li := pcm16(l * g.master)
		ri := pcm16(r * g.master)
		p[i*4] = byte(li)
		p[i*4+1] = byte(uint16(li) >> 8)
		p[i*4+2] = byte(ri)
		p[i*4+3] = byte(uint16(ri) >> 8)

		g.frame++
	}

	return frames * 4, nil
}

func pcm16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}
