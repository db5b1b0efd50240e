// Package engine drives live in-browser-preview style playback: a pull-based
// mix graph fed to an audio output, kept in sync with a mix description.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"soundscape/core/audio"
	"soundscape/core/catalog"
	"soundscape/core/render"
	"soundscape/logger"
	"soundscape/model"
)

// State is the engine lifecycle. Activation must be triggered explicitly
// (a user gesture on the calling side); everything before that is a no-op.
type State int

const (
	StateUninitialized State = iota
	StateActivated
	StateStopped
)

const (
	schedulerTick      = 200 * time.Millisecond
	schedulerLookahead = 0.8 // seconds
	loopEdgePad        = 0.02
)

var ErrNotActivated = errors.New("engine not activated")

// Engine owns the realtime graph and reconciles it against the desired mix.
// All mutating methods are safe for concurrent use.
type Engine struct {
	loader     audio.Loader
	output     Output
	sampleRate int

	mu    sync.Mutex
	state State
	graph *graph
	// gen invalidates in-flight loop loads: a load commits only if its
	// captured generation is still current when it finishes.
	gen map[string]uint64

	schedCancel context.CancelFunc
}

// New creates an engine over the given source loader (normally an
// audio.Cache) and output backend.
func New(loader audio.Loader, output Output, sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = render.DefaultSampleRate
	}
	return &Engine{
		loader:     loader,
		output:     output,
		sampleRate: sampleRate,
		gen:        make(map[string]uint64),
	}
}

// CurrentState returns the lifecycle state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Activate opens the output and starts pulling from the (initially silent)
// graph. Calling it again while activated is a no-op.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateActivated {
		return nil
	}
	g := newGraph(e.sampleRate)
	if err := e.output.Start(g); err != nil {
		return err
	}
	e.graph = g
	e.state = StateActivated
	logger.Info("playback engine activated", logger.Int("sample_rate", e.sampleRate))
	return nil
}

// SetMaster updates the master gain. Safe in any state.
func (e *Engine) SetMaster(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph != nil {
		e.graph.setMaster(clamp01(v))
	}
}

// SyncMix reconciles the running graph against the desired track list.
// Unchanged loops keep playing without a restart; gain-only changes adjust in
// place; added or re-assigned loops load asynchronously and join when ready.
// Event scheduling restarts from now with streams seeded from the mix seed.
func (e *Engine) SyncMix(ctx context.Context, seed string, master float64, tracks []model.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActivated {
		return ErrNotActivated
	}
	e.graph.setMaster(clamp01(master))

	desired := make(map[string]model.LoopTrack)
	var events []model.EventTrack
	for _, t := range tracks {
		switch tr := t.(type) {
		case model.LoopTrack:
			desired[tr.ID] = tr
		case model.EventTrack:
			events = append(events, tr)
		}
	}

	for _, id := range e.graph.loopIDs() {
		if _, keep := desired[id]; !keep {
			e.graph.removeLoop(id)
			e.gen[id]++
		}
	}

	for id, tr := range desired {
		key := catalog.TrackObjectPath(tr)
		if current, playing := e.graph.loopAsset(id); playing && current == key {
			e.graph.setLoopGain(id, clamp01(tr.Volume))
			continue
		}
		e.startLoopLocked(ctx, tr, key)
	}

	e.restartSchedulerLocked(ctx, seed, events)
	return nil
}

// startLoopLocked kicks off an asynchronous load for a loop track. The
// captured generation makes a superseded load (newer sync, removal, stop)
// discard its result instead of resurrecting a stale voice.
func (e *Engine) startLoopLocked(ctx context.Context, tr model.LoopTrack, key string) {
	e.gen[tr.ID]++
	gen := e.gen[tr.ID]

	go func() {
		buf, err := e.loader.Load(ctx, key)
		if err != nil {
			logger.Warn("loop asset load failed",
				logger.String("track", tr.ID), logger.ErrorField(err))
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.state != StateActivated || e.gen[tr.ID] != gen {
			return
		}
		pad := int(loopEdgePad * float64(buf.SampleRate))
		loopStart, loopEnd := pad, buf.Frames()-pad
		if loopEnd < loopStart {
			loopStart, loopEnd = 0, buf.Frames()
		}
		e.graph.setLoop(tr.ID, key, buf, clamp01(tr.Volume), loopStart, loopEnd)
	}()
}

// restartSchedulerLocked replaces the event scheduler. Fire times are
// relative to the moment of sync, drawn from the same seeded streams the
// offline renderer uses.
func (e *Engine) restartSchedulerLocked(ctx context.Context, seed string, events []model.EventTrack) {
	if e.schedCancel != nil {
		e.schedCancel()
		e.schedCancel = nil
	}
	if len(events) == 0 {
		return
	}

	schedCtx, cancel := context.WithCancel(ctx)
	e.schedCancel = cancel

	type runtime struct {
		track  model.EventTrack
		stream *render.FireStream
	}
	runtimes := make([]*runtime, 0, len(events))
	for _, t := range events {
		runtimes = append(runtimes, &runtime{track: t, stream: render.NewFireStream(seed, t)})
	}

	g := e.graph
	base := g.Now()

	go func() {
		ticker := time.NewTicker(schedulerTick)
		defer ticker.Stop()

		for {
			select {
			case <-schedCtx.Done():
				return
			case <-ticker.C:
			}

			horizon := g.Now() + schedulerLookahead
			for _, rt := range runtimes {
				for base+rt.stream.Peek() <= horizon {
					fire := rt.stream.Next()
					buf, err := e.loader.Load(schedCtx,
						catalog.ObjectPath(model.AssetEvent, rt.track.LibraryID, fire.AssetID, ""))
					if err != nil {
						logger.Warn("event asset load failed",
							logger.String("track", rt.track.ID), logger.ErrorField(err))
						continue
					}
					g.scheduleOneShot(buf, clamp01(rt.track.Volume), base+fire.At)
				}
			}
		}
	}()
}

// Preload warms the loader cache for the given object paths without touching
// the graph.
func (e *Engine) Preload(ctx context.Context, objectPaths []string) {
	for _, p := range objectPaths {
		go func(path string) {
			if _, err := e.loader.Load(ctx, path); err != nil {
				logger.Debug("preload failed", logger.String("object", path), logger.ErrorField(err))
			}
		}(p)
	}
}

// StopAll halts every source and cancels scheduling. Safe to call in any
// state, any number of times; the output keeps pulling silence so a later
// SyncMix resumes without re-activation.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schedCancel != nil {
		e.schedCancel()
		e.schedCancel = nil
	}
	if e.graph != nil {
		e.graph.clear()
	}
	for id := range e.gen {
		e.gen[id]++
	}
}

// Close stops playback and releases the output device.
func (e *Engine) Close() error {
	e.StopAll()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActivated {
		e.state = StateStopped
		return nil
	}
	e.state = StateStopped
	return e.output.Close()
}

func clamp01(v float64) float64 {
	if v != v {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
