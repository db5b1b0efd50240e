package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"soundscape/core/audio"
	"soundscape/model"
)

const testRate = 8000

// fakeOutput captures the graph reader so tests can advance the audio clock
// by pumping frames on demand.
type fakeOutput struct {
	mu     sync.Mutex
	src    io.Reader
	closed bool
}

func (o *fakeOutput) Start(src io.Reader) error {
	o.mu.Lock()
	o.src = src
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// pump reads n frames, advancing the graph clock by n/testRate seconds.
func (o *fakeOutput) pump(t *testing.T, n int) []byte {
	t.Helper()
	o.mu.Lock()
	src := o.src
	o.mu.Unlock()
	if src == nil {
		t.Fatal("output never started")
	}
	buf := make([]byte, n*4)
	if _, err := io.ReadFull(src, buf); err != nil {
		t.Fatalf("pump: %v", err)
	}
	return buf
}

// blockingLoader serves constant-value buffers and can hold a load until
// released, to exercise the stale-load guard.
type blockingLoader struct {
	mu      sync.Mutex
	hold    map[string]chan struct{}
	fail    map[string]bool
	loads   map[string]int
	samples float32
}

func newBlockingLoader() *blockingLoader {
	return &blockingLoader{
		hold:    make(map[string]chan struct{}),
		fail:    make(map[string]bool),
		loads:   make(map[string]int),
		samples: 0.25,
	}
}

func (l *blockingLoader) holdPath(path string) chan struct{} {
	ch := make(chan struct{})
	l.mu.Lock()
	l.hold[path] = ch
	l.mu.Unlock()
	return ch
}

func (l *blockingLoader) Load(ctx context.Context, objectPath string) (*audio.Buffer, error) {
	l.mu.Lock()
	gate := l.hold[objectPath]
	failed := l.fail[objectPath]
	l.loads[objectPath]++
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failed {
		return nil, errors.New("asset missing")
	}

	n := testRate // one second
	left := make([]float32, n)
	right := make([]float32, n)
	for i := range left {
		left[i] = l.samples
		right[i] = l.samples
	}
	return audio.NewStereo(testRate, left, right), nil
}

func newTestEngine(t *testing.T, loader audio.Loader) (*Engine, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	e := New(loader, out, testRate)
	if err := e.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, out
}

func rainLoop(vol float64) model.LoopTrack {
	return model.LoopTrack{ID: "t1_rain", LibraryID: "rain", AssetID: "rain_soft_loop_01", Volume: vol}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSyncBeforeActivation(t *testing.T) {
	e := New(newBlockingLoader(), &fakeOutput{}, testRate)
	err := e.SyncMix(context.Background(), "s", 0.8, []model.Track{rainLoop(0.5)})
	if !errors.Is(err, ErrNotActivated) {
		t.Fatalf("err = %v, want ErrNotActivated", err)
	}
}

func TestActivateIdempotent(t *testing.T) {
	e, out := newTestEngine(t, newBlockingLoader())
	if err := e.Activate(); err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if e.CurrentState() != StateActivated {
		t.Fatalf("state = %v", e.CurrentState())
	}
	// silence until a mix syncs
	for _, b := range out.pump(t, 64) {
		if b != 0 {
			t.Fatal("activated engine should output silence before any sync")
		}
	}
}

func TestSyncStartsLoop(t *testing.T) {
	loader := newBlockingLoader()
	e, out := newTestEngine(t, loader)

	if err := e.SyncMix(context.Background(), "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := e.graph.loopAsset("t1_rain")
		return ok
	})

	buf := out.pump(t, 256)
	silent := true
	for _, b := range buf {
		if b != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatal("loop joined the graph but produced silence")
	}
}

func TestGainChangeDoesNotRestartLoop(t *testing.T) {
	loader := newBlockingLoader()
	e, _ := newTestEngine(t, loader)
	ctx := context.Background()

	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := e.graph.loopAsset("t1_rain")
		return ok
	})

	loader.mu.Lock()
	loadsBefore := loader.loads["loops/rain/rain_soft_loop_01.mp3"]
	loader.mu.Unlock()

	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.2)}); err != nil {
		t.Fatal(err)
	}

	loader.mu.Lock()
	loadsAfter := loader.loads["loops/rain/rain_soft_loop_01.mp3"]
	loader.mu.Unlock()
	if loadsAfter != loadsBefore {
		t.Fatalf("gain-only sync reloaded the asset: %d -> %d loads", loadsBefore, loadsAfter)
	}

	e.graph.mu.Lock()
	gain := e.graph.loops["t1_rain"].gain
	e.graph.mu.Unlock()
	if gain != 0.2 {
		t.Fatalf("gain = %v, want 0.2", gain)
	}
}

func TestSyncRemovesDroppedLoops(t *testing.T) {
	loader := newBlockingLoader()
	e, _ := newTestEngine(t, loader)
	ctx := context.Background()

	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := e.graph.loopAsset("t1_rain")
		return ok
	})

	if err := e.SyncMix(ctx, "s", 0.8, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.graph.loopAsset("t1_rain"); ok {
		t.Fatal("dropped loop still in graph")
	}
}

func TestStaleLoadDiscarded(t *testing.T) {
	loader := newBlockingLoader()
	e, _ := newTestEngine(t, loader)
	ctx := context.Background()

	slowPath := "loops/rain/rain_soft_loop_01.mp3"
	gate := loader.holdPath(slowPath)

	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	// reassign the track to a different asset while the first load is stuck
	second := model.LoopTrack{ID: "t1_rain", LibraryID: "rain", AssetID: "rain_medium_loop_01", Volume: 0.5}
	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{second}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		key, ok := e.graph.loopAsset("t1_rain")
		return ok && key == "loops/rain/rain_medium_loop_01.mp3"
	})

	close(gate) // first load finally completes; it must not win
	time.Sleep(50 * time.Millisecond)

	key, ok := e.graph.loopAsset("t1_rain")
	if !ok || key != "loops/rain/rain_medium_loop_01.mp3" {
		t.Fatalf("stale load resurrected old asset: %q", key)
	}
}

func TestFailedLoadSkipsTrack(t *testing.T) {
	loader := newBlockingLoader()
	loader.fail["loops/rain/rain_soft_loop_01.mp3"] = true
	e, _ := newTestEngine(t, loader)

	if err := e.SyncMix(context.Background(), "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := e.graph.loopAsset("t1_rain"); ok {
		t.Fatal("failed load still joined the graph")
	}
}

func TestEventSchedulerFires(t *testing.T) {
	loader := newBlockingLoader()
	e, out := newTestEngine(t, loader)

	thunder := model.EventTrack{
		ID: "t2_thunder", LibraryID: "thunder", AssetID: "thunder_distant_roll_01",
		Volume: 0.5, Rate: model.RateVeryOften, Speed: 2,
	}
	if err := e.SyncMix(context.Background(), "s", 0.8, []model.Track{thunder}); err != nil {
		t.Fatal(err)
	}

	// First fire lands in [0.8, 2.0)s of clock time. Advance the clock past
	// it in small steps, giving the 200ms scheduler tick room to run ahead.
	heard := false
	for i := 0; i < 12 && !heard; i++ {
		time.Sleep(250 * time.Millisecond)
		for _, b := range out.pump(t, testRate/4) {
			if b != 0 {
				heard = true
				break
			}
		}
	}
	if !heard {
		t.Fatal("scheduler never fired an event within 3s of clock time")
	}
}

func TestStopAllSilencesAndIsIdempotent(t *testing.T) {
	loader := newBlockingLoader()
	e, out := newTestEngine(t, loader)
	ctx := context.Background()

	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, ok := e.graph.loopAsset("t1_rain")
		return ok
	})

	e.StopAll()
	e.StopAll()

	for _, b := range out.pump(t, 256) {
		if b != 0 {
			t.Fatal("output not silent after StopAll")
		}
	}

	// the engine stays activated: a later sync resumes playback
	if err := e.SyncMix(ctx, "s", 0.8, []model.Track{rainLoop(0.5)}); err != nil {
		t.Fatalf("sync after StopAll: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := e.graph.loopAsset("t1_rain")
		return ok
	})
}

func TestCloseReleasesOutput(t *testing.T) {
	out := &fakeOutput{}
	e := New(newBlockingLoader(), out, testRate)
	if err := e.Activate(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	out.mu.Lock()
	closed := out.closed
	out.mu.Unlock()
	if !closed {
		t.Fatal("output not closed")
	}
	if e.CurrentState() != StateStopped {
		t.Fatalf("state = %v, want StateStopped", e.CurrentState())
	}
}
