package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 7, -7, 1234}
	tags := InfoTags{
		Title:        "Soundscape Export",
		Artist:       "Soundscape",
		Product:      "soundscape",
		Comment:      "job=abc123 seed=42 duration=5m",
		CreationDate: "2026-08-30",
		Software:     "soundscape renderer",
	}

	data := EncodeWAV(samples, 44100, 2, tags)
	parsed, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}

	if parsed.SampleRate != 44100 || parsed.Channels != 2 || parsed.BitsPerSample != 16 {
		t.Errorf("format round-trip mismatch: %+v", parsed)
	}
	if len(parsed.Samples) != len(samples) {
		t.Fatalf("sample count = %d, want %d", len(parsed.Samples), len(samples))
	}
	for i := range samples {
		if parsed.Samples[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, parsed.Samples[i], samples[i])
		}
	}

	want := map[string]string{
		"INAM": tags.Title,
		"IART": tags.Artist,
		"IPRD": tags.Product,
		"ICMT": tags.Comment,
		"ICRD": tags.CreationDate,
		"ISFT": tags.Software,
	}
	for id, v := range want {
		if parsed.Info[id] != v {
			t.Errorf("tag %s = %q, want %q", id, parsed.Info[id], v)
		}
	}
}

func TestWAVOddLengthTagPadding(t *testing.T) {
	// "ab" + NUL is 3 bytes: forces a pad byte inside the LIST chunk.
	data := EncodeWAV([]int16{1, 2, 3}, 8000, 1, InfoTags{Title: "ab", Comment: "odd"})
	parsed, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV with odd tags: %v", err)
	}
	if parsed.Info["INAM"] != "ab" || parsed.Info["ICMT"] != "odd" {
		t.Errorf("odd-length tags not recovered: %v", parsed.Info)
	}
	if len(parsed.Samples) != 3 {
		t.Errorf("sample count = %d, want 3", len(parsed.Samples))
	}
}

func TestWAVNoTags(t *testing.T) {
	data := EncodeWAV([]int16{5, -5}, 22050, 1, InfoTags{})
	parsed, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if len(parsed.Info) != 0 {
		t.Errorf("expected no INFO tags, got %v", parsed.Info)
	}
	// header 12 + fmt 24 + data header 8 + 4 bytes samples
	if len(data) != 48 {
		t.Errorf("container size = %d, want 48", len(data))
	}
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	if _, err := ParseWAV([]byte("definitely not audio")); err == nil {
		t.Error("expected error for non-RIFF input")
	}
}

func TestWAVToBufferMono(t *testing.T) {
	data := EncodeWAV([]int16{-32768, 0, 32767}, 44100, 1, InfoTags{})
	parsed, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	buf, err := parsed.ToBuffer()
	if err != nil {
		t.Fatalf("ToBuffer: %v", err)
	}
	if buf.Frames() != 3 {
		t.Fatalf("frames = %d, want 3", buf.Frames())
	}
	if buf.L[0] != -1 {
		t.Errorf("full-scale negative = %v, want -1", buf.L[0])
	}
	l, r := buf.Sample(1)
	if l != 0 || r != 0 {
		t.Errorf("zero sample = (%v,%v)", l, r)
	}
}

type countingLoader struct {
	loads int32
	fail  bool
}

func (l *countingLoader) Load(_ context.Context, objectPath string) (*Buffer, error) {
	atomic.AddInt32(&l.loads, 1)
	if l.fail {
		return nil, errors.New("boom")
	}
	return NewMono(44100, make([]float32, 10)), nil
}

func TestCacheLoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(context.Background(), "loops/rain/rain_soft_loop_01.mp3"); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&loader.loads); n != 1 {
		t.Errorf("underlying loads = %d, want 1", n)
	}
	if _, ok := cache.Peek("loops/rain/rain_soft_loop_01.mp3"); !ok {
		t.Error("buffer not retained in cache")
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	loader := &countingLoader{fail: true}
	cache := NewCache(loader)

	if _, err := cache.Load(context.Background(), "loops/x/y.mp3"); err == nil {
		t.Fatal("expected load failure")
	}
	loader.fail = false
	if _, err := cache.Load(context.Background(), "loops/x/y.mp3"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if n := atomic.LoadInt32(&loader.loads); n != 2 {
		t.Errorf("underlying loads = %d, want 2", n)
	}
}
