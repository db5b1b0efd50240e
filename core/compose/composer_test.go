package compose

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"soundscape/core/catalog"
	"soundscape/model"
)

type denyAllProber struct{}

func (denyAllProber) Probe(context.Context, string) bool { return false }

func newComposer() *Composer {
	return New(catalog.New(catalog.DefaultLibrary(), nil))
}

func TestComposeDeterministic(t *testing.T) {
	c := newComposer()
	for _, mood := range Moods() {
		a := c.Compose(mood, 30, "alpha-7")
		b := c.Compose(mood, 30, "alpha-7")
		if !reflect.DeepEqual(a, b) {
			t.Errorf("mood %s: same inputs produced different mixes", mood)
		}
	}
}

func TestComposeSeedChangesMix(t *testing.T) {
	c := newComposer()
	differ := false
	for _, seed := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		a := c.Compose(MoodNature, 30, seed)
		b := c.Compose(MoodNature, 30, seed+"x")
		if !reflect.DeepEqual(a.Tracks, b.Tracks) {
			differ = true
			break
		}
	}
	if !differ {
		t.Error("seed variation never changed the composed mix")
	}
}

func TestComposeMoodConstraints(t *testing.T) {
	c := newComposer()
	for _, seed := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"} {
		cozy := c.Compose(MoodCozy, 15, seed)
		if len(cozy.Tracks) == 0 {
			t.Fatalf("seed %s: empty cozy mix", seed)
		}
		if cozy.Tracks[0].Library() != "fireplace" {
			t.Errorf("seed %s: cozy primary bed = %s, want fireplace", seed, cozy.Tracks[0].Library())
		}
		for _, tr := range cozy.Tracks {
			if tr.Library() == "birds" || tr.Library() == "insects" {
				t.Errorf("seed %s: cozy mix includes texture %s", seed, tr.Library())
			}
			if tr.Kind() == model.AssetEvent {
				t.Errorf("seed %s: cozy mix includes an event layer", seed)
			}
		}

		sleep := c.Compose(MoodSleep, 15, seed)
		for _, tr := range sleep.Tracks {
			if tr.Kind() == model.AssetEvent {
				t.Errorf("seed %s: sleep mix includes an event layer", seed)
			}
		}
	}
}

func TestComposeThunderOnlyForNature(t *testing.T) {
	c := newComposer()
	sawThunder := false
	seeds := []string{
		"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
		"k", "l", "m", "n", "o", "p", "q", "r", "s", "u",
	}
	for _, seed := range seeds {
		mix := c.Compose(MoodNature, 30, seed)
		for _, tr := range mix.Tracks {
			if ev, ok := tr.(model.EventTrack); ok {
				sawThunder = true
				if ev.Rate != model.RateRare {
					t.Errorf("thunder rate = %s, want Rare", ev.Rate)
				}
				if ev.Volume != 0.28 {
					t.Errorf("thunder volume = %v, want 0.28", ev.Volume)
				}
			}
		}
	}
	if !sawThunder {
		t.Error("no Nature seed produced a thunder layer")
	}
}

func TestComposeFallbackWhenNothingAvailable(t *testing.T) {
	cat := catalog.New(catalog.DefaultLibrary(), denyAllProber{})
	cat.Refresh(context.Background())
	c := New(cat)

	mix := c.Compose(MoodFocus, 30, "starved")
	if len(mix.Tracks) != 1 {
		t.Fatalf("expected exactly the fallback track, got %d tracks", len(mix.Tracks))
	}
	lt, ok := mix.Tracks[0].(model.LoopTrack)
	if !ok {
		t.Fatal("fallback track is not a loop")
	}
	if lt.LibraryID != "rain" || lt.AssetID != "rain_soft_loop_01" || lt.Volume != 0.5 {
		t.Errorf("unexpected fallback track: %+v", lt)
	}
}

func TestComposeTrackIDsStable(t *testing.T) {
	c := newComposer()
	a := c.Compose(MoodFocus, 30, "id-check")
	b := c.Compose(MoodFocus, 30, "id-check")
	for i := range a.Tracks {
		if a.Tracks[i].TrackID() != b.Tracks[i].TrackID() {
			t.Fatalf("track %d id differs between runs: %s vs %s",
				i, a.Tracks[i].TrackID(), b.Tracks[i].TrackID())
		}
	}
}

func TestRecipeText(t *testing.T) {
	mix := model.Mix{
		Seed: "42", Mood: "Nature", DurationMinutes: 10,
		Tracks: []model.Track{
			model.LoopTrack{ID: "t1_rain", LibraryID: "rain", Name: "Rain", AssetID: "rain_soft_loop_01", Volume: 0.5},
			model.EventTrack{ID: "t2_thunder", LibraryID: "thunder", Name: "Thunder", AssetID: "thunder_distant_roll_01", Volume: 0.28, Rate: model.RateRare, Speed: 1},
		},
	}
	text := RecipeText(mix)
	if !strings.HasPrefix(text, "Mood=Nature • Length=10m • Seed=42") {
		t.Errorf("unexpected header: %q", text)
	}
	if !strings.Contains(text, "- Rain (loop) • rain/rain_soft_loop_01.mp3 • vol 50%") {
		t.Errorf("missing rain line in %q", text)
	}
	if !strings.Contains(text, "- Thunder (event) • thunder/thunder_distant_roll_01.mp3 • vol 28% • Rare @ 1×") {
		t.Errorf("missing thunder line in %q", text)
	}
}
