package catalog

import (
	"context"
	"testing"

	"soundscape/model"
)

type fixedProber struct {
	ok map[string]bool
}

func (p fixedProber) Probe(_ context.Context, objectPath string) bool {
	return p.ok[objectPath]
}

func TestObjectPathConvention(t *testing.T) {
	cases := []struct {
		kind    model.AssetKind
		library string
		asset   string
		want    string
	}{
		{model.AssetLoop, "rain", "rain_soft_loop_01", "loops/rain/rain_soft_loop_01.mp3"},
		{model.AssetEvent, "thunder", "thunder_distant_roll_01", "events/thunder/thunder_distant_roll_01.mp3"},
		// event libraries registered as "<folder>_events" collapse to the folder
		{model.AssetEvent, "birds_events", "birds_call_01", "events/birds/birds_call_01.mp3"},
	}
	for _, c := range cases {
		if got := ObjectPath(c.kind, c.library, c.asset, ""); got != c.want {
			t.Errorf("ObjectPath(%s, %s, %s) = %q, want %q", c.kind, c.library, c.asset, got, c.want)
		}
	}
}

func TestURLFor(t *testing.T) {
	track := model.LoopTrack{ID: "t1", LibraryID: "rain", AssetID: "rain_soft_loop_01"}
	if got, want := URLFor(track), "/assets/loops/rain/rain_soft_loop_01.mp3"; got != want {
		t.Errorf("URLFor = %q, want %q", got, want)
	}
}

func TestAvailabilitySnapshot(t *testing.T) {
	prober := fixedProber{ok: map[string]bool{
		"loops/rain/rain_soft_loop_01.mp3": true,
	}}
	c := New(DefaultLibrary(), prober)
	c.Refresh(context.Background())

	if !c.Available(model.AssetLoop, "rain", "rain_soft_loop_01") {
		t.Error("probed asset should be available")
	}
	if c.Available(model.AssetLoop, "rain", "rain_medium_loop_01") {
		t.Error("asset the prober rejected should be unavailable")
	}
	// never-probed assets stay optimistic
	if !c.Available(model.AssetLoop, "rain", "rain_heavy_loop_99") {
		t.Error("unknown asset should default to available")
	}
}

func TestMarkAvailableOverridesSnapshot(t *testing.T) {
	c := New(DefaultLibrary(), fixedProber{ok: map[string]bool{}})
	c.Refresh(context.Background())

	if c.Available(model.AssetLoop, "wind", "wind_soft_trees_loop_01") {
		t.Fatal("expected wind asset unavailable after refresh")
	}
	c.MarkAvailable("loops/wind/wind_soft_trees_loop_01.mp3", true)
	if !c.Available(model.AssetLoop, "wind", "wind_soft_trees_loop_01") {
		t.Fatal("MarkAvailable did not take effect")
	}
}

func TestDefaultLibraryShape(t *testing.T) {
	c := New(DefaultLibrary(), nil)
	entry, ok := c.Entry("thunder")
	if !ok {
		t.Fatal("thunder entry missing")
	}
	if entry.Kind != model.AssetEvent {
		t.Errorf("thunder kind = %s, want event", entry.Kind)
	}
	for _, e := range c.Entries() {
		found := false
		for _, a := range e.Assets {
			if a.ID == e.DefaultAssetID {
				found = true
			}
		}
		if !found {
			t.Errorf("entry %s default asset %s not in its asset list", e.ID, e.DefaultAssetID)
		}
	}
}
