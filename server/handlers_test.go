package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"soundscape/core/catalog"
	"soundscape/core/compose"
	"soundscape/model"
)

func newComposeHandler() *APIHandler {
	cat := catalog.New(catalog.DefaultLibrary(), nil)
	return &APIHandler{catalog: cat, composer: compose.New(cat)}
}

func TestDeviceMiddlewareAssignsCookie(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = deviceID(r)
	})

	rec := httptest.NewRecorder()
	DeviceMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("no device id on context")
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == deviceCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("device cookie not set")
	}
	if cookie.Value != seen || !cookie.HttpOnly {
		t.Fatalf("cookie = %+v, context id = %q", cookie, seen)
	}
}

func TestDeviceMiddlewareKeepsExistingCookie(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = deviceID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: deviceCookieName, Value: "stable-id"})
	rec := httptest.NewRecorder()
	DeviceMiddleware(next).ServeHTTP(rec, req)

	if seen != "stable-id" {
		t.Fatalf("device id = %q, want stable-id", seen)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == deviceCookieName {
			t.Fatal("cookie must not be reissued for a returning device")
		}
	}
}

func TestComposeHandlerDeterministic(t *testing.T) {
	h := newComposeHandler()

	post := func() mixResponse {
		body := `{"mood":"Nature","durationMinutes":30,"seed":"42"}`
		req := httptest.NewRequest(http.MethodPost, "/api/compose", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ComposeHandler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var resp mixResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	a, b := post(), post()
	if len(a.Tracks) == 0 {
		t.Fatal("compose returned an empty mix")
	}
	if len(a.Tracks) != len(b.Tracks) {
		t.Fatalf("non-deterministic track count: %d vs %d", len(a.Tracks), len(b.Tracks))
	}
	for i := range a.Tracks {
		if a.Tracks[i] != b.Tracks[i] {
			t.Fatalf("track %d differs: %+v vs %+v", i, a.Tracks[i], b.Tracks[i])
		}
	}
	if a.Recipe == "" || !strings.Contains(a.Recipe, "Seed=42") {
		t.Fatalf("recipe = %q", a.Recipe)
	}
}

func TestComposeHandlerRejectsUnknownMood(t *testing.T) {
	h := newComposeHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/compose",
		strings.NewReader(`{"mood":"Party","durationMinutes":30,"seed":"x"}`))
	rec := httptest.NewRecorder()
	h.ComposeHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExportRequestToMix(t *testing.T) {
	req := exportRequest{
		Seed: "s", Mood: "Focus", DurationMinutes: 15, MasterVolume: 0.7,
		Tracks: []model.TrackSpec{
			{ID: "t1", LibraryID: "rain", Type: model.AssetLoop, AssetID: "rain_soft_loop_01", Volume: 0.5},
			{ID: "t2", LibraryID: "thunder", Type: model.AssetEvent, AssetID: "thunder_distant_roll_01",
				Volume: 0.28, RatePreset: model.RateRare},
		},
	}
	mix, err := req.toMix()
	if err != nil {
		t.Fatal(err)
	}
	if len(mix.Tracks) != 2 || mix.MasterVolume != 0.7 {
		t.Fatalf("mix = %+v", mix)
	}
	if _, ok := mix.Tracks[1].(model.EventTrack); !ok {
		t.Fatalf("track 2 has type %T", mix.Tracks[1])
	}
}

func TestExportRequestRejectsEmptyAndBadTracks(t *testing.T) {
	if _, err := (exportRequest{Seed: "s", DurationMinutes: 15}).toMix(); err == nil {
		t.Fatal("empty track list accepted")
	}
	bad := exportRequest{
		Seed: "s", DurationMinutes: 15,
		Tracks: []model.TrackSpec{{ID: "t1", Type: "granular"}},
	}
	if _, err := bad.toMix(); err == nil {
		t.Fatal("unknown track type accepted")
	}
}

func TestExportRequestDefaultsMasterVolume(t *testing.T) {
	req := exportRequest{
		Seed: "s", DurationMinutes: 15,
		Tracks: []model.TrackSpec{
			{ID: "t1", LibraryID: "rain", Type: model.AssetLoop, AssetID: "rain_soft_loop_01", Volume: 0.5},
		},
	}
	mix, err := req.toMix()
	if err != nil {
		t.Fatal(err)
	}
	if mix.MasterVolume != 0.8 {
		t.Fatalf("master = %v, want default 0.8", mix.MasterVolume)
	}
}
