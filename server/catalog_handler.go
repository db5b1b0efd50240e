package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"soundscape/core/compose"
	"soundscape/logger"
	"soundscape/model"
	"soundscape/storage"
)

// LibraryHandler lists the sound library with current availability.
func (h *APIHandler) LibraryHandler(w http.ResponseWriter, r *http.Request) {
	type assetView struct {
		model.Asset
		Available bool `json:"available"`
	}
	type entryView struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		Kind           model.AssetKind `json:"kind"`
		DefaultAssetID string          `json:"defaultAssetId"`
		Assets         []assetView     `json:"assets"`
	}

	entries := h.catalog.Entries()
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		ev := entryView{ID: e.ID, Name: e.Name, Kind: e.Kind, DefaultAssetID: e.DefaultAssetID}
		for _, a := range e.Assets {
			ev.Assets = append(ev.Assets, assetView{
				Asset:     a,
				Available: h.catalog.Available(e.Kind, e.ID, a.ID),
			})
		}
		out = append(out, ev)
	}
	writeJSON(w, http.StatusOK, out)
}

// MoodsHandler lists the mood presets.
func (h *APIHandler) MoodsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, compose.Moods())
}

type composeRequest struct {
	Mood            string `json:"mood"`
	DurationMinutes int    `json:"durationMinutes"`
	Seed            string `json:"seed"`
}

type mixResponse struct {
	Seed            string            `json:"seed"`
	Mood            string            `json:"mood"`
	DurationMinutes int               `json:"durationMinutes"`
	MasterVolume    float64           `json:"masterVolume"`
	Tracks          []model.TrackSpec `json:"tracks"`
	Recipe          string            `json:"recipe"`
}

func mixToResponse(mix model.Mix) mixResponse {
	specs := make([]model.TrackSpec, 0, len(mix.Tracks))
	for _, t := range mix.Tracks {
		specs = append(specs, model.SpecOf(t))
	}
	return mixResponse{
		Seed:            mix.Seed,
		Mood:            mix.Mood,
		DurationMinutes: mix.DurationMinutes,
		MasterVolume:    mix.MasterVolume,
		Tracks:          specs,
		Recipe:          compose.RecipeText(mix),
	}
}

// ComposeHandler generates a deterministic mix for (mood, duration, seed).
func (h *APIHandler) ComposeHandler(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mood := compose.Mood(req.Mood)
	if !mood.Valid() {
		writeError(w, http.StatusBadRequest, "unknown mood")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 30
	}

	mix := h.composer.Compose(mood, req.DurationMinutes, req.Seed)
	writeJSON(w, http.StatusOK, mixToResponse(mix))
}

// AssetHandler streams a source recording, preferring the local mirror and
// falling back to the asset bucket.
func (h *APIHandler) AssetHandler(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/assets/")
	if objectPath == "" || strings.Contains(objectPath, "..") {
		writeError(w, http.StatusBadRequest, "invalid asset path")
		return
	}

	if h.cfg.AssetDir != "" {
		local := filepath.Join(h.cfg.AssetDir, filepath.FromSlash(objectPath))
		if _, err := os.Stat(local); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=31536000")
			http.ServeFile(w, r, local)
			return
		}
	}

	client := storage.GetMinioClient()
	if client == nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, h.cfg.AssetBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	defer object.Close()

	if _, err := object.Stat(); err != nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("asset stream interrupted",
			logger.String("object", objectPath), logger.ErrorField(err))
	}
}

func contentTypeFor(objectPath string) string {
	switch strings.ToLower(filepath.Ext(objectPath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
