// Package catalog holds the static asset table and its availability snapshot.
// Everything else consumes it read-only; composition treats the snapshot as a
// deterministic input for a given run.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"soundscape/logger"
	"soundscape/model"
)

// Prober answers whether an asset object currently exists in the backing
// store (local mirror directory or object storage).
type Prober interface {
	Probe(ctx context.Context, objectPath string) bool
}

// Entry is one library slot the user (or the composer) can add to a mix,
// e.g. "rain" with its selectable asset variants.
type Entry struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           model.AssetKind `json:"kind"`
	DefaultAssetID string          `json:"defaultAssetId"`
	Assets         []model.Asset   `json:"assets"`
}

// Catalog is the library plus a refreshable availability snapshot.
type Catalog struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	order     []string
	available map[string]bool // key: object path
	prober    Prober
}

// New builds a catalog over the given entries. With a nil prober every asset
// is considered available.
func New(entries []Entry, prober Prober) *Catalog {
	c := &Catalog{
		entries:   make(map[string]Entry, len(entries)),
		order:     make([]string, 0, len(entries)),
		available: make(map[string]bool),
		prober:    prober,
	}
	for _, e := range entries {
		c.entries[e.ID] = e
		c.order = append(c.order, e.ID)
	}
	return c
}

// folderFor maps a library id to its asset folder. Event libraries may be
// registered as "<folder>_events".
func folderFor(libraryID string) string {
	return strings.TrimSuffix(libraryID, "_events")
}

// ObjectPath is the fixed naming convention binding (kind, library, assetId)
// to a storage key: {loops|events}/{folder}/{assetId}.{ext}.
func ObjectPath(kind model.AssetKind, libraryID, assetID, ext string) string {
	base := "loops"
	if kind == model.AssetEvent {
		base = "events"
	}
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s/%s/%s.%s", base, folderFor(libraryID), assetID, ext)
}

// URLFor returns the playback URL for a track's current asset.
func URLFor(t model.Track) string {
	return "/assets/" + ObjectPath(t.Kind(), t.Library(), t.Asset(), "")
}

// TrackObjectPath returns the storage object path for a track's current asset.
func TrackObjectPath(t model.Track) string {
	return ObjectPath(t.Kind(), t.Library(), t.Asset(), "")
}

// Entry returns a library entry by id.
func (c *Catalog) Entry(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Entries returns the library in registration order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Refresh re-probes every asset and swaps in a fresh availability snapshot.
func (c *Catalog) Refresh(ctx context.Context) {
	if c.prober == nil {
		return
	}

	next := make(map[string]bool)
	for _, e := range c.Entries() {
		for _, a := range e.Assets {
			path := ObjectPath(e.Kind, e.ID, a.ID, a.Ext)
			next[path] = c.prober.Probe(ctx, path)
		}
	}

	c.mu.Lock()
	c.available = next
	c.mu.Unlock()

	logger.Debug("asset availability refreshed", logger.Int("assets", len(next)))
}

// Available reports whether the asset at (kind, library, assetId) exists.
// Assets never probed (no prober, or added after the last refresh) default to
// available so a cold snapshot doesn't silence the whole library.
func (c *Catalog) Available(kind model.AssetKind, libraryID, assetID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ok, probed := c.available[ObjectPath(kind, libraryID, assetID, "")]
	if !probed {
		return true
	}
	return ok
}

// MarkAvailable overrides one asset's availability. Used by the fsnotify
// watcher for incremental updates between full refreshes.
func (c *Catalog) MarkAvailable(objectPath string, ok bool) {
	c.mu.Lock()
	c.available[objectPath] = ok
	c.mu.Unlock()
}
