// Package compose turns (mood, duration, seed) into a concrete track list.
package compose

import (
	"fmt"

	"soundscape/core/catalog"
	"soundscape/core/seeded"
	"soundscape/model"
)

// Mood names a composition policy.
type Mood string

const (
	MoodSleep  Mood = "Sleep"
	MoodFocus  Mood = "Focus"
	MoodCozy   Mood = "Cozy"
	MoodNature Mood = "Nature"
)

// Valid reports whether m is a known mood.
func (m Mood) Valid() bool {
	switch m {
	case MoodSleep, MoodFocus, MoodCozy, MoodNature:
		return true
	}
	return false
}

// Moods lists every known mood.
func Moods() []Mood {
	return []Mood{MoodSleep, MoodFocus, MoodCozy, MoodNature}
}

// Composer deterministically selects tracks for a mood. The catalog's
// availability snapshot is an input: unavailable assets are skipped without
// consuming a slot, and a fallback bed guarantees a non-empty mix.
type Composer struct {
	cat *catalog.Catalog
}

// New creates a Composer over the given catalog.
func New(cat *catalog.Catalog) *Composer {
	return &Composer{cat: cat}
}

var bedLibraries = []string{"rain", "water", "wind", "fireplace"}

// Compose builds the mix for (mood, duration, seed).
//
// Decisions consume RNG draws in a fixed order: thunder layer, texture layer,
// second bed, primary bed choice, secondary bed choice, texture choice, then
// per-bed variant draws while adding. Reordering any of these changes every
// downstream mix for existing seeds, so it must never happen silently.
func (c *Composer) Compose(mood Mood, durationMin int, seed string) model.Mix {
	if seed == "" {
		seed = "default"
	}
	rng := seeded.New(fmt.Sprintf("%s|%d|%s", mood, durationMin, seed))

	allowThunder := mood == MoodNature && rng.Chance(0.6)

	textureP := 0.6
	if mood == MoodSleep {
		textureP = 0.25
	}
	includeTexture := mood != MoodCozy && rng.Chance(textureP)

	secondBedP := 0.55
	if mood == MoodCozy {
		secondBedP = 0.35
	}
	includeSecondBed := rng.Chance(secondBedP)

	var primaryBed string
	switch mood {
	case MoodCozy:
		primaryBed = "fireplace"
	case MoodFocus:
		primaryBed = pick(rng, []string{"rain", "water"})
	case MoodSleep:
		primaryBed = pick(rng, []string{"rain", "wind"})
	default:
		primaryBed = pick(rng, []string{"water", "wind", "rain"})
	}

	secondaryBed := ""
	if includeSecondBed {
		options := make([]string, 0, len(bedLibraries)-1)
		for _, b := range bedLibraries {
			if b == primaryBed {
				continue
			}
			if mood == MoodSleep && b == "fireplace" {
				continue
			}
			options = append(options, b)
		}
		secondaryBed = pick(rng, options)
	}

	texture := ""
	if includeTexture {
		if mood == MoodSleep {
			if rng.Chance(0.7) {
				texture = "insects"
			} else {
				texture = "birds"
			}
		} else {
			texture = pick(rng, []string{"birds", "insects"})
		}
	}
	if mood == MoodCozy {
		texture = ""
	}

	base := 0.5
	switch mood {
	case MoodSleep:
		base = 0.42
	case MoodCozy:
		base = 0.55
	}

	b := &mixBuilder{cat: c.cat}

	c.addBed(b, rng, mood, primaryBed, false, base)
	if secondaryBed != "" {
		c.addBed(b, rng, mood, secondaryBed, true, base)
	}

	switch texture {
	case "birds":
		b.addLoop("birds", "birds_morning_chirp_01", volFor(mood, 0.18, 0.28))
	case "insects":
		b.addLoop("insects", "insects_soft_night_loop_01", volFor(mood, 0.22, 0.25))
	}

	if allowThunder {
		b.addEvent("thunder", "thunder_distant_roll_01", 0.28, model.RateRare, 1)
	}

	// Never hand back an empty scene: if every probe failed, fall back to the
	// guaranteed rain bed.
	if len(b.tracks) == 0 {
		b.forceLoop("rain", "rain_soft_loop_01", 0.5)
	}

	return model.Mix{
		Seed:            seed,
		Mood:            string(mood),
		DurationMinutes: durationMin,
		MasterVolume:    0.8,
		Tracks:          b.tracks,
	}
}

// addBed adds one bed library, drawing the rain variant when needed. The
// variant draw happens before the availability check so a missing file does
// not shift later draws.
func (c *Composer) addBed(b *mixBuilder, rng *seeded.Stream, mood Mood, bed string, secondary bool, base float64) {
	vol := base
	if secondary {
		vol = base * 0.65
	}
	switch bed {
	case "rain":
		assetID := "rain_medium_loop_01"
		if rng.Chance(0.5) {
			assetID = "rain_soft_loop_01"
		}
		b.addLoop("rain", assetID, vol)
	case "water":
		b.addLoop("water", "water_stream_with_distant_birds_01", vol)
	case "wind":
		b.addLoop("wind", "wind_soft_trees_loop_01", vol)
	case "fireplace":
		if secondary {
			b.addLoop("fireplace", "fireplace_cozy_loop_01", base*0.5)
		} else {
			b.addLoop("fireplace", "fireplace_cozy_loop_01", volFor(mood, 0.38, 0.58))
		}
	}
}

func volFor(mood Mood, sleep, other float64) float64 {
	if mood == MoodSleep {
		return sleep
	}
	return other
}

func pick(rng *seeded.Stream, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[rng.PickIndex(len(options))]
}

// mixBuilder accumulates tracks with deterministic ids. Random ids would
// change per-track schedule sub-seeds between runs, so ids derive from the
// track's position and library instead.
type mixBuilder struct {
	cat    *catalog.Catalog
	tracks []model.Track
}

func (b *mixBuilder) nextID(libraryID string) string {
	return fmt.Sprintf("t%d_%s", len(b.tracks)+1, libraryID)
}

func (b *mixBuilder) available(kind model.AssetKind, libraryID, assetID string) bool {
	if b.cat == nil {
		return true
	}
	return b.cat.Available(kind, libraryID, assetID)
}

func (b *mixBuilder) name(libraryID string) string {
	if b.cat != nil {
		if e, ok := b.cat.Entry(libraryID); ok {
			return e.Name
		}
	}
	return libraryID
}

func (b *mixBuilder) addLoop(libraryID, assetID string, volume float64) bool {
	if !b.available(model.AssetLoop, libraryID, assetID) {
		return false
	}
	b.forceLoop(libraryID, assetID, volume)
	return true
}

func (b *mixBuilder) forceLoop(libraryID, assetID string, volume float64) {
	b.tracks = append(b.tracks, model.LoopTrack{
		ID:        b.nextID(libraryID),
		LibraryID: libraryID,
		Name:      b.name(libraryID),
		AssetID:   assetID,
		Volume:    clamp01(volume),
	})
}

func (b *mixBuilder) addEvent(libraryID, assetID string, volume float64, rate model.RatePreset, speed float64) bool {
	if !b.available(model.AssetEvent, libraryID, assetID) {
		return false
	}
	b.tracks = append(b.tracks, model.EventTrack{
		ID:        b.nextID(libraryID),
		LibraryID: libraryID,
		Name:      b.name(libraryID),
		AssetID:   assetID,
		Volume:    clamp01(volume),
		Rate:      rate,
		Speed:     speed,
	})
	return true
}

func clamp01(v float64) float64 {
	if v != v { // NaN
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
