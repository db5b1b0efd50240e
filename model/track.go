package model

import (
	"encoding/json"
	"fmt"
)

// RatePreset controls how often an event track fires.
type RatePreset string

const (
	RateRare      RatePreset = "Rare"
	RateMedium    RatePreset = "Medium"
	RateOften     RatePreset = "Often"
	RateVeryOften RatePreset = "Very Often"
)

// IntervalRange returns the closed [min,max] range in seconds between
// consecutive one-shots for the preset, before the speed divisor.
func (p RatePreset) IntervalRange() (min, max float64) {
	switch p {
	case RateMedium:
		return 20, 45
	case RateOften:
		return 10, 20
	case RateVeryOften:
		return 5, 10
	default: // RateRare and anything unrecognized
		return 45, 90
	}
}

// Valid reports whether p is one of the four known presets.
func (p RatePreset) Valid() bool {
	switch p {
	case RateRare, RateMedium, RateOften, RateVeryOften:
		return true
	}
	return false
}

// Track is the tagged union of LoopTrack and EventTrack. Rate parameters only
// exist on event tracks, so code that needs them must type-switch.
type Track interface {
	TrackID() string
	Kind() AssetKind
	Library() string
	Asset() string
	Gain() float64
}

// LoopTrack is a continuously looped ambient bed.
type LoopTrack struct {
	ID        string
	LibraryID string
	Name      string
	AssetID   string
	Volume    float64 // 0..1
}

func (t LoopTrack) TrackID() string { return t.ID }
func (t LoopTrack) Kind() AssetKind { return AssetLoop }
func (t LoopTrack) Library() string { return t.LibraryID }
func (t LoopTrack) Asset() string   { return t.AssetID }
func (t LoopTrack) Gain() float64   { return t.Volume }

// EventTrack is a sparse one-shot sound fired on a seeded schedule.
type EventTrack struct {
	ID        string
	LibraryID string
	Name      string
	AssetID   string
	Volume    float64 // 0..1

	Rate              RatePreset
	Speed             float64 // interval divisor: 0.5, 1 or 2
	RandomizeVariants bool
}

func (t EventTrack) TrackID() string { return t.ID }
func (t EventTrack) Kind() AssetKind { return AssetEvent }
func (t EventTrack) Library() string { return t.LibraryID }
func (t EventTrack) Asset() string   { return t.AssetID }
func (t EventTrack) Gain() float64   { return t.Volume }

// SpeedOrDefault treats a zero speed as 1x.
func (t EventTrack) SpeedOrDefault() float64 {
	if t.Speed <= 0 {
		return 1
	}
	return t.Speed
}

// TrackSpec is the wire representation of a track. The optional fields are
// only meaningful when Type is "event".
type TrackSpec struct {
	ID        string    `json:"id"`
	LibraryID string    `json:"libraryId"`
	Name      string    `json:"name"`
	Type      AssetKind `json:"type"`
	AssetID   string    `json:"assetId"`
	Volume    float64   `json:"volume"`

	RatePreset        RatePreset `json:"ratePreset,omitempty"`
	RateSpeed         float64    `json:"rateSpeed,omitempty"`
	RandomizeVariants bool       `json:"randomizeVariants,omitempty"`
}

// ToTrack converts the wire form into the typed union.
func (s TrackSpec) ToTrack() (Track, error) {
	switch s.Type {
	case AssetLoop:
		return LoopTrack{
			ID:        s.ID,
			LibraryID: s.LibraryID,
			Name:      s.Name,
			AssetID:   s.AssetID,
			Volume:    s.Volume,
		}, nil
	case AssetEvent:
		rate := s.RatePreset
		if rate == "" {
			rate = RateRare
		}
		if !rate.Valid() {
			return nil, fmt.Errorf("unknown rate preset %q", s.RatePreset)
		}
		return EventTrack{
			ID:                s.ID,
			LibraryID:         s.LibraryID,
			Name:              s.Name,
			AssetID:           s.AssetID,
			Volume:            s.Volume,
			Rate:              rate,
			Speed:             s.RateSpeed,
			RandomizeVariants: s.RandomizeVariants,
		}, nil
	default:
		return nil, fmt.Errorf("unknown track type %q", s.Type)
	}
}

// SpecOf converts a typed track back into the wire form.
func SpecOf(t Track) TrackSpec {
	switch v := t.(type) {
	case LoopTrack:
		return TrackSpec{
			ID: v.ID, LibraryID: v.LibraryID, Name: v.Name,
			Type: AssetLoop, AssetID: v.AssetID, Volume: v.Volume,
		}
	case EventTrack:
		return TrackSpec{
			ID: v.ID, LibraryID: v.LibraryID, Name: v.Name,
			Type: AssetEvent, AssetID: v.AssetID, Volume: v.Volume,
			RatePreset: v.Rate, RateSpeed: v.Speed, RandomizeVariants: v.RandomizeVariants,
		}
	default:
		return TrackSpec{}
	}
}

// DecodeTracks parses a JSON track list into the typed union.
func DecodeTracks(data []byte) ([]Track, error) {
	var specs []TrackSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode track list: %w", err)
	}
	tracks := make([]Track, 0, len(specs))
	for _, s := range specs {
		t, err := s.ToTrack()
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}
