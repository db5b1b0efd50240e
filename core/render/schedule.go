// Package render produces deterministic WAV exports from a mix description.
package render

import (
	"soundscape/core/seeded"
	"soundscape/model"
)

// Fire is one scheduled one-shot: an absolute time from export start and the
// asset variant to play.
type Fire struct {
	At      float64 // seconds
	AssetID string
}

// thunder variant weights for randomized event tracks
const (
	thunderDistantID = "thunder_distant_roll_01"
	thunderCloseID   = "thunder_close_strike_01"
	thunderDistantP  = 0.7
)

// FireStream generates an event track's fires one at a time. Both the offline
// renderer and the live engine consume the same stream, so their draw order
// can never diverge.
//
// Draw order per fire is fixed: variant draw (when randomized) first, then
// the gap to the next fire.
type FireStream struct {
	rng      *seeded.Stream
	track    model.EventTrack
	min, max float64
	at       float64
}

// NewFireStream seeds a stream for one event track. The schedule derives only
// from (seed, track id, track rate parameters): never from chunk index or
// wall clock, which is what keeps chunked rendering byte-identical to a
// single pass.
func NewFireStream(seed string, t model.EventTrack) *FireStream {
	rng := seeded.ForTrack(seed, t.TrackID())
	min, max := t.Rate.IntervalRange()
	speed := t.SpeedOrDefault()
	return &FireStream{
		rng:   rng,
		track: t,
		min:   min / speed,
		max:   max / speed,
		at:    0.8 + rng.Float()*1.2,
	}
}

// Next returns the next fire and advances the stream.
func (s *FireStream) Next() Fire {
	assetID := s.track.AssetID
	if s.track.RandomizeVariants {
		if s.rng.Chance(thunderDistantP) {
			assetID = thunderDistantID
		} else {
			assetID = thunderCloseID
		}
	}
	f := Fire{At: s.at, AssetID: assetID}
	s.at += s.min + s.rng.Float()*(s.max-s.min)
	return f
}

// Peek returns the time of the next fire without consuming it.
func (s *FireStream) Peek() float64 { return s.at }

// EventSchedule computes every fire of an event track over the full export
// duration.
func EventSchedule(seed string, t model.EventTrack, durationSec float64) []Fire {
	stream := NewFireStream(seed, t)
	var fires []Fire
	for stream.Peek() < durationSec {
		fires = append(fires, stream.Next())
	}
	return fires
}
