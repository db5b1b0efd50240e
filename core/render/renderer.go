package render

import (
	"context"
	"fmt"

	"soundscape/core/audio"
	"soundscape/core/catalog"
	"soundscape/logger"
	"soundscape/model"
)

const (
	// DefaultSampleRate is the fixed export sample rate.
	DefaultSampleRate = 44100
	// DefaultChunkSeconds bounds peak memory: one chunk of stereo float64
	// accumulation at a time.
	DefaultChunkSeconds = 60
	// loopEdgePad trims a small guard from both loop edges to avoid decode
	// artifacts at the seam (mp3 padding).
	loopEdgePad = 0.02
)

// Progress is invoked after each chunk so a UI can show determinate progress.
type Progress func(chunksDone, chunksTotal int)

// Renderer renders a mix offline, as fast as the machine allows, in fixed
// time chunks. Identical (seed, track list, duration) input produces
// byte-identical PCM regardless of chunk size.
type Renderer struct {
	Loader       audio.Loader
	SampleRate   int
	ChunkSeconds int
}

// New creates a renderer with default rate and chunking over the given
// source loader (normally an audio.Cache).
func New(loader audio.Loader) *Renderer {
	return &Renderer{
		Loader:       loader,
		SampleRate:   DefaultSampleRate,
		ChunkSeconds: DefaultChunkSeconds,
	}
}

// loopVoice plays a cached buffer forever, looping between [pad, dur-pad].
type loopVoice struct {
	buf       *audio.Buffer
	gain      float64
	loopStart int
	loopEnd   int
}

// frameAt maps an absolute output frame to a source frame. Playback starts at
// frame zero, runs to loopEnd, then cycles the [loopStart, loopEnd) region.
// Being a pure function of the absolute position is what keeps loops
// phase-continuous across chunk boundaries.
func (v *loopVoice) frameAt(abs int) int {
	if abs < v.loopEnd {
		return abs
	}
	region := v.loopEnd - v.loopStart
	if region <= 0 {
		// degenerate source shorter than twice the edge pad
		if n := v.buf.Frames(); n > 0 {
			return abs % n
		}
		return 0
	}
	return v.loopStart + (abs-v.loopEnd)%region
}

// eventVoice is one scheduled one-shot occurrence.
type eventVoice struct {
	buf        *audio.Buffer
	gain       float64
	startFrame int
}

// Render produces the full interleaved 16-bit stereo PCM stream for the mix.
func (r *Renderer) Render(ctx context.Context, mix model.Mix, progress Progress) ([]int16, error) {
	sr := r.SampleRate
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	chunkSec := r.ChunkSeconds
	if chunkSec <= 0 {
		chunkSec = DefaultChunkSeconds
	}
	if mix.DurationMinutes <= 0 {
		return nil, fmt.Errorf("invalid export duration %d", mix.DurationMinutes)
	}

	durationSec := float64(mix.DurationMinutes) * 60
	totalFrames := mix.DurationMinutes * 60 * sr
	chunkFrames := chunkSec * sr
	totalChunks := (totalFrames + chunkFrames - 1) / chunkFrames

	loops, events, err := r.buildVoices(ctx, mix, sr, durationSec)
	if err != nil {
		return nil, err
	}

	// The output is pre-sized from the total duration and every chunk writes
	// at its computed offset, so a short render can never shift later chunks.
	out := make([]int16, totalFrames*2)
	acc := make([]float64, chunkFrames*2)

	master := clamp01(mix.MasterVolume)

	for chunk := 0; chunk < totalChunks; chunk++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := chunk * chunkFrames
		end := start + chunkFrames
		if end > totalFrames {
			end = totalFrames
		}
		frames := end - start

		for i := range acc[:frames*2] {
			acc[i] = 0
		}

		for _, v := range loops {
			for i := 0; i < frames; i++ {
				l, rr := v.buf.Sample(v.frameAt(start + i))
				acc[i*2] += float64(l) * v.gain
				acc[i*2+1] += float64(rr) * v.gain
			}
		}

		for _, v := range events {
			from := v.startFrame
			to := v.startFrame + v.buf.Frames()
			if to <= start || from >= end {
				continue
			}
			if from < start {
				from = start
			}
			if to > end {
				to = end
			}
			for abs := from; abs < to; abs++ {
				l, rr := v.buf.Sample(abs - v.startFrame)
				i := abs - start
				acc[i*2] += float64(l) * v.gain
				acc[i*2+1] += float64(rr) * v.gain
			}
		}

		for i := 0; i < frames*2; i++ {
			out[start*2+i] = pcm16(acc[i] * master)
		}

		if progress != nil {
			progress(chunk+1, totalChunks)
		}
	}

	return out, nil
}

// RenderWAV renders the mix and wraps it in a WAV container with the given
// metadata tags.
func (r *Renderer) RenderWAV(ctx context.Context, mix model.Mix, tags audio.InfoTags, progress Progress) ([]byte, error) {
	pcm, err := r.Render(ctx, mix, progress)
	if err != nil {
		return nil, err
	}
	sr := r.SampleRate
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	return audio.EncodeWAV(pcm, sr, 2, tags), nil
}

// buildVoices loads source buffers and lays out every loop and scheduled
// one-shot. A failed asset load skips that track rather than failing the
// export.
func (r *Renderer) buildVoices(ctx context.Context, mix model.Mix, sr int, durationSec float64) ([]*loopVoice, []*eventVoice, error) {
	var loops []*loopVoice
	var events []*eventVoice

	pad := int(loopEdgePad * float64(sr))

	for _, t := range mix.Tracks {
		switch tr := t.(type) {
		case model.LoopTrack:
			buf, err := r.Loader.Load(ctx, catalog.TrackObjectPath(tr))
			if err != nil {
				logger.Warn("skipping loop track, asset unavailable",
					logger.String("track", tr.ID), logger.ErrorField(err))
				continue
			}
			if buf.Frames() == 0 {
				continue
			}
			loopStart := pad
			loopEnd := buf.Frames() - pad
			if loopEnd < loopStart {
				loopStart, loopEnd = 0, buf.Frames()
			}
			loops = append(loops, &loopVoice{
				buf:       buf,
				gain:      clamp01(tr.Volume),
				loopStart: loopStart,
				loopEnd:   loopEnd,
			})

		case model.EventTrack:
			// The entire schedule derives from the seed and full duration up
			// front; chunking later only selects which fires land where.
			fires := EventSchedule(mix.Seed, tr, durationSec)
			gain := clamp01(tr.Volume)
			for _, f := range fires {
				buf, err := r.Loader.Load(ctx, catalog.ObjectPath(model.AssetEvent, tr.LibraryID, f.AssetID, ""))
				if err != nil {
					logger.Warn("skipping event fire, asset unavailable",
						logger.String("track", tr.ID), logger.String("asset", f.AssetID),
						logger.ErrorField(err))
					continue
				}
				events = append(events, &eventVoice{
					buf:        buf,
					gain:       gain,
					startFrame: int(f.At * float64(sr)),
				})
			}
		}
	}

	return loops, events, nil
}

// pcm16 converts a float sample to 16-bit PCM with a symmetric clamp and the
// standard asymmetric scale (the negative range is one step wider).
func pcm16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

func clamp01(v float64) float64 {
	if v != v {
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
