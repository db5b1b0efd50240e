package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output is a sink that pulls interleaved 16-bit LE stereo frames from a
// reader and plays them. The engine never pushes: backpressure comes from the
// device's own pull rate.
type Output interface {
	Start(src io.Reader) error
	Close() error
}

// OtoOutput plays through the ebitengine/oto backend (ALSA, CoreAudio or
// WASAPI depending on platform).
type OtoOutput struct {
	sampleRate int
	ctx        *oto.Context
	player     *oto.Player
}

func NewOtoOutput(sampleRate int) *OtoOutput {
	return &OtoOutput{sampleRate: sampleRate}
}

func (o *OtoOutput) Start(src io.Reader) error {
	op := &oto.NewContextOptions{
		SampleRate:   o.sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("audio device not ready after 5s")
	}

	o.ctx = ctx
	o.player = ctx.NewPlayer(src)
	o.player.Play()
	return nil
}

func (o *OtoOutput) Close() error {
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	return err
}
