package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Decoder turns a source file into a PCM buffer at the requested sample rate.
type Decoder interface {
	DecodeFile(ctx context.Context, path string, sampleRate int) (*Buffer, error)
}

// FFmpegDecoder shells out to ffmpeg for compressed sources (mp3, flac, ...).
// WAV files are parsed natively so test environments don't need ffmpeg.
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a decoder using the given ffmpeg binary.
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

// DecodeFile decodes path into stereo float32 PCM at sampleRate.
func (d *FFmpegDecoder) DecodeFile(ctx context.Context, path string, sampleRate int) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return decodeWAVFile(path, sampleRate)
	}

	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "2",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed for %s: %w\nFFmpeg Error: %s", path, err, stderr.String())
	}

	raw := out.Bytes()
	frames := len(raw) / 8 // 2 channels * 4 bytes
	l := make([]float32, frames)
	r := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8 : i*8+4]))
		r[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8+4 : i*8+8]))
	}
	return NewStereo(sampleRate, l, r), nil
}

func decodeWAVFile(path string, sampleRate int) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	wav, err := ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if wav.SampleRate != sampleRate {
		return nil, fmt.Errorf("%s is %d Hz, expected %d Hz (resampling requires ffmpeg input)",
			path, wav.SampleRate, sampleRate)
	}
	return wav.ToBuffer()
}
