package audio

import (
	"encoding/binary"
	"fmt"
)

// InfoTags are the free-text fields embedded in a WAV LIST/INFO chunk.
// Empty fields are omitted from the container.
type InfoTags struct {
	Title        string // INAM
	Artist       string // IART
	Product      string // IPRD
	Comment      string // ICMT
	CreationDate string // ICRD
	Software     string // ISFT
}

func (t InfoTags) pairs() [][2]string {
	all := [][2]string{
		{"INAM", t.Title},
		{"IART", t.Artist},
		{"IPRD", t.Product},
		{"ICMT", t.Comment},
		{"ICRD", t.CreationDate},
		{"ISFT", t.Software},
	}
	out := make([][2]string, 0, len(all))
	for _, p := range all {
		if p[1] != "" {
			out = append(out, p)
		}
	}
	return out
}

func (t InfoTags) empty() bool { return len(t.pairs()) == 0 }

// EncodeWAV wraps interleaved 16-bit PCM in a RIFF/WAVE container:
// fmt subchunk, optional LIST/INFO metadata, then data. Odd-length payloads
// carry a pad byte that is counted in the enclosing RIFF size but not in the
// subchunk's own size field.
func EncodeWAV(samples []int16, sampleRate, channels int, tags InfoTags) []byte {
	const bytesPerSample = 2
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign
	dataSize := len(samples) * bytesPerSample
	dataPad := dataSize % 2

	listSize := 0
	if !tags.empty() {
		listSize = 4 // "INFO"
		for _, p := range tags.pairs() {
			n := len(p[1]) + 1 // NUL terminated
			listSize += 8 + n + n%2
		}
	}

	riffSize := 4 + (8 + 16) + (8 + dataSize + dataPad)
	if listSize > 0 {
		riffSize += 8 + listSize + listSize%2
	}

	buf := make([]byte, 0, 8+riffSize)
	le := binary.LittleEndian

	put32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	put16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, "RIFF"...)
	put32(uint32(riffSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	put32(16)
	put16(1) // PCM
	put16(uint16(channels))
	put32(uint32(sampleRate))
	put32(uint32(byteRate))
	put16(uint16(blockAlign))
	put16(16) // bits per sample

	if listSize > 0 {
		buf = append(buf, "LIST"...)
		put32(uint32(listSize))
		buf = append(buf, "INFO"...)
		for _, p := range tags.pairs() {
			payload := append([]byte(p[1]), 0)
			buf = append(buf, p[0]...)
			put32(uint32(len(payload)))
			buf = append(buf, payload...)
			if len(payload)%2 == 1 {
				buf = append(buf, 0)
			}
		}
		if listSize%2 == 1 {
			buf = append(buf, 0)
		}
	}

	buf = append(buf, "data"...)
	put32(uint32(dataSize))
	for _, s := range samples {
		put16(uint16(s))
	}
	if dataPad == 1 {
		buf = append(buf, 0)
	}

	return buf
}

// WAVFile is a parsed RIFF/WAVE container.
type WAVFile struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []int16 // interleaved
	Info          map[string]string
}

// ParseWAV reads a 16-bit PCM RIFF/WAVE container, including LIST/INFO tags.
func ParseWAV(data []byte) (*WAVFile, error) {
	le := binary.LittleEndian
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	out := &WAVFile{Info: make(map[string]string)}
	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(le.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return nil, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too small: %d", size)
			}
			format := le.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			out.Channels = int(le.Uint16(data[body+2 : body+4]))
			out.SampleRate = int(le.Uint32(data[body+4 : body+8]))
			out.BitsPerSample = int(le.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "LIST":
			if size >= 4 && string(data[body:body+4]) == "INFO" {
				parseInfo(data[body+4:body+size], out.Info)
			}
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			if out.BitsPerSample != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d", out.BitsPerSample)
			}
			n := size / 2
			out.Samples = make([]int16, n)
			for i := 0; i < n; i++ {
				out.Samples[i] = int16(le.Uint16(data[body+i*2 : body+i*2+2]))
			}
		}

		pos = body + size + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	return out, nil
}

func parseInfo(data []byte, into map[string]string) {
	le := binary.LittleEndian
	pos := 0
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(le.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return
		}
		payload := data[body : body+size]
		// strip the NUL terminator
		for len(payload) > 0 && payload[len(payload)-1] == 0 {
			payload = payload[:len(payload)-1]
		}
		into[id] = string(payload)
		pos = body + size + size%2
	}
}

// ToBuffer converts parsed 16-bit PCM into a float32 stereo buffer.
func (w *WAVFile) ToBuffer() (*Buffer, error) {
	if w.Channels < 1 || w.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", w.Channels)
	}
	frames := len(w.Samples) / w.Channels
	l := make([]float32, frames)
	if w.Channels == 1 {
		for i := 0; i < frames; i++ {
			l[i] = float32(w.Samples[i]) / 32768
		}
		return NewMono(w.SampleRate, l), nil
	}
	r := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l[i] = float32(w.Samples[i*2]) / 32768
		r[i] = float32(w.Samples[i*2+1]) / 32768
	}
	return NewStereo(w.SampleRate, l, r), nil
}
