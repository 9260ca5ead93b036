// Package wav reads and writes WAV files as [pcm.Segment] values.
//
// Decoding accepts integer PCM at 8, 16, 24 or 32 bits with any channel
// count. [Load] additionally resamples to the engine rate, which is what the
// CLI and the HTTP service use for every uploaded sample.
package wav

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/resampler"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Decode reads a complete WAV stream into a segment at its native rate.
func Decode(r io.ReadSeeker) (*pcm.Segment, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("wav: %w: not a valid wav stream", pcm.ErrBadFormat)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("wav: %w: unsupported audio format %d", pcm.ErrBadFormat, d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav: read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("wav: %w", pcm.ErrEmpty)
	}

	depth := int(d.BitDepth)
	samples := make([]float32, len(buf.Data))
	switch depth {
	case 8:
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	case 16, 24, 32:
		scale := float32(int64(1) << (depth - 1))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	default:
		return nil, fmt.Errorf("wav: %w: unsupported bit depth %d", pcm.ErrBadFormat, depth)
	}
	return pcm.NewSegment(samples, buf.Format.SampleRate, buf.Format.NumChannels)
}

// DecodeBytes is Decode over an in-memory WAV file.
func DecodeBytes(data []byte) (*pcm.Segment, error) {
	return Decode(bytes.NewReader(data))
}

// Load decodes r and resamples the result to rate.
func Load(r io.ReadSeeker, rate int) (*pcm.Segment, error) {
	seg, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return resampler.Resample(seg, rate)
}

// LoadFile opens path and calls Load.
func LoadFile(path string, rate int) (*pcm.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seg, err := Load(f, rate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seg, nil
}

// Encode writes seg as 16-bit integer PCM.
func Encode(w io.WriteSeeker, seg *pcm.Segment) error {
	enc := wav.NewEncoder(w, seg.SampleRate, 16, seg.Channels, formatPCM)
	data := make([]int, len(seg.Samples))
	for i, s := range seg.Samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		data[i] = int(s * 32767)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: seg.Channels,
			SampleRate:  seg.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav: write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: close: %w", err)
	}
	return nil
}

// WriteFile encodes seg into a new file at path.
func WriteFile(path string, seg *pcm.Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, seg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
