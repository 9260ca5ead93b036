// Package pcm holds raw audio segments as handed over by the capture side.
//
// A [Segment] stores interleaved samples normalized to [-1, 1] together with
// its sample rate and channel count. Everything downstream (VAD, feature
// extraction, deepfake scoring) works on the mono downmix returned by
// [Segment.Mono].
package pcm

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the engine sample rate in Hz.
const DefaultSampleRate = 16000

var (
	// ErrEmpty is returned when a segment would contain no samples.
	ErrEmpty = errors.New("pcm: empty segment")

	// ErrBadFormat is returned for invalid rate/channel/sample combinations.
	ErrBadFormat = errors.New("pcm: bad format")
)

// Segment is an ordered sequence of PCM samples at a fixed sample rate.
//
// Samples are interleaved when Channels > 1. A Segment is never empty once
// constructed with [NewSegment] or [FromInt16LE].
type Segment struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// NewSegment validates and wraps samples. The slice is not copied.
func NewSegment(samples []float32, sampleRate, channels int) (*Segment, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrBadFormat, sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: channels must be at least 1, got %d", ErrBadFormat, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a multiple of %d channels", ErrBadFormat, len(samples), channels)
	}
	if i := firstNonFinite(samples); i >= 0 {
		return nil, fmt.Errorf("%w: sample %d is %v", ErrBadFormat, i, samples[i])
	}
	return &Segment{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil
}

// FromInt16LE decodes signed 16-bit little-endian PCM bytes.
func FromInt16LE(data []byte, sampleRate, channels int) (*Segment, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d for 16-bit audio", ErrBadFormat, len(data))
	}
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(data[2*i]) | int16(data[2*i+1])<<8
		samples[i] = float32(s) / 32768.0
	}
	return NewSegment(samples, sampleRate, channels)
}

// Frames returns the number of samples per channel.
func (s *Segment) Frames() int {
	return len(s.Samples) / s.Channels
}

// Duration returns the playback duration of the segment.
func (s *Segment) Duration() time.Duration {
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.SampleRate)
}

// Mono returns the channel average as a new slice. For mono input the
// samples are copied so callers may modify the result.
func (s *Segment) Mono() []float32 {
	frames := s.Frames()
	out := make([]float32, frames)
	if s.Channels == 1 {
		copy(out, s.Samples)
		return out
	}
	inv := 1 / float32(s.Channels)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * s.Channels
		for c := 0; c < s.Channels; c++ {
			sum += s.Samples[base+c]
		}
		out[i] = sum * inv
	}
	return out
}

// Validate checks a segment built without [NewSegment].
func (s *Segment) Validate() error {
	if s == nil || len(s.Samples) == 0 {
		return ErrEmpty
	}
	_, err := NewSegment(s.Samples, s.SampleRate, s.Channels)
	return err
}

// firstNonFinite returns the index of the first NaN or infinite sample, or
// -1.
func firstNonFinite(samples []float32) int {
	for i, v := range samples {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

// Int16LE encodes the segment as signed 16-bit little-endian PCM,
// clipping samples outside [-1, 1].
func (s *Segment) Int16LE() []byte {
	return Float32ToInt16LE(s.Samples)
}

// Float32ToInt16LE converts normalized samples to PCM16 bytes.
func Float32ToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := f * 32767
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		s := int16(v)
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
