package vad

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

var (
	// ErrNoSpeech is returned when no frame is active.
	ErrNoSpeech = errors.New("vad: no speech detected")

	// ErrInsufficientSpeech is returned when active speech is shorter than
	// the minimum duration.
	ErrInsufficientSpeech = errors.New("vad: insufficient speech")

	// ErrSegmentTooShort is returned when the input cannot fill one frame.
	ErrSegmentTooShort = errors.New("vad: segment shorter than one frame")
)

// Config controls the detector.
type Config struct {
	SampleRate      int
	FrameDuration   time.Duration
	HopDuration     time.Duration
	NoisePercentile float64
	NoiseMultiplier float64
	PeakRatio       float64
	EnergyFloor     float64
}

// DefaultConfig returns 20 ms non-overlapping frames at 16 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:      pcm.DefaultSampleRate,
		FrameDuration:   20 * time.Millisecond,
		HopDuration:     20 * time.Millisecond,
		NoisePercentile: 0.1,
		NoiseMultiplier: 4.0,
		PeakRatio:       0.01,
		EnergyFloor:     1e-6,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	case c.FrameDuration <= 0:
		return fmt.Errorf("vad: frame duration must be positive, got %s", c.FrameDuration)
	case c.HopDuration <= 0 || c.HopDuration > c.FrameDuration:
		return fmt.Errorf("vad: hop %s must be in (0, frame %s]", c.HopDuration, c.FrameDuration)
	case c.NoisePercentile < 0 || c.NoisePercentile > 1:
		return fmt.Errorf("vad: noise percentile %g outside [0, 1]", c.NoisePercentile)
	case c.NoiseMultiplier < 1:
		return fmt.Errorf("vad: noise multiplier %g must be >= 1", c.NoiseMultiplier)
	case c.PeakRatio < 0 || c.PeakRatio >= 1:
		return fmt.Errorf("vad: peak ratio %g outside [0, 1)", c.PeakRatio)
	case c.EnergyFloor < 0:
		return fmt.Errorf("vad: energy floor %g must be >= 0", c.EnergyFloor)
	}
	if c.frameLen() == 0 {
		return fmt.Errorf("vad: frame %s is shorter than one sample at %d Hz", c.FrameDuration, c.SampleRate)
	}
	return nil
}

func (c Config) frameLen() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

func (c Config) hopLen() int {
	return max(1, int(int64(c.SampleRate)*int64(c.HopDuration)/int64(time.Second)))
}

// Detector is an energy-based voice activity detector. It holds no mutable
// state and is safe for concurrent use.
type Detector struct {
	cfg      Config
	frameLen int
	hopLen   int
}

// New creates a Detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, frameLen: cfg.frameLen(), hopLen: cfg.hopLen()}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect returns the active frames of seg. A segment without speech yields
// an empty Speech and a nil error.
func (d *Detector) Detect(seg *pcm.Segment) (*Speech, error) {
	if err := seg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	if seg.SampleRate != d.cfg.SampleRate {
		return nil, fmt.Errorf("vad: %w: segment at %d Hz, detector at %d Hz", pcm.ErrBadFormat, seg.SampleRate, d.cfg.SampleRate)
	}

	mono := seg.Mono()
	if len(mono) < d.frameLen {
		return nil, fmt.Errorf("%w: %d samples, frame is %d", ErrSegmentTooShort, len(mono), d.frameLen)
	}
	removeDC(mono)

	n := (len(mono)-d.frameLen)/d.hopLen + 1
	energies := make([]float64, n)
	for i := range n {
		energies[i] = meanSquare(mono[i*d.hopLen : i*d.hopLen+d.frameLen])
	}
	threshold := d.threshold(energies)

	sp := &Speech{sampleRate: seg.SampleRate, frameLen: d.frameLen}
	for i, e := range energies {
		if e <= threshold {
			continue
		}
		start := i * d.hopLen
		sp.frames = append(sp.frames, Frame{
			Index:   i,
			Start:   start,
			Samples: mono[start : start+d.frameLen],
			Energy:  e,
		})
	}
	sp.threshold = threshold
	return sp, nil
}

func (d *Detector) threshold(energies []float64) float64 {
	sorted := slices.Clone(energies)
	slices.Sort(sorted)
	peak := sorted[len(sorted)-1]
	noise := sorted[int(d.cfg.NoisePercentile*float64(len(sorted)-1))]

	return max(
		min(noise*d.cfg.NoiseMultiplier, 0.5*peak),
		d.cfg.PeakRatio*peak,
		d.cfg.EnergyFloor,
	)
}

func removeDC(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(x)))
	for i := range x {
		x[i] -= mean
	}
}

func meanSquare(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return sum / float64(len(x))
}

// EnergyDB converts a mean-square energy to decibels relative to full
// scale, floored at -120.
func EnergyDB(e float64) float64 {
	if e <= 1e-12 {
		return -120
	}
	return 10 * math.Log10(e)
}
