package vad

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

const rate = 16000

// signal builds a mono segment from (seconds, amplitude) parts; amplitude 0
// is digital silence, anything else a 200 Hz tone.
func signal(t *testing.T, parts ...[2]float64) *pcm.Segment {
	t.Helper()
	var samples []float32
	for _, p := range parts {
		n := int(p[0] * rate)
		for i := 0; i < n; i++ {
			samples = append(samples, float32(p[1]*math.Sin(2*math.Pi*200*float64(i)/rate)))
		}
	}
	seg, err := pcm.NewSegment(samples, rate, 1)
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func newDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDetectSilenceIsEmpty(t *testing.T) {
	sp, err := newDetector(t, nil).Detect(signal(t, [2]float64{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if !sp.Empty() || sp.Len() != 0 || sp.Duration() != 0 {
		t.Fatalf("expected empty speech, got %d frames", sp.Len())
	}
	if err := sp.Require(500 * time.Millisecond); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("Require = %v, want ErrNoSpeech", err)
	}
}

func TestDetectToneInSilence(t *testing.T) {
	seg := signal(t, [2]float64{0.5, 0}, [2]float64{1, 0.5}, [2]float64{0.5, 0})
	sp, err := newDetector(t, nil).Detect(seg)
	if err != nil {
		t.Fatal(err)
	}
	if got := sp.Duration(); got < 980*time.Millisecond || got > 1020*time.Millisecond {
		t.Fatalf("Duration = %v, want ~1s", got)
	}
	for f := range sp.All() {
		if f.Start < int(0.48*rate) || f.End() > int(1.52*rate) {
			t.Fatalf("frame %d at %d..%d outside the tone", f.Index, f.Start, f.End())
		}
	}
	if err := sp.Require(500 * time.Millisecond); err != nil {
		t.Fatalf("Require: %v", err)
	}
	if err := sp.Require(2 * time.Second); !errors.Is(err, ErrInsufficientSpeech) {
		t.Fatalf("Require(2s) = %v, want ErrInsufficientSpeech", err)
	}
}

func TestDetectSteadyToneIsAllActive(t *testing.T) {
	sp, err := newDetector(t, nil).Detect(signal(t, [2]float64{1, 0.3}))
	if err != nil {
		t.Fatal(err)
	}
	if sp.Len() != 50 {
		t.Fatalf("Len = %d, want 50", sp.Len())
	}
}

func TestDetectTooShort(t *testing.T) {
	seg := signal(t, [2]float64{0.01, 0.5})
	if _, err := newDetector(t, nil).Detect(seg); !errors.Is(err, ErrSegmentTooShort) {
		t.Fatalf("err = %v, want ErrSegmentTooShort", err)
	}
}

func TestDetectRateMismatch(t *testing.T) {
	seg, _ := pcm.NewSegment(make([]float32, 8000), 8000, 1)
	if _, err := newDetector(t, nil).Detect(seg); !errors.Is(err, pcm.ErrBadFormat) {
		t.Fatalf("err = %v, want ErrBadFormat", err)
	}
}

func TestDetectRejectsNonFinite(t *testing.T) {
	seg := signal(t, [2]float64{1, 0.5})
	seg.Samples[100] = float32(math.NaN())
	if _, err := newDetector(t, nil).Detect(seg); !errors.Is(err, pcm.ErrBadFormat) {
		t.Fatalf("err = %v, want ErrBadFormat", err)
	}
	if _, err := newDetector(t, nil).Detect(nil); !errors.Is(err, pcm.ErrEmpty) {
		t.Fatalf("nil segment err = %v, want ErrEmpty", err)
	}
}

func TestEnergyDB(t *testing.T) {
	if got := EnergyDB(0); got != -120 {
		t.Fatalf("EnergyDB(0) = %g", got)
	}
	if got := EnergyDB(0.01); math.Abs(got+20) > 1e-9 {
		t.Fatalf("EnergyDB(0.01) = %g, want -20", got)
	}
}

func TestDetectDownmixesStereo(t *testing.T) {
	mono := signal(t, [2]float64{0.5, 0}, [2]float64{0.5, 0.5})
	stereo := make([]float32, 2*len(mono.Samples))
	for i, s := range mono.Samples {
		stereo[2*i] = s
		stereo[2*i+1] = s
	}
	seg, _ := pcm.NewSegment(stereo, rate, 2)
	sp, err := newDetector(t, nil).Detect(seg)
	if err != nil {
		t.Fatal(err)
	}
	if got := sp.Duration(); got < 480*time.Millisecond || got > 520*time.Millisecond {
		t.Fatalf("Duration = %v, want ~500ms", got)
	}
}

func TestOverlappingFramesCountedOnce(t *testing.T) {
	d := newDetector(t, func(c *Config) { c.HopDuration = 10 * time.Millisecond })
	sp, err := d.Detect(signal(t, [2]float64{1, 0.4}))
	if err != nil {
		t.Fatal(err)
	}
	if sp.Len() != 99 {
		t.Fatalf("Len = %d, want 99", sp.Len())
	}
	if got := len(sp.Samples()); got != rate {
		t.Fatalf("len(Samples) = %d, want %d", got, rate)
	}
	if sp.Duration() != time.Second {
		t.Fatalf("Duration = %v, want 1s", sp.Duration())
	}
}

func TestAllIsRestartable(t *testing.T) {
	sp, err := newDetector(t, nil).Detect(signal(t, [2]float64{0.3, 0.5}))
	if err != nil {
		t.Fatal(err)
	}
	count := func() int {
		n := 0
		last := -1
		for f := range sp.All() {
			if f.Index <= last {
				t.Fatalf("frames out of order: %d after %d", f.Index, last)
			}
			last = f.Index
			n++
		}
		return n
	}
	if a, b := count(), count(); a != b || a != sp.Len() {
		t.Fatalf("iterations yielded %d and %d frames, Len = %d", a, b, sp.Len())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero frame", func(c *Config) { c.FrameDuration = 0 }},
		{"hop longer than frame", func(c *Config) { c.HopDuration = 40 * time.Millisecond }},
		{"percentile above one", func(c *Config) { c.NoisePercentile = 1.5 }},
		{"multiplier below one", func(c *Config) { c.NoiseMultiplier = 0.5 }},
		{"negative floor", func(c *Config) { c.EnergyFloor = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}
