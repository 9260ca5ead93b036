package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// Resample converts seg to the given sample rate with the high quality
// preset. The channel layout is preserved. When the rates already match seg
// is returned unchanged.
func Resample(seg *pcm.Segment, rate int) (*pcm.Segment, error) {
	if seg == nil {
		return nil, pcm.ErrEmpty
	}
	if rate <= 0 {
		return nil, fmt.Errorf("resampler: %w: target rate %d", pcm.ErrBadFormat, rate)
	}
	if seg.SampleRate == rate {
		return seg, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(seg.SampleRate),
		OutputRate: float64(rate),
		Channels:   seg.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	input := make([]float64, len(seg.Samples))
	for i, s := range seg.Samples {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	// Keep whole frames only.
	output = output[:len(output)/seg.Channels*seg.Channels]
	if len(output) == 0 {
		return nil, fmt.Errorf("resampler: %w: %d frames at %d Hz too short to resample", pcm.ErrEmpty, seg.Frames(), seg.SampleRate)
	}

	samples := make([]float32, len(output))
	for i, s := range output {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		samples[i] = float32(s)
	}
	return pcm.NewSegment(samples, rate, seg.Channels)
}
