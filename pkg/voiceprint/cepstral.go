package voiceprint

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/fbank"
	"github.com/haivivi/voicegate/pkg/vad"
)

// CepstralModel is the model tag of [CepstralExtractor].
const CepstralModel = "cepstral-stats/v1"

// CepstralExtractor is a pure Go speaker embedding built from utterance
// statistics of MFCCs: per-coefficient mean and log standard deviation of
// the cepstra plus log standard deviation of their deltas. c0 (overall
// loudness) is dropped and the input is peak normalized, so the embedding
// is insensitive to recording gain.
type CepstralExtractor struct {
	fb        *fbank.Extractor
	numCeps   int
	minSpeech time.Duration
}

// CepstralOption configures a CepstralExtractor.
type CepstralOption func(*CepstralExtractor)

// WithCepstralMinSpeech sets the minimum active speech duration.
func WithCepstralMinSpeech(d time.Duration) CepstralOption {
	return func(e *CepstralExtractor) {
		if d > 0 {
			e.minSpeech = d
		}
	}
}

// WithNumCeps sets how many cepstral coefficients are computed, c0
// included. Default 20.
func WithNumCeps(n int) CepstralOption {
	return func(e *CepstralExtractor) {
		if n >= 2 {
			e.numCeps = n
		}
	}
}

// NewCepstralExtractor creates an extractor for audio at sampleRate.
func NewCepstralExtractor(sampleRate int, opts ...CepstralOption) *CepstralExtractor {
	cfg := fbank.DefaultConfig()
	cfg.SampleRate = sampleRate
	cfg.HighFreq = 0
	e := &CepstralExtractor{
		numCeps:   20,
		minSpeech: DefaultMinSpeech,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.numCeps > cfg.NumMels {
		cfg.NumMels = e.numCeps
	}
	e.fb = fbank.New(cfg)
	return e
}

// Model implements [Extractor].
func (e *CepstralExtractor) Model() string { return CepstralModel }

// Dimension implements [Extractor].
func (e *CepstralExtractor) Dimension() int { return 3 * (e.numCeps - 1) }

// Embed implements [Extractor].
func (e *CepstralExtractor) Embed(ctx context.Context, speech *vad.Speech) (Embedding, error) {
	if err := speech.Require(e.minSpeech); err != nil {
		return Embedding{}, err
	}
	if speech.SampleRate() != e.fb.Config().SampleRate {
		return Embedding{}, fmt.Errorf("voiceprint: speech at %d Hz, extractor at %d Hz", speech.SampleRate(), e.fb.Config().SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return Embedding{}, err
	}

	samples := speech.Samples()
	peakNormalize(samples)

	logMel := e.fb.Extract(samples)
	if len(logMel) < 2 {
		return Embedding{}, fmt.Errorf("%w: %d analysis frames", vad.ErrInsufficientSpeech, len(logMel))
	}
	ceps := fbank.MFCC(logMel, e.numCeps)
	for t := range ceps {
		ceps[t] = ceps[t][1:]
	}
	deltas := fbank.Deltas(ceps)

	if err := ctx.Err(); err != nil {
		return Embedding{}, err
	}

	dims := e.numCeps - 1
	vec := make([]float32, 0, 3*dims)
	mean, std := columnStats(ceps)
	_, dstd := columnStats(deltas)
	vec = append(vec, mean...)
	for _, s := range std {
		vec = append(vec, logStd(s))
	}
	for _, s := range dstd {
		vec = append(vec, logStd(s))
	}
	Normalize(vec)
	return Embedding{Model: CepstralModel, Vector: vec}, nil
}

func peakNormalize(x []float32) {
	var peak float32
	for _, v := range x {
		peak = max(peak, v, -v)
	}
	if peak == 0 {
		return
	}
	inv := 1 / peak
	for i := range x {
		x[i] *= inv
	}
}

func columnStats(rows [][]float32) (mean, std []float32) {
	dims := len(rows[0])
	mean = make([]float32, dims)
	std = make([]float32, dims)
	n := float64(len(rows))
	for d := range dims {
		var sum float64
		for _, r := range rows {
			sum += float64(r[d])
		}
		m := sum / n
		var ss float64
		for _, r := range rows {
			x := float64(r[d]) - m
			ss += x * x
		}
		mean[d] = float32(m)
		std[d] = float32(math.Sqrt(ss / n))
	}
	return mean, std
}

func logStd(s float32) float32 {
	return float32(math.Log(float64(s) + 1e-3))
}
