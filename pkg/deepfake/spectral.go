package deepfake

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voicegate/pkg/audio/fbank"
	"github.com/haivivi/voicegate/pkg/vad"
)

// FeatureWeight standardizes one feature and weights it.
type FeatureWeight struct {
	Weight float64 `yaml:"weight"`
	Mean   float64 `yaml:"mean"`
	Scale  float64 `yaml:"scale"`
}

// Weights parameterize the logistic model of [SpectralClassifier]:
//
//	score = sigmoid(Bias + sum(w * (f - mean) / scale))
type Weights struct {
	Version    string                   `yaml:"version"`
	Bias       float64                  `yaml:"bias"`
	HighBandHz float64                  `yaml:"high_band_hz"`
	Features   map[string]FeatureWeight `yaml:"features"`
}

// DefaultWeights returns the weights shipped with voicegate.
func DefaultWeights() Weights {
	return Weights{
		Version:    "spectral-logistic/v1",
		Bias:       -1.5,
		HighBandHz: 4000,
		Features: map[string]FeatureWeight{
			"high_band_ratio":  {Weight: -1.2, Mean: 0.05, Scale: 0.05},
			"flatness":         {Weight: -0.6, Mean: 0.10, Scale: 0.08},
			"flux_cv":          {Weight: -1.0, Mean: 0.60, Scale: 0.30},
			"energy_entropy":   {Weight: -0.8, Mean: 0.60, Scale: 0.20},
			"centroid_entropy": {Weight: -0.8, Mean: 0.50, Scale: 0.20},
		},
	}
}

// Validate checks that every feature key is known and every scale positive.
func (w Weights) Validate() error {
	if w.Version == "" {
		return fmt.Errorf("deepfake: weights have no version")
	}
	if w.HighBandHz <= 0 {
		return fmt.Errorf("deepfake: high_band_hz must be positive, got %g", w.HighBandHz)
	}
	known := make(map[string]bool, numFeatures)
	for _, n := range FeatureNames {
		known[n] = true
	}
	for name, fw := range w.Features {
		if !known[name] {
			return fmt.Errorf("deepfake: unknown feature %q", name)
		}
		if fw.Scale <= 0 {
			return fmt.Errorf("deepfake: feature %q: scale must be positive, got %g", name, fw.Scale)
		}
	}
	return nil
}

// ParseWeights decodes YAML weights and validates them.
func ParseWeights(data []byte) (Weights, error) {
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("deepfake: parse weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// SpectralClassifier is the built-in logistic classifier over spectral
// features.
type SpectralClassifier struct {
	fb        *fbank.Extractor
	weights   Weights
	coef      [numFeatures]FeatureWeight
	minSpeech time.Duration
}

// Option configures a SpectralClassifier.
type Option func(*SpectralClassifier)

// WithWeights replaces the default weights. Features missing from w get
// zero weight.
func WithWeights(w Weights) Option {
	return func(c *SpectralClassifier) { c.weights = w }
}

// WithMinSpeech sets the minimum active speech duration.
func WithMinSpeech(d time.Duration) Option {
	return func(c *SpectralClassifier) {
		if d > 0 {
			c.minSpeech = d
		}
	}
}

// NewSpectralClassifier creates a classifier for audio at sampleRate.
func NewSpectralClassifier(sampleRate int, opts ...Option) (*SpectralClassifier, error) {
	c := &SpectralClassifier{
		weights:   DefaultWeights(),
		minSpeech: DefaultMinSpeech,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.weights.Validate(); err != nil {
		return nil, err
	}
	for i, name := range FeatureNames {
		fw, ok := c.weights.Features[name]
		if !ok {
			fw = FeatureWeight{Scale: 1}
		}
		c.coef[i] = fw
	}

	cfg := fbank.DefaultConfig()
	cfg.SampleRate = sampleRate
	cfg.HighFreq = 0
	cfg.PreEmphasis = 0
	c.fb = fbank.New(cfg)
	return c, nil
}

// Model implements [Classifier].
func (c *SpectralClassifier) Model() string { return c.weights.Version }

// Features measures speech without scoring it.
func (c *SpectralClassifier) Features(speech *vad.Speech) (Features, error) {
	if err := speech.Require(c.minSpeech); err != nil {
		return Features{}, err
	}
	if speech.SampleRate() != c.fb.Config().SampleRate {
		return Features{}, fmt.Errorf("deepfake: speech at %d Hz, classifier at %d Hz", speech.SampleRate(), c.fb.Config().SampleRate)
	}
	f, ok := measure(c.fb, speech.Samples(), c.weights.HighBandHz)
	if !ok {
		return Features{}, fmt.Errorf("%w: too few analysis frames", vad.ErrInsufficientSpeech)
	}
	return f, nil
}

// Classify implements [Classifier].
func (c *SpectralClassifier) Classify(ctx context.Context, speech *vad.Speech) (Score, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := c.Features(speech)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.Score(f), nil
}

// Score applies the logistic model to f.
func (c *SpectralClassifier) Score(f Features) Score {
	z := c.weights.Bias
	for i, v := range f.vector() {
		fw := c.coef[i]
		z += fw.Weight * (v - fw.Mean) / fw.Scale
	}
	return Score(sigmoid(z)).Clamp()
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
