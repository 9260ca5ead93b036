package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/vad"
)

// Model extracts a speaker vector from raw audio.
//
// Input is PCM16 signed little-endian mono at the engine sample rate.
// Implementations must be safe for concurrent use; typical ones wrap an
// ONNX or ncnn speaker verification network.
type Model interface {
	Extract(audio []byte) ([]float32, error)
	Dimension() int
	Close() error
}

// ModelExtractor adapts a [Model] to [Extractor]. Utterances longer than
// the window are cut into consecutive windows whose normalized vectors are
// averaged, so the network always sees inputs of the length it was trained
// on.
type ModelExtractor struct {
	model     Model
	tag       string
	window    time.Duration
	minSpeech time.Duration
}

// ModelOption configures a ModelExtractor.
type ModelOption func(*ModelExtractor)

// WithWindow sets the analysis window. Default 3s.
func WithWindow(d time.Duration) ModelOption {
	return func(e *ModelExtractor) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithMinSpeech sets the minimum active speech duration.
func WithMinSpeech(d time.Duration) ModelOption {
	return func(e *ModelExtractor) {
		if d > 0 {
			e.minSpeech = d
		}
	}
}

// NewModelExtractor wraps m. tag identifies the model version and is stamped
// on every embedding.
func NewModelExtractor(m Model, tag string, opts ...ModelOption) *ModelExtractor {
	e := &ModelExtractor{
		model:     m,
		tag:       tag,
		window:    3 * time.Second,
		minSpeech: DefaultMinSpeech,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model implements [Extractor].
func (e *ModelExtractor) Model() string { return e.tag }

// Dimension implements [Extractor].
func (e *ModelExtractor) Dimension() int { return e.model.Dimension() }

// Embed implements [Extractor].
func (e *ModelExtractor) Embed(ctx context.Context, speech *vad.Speech) (Embedding, error) {
	if err := speech.Require(e.minSpeech); err != nil {
		return Embedding{}, err
	}
	samples := speech.Samples()
	win := int(int64(speech.SampleRate()) * int64(e.window) / int64(time.Second))
	minTail := int(int64(speech.SampleRate()) * int64(e.minSpeech) / int64(time.Second))

	dim := e.model.Dimension()
	acc := make([]float64, dim)
	var count int
	for start := 0; start < len(samples); start += win {
		if err := ctx.Err(); err != nil {
			return Embedding{}, err
		}
		end := min(start+win, len(samples))
		// A short tail only counts when it is the whole utterance.
		if count > 0 && end-start < minTail {
			break
		}
		vec, err := e.model.Extract(pcm.Float32ToInt16LE(samples[start:end]))
		if err != nil {
			return Embedding{}, fmt.Errorf("voiceprint: %s: %w", e.tag, err)
		}
		if len(vec) != dim {
			return Embedding{}, fmt.Errorf("%w: model returned %d, want %d", ErrDimensionMismatch, len(vec), dim)
		}
		if !(Embedding{Vector: vec}).Finite() {
			return Embedding{}, fmt.Errorf("voiceprint: %s returned a non-finite vector", e.tag)
		}
		n := norm(vec)
		if n == 0 {
			continue
		}
		for i, x := range vec {
			acc[i] += float64(x) / n
		}
		count++
	}
	if count == 0 {
		return Embedding{}, errors.New("voiceprint: model produced only zero vectors")
	}

	out := make([]float32, dim)
	for i, x := range acc {
		out[i] = float32(x / float64(count))
	}
	Normalize(out)
	return Embedding{Model: e.tag, Vector: out}, nil
}

// Close releases the underlying model.
func (e *ModelExtractor) Close() error { return e.model.Close() }
