package deepfake

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/haivivi/voicegate/pkg/vad"
)

// DefaultMinSpeech matches the embedding extractors.
const DefaultMinSpeech = 500 * time.Millisecond

// Score is the confidence in [0, 1] that audio is synthetic.
type Score float64

// Clamp limits s to [0, 1]. NaN maps to 1.
func (s Score) Clamp() Score {
	if math.IsNaN(float64(s)) {
		return 1
	}
	return max(0, min(1, s))
}

func (s Score) String() string { return fmt.Sprintf("%.3f", float64(s)) }

// Classifier maps active speech to a synthetic-voice confidence.
//
// Implementations are safe for concurrent use and fail with
// [vad.ErrInsufficientSpeech] or [vad.ErrNoSpeech] below their minimum
// speech duration.
type Classifier interface {
	Classify(ctx context.Context, speech *vad.Speech) (Score, error)

	// Model returns the classifier version tag.
	Model() string
}

// Fixed is a Classifier returning the same score for any sufficient speech.
type Fixed struct {
	Value     Score
	MinSpeech time.Duration
}

// Classify implements [Classifier].
func (f Fixed) Classify(ctx context.Context, speech *vad.Speech) (Score, error) {
	minSpeech := f.MinSpeech
	if minSpeech == 0 {
		minSpeech = DefaultMinSpeech
	}
	if err := speech.Require(minSpeech); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.Value.Clamp(), nil
}

// Model implements [Classifier].
func (f Fixed) Model() string { return "fixed" }
