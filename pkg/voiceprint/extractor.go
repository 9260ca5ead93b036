package voiceprint

import (
	"context"
	"time"

	"github.com/haivivi/voicegate/pkg/vad"
)

// DefaultMinSpeech is the shortest active speech accepted for an embedding.
const DefaultMinSpeech = 500 * time.Millisecond

// Extractor maps active speech to an embedding.
//
// Implementations are deterministic for identical input and model version,
// safe for concurrent use, and fail with [vad.ErrInsufficientSpeech] (or
// [vad.ErrNoSpeech]) when the speech is below their minimum duration.
type Extractor interface {
	Embed(ctx context.Context, speech *vad.Speech) (Embedding, error)

	// Model returns the version tag stamped on every embedding.
	Model() string

	// Dimension returns the embedding length.
	Dimension() int
}
