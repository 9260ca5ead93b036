package profile

import (
	"errors"
	"time"

	"github.com/haivivi/voicegate/pkg/voiceprint"
)

var (
	// ErrUnknownUser is returned when no profile exists for a user.
	ErrUnknownUser = errors.New("profile: unknown user")

	// ErrStaleProfile is returned when a profile was built by another
	// embedding model than the one in use.
	ErrStaleProfile = errors.New("profile: stale profile")

	// ErrTooFewSamples is returned when enrollment has fewer embeddings than
	// the policy minimum.
	ErrTooFewSamples = errors.New("profile: too few enrollment samples")

	// ErrModelMismatch is returned when an enrollment embedding comes from
	// another model than the store's.
	ErrModelMismatch = errors.New("profile: embedding model mismatch")

	// ErrDimensionMismatch is returned when an enrollment embedding has the
	// wrong length.
	ErrDimensionMismatch = errors.New("profile: embedding dimension mismatch")

	// ErrInvalidUserID is returned for empty or malformed user IDs.
	ErrInvalidUserID = errors.New("profile: invalid user id")

	// ErrZeroEmbedding is returned when an enrollment vector has zero norm.
	ErrZeroEmbedding = errors.New("profile: zero embedding")

	// ErrNonFiniteEmbedding is returned when an enrollment vector holds NaN
	// or infinite components.
	ErrNonFiniteEmbedding = errors.New("profile: non-finite embedding")
)

// Stats summarizes the intra-user similarities a threshold was derived
// from.
type Stats struct {
	Mean   float64 `msgpack:"mean" json:"mean" yaml:"mean"`
	StdDev float64 `msgpack:"std_dev" json:"std_dev" yaml:"std_dev"`
	Pairs  int     `msgpack:"pairs" json:"pairs" yaml:"pairs"`
}

// Profile is the enrollment record of one user.
type Profile struct {
	UserID     string      `msgpack:"user_id"`
	Model      string      `msgpack:"model"`
	Dimension  int         `msgpack:"dimension"`
	Embeddings [][]float32 `msgpack:"embeddings"`
	Centroid   []float32   `msgpack:"centroid"`
	Threshold  float64     `msgpack:"threshold"`
	Stats      Stats       `msgpack:"stats"`
	VoiceHash  string      `msgpack:"voice_hash"`
	Revision   int         `msgpack:"revision"`
	CreatedAt  time.Time   `msgpack:"created_at"`
	UpdatedAt  time.Time   `msgpack:"updated_at"`
}

// CentroidEmbedding returns the centroid tagged with the profile model.
func (p *Profile) CentroidEmbedding() voiceprint.Embedding {
	return voiceprint.Embedding{Model: p.Model, Vector: p.Centroid}
}

// Samples returns the enrollment embeddings tagged with the profile model.
func (p *Profile) Samples() []voiceprint.Embedding {
	out := make([]voiceprint.Embedding, len(p.Embeddings))
	for i, v := range p.Embeddings {
		out[i] = voiceprint.Embedding{Model: p.Model, Vector: v}
	}
	return out
}

// Summary is a profile without its vectors, for display and APIs.
type Summary struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	Model     string    `json:"model" yaml:"model"`
	Dimension int       `json:"dimension" yaml:"dimension"`
	Samples   int       `json:"samples" yaml:"samples"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Stats     Stats     `json:"stats" yaml:"stats"`
	VoiceHash string    `json:"voice_hash,omitempty" yaml:"voice_hash,omitempty"`
	Revision  int       `json:"revision" yaml:"revision"`
	Stale     bool      `json:"stale" yaml:"stale"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Summary returns the display form of p. currentModel marks the summary
// stale when it differs from the profile model.
func (p *Profile) Summary(currentModel string) Summary {
	return Summary{
		UserID:    p.UserID,
		Model:     p.Model,
		Dimension: p.Dimension,
		Samples:   len(p.Embeddings),
		Threshold: p.Threshold,
		Stats:     p.Stats,
		VoiceHash: p.VoiceHash,
		Revision:  p.Revision,
		Stale:     p.Model != currentModel,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
