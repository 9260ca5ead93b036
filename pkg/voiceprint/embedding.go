package voiceprint

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrModelMismatch is returned when embeddings of different models are
	// combined.
	ErrModelMismatch = errors.New("voiceprint: model mismatch")

	// ErrDimensionMismatch is returned when vector lengths differ.
	ErrDimensionMismatch = errors.New("voiceprint: dimension mismatch")
)

// Embedding is a speaker representation produced by one model version.
// Treat it as immutable; use Clone before modifying.
type Embedding struct {
	Model  string    `json:"model" msgpack:"model"`
	Vector []float32 `json:"vector" msgpack:"vector"`
}

// Clone returns a deep copy.
func (e Embedding) Clone() Embedding {
	return Embedding{Model: e.Model, Vector: slices.Clone(e.Vector)}
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int { return len(e.Vector) }

// Norm returns the Euclidean length of the vector.
func (e Embedding) Norm() float64 { return norm(e.Vector) }

// Finite reports whether every component is a finite number.
func (e Embedding) Finite() bool {
	for _, x := range e.Vector {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (e Embedding) compatible(o Embedding) error {
	if e.Model != o.Model {
		return fmt.Errorf("%w: %q vs %q", ErrModelMismatch, e.Model, o.Model)
	}
	if len(e.Vector) != len(o.Vector) {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(e.Vector), len(o.Vector))
	}
	return nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero vector
// has similarity 0 with everything; a non-finite one has -1.
func Cosine(a, b Embedding) (float64, error) {
	if err := a.compatible(b); err != nil {
		return 0, err
	}
	return CosineVectors(a.Vector, b.Vector), nil
}

// CosineVectors is Cosine without the model check. The slices must have
// equal length.
func CosineVectors(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(c) {
		return -1
	}
	return max(-1, min(1, c))
}

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) {
	n := norm(v)
	if n == 0 {
		return
	}
	inv := 1 / n
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Mean returns the normalized average of the normalized inputs. All inputs
// must share model and dimension.
func Mean(embs []Embedding) (Embedding, error) {
	if len(embs) == 0 {
		return Embedding{}, errors.New("voiceprint: mean of no embeddings")
	}
	first := embs[0]
	acc := make([]float64, len(first.Vector))
	for _, e := range embs {
		if err := first.compatible(e); err != nil {
			return Embedding{}, err
		}
		n := norm(e.Vector)
		if n == 0 {
			continue
		}
		for i, x := range e.Vector {
			acc[i] += float64(x) / n
		}
	}
	out := make([]float32, len(acc))
	for i, x := range acc {
		out[i] = float32(x / float64(len(embs)))
	}
	Normalize(out)
	return Embedding{Model: first.Model, Vector: out}, nil
}

func norm(v []float32) float64 {
	var ss float64
	for _, x := range v {
		ss += float64(x) * float64(x)
	}
	return math.Sqrt(ss)
}
