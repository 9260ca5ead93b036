package voiceprint

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Hasher folds embeddings into short locality-sensitive hashes using random
// hyperplanes. Each hyperplane contributes one bit (positive side = 1) and
// the bits are rendered as uppercase hex, so 16 bits give "A3F8".
//
// Nearby embeddings land on the same side of most hyperplanes, so a
// speaker's enrollment samples usually share a hash. Profiles store the hash
// of their centroid as an audit label; it is never used for decisions.
//
// Prefixes give coarser buckets:
//
//	"A3F8" 16 bit
//	"A3F"  12 bit
//	"A3"    8 bit
type Hasher struct {
	dim    int
	bits   int
	planes [][]float32
}

// NewHasher creates a Hasher for dim-dimensional vectors producing bits
// bits. bits must be a positive multiple of 4. The same seed always yields
// the same hyperplanes.
func NewHasher(dim, bits int, seed uint64) (*Hasher, error) {
	if bits <= 0 || bits%4 != 0 {
		return nil, fmt.Errorf("voiceprint: hash bits must be a positive multiple of 4, got %d", bits)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("voiceprint: hash dimension must be positive, got %d", dim)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	planes := make([][]float32, bits)
	for i := range planes {
		plane := make([]float32, dim)
		for j := range plane {
			plane[j] = float32(rng.NormFloat64())
		}
		Normalize(plane)
		planes[i] = plane
	}
	return &Hasher{dim: dim, bits: bits, planes: planes}, nil
}

// Hash returns the hex hash of v.
func (h *Hasher) Hash(v []float32) (string, error) {
	if len(v) != h.dim {
		return "", fmt.Errorf("%w: hasher expects %d, got %d", ErrDimensionMismatch, h.dim, len(v))
	}
	var sb strings.Builder
	sb.Grow(h.bits / 4)
	for i := 0; i < h.bits; i += 4 {
		var nibble byte
		for b := range 4 {
			if dot(h.planes[i+b], v) > 0 {
				nibble |= 1 << (3 - b)
			}
		}
		sb.WriteByte("0123456789ABCDEF"[nibble])
	}
	return sb.String(), nil
}

// Bits returns the hash width in bits.
func (h *Hasher) Bits() int { return h.bits }

// Dim returns the expected vector length.
func (h *Hasher) Dim() int { return h.dim }

// VoiceLabel renders a hash as a label such as "voice:A3F8".
func VoiceLabel(hash string) string { return "voice:" + hash }

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
