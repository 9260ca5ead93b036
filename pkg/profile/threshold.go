package profile

import (
	"fmt"
	"math"

	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// Policy controls enrollment size and threshold derivation.
type Policy struct {
	MinSamples int     `yaml:"min_enrollment_samples" json:"min_enrollment_samples"`
	K          float64 `yaml:"threshold_k" json:"threshold_k"`
	Floor      float64 `yaml:"threshold_floor" json:"threshold_floor"`
	Ceiling    float64 `yaml:"threshold_ceiling" json:"threshold_ceiling"`
}

// DefaultPolicy returns the shipped policy.
func DefaultPolicy() Policy {
	return Policy{MinSamples: 3, K: 1.5, Floor: 0.5, Ceiling: 0.9}
}

// Validate reports inconsistent settings.
func (p Policy) Validate() error {
	switch {
	case p.MinSamples < 1:
		return fmt.Errorf("profile: min enrollment samples must be >= 1, got %d", p.MinSamples)
	case p.K < 0:
		return fmt.Errorf("profile: threshold k must be >= 0, got %g", p.K)
	case p.Floor < -1 || p.Ceiling > 1:
		return fmt.Errorf("profile: threshold bounds [%g, %g] outside [-1, 1]", p.Floor, p.Ceiling)
	case p.Floor > p.Ceiling:
		return fmt.Errorf("profile: threshold floor %g above ceiling %g", p.Floor, p.Ceiling)
	}
	return nil
}

// Clamp limits t to [Floor, Ceiling]. NaN maps to Ceiling.
func (p Policy) Clamp(t float64) float64 {
	if math.IsNaN(t) {
		return p.Ceiling
	}
	return max(p.Floor, min(p.Ceiling, t))
}

// ComputeThreshold derives the acceptance threshold from enrollment vectors
// and their centroid. The similarity set is every pairwise cosine plus each
// vector against the centroid.
func ComputeThreshold(embeddings [][]float32, centroid []float32, p Policy) (float64, Stats) {
	n := len(embeddings)
	sims := make([]float64, 0, n*(n-1)/2+n)
	for i := range n {
		for j := i + 1; j < n; j++ {
			sims = append(sims, voiceprint.CosineVectors(embeddings[i], embeddings[j]))
		}
		sims = append(sims, voiceprint.CosineVectors(embeddings[i], centroid))
	}
	if len(sims) == 0 {
		return p.Ceiling, Stats{}
	}

	var sum float64
	for _, s := range sims {
		sum += s
	}
	mean := sum / float64(len(sims))
	var ss float64
	for _, s := range sims {
		ss += (s - mean) * (s - mean)
	}
	std := math.Sqrt(ss / float64(len(sims)))

	st := Stats{Mean: mean, StdDev: std, Pairs: len(sims)}
	return p.Clamp(mean - p.K*std), st
}
