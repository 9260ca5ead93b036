package deepfake

import (
	"math"

	"github.com/haivivi/voicegate/pkg/audio/fbank"
)

// Features are the spectral measurements of one utterance.
type Features struct {
	HighBandRatio   float64 `json:"high_band_ratio" yaml:"high_band_ratio"`
	Flatness        float64 `json:"flatness" yaml:"flatness"`
	FluxCV          float64 `json:"flux_cv" yaml:"flux_cv"`
	EnergyEntropy   float64 `json:"energy_entropy" yaml:"energy_entropy"`
	CentroidEntropy float64 `json:"centroid_entropy" yaml:"centroid_entropy"`
}

// vector returns the features in the order of FeatureNames.
func (f Features) vector() [numFeatures]float64 {
	return [numFeatures]float64{f.HighBandRatio, f.Flatness, f.FluxCV, f.EnergyEntropy, f.CentroidEntropy}
}

const (
	numFeatures   = 5
	histogramBins = 20
)

// FeatureNames lists the YAML keys of the features in weight order.
var FeatureNames = [numFeatures]string{
	"high_band_ratio",
	"flatness",
	"flux_cv",
	"energy_entropy",
	"centroid_entropy",
}

// measure computes Features from samples. It returns false when the audio
// yields fewer than two analysis frames.
func measure(fb *fbank.Extractor, samples []float32, highBandHz float64) (Features, bool) {
	spectra := fb.PowerSpectrum(samples)
	if len(spectra) < 2 {
		return Features{}, false
	}
	cfg := fb.Config()
	nyquist := float64(cfg.SampleRate) / 2

	var total, high, flatSum float64
	logEnergies := make([]float64, len(spectra))
	centroids := make([]float64, len(spectra))
	for t, power := range spectra {
		var frameTotal, weighted, logSum float64
		for k := 1; k < len(power); k++ {
			p := power[k]
			hz := fb.BinHz(k)
			frameTotal += p
			weighted += hz * p
			logSum += math.Log(p + 1e-12)
			if hz >= highBandHz {
				high += p
			}
		}
		total += frameTotal
		bins := float64(len(power) - 1)
		arith := frameTotal / bins
		if arith > 0 {
			flatSum += math.Exp(logSum/bins) / arith
		}
		logEnergies[t] = math.Log10(frameTotal + 1e-12)
		if frameTotal > 0 {
			centroids[t] = weighted / frameTotal
		}
	}

	f := Features{
		Flatness:        flatSum / float64(len(spectra)),
		EnergyEntropy:   histogramEntropy(logEnergies, minOf(logEnergies), maxOf(logEnergies)),
		CentroidEntropy: histogramEntropy(centroids, 0, nyquist),
	}
	if total > 0 {
		f.HighBandRatio = high / total
	}

	logMel := fb.Extract(samples)
	fbank.CMVN(logMel)
	f.FluxCV = fluxCV(logMel)
	return f, true
}

// fluxCV is std/mean of the RMS frame-to-frame change of normalized log-mel
// frames.
func fluxCV(frames [][]float32) float64 {
	if len(frames) < 3 {
		return 0
	}
	flux := make([]float64, len(frames)-1)
	for t := 1; t < len(frames); t++ {
		var ss float64
		for d := range frames[t] {
			x := float64(frames[t][d] - frames[t-1][d])
			ss += x * x
		}
		flux[t-1] = math.Sqrt(ss / float64(len(frames[t])))
	}
	mean, std := meanStd(flux)
	if mean < 1e-9 {
		return 0
	}
	return std / mean
}

// histogramEntropy is the Shannon entropy of values binned over [lo, hi],
// normalized to [0, 1].
func histogramEntropy(values []float64, lo, hi float64) float64 {
	if hi <= lo || len(values) == 0 {
		return 0
	}
	var counts [histogramBins]int
	width := (hi - lo) / histogramBins
	for _, v := range values {
		b := int((v - lo) / width)
		counts[min(max(b, 0), histogramBins-1)]++
	}
	n := float64(len(values))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h / math.Log(histogramBins)
}

func meanStd(x []float64) (mean, std float64) {
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for _, v := range x {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(x)))
}

func minOf(x []float64) float64 {
	m := math.Inf(1)
	for _, v := range x {
		m = min(m, v)
	}
	return m
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		m = max(m, v)
	}
	return m
}
