// Package fbank is the spectral front-end shared by the embedding and the
// deepfake stages.
//
// Defaults follow the Kaldi convention at 16 kHz:
//
//	WindowSize:  400 (25 ms)
//	HopSize:     160 (10 ms)
//	FFTSize:     512
//	NumMels:     40
//	LowFreq:     20
//	HighFreq:  7600
//	PreEmphasis: 0.97
package fbank

import (
	"math"
)

// Config controls frame analysis and mel filterbank parameters.
type Config struct {
	SampleRate  int     // Hz
	WindowSize  int     // samples per analysis window
	HopSize     int     // samples between windows
	FFTSize     int     // power of two, >= WindowSize
	NumMels     int     // mel bins
	LowFreq     float64 // lowest mel edge in Hz
	HighFreq    float64 // highest mel edge in Hz
	PreEmphasis float64 // 0 disables
}

// DefaultConfig returns the 16 kHz configuration used by voicegate.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSize:  400,
		HopSize:     160,
		FFTSize:     512,
		NumMels:     40,
		LowFreq:     20,
		HighFreq:    7600,
		PreEmphasis: 0.97,
	}
}

// Extractor computes per-frame spectra. It is safe for concurrent use; all
// scratch buffers are allocated per call.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank [][]float64
}

// New creates an Extractor. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.FFTSize < cfg.WindowSize {
		cfg.FFTSize = nextPow2(cfg.WindowSize)
	}
	if cfg.NumMels <= 0 {
		cfg.NumMels = def.NumMels
	}
	if cfg.HighFreq <= 0 || cfg.HighFreq > float64(cfg.SampleRate)/2 {
		cfg.HighFreq = float64(cfg.SampleRate) / 2
	}
	return &Extractor{
		cfg:     cfg,
		window:  hammingWindow(cfg.WindowSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// NumFrames reports how many analysis frames n samples produce.
func (e *Extractor) NumFrames(n int) int {
	if n < e.cfg.WindowSize {
		return 0
	}
	return (n-e.cfg.WindowSize)/e.cfg.HopSize + 1
}

// BinHz returns the centre frequency of FFT bin k.
func (e *Extractor) BinHz(k int) float64 {
	return float64(k) * float64(e.cfg.SampleRate) / float64(e.cfg.FFTSize)
}

// PowerSpectrum returns one [FFTSize/2+1] power spectrum per frame after
// pre-emphasis and Hamming windowing. Input shorter than one window yields
// nil.
func (e *Extractor) PowerSpectrum(pcm []float32) [][]float64 {
	cfg := e.cfg
	numFrames := e.NumFrames(len(pcm))
	if numFrames == 0 {
		return nil
	}

	half := cfg.FFTSize/2 + 1
	re := make([]float64, cfg.FFTSize)
	im := make([]float64, cfg.FFTSize)
	out := make([][]float64, numFrames)

	for t := range numFrames {
		start := t * cfg.HopSize
		for i := 0; i < cfg.WindowSize; i++ {
			s := float64(pcm[start+i])
			if i > 0 {
				s -= cfg.PreEmphasis * float64(pcm[start+i-1])
			}
			re[i] = s * e.window[i]
			im[i] = 0
		}
		for i := cfg.WindowSize; i < cfg.FFTSize; i++ {
			re[i], im[i] = 0, 0
		}
		fft(re, im)

		power := make([]float64, half)
		for k := range power {
			power[k] = re[k]*re[k] + im[k]*im[k]
		}
		out[t] = power
	}
	return out
}

// Extract computes [T][NumMels] log-mel filterbank features.
func (e *Extractor) Extract(pcm []float32) [][]float32 {
	spectra := e.PowerSpectrum(pcm)
	if spectra == nil {
		return nil
	}
	features := make([][]float32, len(spectra))
	for t, power := range spectra {
		mel := make([]float32, e.cfg.NumMels)
		for m, filter := range e.melBank {
			sum := 0.0
			for k, w := range filter {
				if w != 0 {
					sum += w * power[k]
				}
			}
			mel[m] = float32(math.Log(math.Max(sum, 1e-10)))
		}
		features[t] = mel
	}
	return features
}

// CMVN normalizes every column of features to zero mean and unit variance
// in place. Constant columns become zero.
func CMVN(features [][]float32) {
	if len(features) == 0 {
		return
	}
	dims := len(features[0])
	n := float64(len(features))
	for d := range dims {
		var sum float64
		for _, f := range features {
			sum += float64(f[d])
		}
		mean := sum / n

		var ss float64
		for _, f := range features {
			x := float64(f[d]) - mean
			ss += x * x
		}
		std := math.Sqrt(ss / n)
		if std < 1e-10 {
			std = 1e-10
		}
		for _, f := range features {
			f[d] = float32((float64(f[d]) - mean) / std)
		}
	}
}

// Deltas returns first-order regression deltas over a +/-2 frame window
// with edge frames replicated.
func Deltas(features [][]float32) [][]float32 {
	const width = 2
	T := len(features)
	if T == 0 {
		return nil
	}
	dims := len(features[0])
	denom := float32(0)
	for n := 1; n <= width; n++ {
		denom += float32(2 * n * n)
	}

	clamp := func(i int) int {
		return min(max(i, 0), T-1)
	}
	out := make([][]float32, T)
	for t := range T {
		row := make([]float32, dims)
		for n := 1; n <= width; n++ {
			next := features[clamp(t+n)]
			prev := features[clamp(t-n)]
			for d := range dims {
				row[d] += float32(n) * (next[d] - prev[d])
			}
		}
		for d := range row {
			row[d] /= denom
		}
		out[t] = row
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
