package fbank

import "math"

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// HTK mel scale.
func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melFilterBank builds numMels triangular filters over fftSize/2+1 bins,
// equally spaced on the mel scale between lowFreq and highFreq. Every
// filter spans at least one bin.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	half := fftSize/2 + 1
	lo, hi := hzToMel(lowFreq), hzToMel(highFreq)
	step := (hi - lo) / float64(numMels+1)

	edges := make([]int, numMels+2)
	for i := range edges {
		hz := melToHz(lo + float64(i)*step)
		edges[i] = min(int(math.Round(hz*float64(fftSize)/float64(sampleRate))), half-1)
		if i > 0 && edges[i] <= edges[i-1] {
			edges[i] = edges[i-1] + 1
		}
	}

	bank := make([][]float64, numMels)
	for m := range numMels {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		filter := make([]float64, half)
		for k := left; k < center && k < half; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && k < half; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}
