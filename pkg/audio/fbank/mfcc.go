package fbank

import "math"

// MFCC applies an orthonormal DCT-II to each log-mel frame and keeps the
// first numCeps coefficients (c0 included).
func MFCC(features [][]float32, numCeps int) [][]float32 {
	if len(features) == 0 {
		return nil
	}
	numMels := len(features[0])
	numCeps = min(numCeps, numMels)
	basis := dctBasis(numCeps, numMels)

	out := make([][]float32, len(features))
	for t, frame := range features {
		ceps := make([]float32, numCeps)
		for c, row := range basis {
			var sum float64
			for m, w := range row {
				sum += w * float64(frame[m])
			}
			ceps[c] = float32(sum)
		}
		out[t] = ceps
	}
	return out
}

// dctBasis returns the [numCeps][n] orthonormal DCT-II matrix.
func dctBasis(numCeps, n int) [][]float64 {
	basis := make([][]float64, numCeps)
	scale0 := math.Sqrt(1 / float64(n))
	scale := math.Sqrt(2 / float64(n))
	for k := range numCeps {
		row := make([]float64, n)
		s := scale
		if k == 0 {
			s = scale0
		}
		for m := range n {
			row[m] = s * math.Cos(math.Pi*float64(k)*(float64(m)+0.5)/float64(n))
		}
		basis[k] = row
	}
	return basis
}
