// Package deepfake scores how likely active speech is to be synthetic.
//
// The built-in [SpectralClassifier] works in a feature space independent of
// the speaker embedding. From the power spectra of the active frames it
// measures
//
//   - the share of energy above a high-band cutoff (vocoders are often band
//     limited),
//   - mean spectral flatness,
//   - the coefficient of variation of spectral flux (generated speech is
//     over-smooth),
//   - the entropy of the frame log-energy histogram,
//   - the entropy of the spectral centroid histogram,
//
// standardizes them and feeds them to a logistic model. Weights ship in code
// and can be replaced with YAML weights decoded by [ParseWeights].
//
// Classifiers apply the same minimum-duration policy as the embedding
// extractors so both scores are always computed on comparable input.
package deepfake
