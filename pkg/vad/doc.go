// Package vad isolates speech-bearing frames from an audio segment.
//
// Detection is energy based. The segment is downmixed to mono, DC offset is
// removed and short-time mean-square energy is computed per frame. The noise
// floor is the energy at a low percentile of all frames and a frame is active
// when its energy exceeds
//
//	max(min(noise*NoiseMultiplier, 0.5*peak), PeakRatio*peak, EnergyFloor)
//
// The cap at half the peak keeps steady signals (a held vowel, a test tone)
// from being rejected when the percentile lands inside the speech itself.
//
// The result is a [Speech] value: an ordered, restartable sequence of active
// frames. An empty Speech means no speech was found; callers fail fast on it
// rather than feeding empty input to feature extraction. [Speech.Require]
// applies the minimum-duration policy shared by the embedding and deepfake
// stages.
package vad
