// Package audio is the umbrella for the audio front-end of voicegate:
//
//   - pcm: in-memory audio segments
//   - wav: WAV decoding and encoding into segments
//   - resampler: sample rate conversion to the engine rate
//   - fbank: log-mel filterbank, MFCC and power spectra
package audio
