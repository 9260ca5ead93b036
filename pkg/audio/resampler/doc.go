// Package resampler converts [pcm.Segment] values between sample rates
// using a pure Go polyphase resampler (no CGO).
//
// Example usage:
//
//	seg16k, err := resampler.Resample(seg, 16000)
//	if err != nil {
//	    return err
//	}
package resampler
