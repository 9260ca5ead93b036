package vad

import (
	"fmt"
	"iter"
	"time"
)

// Frame is one active analysis frame.
type Frame struct {
	Index   int       // frame number within the segment
	Start   int       // offset of the first sample in the mono segment
	Samples []float32 // mono samples, DC removed; shared, do not modify
	Energy  float64   // mean-square energy
}

// End is the sample offset just past the frame.
func (f Frame) End() int { return f.Start + len(f.Samples) }

// Speech is the ordered set of active frames found in one segment.
type Speech struct {
	sampleRate int
	frameLen   int
	threshold  float64
	frames     []Frame
}

// NewSpeech builds a Speech from already detected frames. Frames must be in
// time order. It exists for backends that run their own detection.
func NewSpeech(sampleRate int, frames []Frame) *Speech {
	sp := &Speech{sampleRate: sampleRate, frames: frames}
	if len(frames) > 0 {
		sp.frameLen = len(frames[0].Samples)
	}
	return sp
}

// All yields the active frames in time order. The sequence can be ranged
// over any number of times.
func (s *Speech) All() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if s == nil {
			return
		}
		for _, f := range s.frames {
			if !yield(f) {
				return
			}
		}
	}
}

// Len returns the number of active frames.
func (s *Speech) Len() int {
	if s == nil {
		return 0
	}
	return len(s.frames)
}

// Empty reports whether no frame is active.
func (s *Speech) Empty() bool { return s.Len() == 0 }

// SampleRate returns the sample rate of the frames.
func (s *Speech) SampleRate() int { return s.sampleRate }

// Threshold returns the energy threshold used to classify the frames.
func (s *Speech) Threshold() float64 { return s.threshold }

// Samples concatenates the active audio. Overlapping frames contribute each
// sample once; gaps between non-adjacent frames are dropped.
func (s *Speech) Samples() []float32 {
	if s.Empty() {
		return nil
	}
	out := make([]float32, 0, s.numSamples())
	end := -1
	for _, f := range s.frames {
		from := 0
		if f.Start < end {
			from = end - f.Start
		}
		if from < len(f.Samples) {
			out = append(out, f.Samples[from:]...)
		}
		end = max(end, f.End())
	}
	return out
}


func (s *Speech) numSamples() int {
	n := 0
	end := -1
	for _, f := range s.frames {
		n += max(0, f.End()-max(f.Start, end))
		end = max(end, f.End())
	}
	return n
}

// Duration is the total length of active audio, counting overlapping frames
// once.
func (s *Speech) Duration() time.Duration {
	if s.Empty() || s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(s.numSamples()) * time.Second / time.Duration(s.sampleRate)
}

// Require checks the minimum-duration policy. It returns ErrNoSpeech for an
// empty Speech and ErrInsufficientSpeech when active audio is shorter than
// minDur.
func (s *Speech) Require(minDur time.Duration) error {
	if s.Empty() {
		return ErrNoSpeech
	}
	if d := s.Duration(); d < minDur {
		return fmt.Errorf("%w: %s of speech, need %s", ErrInsufficientSpeech, d.Round(time.Millisecond), minDur)
	}
	return nil
}
