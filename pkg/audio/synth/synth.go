// Package synth generates deterministic test signals: harmonic "voices",
// tones, noise and silence. It backs the tests of the audio, voiceprint,
// deepfake and verify packages and the demo fixtures written by the CLI.
package synth

import (
	"math"
	"math/rand/v2"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// Voice describes a synthetic speaker: a glottal pitch with a harmonic
// series shaped by two formants.
type Voice struct {
	Pitch    float64 // fundamental in Hz
	Formant1 float64 // Hz
	Formant2 float64 // Hz
	Width    float64 // formant bandwidth in Hz, default 300
}

// Take describes one recording of a voice.
type Take struct {
	Seconds   float64
	Amplitude float64 // peak amplitude before noise, default 0.5
	Noise     float64 // white noise amplitude
	Seed      uint64  // varies phases, pitch jitter and noise
}

// Render produces a mono segment at rate. Different seeds give different
// recordings of the same voice; the spectral envelope stays put.
func (v Voice) Render(rate int, tk Take) *pcm.Segment {
	rng := rand.New(rand.NewPCG(tk.Seed, tk.Seed^0x5bd1e995))
	width := v.Width
	if width <= 0 {
		width = 300
	}
	amp := tk.Amplitude
	if amp <= 0 {
		amp = 0.5
	}
	pitch := v.Pitch * (1 + 0.01*(rng.Float64()-0.5))
	nyquist := float64(rate) / 2

	type partial struct{ freq, gain, phase float64 }
	var partials []partial
	var total float64
	for k := 1; float64(k)*pitch < nyquist; k++ {
		f := float64(k) * pitch
		g := math.Exp(-sq((f-v.Formant1)/width)) + 0.6*math.Exp(-sq((f-v.Formant2)/width)) + 0.02/float64(k)
		partials = append(partials, partial{f, g, 2 * math.Pi * rng.Float64()})
		total += g
	}

	n := int(tk.Seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(rate)
		// Slow syllable-rate envelope.
		env := 0.9 + 0.1*math.Sin(2*math.Pi*4*t)
		var s float64
		for _, p := range partials {
			s += p.gain * math.Sin(2*math.Pi*p.freq*t+p.phase)
		}
		out[i] = float32(amp*env*s/total + tk.Noise*(2*rng.Float64()-1))
	}
	seg, _ := pcm.NewSegment(out, rate, 1)
	return seg
}

// Tone returns a pure sine.
func Tone(rate int, freq, seconds, amp float64) *pcm.Segment {
	n := int(seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	seg, _ := pcm.NewSegment(out, rate, 1)
	return seg
}

// Noise returns uniform white noise.
func Noise(rate int, seconds, amp float64, seed uint64) *pcm.Segment {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	n := int(seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * (2*rng.Float64() - 1))
	}
	seg, _ := pcm.NewSegment(out, rate, 1)
	return seg
}

// Silence returns digital silence.
func Silence(rate int, seconds float64) *pcm.Segment {
	seg, _ := pcm.NewSegment(make([]float32, int(seconds*float64(rate))), rate, 1)
	return seg
}

// Concat joins mono segments of the same rate.
func Concat(segs ...*pcm.Segment) *pcm.Segment {
	var out []float32
	for _, s := range segs {
		out = append(out, s.Samples...)
	}
	seg, _ := pcm.NewSegment(out, segs[0].SampleRate, 1)
	return seg
}

func sq(x float64) float64 { return x * x }

// Preset voices with clearly separated envelopes.
var (
	Alice = Voice{Pitch: 210, Formant1: 850, Formant2: 2400}
	Bob   = Voice{Pitch: 110, Formant1: 450, Formant2: 1100}
	Carol = Voice{Pitch: 170, Formant1: 600, Formant2: 3000}
)
