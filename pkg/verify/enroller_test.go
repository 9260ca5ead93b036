package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/synth"
	"github.com/haivivi/voicegate/pkg/deepfake"
	"github.com/haivivi/voicegate/pkg/kv"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/vad"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

func takes(v synth.Voice, seconds float64, seeds ...uint64) []*pcm.Segment {
	out := make([]*pcm.Segment, len(seeds))
	for i, s := range seeds {
		out[i] = v.Render(rate, synth.Take{Seconds: seconds, Noise: 0.002, Seed: s})
	}
	return out
}

func newCepstralEnroller(t *testing.T) (*Enroller, *profile.Store) {
	t.Helper()
	x := voiceprint.NewCepstralExtractor(rate)
	store, err := profile.NewStore(profile.StoreConfig{KV: kv.NewMemory(), Model: x.Model(), Dimension: x.Dimension()})
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEnroller(EnrollerConfig{Detector: newDetector(t), Extractor: x, Profiles: store, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	return e, store
}

func TestEnrollBuildsProfile(t *testing.T) {
	e, store := newCepstralEnroller(t)
	p, err := e.Enroll(context.Background(), "alice", takes(synth.Alice, 1.2, 1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Embeddings) != 3 || p.Model != voiceprint.CepstralModel {
		t.Fatalf("profile = %d samples, model %q", len(p.Embeddings), p.Model)
	}
	pol := store.Policy()
	if p.Threshold < pol.Floor || p.Threshold > pol.Ceiling {
		t.Fatalf("threshold %f outside [%f, %f]", p.Threshold, pol.Floor, pol.Ceiling)
	}
}

func TestEnrollRejectsSilentSample(t *testing.T) {
	e, store := newCepstralEnroller(t)
	if _, err := e.Enroll(context.Background(), "alice", takes(synth.Alice, 1.2, 1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Get(context.Background(), "alice")

	samples := takes(synth.Alice, 1.2, 4, 5)
	samples = append(samples, synth.Silence(rate, 1))
	_, err := e.Enroll(context.Background(), "alice", samples)
	if !errors.Is(err, vad.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	after, _ := store.Get(context.Background(), "alice")
	if after.Revision != before.Revision {
		t.Fatalf("profile changed on failed enroll: rev %d -> %d", before.Revision, after.Revision)
	}
}

func TestEnrollTooFewSamples(t *testing.T) {
	e, _ := newCepstralEnroller(t)
	_, err := e.Enroll(context.Background(), "alice", takes(synth.Alice, 1, 1, 2))
	if !errors.Is(err, profile.ErrTooFewSamples) {
		t.Fatalf("err = %v, want ErrTooFewSamples", err)
	}
}

func TestRetrainUnknownUser(t *testing.T) {
	e, _ := newCepstralEnroller(t)
	_, err := e.Retrain(context.Background(), "ghost", takes(synth.Bob, 1, 1, 2, 3))
	if !errors.Is(err, profile.ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestEnrollThenVerifyEndToEnd(t *testing.T) {
	e, store := newCepstralEnroller(t)
	if _, err := e.Enroll(context.Background(), "alice", takes(synth.Alice, 1.5, 1, 2, 3, 4)); err != nil {
		t.Fatal(err)
	}
	v, err := NewVerifier(Config{
		Detector:   newDetector(t),
		Extractor:  voiceprint.NewCepstralExtractor(rate),
		Classifier: deepfake.Fixed{Value: 0.05},
		Profiles:   store,
	})
	if err != nil {
		t.Fatal(err)
	}
	self, err := v.Verify(context.Background(), "alice", takes(synth.Alice, 1.5, 9)[0])
	if err != nil {
		t.Fatal(err)
	}
	other, err := v.Verify(context.Background(), "alice", takes(synth.Bob, 1.5, 9)[0])
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("self=%.4f other=%.4f threshold=%.4f", self.Similarity, other.Similarity, self.Threshold)
	if self.Similarity <= other.Similarity {
		t.Fatalf("genuine similarity %.4f not above impostor %.4f", self.Similarity, other.Similarity)
	}
	if other.Accepted && !self.Accepted {
		t.Fatal("impostor accepted while genuine speaker rejected")
	}
}
