package voiceprint

import (
	"errors"
	"testing"
)

func ramp(dim int, step float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i)*step - 0.5
	}
	return v
}

func mustHasher(t *testing.T, dim, bits int, seed uint64) *Hasher {
	t.Helper()
	h, err := NewHasher(dim, bits, seed)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestHasherDeterministic(t *testing.T) {
	h1 := mustHasher(t, 57, 16, 42)
	h2 := mustHasher(t, 57, 16, 42)
	v := ramp(57, 0.02)
	a, err := h1.Hash(v)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := h2.Hash(v)
	if a != b {
		t.Fatalf("same seed produced %q and %q", a, b)
	}
	if len(a) != 4 {
		t.Fatalf("len = %d, want 4", len(a))
	}
	for _, c := range a {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			t.Fatalf("non uppercase hex %q", a)
		}
	}
}

func TestHasherScaleInvariant(t *testing.T) {
	h := mustHasher(t, 57, 16, 7)
	v := ramp(57, 0.02)
	w := make([]float32, len(v))
	for i := range v {
		w[i] = 3 * v[i]
	}
	a, _ := h.Hash(v)
	b, _ := h.Hash(w)
	if a != b {
		t.Fatalf("scaled vector hashed to %q, original %q", b, a)
	}
}

func TestHasherOppositeVectorsDiffer(t *testing.T) {
	h := mustHasher(t, 8, 8, 1)
	v := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	w := make([]float32, len(v))
	for i := range v {
		w[i] = -v[i]
	}
	a, _ := h.Hash(v)
	b, _ := h.Hash(w)
	if a == b {
		t.Fatalf("opposite vectors share hash %q", a)
	}
}

func TestHasherErrors(t *testing.T) {
	if _, err := NewHasher(8, 6, 1); err == nil {
		t.Fatal("expected error for bits not a multiple of 4")
	}
	if _, err := NewHasher(0, 16, 1); err == nil {
		t.Fatal("expected error for zero dimension")
	}
	h := mustHasher(t, 8, 16, 1)
	if _, err := h.Hash(make([]float32, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestVoiceLabel(t *testing.T) {
	if got := VoiceLabel("A3F8"); got != "voice:A3F8" {
		t.Fatalf("VoiceLabel = %q", got)
	}
}
