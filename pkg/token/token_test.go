package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{
		Secret: []byte("test-secret"),
		TTL:    time.Minute,
		Now:    func() time.Time { return *now },
	})
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func TestIssueValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newIssuer(t, &now)

	s, exp, err := i.Issue("alice", "a-1", 0.91, 0.12)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(now.Add(time.Minute)) {
		t.Fatalf("exp = %v", exp)
	}
	c, err := i.Validate(s)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "alice" || c.Subject != "alice" || c.AttemptID != "a-1" {
		t.Fatalf("claims = %+v", c)
	}
	if c.Similarity != 0.91 || c.FakeConfidence != 0.12 {
		t.Fatalf("scores = %f, %f", c.Similarity, c.FakeConfidence)
	}
	if c.Issuer != DefaultIssuer {
		t.Fatalf("issuer = %q", c.Issuer)
	}
}

func TestValidateExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newIssuer(t, &now)
	s, _, err := i.Issue("alice", "", 0.9, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	_, err = i.Validate(s)
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	i := newIssuer(t, &now)
	other, _ := NewIssuer(Config{Secret: []byte("other")})
	s, _, err := other.Issue("alice", "", 0.9, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := i.Validate(s); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestValidateRejectsTampered(t *testing.T) {
	now := time.Now()
	i := newIssuer(t, &now)
	s, _, _ := i.Issue("alice", "", 0.9, 0.1)
	parts := strings.Split(s, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := i.Validate(strings.Join(parts, ".")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(Config{}); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v", err)
	}
}
