// Package token issues short-lived session tokens for accepted voice
// verifications.
//
// A token proves that the holder passed both the identity and the liveness
// check a few minutes ago. It carries the scores of that attempt so the
// protected service can apply a stricter local policy if it wants to.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the validity of an issued token.
const DefaultTTL = 5 * time.Minute

// DefaultIssuer is the iss claim when none is configured.
const DefaultIssuer = "voicegate"

var (
	// ErrNoSecret is returned when an Issuer is created without a secret.
	ErrNoSecret = errors.New("token: signing secret is required")

	// ErrInvalid is returned for tokens that fail validation.
	ErrInvalid = errors.New("token: invalid")
)

// Claims are the JWT claims of a verification token.
type Claims struct {
	UserID         string  `json:"user_id"`
	Similarity     float64 `json:"similarity"`
	FakeConfidence float64 `json:"fake_confidence"`
	AttemptID      string  `json:"attempt_id,omitempty"`
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Issuer signs and validates HS256 verification tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	i := &Issuer{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}
	if i.ttl <= 0 {
		i.ttl = DefaultTTL
	}
	if i.issuer == "" {
		i.issuer = DefaultIssuer
	}
	if i.now == nil {
		i.now = time.Now
	}
	return i, nil
}

// TTL returns the token validity.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for an accepted verification.
func (i *Issuer) Issue(userID, attemptID string, similarity, fakeConfidence float64) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := &Claims{
		UserID:         userID,
		Similarity:     similarity,
		FakeConfidence: fakeConfidence,
		AttemptID:      attemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return s, exp, nil
}

// Validate parses a token and returns its claims. Expired, foreign or
// tampered tokens fail with an error wrapping ErrInvalid.
func (i *Issuer) Validate(s string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(s, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !tok.Valid || claims.UserID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
