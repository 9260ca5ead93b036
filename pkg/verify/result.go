package verify

import "time"

// DefaultFakeThreshold is the deepfake confidence at which an attempt is
// rejected regardless of similarity.
const DefaultFakeThreshold = 0.70

// Result is the outcome of one verification attempt. Scores are zero when
// the attempt stopped before scoring (no_speech, insufficient_speech).
type Result struct {
	UserID         string        `json:"user_id" yaml:"user_id"`
	Similarity     float64       `json:"similarity" yaml:"similarity"`
	FakeConfidence float64       `json:"fake_confidence" yaml:"fake_confidence"`
	Threshold      float64       `json:"threshold" yaml:"threshold"`
	FakeThreshold  float64       `json:"fake_threshold" yaml:"fake_threshold"`
	Accepted       bool          `json:"accepted" yaml:"accepted"`
	Reason         Reason        `json:"reason" yaml:"reason"`
	Speech         time.Duration `json:"-" yaml:"-"`
}

// SpeechSeconds returns the active speech duration in seconds.
func (r Result) SpeechSeconds() float64 { return r.Speech.Seconds() }

// Decide applies the two-factor policy. A deepfake score at or above
// fakeThreshold rejects with ReasonDeepfakeSuspected even when identity
// also fails. Otherwise the attempt is accepted iff similarity reaches
// threshold. A NaN score never accepts.
func Decide(similarity, threshold, fake, fakeThreshold float64) (bool, Reason) {
	if !(fake < fakeThreshold) {
		return false, ReasonDeepfakeSuspected
	}
	if !(similarity >= threshold) {
		return false, ReasonIdentityMismatch
	}
	return true, ReasonNone
}

// Report is the wire form of a Result as returned by the HTTP API and the
// CLI.
type Report struct {
	AttemptID      string     `json:"attempt_id" yaml:"attempt_id"`
	UserID         string     `json:"user_id" yaml:"user_id"`
	Accepted       bool       `json:"accepted" yaml:"accepted"`
	Reason         Reason     `json:"reason" yaml:"reason"`
	Similarity     float64    `json:"similarity" yaml:"similarity"`
	Threshold      float64    `json:"threshold" yaml:"threshold"`
	FakeConfidence float64    `json:"fake_confidence" yaml:"fake_confidence"`
	FakeThreshold  float64    `json:"fake_threshold" yaml:"fake_threshold"`
	SpeechSeconds  float64    `json:"speech_seconds" yaml:"speech_seconds"`
	Token          string     `json:"token,omitempty" yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
}

// NewReport converts r.
func NewReport(r Result, attemptID string) Report {
	return Report{
		AttemptID:      attemptID,
		UserID:         r.UserID,
		Accepted:       r.Accepted,
		Reason:         r.Reason,
		Similarity:     r.Similarity,
		Threshold:      r.Threshold,
		FakeConfidence: r.FakeConfidence,
		FakeThreshold:  r.FakeThreshold,
		SpeechSeconds:  r.SpeechSeconds(),
	}
}
