package verify

import "fmt"

// Reason explains a verification decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoSpeech
	ReasonInsufficientSpeech
	ReasonIdentityMismatch
	ReasonDeepfakeSuspected
)

var reasonNames = [...]string{
	ReasonNone:               "none",
	ReasonNoSpeech:           "no_speech",
	ReasonInsufficientSpeech: "insufficient_speech",
	ReasonIdentityMismatch:   "identity_mismatch",
	ReasonDeepfakeSuspected:  "deepfake_suspected",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// ParseReason is the inverse of Reason.String.
func ParseReason(s string) (Reason, error) {
	for i, name := range reasonNames {
		if name == s {
			return Reason(i), nil
		}
	}
	return 0, fmt.Errorf("verify: unknown reason %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(reasonNames) {
		return nil, fmt.Errorf("verify: invalid reason %d", int(r))
	}
	return []byte(reasonNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(b []byte) error {
	v, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
