package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/verify"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Accept lipgloss.Color
	Reject lipgloss.Color
	Dim    lipgloss.Color
}

// DefaultTheme is green for accept, red for reject.
var DefaultTheme = Theme{
	Accept: lipgloss.Color("#00ff9f"),
	Reject: lipgloss.Color("#ff5f5f"),
	Dim:    lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Accept lipgloss.Style
	Reject lipgloss.Style
	Label  lipgloss.Style
	Dim    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Accept: lipgloss.NewStyle().Bold(true).Foreground(t.Accept),
		Reject: lipgloss.NewStyle().Bold(true).Foreground(t.Reject),
		Label:  lipgloss.NewStyle().Width(16),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

var defaultStyles = NewStyles(DefaultTheme)

// VerifyReport is the printable outcome of `voicegate verify`.
type VerifyReport verify.Report

// NewVerifyReport converts a verification result.
func NewVerifyReport(r verify.Result, attemptID, token string) VerifyReport {
	rep := verify.NewReport(r, attemptID)
	rep.Token = token
	return VerifyReport(rep)
}

// Text implements Texter.
func (v VerifyReport) Text() string {
	s := defaultStyles
	var b strings.Builder
	if v.Accepted {
		b.WriteString(s.Accept.Render("ACCEPT"))
	} else {
		b.WriteString(s.Reject.Render("REJECT"))
		b.WriteString(" " + v.Reason.String())
	}
	b.WriteString(s.Dim.Render("  " + v.UserID + " " + v.AttemptID))
	b.WriteByte('\n')

	speech := time.Duration(v.SpeechSeconds * float64(time.Second))
	row(&b, "speech", FormatDuration(speech))
	if v.Reason != verify.ReasonNoSpeech && v.Reason != verify.ReasonInsufficientSpeech {
		row(&b, "similarity", FormatScore(v.Similarity, v.Threshold, true))
		row(&b, "fake confidence", FormatScore(v.FakeConfidence, v.FakeThreshold, false))
	}
	if v.Token != "" {
		row(&b, "token", v.Token)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProfileReport is the printable form of a profile summary.
type ProfileReport profile.Summary

// Text implements Texter.
func (p ProfileReport) Text() string {
	s := defaultStyles
	var b strings.Builder
	status := s.Accept.Render("current")
	if p.Stale {
		status = s.Reject.Render("stale, re-enroll required")
	}
	fmt.Fprintf(&b, "%s  %s\n", p.UserID, status)
	row(&b, "model", fmt.Sprintf("%s (%d dims)", p.Model, p.Dimension))
	row(&b, "samples", fmt.Sprint(p.Samples))
	row(&b, "threshold", fmt.Sprintf("%.3f (mean %.3f, std %.3f over %d pairs)", p.Threshold, p.Stats.Mean, p.Stats.StdDev, p.Stats.Pairs))
	if p.VoiceHash != "" {
		row(&b, "voice", voiceprint.VoiceLabel(p.VoiceHash))
	}
	row(&b, "revision", fmt.Sprint(p.Revision))
	row(&b, "updated", p.UpdatedAt.Format(time.RFC3339))
	return strings.TrimRight(b.String(), "\n")
}

func row(b *strings.Builder, label, value string) {
	b.WriteString("  ")
	b.WriteString(defaultStyles.Label.Render(label))
	b.WriteString(value)
	b.WriteByte('\n')
}
