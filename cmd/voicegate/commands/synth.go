package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/audio/synth"
	"github.com/haivivi/voicegate/pkg/audio/wav"
	"github.com/haivivi/voicegate/pkg/cli"
)

var voices = map[string]synth.Voice{
	"alice": synth.Alice,
	"bob":   synth.Bob,
	"carol": synth.Carol,
}

var (
	synthSeconds float64
	synthSeed    uint64
	synthNoise   float64
	synthRate    int
	synthSilence bool
)

var synthCmd = &cobra.Command{
	Use:   "synth <voice> <out.wav>",
	Short: "Write a synthetic test recording",
	Long: `Render a deterministic synthetic voice to a 16-bit WAV file.

Voices: alice, bob, carol. Different seeds give different takes of the same
voice, which is enough to try enroll and verify without a microphone.

Example:
  for i in 1 2 3; do voicegate synth alice a$i.wav --seed $i; done
  voicegate enroll alice a1.wav a2.wav a3.wav
  voicegate synth alice try.wav --seed 9
  voicegate verify alice try.wav`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := voices[strings.ToLower(args[0])]
		if !ok {
			names := make([]string, 0, len(voices))
			for name := range voices {
				names = append(names, name)
			}
			slices.Sort(names)
			return fmt.Errorf("unknown voice %q (want one of %s)", args[0], strings.Join(names, ", "))
		}
		if synthSeconds <= 0 {
			return fmt.Errorf("--seconds must be positive")
		}
		seg := v.Render(synthRate, synth.Take{
			Seconds: synthSeconds,
			Noise:   synthNoise,
			Seed:    synthSeed,
		})
		if synthSilence {
			seg = synth.Silence(synthRate, synthSeconds)
		}
		if err := wav.WriteFile(args[1], seg); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "wrote %s (%s)", args[1], cli.FormatDuration(seg.Duration()))
		return nil
	},
}

func init() {
	synthCmd.Flags().Float64Var(&synthSeconds, "seconds", 2, "duration in seconds")
	synthCmd.Flags().Uint64Var(&synthSeed, "seed", 1, "take seed")
	synthCmd.Flags().Float64Var(&synthNoise, "noise", 0, "white noise amplitude")
	synthCmd.Flags().IntVar(&synthRate, "rate", 16000, "sample rate in Hz")
	synthCmd.Flags().BoolVar(&synthSilence, "silence", false, "write silence instead of the voice")
	rootCmd.AddCommand(synthCmd)
}
