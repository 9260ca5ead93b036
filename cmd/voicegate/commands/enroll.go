package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/wav"
	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/profile"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <user-id> <sample.wav>...",
	Short: "Enroll a user from WAV recordings",
	Long: `Build a voiceprint profile from several recordings of the same speaker.

Every recording must contain enough active speech. The per-user threshold
is derived from how consistent the recordings are with each other.

Example:
  voicegate enroll alice a1.wav a2.wav a3.wav`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnroll(cmd, args, false)
	},
}

var retrainCmd = &cobra.Command{
	Use:   "retrain <user-id> <sample.wav>...",
	Short: "Replace the recordings of an enrolled user",
	Long: `Rebuild an existing profile from a new set of recordings.

Use this after the embedding model changed and the profile is reported as
stale. The user must already be enrolled.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnroll(cmd, args, true)
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(retrainCmd)
}

func runEnroll(cmd *cobra.Command, args []string, retrain bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	userID := args[0]
	samples, err := loadSamples(args[1:], a.Config.Audio.SampleRate)
	if err != nil {
		return err
	}

	fn := a.Enroller.Enroll
	if retrain {
		fn = a.Enroller.Retrain
	}
	p, err := fn(cmd.Context(), userID, samples)
	if err != nil {
		return err
	}
	return outputResult(cmd, cli.ProfileReport(p.Summary(a.Profiles.Model())))
}

func loadSamples(paths []string, rate int) ([]*pcm.Segment, error) {
	samples := make([]*pcm.Segment, len(paths))
	for i, path := range paths {
		seg, err := wav.LoadFile(path, rate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		samples[i] = seg
	}
	return samples, nil
}

// profileFor loads the stored profile and its summary against the current model.
func profileFor(ctx context.Context, store *profile.Store, userID string) (cli.ProfileReport, error) {
	p, err := store.Load(ctx, userID)
	if err != nil {
		return cli.ProfileReport{}, err
	}
	return cli.ProfileReport(p.Summary(store.Model())), nil
}
