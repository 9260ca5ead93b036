package commands

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/audio/wav"
	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/verify"
)

var verifyChallenge string

var verifyCmd = &cobra.Command{
	Use:   "verify <user-id> <attempt.wav>",
	Short: "Verify a recording against a user's voiceprint",
	Long: `Run one verification attempt.

The recording passes when its similarity to the enrolled voiceprint reaches
the user's threshold and its deepfake confidence stays below the fake
threshold. A token is printed for accepted attempts when
VOICEGATE_TOKEN_SECRET is set.

Exit status is 0 when accepted, 2 when rejected and 1 on errors.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		userID := args[0]
		seg, err := wav.LoadFile(args[1], a.Config.Audio.SampleRate)
		if err != nil {
			return err
		}

		attemptID := uuid.NewString()
		ctx := verify.WithAttemptID(cmd.Context(), attemptID)
		if verifyChallenge != "" {
			a.Logger.InfoContext(ctx, "challenge", "attempt_id", attemptID, "challenge", verifyChallenge)
		}
		res, err := a.Verifier.Verify(ctx, userID, seg)
		if err != nil {
			return err
		}

		rep := cli.NewVerifyReport(res, attemptID, "")
		if res.Accepted && a.Issuer != nil {
			tok, exp, err := a.Issuer.Issue(userID, attemptID, res.Similarity, res.FakeConfidence)
			if err != nil {
				return err
			}
			rep.Token, rep.TokenExpiresAt = tok, &exp
		}
		if err := outputResult(cmd, rep); err != nil {
			return err
		}
		if !res.Accepted {
			return ErrRejected
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyChallenge, "challenge", "", "challenge phrase the speaker was asked to read (logged only)")
	rootCmd.AddCommand(verifyCmd)
}
