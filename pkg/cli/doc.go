// Package cli provides terminal helpers for the voicegate command.
//
// This package includes:
//   - Output formatting (YAML, JSON, styled text)
//   - Rendering of verification results and profile summaries
//   - The ~/.voicegate directory layout
//
// Example usage:
//
//	res, err := verifier.Verify(ctx, "alice", seg)
//	cli.Output(cli.NewVerifyReport(res, attemptID, ""), cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	})
package cli
