// Package main is the entry point for the voicegate CLI.
//
// Usage:
//
//	voicegate [flags] <command> [subcommand] [args]
//
// Commands:
//
//	enroll     - Enroll a user from WAV recordings
//	retrain    - Replace the recordings of an enrolled user
//	verify     - Verify a recording against a user's voiceprint
//	profile    - Manage profiles (get, list, delete, export, import)
//	serve      - Run the HTTP/WebSocket service
//	synth      - Write a synthetic test recording
//	version    - Show version information
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haivivi/voicegate/cmd/voicegate/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, commands.ErrRejected):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
