package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/cmd/voicegate/internal/app"
	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/config"
)

// ErrRejected is returned by verify when the attempt was decided and
// rejected. main maps it to exit code 2.
var ErrRejected = errors.New("verification rejected")

var (
	// Global flags
	verbose      bool
	configFile   string
	dataDir      string
	formatOutput string
	outputFile   string
)

var rootCmd = &cobra.Command{
	Use:   "voicegate",
	Short: "Voice authentication: enroll speakers and verify recordings",
	Long: `voicegate - speaker verification with deepfake screening.

A verification attempt passes only when the voice matches the enrolled
voiceprint of the claimed user AND the recording does not look synthetic.

Configuration is read from --config, or ~/.voicegate/config.yaml when it
exists. Profiles live in ~/.voicegate/data unless storage.dir or
--data-dir says otherwise. Set VOICEGATE_TOKEN_SECRET to issue tokens
for accepted attempts.

Examples:
  # Enroll from three recordings
  voicegate enroll alice a1.wav a2.wav a3.wav

  # Verify a recording; exit status 2 means rejected
  voicegate verify alice attempt.wav

  # Serve the HTTP and WebSocket API
  voicegate serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.voicegate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "profile database directory")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "output", "o", "text", "output format (text, yaml, json)")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output-file", "", "write output to file instead of stdout")
}

// loadConfig resolves the config file and the data directory.
func loadConfig() (*config.Config, error) {
	path := configFile
	var paths *cli.Paths
	if path == "" || dataDir == "" {
		p, err := cli.NewPaths()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		paths = p
	}
	if path == "" {
		path = paths.ConfigFileIfExists()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	switch {
	case dataDir != "":
		cfg.Storage.Dir = dataDir
	case cfg.Storage.Dir == "":
		if err := paths.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		cfg.Storage.Dir = paths.DataDir()
	}
	return cfg, nil
}

// openApp loads the configuration and builds the engine. The caller must
// Close the returned App.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr(), verbose)
	slog.SetDefault(logger)
	return app.New(cmd.Context(), cfg, logger)
}

func outputResult(cmd *cobra.Command, result any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	opts := cli.OutputOptions{Format: format, File: outputFile}
	if outputFile == "" {
		opts.Writer = cmd.OutOrStdout()
	}
	return cli.Output(result, opts)
}
