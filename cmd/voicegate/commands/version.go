package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/cmd/voicegate/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputResult(cmd, build.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
