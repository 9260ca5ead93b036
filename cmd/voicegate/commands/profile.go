package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicegate/pkg/cli"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect, delete, export and import enrolled profiles",
}

var profileGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := profileFor(cmd.Context(), a.Profiles, args[0])
		if err != nil {
			return err
		}
		return outputResult(cmd, rep)
	},
}

// userList is the output of `profile list`.
type userList struct {
	Model string   `json:"model" yaml:"model"`
	Users []string `json:"users" yaml:"users"`
}

func (l userList) Text() string {
	if len(l.Users) == 0 {
		return "no users enrolled"
	}
	return strings.Join(l.Users, "\n")
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out := userList{Model: a.Profiles.Model(), Users: []string{}}
		for id, err := range a.Profiles.List(cmd.Context()) {
			if err != nil {
				return err
			}
			out.Users = append(out.Users, id)
		}
		return outputResult(cmd, out)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Profiles.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "deleted %s", args[0])
		return nil
	},
}

var profileExportCmd = &cobra.Command{
	Use:   "export <user-id> <location>",
	Short: "Export a profile to a file or s3://bucket/key",
	Long: `Write the stored profile, embeddings included, to a local file or an
S3 object. The export can be restored with 'voicegate profile import',
for example on another node that uses the same embedding model.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.Profiles.Export(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.Assets.WriteFile(cmd.Context(), args[1], data); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "exported %s to %s", args[0], args[1])
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <location>",
	Short: "Enroll a user from an exported profile",
	Long: `Read an export written by 'voicegate profile export' and enroll its user.
The threshold is recomputed under the local enrollment policy. Exports
from a different embedding model are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.Assets.ReadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		p, err := a.Profiles.Import(cmd.Context(), data)
		if err != nil {
			return err
		}
		return outputResult(cmd, cli.ProfileReport(p.Summary(a.Profiles.Model())))
	},
}

func init() {
	profileCmd.AddCommand(profileGetCmd, profileListCmd, profileDeleteCmd, profileExportCmd, profileImportCmd)
	rootCmd.AddCommand(profileCmd)
}
