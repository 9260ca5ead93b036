package commands

import (
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Serve enrollment, verification and profile management over HTTP.

Routes:
  GET    /healthz
  GET    /metrics
  GET    /v1/users
  GET    /v1/users/:id
  DELETE /v1/users/:id
  POST   /v1/users/:id/enroll
  POST   /v1/users/:id/retrain
  POST   /v1/users/:id/verify
  GET    /v1/users/:id/verify/stream   (WebSocket)

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := serveAddr
		if addr == "" {
			addr = a.Config.Server.Address
		}
		if a.Issuer == nil {
			a.Logger.Warn("token secret not set, accepted attempts will not carry a token")
		}
		srv, err := a.Server()
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}
