package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tregate/internal/app"
)

// serveDebug enables verbose logging across the gateway.
var serveDebug bool

// serveConfigPath is the configuration file to load. Secrets still come
// from the environment.
var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forward-authentication gateway",
	Long: `Starts the gateway's HTTP server: the /auth/validate decision endpoint
consumed by the ingress, plus the session, context and spawn-profile
endpoints consumed by the portal and the downstream hub.

The server runs until terminated (Ctrl+C / SIGTERM) and drains in-flight
requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApplication(&app.Config{
			ConfigPath: serveConfigPath,
			Debug:      serveDebug,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return application.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd)
}
