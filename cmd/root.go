package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the tregate gateway.
var rootCmd = &cobra.Command{
	Use:   "tregate",
	Short: "Forward-authentication gateway for trusted research environments",
	Long: `tregate is the forward-authentication decision service sitting between
the ingress and the research applications. For every inbound request it
resolves a credential, validates it against the identity provider,
authorizes the caller's project membership and emits the signed identity
headers the downstream applications trust.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tregate version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
