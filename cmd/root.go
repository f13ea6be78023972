package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gmail-relay application
var rootCmd = &cobra.Command{
	Use:   "gmail-relay",
	Short: "Relay outbound email requests to the Gmail API",
	Long: `gmail-relay is a single-endpoint HTTP service that accepts outbound
email requests and forwards them to the Gmail API using a stored
OAuth2 credential.

It authorizes once (browser flow or the one-shot authorize command),
persists the refresh token, and silently renews access tokens for the
lifetime of the process.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmail-relay version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
