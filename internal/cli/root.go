// Package cli provides the command-line interface for quip.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quiplabs/quip/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quip",
	Short: "Chat with an assistant that remembers",
	Long: `Quip is a conversational assistant with two-tier memory: a verbatim
transcript window per conversation plus semantic recall of your earlier
conversations.

Register once, log in, and chat from the terminal.`,
	Version: Version,
}

// apiClient builds a client with the saved session token, if any.
func apiClient() *client.Client {
	token, err := loadToken()
	if err != nil && verbose {
		fmt.Fprintf(os.Stderr, "Warning: could not read saved session: %v\n", err)
	}
	return client.New(serverURL, token)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $QUIP_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
}
