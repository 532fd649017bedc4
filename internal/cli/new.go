package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Start a new conversation",
	Long: `Start a new conversation and print its ID.

Examples:
  quip new
  quip new "Weekend project ideas"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNew,
}

func runNew(cmd *cobra.Command, args []string) error {
	title := ""
	if len(args) > 0 {
		title = strings.TrimSpace(args[0])
	}

	conv, err := apiClient().CreateConversation(context.Background(), title)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	fmt.Printf("Started conversation %s (%s)\n", conv.ID, conv.Title)
	return nil
}
