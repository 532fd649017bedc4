package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	Long:  `List your conversations, most recently active first.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	convs, err := apiClient().ListConversations(context.Background())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet. Start one with: quip new")
		return nil
	}

	for _, conv := range convs {
		fmt.Printf("%s  %-40s  %s\n",
			conv.ID, conv.Title, conv.LastActivity.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
