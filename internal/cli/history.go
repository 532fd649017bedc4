package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quiplabs/quip/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	view, err := apiClient().GetConversation(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("fetch conversation: %w", err)
	}

	fmt.Printf("# %s\n\n", view.Conversation.Title)
	for _, turn := range view.Turns {
		label := "you"
		if turn.Role == models.RoleAssistant {
			label = "quip"
		}
		fmt.Printf("[%s] %s: %s\n",
			turn.CreatedAt.Local().Format("15:04"), label, turn.Content)
	}
	return nil
}
