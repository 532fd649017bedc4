package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quiplabs/quip/internal/client"
)

var sendRetries int

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message and print the reply",
	Long: `Send a message to a conversation and print the assistant's reply.

If the server reports that a turn is already in flight or that an upstream
provider is rate-limited, the command waits the suggested delay and retries.

Examples:
  quip send 7f3a... "why is my code broken"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().IntVar(&sendRetries, "retries", 2, "retries on busy or rate-limited responses")
}

func runSend(cmd *cobra.Command, args []string) error {
	conversationID := args[0]
	text := strings.Join(args[1:], " ")
	ctx := context.Background()
	api := apiClient()

	var result *client.TurnResult
	var err error
	for attempt := 0; ; attempt++ {
		result, err = api.SendMessage(ctx, conversationID, text)
		if err == nil {
			break
		}

		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 || attempt >= sendRetries {
			return fmt.Errorf("send message: %w", err)
		}

		if verbose {
			fmt.Printf("Server busy (%s), retrying in %ds...\n", apiErr.Code, apiErr.RetryAfter)
		}
		time.Sleep(time.Duration(apiErr.RetryAfter) * time.Second)
	}

	fmt.Println(result.Reply)

	if verbose {
		fmt.Printf("\n(context used: %v, persisted: %v)\n", result.ContextUsed, result.Persisted)
	}
	if !result.Persisted {
		fmt.Println("\nNote: the reply could not be saved to the transcript.")
	}
	return nil
}
