package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	registerFirstName string
	registerLastName  string
)

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create a new account",
	Long: `Create a new account on the quip server and log in.

The password is read from the terminal; it is never passed as an argument.

Examples:
  quip register alice@example.com --first-name Alice --last-name Smith`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerFirstName, "first-name", "", "first name")
	registerCmd.Flags().StringVar(&registerLastName, "last-name", "", "last name")
}

func runRegister(cmd *cobra.Command, args []string) error {
	email := args[0]
	ctx := context.Background()

	password, err := promptPassword("Password (min 8 characters): ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	result, err := apiClient().Register(ctx, email, registerFirstName, registerLastName, password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := saveToken(result.Token); err != nil {
		fmt.Printf("Account created, but the session could not be saved: %v\n", err)
		return nil
	}

	fmt.Printf("Welcome, %s. You are logged in.\n", result.User.Email)
	return nil
}
