package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage user sessions",
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Log a session out and revoke its refresh tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authService.CloseSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s closed\n", args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionCloseCmd)
	rootCmd.AddCommand(sessionCmd)
}
