package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatekeep-io/gatekeep/client"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage registered OAuth clients",
}

var (
	clientName         string
	clientIDFlag       string
	clientRedirectURL  string
	clientGrantTypes   []string
	clientScopes       []string
	clientConfidential bool
)

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new OAuth client",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, secret, err := registry.Create(cmd.Context(), client.CreateInput{
			Name:           clientName,
			ClientID:       clientIDFlag,
			RedirectURL:    clientRedirectURL,
			GrantTypes:     clientGrantTypes,
			Scopes:         clientScopes,
			IsConfidential: clientConfidential,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Client registered: id=%s client_id=%s\n", c.ID, c.ClientID)
		if secret != "" {
			// Shown exactly once; only the hash is stored.
			fmt.Printf("Client secret: %s\n", secret)
		}
		return nil
	},
}

var clientCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Revoke a registered OAuth client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registry.Close(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Client %s revoked\n", args[0])
		return nil
	},
}

func init() {
	clientCreateCmd.Flags().StringVar(&clientName, "name", "", "display name of the client")
	clientCreateCmd.Flags().StringVar(&clientIDFlag, "client-id", "", "public client identifier")
	clientCreateCmd.Flags().StringVar(&clientRedirectURL, "redirect-url", "", "registered redirect URL")
	clientCreateCmd.Flags().StringSliceVar(&clientGrantTypes, "grant-types", []string{"authorization_code"}, "allowed grant types")
	clientCreateCmd.Flags().StringSliceVar(&clientScopes, "scopes", nil, "allowed scopes")
	clientCreateCmd.Flags().BoolVar(&clientConfidential, "confidential", false, "client can hold a secret")
	_ = clientCreateCmd.MarkFlagRequired("name")
	_ = clientCreateCmd.MarkFlagRequired("client-id")

	clientCmd.AddCommand(clientCreateCmd)
	clientCmd.AddCommand(clientCloseCmd)
	rootCmd.AddCommand(clientCmd)
}
