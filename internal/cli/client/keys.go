package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type apiKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

// KeysCmd manages the calling owner's API keys.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage your API keys",
	}

	cmd.AddCommand(keysCreateCmd())
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysRevokeCmd())

	return cmd
}

func keysCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key. The token is printed once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(cmd.Context(), "/apikeys", map[string]string{"name": args[0]})
			if err != nil {
				return fmt.Errorf("failed to create API key: %w", err)
			}

			var created struct {
				Token string `json:"token"`
				Name  string `json:"name"`
			}
			if err := decodeData(resp, &created); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, created)
			}
			fmt.Fprintf(out, "Key Name: %s\n", created.Name)
			fmt.Fprintf(out, "Token: %s\n", created.Token)
			fmt.Fprintln(out, "\nSave this token now. It cannot be shown again.")
			return nil
		},
	}
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/apikeys", nil)
			if err != nil {
				return fmt.Errorf("failed to list API keys: %w", err)
			}

			var keys []apiKeyResponse
			if err := decodeData(resp, &keys); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys found")
				return nil
			}
			for _, k := range keys {
				status := "active"
				if k.RevokedAt != "" {
					status = "revoked"
				}
				fmt.Fprintf(out, "%s  %-8s  %s  %s\n", k.ID, status, shortTime(k.CreatedAt), k.Name)
			}
			return nil
		},
	}
}

func keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke one of your API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete(cmd.Context(), "/apikeys/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to revoke API key: %w", err)
			}

			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "revoked": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %s revoked\n", args[0])
			return nil
		},
	}
}
