package client

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const envFile = ".env"

// InitCmd writes a .env for the working directory after checking the key
// against the server.
func InitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write DRAFTDESK_API_KEY and DRAFTDESK_API_URL to ./.env",
		Long: `Verifies the API key against the server, then writes ./.env so later
commands in this directory pick it up without a global login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(envFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", envFile)
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if !IsValidAPIKey(api.apiKey) {
				return fmt.Errorf("invalid API key format (expected: ddk_ + 64 hex characters)")
			}

			if _, err := api.Get(cmd.Context(), "/apikeys", nil); err != nil {
				return fmt.Errorf("API key check failed: %w", err)
			}

			envData := fmt.Sprintf("%s=%s\n%s=%s\n", envAPIKey, api.apiKey, envAPIURL, api.baseURL)
			if err := os.WriteFile(envFile, []byte(envData), 0600); err != nil {
				return fmt.Errorf("failed to create %s: %w", envFile, err)
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, map[string]any{"success": true, "env": envFile, "api_url": api.baseURL})
			}
			fmt.Fprintf(out, "Wrote %s for %s\n", envFile, api.baseURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .env")

	return cmd
}
