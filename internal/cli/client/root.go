package client

import (
	"github.com/cloo-solutions/draftdesk/internal/cli"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the draftdesk command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "draftdesk",
		Short: "draftdesk CLI - cited answers from your documents",
		Long: `draftdesk ingests documents and answers questions with citations to the
sections it used.

Environment variables:
  DRAFTDESK_API_KEY   API key for authentication (required)
  DRAFTDESK_API_URL   API base URL (default: http://localhost:8080)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(InitCmd())
	rootCmd.AddCommand(AuthCmd())
	rootCmd.AddCommand(IngestCmd())
	rootCmd.AddCommand(AskCmd())
	rootCmd.AddCommand(DocsCmd())
	rootCmd.AddCommand(DraftsCmd())
	rootCmd.AddCommand(KeysCmd())

	return rootCmd
}
