package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type documentResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SourceType   string `json:"source_type"`
	Status       string `json:"status"`
	SectionCount int    `json:"section_count"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type documentListResponse struct {
	Items   []documentResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

// DocsCmd creates the docs parent command.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage ingested documents",
	}

	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsGetCmd())
	cmd.AddCommand(docsDeleteCmd())
	cmd.AddCommand(docsSourceCmd())

	return cmd
}

func docsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/documents", pageQuery(limit, cursor))
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			var list documentListResponse
			if err := decodeData(resp, &list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, list)
			}

			if len(list.Items) == 0 {
				fmt.Fprintln(out, "No documents found")
				return nil
			}
			for _, d := range list.Items {
				fmt.Fprintf(out, "%s  %-9s  %4d sections  %s  %s\n",
					d.ID, statusLabel(d.Status), d.SectionCount, shortTime(d.UpdatedAt), d.Title)
			}
			if list.HasMore {
				fmt.Fprintf(out, "\nMore results: --cursor %s\n", list.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func docsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show document status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/documents/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			var doc documentResponse
			if err := decodeData(resp, &doc); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, doc)
			}

			headingColor.Fprintln(out, doc.Title)
			fmt.Fprintf(out, "ID:       %s\n", doc.ID)
			fmt.Fprintf(out, "Source:   %s\n", doc.SourceType)
			fmt.Fprintf(out, "Status:   %s\n", statusLabel(doc.Status))
			fmt.Fprintf(out, "Sections: %d\n", doc.SectionCount)
			fmt.Fprintf(out, "Created:  %s\n", doc.CreatedAt)
			fmt.Fprintf(out, "Updated:  %s\n", doc.UpdatedAt)
			if doc.Error != "" {
				refuseColor.Fprintf(out, "Error:    %s\n", doc.Error)
			}
			return nil
		},
	}
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete(cmd.Context(), "/documents/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}

			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s\n", args[0])
			return nil
		},
	}
}

func docsSourceCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "source <id>",
		Short: "Get or download the archived source text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/source", nil)
			if err != nil {
				return fmt.Errorf("source lookup failed: %w", err)
			}

			var src struct {
				DownloadURL string `json:"download_url"`
			}
			if err := decodeData(resp, &src); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputPath == "" {
				if wantsJSON(cmd) {
					return printJSON(out, src)
				}
				fmt.Fprintln(out, src.DownloadURL)
				return nil
			}

			err = api.DownloadFile(cmd.Context(), src.DownloadURL, outputPath, func(current, total int64) {
				if total > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rDownloading... %d%%", current*100/total)
				}
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved source to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "download", "d", "", "Download the source to this path instead of printing the URL")

	return cmd
}

func statusLabel(status string) string {
	switch status {
	case "ready":
		return citedColor.Sprint(status)
	case "failed":
		return refuseColor.Sprint(status)
	default:
		return status
	}
}
