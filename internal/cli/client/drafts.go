package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type createDraftRequest struct {
	Question             string   `json:"question"`
	AnswerBody           string   `json:"answer_body"`
	ReferencedSectionIDs []string `json:"referenced_section_ids"`
}

type draftResponse struct {
	ID                   string   `json:"id"`
	Question             string   `json:"question"`
	AnswerBody           string   `json:"answer_body"`
	ReferencedSectionIDs []string `json:"referenced_section_ids"`
	CreatedAt            string   `json:"created_at"`
}

type draftListResponse struct {
	Items   []draftResponse `json:"items"`
	Cursor  string          `json:"cursor,omitempty"`
	HasMore bool            `json:"has_more"`
}

// DraftsCmd creates the drafts parent command.
func DraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage saved answer drafts",
	}

	cmd.AddCommand(draftsCreateCmd())
	cmd.AddCommand(draftsListCmd())
	cmd.AddCommand(draftsGetCmd())
	cmd.AddCommand(draftsDeleteCmd())

	return cmd
}

func draftsCreateCmd() *cobra.Command {
	var (
		question string
		bodyFile string
		refs     []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Save an edited answer as a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd.InOrStdin(), bodyFile)
			if err != nil {
				return err
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			draft, err := createDraft(cmd, api, createDraftRequest{
				Question:             question,
				AnswerBody:           body,
				ReferencedSectionIDs: refs,
			})
			if err != nil {
				return err
			}

			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), draft)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved draft %s\n", draft.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Question the draft answers (required)")
	cmd.Flags().StringVarP(&bodyFile, "body", "b", "-", "File holding the answer body (- for stdin)")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "Referenced section ID (repeatable)")
	cmd.MarkFlagRequired("question")

	return cmd
}

func createDraft(cmd *cobra.Command, api *APIClient, req createDraftRequest) (*draftResponse, error) {
	if req.ReferencedSectionIDs == nil {
		req.ReferencedSectionIDs = []string{}
	}

	resp, err := api.Post(cmd.Context(), "/drafts", req)
	if err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	var draft draftResponse
	if err := decodeData(resp, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func draftsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/drafts", pageQuery(limit, cursor))
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			var list draftListResponse
			if err := decodeData(resp, &list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, list)
			}

			if len(list.Items) == 0 {
				fmt.Fprintln(out, "No drafts found")
				return nil
			}
			for _, d := range list.Items {
				fmt.Fprintf(out, "%s  %s  %s (%d refs)\n", d.ID, shortTime(d.CreatedAt), truncate(d.Question, 60), len(d.ReferencedSectionIDs))
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

func draftsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/drafts/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			var draft draftResponse
			if err := decodeData(resp, &draft); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantsJSON(cmd) {
				return printJSON(out, draft)
			}

			headingColor.Fprintln(out, draft.Question)
			fmt.Fprintln(out, highlightCitations(draft.AnswerBody))
			if len(draft.ReferencedSectionIDs) > 0 {
				dimColor.Fprintf(out, "\nSections: %s\n", strings.Join(draft.ReferencedSectionIDs, ", "))
			}
			return nil
		},
	}
}

func draftsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete(cmd.Context(), "/drafts/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}

			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted draft %s\n", args[0])
			return nil
		},
	}
}

func pageQuery(limit int, cursor string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return q
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
