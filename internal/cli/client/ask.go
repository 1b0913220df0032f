package client

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type askRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type answerReference struct {
	SectionID     string  `json:"section_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	PageNumber    int     `json:"page_number"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
	Marker        string  `json:"marker,omitempty"`
}

type answerResponse struct {
	Answer            string            `json:"answer"`
	CitedReferenceIDs []string          `json:"cited_reference_ids"`
	Grounded          bool              `json:"grounded"`
	Refused           bool              `json:"refused"`
	References        []answerReference `json:"references"`
	DraftID           string            `json:"draft_id,omitempty"`
}

var (
	citationTag = regexp.MustCompile(`\[R\d+(?:\s*,\s*R\d+)*\]`)

	citeColor    = color.New(color.FgCyan, color.Bold)
	refuseColor  = color.New(color.FgYellow)
	headingColor = color.New(color.Bold)
	citedColor   = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

const snippetLen = 160

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		k         int
		saveDraft bool
		showAll   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against your documents",
		Long: `Retrieves the most relevant sections and generates an answer that cites
them as [R1], [R2], ...

Examples:
  draftdesk ask "How many vacation days do new hires get?"
  draftdesk ask -k 8 --save-draft "What is the expense policy for travel?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runAsk(cmd, question, k, saveDraft, showAll)
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of sections to retrieve (server default when 0)")
	cmd.Flags().BoolVar(&saveDraft, "save-draft", false, "Save the answer as a draft")
	cmd.Flags().BoolVar(&showAll, "all-references", false, "List uncited references too")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, k int, saveDraft, showAll bool) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question must not be empty")
	}
	if k < 0 {
		return fmt.Errorf("k must not be negative")
	}

	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(cmd.Context(), "/answers", askRequest{Question: question, K: k})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var answer answerResponse
	if err := decodeData(resp, &answer); err != nil {
		return err
	}

	if saveDraft && !answer.Refused {
		draft, err := createDraft(cmd, api, createDraftRequest{
			Question:             question,
			AnswerBody:           answer.Answer,
			ReferencedSectionIDs: answer.CitedReferenceIDs,
		})
		if err != nil {
			return err
		}
		answer.DraftID = draft.ID
	}

	out := cmd.OutOrStdout()
	if wantsJSON(cmd) {
		return printJSON(out, answer)
	}

	renderAnswer(out, &answer, showAll)
	if answer.DraftID != "" {
		fmt.Fprintf(out, "\nSaved draft %s\n", answer.DraftID)
	}
	return nil
}

// renderAnswer prints the answer with citation tags highlighted, followed by
// the references it cites.
func renderAnswer(w io.Writer, answer *answerResponse, showAll bool) {
	if answer.Refused {
		refuseColor.Fprintln(w, answer.Answer)
		return
	}

	fmt.Fprintln(w, highlightCitations(answer.Answer))

	cited := make(map[string]bool, len(answer.CitedReferenceIDs))
	for _, id := range answer.CitedReferenceIDs {
		cited[id] = true
	}

	var listed []answerReference
	for _, ref := range answer.References {
		if cited[ref.SectionID] || showAll {
			listed = append(listed, ref)
		}
	}
	if len(listed) == 0 {
		if !answer.Grounded {
			dimColor.Fprintln(w, "\n(no references cited)")
		}
		return
	}

	fmt.Fprintln(w)
	headingColor.Fprintln(w, "References")
	for _, ref := range listed {
		marker := ref.Marker
		if marker == "" {
			marker = fmt.Sprintf("R%d", ref.Rank)
		}
		title := ref.DocumentTitle
		if title == "" {
			title = ref.DocumentID
		}

		tag := citeColor.Sprintf("[%s]", marker)
		if cited[ref.SectionID] {
			fmt.Fprintf(w, "  %s %s, p.%d %s\n", tag, title, ref.PageNumber, citedColor.Sprint("(cited)"))
		} else {
			fmt.Fprintf(w, "  %s %s, p.%d\n", tag, title, ref.PageNumber)
		}
		dimColor.Fprintf(w, "      %s\n", snippet(ref.Content))
	}
}

func highlightCitations(text string) string {
	return citationTag.ReplaceAllStringFunc(text, func(tag string) string {
		return citeColor.Sprint(tag)
	})
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetLen {
		return content
	}
	return string(runes[:snippetLen]) + "..."
}
