package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type chunkInput struct {
	Content string `json:"content" yaml:"content"`
	Page    int    `json:"page" yaml:"page"`
}

type pageInput struct {
	Page int    `json:"page" yaml:"page"`
	Text string `json:"text" yaml:"text"`
	// File is read relative to the manifest and replaces Text.
	File string `json:"-" yaml:"file"`
}

// ingestRequest mirrors POST /documents. Exactly one of Chunks, Text or
// Pages is set.
type ingestRequest struct {
	Title      string       `json:"title" yaml:"title"`
	SourceType string       `json:"source_type" yaml:"source_type"`
	Chunks     []chunkInput `json:"chunks,omitempty" yaml:"chunks"`
	Text       string       `json:"text,omitempty" yaml:"text"`
	TextFile   string       `json:"-" yaml:"text_file"`
	Pages      []pageInput  `json:"pages,omitempty" yaml:"pages"`
}

type ingestResult struct {
	DocumentID string `json:"document_id"`
	Sections   int    `json:"sections"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		file       string
		manifest   string
		title      string
		sourceType string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a document",
		Long: `Ingest a document from plain text or a YAML manifest.

Examples:
  # Plain text file, chunked server-side
  draftdesk ingest --file handbook.txt --title "Employee Handbook"

  # Text on stdin
  pdftotext handbook.pdf - | draftdesk ingest --file - --title "Handbook" --source-type pdf

  # Manifest with per-page text
  draftdesk ingest --manifest handbook.yaml

Manifest format:
  title: Employee Handbook
  source_type: pdf
  pages:
    - page: 1
      file: pages/001.txt
    - page: 2
      text: "inline page text"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildIngestRequest(cmd.InOrStdin(), file, manifest, title, sourceType)
			if err != nil {
				return err
			}
			return runIngest(cmd, req)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Plain text file to ingest (- for stdin)")
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "YAML manifest describing the document")
	cmd.Flags().StringVar(&title, "title", "", "Document title (overrides manifest)")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Source type such as pdf or txt (overrides manifest)")

	return cmd
}

func runIngest(cmd *cobra.Command, req *ingestRequest) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post(cmd.Context(), "/documents", req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.DocumentID != "" {
			return fmt.Errorf("ingest failed after %d sections were committed to document %s: %s",
				apiErr.Sections, apiErr.DocumentID, apiErr.Message)
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	var result ingestResult
	if err := decodeData(resp, &result); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantsJSON(cmd) {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "Ingested %q as %s (%d sections)\n", req.Title, result.DocumentID, result.Sections)
	return nil
}

// buildIngestRequest assembles the request from either --file or --manifest.
// Flag values for title and source type win over the manifest.
func buildIngestRequest(stdin io.Reader, file, manifest, title, sourceType string) (*ingestRequest, error) {
	if (file == "") == (manifest == "") {
		return nil, fmt.Errorf("exactly one of --file or --manifest is required")
	}

	var req *ingestRequest
	if manifest != "" {
		m, err := loadManifest(manifest)
		if err != nil {
			return nil, err
		}
		req = m
	} else {
		text, err := readInput(stdin, file)
		if err != nil {
			return nil, err
		}
		req = &ingestRequest{Text: text, SourceType: sourceTypeFromPath(file)}
	}

	if title != "" {
		req.Title = title
	}
	if sourceType != "" {
		req.SourceType = sourceType
	}
	if req.Title == "" && file != "" && file != "-" {
		req.Title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("title is required (use --title or set it in the manifest)")
	}
	return req, nil
}

func loadManifest(path string) (*ingestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var req ingestRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	if req.TextFile != "" {
		if req.Text != "" {
			return nil, fmt.Errorf("manifest sets both text and text_file")
		}
		text, err := os.ReadFile(resolve(req.TextFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read text_file: %w", err)
		}
		req.Text = string(text)
	}

	for i := range req.Pages {
		p := &req.Pages[i]
		if p.File == "" {
			continue
		}
		text, err := os.ReadFile(resolve(p.File))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", p.Page, err)
		}
		p.Text = string(text)
	}

	set := 0
	if len(req.Chunks) > 0 {
		set++
	}
	if req.Text != "" {
		set++
	}
	if len(req.Pages) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("manifest must contain exactly one of chunks, text, text_file or pages")
	}

	return &req, nil
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func sourceTypeFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "txt"
	}
	return ext
}
