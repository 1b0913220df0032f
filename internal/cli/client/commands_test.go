package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// runCLI executes the draftdesk command tree against server.
func runCLI(t *testing.T, server *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	useTempConfig(t)
	t.Chdir(t.TempDir())

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-key", testKey, "--api-url", server.URL}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestIngestCmd_Manifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "001.txt"), []byte("Vacation is 20 days."), 0644))
	manifest := filepath.Join(dir, "handbook.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`title: Employee Handbook
source_type: pdf
pages:
  - page: 1
    file: pages/001.txt
  - page: 2
    text: Expenses need receipts.
`), 0644))

	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(w, http.StatusCreated, map[string]any{"document_id": "doc-1", "sections": 2})
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "ingest", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, `Ingested "Employee Handbook" as doc-1 (2 sections)`)

	assert.Equal(t, "Employee Handbook", got["title"])
	assert.Equal(t, "pdf", got["source_type"])
	assert.NotContains(t, got, "text")
	pages := got["pages"].([]any)
	require.Len(t, pages, 2)
	assert.Equal(t, "Vacation is 20 days.", pages[0].(map[string]any)["text"])
	assert.Equal(t, float64(2), pages[1].(map[string]any)["page"])
}

func TestIngestCmd_StdinText(t *testing.T) {
	var got ingestRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(w, http.StatusCreated, map[string]any{"document_id": "doc-2", "sections": 1})
	}))
	defer server.Close()

	out, err := runCLI(t, server, "plain body text", "--output", "ingest", "--file", "-", "--title", "Notes")
	require.NoError(t, err)

	var result ingestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "doc-2", result.DocumentID)
	assert.Equal(t, "plain body text", got.Text)
	assert.Equal(t, "txt", got.SourceType)
}

func TestIngestCmd_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"embedding service unavailable","document_id":"doc-3","sections":4}`))
	}))
	defer server.Close()

	_, err := runCLI(t, server, "text", "ingest", "--file", "-", "--title", "Big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 sections were committed to document doc-3")
}

func TestBuildIngestRequest(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "policy.md")
	require.NoError(t, os.WriteFile(textPath, []byte("# Policy"), 0644))

	t.Run("title and type from file name", func(t *testing.T) {
		req, err := buildIngestRequest(nil, textPath, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "policy", req.Title)
		assert.Equal(t, "md", req.SourceType)
		assert.Equal(t, "# Policy", req.Text)
	})

	t.Run("needs exactly one input", func(t *testing.T) {
		_, err := buildIngestRequest(nil, "", "", "t", "")
		assert.Error(t, err)
		_, err = buildIngestRequest(nil, textPath, "m.yaml", "t", "")
		assert.Error(t, err)
	})

	t.Run("stdin needs a title", func(t *testing.T) {
		_, err := buildIngestRequest(strings.NewReader("x"), "-", "", "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "title is required")
	})

	t.Run("manifest with two bodies", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("title: x\ntext: a\nchunks:\n  - content: b\n    page: 1\n"), 0644))
		_, err := buildIngestRequest(nil, "", path, "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of")
	})

	t.Run("manifest text_file resolves relative to manifest", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		require.NoError(t, os.WriteFile(path, []byte("title: Policy\ntext_file: policy.md\n"), 0644))
		req, err := buildIngestRequest(nil, "", path, "", "txt")
		require.NoError(t, err)
		assert.Equal(t, "# Policy", req.Text)
		assert.Equal(t, "txt", req.SourceType)
	})
}

func sampleAnswer() answerResponse {
	return answerResponse{
		Answer:            "New hires get 20 days [R1]. Unused days roll over [R1, R2].",
		CitedReferenceIDs: []string{"sec-1", "sec-2"},
		Grounded:          true,
		References: []answerReference{
			{SectionID: "sec-1", DocumentID: "doc-1", DocumentTitle: "Handbook", PageNumber: 4, Content: "Employees accrue 20 days.", Rank: 1, Marker: "R1"},
			{SectionID: "sec-2", DocumentID: "doc-1", DocumentTitle: "Handbook", PageNumber: 5, Content: "Unused days roll over.", Rank: 2, Marker: "R2"},
			{SectionID: "sec-3", DocumentID: "doc-2", PageNumber: 1, Content: "Unrelated text.", Rank: 3},
		},
	}
}

func TestRenderAnswer(t *testing.T) {
	answer := sampleAnswer()

	var out bytes.Buffer
	renderAnswer(&out, &answer, false)
	text := out.String()

	assert.Contains(t, text, "New hires get 20 days [R1].")
	assert.Contains(t, text, "[R1] Handbook, p.4 (cited)")
	assert.Contains(t, text, "[R2] Handbook, p.5 (cited)")
	assert.NotContains(t, text, "Unrelated text.")

	out.Reset()
	renderAnswer(&out, &answer, true)
	assert.Contains(t, out.String(), "[R3] doc-2, p.1\n")
}

func TestRenderAnswer_Refused(t *testing.T) {
	var out bytes.Buffer
	renderAnswer(&out, &answerResponse{Answer: "I could not find this in your documents.", Refused: true}, false)
	assert.Equal(t, "I could not find this in your documents.\n", out.String())
}

func TestHighlightCitations(t *testing.T) {
	color.NoColor = false
	defer func() { color.NoColor = true }()

	got := highlightCitations("see [R2] and [R1, R3] but not [x]")
	assert.Contains(t, got, citeColor.Sprint("[R2]"))
	assert.Contains(t, got, citeColor.Sprint("[R1, R3]"))
	assert.Contains(t, got, "[x]")
}

func TestAskCmd_SaveDraft(t *testing.T) {
	var draftBody createDraftRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/answers":
			var req askRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "how many vacation days", req.Question)
			assert.Equal(t, 3, req.K)
			writeData(w, http.StatusOK, sampleAnswer())
		case "/drafts":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&draftBody))
			writeData(w, http.StatusCreated, draftResponse{ID: "draft-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "ask", "-k", "3", "--save-draft", "how", "many", "vacation", "days")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved draft draft-1")

	assert.Equal(t, "how many vacation days", draftBody.Question)
	assert.Equal(t, []string{"sec-1", "sec-2"}, draftBody.ReferencedSectionIDs)
}

func TestAskCmd_RejectsNegativeK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer server.Close()

	_, err := runCLI(t, server, "", "ask", "-k", "-1", "anything")
	require.Error(t, err)
}

func TestDocsListCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents", r.URL.Path)
		assert.Equal(t, "cur-1", r.URL.Query().Get("cursor"))
		writeData(w, http.StatusOK, documentListResponse{
			Items: []documentResponse{
				{ID: "doc-1", Title: "Handbook", Status: "ready", SectionCount: 12, UpdatedAt: "2026-10-01T09:30:00Z"},
			},
			Cursor:  "cur-2",
			HasMore: true,
		})
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "docs", "list", "--cursor", "cur-1")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "2026-10-01 09:30")
	assert.Contains(t, out, "Handbook")
	assert.Contains(t, out, "--cursor cur-2")
}

func TestDocsDeleteCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "docs", "delete", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted document doc-1")
}

func TestDocsGetCmd_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"document not found"}`))
	}))
	defer server.Close()

	_, err := runCLI(t, server, "", "docs", "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")
}

func TestDraftsCreateCmd_FromStdin(t *testing.T) {
	var got createDraftRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(w, http.StatusCreated, draftResponse{ID: "draft-7"})
	}))
	defer server.Close()

	out, err := runCLI(t, server, "Edited answer [R1]", "drafts", "create", "-q", "What changed?", "--ref", "sec-1", "--ref", "sec-4")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved draft draft-7")
	assert.Equal(t, "Edited answer [R1]", got.AnswerBody)
	assert.Equal(t, []string{"sec-1", "sec-4"}, got.ReferencedSectionIDs)
}

func TestDraftsCreateCmd_EmptyRefsSentAsArray(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		writeData(w, http.StatusCreated, draftResponse{ID: "draft-8"})
	}))
	defer server.Close()

	_, err := runCLI(t, server, "body", "drafts", "create", "-q", "Q")
	require.NoError(t, err)
	assert.Equal(t, []any{}, raw["referenced_section_ids"])
}

func TestDraftsDeleteCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/drafts/draft-7", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "drafts", "delete", "draft-7")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted draft draft-7")
}

func TestKeysListCmd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apikeys", r.URL.Path)
		writeData(w, http.StatusOK, []apiKeyResponse{
			{ID: "key-1", Name: "laptop", CreatedAt: "2026-09-01T10:00:00Z"},
			{ID: "key-2", Name: "ci", CreatedAt: "2026-09-02T10:00:00Z", RevokedAt: "2026-09-03T10:00:00Z"},
		})
	}))
	defer server.Close()

	out, err := runCLI(t, server, "", "keys", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "active")
	assert.Contains(t, lines[1], "revoked")
}

func TestInitCmd_WritesEnvFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []apiKeyResponse{})
	}))
	defer server.Close()

	_, err := runCLI(t, server, "", "init")
	require.NoError(t, err)

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), envAPIKey+"="+testKey)
	assert.Contains(t, string(data), envAPIURL+"="+server.URL)
}
