//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"unicode"

	"github.com/cloo-solutions/draftdesk/internal/cli/admin"
	"github.com/cloo-solutions/draftdesk/internal/config"
	"github.com/cloo-solutions/draftdesk/internal/repository"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/cloo-solutions/draftdesk/internal/storage"
	"github.com/cloo-solutions/draftdesk/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	e2eDims   = 1536
	e2eBucket = "e2e-sources"
)

// E2ETestEnv holds the containers, the fake model server and the API server.
type E2ETestEnv struct {
	T           *testing.T
	Ctx         context.Context
	PostgresC   *testutil.PostgresContainer
	RustFSC     *testutil.RustFSContainer
	Pool        *pgxpool.Pool
	Config      *config.Config
	AuthService *service.AuthService
	Server      *httptest.Server
	ServerURL   string
	BinaryDir   string
	OwnerID     string
	Token       string
	HTTPClient  *http.Client

	Model *FakeModel
}

// SetupE2EEnv starts postgres and RustFS, a fake OpenAI-compatible model
// server and the draftdesk router wired exactly as `draftdeskd serve` does.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	model := NewFakeModel()

	t.Setenv("DRAFTDESK_DATABASE_URL", pgC.ConnectionString())
	t.Setenv("DRAFTDESK_OPENAI_API_KEY", "sk-e2e")
	t.Setenv("DRAFTDESK_OPENAI_BASE_URL", model.URL()+"/v1")
	t.Setenv("DRAFTDESK_CHUNK_SIZE", "200")
	t.Setenv("DRAFTDESK_CHUNK_OVERLAP", "20")
	t.Setenv("DRAFTDESK_EMBED_BATCH_SIZE", "2")
	t.Setenv("DRAFTDESK_EMBED_CONCURRENCY", "1")
	t.Setenv("DRAFTDESK_EMBED_RATE_PER_SEC", "0")
	t.Setenv("DRAFTDESK_RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("DRAFTDESK_RETRIEVAL_K", "3")
	t.Setenv("DRAFTDESK_S3_ENDPOINT", s3C.Endpoint())
	t.Setenv("DRAFTDESK_S3_ACCESS_KEY_ID", "rustfsadmin")
	t.Setenv("DRAFTDESK_S3_SECRET_ACCESS_KEY", "rustfsadmin")
	t.Setenv("DRAFTDESK_S3_BUCKET", e2eBucket)
	t.Setenv("DRAFTDESK_REFUSAL_MESSAGE", "No relevant material found.")
	t.Setenv("DRAFTDESK_RERANK_URL", model.URL()+"/rerank")
	t.Setenv("DRAFTDESK_RERANK_CANDIDATES", "10")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	authSvc := service.NewAuthService(repository.NewOwnerRepository(pool), repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})
	router, err := admin.BuildRouter(cfg, pool, authSvc, s3Client)
	if err != nil {
		t.Fatalf("failed to build router: %v", err)
	}
	srv := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:           t,
		Ctx:         ctx,
		PostgresC:   pgC,
		RustFSC:     s3C,
		Pool:        pool,
		Config:      cfg,
		AuthService: authSvc,
		Server:      srv,
		ServerURL:   srv.URL,
		HTTPClient:  srv.Client(),
		Model:       model,
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	e.Model.Close()
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap creates an owner and an API key the way the admin CLI does.
func (e *E2ETestEnv) Bootstrap(name string) {
	owner, err := e.AuthService.CreateOwner(e.Ctx, name)
	if err != nil {
		e.T.Fatalf("failed to create owner: %v", err)
	}
	token, err := e.AuthService.CreateAPIKey(e.Ctx, owner.ID, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.OwnerID = owner.ID
	e.Token = token
}

// BuildBinaries builds draftdesk and draftdeskd into a temp dir.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "draftdesk-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"draftdesk", "draftdeskd"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunCLI runs the draftdesk client against the test server.
func (e *E2ETestEnv) RunCLI(workDir, stdin string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "draftdesk"), args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"DRAFTDESK_API_KEY="+e.Token,
		"DRAFTDESK_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+workDir,
		"NO_COLOR=1",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunAdmin runs draftdeskd against the test database.
func (e *E2ETestEnv) RunAdmin(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "draftdeskd"), args...)
	cmd.Dir = e.T.TempDir()
	cmd.Env = append(os.Environ(), "DRAFTDESK_DATABASE_URL="+e.PostgresC.ConnectionString())
	out, err := cmd.Output()
	return string(out), err
}

// APIResponse mirrors the server envelope, including the partial ingest
// fields.
type APIResponse struct {
	Status     int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Sections   int             `json:"sections,omitempty"`
}

func (e *E2ETestEnv) Get(path string) *APIResponse {
	return e.do(http.MethodGet, path, nil, e.Token)
}

func (e *E2ETestEnv) Post(path string, body interface{}) *APIResponse {
	return e.do(http.MethodPost, path, body, e.Token)
}

func (e *E2ETestEnv) Delete(path string) *APIResponse {
	return e.do(http.MethodDelete, path, nil, e.Token)
}

func (e *E2ETestEnv) do(method, path string, body interface{}, token string) *APIResponse {
	e.T.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := &APIResponse{Status: resp.StatusCode}
	raw, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			e.T.Fatalf("%s %s: unparseable body %q", method, path, raw)
		}
	}
	return out
}

// Decode unmarshals the data envelope into v.
func (r *APIResponse) Decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", r.Data, err)
	}
}

// FakeModel is an OpenAI-compatible server. Embeddings are bag-of-words
// vectors; chat completions cite the first reference. /rerank scores each
// document by the words it shares with the query.
type FakeModel struct {
	server *httptest.Server

	embedCalls atomic.Int32
	// failEmbedFrom makes every embeddings call from this 1-based call
	// number onwards fail with a 500. Zero disables failures.
	failEmbedFrom atomic.Int32
	chatCalls     atomic.Int32
	rerankCalls   atomic.Int32
}

func NewFakeModel() *FakeModel {
	m := &FakeModel{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", m.embeddings)
	mux.HandleFunc("/v1/chat/completions", m.chat)
	mux.HandleFunc("/rerank", m.rerank)
	m.server = httptest.NewServer(mux)
	return m
}

func (m *FakeModel) URL() string { return m.server.URL }

func (m *FakeModel) Close() { m.server.Close() }

// FailEmbeddingsAfter lets n more embedding calls succeed, then fails.
func (m *FakeModel) FailEmbeddingsAfter(n int) {
	m.failEmbedFrom.Store(m.embedCalls.Load() + int32(n) + 1)
}

func (m *FakeModel) embeddings(w http.ResponseWriter, r *http.Request) {
	call := m.embedCalls.Add(1)
	if from := m.failEmbedFrom.Load(); from > 0 && call >= from {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"embedding backend down","type":"server_error"}}`))
		return
	}

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Index: i, Embedding: bagOfWords(text)}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  req.Model,
		"data":   data,
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func (m *FakeModel) chat(w http.ResponseWriter, r *http.Request) {
	m.chatCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%d", m.chatCalls.Load()),
		"object":  "chat.completion",
		"created": 0,
		"model":   "fake",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": "According to the handbook, new hires receive twenty vacation days [R1]."},
			"finish_reason": "stop",
		}},
	})
}

// RerankCalls reports how many rerank requests the server has answered.
func (m *FakeModel) RerankCalls() int { return int(m.rerankCalls.Load()) }

func (m *FakeModel) rerank(w http.ResponseWriter, r *http.Request) {
	m.rerankCalls.Add(1)

	var req struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := make(map[string]struct{})
	for _, word := range words(req.Query) {
		query[word] = struct{}{}
	}

	type result struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	}
	results := make([]result, len(req.Documents))
	for i, doc := range req.Documents {
		shared := 0
		for _, word := range words(doc) {
			if _, ok := query[word]; ok {
				shared++
			}
		}
		results[i] = result{Index: i, RelevanceScore: float64(shared) / float64(len(query)+1)}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bagOfWords(text string) []float32 {
	v := make([]float32, e2eDims)
	for _, word := range words(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%e2eDims] += 1
	}
	v[0] += 0.01
	return v
}
