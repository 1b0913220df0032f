package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// failAfterEmbedder succeeds for the first ok calls and then returns err.
type failAfterEmbedder struct {
	mu    sync.Mutex
	ok    int
	err   error
	calls int
}

func (f *failAfterEmbedder) Embed(ctx context.Context, texts []string, task domain.EmbeddingTask) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > f.ok {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text)
	}
	return out, nil
}

func chunkInputs(n int) []domain.ChunkInput {
	out := make([]domain.ChunkInput, n)
	for i, text := range texts(n) {
		out[i] = domain.ChunkInput{Content: text, Page: i/10 + 1}
	}
	return out
}

func newIngestionFixture(client EmbeddingClient, atomic bool) (*IngestionService, *MockDocumentRepository, *memorySections, *testTxRunner) {
	docs := new(MockDocumentRepository)
	sections := &memorySections{}
	runner := &testTxRunner{repos: &testTxRepos{documents: docs, sections: sections}}

	cfg := testBatcherConfig()
	cfg.Concurrency = 1
	batcher := NewEmbeddingBatcher(client, cfg)

	svc := NewIngestionService(docs, runner, batcher, IngestionConfig{
		Chunk:  ChunkConfig{Size: 1000, Overlap: 200},
		Atomic: atomic,
	})
	return svc, docs, sections, runner
}

func TestIngestionService_Ingest_CommitsEveryBatch(t *testing.T) {
	ctx := context.Background()
	svc, docs, sections, runner := newIngestionFixture(&fakeEmbedder{}, false)

	docs.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.Document) bool {
		return d.OwnerID == "owner-1" && d.Title == "Budget" && d.SourceType == "file" && d.Status == domain.DocumentStatusIngesting
	})).Return(nil)
	docs.On("MarkReady", mock.Anything, mock.Anything, 23).Return(nil)

	result, err := svc.Ingest(ctx, IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(23)})

	require.NoError(t, err)
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, 23, result.SectionCount)
	assert.Equal(t, 3, runner.calls)
	docs.AssertCalled(t, "MarkReady", mock.Anything, result.DocumentID, 23)

	stored := sections.all()
	require.Len(t, stored, 23)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Ordinal < stored[j].Ordinal })
	for i, s := range stored {
		assert.Equal(t, i, s.Ordinal)
		assert.Equal(t, result.DocumentID, s.DocumentID)
		assert.Equal(t, "owner-1", s.OwnerID)
		assert.Equal(t, i/10+1, s.PageNumber)
		assert.Equal(t, vectorFor(s.Content), s.Embedding)
	}
}

func TestIngestionService_Ingest_EmbeddingFailureMarksDocumentFailed(t *testing.T) {
	ctx := context.Background()
	client := &failAfterEmbedder{ok: 1, err: upstream(400)}
	svc, docs, sections, _ := newIngestionFixture(client, false)

	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkFailed", mock.Anything, mock.Anything, mock.AnythingOfType("string")).Return(nil)

	result, err := svc.Ingest(ctx, IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(23)})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailure))
	require.NotNil(t, result)
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, 10, result.SectionCount)
	assert.Len(t, sections.all(), 10)
	docs.AssertCalled(t, "MarkFailed", mock.Anything, result.DocumentID, mock.AnythingOfType("string"))
	docs.AssertNotCalled(t, "MarkReady", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestionService_Ingest_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	svc, docs, sections, _ := newIngestionFixture(&fakeEmbedder{}, false)
	sections.failOn = map[int]error{0: errors.New("connection reset")}

	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkFailed", mock.Anything, mock.Anything, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "failed to persist batch 0")
	})).Return(nil)

	result, err := svc.Ingest(ctx, IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(5)})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodePersistenceFailure))
	assert.False(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailure))
	assert.Equal(t, 0, result.SectionCount)
	docs.AssertExpectations(t)
}

// emptyVectorEmbedder answers every text with a zero-length vector.
type emptyVectorEmbedder struct{}

func (emptyVectorEmbedder) Embed(ctx context.Context, texts []string, task domain.EmbeddingTask) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func TestIngestionService_Ingest_RejectsInvalidSectionsBeforeInsert(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		t.Run(fmt.Sprintf("atomic=%v", atomic), func(t *testing.T) {
			docs := new(MockDocumentRepository)
			sections := &memorySections{}
			runner := &testTxRunner{repos: &testTxRepos{documents: docs, sections: sections}}

			cfg := testBatcherConfig()
			cfg.Dimensions = 0
			svc := NewIngestionService(docs, runner, NewEmbeddingBatcher(emptyVectorEmbedder{}, cfg), IngestionConfig{
				Chunk:  ChunkConfig{Size: 1000, Overlap: 200},
				Atomic: atomic,
			})
			docs.On("Create", mock.Anything, mock.Anything).Return(nil)
			docs.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

			_, err := svc.Ingest(context.Background(), IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(3)})

			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailure))
			assert.Contains(t, err.Error(), "embedding is empty")
			assert.Equal(t, 0, runner.calls)
			assert.Empty(t, sections.all())
		})
	}
}

func TestIngestionService_Ingest_CreateFailure(t *testing.T) {
	svc, docs, _, runner := newIngestionFixture(&fakeEmbedder{}, false)
	docs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	result, err := svc.Ingest(context.Background(), IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(2)})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.HasCode(err, domain.ErrCodePersistenceFailure))
	assert.Equal(t, 0, runner.calls)
}

func TestIngestionService_Ingest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc, docs, sections, _ := newIngestionFixture(&fakeEmbedder{}, false)
	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Ingest(ctx, IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(3)})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sections.all())
	docs.AssertCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestionService_Ingest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input IngestInput
	}{
		{name: "missing owner", input: IngestInput{Title: "t", Chunks: chunkInputs(1)}},
		{name: "blank title", input: IngestInput{OwnerID: "o", Title: "  ", Chunks: chunkInputs(1)}},
		{name: "no chunks", input: IngestInput{OwnerID: "o", Title: "t"}},
		{name: "empty chunk", input: IngestInput{OwnerID: "o", Title: "t", Chunks: []domain.ChunkInput{{Content: " "}}}},
		{name: "negative page", input: IngestInput{OwnerID: "o", Title: "t", Chunks: []domain.ChunkInput{{Content: "x", Page: -1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, docs, _, _ := newIngestionFixture(&fakeEmbedder{}, false)

			_, err := svc.Ingest(context.Background(), tt.input)

			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
			docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestIngestionService_Ingest_AtomicWritesOnce(t *testing.T) {
	svc, docs, sections, runner := newIngestionFixture(&fakeEmbedder{}, true)

	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkReady", mock.Anything, mock.Anything, 23).Return(nil)

	result, err := svc.Ingest(context.Background(), IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(23)})

	require.NoError(t, err)
	assert.Equal(t, 23, result.SectionCount)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, sections.inserts)
	assert.Len(t, sections.all(), 23)
}

func TestIngestionService_Ingest_AtomicFailureWritesNothing(t *testing.T) {
	client := &failAfterEmbedder{ok: 2, err: upstream(400)}
	svc, docs, sections, runner := newIngestionFixture(client, true)

	result, err := svc.Ingest(context.Background(), IngestInput{OwnerID: "owner-1", Title: "Budget", Chunks: chunkInputs(23)})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailure))
	assert.Equal(t, 0, runner.calls)
	assert.Empty(t, sections.all())
	docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestionService_IngestText_ChunksPagesAndArchivesSource(t *testing.T) {
	docs := new(MockDocumentRepository)
	sections := &memorySections{}
	runner := &testTxRunner{repos: &testTxRepos{documents: docs, sections: sections}}
	archive := new(MockSourceArchive)
	batcher := NewEmbeddingBatcher(&fakeEmbedder{}, testBatcherConfig())

	svc := NewIngestionServiceWithArchive(docs, runner, batcher, archive, IngestionConfig{
		Chunk: ChunkConfig{Size: 1000, Overlap: 200},
	})

	docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkReady", mock.Anything, mock.Anything, 2).Return(nil)
	archive.On("PutObject", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "sources/owner-1/") && strings.HasSuffix(key, ".txt")
	}), []byte("page one\fpage two"), "text/plain; charset=utf-8").Return(errors.New("bucket missing"))

	result, err := svc.IngestText(context.Background(), IngestTextInput{
		OwnerID: "owner-1",
		Title:   "Minutes",
		Pages: []domain.PageText{
			{Page: 1, Text: "page one"},
			{Page: 2, Text: "page two"},
		},
	})

	require.NoError(t, err, "archive failures must not fail ingestion")
	assert.Equal(t, 2, result.SectionCount)
	archive.AssertExpectations(t)

	pages := map[int]string{}
	for _, s := range sections.all() {
		pages[s.PageNumber] = s.Content
	}
	assert.Equal(t, map[int]string{1: "page one", 2: "page two"}, pages)
}

func TestIngestionService_IngestText_RejectsBadChunkConfigBeforeWriting(t *testing.T) {
	docs := new(MockDocumentRepository)
	client := new(MockEmbeddingClient)
	batcher := NewEmbeddingBatcher(client, testBatcherConfig())
	svc := NewIngestionService(docs, &testTxRunner{}, batcher, IngestionConfig{
		Chunk: ChunkConfig{Size: 100, Overlap: 100},
	})

	_, err := svc.IngestText(context.Background(), IngestTextInput{OwnerID: "owner-1", Title: "t", Text: "some text"})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
	docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestionService_IngestText_WhitespaceOnly(t *testing.T) {
	docs := new(MockDocumentRepository)
	svc := NewIngestionService(docs, &testTxRunner{}, NewEmbeddingBatcher(&fakeEmbedder{}, testBatcherConfig()), IngestionConfig{})

	_, err := svc.IngestText(context.Background(), IngestTextInput{OwnerID: "owner-1", Title: "t", Text: " \n\t "})

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
	docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "sources/o1/d1.txt", SourceKey("o1", "d1"))
}
