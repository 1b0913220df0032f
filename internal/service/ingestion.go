package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
)

const defaultSourceType = "file"

// SectionRepository persists embedded sections.
type SectionRepository interface {
	InsertBatch(ctx context.Context, sections []*domain.Section) error
}

// SourceArchive stores raw ingested text outside the database.
type SourceArchive interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// IngestionConfig controls chunking and the transaction mode.
type IngestionConfig struct {
	Chunk ChunkConfig
	// Atomic buffers every embedding and writes the document and all
	// sections in one transaction.
	Atomic bool
}

type IngestInput struct {
	OwnerID    string
	Title      string
	SourceType string
	Chunks     []domain.ChunkInput
}

type IngestTextInput struct {
	OwnerID    string
	Title      string
	SourceType string
	Text       string
	Pages      []domain.PageText
}

type IngestResult struct {
	DocumentID   string
	SectionCount int
}

// IngestionService turns chunked text into a document with embedded sections.
type IngestionService struct {
	docs     DocumentRepository
	txRunner TxRunner
	batcher  *EmbeddingBatcher
	archive  SourceArchive
	uuidGen  UUIDGenerator
	cfg      IngestionConfig
}

func NewIngestionService(docs DocumentRepository, txRunner TxRunner, batcher *EmbeddingBatcher, cfg IngestionConfig) *IngestionService {
	return NewIngestionServiceWithArchive(docs, txRunner, batcher, nil, cfg)
}

func NewIngestionServiceWithArchive(
	docs DocumentRepository,
	txRunner TxRunner,
	batcher *EmbeddingBatcher,
	archive SourceArchive,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.Chunk.Size == 0 {
		cfg.Chunk = DefaultChunkConfig()
	}
	return &IngestionService{
		docs:     docs,
		txRunner: txRunner,
		batcher:  batcher,
		archive:  archive,
		uuidGen:  &DefaultUUIDGenerator{},
		cfg:      cfg,
	}
}

// SourceKey is the archive object key for a document's raw text.
func SourceKey(ownerID, documentID string) string {
	return fmt.Sprintf("sources/%s/%s.txt", ownerID, documentID)
}

// IngestText chunks raw text, ingests the chunks, then archives the source.
// Chunking errors abort before any network call or write.
func (s *IngestionService) IngestText(ctx context.Context, input IngestTextInput) (*IngestResult, error) {
	pages := input.Pages
	if len(pages) == 0 && input.Text != "" {
		pages = []domain.PageText{{Page: 1, Text: input.Text}}
	}

	chunks, err := ChunkPages(pages, s.cfg.Chunk.Size, s.cfg.Chunk.Overlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.InvalidArgument("document has no text content")
	}

	result, err := s.Ingest(ctx, IngestInput{
		OwnerID:    input.OwnerID,
		Title:      input.Title,
		SourceType: input.SourceType,
		Chunks:     chunks,
	})
	if err != nil {
		return result, err
	}

	if s.archive != nil {
		s.archiveSource(ctx, input.OwnerID, result.DocumentID, pages)
	}

	return result, nil
}

// Ingest creates the document, embeds its chunks in batches and persists
// each batch in its own transaction. On failure the returned result still
// carries the document id so callers can see what was committed.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		OwnerID:   input.OwnerID,
		Operation: "ingest",
	})
	defer span.End()

	if err := validateIngestInput(input); err != nil {
		return nil, err
	}

	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = defaultSourceType
	}

	now := time.Now().UTC()
	doc := domain.NewDocument(s.uuidGen.NewString(), input.OwnerID, input.Title, sourceType, now)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.InvalidArgument("%v", err)
	}

	if s.cfg.Atomic {
		return s.ingestAtomic(ctx, doc, input.Chunks)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure, "failed to create document", err)
	}

	var committed atomic.Int64
	err := s.batcher.EmbedStream(ctx, chunkContents(input.Chunks), domain.EmbeddingTaskDocument, 0,
		func(commitCtx context.Context, batch EmbeddedBatch) error {
			sections, err := s.buildSections(doc, input.Chunks, batch, now)
			if err != nil {
				return err
			}
			err = s.txRunner.WithTx(commitCtx, func(repos TxRepositories) error {
				return repos.Sections().InsertBatch(commitCtx, sections)
			})
			if err != nil {
				return domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure,
					fmt.Sprintf("failed to persist batch %d", batch.Index), err)
			}
			total := committed.Add(int64(len(sections)))
			log.Printf("ingest: document=%s batch=%d sections=%d committed", doc.ID, batch.Index, len(sections))
			telemetry.Breadcrumb(ctx, "ingest", fmt.Sprintf("batch %d committed", batch.Index), map[string]any{
				"document_id": doc.ID,
				"sections":    len(sections),
				"committed":   total,
			})
			return nil
		})

	result := &IngestResult{DocumentID: doc.ID, SectionCount: int(committed.Load())}
	if err != nil {
		err = classifyIngestError(err)
		s.markFailed(ctx, doc.ID, err)
		span.SetError(err)
		return result, err
	}

	if err := s.docs.MarkReady(ctx, doc.ID, result.SectionCount); err != nil {
		err = domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure, "failed to mark document ready", err)
		span.SetError(err)
		return result, err
	}

	return result, nil
}

func (s *IngestionService) ingestAtomic(ctx context.Context, doc *domain.Document, chunks []domain.ChunkInput) (*IngestResult, error) {
	vectors, err := s.batcher.EmbedBatch(ctx, chunkContents(chunks), 0)
	if err != nil {
		return nil, classifyIngestError(err)
	}

	sections, err := s.buildSections(doc, chunks, EmbeddedBatch{Vectors: vectors}, doc.CreatedAt)
	if err != nil {
		return nil, classifyIngestError(err)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.batcher.cfg.Timeout)
	defer cancel()

	err = s.txRunner.WithTx(commitCtx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(commitCtx, doc); err != nil {
			return err
		}
		if err := repos.Sections().InsertBatch(commitCtx, sections); err != nil {
			return err
		}
		return repos.Documents().MarkReady(commitCtx, doc.ID, len(sections))
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure, "failed to persist document", err)
	}

	log.Printf("ingest: document=%s sections=%d committed atomically", doc.ID, len(sections))
	return &IngestResult{DocumentID: doc.ID, SectionCount: len(sections)}, nil
}

// buildSections pairs a batch's vectors with their chunks. Every section is
// validated against the embedding width before anything is written.
func (s *IngestionService) buildSections(doc *domain.Document, chunks []domain.ChunkInput, batch EmbeddedBatch, now time.Time) ([]*domain.Section, error) {
	sections := make([]*domain.Section, len(batch.Vectors))
	for i, vector := range batch.Vectors {
		ordinal := batch.Offset + i
		section := &domain.Section{
			ID:         s.uuidGen.NewString(),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			Ordinal:    ordinal,
			PageNumber: pageOrDefault(chunks[ordinal].Page),
			Content:    chunks[ordinal].Content,
			Embedding:  vector,
			CreatedAt:  now,
		}
		if err := domain.ValidateSection(section, s.batcher.Dimensions()); err != nil {
			return nil, domain.NewResponseShapeError(embeddingService, fmt.Sprintf("batch %d: %v", batch.Index, err))
		}
		sections[i] = section
	}
	return sections, nil
}

func (s *IngestionService) markFailed(ctx context.Context, documentID string, cause error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log.Printf("ingest: document=%s failed: %v", documentID, cause)
	telemetry.CaptureError(ctx, cause)
	if err := s.docs.MarkFailed(markCtx, documentID, cause.Error()); err != nil {
		log.Printf("ingest: document=%s could not be marked failed: %v", documentID, err)
	}
}

func (s *IngestionService) archiveSource(ctx context.Context, ownerID, documentID string, pages []domain.PageText) {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	body := []byte(strings.Join(texts, "\f"))

	key := SourceKey(ownerID, documentID)
	if err := s.archive.PutObject(ctx, key, body, "text/plain; charset=utf-8"); err != nil {
		log.Printf("ingest: document=%s source archive failed: %v", documentID, err)
	}
}

// classifyIngestError wraps batcher failures as EMBEDDING_FAILURE and leaves
// persistence failures as they are.
func classifyIngestError(err error) error {
	if domain.HasCode(err, domain.ErrCodePersistenceFailure) {
		return err
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailure, "failed to embed document sections", err)
}

func validateIngestInput(input IngestInput) error {
	if input.OwnerID == "" {
		return domain.InvalidArgument("owner is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return domain.InvalidArgument("title is required")
	}
	if len(input.Chunks) == 0 {
		return domain.InvalidArgument("at least one chunk is required")
	}
	for i, c := range input.Chunks {
		if strings.TrimSpace(c.Content) == "" {
			return domain.InvalidArgument("chunk %d is empty", i)
		}
		if c.Page < 0 {
			return domain.InvalidArgument("chunk %d has negative page number", i)
		}
	}
	return nil
}

func chunkContents(chunks []domain.ChunkInput) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

func pageOrDefault(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
