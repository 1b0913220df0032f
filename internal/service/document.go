package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
	"github.com/google/uuid"
)

// DocumentRepository defines the repository interface for document persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) ([]*domain.Document, error)
	MarkReady(ctx context.Context, id string, sectionCount int) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Delete(ctx context.Context, id string) error
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

type ListDocumentsInput struct {
	OwnerID string
	Cursor  string
	Limit   int
}

// DocumentService reads and deletes ingested documents. Every call is
// scoped to the owner resolved from the API key.
type DocumentService struct {
	docs    DocumentRepository
	archive SourceArchive
}

func NewDocumentService(docs DocumentRepository) *DocumentService {
	return &DocumentService{docs: docs}
}

func NewDocumentServiceWithArchive(docs DocumentRepository, archive SourceArchive) *DocumentService {
	return &DocumentService{docs: docs, archive: archive}
}

// List returns the owner's documents, newest first.
func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*pagination.PageResult[*domain.Document], error) {
	if input.OwnerID == "" {
		return nil, domain.InvalidArgument("owner is required")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.InvalidArgument("invalid cursor")
	}

	limit := pagination.ClampLimit(input.Limit)
	docs, err := s.docs.ListByOwnerWithCursor(ctx, input.OwnerID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	page := pagination.Page(docs, limit,
		func(d *domain.Document) string { return d.ID },
		func(d *domain.Document) time.Time { return d.CreatedAt },
	)
	return &page, nil
}

// Get returns a document owned by ownerID. Documents of other owners are
// reported as not found.
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Get", telemetry.SpanAttributes{
		OwnerID:    ownerID,
		DocumentID: id,
		Operation:  "get",
	})
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrDocumentNotFound
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes a document and, through the foreign key cascade, its
// sections. The archived source is removed afterwards on a best-effort basis.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		OwnerID:    ownerID,
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return err
		}
		return domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure, "failed to delete document", err)
	}

	if s.archive != nil {
		if err := s.archive.DeleteObject(ctx, SourceKey(ownerID, id)); err != nil {
			log.Printf("documents: document=%s source delete failed: %v", id, err)
		}
	}

	return nil
}

// SourceURL returns a presigned download link for the archived source text
// of a document created from raw text or pages.
func (s *DocumentService) SourceURL(ctx context.Context, ownerID, id string) (string, error) {
	if s.archive == nil {
		return "", domain.NewDomainError(domain.ErrCodeNotFound, "source archive is not configured")
	}
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return "", err
	}

	url, err := s.archive.GenerateDownloadURL(ctx, SourceKey(ownerID, id))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to sign source url", err)
	}
	return url, nil
}
