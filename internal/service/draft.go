package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/google/uuid"
)

// DraftRepository defines the repository interface for draft persistence
type DraftRepository interface {
	Create(ctx context.Context, d *domain.Draft) error
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
	ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) ([]*domain.Draft, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type CreateDraftInput struct {
	OwnerID              string
	Question             string
	AnswerBody           string
	ReferencedSectionIDs []string
}

type ListDraftsInput struct {
	OwnerID string
	Cursor  string
	Limit   int
}

// DraftService stores answers users chose to keep. Referenced sections are
// plain ids; a draft outlives the documents it cites.
type DraftService struct {
	repo    DraftRepository
	uuidGen UUIDGenerator
}

func NewDraftService(repo DraftRepository) *DraftService {
	return NewDraftServiceWithUUIDGen(repo, &DefaultUUIDGenerator{})
}

func NewDraftServiceWithUUIDGen(repo DraftRepository, uuidGen UUIDGenerator) *DraftService {
	return &DraftService{repo: repo, uuidGen: uuidGen}
}

func (s *DraftService) Create(ctx context.Context, input CreateDraftInput) (*domain.Draft, error) {
	if strings.TrimSpace(input.AnswerBody) == "" {
		return nil, domain.InvalidArgument("answer_body is required")
	}

	refs := make([]string, 0, len(input.ReferencedSectionIDs))
	seen := make(map[string]struct{}, len(input.ReferencedSectionIDs))
	for _, id := range input.ReferencedSectionIDs {
		// Canonical form, so {..}, urn:uuid: and upper-case spellings dedupe
		// and survive the uuid[] cast. Unparsable ids fail ValidateDraft.
		if u, err := uuid.Parse(id); err == nil {
			id = u.String()
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}

	draft := &domain.Draft{
		ID:                   s.uuidGen.NewString(),
		OwnerID:              input.OwnerID,
		Question:             strings.TrimSpace(input.Question),
		AnswerBody:           input.AnswerBody,
		ReferencedSectionIDs: refs,
		CreatedAt:            time.Now().UTC(),
	}

	if err := domain.ValidateDraft(draft); err != nil {
		return nil, domain.InvalidArgument("%v", err)
	}

	if err := s.repo.Create(ctx, draft); err != nil {
		return nil, err
	}

	return draft, nil
}

func (s *DraftService) List(ctx context.Context, input ListDraftsInput) (*pagination.PageResult[*domain.Draft], error) {
	if input.OwnerID == "" {
		return nil, domain.InvalidArgument("owner is required")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.InvalidArgument("invalid cursor")
	}

	limit := pagination.ClampLimit(input.Limit)
	drafts, err := s.repo.ListByOwnerWithCursor(ctx, input.OwnerID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	page := pagination.Page(drafts, limit,
		func(d *domain.Draft) string { return d.ID },
		func(d *domain.Draft) time.Time { return d.CreatedAt },
	)
	return &page, nil
}

// Get returns a draft owned by ownerID; other owners' drafts are not found.
func (s *DraftService) Get(ctx context.Context, ownerID, id string) (*domain.Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrDraftNotFound
	}

	draft, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.OwnerID != ownerID {
		return nil, domain.ErrDraftNotFound
	}
	return draft, nil
}

// Delete removes a draft owned by ownerID.
func (s *DraftService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrDraftNotFound
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			return err
		}
		return domain.NewDomainErrorWithCause(domain.ErrCodePersistenceFailure, "failed to delete draft", err)
	}
	return nil
}
