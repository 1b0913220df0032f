//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftRepository_RoundTripsReferencedIDs(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	owner := createOwner(ctx, t, pool, "Policy Office")
	repo := NewDraftRepository(pool)

	refs := []string{uuid.NewString(), uuid.NewString()}
	draft := &domain.Draft{
		ID:                   uuid.NewString(),
		OwnerID:              owner.ID,
		Question:             "保育予算は?",
		AnswerBody:           "回答 [R1]",
		ReferencedSectionIDs: refs,
		CreatedAt:            time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, draft))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, refs, got.ReferencedSectionIDs)
	assert.Equal(t, "回答 [R1]", got.AnswerBody)

	list, err := repo.ListByOwnerWithCursor(ctx, owner.ID, nil, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestDraftRepository_EmptyReferences(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	owner := createOwner(ctx, t, pool, "Policy Office")
	repo := NewDraftRepository(pool)

	draft := &domain.Draft{ID: uuid.NewString(), OwnerID: owner.ID, Question: "q", AnswerBody: "a", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, draft))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReferencedSectionIDs)
}

func TestDraftRepository_Delete_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	owner := createOwner(ctx, t, pool, "Policy Office")
	other := createOwner(ctx, t, pool, "Other Office")
	repo := NewDraftRepository(pool)

	draft := &domain.Draft{ID: uuid.NewString(), OwnerID: owner.ID, Question: "q", AnswerBody: "a", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, draft))

	err := repo.Delete(ctx, other.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	require.NoError(t, repo.Delete(ctx, owner.ID, draft.ID))

	_, err = repo.GetByID(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	err = repo.Delete(ctx, owner.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}
