package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDocID = "7d4c2b1a-0f3e-4c5d-9a8b-1e2f3a4b5c6d"

func testDocument(owner string) *domain.Document {
	return &domain.Document{
		ID:         testDocID,
		OwnerID:    owner,
		Title:      "Budget",
		SourceType: "file",
		Status:     domain.DocumentStatusReady,
		CreatedAt:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns own document", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		repo.On("GetByID", ctx, testDocID).Return(testDocument("owner-1"), nil)

		doc, err := NewDocumentService(repo).Get(ctx, "owner-1", testDocID)

		require.NoError(t, err)
		assert.Equal(t, "Budget", doc.Title)
	})

	t.Run("other owner's document is not found", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		repo.On("GetByID", ctx, testDocID).Return(testDocument("owner-2"), nil)

		_, err := NewDocumentService(repo).Get(ctx, "owner-1", testDocID)

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		repo := new(MockDocumentRepository)

		_, err := NewDocumentService(repo).Get(ctx, "owner-1", "nope")

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDocumentRepository)

	docs := make([]*domain.Document, 3)
	for i := range docs {
		d := testDocument("owner-1")
		d.ID = []string{"d1", "d2", "d3"}[i]
		d.CreatedAt = d.CreatedAt.Add(-time.Duration(i) * time.Hour)
		docs[i] = d
	}
	repo.On("ListByOwnerWithCursor", ctx, "owner-1", (*pagination.Cursor)(nil), 3).Return(docs, nil)

	page, err := NewDocumentService(repo).List(ctx, ListDocumentsInput{OwnerID: "owner-1", Limit: 2})

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.Cursor)

	cursor, err := pagination.DecodeCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "d2", cursor.LastID)
}

func TestDocumentService_List_InvalidCursor(t *testing.T) {
	_, err := NewDocumentService(new(MockDocumentRepository)).List(context.Background(), ListDocumentsInput{OwnerID: "owner-1", Cursor: "%%%"})

	assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes document and archived source", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		archive := new(MockSourceArchive)
		repo.On("GetByID", mock.Anything, testDocID).Return(testDocument("owner-1"), nil)
		repo.On("Delete", mock.Anything, testDocID).Return(nil)
		archive.On("DeleteObject", mock.Anything, SourceKey("owner-1", testDocID)).Return(errors.New("no such key"))

		err := NewDocumentServiceWithArchive(repo, archive).Delete(ctx, "owner-1", testDocID)

		require.NoError(t, err)
		repo.AssertExpectations(t)
		archive.AssertExpectations(t)
	})

	t.Run("cannot delete another owner's document", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		repo.On("GetByID", mock.Anything, testDocID).Return(testDocument("owner-2"), nil)

		err := NewDocumentService(repo).Delete(ctx, "owner-1", testDocID)

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("repository failure is a persistence error", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		repo.On("GetByID", mock.Anything, testDocID).Return(testDocument("owner-1"), nil)
		repo.On("Delete", mock.Anything, testDocID).Return(errors.New("db down"))

		err := NewDocumentService(repo).Delete(ctx, "owner-1", testDocID)

		assert.True(t, domain.HasCode(err, domain.ErrCodePersistenceFailure))
	})
}

func TestDocumentService_SourceURL(t *testing.T) {
	ctx := context.Background()

	t.Run("signs archived key", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		archive := new(MockSourceArchive)
		repo.On("GetByID", mock.Anything, testDocID).Return(testDocument("owner-1"), nil)
		archive.On("GenerateDownloadURL", mock.Anything, SourceKey("owner-1", testDocID)).Return("https://s3.local/signed", nil)

		url, err := NewDocumentServiceWithArchive(repo, archive).SourceURL(ctx, "owner-1", testDocID)

		require.NoError(t, err)
		assert.Equal(t, "https://s3.local/signed", url)
	})

	t.Run("no archive configured", func(t *testing.T) {
		_, err := NewDocumentService(new(MockDocumentRepository)).SourceURL(ctx, "owner-1", testDocID)
		assert.True(t, domain.HasCode(err, domain.ErrCodeNotFound))
	})

	t.Run("other owner", func(t *testing.T) {
		repo := new(MockDocumentRepository)
		archive := new(MockSourceArchive)
		repo.On("GetByID", mock.Anything, testDocID).Return(testDocument("owner-2"), nil)

		_, err := NewDocumentServiceWithArchive(repo, archive).SourceURL(ctx, "owner-1", testDocID)

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
		archive.AssertNotCalled(t, "GenerateDownloadURL", mock.Anything, mock.Anything)
	})
}
