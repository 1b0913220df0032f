package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testDraftID  = "0b6f2c8e-3d1a-4e7b-8f90-a1b2c3d4e5f6"
	testSectionA = "5f0c1a2e-8c1b-4a57-9d3e-2f6b1f0e9a11"
	testSectionB = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

func TestDraftService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores deduplicated references", func(t *testing.T) {
		repo := new(MockDraftRepository)
		repo.On("Create", ctx, mock.MatchedBy(func(d *domain.Draft) bool {
			return d.ID == testDraftID &&
				d.OwnerID == "owner-1" &&
				d.Question == "保育予算は?" &&
				assert.ObjectsAreEqual([]string{testSectionA, testSectionB}, d.ReferencedSectionIDs)
		})).Return(nil)

		svc := NewDraftServiceWithUUIDGen(repo, NewMockUUIDGenerator(testDraftID))
		draft, err := svc.Create(ctx, CreateDraftInput{
			OwnerID:              "owner-1",
			Question:             " 保育予算は? ",
			AnswerBody:           "回答 [R1]",
			ReferencedSectionIDs: []string{testSectionA, testSectionB, testSectionA},
		})

		require.NoError(t, err)
		assert.Equal(t, testDraftID, draft.ID)
		repo.AssertExpectations(t)
	})

	t.Run("canonicalises reference spellings", func(t *testing.T) {
		repo := new(MockDraftRepository)
		repo.On("Create", ctx, mock.MatchedBy(func(d *domain.Draft) bool {
			return assert.ObjectsAreEqual([]string{testSectionA, testSectionB}, d.ReferencedSectionIDs)
		})).Return(nil)

		svc := NewDraftServiceWithUUIDGen(repo, NewMockUUIDGenerator(testDraftID))
		draft, err := svc.Create(ctx, CreateDraftInput{
			OwnerID:    "owner-1",
			Question:   "q",
			AnswerBody: "a",
			ReferencedSectionIDs: []string{
				"urn:uuid:" + testSectionA,
				"{" + strings.ToUpper(testSectionB) + "}",
				strings.ToUpper(testSectionA),
			},
		})

		require.NoError(t, err)
		assert.Equal(t, []string{testSectionA, testSectionB}, draft.ReferencedSectionIDs)
		repo.AssertExpectations(t)
	})

	t.Run("rejects non-uuid reference", func(t *testing.T) {
		repo := new(MockDraftRepository)
		svc := NewDraftServiceWithUUIDGen(repo, NewMockUUIDGenerator(testDraftID))

		_, err := svc.Create(ctx, CreateDraftInput{
			OwnerID:              "owner-1",
			Question:             "q",
			AnswerBody:           "a",
			ReferencedSectionIDs: []string{"R1"},
		})

		assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects empty body", func(t *testing.T) {
		_, err := NewDraftService(new(MockDraftRepository)).Create(ctx, CreateDraftInput{OwnerID: "owner-1", Question: "q"})

		assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidArgument))
	})

	t.Run("repository error", func(t *testing.T) {
		repo := new(MockDraftRepository)
		repo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

		_, err := NewDraftService(repo).Create(ctx, CreateDraftInput{OwnerID: "owner-1", Question: "q", AnswerBody: "a"})

		assert.EqualError(t, err, "db down")
	})
}

func TestDraftService_Get_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDraftRepository)
	repo.On("GetByID", ctx, testDraftID).Return(&domain.Draft{ID: testDraftID, OwnerID: "owner-2", Question: "q"}, nil)

	svc := NewDraftService(repo)

	_, err := svc.Get(ctx, "owner-1", testDraftID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	draft, err := svc.Get(ctx, "owner-2", testDraftID)
	require.NoError(t, err)
	assert.Equal(t, testDraftID, draft.ID)

	_, err = svc.Get(ctx, "owner-2", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestDraftService_Delete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDraftRepository)
	repo.On("Delete", ctx, "owner-1", testDraftID).Return(nil).Once()
	repo.On("Delete", ctx, "owner-2", testDraftID).Return(domain.ErrDraftNotFound).Once()
	repo.On("Delete", ctx, "owner-3", testDraftID).Return(errors.New("connection reset")).Once()

	svc := NewDraftService(repo)

	require.NoError(t, svc.Delete(ctx, "owner-1", testDraftID))

	err := svc.Delete(ctx, "owner-2", testDraftID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	err = svc.Delete(ctx, "owner-3", testDraftID)
	assert.True(t, domain.HasCode(err, domain.ErrCodePersistenceFailure))

	err = svc.Delete(ctx, "owner-1", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	repo.AssertNumberOfCalls(t, "Delete", 3)
}

func TestDraftService_List(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDraftRepository)
	repo.On("ListByOwnerWithCursor", ctx, "owner-1", mock.Anything, 21).Return([]*domain.Draft{{ID: testDraftID, OwnerID: "owner-1"}}, nil)

	page, err := NewDraftService(repo).List(ctx, ListDraftsInput{OwnerID: "owner-1"})

	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}
