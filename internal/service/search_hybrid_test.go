package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSectionSearcher is a mock implementation of SectionSearcher
type MockSectionSearcher struct {
	mock.Mock
}

func (m *MockSectionSearcher) SearchSemantic(ctx context.Context, ownerID string, vector []float32, limit int) ([]domain.RetrievedReference, error) {
	args := m.Called(ctx, ownerID, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedReference), args.Error(1)
}

func (m *MockSectionSearcher) SearchLexical(ctx context.Context, ownerID, query string, limit int) ([]domain.RetrievedReference, error) {
	args := m.Called(ctx, ownerID, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievedReference), args.Error(1)
}

func scoresByID(refs []domain.RetrievedReference) map[string]float64 {
	out := make(map[string]float64, len(refs))
	for _, r := range refs {
		out[r.SectionID] = r.Score
	}
	return out
}

func TestFuseRankings_WeightsBothSignals(t *testing.T) {
	semantic := []domain.RetrievedReference{ref("a", 0), ref("b", 0)}
	lexical := []domain.RetrievedReference{ref("b", 0), ref("c", 0)}

	scores := scoresByID(fuseRankings(semantic, lexical))

	assert.InDelta(t, 1.0/61, scores["a"], 1e-12)
	assert.InDelta(t, 1.0/62+0.85/61, scores["b"], 1e-12)
	assert.InDelta(t, 0.85/62, scores["c"], 1e-12)
	assert.Greater(t, scores["b"], scores["a"])
}

func TestFusionRanker_Rank(t *testing.T) {
	searcher := new(MockSectionSearcher)
	vector := []float32{0.1, 0.2}

	searcher.On("SearchSemantic", mock.Anything, "owner-1", vector, 50).
		Return([]domain.RetrievedReference{ref("a", 0.9), ref("b", 0.8)}, nil)
	searcher.On("SearchLexical", mock.Anything, "owner-1", "childcare budget", 50).
		Return([]domain.RetrievedReference{ref("b", 0.3)}, nil)

	ranker := NewFusionRanker(searcher, 50)
	refs, err := ranker.Rank(context.Background(), RankQuery{OwnerID: "owner-1", Text: "what is the childcare budget", Vector: vector, Limit: 5})

	require.NoError(t, err)
	scores := scoresByID(refs)
	assert.Len(t, scores, 2)
	assert.Greater(t, scores["b"], scores["a"])
	searcher.AssertExpectations(t)
}

func TestFusionRanker_SkipsLexicalForStopwordOnlyQuery(t *testing.T) {
	searcher := new(MockSectionSearcher)
	searcher.On("SearchSemantic", mock.Anything, "owner-1", mock.Anything, 20).
		Return([]domain.RetrievedReference{}, nil)

	ranker := NewFusionRanker(searcher, 0)
	refs, err := ranker.Rank(context.Background(), RankQuery{OwnerID: "owner-1", Text: "what is the", Vector: []float32{1}, Limit: 5})

	require.NoError(t, err)
	assert.Empty(t, refs)
	searcher.AssertNotCalled(t, "SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFusionRanker_PropagatesSearchErrors(t *testing.T) {
	searcher := new(MockSectionSearcher)
	searcher.On("SearchSemantic", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("boom"))

	_, err := NewFusionRanker(searcher, 0).Rank(context.Background(), RankQuery{OwnerID: "o", Text: "x", Limit: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic search")
}

func TestFusionRanker_CandidateLimit(t *testing.T) {
	assert.Equal(t, 20, NewFusionRanker(nil, 0).candidateLimit(1))
	assert.Equal(t, 40, NewFusionRanker(nil, 0).candidateLimit(10))
	assert.Equal(t, 50, NewFusionRanker(nil, 50).candidateLimit(5))
	assert.Equal(t, 200, NewFusionRanker(nil, 0).candidateLimit(100))
}

func TestLexicalQuery(t *testing.T) {
	assert.Equal(t, "childcare budget", lexicalQuery("What is the childcare budget"))
	assert.Equal(t, "保育所の待機児童数", lexicalQuery("保育所の待機児童数"))
	assert.Equal(t, "", lexicalQuery("   "))
}
