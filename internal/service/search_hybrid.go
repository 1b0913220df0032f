package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/cloo-solutions/draftdesk/internal/domain"
)

const (
	defaultCandidateMultiplier = 4
	defaultMinCandidates       = 20
	defaultMaxCandidates       = 200

	// Reciprocal-rank fusion constants, shared with the hybrid_search SQL function.
	rrfK           = 60
	semanticWeight = 1.0
	lexicalWeight  = 0.85
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"in": {}, "on": {}, "at": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "i": {}, "me": {}, "my": {}, "us": {}, "them": {}, "they": {}, "their": {}, "do": {},
	"does": {}, "did": {}, "what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "can": {},
	"could": {}, "should": {}, "would": {}, "may": {}, "might": {}, "will": {}, "shall": {},
}

// SectionSearcher returns single-signal candidate lists, best first.
type SectionSearcher interface {
	SearchSemantic(ctx context.Context, ownerID string, vector []float32, limit int) ([]domain.RetrievedReference, error)
	SearchLexical(ctx context.Context, ownerID, query string, limit int) ([]domain.RetrievedReference, error)
}

// FusionRanker fuses semantic and lexical candidate lists in Go with
// weighted reciprocal-rank fusion.
type FusionRanker struct {
	searcher   SectionSearcher
	candidates int
}

// NewFusionRanker creates a ranker fetching at least candidates rows per
// signal. Zero uses a multiple of the requested limit.
func NewFusionRanker(searcher SectionSearcher, candidates int) *FusionRanker {
	return &FusionRanker{searcher: searcher, candidates: candidates}
}

func (f *FusionRanker) Rank(ctx context.Context, q RankQuery) ([]domain.RetrievedReference, error) {
	limit := f.candidateLimit(q.Limit)

	semantic, err := f.searcher.SearchSemantic(ctx, q.OwnerID, q.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	var lexical []domain.RetrievedReference
	if keywords := lexicalQuery(q.Text); keywords != "" {
		lexical, err = f.searcher.SearchLexical(ctx, q.OwnerID, keywords, limit)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
	}

	return fuseRankings(semantic, lexical), nil
}

func (f *FusionRanker) candidateLimit(k int) int {
	limit := k * defaultCandidateMultiplier
	if limit < defaultMinCandidates {
		limit = defaultMinCandidates
	}
	if f.candidates > limit {
		limit = f.candidates
	}
	if limit > defaultMaxCandidates {
		limit = defaultMaxCandidates
	}
	return limit
}

// fuseRankings scores each section as the weighted sum of 1/(rrfK+rank)
// over the lists it appears in. The result is unordered.
func fuseRankings(semantic, lexical []domain.RetrievedReference) []domain.RetrievedReference {
	index := make(map[string]int)
	out := make([]domain.RetrievedReference, 0, len(semantic)+len(lexical))

	add := func(list []domain.RetrievedReference, weight float64) {
		for i, r := range list {
			score := weight / float64(rrfK+i+1)
			if j, ok := index[r.SectionID]; ok {
				out[j].Score += score
				continue
			}
			index[r.SectionID] = len(out)
			r.Score = score
			out = append(out, r)
		}
	}

	add(semantic, semanticWeight)
	add(lexical, lexicalWeight)
	return out
}

// lexicalQuery drops English stopwords; text without spaces (e.g. Japanese)
// passes through whole.
func lexicalQuery(query string) string {
	var tokens []string
	for _, token := range strings.FieldsFunc(query, unicode.IsSpace) {
		clean := strings.ToLower(token)
		if _, ok := lexicalStopwords[clean]; ok {
			continue
		}
		tokens = append(tokens, token)
	}
	return strings.Join(tokens, " ")
}
