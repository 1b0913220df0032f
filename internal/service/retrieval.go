package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
)

const (
	searchService = "search"
	rerankService = "rerank"
)

// RankQuery is the input to a Ranker.
type RankQuery struct {
	OwnerID string
	Text    string
	Vector  []float32
	Limit   int
}

// Ranker scores an owner's sections against a question. Implementations
// return at most Limit references; Rank and Marker are assigned by the
// Retriever.
type Ranker interface {
	Rank(ctx context.Context, q RankQuery) ([]domain.RetrievedReference, error)
}

// Reranker rescores ranked candidates against the question, typically with
// a cross-encoder. The returned references carry the reranker's scores.
type Reranker interface {
	Rerank(ctx context.Context, question string, refs []domain.RetrievedReference) ([]domain.RetrievedReference, error)
}

type RetrieverConfig struct {
	Dimensions int
	Timeout    time.Duration
	// RerankCandidates is how many ranked sections are handed to the
	// reranker before the top K are kept. Unused without a reranker.
	RerankCandidates int
	RerankTimeout    time.Duration
}

// Retriever returns the top-K sections for a question.
type Retriever struct {
	ranker   Ranker
	reranker Reranker
	cfg      RetrieverConfig
}

func NewRetriever(ranker Ranker, cfg RetrieverConfig) *Retriever {
	return NewRetrieverWithReranker(ranker, nil, cfg)
}

func NewRetrieverWithReranker(ranker Ranker, reranker Reranker, cfg RetrieverConfig) *Retriever {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = 30 * time.Second
	}
	return &Retriever{ranker: ranker, reranker: reranker, cfg: cfg}
}

// candidateLimit is how many sections to ask the ranker for.
func (r *Retriever) candidateLimit(k int) int {
	if r.reranker == nil {
		return k
	}
	return max(k, r.cfg.RerankCandidates)
}

// Retrieve ranks the owner's sections and returns at most k references by
// descending score, ties broken by section id. Ranks are 1-based. An owner
// with nothing to match gets an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, question string, vector []float32, ownerID string, k int) ([]domain.RetrievedReference, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		OwnerID:   ownerID,
		Operation: "retrieve",
	})
	defer span.End()

	if ownerID == "" {
		return nil, domain.InvalidArgument("owner is required")
	}
	if k <= 0 {
		return nil, domain.InvalidArgument("k must be positive, got %d", k)
	}
	if r.cfg.Dimensions > 0 && len(vector) != r.cfg.Dimensions {
		return nil, domain.NewDomainError(domain.ErrCodeRetrieval,
			fmt.Sprintf("query vector has %d dimensions, expected %d", len(vector), r.cfg.Dimensions))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	candidates, err := r.ranker.Rank(callCtx, RankQuery{
		OwnerID: ownerID,
		Text:    strings.TrimSpace(question),
		Vector:  vector,
		Limit:   r.candidateLimit(k),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = domain.NewUpstreamServiceError(&domain.UpstreamError{Service: searchService, Timeout: true, Err: err})
		} else {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "ranking failed", err)
		}
		span.SetError(err)
		return nil, err
	}

	if r.reranker != nil && len(candidates) > 0 {
		candidates, err = r.rerank(ctx, strings.TrimSpace(question), candidates)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	return topK(candidates, k), nil
}

// rerank replaces the ranker's scores with the reranker's. The reranker may
// drop candidates but never adds sections it was not given.
func (r *Retriever) rerank(ctx context.Context, question string, candidates []domain.RetrievedReference) ([]domain.RetrievedReference, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RerankTimeout)
	defer cancel()

	reranked, err := r.reranker.Rerank(callCtx, question, candidates)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.NewUpstreamServiceError(&domain.UpstreamError{Service: rerankService, Timeout: true, Err: err})
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "reranking failed", err)
	}

	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.SectionID] = struct{}{}
	}
	for _, ref := range reranked {
		if _, ok := known[ref.SectionID]; !ok {
			return nil, domain.NewResponseShapeError(rerankService,
				fmt.Sprintf("unknown section %s in reranked results", ref.SectionID))
		}
	}
	return reranked, nil
}

// topK deduplicates by section id keeping the best score, orders by
// descending score then ascending section id, and assigns ranks and markers.
func topK(candidates []domain.RetrievedReference, k int) []domain.RetrievedReference {
	best := make(map[string]int, len(candidates))
	out := make([]domain.RetrievedReference, 0, len(candidates))
	for _, c := range candidates {
		if i, ok := best[c.SectionID]; ok {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		best[c.SectionID] = len(out)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SectionID < out[j].SectionID
	})

	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i + 1
		out[i].Marker = MarkerForRank(i + 1)
	}
	return out
}
