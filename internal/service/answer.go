package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, question string) ([]float32, error)
}

type AskInput struct {
	OwnerID  string
	Question string
	K        int
}

type AskOutput struct {
	Answer     *domain.Answer
	References []domain.RetrievedReference
}

// AnswerService runs the question pipeline: embed, retrieve, synthesize.
type AnswerService struct {
	embedder    QueryEmbedder
	retriever   *Retriever
	synthesizer *Synthesizer
	defaultK    int
}

func NewAnswerService(embedder QueryEmbedder, retriever *Retriever, synthesizer *Synthesizer, defaultK int) *AnswerService {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &AnswerService{
		embedder:    embedder,
		retriever:   retriever,
		synthesizer: synthesizer,
		defaultK:    defaultK,
	}
}

// Ask answers a question from the owner's documents. Any stage failing
// aborts the call; partial answers are never returned.
func (s *AnswerService) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Ask", telemetry.SpanAttributes{
		OwnerID:   input.OwnerID,
		Operation: "ask",
	})
	defer span.End()

	if input.OwnerID == "" {
		return nil, domain.InvalidArgument("owner is required")
	}
	k := input.K
	if k == 0 {
		k = s.defaultK
	}
	if k < 0 {
		return nil, domain.InvalidArgument("k must be positive, got %d", k)
	}

	vector, err := s.embedder.EmbedQuery(ctx, input.Question)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	refs, err := s.retriever.Retrieve(ctx, input.Question, vector, input.OwnerID, k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	answer, err := s.synthesizer.Synthesize(ctx, input.Question, refs)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	log.Printf("answer: owner=%s references=%d cited=%d refused=%t", input.OwnerID, len(refs), len(answer.CitedReferenceIDs), answer.Refused)
	return &AskOutput{Answer: answer, References: refs}, nil
}
