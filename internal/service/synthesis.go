package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
)

const generationService = "generation"

// EmptyContextPolicy decides what happens when retrieval finds nothing.
type EmptyContextPolicy string

const (
	// EmptyContextRefuse skips generation and returns the refusal message.
	EmptyContextRefuse EmptyContextPolicy = "refuse"
	// EmptyContextUngrounded asks the model for a general answer that
	// states no supporting material was found.
	EmptyContextUngrounded EmptyContextPolicy = "ungrounded"
)

// DefaultRefusalMessage is returned under EmptyContextRefuse.
const DefaultRefusalMessage = "関連する資料が見つかりませんでした。"

const groundedInstructions = `あなたは自治体職員です。提示された資料のみに基づいて、議会の質問に対する答弁案を作成してください。

【出力要件】
- 議会答弁らしい丁寧な口調で書くこと。
- 資料に含まれない事実を付け加えないこと。
- 各記述の根拠となる資料を [R1] のような参照記号で必ず明記すること。複数の資料に基づく場合は [R1, R3] のように書くこと。`

const ungroundedInstructions = `あなたは自治体職員です。今回の質問に関連する資料は見つかりませんでした。

【出力要件】
- 回答の冒頭で、根拠となる資料が見つからなかったことを明記すること。
- そのうえで、一般的な見解として議会答弁らしい丁寧な口調で答弁案を作成すること。
- 参照記号は使用しないこと。`

var (
	citationPattern = regexp.MustCompile(`[\[［【]\s*([RrＲｒ]\s*[0-9０-９]+(?:\s*[,，、]\s*[RrＲｒ]\s*[0-9０-９]+)*)\s*[\]］】]`)
	markerPattern   = regexp.MustCompile(`[RrＲｒ]\s*([0-9０-９]+)`)
)

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

type SynthesizerConfig struct {
	EmptyContextPolicy EmptyContextPolicy
	RefusalMessage     string
	Timeout            time.Duration
}

// Synthesizer drafts a cited answer from retrieved references.
type Synthesizer struct {
	generator Generator
	cfg       SynthesizerConfig
}

func NewSynthesizer(generator Generator, cfg SynthesizerConfig) *Synthesizer {
	if cfg.EmptyContextPolicy == "" {
		cfg.EmptyContextPolicy = EmptyContextRefuse
	}
	if cfg.RefusalMessage == "" {
		cfg.RefusalMessage = DefaultRefusalMessage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Synthesizer{generator: generator, cfg: cfg}
}

// MarkerForRank returns the citation tag for a 1-based rank.
func MarkerForRank(rank int) string {
	return "R" + strconv.Itoa(rank)
}

// Synthesize asks the generator for an answer grounded in refs and returns
// it with the ids of the references it cites. References must carry ranks.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, refs []domain.RetrievedReference) (*domain.Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "Synthesizer.Synthesize", telemetry.SpanAttributes{
		Operation: "synthesize",
	})
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.InvalidArgument("question cannot be empty")
	}

	if len(refs) == 0 {
		if s.cfg.EmptyContextPolicy == EmptyContextRefuse {
			return &domain.Answer{Text: s.cfg.RefusalMessage, CitedReferenceIDs: []string{}, Refused: true}, nil
		}
		text, err := s.generate(ctx, BuildUngroundedPrompt(question))
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		return &domain.Answer{Text: text, CitedReferenceIDs: []string{}}, nil
	}

	text, err := s.generate(ctx, BuildGroundedPrompt(question, refs))
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &domain.Answer{
		Text:              text,
		CitedReferenceIDs: ParseCitations(text, refs),
		Grounded:          true,
	}, nil
}

func (s *Synthesizer) generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, err := s.generator.Generate(callCtx, prompt)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			return "", err
		}
		return "", domain.NewUpstreamServiceError(&domain.UpstreamError{
			Service: generationService,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		})
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewMalformedResponse(generationService, "empty answer")
	}
	return text, nil
}

// BuildGroundedPrompt lists every reference under its marker followed by
// the question.
func BuildGroundedPrompt(question string, refs []domain.RetrievedReference) domain.Prompt {
	var b strings.Builder
	b.WriteString("【資料】\n")
	for i, ref := range refs {
		marker := ref.Marker
		if marker == "" {
			marker = MarkerForRank(i + 1)
		}
		fmt.Fprintf(&b, "[%s]", marker)
		if ref.DocumentTitle != "" {
			fmt.Fprintf(&b, " 出典: %s", ref.DocumentTitle)
			if ref.PageNumber > 0 {
				fmt.Fprintf(&b, " (p.%d)", ref.PageNumber)
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(ref.Content))
		b.WriteString("\n\n")
	}
	b.WriteString("【質問】\n")
	b.WriteString(question)

	return domain.Prompt{System: groundedInstructions, User: b.String()}
}

// BuildUngroundedPrompt is used when retrieval returned nothing.
func BuildUngroundedPrompt(question string) domain.Prompt {
	return domain.Prompt{System: ungroundedInstructions, User: "【質問】\n" + question}
}

// ParseCitations returns the ids of references cited in text, deduplicated
// and in reference rank order. Markers that match no reference are ignored.
func ParseCitations(text string, refs []domain.RetrievedReference) []string {
	cited := make(map[int]struct{})
	for _, group := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, m := range markerPattern.FindAllStringSubmatch(group[1], -1) {
			if rank, ok := parseRank(m[1]); ok {
				cited[rank] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(cited))
	seen := make(map[string]struct{}, len(cited))
	for i, ref := range refs {
		rank := ref.Rank
		if rank == 0 {
			rank = i + 1
		}
		if _, ok := cited[rank]; !ok {
			continue
		}
		if _, dup := seen[ref.SectionID]; dup {
			continue
		}
		seen[ref.SectionID] = struct{}{}
		ids = append(ids, ref.SectionID)
	}
	return ids
}

// parseRank reads ASCII or full-width digits.
func parseRank(digits string) (int, bool) {
	n := 0
	for _, r := range digits {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
		case r >= '０' && r <= '９':
			n = n*10 + int(r-'０')
		default:
			return 0, false
		}
		if n > 1<<20 {
			return 0, false
		}
	}
	return n, n > 0
}
