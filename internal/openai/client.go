package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used when none is configured
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimensions matches text-embedding-3-small and ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the generation model used when none is configured
	DefaultChatModel = openai.GPT4oMini

	serviceEmbedding  = "embedding"
	serviceGeneration = "generation"
)

// ErrEmptyText is returned when text is empty
var ErrEmptyText = errors.New("text cannot be empty")

// EmbeddingAPI is the subset of the go-openai client used for embeddings.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// ChatAPI is the subset of the go-openai client used for generation.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey  string
	BaseURL string

	EmbeddingModel      string
	EmbeddingDimensions int
	// Prefixes for E5-style models, e.g. "passage: " and "query: "
	DocumentPrefix string
	QueryPrefix    string

	ChatModel   string
	Temperature float32
}

// Client adapts an OpenAI-compatible API to the embedding and generation
// boundaries.
type Client struct {
	embeddings EmbeddingAPI
	chat       ChatAPI
	cfg        Config
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	api := openai.NewClientWithConfig(clientCfg)
	return newClient(api, api, cfg)
}

func newClient(embeddings EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	return &Client{embeddings: embeddings, chat: chat, cfg: cfg}
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.cfg.EmbeddingDimensions
}

// Embed sends one embeddings request for texts and returns the vectors in
// input order.
func (c *Client) Embed(ctx context.Context, texts []string, task domain.EmbeddingTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefix := c.cfg.DocumentPrefix
	if task == domain.EmbeddingTaskQuery {
		prefix = c.cfg.QueryPrefix
	}

	input := make([]string, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
		input[i] = prefix + text
	}

	resp, err := c.embeddings.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, upstreamError(serviceEmbedding, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.NewResponseShapeError(serviceEmbedding,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) || vectors[item.Index] != nil {
			return nil, domain.NewResponseShapeError(serviceEmbedding,
				fmt.Sprintf("unexpected vector index %d", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}

	return vectors, nil
}

// Generate runs a chat completion and returns the first choice's content.
func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", upstreamError(serviceGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewMalformedResponse(serviceGeneration, "no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", domain.NewMalformedResponse(serviceGeneration, "empty message content")
	}

	return content, nil
}

// upstreamError maps go-openai failures onto domain.UpstreamError. Caller
// cancellation is passed through unchanged so it is never retried.
func upstreamError(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request cancelled: %w", service, err)
	}

	up := &domain.UpstreamError{Service: service, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		up.Timeout = true
	case errors.As(err, &apiErr):
		up.Status = apiErr.HTTPStatusCode
		up.Body = apiErr.Message
	case errors.As(err, &reqErr):
		up.Status = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			up.Body = reqErr.Err.Error()
		}
	}

	return domain.NewUpstreamServiceError(up)
}
