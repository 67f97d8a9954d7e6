package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/carelyhq/carely/internal/config"
)

// ErrGenerationUnavailable marks any failure of the completion backend.
// Callers match it with errors.Is and fall back to canned replies.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// Client is the bounded completion and embedding surface the companion
// depends on. Implementations must respect the context deadline.
type Client interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type openAIClient struct {
	api            *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	embedTimeout   time.Duration
}

func NewClient(cfg *config.Config) (Client, error) {
	apiKey := strings.TrimSpace(cfg.Provider.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing provider api key")
	}
	if cfg.Agent.Model == "" {
		return nil, fmt.Errorf("missing model")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &openAIClient{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          cfg.Agent.Model,
		embeddingModel: cfg.Provider.EmbeddingModel,
		timeout:        time.Duration(cfg.Agent.GenerateTimeout) * time.Second,
		embedTimeout:   time.Duration(cfg.Memory.EmbedTimeout) * time.Second,
	}, nil
}

func (c *openAIClient) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.6,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", errors.Join(ErrGenerationUnavailable, err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate: %w", errors.Join(ErrGenerationUnavailable, errors.New("empty choices")))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("generate: %w", errors.Join(ErrGenerationUnavailable, errors.New("empty content")))
	}
	return content, nil
}

func (c *openAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: empty texts")
	}
	if c.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.embedTimeout)
		defer cancel()
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: response count mismatch: got %d want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embed: invalid embedding index %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		vectors[item.Index] = vec
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("embed: empty vector at index %d", i)
		}
	}
	return vectors, nil
}
