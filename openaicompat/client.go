// Package openaicompat talks to OpenAI or any gateway that speaks the same
// API (vLLM, model gateways, proxies) for transcript analysis and
// embeddings.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/messages"
)

// Config configures the client
type Config struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string
	// EmbeddingModel is used by the Embedder, empty disables it
	EmbeddingModel string
}

// Client wraps go-openai for both chat analysis and embeddings
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

// New creates a client for the given config
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Analyze scores the transcript with a JSON-mode chat completion
func (c *Client) Analyze(ctx context.Context, transcript []string) (*messages.Analysis, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysis.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: analysis.BuildUserPrompt(transcript)},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, analysis.ErrEmptyResponse
	}

	result, err := analysis.Parse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	log.Printf("🧠 %s analysed %d lines in %v (score %.1f)", c.model, len(transcript), time.Since(start).Round(time.Millisecond), result.OverallScore)
	return result, nil
}

// Embedder returns an analysis.Embedder backed by this client,
// or nil when no embedding model is configured
func (c *Client) Embedder() analysis.Embedder {
	if c.embeddingModel == "" {
		return nil
	}
	return &embedder{client: c.client, model: c.embeddingModel}
}

type embedder struct {
	client *openai.Client
	model  string
}

// Embed returns one vector per input text, in input order
func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
