package gemini

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/functions"
	"github.com/room4-2/callpulse/messages"
)

const defaultModel = "gemini-2.5-flash"

// Config configures the Gemini analyzer
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, used by tests
	BaseURL string
}

// Analyzer scores transcripts with a single structured generateContent call
type Analyzer struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewAnalyzer creates the GenAI client
func NewAnalyzer(ctx context.Context, cfg Config) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Analyzer{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: analysis.SystemPrompt}},
			},
			Temperature:      genai.Ptr[float32](0.2),
			ResponseMIMEType: "application/json",
			ResponseSchema:   functions.AnalysisSchema(),
		},
	}, nil
}

// Analyze sends the transcript and parses the JSON score card
func (a *Analyzer) Analyze(ctx context.Context, transcript []string) (*messages.Analysis, error) {
	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(analysis.BuildUserPrompt(transcript)), a.config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, analysis.ErrEmptyResponse
	}

	result, err := analysis.Parse(text)
	if err != nil {
		return nil, err
	}
	log.Printf("🧠 Gemini analysed %d lines in %v (score %.1f)", len(transcript), time.Since(start).Round(time.Millisecond), result.OverallScore)
	return result, nil
}
