// Package analysis defines how call transcripts are scored: the provider
// contracts, the analyst prompt and the normalisation applied to whatever
// JSON a model returns.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/room4-2/callpulse/messages"
)

// Analyzer scores a transcript. Lines are "<Label>: <text>".
type Analyzer interface {
	Analyze(ctx context.Context, transcript []string) (*messages.Analysis, error)
}

// Embedder turns texts into vectors for similarity search
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface
type AnalyzerFunc func(ctx context.Context, transcript []string) (*messages.Analysis, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, transcript []string) (*messages.Analysis, error) {
	return f(ctx, transcript)
}

// ErrEmptyResponse is returned when a model produced no content
var ErrEmptyResponse = errors.New("model returned an empty response")

// Parse decodes a model reply into an Analysis. Markdown code fences around
// the JSON are tolerated. The result is normalised.
func Parse(raw string) (*messages.Analysis, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var a messages.Analysis
	if err := sonic.UnmarshalString(body, &a); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	return Normalize(&a), nil
}

// Normalize clamps scores to 0..10 with one decimal and drops empty insights
func Normalize(a *messages.Analysis) *messages.Analysis {
	a.OverallScore = clampScore(a.OverallScore)
	a.Sentiment = clampScore(a.Sentiment)
	a.Resolution = clampScore(a.Resolution)
	a.AgentPerformance = clampScore(a.AgentPerformance)

	insights := make([]messages.Insight, 0, len(a.Insights))
	for _, in := range a.Insights {
		in.Text = strings.TrimSpace(in.Text)
		if in.Text == "" {
			continue
		}
		if in.Type == "" {
			in.Type = "info"
		}
		insights = append(insights, in)
	}
	a.Insights = insights

	keywords := a.Keywords[:0]
	for _, k := range a.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	a.Keywords = keywords
	return a
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return math.Round(v*10) / 10
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
