package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"gonum.org/v1/gonum/floats"
)

// ErrEmptyEmbedding is returned when an issue or query has no vector
var ErrEmptyEmbedding = errors.New("embedding is empty")

// Issue is a customer problem description with its embedding
type Issue struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
}

// IssueMatch is an Issue ranked by cosine similarity to a query
type IssueMatch struct {
	Issue
	Score float64 `json:"score"`
}

// AddIssue stores the issue, replacing any previous issue with the same id
func (s *Store) AddIssue(ctx context.Context, issue Issue) error {
	if len(issue.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	meta, err := sonic.MarshalString(issue.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	vec, err := sonic.MarshalString(issue.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO issues (id, text, metadata, embedding)
		VALUES (?, ?, ?, ?)`, issue.ID, issue.Text, meta, vec)
	if err != nil {
		return fmt.Errorf("save issue %s: %w", issue.ID, err)
	}
	return nil
}

// SimilarIssues returns the n issues closest to query by cosine similarity.
// Issues whose dimension differs from the query are skipped.
func (s *Store) SimilarIssues(ctx context.Context, query []float32, n int) ([]IssueMatch, error) {
	if len(query) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if n <= 0 {
		n = 5
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, metadata, embedding FROM issues`)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	q := toFloat64(query)
	var matches []IssueMatch
	for rows.Next() {
		var (
			m         IssueMatch
			meta, vec string
		)
		if err := rows.Scan(&m.ID, &m.Text, &meta, &vec); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if err := sonic.UnmarshalString(vec, &m.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", m.ID, err)
		}
		if len(m.Embedding) != len(q) {
			continue
		}
		if meta != "" {
			if err := sonic.UnmarshalString(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
			}
		}
		m.Score = cosine(q, toFloat64(m.Embedding))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
