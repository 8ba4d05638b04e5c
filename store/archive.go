package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/messages"
)

// ErrSearchDisabled is returned by SimilarIssues when no embedder is configured
var ErrSearchDisabled = errors.New("issue search is disabled: no embedding model configured")

// Archive records finished analyses: it saves the call and, when an
// embedder is available, indexes the customer side as an issue.
type Archive struct {
	store    *Store
	roles    *messages.Roles
	embedder analysis.Embedder
	now      func() time.Time
}

// NewArchive creates an archive over s. embedder may be nil.
func NewArchive(s *Store, roles *messages.Roles, embedder analysis.Embedder) *Archive {
	if roles == nil {
		roles = messages.DefaultRoles()
	}
	return &Archive{store: s, roles: roles, embedder: embedder, now: time.Now}
}

// Store returns the underlying store
func (a *Archive) Store() *Store {
	return a.store
}

// RecordAnalysis stores the analysed conversation under its session id
func (a *Archive) RecordAnalysis(ctx context.Context, conversationID string, transcript []string, result *messages.Analysis) error {
	if result == nil {
		return errors.New("nil analysis")
	}
	customer, agent := a.roles.Split(transcript)
	customerText := strings.Join(customer, "\n")

	rec := &ConversationRecord{
		SessionID:        conversationID,
		CustomerMessage:  customerText,
		AgentMessage:     strings.Join(agent, "\n"),
		Timestamp:        a.now(),
		SentimentScore:   result.Sentiment,
		ResolutionScore:  result.Resolution,
		AgentPerformance: result.AgentPerformance,
		OverallScore:     result.OverallScore,
		IsResolved:       result.Metrics.ProblemResolved,
		CustomerEmotion:  result.Metrics.CustomerEmotion,
		ResponseTime:     result.Metrics.ResponseTime,
		EmpathyLevel:     result.Metrics.EmpathyLevel,
		Category:         result.Category,
		Keywords:         result.Keywords,
	}
	if err := a.store.SaveConversation(ctx, rec); err != nil {
		return err
	}

	if a.embedder == nil || customerText == "" {
		return nil
	}

	vectors, err := a.embedder.Embed(ctx, []string{customerText})
	if err != nil {
		return fmt.Errorf("embed issue %s: %w", conversationID, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embed issue %s: %w", conversationID, ErrEmptyEmbedding)
	}

	issue := Issue{
		ID:   conversationID,
		Text: customerText,
		Metadata: map[string]string{
			"category": result.Category,
			"emotion":  result.Metrics.CustomerEmotion,
			"resolved": fmt.Sprintf("%t", result.Metrics.ProblemResolved),
		},
		Embedding: vectors[0],
	}
	if err := a.store.AddIssue(ctx, issue); err != nil {
		return err
	}
	log.Printf("🗂️ Indexed issue for conversation %s", conversationID)
	return nil
}

// SimilarIssues embeds text and returns the n closest indexed issues
func (a *Archive) SimilarIssues(ctx context.Context, text string, n int) ([]IssueMatch, error) {
	if a.embedder == nil {
		return nil, ErrSearchDisabled
	}
	vectors, err := a.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return a.store.SimilarIssues(ctx, vectors[0], n)
}

// RecentConversations lists the newest stored calls
func (a *Archive) RecentConversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	return a.store.RecentConversations(ctx, limit)
}

// DailyReport builds and stores the report of the given day
func (a *Archive) DailyReport(ctx context.Context, day time.Time) (*DailyReport, error) {
	return a.store.BuildDailyReport(ctx, day)
}
