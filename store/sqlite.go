// Package store persists analysed calls in SQLite: one row per call, daily
// aggregate reports, and embedded customer issues for similarity search.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        TEXT NOT NULL UNIQUE,
	customer_message  TEXT,
	agent_message     TEXT,
	timestamp         INTEGER NOT NULL,
	sentiment_score   REAL,
	resolution_score  REAL,
	agent_performance REAL,
	overall_score     REAL,
	is_resolved       INTEGER NOT NULL DEFAULT 0,
	customer_emotion  TEXT,
	response_time     TEXT,
	empathy_level     TEXT,
	category          TEXT,
	keywords          TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp);

CREATE TABLE IF NOT EXISTS daily_reports (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	date                    TEXT NOT NULL UNIQUE,
	total_conversations     INTEGER NOT NULL,
	resolved_conversations  INTEGER NOT NULL,
	avg_sentiment           REAL,
	avg_satisfaction        REAL,
	avg_performance         REAL,
	top_emotion             TEXT,
	top_category            TEXT,
	created_at              INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id        TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	metadata  TEXT,
	embedding TEXT NOT NULL
);
`

// Store wraps the SQLite database
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// one writer keeps SQLite free of lock contention
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ConversationRecord is the stored outcome of one call
type ConversationRecord struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	CustomerMessage  string    `json:"customer_message"`
	AgentMessage     string    `json:"agent_message"`
	Timestamp        time.Time `json:"timestamp"`
	SentimentScore   float64   `json:"sentiment_score"`
	ResolutionScore  float64   `json:"resolution_score"`
	AgentPerformance float64   `json:"agent_performance"`
	OverallScore     float64   `json:"overall_score"`
	IsResolved       bool      `json:"is_resolved"`
	CustomerEmotion  string    `json:"customer_emotion"`
	ResponseTime     string    `json:"response_time"`
	EmpathyLevel     string    `json:"empathy_level"`
	Category         string    `json:"category"`
	Keywords         []string  `json:"keywords"`
}

// SaveConversation inserts the record, or updates the row of the same call
func (s *Store) SaveConversation(ctx context.Context, rec *ConversationRecord) error {
	keywords, err := sonic.MarshalString(rec.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			session_id, customer_message, agent_message, timestamp,
			sentiment_score, resolution_score, agent_performance, overall_score,
			is_resolved, customer_emotion, response_time, empathy_level,
			category, keywords
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			customer_message = excluded.customer_message,
			agent_message = excluded.agent_message,
			timestamp = excluded.timestamp,
			sentiment_score = excluded.sentiment_score,
			resolution_score = excluded.resolution_score,
			agent_performance = excluded.agent_performance,
			overall_score = excluded.overall_score,
			is_resolved = excluded.is_resolved,
			customer_emotion = excluded.customer_emotion,
			response_time = excluded.response_time,
			empathy_level = excluded.empathy_level,
			category = excluded.category,
			keywords = excluded.keywords`,
		rec.SessionID, rec.CustomerMessage, rec.AgentMessage, rec.Timestamp.UnixMilli(),
		rec.SentimentScore, rec.ResolutionScore, rec.AgentPerformance, rec.OverallScore,
		rec.IsResolved, rec.CustomerEmotion, rec.ResponseTime, rec.EmpathyLevel,
		rec.Category, keywords,
	)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", rec.SessionID, err)
	}
	return nil
}

// RecentConversations returns up to limit records, newest first
func (s *Store) RecentConversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, customer_message, agent_message, timestamp,
			sentiment_score, resolution_score, agent_performance, overall_score,
			is_resolved, customer_emotion, response_time, empathy_level,
			category, keywords
		FROM conversations
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ConversationBySession returns the record of one call, or nil when missing
func (s *Store) ConversationBySession(ctx context.Context, sessionID string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, customer_message, agent_message, timestamp,
			sentiment_score, resolution_score, agent_performance, overall_score,
			is_resolved, customer_emotion, response_time, empathy_level,
			category, keywords
		FROM conversations WHERE session_id = ?`, sessionID)
	rec, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(sc scanner) (*ConversationRecord, error) {
	var (
		rec      ConversationRecord
		ts       int64
		keywords sql.NullString
		customer, agent, emotion, response, empathy, category sql.NullString
	)
	err := sc.Scan(
		&rec.ID, &rec.SessionID, &customer, &agent, &ts,
		&rec.SentimentScore, &rec.ResolutionScore, &rec.AgentPerformance, &rec.OverallScore,
		&rec.IsResolved, &emotion, &response, &empathy,
		&category, &keywords,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	rec.Timestamp = time.UnixMilli(ts)
	rec.CustomerMessage = customer.String
	rec.AgentMessage = agent.String
	rec.CustomerEmotion = emotion.String
	rec.ResponseTime = response.String
	rec.EmpathyLevel = empathy.String
	rec.Category = category.String
	if keywords.Valid && keywords.String != "" {
		if err := sonic.UnmarshalString(keywords.String, &rec.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
	}
	return &rec, nil
}
