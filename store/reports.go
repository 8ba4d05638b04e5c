package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DailyReport aggregates the calls analysed during one day
type DailyReport struct {
	Date                  string    `json:"date"`
	TotalConversations    int       `json:"total_conversations"`
	ResolvedConversations int       `json:"resolved_conversations"`
	AvgSentiment          float64   `json:"avg_sentiment"`
	AvgSatisfaction       float64   `json:"avg_satisfaction"`
	AvgPerformance        float64   `json:"avg_performance"`
	TopEmotion            string    `json:"top_emotion,omitempty"`
	TopCategory           string    `json:"top_category,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// ParseDate parses a YYYY-MM-DD day in the given location
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return day, nil
}

// BuildDailyReport aggregates the calls of the day containing day, stores
// the report (replacing an earlier one for the same date) and returns it
func (s *Store) BuildDailyReport(ctx context.Context, day time.Time) (*DailyReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	from, to := start.UnixMilli(), end.UnixMilli()

	report := &DailyReport{
		Date:      start.Format(dateLayout),
		CreatedAt: time.Now(),
	}

	var sentiment, satisfaction, performance sql.NullFloat64
	var resolved sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(is_resolved),
			AVG(sentiment_score), AVG(overall_score), AVG(agent_performance)
		FROM conversations
		WHERE timestamp >= ? AND timestamp < ?`, from, to,
	).Scan(&report.TotalConversations, &resolved, &sentiment, &satisfaction, &performance)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", report.Date, err)
	}
	report.ResolvedConversations = int(resolved.Int64)
	report.AvgSentiment = sentiment.Float64
	report.AvgSatisfaction = satisfaction.Float64
	report.AvgPerformance = performance.Float64

	if report.TopEmotion, err = s.mostFrequent(ctx, "customer_emotion", from, to); err != nil {
		return nil, err
	}
	if report.TopCategory, err = s.mostFrequent(ctx, "category", from, to); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (
			date, total_conversations, resolved_conversations,
			avg_sentiment, avg_satisfaction, avg_performance,
			top_emotion, top_category, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_conversations = excluded.total_conversations,
			resolved_conversations = excluded.resolved_conversations,
			avg_sentiment = excluded.avg_sentiment,
			avg_satisfaction = excluded.avg_satisfaction,
			avg_performance = excluded.avg_performance,
			top_emotion = excluded.top_emotion,
			top_category = excluded.top_category,
			created_at = excluded.created_at`,
		report.Date, report.TotalConversations, report.ResolvedConversations,
		report.AvgSentiment, report.AvgSatisfaction, report.AvgPerformance,
		report.TopEmotion, report.TopCategory, report.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("save report %s: %w", report.Date, err)
	}
	return report, nil
}

// mostFrequent returns the most common non-empty value of column in range.
// column is always one of our own identifiers, never user input.
func (s *Store) mostFrequent(ctx context.Context, column string, from, to int64) (string, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s FROM conversations
		WHERE timestamp >= ? AND timestamp < ? AND %[1]s IS NOT NULL AND %[1]s != ''
		GROUP BY %[1]s
		ORDER BY COUNT(*) DESC, %[1]s ASC
		LIMIT 1`, column)

	var value string
	err := s.db.QueryRowContext(ctx, query, from, to).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("top %s: %w", column, err)
	}
	return value, nil
}
