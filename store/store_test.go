package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/room4-2/callpulse/messages"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveConversation_UpsertsBySession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	rec := &ConversationRecord{
		SessionID:       "call-1",
		CustomerMessage: "internetim yok",
		Timestamp:       ts,
		OverallScore:    4,
		Keywords:        []string{"internet"},
	}
	if err := s.SaveConversation(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec.OverallScore = 8
	rec.IsResolved = true
	rec.Timestamp = ts.Add(time.Minute)
	if err := s.SaveConversation(ctx, rec); err != nil {
		t.Fatalf("second save: %v", err)
	}

	list, err := s.RecentConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one row per call, got %d", len(list))
	}
	got := list[0]
	if got.OverallScore != 8 || !got.IsResolved {
		t.Errorf("row not updated: %+v", got)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "internet" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if !got.Timestamp.Equal(ts.Add(time.Minute)) {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
}

func TestRecentConversations_NewestFirstAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := &ConversationRecord{SessionID: id, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	list, err := s.RecentConversations(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "c" || list[1].SessionID != "b" {
		t.Errorf("unexpected order: %+v", list)
	}
}

func TestConversationBySession_Missing(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.ConversationBySession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil, got %+v", rec)
	}
}

func TestBuildDailyReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	records := []*ConversationRecord{
		{SessionID: "1", Timestamp: day.Add(1 * time.Hour), SentimentScore: 2, OverallScore: 4, AgentPerformance: 6, IsResolved: true, CustomerEmotion: "kızgın", Category: "fatura"},
		{SessionID: "2", Timestamp: day.Add(2 * time.Hour), SentimentScore: 4, OverallScore: 6, AgentPerformance: 8, CustomerEmotion: "kızgın", Category: "internet"},
		{SessionID: "3", Timestamp: day.Add(3 * time.Hour), SentimentScore: 6, OverallScore: 8, AgentPerformance: 10, IsResolved: true, CustomerEmotion: "memnun", Category: "fatura"},
		// next day, excluded
		{SessionID: "4", Timestamp: day.Add(25 * time.Hour), SentimentScore: 10, OverallScore: 10, CustomerEmotion: "memnun", Category: "paket"},
	}
	for _, rec := range records {
		if err := s.SaveConversation(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	report, err := s.BuildDailyReport(ctx, day.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Date != "2026-03-10" {
		t.Errorf("date = %s", report.Date)
	}
	if report.TotalConversations != 3 || report.ResolvedConversations != 2 {
		t.Errorf("counts = %d/%d", report.TotalConversations, report.ResolvedConversations)
	}
	if math.Abs(report.AvgSentiment-4) > 1e-9 || math.Abs(report.AvgSatisfaction-6) > 1e-9 || math.Abs(report.AvgPerformance-8) > 1e-9 {
		t.Errorf("averages = %v %v %v", report.AvgSentiment, report.AvgSatisfaction, report.AvgPerformance)
	}
	if report.TopEmotion != "kızgın" || report.TopCategory != "fatura" {
		t.Errorf("top = %s / %s", report.TopEmotion, report.TopCategory)
	}

	// rebuilding the same day replaces the stored row
	if _, err := s.BuildDailyReport(ctx, day); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_reports`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stored report, got %d", n)
	}
}

func TestBuildDailyReport_EmptyDay(t *testing.T) {
	s := openTestStore(t)
	report, err := s.BuildDailyReport(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalConversations != 0 || report.TopEmotion != "" {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2026-03-10", time.UTC); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseDate("10/03/2026", time.UTC); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestSimilarIssues_RanksByCosine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	issues := []Issue{
		{ID: "x", Text: "fatura yüksek", Embedding: []float32{1, 0, 0}},
		{ID: "y", Text: "internet yavaş", Embedding: []float32{0, 1, 0}},
		{ID: "z", Text: "fatura itiraz", Embedding: []float32{0.9, 0.1, 0}, Metadata: map[string]string{"category": "fatura"}},
		{ID: "short", Text: "wrong dimension", Embedding: []float32{1, 0}},
	}
	for _, issue := range issues {
		if err := s.AddIssue(ctx, issue); err != nil {
			t.Fatalf("add %s: %v", issue.ID, err)
		}
	}

	matches, err := s.SimilarIssues(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "x" || matches[1].ID != "z" {
		t.Errorf("unexpected ranking: %s, %s", matches[0].ID, matches[1].ID)
	}
	if math.Abs(matches[0].Score-1) > 1e-6 {
		t.Errorf("identical vector score = %v", matches[0].Score)
	}
	if matches[1].Metadata["category"] != "fatura" {
		t.Errorf("metadata lost: %v", matches[1].Metadata)
	}
}

func TestAddIssue_RejectsEmptyEmbedding(t *testing.T) {
	s := openTestStore(t)
	err := s.AddIssue(context.Background(), Issue{ID: "a", Text: "t"})
	if !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "fatura") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func sampleAnalysis() *messages.Analysis {
	return &messages.Analysis{
		OverallScore:     7.5,
		Sentiment:        6,
		Resolution:       8,
		AgentPerformance: 9,
		Metrics: messages.Metrics{
			ResponseTime:    "Hızlı",
			EmpathyLevel:    "Yüksek",
			ProblemResolved: true,
			CustomerEmotion: "memnun",
		},
		Category: "fatura",
		Keywords: []string{"fatura", "iade"},
	}
}

func TestArchive_RecordAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	emb := &fakeEmbedder{}
	archive := NewArchive(s, messages.DefaultRoles(), emb)
	fixed := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	archive.now = func() time.Time { return fixed }

	transcript := []string{
		"Müşteri: faturam çok yüksek geldi",
		"Temsilci: hemen kontrol ediyorum",
		"not a labelled line",
		"Müşteri: teşekkürler",
	}
	if err := archive.RecordAnalysis(ctx, "conv-1", transcript, sampleAnalysis()); err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := s.ConversationBySession(ctx, "conv-1")
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.CustomerMessage != "faturam çok yüksek geldi\nteşekkürler" {
		t.Errorf("customer side = %q", rec.CustomerMessage)
	}
	if rec.AgentMessage != "hemen kontrol ediyorum" {
		t.Errorf("agent side = %q", rec.AgentMessage)
	}
	if !rec.IsResolved || rec.CustomerEmotion != "memnun" || rec.OverallScore != 7.5 {
		t.Errorf("analysis fields not mapped: %+v", rec)
	}
	if !rec.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", rec.Timestamp)
	}

	if len(emb.calls) != 1 || emb.calls[0][0] != rec.CustomerMessage {
		t.Fatalf("embedder calls = %v", emb.calls)
	}

	matches, err := archive.SimilarIssues(ctx, "fatura sorunu", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "conv-1" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestArchive_NoEmbedder(t *testing.T) {
	s := openTestStore(t)
	archive := NewArchive(s, nil, nil)

	err := archive.RecordAnalysis(context.Background(), "conv-2", []string{"Müşteri: merhaba"}, sampleAnalysis())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := archive.SimilarIssues(context.Background(), "merhaba", 3); !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("expected ErrSearchDisabled, got %v", err)
	}
}

func TestArchive_EmbedFailureKeepsRecord(t *testing.T) {
	s := openTestStore(t)
	archive := NewArchive(s, nil, &fakeEmbedder{err: errors.New("gateway down")})

	err := archive.RecordAnalysis(context.Background(), "conv-3", []string{"Müşteri: fatura"}, sampleAnalysis())
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Fatalf("expected embed error, got %v", err)
	}
	rec, _ := s.ConversationBySession(context.Background(), "conv-3")
	if rec == nil {
		t.Error("conversation should be saved before indexing")
	}
}
