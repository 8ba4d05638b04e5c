package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/config"
	"github.com/room4-2/callpulse/messages"
	"github.com/room4-2/callpulse/observe"
	"github.com/room4-2/callpulse/session"
	"github.com/room4-2/callpulse/store"
)

type fakeArchive struct {
	records  []store.ConversationRecord
	day      time.Time
	query    string
	n        int
	disabled bool
}

func (f *fakeArchive) RecentConversations(_ context.Context, limit int) ([]store.ConversationRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeArchive) DailyReport(_ context.Context, day time.Time) (*store.DailyReport, error) {
	f.day = day
	return &store.DailyReport{Date: day.Format("2006-01-02"), TotalConversations: 3}, nil
}

func (f *fakeArchive) SimilarIssues(_ context.Context, text string, n int) ([]store.IssueMatch, error) {
	if f.disabled {
		return nil, store.ErrSearchDisabled
	}
	f.query, f.n = text, n
	return []store.IssueMatch{{Issue: store.Issue{ID: "c1", Text: "fatura"}, Score: 0.9}}, nil
}

func newTestServer(t *testing.T, archive Archive) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{
		Port:            0,
		MaxClients:      10,
		SessionTimeout:  time.Minute,
		KeepAlivePeriod: time.Minute,
		MaxLines:        50,
		AllowedOrigins:  []string{"*"},
		CustomerLabel:   messages.DefaultCustomerLabel,
		AgentLabel:      messages.DefaultAgentLabel,
	}
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	analyzer := analysis.AnalyzerFunc(func(context.Context, []string) (*messages.Analysis, error) {
		return &messages.Analysis{OverallScore: 5}, nil
	})
	m, err := session.NewManager(cfg, session.Deps{Analyzer: analyzer, Metrics: metrics})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	s := NewServerWebsocket(cfg, m, archive)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(m.Shutdown)
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	code, body := get(t, ts.URL+"/health")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var h healthResponse
	if err := sonic.UnmarshalString(body, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Clients != 0 || h.LiveMode {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)
	code, _ := get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Errorf("status = %d", code)
	}
}

func TestWebSocketRoute(t *testing.T) {
	s, ts := newTestServer(t, nil)

	code, _ := get(t, ts.URL+"/ws/supervisor/abc")
	if code != http.StatusBadRequest {
		t.Errorf("unknown role status = %d, want 400", code)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/agent/1700000000000-abcd1234"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f, err := messages.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != messages.TypeConnected || f.ClientID != "1700000000000-abcd1234" || f.Role != "agent" {
		t.Errorf("unexpected greeting: %+v", f)
	}
	if s.sessionManager.GetActiveSessionCount() != 1 {
		t.Errorf("active = %d", s.sessionManager.GetActiveSessionCount())
	}
}

func TestAPI_WithoutArchive(t *testing.T) {
	_, ts := newTestServer(t, nil)
	for _, path := range []string{"/api/conversations", "/api/reports/daily", "/api/issues/similar?q=x"} {
		if code, _ := get(t, ts.URL+path); code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, code)
		}
	}
}

func TestAPI_Conversations(t *testing.T) {
	archive := &fakeArchive{records: []store.ConversationRecord{
		{SessionID: "a"}, {SessionID: "b"}, {SessionID: "c"},
	}}
	_, ts := newTestServer(t, archive)

	code, body := get(t, ts.URL+"/api/conversations?limit=2")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, body)
	}
	var got []store.ConversationRecord
	if err := sonic.UnmarshalString(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "a" {
		t.Errorf("unexpected records: %+v", got)
	}

	if code, _ := get(t, ts.URL+"/api/conversations?limit=-1"); code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d", code)
	}
}

func TestAPI_DailyReport(t *testing.T) {
	archive := &fakeArchive{}
	_, ts := newTestServer(t, archive)

	code, body := get(t, ts.URL+"/api/reports/daily?date=2026-03-10")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, body)
	}
	if !strings.Contains(body, `"date":"2026-03-10"`) {
		t.Errorf("body = %s", body)
	}
	if archive.day.Day() != 10 || archive.day.Month() != time.March {
		t.Errorf("day = %v", archive.day)
	}

	if code, _ := get(t, ts.URL+"/api/reports/daily?date=yesterday"); code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", code)
	}
}

func TestAPI_SimilarIssues(t *testing.T) {
	archive := &fakeArchive{}
	_, ts := newTestServer(t, archive)

	if code, _ := get(t, ts.URL+"/api/issues/similar"); code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", code)
	}

	code, body := get(t, ts.URL+"/api/issues/similar?q=fatura&n=3")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, body)
	}
	if archive.query != "fatura" || archive.n != 3 {
		t.Errorf("archive got %q/%d", archive.query, archive.n)
	}
	if !strings.Contains(body, `"score":0.9`) {
		t.Errorf("body = %s", body)
	}

	archive.disabled = true
	if code, _ := get(t, ts.URL+"/api/issues/similar?q=fatura"); code != http.StatusServiceUnavailable {
		t.Errorf("disabled search status = %d", code)
	}
}
