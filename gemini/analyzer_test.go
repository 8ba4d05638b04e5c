package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func fakeGemini(t *testing.T, reply string, status int) (*httptest.Server, *string) {
	t.Helper()
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": reply}},
				},
				"finishReason": "STOP",
			}},
		}
		out, _ := sonic.Marshal(resp)
		w.Write(out)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestAnalyzer_Analyze(t *testing.T) {
	reply := `{"overallScore":7.46,"sentiment":6,"resolution":12,"agentPerformance":8,
		"metrics":{"responseTime":"fast","empathyLevel":"high","problemResolved":true,"customerEmotion":"calm"},
		"insights":[{"type":"positive","text":"Polite greeting"},{"type":"","text":"  "}],
		"category":"billing","keywords":["invoice"]}`
	srv, body := fakeGemini(t, reply, http.StatusOK)

	a, err := NewAnalyzer(context.Background(), Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	got, err := a.Analyze(context.Background(), []string{"Müşteri: faturam yanlış", "Temsilci: bakıyorum"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.OverallScore != 7.5 || got.Resolution != 10 {
		t.Errorf("scores not normalised: %+v", got)
	}
	if len(got.Insights) != 1 || got.Metrics.CustomerEmotion != "calm" || got.Category != "billing" {
		t.Errorf("unexpected analysis: %+v", got)
	}
	if !strings.Contains(*body, "Müşteri: faturam yanlış") {
		t.Errorf("transcript missing from request: %s", *body)
	}
	if !strings.Contains(*body, "application/json") {
		t.Errorf("structured output not requested: %s", *body)
	}
}

func TestAnalyzer_ServerError(t *testing.T) {
	srv, _ := fakeGemini(t, "", http.StatusInternalServerError)
	a, err := NewAnalyzer(context.Background(), Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	if _, err := a.Analyze(context.Background(), []string{"Müşteri: merhaba"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnalyzer_InvalidJSON(t *testing.T) {
	srv, _ := fakeGemini(t, "I cannot score this call.", http.StatusOK)
	a, err := NewAnalyzer(context.Background(), Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	if _, err := a.Analyze(context.Background(), []string{"Müşteri: merhaba"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewAnalyzer_RequiresKey(t *testing.T) {
	if _, err := NewAnalyzer(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
