package messages

import (
	"errors"
	"strings"
	"testing"
)

func TestRolesParse(t *testing.T) {
	r := DefaultRoles()

	tests := []struct {
		name      string
		line      string
		wantLabel string
		wantText  string
		wantOK    bool
	}{
		{"customer", "Müşteri: faturam yüksek geldi", "Müşteri", "faturam yüksek geldi", true},
		{"agent", "Temsilci: hemen bakıyorum", "Temsilci", "hemen bakıyorum", true},
		{"no space after colon", "Temsilci:tamam", "Temsilci", "tamam", true},
		{"unknown label", "Robot: merhaba", "", "", false},
		{"empty body", "Müşteri:", "", "", false},
		{"no prefix", "merhaba", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, text, ok := r.Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if label != tt.wantLabel || text != tt.wantText {
				t.Errorf("got (%q, %q), want (%q, %q)", label, text, tt.wantLabel, tt.wantText)
			}
		})
	}
}

func TestRolesCustomLabels(t *testing.T) {
	r := NewRoles("Customer (VIP)", "Agent")

	line := r.Format(r.Customer, "hello")
	if line != "Customer (VIP): hello" {
		t.Fatalf("Format = %q", line)
	}
	label, text, ok := r.Parse(line)
	if !ok || label != "Customer (VIP)" || text != "hello" {
		t.Errorf("Parse(%q) = (%q, %q, %v)", line, label, text, ok)
	}
	if _, _, ok := r.Parse("Müşteri: hello"); ok {
		t.Error("default label should not match custom codec")
	}
}

func TestRolesSplit(t *testing.T) {
	r := DefaultRoles()
	customer, agent := r.Split([]string{
		"Müşteri: internetim yok",
		"garbage",
		"Temsilci: modemi yeniden başlatın",
		"Müşteri: oldu, teşekkürler",
	})
	if len(customer) != 2 || len(agent) != 1 {
		t.Fatalf("got %d customer / %d agent lines", len(customer), len(agent))
	}
	if customer[1] != "oldu, teşekkürler" {
		t.Errorf("customer[1] = %q", customer[1])
	}
}

func TestDecode(t *testing.T) {
	t.Run("live mode flag", func(t *testing.T) {
		f, err := Decode([]byte(`{"type":"live_mode_changed","enabled":true}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Type != TypeLiveModeChanged || !f.IsEnabled() {
			t.Errorf("got %+v", f)
		}
	})

	t.Run("analysis payload", func(t *testing.T) {
		raw := `{"type":"analysis_result","analysis":{"overallScore":8,"sentiment":7.5,"resolution":9,` +
			`"agentPerformance":8,"metrics":{"responseTime":"fast","empathyLevel":"high",` +
			`"problemResolved":true,"customerEmotion":"calm"},"insights":[{"type":"positive","text":"ok"}]}}`
		f, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Analysis == nil || f.Analysis.Sentiment != 7.5 || !f.Analysis.Metrics.ProblemResolved {
			t.Errorf("analysis not decoded: %+v", f.Analysis)
		}
		if len(f.Analysis.Insights) != 1 {
			t.Errorf("expected 1 insight, got %d", len(f.Analysis.Insights))
		}
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Decode([]byte(`{"text":"Müşteri: hi"}`))
		if !errors.Is(err, ErrMissingType) {
			t.Errorf("expected ErrMissingType, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := Decode([]byte(`{"type":`)); err == nil {
			t.Error("expected error for truncated json")
		}
	})
}

func TestEncodeLiveModeKeepsFalse(t *testing.T) {
	data, err := Encode(NewLiveModeFrame(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"enabled":false`) {
		t.Errorf("disabled flag must be on the wire, got %s", data)
	}
}

func TestAnalysisClone(t *testing.T) {
	a := &Analysis{OverallScore: 5, Insights: []Insight{{Type: "negative", Text: "slow"}}}
	c := a.Clone()
	c.Insights[0].Text = "changed"
	if a.Insights[0].Text != "slow" {
		t.Error("clone shares insight slice with original")
	}
	var nilAnalysis *Analysis
	if nilAnalysis.Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}
