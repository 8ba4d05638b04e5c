package messages

// Analysis is the AI score card pushed in analysis_result frames.
// Scores are on a 0-10 scale.
type Analysis struct {
	OverallScore     float64   `json:"overallScore"`
	Sentiment        float64   `json:"sentiment"`
	Resolution       float64   `json:"resolution"`
	AgentPerformance float64   `json:"agentPerformance"`
	Metrics          Metrics   `json:"metrics"`
	Insights         []Insight `json:"insights"`
	Category         string    `json:"category,omitempty"`
	Keywords         []string  `json:"keywords,omitempty"`
}

// Metrics holds the qualitative call metrics
type Metrics struct {
	ResponseTime    string `json:"responseTime"`
	EmpathyLevel    string `json:"empathyLevel"`
	ProblemResolved bool   `json:"problemResolved"`
	CustomerEmotion string `json:"customerEmotion"`
}

// Insight is one observation, Type is e.g. "positive", "negative", "suggestion"
type Insight struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Clone returns a deep copy so callers can hand out analysis values safely
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Insights = append([]Insight(nil), a.Insights...)
	c.Keywords = append([]string(nil), a.Keywords...)
	return &c
}
