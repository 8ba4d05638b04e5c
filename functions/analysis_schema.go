package functions

import "google.golang.org/genai"

// AnalysisSchema returns the response schema Gemini must follow when
// scoring a call. Field names match messages.Analysis.
func AnalysisSchema() *genai.Schema {
	score := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeNumber,
			Description: desc,
			Minimum:     genai.Ptr[float64](0),
			Maximum:     genai.Ptr[float64](10),
		}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"overallScore":     score("Overall quality of the interaction"),
			"sentiment":        score("Customer sentiment, 0 furious to 10 delighted"),
			"resolution":       score("How close the problem is to being solved"),
			"agentPerformance": score("Politeness, accuracy and ownership of the agent"),
			"metrics": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"responseTime":    {Type: genai.TypeString, Enum: []string{"fast", "normal", "slow"}},
					"empathyLevel":    {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
					"problemResolved": {Type: genai.TypeBoolean},
					"customerEmotion": {Type: genai.TypeString},
				},
				Required: []string{"responseTime", "empathyLevel", "problemResolved", "customerEmotion"},
			},
			"insights": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"type": {Type: genai.TypeString, Enum: []string{"positive", "negative", "suggestion"}},
						"text": {Type: genai.TypeString},
					},
					Required: []string{"type", "text"},
				},
			},
			"category": {Type: genai.TypeString, Description: "Short problem category"},
			"keywords": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"overallScore", "sentiment", "resolution", "agentPerformance", "metrics", "insights"},
		PropertyOrdering: []string{
			"overallScore", "sentiment", "resolution", "agentPerformance",
			"metrics", "insights", "category", "keywords",
		},
	}
}
