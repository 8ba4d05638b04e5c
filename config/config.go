package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Analyzer providers
const (
	AnalyzerGemini = "gemini"
	AnalyzerOpenAI = "openai"
)

// Config holds all server configuration
type Config struct {
	Port            int
	RedisURL        string
	RedisPassword   string
	MaxClients      int
	SessionTimeout  time.Duration
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxLines        int // Maximum transcript lines in the shared conversation

	Analyzer        string // "gemini" or "openai"
	AnalysisTimeout time.Duration
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string // OpenAI-compatible gateway, empty for api.openai.com
	OpenAIModel     string
	EmbeddingModel  string // Empty disables issue indexing

	DatabasePath string

	CustomerLabel string
	AgentLabel    string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8000,
		RedisURL:        "localhost:6379",
		MaxClients:      100,
		SessionTimeout:  30 * time.Minute,
		AllowedOrigins:  []string{"*"},
		KeepAlivePeriod: 30 * time.Second,
		MaxLines:        500,
		Analyzer:        AnalyzerGemini,
		AnalysisTimeout: 60 * time.Second,
		GeminiModel:     "gemini-2.5-flash",
		OpenAIModel:     "gpt-4o-mini",
		DatabasePath:    "./callcenter.db",
		CustomerLabel:   "Müşteri",
		AgentLabel:      "Temsilci",
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if err := intEnv("PORT", &c.Port); err != nil {
		return err
	}
	if err := intEnv("MAX_CLIENTS", &c.MaxClients); err != nil {
		return err
	}
	if err := intEnv("MAX_CONVERSATION_LINES", &c.MaxLines); err != nil {
		return err
	}

	// SESSION_TIMEOUT is in minutes
	if err := durationEnv("SESSION_TIMEOUT", time.Minute, &c.SessionTimeout); err != nil {
		return err
	}
	// KEEPALIVE_PERIOD and ANALYSIS_TIMEOUT are in seconds
	if err := durationEnv("KEEPALIVE_PERIOD", time.Second, &c.KeepAlivePeriod); err != nil {
		return err
	}
	if err := durationEnv("ANALYSIS_TIMEOUT", time.Second, &c.AnalysisTimeout); err != nil {
		return err
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	stringEnv("REDIS_URL", &c.RedisURL)
	stringEnv("REDIS_PASSWORD", &c.RedisPassword)
	stringEnv("ANALYZER", &c.Analyzer)
	stringEnv("GEMINI_API_KEY", &c.GeminiAPIKey)
	stringEnv("GEMINI_MODEL", &c.GeminiModel)
	stringEnv("OPENAI_API_KEY", &c.OpenAIAPIKey)
	stringEnv("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	stringEnv("OPENAI_MODEL", &c.OpenAIModel)
	stringEnv("EMBEDDING_MODEL", &c.EmbeddingModel)
	stringEnv("DATABASE_PATH", &c.DatabasePath)
	stringEnv("CUSTOMER_LABEL", &c.CustomerLabel)
	stringEnv("AGENT_LABEL", &c.AgentLabel)
	return nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.Analyzer {
	case AnalyzerGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required when ANALYZER=gemini")
		}
	case AnalyzerOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required when ANALYZER=openai")
		}
	default:
		return fmt.Errorf("invalid ANALYZER: must be 'gemini' or 'openai'")
	}

	if c.EmbeddingModel != "" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_MODEL is set")
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("invalid MAX_CLIENTS: must be positive")
	}
	if c.MaxLines <= 0 {
		return fmt.Errorf("invalid MAX_CONVERSATION_LINES: must be positive")
	}
	if c.CustomerLabel == c.AgentLabel {
		return fmt.Errorf("CUSTOMER_LABEL and AGENT_LABEL must differ")
	}
	return nil
}

func intEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func durationEnv(key string, unit time.Duration, dst *time.Duration) error {
	var n int
	if err := intEnv(key, &n); err != nil {
		return err
	}
	if os.Getenv(key) != "" {
		*dst = time.Duration(n) * unit
	}
	return nil
}

func stringEnv(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
