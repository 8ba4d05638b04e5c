package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/config"
	"github.com/room4-2/callpulse/gemini"
	"github.com/room4-2/callpulse/messages"
	"github.com/room4-2/callpulse/observe"
	"github.com/room4-2/callpulse/openaicompat"
	"github.com/room4-2/callpulse/server"
	"github.com/room4-2/callpulse/session"
	"github.com/room4-2/callpulse/store"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, "callpulse", version)
	if err != nil {
		log.Printf("⚠️ Metrics disabled: %v", err)
	} else {
		defer shutdownMetrics(context.Background())
	}

	analyzer, embedder, err := buildAnalyzer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	archive := store.NewArchive(db, messages.NewRoles(cfg.CustomerLabel, cfg.AgentLabel), embedder)
	if embedder == nil {
		log.Println("ℹ️ EMBEDDING_MODEL not set, issue search disabled")
	}

	// Create session manager
	sessionManager, err := session.NewManager(cfg, session.Deps{
		Analyzer: analyzer,
		Recorder: archive,
	})
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}

	srv := server.NewServerWebsocket(cfg, sessionManager, archive)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		sessionManager.StartCleanupRoutine(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Received shutdown signal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

// buildAnalyzer picks the provider named by ANALYZER. The embedder is only
// available through the OpenAI-compatible client and may be nil.
func buildAnalyzer(ctx context.Context, cfg *config.Config) (analysis.Analyzer, analysis.Embedder, error) {
	var oai *openaicompat.Client
	if cfg.OpenAIAPIKey != "" {
		c, err := openaicompat.New(openaicompat.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.OpenAIModel,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		oai = c
	}

	var embedder analysis.Embedder
	if oai != nil {
		embedder = oai.Embedder()
	}

	switch cfg.Analyzer {
	case config.AnalyzerOpenAI:
		log.Printf("🧠 Using OpenAI-compatible analyzer (%s)", cfg.OpenAIModel)
		return oai, embedder, nil
	default:
		a, err := gemini.NewAnalyzer(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("🧠 Using Gemini analyzer (%s)", cfg.GeminiModel)
		return a, embedder, nil
	}
}
