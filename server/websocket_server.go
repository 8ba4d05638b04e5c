package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/room4-2/callpulse/config"
	"github.com/room4-2/callpulse/messages"
	"github.com/room4-2/callpulse/session"
	"github.com/room4-2/callpulse/store"
)

// Archive is the read side of the call history served under /api
type Archive interface {
	RecentConversations(ctx context.Context, limit int) ([]store.ConversationRecord, error)
	DailyReport(ctx context.Context, day time.Time) (*store.DailyReport, error)
	SimilarIssues(ctx context.Context, text string, n int) ([]store.IssueMatch, error)
}

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	archive        Archive
	config         *config.Config
}

// NewServerWebsocket builds the router. archive may be nil, the /api routes
// then answer 503.
func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager, archive Archive) *Server {
	s := &Server{
		sessionManager: sessionManager,
		archive:        archive,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// non-browser clients send no Origin
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Routes returns the HTTP handler with every endpoint mounted
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/ws/{role}/{clientID}", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations", s.handleConversations)
		r.Get("/reports/daily", s.handleDailyReport)
		r.Get("/issues/similar", s.handleSimilarIssues)
	})
	return r
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Call-center server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws/{agent|customer}/{clientID}", s.config.Port)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	s.sessionManager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	clientID := chi.URLParam(r, "clientID")
	if !session.ValidRole(role) {
		http.Error(w, "unknown role: "+role, http.StatusBadRequest)
		return
	}
	if clientID == "" {
		http.Error(w, "missing client id", http.StatusBadRequest)
		return
	}

	// Upgrade HTTP to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientSession, err := s.sessionManager.CreateSession(r.Context(), clientID, role, conn)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		// Send error and close
		if data, encErr := messages.Encode(messages.NewErrorMessage(messages.ErrCodeSessionFailed, err.Error())); encErr == nil {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	log.Printf("✅ [%s] %s connected", clientID, role)

	// Start session (handles messages in goroutines)
	clientSession.Start()

	// Wait for session to close
	<-clientSession.CloseChan

	_ = s.sessionManager.RemoveSession(context.Background(), clientSession)
	log.Printf("🔌 [%s] %s disconnected", clientID, role)
}

type healthResponse struct {
	Status    string `json:"status"`
	Clients   int    `json:"clients"`
	LiveMode  bool   `json:"live_mode"`
	Analyzing bool   `json:"analyzing"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Clients:   s.sessionManager.GetActiveSessionCount(),
		LiveMode:  s.sessionManager.LiveMode(),
		Analyzing: s.sessionManager.Analyzing(),
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not available")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.archive.RecentConversations(r.Context(), limit)
	if err != nil {
		log.Printf("❌ List conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if records == nil {
		records = []store.ConversationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not available")
		return
	}

	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := store.ParseDate(v, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = parsed
	}

	report, err := s.archive.DailyReport(r.Context(), day)
	if err != nil {
		log.Printf("❌ Daily report: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSimilarIssues(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not available")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	n, err := queryInt(r, "n", 5)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := s.archive.SimilarIssues(r.Context(), q, n)
	if errors.Is(err, store.ErrSearchDisabled) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		log.Printf("❌ Similar issues: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if matches == nil {
		matches = []store.IssueMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("❌ Encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
