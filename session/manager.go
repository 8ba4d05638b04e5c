package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/callpulse/analysis"
	"github.com/room4-2/callpulse/config"
	"github.com/room4-2/callpulse/messages"
	"github.com/room4-2/callpulse/observe"
)

var (
	ErrMaxClients         = errors.New("maximum clients reached")
	ErrDuplicateClient    = errors.New("client id already connected")
	ErrNoConversation     = errors.New("no conversation to analyze")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrEmptyText          = errors.New("text is empty")
	ErrUnlabeledText      = errors.New("text must start with a speaker label")
	ErrShuttingDown       = errors.New("session manager is shutting down")
)

// Analysis triggers, used for logging and metrics
const (
	TriggerManual = "manual"
	TriggerLive   = "live"
)

const (
	redisLiveModeKey  = "callpulse:live_mode"
	redisClientsKey   = "active_clients"
	redisTranscriptNS = "conversation:"
)

// Recorder persists a finished analysis together with the transcript it scored
type Recorder interface {
	RecordAnalysis(ctx context.Context, conversationID string, transcript []string, a *messages.Analysis) error
}

// Deps are the collaborators a Manager needs besides its config
type Deps struct {
	Analyzer analysis.Analyzer

	// Recorder is optional
	Recorder Recorder

	// Metrics defaults to observe.DefaultMetrics()
	Metrics *observe.Metrics

	// Redis overrides the client built from config. Leave nil to dial
	// cfg.RedisURL, which is skipped when unreachable.
	Redis *redis.Client
}

// Manager owns every client session and the shared call conversation
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config

	roles        *messages.Roles
	conversation *Conversation
	liveMode     atomic.Bool
	analyzing    atomic.Bool

	// set when a live line arrives during a running analysis
	rerunPending atomic.Bool

	analyzer analysis.Analyzer
	recorder Recorder
	metrics  *observe.Metrics

	// cancelled on Shutdown, parents every analysis run. runMu orders
	// wg.Add against the cancel in Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
	wg     sync.WaitGroup
}

// NewManager creates a session manager with an optional Redis connection
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}

	redisClient := deps.Redis
	if redisClient == nil && cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Redis unavailable, continue without it
			log.Printf("⚠️ Redis unavailable at %s, running without it: %v", cfg.RedisURL, err)
			redisClient.Close()
			redisClient = nil
		}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:     make(map[string]*ClientSession),
		redis:        redisClient,
		config:       cfg,
		roles:        messages.NewRoles(cfg.CustomerLabel, cfg.AgentLabel),
		conversation: NewConversation(cfg.MaxLines),
		analyzer:     deps.Analyzer,
		recorder:     deps.Recorder,
		metrics:      metrics,
		ctx:          ctx,
		cancel:       cancel,
	}

	if m.redis != nil {
		// restore live mode across restarts
		if v, err := m.redis.Get(ctx, redisLiveModeKey).Result(); err == nil {
			m.liveMode.Store(v == "1")
		}
	}

	return m, nil
}

// CreateSession registers a new client connection
func (sm *Manager) CreateSession(ctx context.Context, clientID, role string, clientConn *websocket.Conn) (*ClientSession, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxClients {
		return nil, ErrMaxClients
	}
	if _, exists := sm.sessions[clientID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, clientID)
	}

	session := newClientSession(clientID, role, clientConn, sm)
	// transcript writers hold sm.mu too, so the replay and later
	// broadcasts neither overlap nor leave a gap
	session.greeting = sm.greetingLocked(session)
	sm.storeSession(ctx, clientID, session)
	sm.metrics.ClientConnected(ctx, role, 1)
	return session, nil
}

// greetingLocked encodes the connected frame, the transcript so far and the
// live mode flag. sm.mu must be held.
func (sm *Manager) greetingLocked(cs *ClientSession) [][]byte {
	_, lines := sm.conversation.Snapshot()
	frames := make([]*messages.Frame, 0, len(lines)+2)
	frames = append(frames, messages.NewConnectedMessage(cs.ID, cs.Role))
	for _, line := range lines {
		frames = append(frames, messages.NewTranscriptMessage(line))
	}
	if sm.LiveMode() {
		frames = append(frames, messages.NewLiveModeChangedMessage(true))
	}

	ctx := context.Background()
	greeting := make([][]byte, 0, len(frames))
	for _, f := range frames {
		data, err := messages.Encode(f)
		if err != nil {
			log.Printf("❌ [%s] %v", shortID(cs.ID), err)
			continue
		}
		greeting = append(greeting, data)
		sm.metrics.RecordFrameSent(ctx, f.Type)
	}
	return greeting
}

// storeSession saves a session to memory and Redis
func (sm *Manager) storeSession(ctx context.Context, clientID string, session *ClientSession) {
	sm.sessions[clientID] = session

	if sm.redis != nil {
		sm.redis.HSet(ctx, "client:"+clientID, map[string]interface{}{
			"role":          session.Role,
			"created_at":    session.CreatedAt.Format(time.RFC3339),
			"last_activity": session.LastActivity.Format(time.RFC3339),
			"status":        "active",
		})
		sm.redis.SAdd(ctx, redisClientsKey, clientID)
		sm.redis.Expire(ctx, "client:"+clientID, sm.config.SessionTimeout)
	}
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(clientID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[clientID]
	return session, exists
}

// RemoveSession cleans up and removes a session. A newer session that
// reuses the same client id is left alone.
func (sm *Manager) RemoveSession(ctx context.Context, cs *ClientSession) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	current, exists := sm.sessions[cs.ID]
	if !exists || current != cs {
		cs.Close()
		return nil
	}

	sm.dropLocked(ctx, cs.ID, cs)
	return nil
}

// dropLocked closes and forgets a session. sm.mu must be held.
func (sm *Manager) dropLocked(ctx context.Context, clientID string, session *ClientSession) {
	session.Close()
	delete(sm.sessions, clientID)
	sm.metrics.ClientConnected(ctx, session.Role, -1)

	if sm.redis != nil {
		sm.redis.Del(ctx, "client:"+clientID)
		sm.redis.SRem(ctx, redisClientsKey, clientID)
	}
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// LiveMode reports whether every new line triggers an analysis
func (sm *Manager) LiveMode() bool {
	return sm.liveMode.Load()
}

// Analyzing reports whether an analysis is running
func (sm *Manager) Analyzing() bool {
	return sm.analyzing.Load()
}

// Conversation exposes the shared call transcript
func (sm *Manager) Conversation() *Conversation {
	return sm.conversation
}

// Broadcast queues a frame to every connected client
func (sm *Manager) Broadcast(f *messages.Frame) {
	data, err := messages.Encode(f)
	if err != nil {
		log.Printf("❌ Error encoding broadcast: %v", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.queueAllLocked(f.Type, data)
}

// broadcastLocked is Broadcast for callers already holding sm.mu
func (sm *Manager) broadcastLocked(f *messages.Frame) {
	data, err := messages.Encode(f)
	if err != nil {
		log.Printf("❌ Error encoding broadcast: %v", err)
		return
	}
	sm.queueAllLocked(f.Type, data)
}

func (sm *Manager) queueAllLocked(frameType string, data []byte) {
	for _, session := range sm.sessions {
		session.queueRaw(frameType, data)
	}
}

// handleFrame routes one inbound frame from a client
func (sm *Manager) handleFrame(cs *ClientSession, f *messages.Frame) {
	ctx := sm.ctx

	switch f.Type {
	case messages.TypeAddText:
		if err := sm.AddText(ctx, f.Text); err != nil {
			code := messages.ErrCodeInvalidMessage
			if errors.Is(err, ErrConversationFull) {
				code = messages.ErrCodeBufferFull
			}
			cs.queueMessage(messages.NewErrorMessage(code, err.Error()))
			return
		}
		cs.queueMessage(messages.NewTextAddedMessage())

	case messages.TypeAnalyze:
		if err := sm.TriggerAnalysis(TriggerManual); err != nil {
			code := messages.ErrCodeAnalysisError
			if errors.Is(err, ErrAnalysisInProgress) {
				code = messages.ErrCodeAnalysisBusy
			}
			cs.queueMessage(messages.NewErrorMessage(code, err.Error()))
		}

	case messages.TypeClear:
		sm.Clear(ctx)

	case messages.TypeLiveMode:
		sm.SetLiveMode(ctx, f.IsEnabled())

	default:
		log.Printf("⚠️ [%s] Unknown message type: %s", shortID(cs.ID), f.Type)
		cs.queueMessage(messages.NewErrorMessage(messages.ErrCodeInvalidMessage, "Unknown message type: "+f.Type))
	}
}

// AddText appends a transcript line and broadcasts it. In live mode it also
// starts an analysis, or schedules one for when the running one finishes.
func (sm *Manager) AddText(ctx context.Context, line string) error {
	if strings.TrimSpace(line) == "" {
		return ErrEmptyText
	}
	if _, _, ok := sm.roles.Parse(line); !ok {
		return ErrUnlabeledText
	}

	sm.mu.Lock()
	if err := sm.conversation.Append(line); err != nil {
		sm.mu.Unlock()
		return fmt.Errorf("%w (max %d lines)", err, sm.conversation.MaxLines())
	}
	if sm.redis != nil {
		key := redisTranscriptNS + sm.conversation.ID()
		sm.redis.RPush(ctx, key, line)
		sm.redis.Expire(ctx, key, sm.config.SessionTimeout)
	}
	sm.broadcastLocked(messages.NewTranscriptMessage(line))
	sm.mu.Unlock()

	if sm.LiveMode() {
		// stored before the trigger so a run that is about to finish
		// still sees it
		sm.rerunPending.Store(true)
		if err := sm.TriggerAnalysis(TriggerLive); err != nil && !errors.Is(err, ErrAnalysisInProgress) {
			log.Printf("⚠️ Live analysis not started: %v", err)
		}
	}
	return nil
}

// TriggerAnalysis starts an asynchronous analysis of the conversation.
// Only one analysis runs at a time.
func (sm *Manager) TriggerAnalysis(trigger string) error {
	if sm.conversation.IsEmpty() {
		return ErrNoConversation
	}
	if !sm.analyzing.CompareAndSwap(false, true) {
		return ErrAnalysisInProgress
	}

	sm.runMu.Lock()
	if sm.ctx.Err() != nil {
		sm.runMu.Unlock()
		sm.analyzing.Store(false)
		return ErrShuttingDown
	}
	sm.wg.Add(1)
	sm.runMu.Unlock()

	// this snapshot covers every pending live line
	sm.rerunPending.Store(false)
	conversationID, lines := sm.conversation.Snapshot()
	sm.Broadcast(messages.NewAnalyzingMessage())

	go func() {
		defer sm.wg.Done()
		sm.runAnalysis(trigger, conversationID, lines)
	}()
	return nil
}

func (sm *Manager) runAnalysis(trigger, conversationID string, lines []string) {
	ctx, cancel := context.WithCancel(sm.ctx)
	if sm.config.AnalysisTimeout > 0 {
		ctx, cancel = context.WithTimeout(sm.ctx, sm.config.AnalysisTimeout)
	}
	defer cancel()

	log.Printf("🤖 [%s] Analyzing %d lines (%s)", shortID(conversationID), len(lines), trigger)
	start := time.Now()
	result, err := sm.analyzer.Analyze(ctx, lines)
	sm.metrics.RecordAnalysis(ctx, trigger, time.Since(start), err)
	if err == nil {
		result = analysis.Normalize(result)
	}

	sm.analyzing.Store(false)
	sm.publishAnalysis(conversationID, result, err)

	if sm.rerunPending.Swap(false) && sm.LiveMode() {
		err := sm.TriggerAnalysis(TriggerLive)
		if err != nil && !errors.Is(err, ErrAnalysisInProgress) && !errors.Is(err, ErrNoConversation) && !errors.Is(err, ErrShuttingDown) {
			log.Printf("⚠️ Live analysis not restarted: %v", err)
		}
	}

	if err == nil && sm.recorder != nil {
		// Shutdown waits for this, so it must not depend on sm.ctx
		recCtx, recCancel := context.WithTimeout(context.WithoutCancel(sm.ctx), 30*time.Second)
		defer recCancel()
		if err := sm.recorder.RecordAnalysis(recCtx, conversationID, lines, result); err != nil {
			log.Printf("❌ [%s] Failed to record analysis: %v", shortID(conversationID), err)
		}
	}
}

// publishAnalysis broadcasts the outcome of a run. A run whose conversation
// was cleared meanwhile only tells clients it was discarded.
func (sm *Manager) publishAnalysis(conversationID string, result *messages.Analysis, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch {
	case conversationID != sm.conversation.ID():
		log.Printf("🗑️ [%s] Conversation cleared during analysis, result discarded", shortID(conversationID))
		sm.broadcastLocked(messages.NewErrorMessage(messages.ErrCodeAnalysisDiscarded, "Analysis discarded: conversation was cleared"))
	case err != nil:
		log.Printf("❌ [%s] Analysis failed: %v", shortID(conversationID), err)
		sm.broadcastLocked(messages.NewErrorMessage(messages.ErrCodeAnalysisError, "Analysis failed: "+err.Error()))
	default:
		log.Printf("✅ [%s] Analysis complete, overall %.1f", shortID(conversationID), result.OverallScore)
		sm.broadcastLocked(messages.NewAnalysisMessage(result))
	}
}

// Clear resets the shared conversation and tells every client
func (sm *Manager) Clear(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prev := sm.conversation.Reset()
	if sm.redis != nil {
		sm.redis.Del(ctx, redisTranscriptNS+prev)
	}
	log.Printf("🧹 [%s] Conversation cleared", shortID(prev))
	sm.broadcastLocked(messages.NewClearedMessage())
}

// SetLiveMode stores the live mode flag and announces it
func (sm *Manager) SetLiveMode(ctx context.Context, enabled bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.liveMode.Store(enabled)
	if sm.redis != nil {
		v := "0"
		if enabled {
			v = "1"
		}
		sm.redis.Set(ctx, redisLiveModeKey, v, 0)
	}
	log.Printf("📡 Live mode set to %v", enabled)
	sm.broadcastLocked(messages.NewLiveModeChangedMessage(enabled))
}

// CleanupInactiveSessions removes sessions that have been inactive
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, session := range sm.sessions {
		if now.Sub(session.lastActivity()) > sm.config.SessionTimeout {
			log.Printf("⏰ [%s] Removing inactive session", shortID(id))
			sm.dropLocked(ctx, id, session)
		}
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown cancels running analyses and closes all sessions
func (sm *Manager) Shutdown() {
	sm.runMu.Lock()
	sm.cancel()
	sm.runMu.Unlock()
	sm.wg.Wait()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	ctx := context.Background()
	for id, session := range sm.sessions {
		sm.dropLocked(ctx, id, session)
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
