// Package client implements the agent dashboard and customer widget side of a
// call: one websocket session per client, a deduplicated live transcript, the
// latest AI score card and the controls that drive analysis on the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/callpulse/messages"
)

// View selects which side of the call a client represents
type View string

const (
	ViewAgent    View = "agent"
	ViewCustomer View = "customer"
)

const writeTimeout = 10 * time.Second

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrNotConnected        = errors.New("websocket not connected")
	ErrAnalysisUnavailable = errors.New("analysis cannot be requested now")
	ErrAgentOnly           = errors.New("action is only available in the agent view")
)

// Config configures a Client
type Config struct {
	// ServerURL is the websocket base, e.g. ws://localhost:8080
	ServerURL string

	View View

	// Roles defaults to messages.DefaultRoles()
	Roles *messages.Roles

	// Dialer defaults to websocket.DefaultDialer
	Dialer *websocket.Dialer

	// OptimisticAppend adds own messages to the transcript before the
	// server echo arrives. The echo is then suppressed by the last-entry dedup.
	OptimisticAppend bool

	// AnalysisTimeout clears the analyzing flag when no result arrives in time.
	// Zero waits forever.
	AnalysisTimeout time.Duration

	// OnUpdate is called with a fresh snapshot after every state change.
	// It runs on the goroutine that caused the change and must not block.
	OnUpdate func(State)

	// Now defaults to time.Now
	Now func() time.Time
}

// State is a point-in-time copy of everything a view renders
type State struct {
	ClientID   string
	Connected  bool
	LiveMode   bool
	Analyzing  bool
	Transcript []Message
	Analysis   *messages.Analysis
	Logs       []LogEntry
}

// Client owns one websocket session to the call-center server
type Client struct {
	cfg    Config
	roles  *messages.Roles
	dialer *websocket.Dialer
	now    func() time.Time

	mu            sync.Mutex
	conn          *websocket.Conn
	clientID      string
	connected     bool
	liveMode      bool
	analyzing     bool
	transcript    Transcript
	analysis      *messages.Analysis
	logs          *LogBuffer
	analysisTimer *time.Timer
	analysisGen   uint64

	// serializes socket writes, gorilla allows one concurrent writer
	writeMu sync.Mutex
	// serializes live mode toggles so the flag follows the frame order
	toggleMu sync.Mutex
}

// New validates cfg and returns a disconnected client
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if cfg.View != ViewAgent && cfg.View != ViewCustomer {
		return nil, fmt.Errorf("invalid view %q: must be %q or %q", cfg.View, ViewAgent, ViewCustomer)
	}

	c := &Client{
		cfg:    cfg,
		roles:  cfg.Roles,
		dialer: cfg.Dialer,
		now:    cfg.Now,
	}
	if c.roles == nil {
		c.roles = messages.DefaultRoles()
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.now == nil {
		c.now = time.Now
	}

	capacity := 0
	if cfg.View == ViewAgent {
		capacity = agentLogCapacity
	}
	c.logs = NewLogBuffer(capacity)

	return c, nil
}

// NewClientID derives a client identifier from the wall clock. The random
// suffix keeps two connects within the same millisecond apart.
func NewClientID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Endpoint returns the websocket URL for a client id
func (c *Client) Endpoint(clientID string) (string, error) {
	return url.JoinPath(c.cfg.ServerURL, "ws", string(c.cfg.View), clientID)
}

// Connect opens the session. It is a no-op while a session is open.
// There is no automatic retry, callers reconnect by calling Connect again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	clientID := NewClientID(c.now())
	endpoint, err := c.Endpoint(clientID)
	if err != nil {
		return fmt.Errorf("build endpoint: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		log.Printf("❌ WebSocket error: %v", err)
		c.mu.Lock()
		c.addLog("Connection error", LogError)
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// lost a race with a concurrent Connect
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.clientID = clientID
	c.connected = true
	c.addLog("Connected", LogSuccess)
	c.mu.Unlock()

	log.Printf("✅ WebSocket connected as %s (%s)", c.cfg.View, clientID)
	c.notify()

	go c.readPump(conn)
	return nil
}

// Close tears the session down unconditionally. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.detachLocked()
	c.mu.Unlock()

	log.Printf("🔌 WebSocket disconnected (%s)", c.cfg.View)
	c.notify()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return conn.Close()
}

// Connected reports the last known socket state
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns a snapshot of the client state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ClientID:   c.clientID,
		Connected:  c.connected,
		LiveMode:   c.liveMode,
		Analyzing:  c.analyzing,
		Transcript: c.transcript.Entries(),
		Analysis:   c.analysis.Clone(),
		Logs:       c.logs.Entries(),
	}
}

// readPump dispatches inbound frames until the socket fails or is closed
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.handleClose(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isCurrent(conn) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ WebSocket error: %v", err)
				c.mu.Lock()
				c.addLog("Connection error", LogError)
				c.mu.Unlock()
			}
			return
		}

		frame, err := messages.Decode(data)
		if err != nil {
			log.Printf("⚠️ Dropping malformed frame: %v", err)
			continue
		}
		log.Printf("📩 Received: %s", frame.Type)
		c.Dispatch(frame)
	}
}

// handleClose runs when the read loop ends for any reason
func (c *Client) handleClose(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		// already detached by Close or replaced by a new Connect
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()

	log.Printf("🔌 WebSocket disconnected (%s)", c.cfg.View)
	c.notify()
}

// detachLocked drops the socket reference and records the disconnect.
// c.mu must be held.
func (c *Client) detachLocked() {
	c.conn = nil
	c.connected = false
	c.stopAnalysisTimerLocked()
	c.addLog("Disconnected", LogWarning)
}

func (c *Client) isCurrent(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// addLog records a dashboard log entry. c.mu must be held.
func (c *Client) addLog(message string, level LogLevel) {
	c.logs.Add(message, level, c.now())
}

func (c *Client) notify() {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate(c.State())
	}
}
