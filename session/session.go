package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callpulse/messages"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxFrameSize    = 64 * 1024
)

// Client roles accepted on /ws/{role}/{clientID}
const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// ValidRole reports whether role names a supported client view
func ValidRole(role string) bool {
	return role == RoleAgent || role == RoleCustomer
}

// ClientSession represents a single agent or customer connection
type ClientSession struct {
	ID           string
	Role         string
	ClientConn   *websocket.Conn
	CreatedAt    time.Time
	LastActivity time.Time

	manager *Manager

	// Use channels for non-blocking writes
	writeChan chan []byte

	// written ahead of writeChan, built while the session is registered
	greeting [][]byte

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
}

func newClientSession(id, role string, conn *websocket.Conn, manager *Manager) *ClientSession {
	conn.SetReadLimit(maxFrameSize)

	now := time.Now()
	return &ClientSession{
		ID:           id,
		Role:         role,
		ClientConn:   conn,
		CreatedAt:    now,
		LastActivity: now,
		manager:      manager,
		writeChan:    make(chan []byte, writeBufferSize),
		CloseChan:    make(chan struct{}),
	}
}

// Start begins the read and write loops. The writer greets the client and
// replays the conversation before anything broadcast since registration.
func (cs *ClientSession) Start() {
	go cs.writePump()
	go cs.handleClientMessages()
}

func (cs *ClientSession) keepAlivePeriod() time.Duration {
	if p := cs.manager.config.KeepAlivePeriod; p > 0 {
		return p
	}
	return 30 * time.Second
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	ticker := time.NewTicker(cs.keepAlivePeriod())

	// runs last, after the close frame
	defer cs.Close()
	defer func() {
		ticker.Stop()
		// Send close message before exiting
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	if !cs.writeGreeting() {
		return
	}

	for {
		select {
		case <-cs.CloseChan:
			return
		case <-ticker.C:
			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-cs.writeChan:
			if !ok {
				// Channel closed, exit gracefully
				return
			}

			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// drain whatever queued up meanwhile
			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				data, ok := <-cs.writeChan
				if !ok {
					return
				}
				if err := cs.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}
}

func (cs *ClientSession) writeGreeting() bool {
	for _, data := range cs.greeting {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cs.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
			return false
		}
	}
	cs.greeting = nil
	return true
}

// queueMessage encodes and queues a frame for this client only
func (cs *ClientSession) queueMessage(f *messages.Frame) {
	data, err := messages.Encode(f)
	if err != nil {
		log.Printf("❌ [%s] %v", shortID(cs.ID), err)
		return
	}
	cs.queueRaw(f.Type, data)
}

// queueRaw adds encoded data to the write queue (non-blocking)
func (cs *ClientSession) queueRaw(frameType string, data []byte) {
	cs.mu.RLock()
	if cs.closed {
		cs.mu.RUnlock()
		return
	}
	var queued bool
	select {
	case cs.writeChan <- data:
		queued = true
	default:
		// Queue full, slow consumer loses the frame
	}
	cs.mu.RUnlock()

	ctx := context.Background()
	if !queued {
		log.Printf("⚠️ [%s] Write queue full, dropping %s", shortID(cs.ID), frameType)
		cs.manager.metrics.RecordFrameDropped(ctx)
		return
	}
	cs.manager.metrics.RecordFrameSent(ctx, frameType)
	cs.touch()
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

// lastActivity returns when the session last read or queued a frame
func (cs *ClientSession) lastActivity() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.LastActivity
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true

	// Close the write channel first to stop writePump
	close(cs.writeChan)
	cs.mu.Unlock()

	// Signal close (for other goroutines waiting on this)
	close(cs.CloseChan)

	// Close client connection
	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}

	return nil
}

func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	// a peer that stops answering pings is dropped after two periods
	pongWait := 2 * cs.keepAlivePeriod()
	cs.ClientConn.SetReadDeadline(time.Now().Add(pongWait))
	cs.ClientConn.SetPongHandler(func(string) error {
		cs.touch()
		return cs.ClientConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			messageType, data, err := cs.ClientConn.ReadMessage()
			if err != nil {
				if !cs.IsClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("❌ [%s] WebSocket read error: %v", shortID(cs.ID), err)
				}
				return
			}

			cs.touch()
			cs.ClientConn.SetReadDeadline(time.Now().Add(pongWait))

			if messageType != websocket.TextMessage {
				cs.queueMessage(messages.NewErrorMessage(messages.ErrCodeInvalidMessage, "Binary frames are not supported"))
				continue
			}

			frame, err := messages.Decode(data)
			if err != nil {
				cs.queueMessage(messages.NewErrorMessage(messages.ErrCodeInvalidMessage, "Invalid message format"))
				continue
			}

			cs.manager.metrics.RecordFrameReceived(context.Background(), frame.Type)
			cs.manager.handleFrame(cs, frame)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
