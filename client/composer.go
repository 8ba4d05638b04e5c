package client

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callpulse/messages"
)

// Send transmits text as a line spoken by this view's own role.
// Whitespace-only input is rejected before touching the network.
func (c *Client) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.sendLine(c.ownLabel(), text)
}

// SimulateCustomer lets the agent dashboard inject a customer line
func (c *Client) SimulateCustomer(text string) error {
	if c.cfg.View != ViewAgent {
		return ErrAgentOnly
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.sendLine(c.roles.Customer, text)
}

// ToggleLiveMode flips live mode and tells the server. It returns the new flag.
// The local flag only changes when the frame was sent.
func (c *Client) ToggleLiveMode() (bool, error) {
	if c.cfg.View != ViewAgent {
		return false, ErrAgentOnly
	}

	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	c.mu.Lock()
	next := !c.liveMode
	c.mu.Unlock()

	if err := c.sendFrame(messages.NewLiveModeFrame(next)); err != nil {
		return !next, err
	}

	c.mu.Lock()
	c.liveMode = next
	c.mu.Unlock()
	c.notify()
	return next, nil
}

// RequestAnalysis asks for a manual analysis. It is refused while live mode
// is on, while an analysis is in flight or while there is nothing to analyze.
func (c *Client) RequestAnalysis() error {
	if c.cfg.View != ViewAgent {
		return ErrAgentOnly
	}

	c.mu.Lock()
	unavailable := c.liveMode || c.analyzing || c.transcript.Len() == 0
	c.mu.Unlock()
	if unavailable {
		return ErrAnalysisUnavailable
	}

	return c.sendFrame(messages.NewAnalyzeFrame())
}

// Clear asks the server to reset the shared conversation
func (c *Client) Clear() error {
	if c.cfg.View != ViewAgent {
		return ErrAgentOnly
	}
	return c.sendFrame(messages.NewClearFrame())
}

func (c *Client) ownLabel() string {
	if c.cfg.View == ViewAgent {
		return c.roles.Agent
	}
	return c.roles.Customer
}

func (c *Client) sendLine(label, text string) error {
	if err := c.sendFrame(messages.NewAddTextFrame(c.roles.Format(label, text))); err != nil {
		return err
	}

	if c.cfg.OptimisticAppend {
		c.mu.Lock()
		added := c.transcript.Append(Message{Role: label, Text: text, Timestamp: c.now().UnixMilli()})
		c.mu.Unlock()
		if added {
			c.notify()
		}
	}
	return nil
}

// sendFrame writes one frame if a session is open
func (c *Client) sendFrame(f *messages.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		log.Printf("❌ WebSocket not connected, dropping %s", f.Type)
		c.mu.Lock()
		c.addLog("WebSocket not connected", LogError)
		c.mu.Unlock()
		c.notify()
		return ErrNotConnected
	}

	data, err := messages.Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}

	log.Printf("📤 Sent: %s", f.Type)
	return nil
}
