package client

import (
	"log"
	"time"

	"github.com/room4-2/callpulse/messages"
)

// Dispatch applies one inbound frame to the client state.
// Frames of unknown type are logged and otherwise ignored.
func (c *Client) Dispatch(f *messages.Frame) {
	if f == nil {
		return
	}

	c.mu.Lock()
	changed := c.applyLocked(f)
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// applyLocked is the flat frame dispatch. It reports whether observable
// state changed. c.mu must be held.
func (c *Client) applyLocked(f *messages.Frame) bool {
	switch f.Type {
	case messages.TypeConnected:
		c.addLog("WebSocket session established", LogSuccess)

	case messages.TypeNewMessage:
		if label, text, ok := c.roles.Parse(f.Text); ok {
			c.transcript.Append(Message{
				Role:      label,
				Text:      text,
				Timestamp: c.now().UnixMilli(),
			})
		}
		c.addLog("New message received", LogInfo)

	case messages.TypeTextAdded:
		c.addLog("Text added", LogInfo)

	case messages.TypeAnalyzing:
		c.analyzing = true
		c.startAnalysisTimerLocked()
		c.addLog("Analyzing...", LogInfo)

	case messages.TypeAnalysisResult:
		c.analyzing = false
		c.stopAnalysisTimerLocked()
		c.analysis = f.Analysis.Clone()
		c.addLog("Analysis complete", LogSuccess)

	case messages.TypeCleared:
		c.transcript.Reset()
		c.analysis = nil
		c.addLog("Conversation cleared", LogInfo)

	case messages.TypeLiveModeChanged:
		if f.IsEnabled() {
			c.addLog("Live mode enabled", LogInfo)
		} else {
			c.addLog("Live mode disabled", LogInfo)
		}

	case messages.TypeError:
		c.analyzing = false
		c.stopAnalysisTimerLocked()
		c.addLog("Error: "+f.Message, LogError)

	default:
		log.Printf("Unknown message type: %s", f.Type)
		return false
	}
	return true
}

func (c *Client) startAnalysisTimerLocked() {
	if c.cfg.AnalysisTimeout <= 0 {
		return
	}
	c.stopAnalysisTimerLocked()
	gen := c.analysisGen
	c.analysisTimer = time.AfterFunc(c.cfg.AnalysisTimeout, func() { c.analysisTimedOut(gen) })
}

// stopAnalysisTimerLocked also bumps the generation, so a timer that fired
// but is still waiting on c.mu becomes a no-op
func (c *Client) stopAnalysisTimerLocked() {
	c.analysisGen++
	if c.analysisTimer != nil {
		c.analysisTimer.Stop()
		c.analysisTimer = nil
	}
}

func (c *Client) analysisTimedOut(gen uint64) {
	c.mu.Lock()
	if gen != c.analysisGen || !c.analyzing {
		c.mu.Unlock()
		return
	}
	c.analyzing = false
	c.analysisTimer = nil
	c.addLog("Analysis timed out", LogError)
	c.mu.Unlock()

	log.Printf("⏰ No analysis result within %s", c.cfg.AnalysisTimeout)
	c.notify()
}
