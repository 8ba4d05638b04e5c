package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrConversationFull is returned when the conversation reached its line limit
var ErrConversationFull = errors.New("conversation full")

// Conversation accumulates the shared call transcript until cleared
type Conversation struct {
	id       string
	lines    []string
	maxLines int
	mu       sync.Mutex
}

// NewConversation creates a conversation holding at most maxLines lines
func NewConversation(maxLines int) *Conversation {
	return &Conversation{
		id:       uuid.New().String(),
		lines:    make([]string, 0),
		maxLines: maxLines,
	}
}

// ID identifies the current call, it changes on every Reset
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// MaxLines returns the line limit
func (c *Conversation) MaxLines() int {
	return c.maxLines
}

// Append adds a transcript line.
// Returns ErrConversationFull if the limit is reached.
func (c *Conversation) Append(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) >= c.maxLines {
		return ErrConversationFull
	}
	c.lines = append(c.lines, line)
	return nil
}

// Snapshot returns the conversation id and a copy of its lines
func (c *Conversation) Snapshot() (string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, len(c.lines))
	copy(lines, c.lines)
	return c.id, lines
}

// Reset empties the conversation and starts a new call id.
// Returns the id of the call that was cleared.
func (c *Conversation) Reset() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.id
	c.lines = make([]string, 0)
	c.id = uuid.New().String()
	return prev
}

// Len returns the number of lines
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// IsEmpty returns true if no lines are recorded
func (c *Conversation) IsEmpty() bool {
	return c.Len() == 0
}
