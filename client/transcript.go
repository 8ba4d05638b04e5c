package client

// Message is one transcript entry. Timestamp is Unix milliseconds.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Transcript is an append-only message list that drops an entry when it
// repeats the (role, text) of the last one. Earlier history is not checked.
// It is not safe for concurrent use; Client guards it with its own mutex.
type Transcript struct {
	entries []Message
}

// Append adds m unless it duplicates the last entry and reports whether it was added
func (t *Transcript) Append(m Message) bool {
	if n := len(t.entries); n > 0 {
		last := t.entries[n-1]
		if last.Role == m.Role && last.Text == m.Text {
			return false
		}
	}
	t.entries = append(t.entries, m)
	return true
}

// Entries returns a copy of the transcript
func (t *Transcript) Entries() []Message {
	out := make([]Message, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

// Reset drops every entry
func (t *Transcript) Reset() {
	t.entries = nil
}
