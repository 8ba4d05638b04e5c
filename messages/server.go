package messages

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeAnalysisError  = "ANALYSIS_ERROR"
	ErrCodeAnalysisBusy   = "ANALYSIS_BUSY"
	ErrCodeSessionFailed  = "SESSION_FAILED"
	ErrCodeBufferFull     = "BUFFER_FULL"

	// the conversation was cleared while its analysis was running
	ErrCodeAnalysisDiscarded = "ANALYSIS_DISCARDED"
)

// Frame types sent by the server
const (
	TypeConnected       = "connected"
	TypeNewMessage      = "new_message"
	TypeTextAdded       = "text_added"
	TypeAnalyzing       = "analyzing"
	TypeAnalysisResult  = "analysis_result"
	TypeCleared         = "cleared"
	TypeLiveModeChanged = "live_mode_changed"
	TypeError           = "error"
)

// Frame is one JSON message on the socket, in either direction.
// Only the fields relevant to Type are populated.
type Frame struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Enabled  *bool     `json:"enabled,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Message  string    `json:"message,omitempty"`
	Code     string    `json:"code,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Role     string    `json:"role,omitempty"`
}

// NewConnectedMessage acknowledges a freshly registered client
func NewConnectedMessage(clientID, role string) *Frame {
	return &Frame{Type: TypeConnected, ClientID: clientID, Role: role}
}

// NewTranscriptMessage broadcasts a role-prefixed line to every client
func NewTranscriptMessage(line string) *Frame {
	return &Frame{Type: TypeNewMessage, Text: line}
}

// NewTextAddedMessage confirms an add_text to its sender
func NewTextAddedMessage() *Frame {
	return &Frame{Type: TypeTextAdded}
}

func NewAnalyzingMessage() *Frame {
	return &Frame{Type: TypeAnalyzing}
}

// NewAnalysisMessage carries a complete analysis result
func NewAnalysisMessage(a *Analysis) *Frame {
	return &Frame{Type: TypeAnalysisResult, Analysis: a}
}

func NewClearedMessage() *Frame {
	return &Frame{Type: TypeCleared}
}

// NewLiveModeChangedMessage announces the server-side live mode flag
func NewLiveModeChangedMessage(enabled bool) *Frame {
	return &Frame{Type: TypeLiveModeChanged, Enabled: &enabled}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) *Frame {
	return &Frame{Type: TypeError, Code: code, Message: message}
}

// IsEnabled reports the enabled flag, treating a missing flag as false
func (f *Frame) IsEnabled() bool {
	return f.Enabled != nil && *f.Enabled
}
