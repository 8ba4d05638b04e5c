package messages

// Frame types sent by agent and customer clients
const (
	TypeAddText  = "add_text"
	TypeAnalyze  = "analyze"
	TypeClear    = "clear"
	TypeLiveMode = "live_mode"
)

// NewAddTextFrame wraps an already role-prefixed transcript line
func NewAddTextFrame(line string) *Frame {
	return &Frame{Type: TypeAddText, Text: line}
}

// NewAnalyzeFrame requests a manual analysis of the current conversation
func NewAnalyzeFrame() *Frame {
	return &Frame{Type: TypeAnalyze}
}

// NewClearFrame requests that the shared conversation be reset
func NewClearFrame() *Frame {
	return &Frame{Type: TypeClear}
}

// NewLiveModeFrame asks the server to analyze after every message
func NewLiveModeFrame(enabled bool) *Frame {
	return &Frame{Type: TypeLiveMode, Enabled: &enabled}
}
