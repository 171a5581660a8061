package models

// Canonical roles. The set is closed: adapters normalise every dialect role
// into one of these before a request crosses the protocol boundary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single conversational message in the canonical schema.
type Message struct {
	Role string
	Text string
}

// ChatRequest is the canonical representation of a chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	Stream      bool
}

// ChatResult captures a buffered canonical completion. Usage is nil when the
// upstream did not report token counts.
type ChatResult struct {
	Text         string
	FinishReason string
	Usage        *Usage
}

// Usage records token accounting information.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Model identifies a model exposed by the upstream capability.
type Model struct {
	ID      string
	OwnedBy string
}
