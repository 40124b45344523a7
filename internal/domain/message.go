package domain

// MessageKind discriminates the wire and storage shape of a chat message.
type MessageKind string

const (
	KindChat          MessageKind = "chat"
	KindSystem        MessageKind = "system"
	KindPaidPrompt    MessageKind = "paid_prompt"
	KindAgentResponse MessageKind = "agent_response"
)

const (
	// MaxNameLength caps the display name set during the handshake.
	MaxNameLength = 32
	// MaxBodyLength caps the body of a chat message.
	MaxBodyLength = 500
	// BacklogReplayLimit is how many persisted entries a fresh session is
	// pre-loaded with before identification.
	BacklogReplayLimit = 100
)

// ChatMessage is the outbound wire shape and the persisted log entry.
// Timestamps are unix milliseconds, strictly increasing within a room.
type ChatMessage struct {
	Kind        MessageKind `json:"type"`
	Name        string      `json:"name,omitempty"`
	Body        string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Timestamp   int64       `json:"timestamp"`
	PromptID    string      `json:"promptId,omitempty"`
	PaymentKind string      `json:"paymentType,omitempty"`
	InReplyTo   string      `json:"inReplyTo,omitempty"`
}

// InboundFrame is what a client sends: {name} to identify, {message} to chat.
type InboundFrame struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ReadyFrame acknowledges a completed handshake.
type ReadyFrame struct {
	Ready bool `json:"ready"`
}

// Truncate clips s to at most max runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
