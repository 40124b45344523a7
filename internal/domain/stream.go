package domain

import "time"

// StreamStatus is the lifecycle state of a stream.
type StreamStatus string

const (
	StatusLive    StreamStatus = "live"
	StatusOffline StreamStatus = "offline"
	StatusEnded   StreamStatus = "ended"
)

// Stream is one livestream entry in the directory.
type Stream struct {
	ID          string       `json:"id"`
	AgentName   string       `json:"agentName"`
	OwnerUserID string       `json:"ownerUserId"`
	PlaybackID  string       `json:"playbackId,omitempty"`
	Status      StreamStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PaymentKind identifies the rail a paid prompt was settled on.
type PaymentKind string

const (
	PaymentX402   PaymentKind = "x402"
	PaymentStripe PaymentKind = "stripe"
)

// PaidPrompt is the audit record for a paid prompt delivered to a room.
type PaidPrompt struct {
	ID          string      `json:"id"`
	StreamID    string      `json:"streamId"`
	Prompt      string      `json:"prompt"`
	SenderName  string      `json:"senderName"`
	PaymentKind PaymentKind `json:"paymentType"`
	PaymentRef  string      `json:"paymentRef"`
	CreatedAt   time.Time   `json:"createdAt"`
}
