package domain

import "context"

// MessageLog is the ordered, append-only, per-room message store.
// Entries are keyed by their timestamp (unix milliseconds) and are never
// mutated or deleted by this subsystem.
type MessageLog interface {
	// Append stores one serialized message under the given timestamp.
	Append(ctx context.Context, roomID string, timestamp int64, payload []byte) error
	// ListRecent returns up to limit of the newest entries, oldest first.
	ListRecent(ctx context.Context, roomID string, limit int) ([][]byte, error)
	// ListSince returns up to limit entries strictly after since, oldest first.
	ListSince(ctx context.Context, roomID string, since int64, limit int) ([][]byte, error)
	// ListBefore returns up to limit entries strictly before before, oldest first.
	ListBefore(ctx context.Context, roomID string, before int64, limit int) ([][]byte, error)
}

// StreamRepository is the stream directory.
type StreamRepository interface {
	Create(ctx context.Context, stream Stream) error
	GetByID(ctx context.Context, id string) (*Stream, error)
	ListActive(ctx context.Context) ([]Stream, error)
	MarkEnded(ctx context.Context, id string) error
}

// PromptAuditRepository records paid prompts for later reconciliation.
type PromptAuditRepository interface {
	Record(ctx context.Context, prompt PaidPrompt) error
}
