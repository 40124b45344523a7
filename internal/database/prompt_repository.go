package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

// PromptRepo records paid prompts for later reconciliation.
type PromptRepo struct {
	pool *pgxpool.Pool
}

func NewPromptRepo(pool *pgxpool.Pool) *PromptRepo {
	return &PromptRepo{pool: pool}
}

func (r *PromptRepo) Record(ctx context.Context, prompt domain.PaidPrompt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO paid_prompts (id, stream_id, prompt, sender_name, payment_type, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, prompt.ID, prompt.StreamID, prompt.Prompt, prompt.SenderName, prompt.PaymentKind, prompt.PaymentRef, prompt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record paid prompt: %w", err)
	}
	return nil
}
