package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

// StreamRepo is the Postgres-backed stream directory.
type StreamRepo struct {
	pool *pgxpool.Pool
}

func NewStreamRepo(pool *pgxpool.Pool) *StreamRepo {
	return &StreamRepo{pool: pool}
}

func (r *StreamRepo) Create(ctx context.Context, stream domain.Stream) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO streams (id, agent_name, owner_user_id, playback_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`, stream.ID, stream.AgentName, stream.OwnerUserID, stream.PlaybackID, stream.Status, stream.CreatedAt, stream.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (r *StreamRepo) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	var (
		s        domain.Stream
		playback *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, agent_name, owner_user_id, playback_id, status, created_at, updated_at
		FROM streams WHERE id = $1
	`, id).Scan(&s.ID, &s.AgentName, &s.OwnerUserID, &playback, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	if playback != nil {
		s.PlaybackID = *playback
	}
	return &s, nil
}

func (r *StreamRepo) ListActive(ctx context.Context) ([]domain.Stream, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_name, owner_user_id, playback_id, status, created_at, updated_at
		FROM streams WHERE status != 'ended' ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var streams []domain.Stream
	for rows.Next() {
		var (
			s        domain.Stream
			playback *string
		)
		if err := rows.Scan(&s.ID, &s.AgentName, &s.OwnerUserID, &playback, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		if playback != nil {
			s.PlaybackID = *playback
		}
		streams = append(streams, s)
	}
	return streams, rows.Err()
}

func (r *StreamRepo) MarkEnded(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE streams SET status = 'ended', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to end stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamNotFound
	}
	return nil
}
