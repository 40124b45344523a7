package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

func testStream(id string) domain.Stream {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Stream{
		ID:          id,
		AgentName:   "molty",
		OwnerUserID: "user-1",
		PlaybackID:  "pb-1",
		Status:      domain.StatusLive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStreamRepo_CreateAndGet(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewStreamRepo(pool)
	ctx := context.Background()

	want := testStream("stream-1")
	require.NoError(t, repo.Create(ctx, want))

	got, err := repo.GetByID(ctx, "stream-1")
	require.NoError(t, err)
	assert.Equal(t, want.AgentName, got.AgentName)
	assert.Equal(t, want.OwnerUserID, got.OwnerUserID)
	assert.Equal(t, want.PlaybackID, got.PlaybackID)
	assert.Equal(t, domain.StatusLive, got.Status)
}

func TestStreamRepo_GetMissing(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewStreamRepo(pool)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestStreamRepo_EmptyPlaybackStoredAsNull(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewStreamRepo(pool)
	ctx := context.Background()

	stream := testStream("stream-1")
	stream.PlaybackID = ""
	require.NoError(t, repo.Create(ctx, stream))

	got, err := repo.GetByID(ctx, "stream-1")
	require.NoError(t, err)
	assert.Empty(t, got.PlaybackID)
}

func TestStreamRepo_ListActiveExcludesEnded(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewStreamRepo(pool)
	ctx := context.Background()

	live := testStream("stream-live")
	ended := testStream("stream-ended")
	ended.CreatedAt = live.CreatedAt.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, ended))
	require.NoError(t, repo.MarkEnded(ctx, "stream-ended"))

	streams, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, "stream-live", streams[0].ID)
}

func TestStreamRepo_MarkEndedMissing(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewStreamRepo(pool)

	err := repo.MarkEnded(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestPromptRepo_Record(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewPromptRepo(pool)
	ctx := context.Background()

	prompt := domain.PaidPrompt{
		ID:          uuid.NewString(),
		StreamID:    "stream-1",
		Prompt:      "do a flip",
		SenderName:  "Alice",
		PaymentKind: domain.PaymentX402,
		PaymentRef:  "tx-1",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Record(ctx, prompt))

	var stored string
	err := pool.QueryRow(ctx, "SELECT prompt FROM paid_prompts WHERE id = $1", prompt.ID).Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, "do a flip", stored)
}
