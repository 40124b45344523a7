package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// MessageLog stores each room's chat history in a sorted set keyed by
// room id and scored by message timestamp (unix milliseconds). Room
// timestamps are strictly increasing, so scores never collide within a
// room and range queries preserve arrival order. Entries are never
// rewritten or deleted here.
type MessageLog struct {
	client *Client
}

func NewMessageLog(client *Client) *MessageLog {
	return &MessageLog{client: client}
}

func logKey(roomID string) string {
	return "room:" + roomID + ":log"
}

// Append stores one serialized message under its timestamp.
func (l *MessageLog) Append(ctx context.Context, roomID string, timestamp int64, payload []byte) error {
	err := l.client.rdb.ZAdd(ctx, logKey(roomID), goredis.Z{
		Score:  float64(timestamp),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append to room log: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the newest entries, oldest first.
func (l *MessageLog) ListRecent(ctx context.Context, roomID string, limit int) ([][]byte, error) {
	entries, err := l.client.rdb.ZRevRangeByScore(ctx, logKey(roomID), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return reversed(entries), nil
}

// ListSince returns up to limit entries strictly after since, oldest first.
func (l *MessageLog) ListSince(ctx context.Context, roomID string, since int64, limit int) ([][]byte, error) {
	entries, err := l.client.rdb.ZRangeByScore(ctx, logKey(roomID), &goredis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(since, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages since %d: %w", since, err)
	}
	return asBytes(entries), nil
}

// ListBefore returns up to limit entries strictly before before, oldest
// first. Internally the newest qualifying entries are fetched in reverse
// and flipped back, so pagination walks backward through history.
func (l *MessageLog) ListBefore(ctx context.Context, roomID string, before int64, limit int) ([][]byte, error) {
	entries, err := l.client.rdb.ZRevRangeByScore(ctx, logKey(roomID), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before, 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages before %d: %w", before, err)
	}
	return reversed(entries), nil
}

func asBytes(entries []string) [][]byte {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = []byte(e)
	}
	return out
}

func reversed(entries []string) [][]byte {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = []byte(e)
	}
	return out
}
