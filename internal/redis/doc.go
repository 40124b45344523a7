// Package redis implements the Redis-backed message log.
//
// Each room's history lives in one sorted set scored by the message
// timestamp, which gives the ordered append-only semantics the room
// actor needs: range-after, reverse-limited, and most-recent queries.
package redis
