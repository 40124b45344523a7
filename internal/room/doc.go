// Package room implements the per-stream chat actor.
//
// Each Room is a single goroutine that owns every mutable piece of one
// stream's chat: the live session set, per-session pending queues, the
// timestamp watermark, and access to the append-only message log.
// Commands arrive on a channel, so no operation on a room ever runs
// concurrently with another. The Manager maps room ids to actors,
// creates them lazily, and evicts idle ones while keeping their
// connections alive for rehydration.
package room
