// Package ratelimit implements per-identity posting cooldowns.
//
// A Limiter is a forward-advancing watermark, not a windowed counter:
// each action pushes the watermark 5s forward and a 20s grace period is
// subtracted before any wait is reported, which allows a burst of four
// actions before the first positive cooldown. Limiters live in a Registry
// keyed by identity and are created lazily; callers talk to them through
// Handles that can go stale on eviction, and through Client, which owns
// the in-cooldown flag and the reconnect-once retry.
package ratelimit
