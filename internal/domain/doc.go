// Package domain holds the core types shared across the chat backend:
// message kinds and wire shapes, stream directory records, storage
// interfaces, and sentinel errors.
package domain
