// Package database provides PostgreSQL connectivity and repositories.
//
// Uses pgx for connection pooling with inline idempotent migrations at
// startup. Repositories implement the domain interfaces:
// StreamRepository (stream directory) and PromptAuditRepository
// (paid-prompt audit trail).
package database
