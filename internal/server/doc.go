// Package server wires the HTTP and websocket surface: stream CRUD,
// the chat socket upgrade, message history queries, paid prompts, agent
// responses, health probes, and the metrics endpoint.
package server
