// Package server implements the real-time core of the chat relay: the room
// registry (hub), per-connection sessions, the WebSocket and read-API
// handlers, and their configuration.
//
// The implementation is organized into specialized files for the hub,
// clients, configuration, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
