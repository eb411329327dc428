// Package server implements the ChatGenius realtime messaging hub: it
// accepts persistent WebSocket connections, tracks per-connection
// identity, presence, and typing state, and fans chat events out to all
// interested connections.
//
// The implementation is organized into specialized files for the
// registry, presence store, typing index, hub loop, event intake,
// client pumps, configuration, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
