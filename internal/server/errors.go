// Package server defines the error taxonomy for inbound event handling
// and shared transport error helpers.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks malformed or incomplete inbound events. They
	// are dropped; the only client-visible effect is the absence of a
	// confirmation.
	ErrValidation = errors.New("invalid event")

	// ErrAuthorization marks events the sender is not permitted to
	// emit, such as posting to a channel they are not a member of.
	// Surfaced to the sender as an explicit error reply.
	ErrAuthorization = errors.New("not authorized")

	// ErrPersistence marks a failed durable append. The send attempt is
	// dropped; retrying is the client's decision.
	ErrPersistence = errors.New("persistence failed")
)

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
