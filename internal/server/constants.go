// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection command rate limiting. Commands are cheap but
	// drive real mouse hardware; a runaway client must not.
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Journal lines returned when the query does not say.
	DefaultJournalLines = 50

	// Largest accepted capture region edge, in pixels.
	MaxRegionEdge = 2048
)
