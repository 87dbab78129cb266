// Package testutil provides shared testing utilities for chat-ui: a
// throwaway PostgreSQL container, an SSE response parser, and small logger
// helpers, following the pattern of net/http/httptest.
package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output. Components
// taking log.Logger can use log.NewNop() directly; this exists for call sites
// that want the slog type spelled out.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
