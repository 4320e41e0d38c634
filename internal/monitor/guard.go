package monitor

import (
	"errors"
	"log/slog"

	"github.com/raphaelgruber/leadwatch/internal/events"
)

// AuthGuard returns a dispatcher listener that calls reject when the backend
// answers the auth frame with authenticated=false. Register it next to the
// view listeners on every connection so each view gets the same disconnect
// signal.
func AuthGuard(reject func(error), logger *slog.Logger) events.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev events.Event) {
		s, ok := ev.(events.Status)
		if !ok || !s.Rejected() {
			return
		}
		reason := s.Error
		if reason == "" {
			reason = s.Message
		}
		if reason == "" {
			reason = "authenticated: false"
		}
		logger.Warn("stream handshake rejected", "reason", reason)
		reject(errors.New(reason))
	}
}
