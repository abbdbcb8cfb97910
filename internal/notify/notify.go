// Package notify is the fire-and-forget boundary feeding chat and bot
// integrations. Publish failures are logged and never roll back state.
package notify

import (
	"tournethub/coordinator/internal/logging"
)

// Notification describes a state change of interest to external integrations.
type Notification struct {
	Kind         string `json:"kind"`
	TournamentID string `json:"tournament_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Payload      any    `json:"payload,omitempty"`
}

// Sink receives notifications. Implementations must be non-blocking or
// internally buffered; the coordinator does not wait on them.
type Sink interface {
	Publish(notification Notification)
}

// Nop discards every notification.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(Notification) {}

// Log writes notifications to the structured log, useful when no external
// integration is configured.
type Log struct {
	Logger *logging.Logger
}

// Publish implements Sink.
func (l Log) Publish(notification Notification) {
	logger := l.Logger
	if logger == nil {
		logger = logging.L()
	}
	logger.Info("notification",
		logging.String("notification_kind", notification.Kind),
		logging.String("tournament_id", notification.TournamentID),
		logging.String("detail", notification.Message))
}
