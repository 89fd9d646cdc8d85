// Package notify pushes solver lifecycle events (fills, failures) to
// operator channels. Delivery is fire-and-forget: a failed notification is
// logged and never affects order processing.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// titles maps solver event names to human-readable notification titles.
var titles = map[string]string{
	"intent_filled": "Intent filled",
	"fill_failed":   "Fill failed",
}

// Manager fans an event out to every configured sender, filtered by the
// allowed event list. An empty list allows all events.
type Manager struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewManager creates a Manager delivering to the given senders.
func NewManager(senders []Sender, events []string, logger *slog.Logger) *Manager {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Manager{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify delivers the event to every sender if the event type is allowed.
// Individual sender failures are logged; the remaining senders still receive
// the message.
func (m *Manager) Notify(ctx context.Context, event, message string) {
	if len(m.events) > 0 && !m.events[event] {
		m.logger.Debug("event filtered out", slog.String("event", event))
		return
	}

	title, ok := titles[event]
	if !ok {
		title = event
	}

	for _, s := range m.senders {
		if err := s.Send(ctx, title, message); err != nil {
			m.logger.Error("notification delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
