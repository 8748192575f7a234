// Package notify sends operator alerts (fills, disconnects, rejected orders,
// flattens) to Discord and Telegram webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event names raised by the feeds and the order service.
const (
	EventFill          = "fill"
	EventDisconnected  = "disconnected"
	EventOrderRejected = "order_rejected"
	EventFlatten       = "flatten"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every Sender. Events can be filtered by name
// and throttled so a flapping connection does not flood the channels.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "notifier")),
		last:    make(map[string]time.Time),
	}
}

// WithCooldown suppresses repeats of the same event within d. Fills are
// never throttled.
func (n *Notifier) WithCooldown(d time.Duration) *Notifier {
	n.cooldown = d
	return n
}

// Notify delivers title and message unless the event is filtered or cooling down.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.throttled(event) {
		n.logger.DebugContext(ctx, "event throttled", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) throttled(event string) bool {
	if n.cooldown <= 0 || event == EventFill {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if prev, ok := n.last[event]; ok && now.Sub(prev) < n.cooldown {
		return true
	}
	n.last[event] = now
	return false
}

// dispatch tries every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
