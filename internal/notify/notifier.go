// Package notify forwards admin-relevant market events (disputes,
// cancellations, settlements) to chat channels such as Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// DefaultEvents are forwarded when no event filter is configured.
var DefaultEvents = []domain.EventKind{
	domain.EventOutcomeChallenged,
	domain.EventMarketCancelled,
	domain.EventMarketSettled,
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events whose kind is in its allowed set to every
// Sender.
type Notifier struct {
	senders []Sender
	events  map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list selects DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventKind(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, k := range DefaultEvents {
			allowed[k] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Wants reports whether events of kind k are forwarded.
func (n *Notifier) Wants(k domain.EventKind) bool { return n.events[k] }

// NotifyEvent formats and dispatches e if its kind is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, e domain.Event) error {
	if !n.events[e.Kind] {
		return nil
	}
	title, message := Format(e)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form message to every sender, bypassing the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Format renders an event as a title and a short plain-text body.
func Format(e domain.Event) (title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "market %d by %s", e.MarketID, e.Actor.Hex())

	switch e.Kind {
	case domain.EventOutcomeChallenged:
		title = fmt.Sprintf("Market %d disputed", e.MarketID)
		b.WriteString("\nadmin resolution required")
	case domain.EventMarketCancelled:
		title = fmt.Sprintf("Market %d cancelled", e.MarketID)
		if e.Reason != "" {
			fmt.Fprintf(&b, "\nreason: %s", e.Reason)
		}
	case domain.EventMarketSettled:
		title = fmt.Sprintf("Market %d settled", e.MarketID)
		if e.Option != nil {
			fmt.Fprintf(&b, "\nwinning option: %d", *e.Option)
		}
		if e.Price != nil {
			fmt.Fprintf(&b, "\nprice: %d", *e.Price)
		}
		if e.AdminResolution {
			b.WriteString("\nresolved by admin")
		}
	default:
		title = fmt.Sprintf("Market %d: %s", e.MarketID, e.Kind)
	}
	if e.TotalPool != 0 {
		fmt.Fprintf(&b, "\npool: %s", e.TotalPool)
	}
	return title, b.String()
}
