package link

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/taar-app/ticketsync/pkg/kafka"
	"github.com/taar-app/ticketsync/pkg/logger"
)

// TopicAccountLinked receives one event per successful provider sign-in.
var TopicAccountLinked = pkgkafka.Topic("organiser", "account_linked")

const (
	aggregateTypeAccount = "ticketing_account"
	sourceTicketSync     = "ticketsync"
)

// Account describes a freshly linked provider account. It never carries
// credentials.
type Account struct {
	Provider    string `json:"provider"`
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name,omitempty"`
}

// Notifier is told about every linked account.
type Notifier interface {
	AccountLinked(ctx context.Context, account Account) error
}

// NopNotifier drops notifications. It is used when no broker is configured.
type NopNotifier struct{}

// AccountLinked implements Notifier.
func (NopNotifier) AccountLinked(context.Context, Account) error { return nil }

// Publisher publishes an event envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// EventNotifier publishes account_linked events.
type EventNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewEventNotifier creates a notifier backed by publisher.
func NewEventNotifier(publisher Publisher, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{publisher: publisher, logger: logger}
}

// AccountLinked implements Notifier.
func (n *EventNotifier) AccountLinked(ctx context.Context, account Account) error {
	aggregateID := account.Provider + ":" + account.Identifier
	event, err := pkgkafka.NewEvent(TopicAccountLinked, aggregateID, aggregateTypeAccount, sourceTicketSync, account)
	if err != nil {
		return fmt.Errorf("create account_linked event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	event.WithMetadata("provider", account.Provider)

	if err := n.publisher.Publish(ctx, TopicAccountLinked, event); err != nil {
		return fmt.Errorf("publish account_linked event: %w", err)
	}

	n.logger.DebugContext(ctx, "published account_linked event",
		slog.String("provider", account.Provider),
		slog.String("event_id", event.EventID),
	)
	return nil
}
