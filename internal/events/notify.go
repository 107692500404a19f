package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// alertTopics are surfaced at warn level so operators notice them.
var alertTopics = map[string]struct{}{
	TopicPaymentWebhookError: {},
	TopicInventoryConflict:   {},
	TopicOrderReverted:       {},
}

// LogNotifier writes emitted events to the application log. Alert topics are
// logged at warn, everything else at info.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	ev := n.Logger.Info()
	if _, ok := alertTopics[event.Topic]; ok {
		ev = n.Logger.Warn()
	}
	ev.Str("topic", event.Topic).
		Str("aggregate_id", store.UUIDString(event.AggregateID)).
		RawJSON("payload", event.Payload).
		Msg("domain event")
	return nil
}
