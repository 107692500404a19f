package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

type stubStore struct {
	lastParams store.InsertDomainEventParams
	history    []store.DomainEvent
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg store.InsertDomainEventParams) error {
	s.lastParams = arg
	s.history = append(s.history, store.DomainEvent{
		ID:          arg.ID,
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
	})
	return nil
}

func (s *stubStore) ListEventsByAggregate(_ context.Context, aggregateID pgtype.UUID) ([]store.DomainEvent, error) {
	var out []store.DomainEvent
	for _, ev := range s.history {
		if ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type captureNotifier struct {
	events []store.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func TestEmitPersistsEvent(t *testing.T) {
	st := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     st,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"orderId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicOrderCreated, toUUID(aggregate), payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, st.lastParams.Topic)
	require.JSONEq(t, `{"orderId":"123"}`, string(st.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestHistoryReturnsAggregateEvents(t *testing.T) {
	st := &stubStore{}
	bus := events.Bus{Store: st}
	aggregate := toUUID(uuid.New())

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, nil)
	require.NoError(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, aggregate, nil)
	require.NoError(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, toUUID(uuid.New()), nil)
	require.NoError(t, err)

	history, err := bus.History(context.Background(), aggregate)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, events.TopicOrderCreated, history[0].Topic)
	require.Equal(t, events.TopicOrderPaid, history[1].Topic)
}

func TestEmitRejectsMissingTopic(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), "  ", toUUID(uuid.New()), nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidPayload(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, toUUID(uuid.New()), []byte("not json"))
	require.Error(t, err)
}

func TestEmitEmptyPayloadDefaultsToObject(t *testing.T) {
	st := &stubStore{}
	bus := events.Bus{Store: st}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, toUUID(uuid.New()), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(st.lastParams.Payload))
}
