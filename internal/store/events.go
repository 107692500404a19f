package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertDomainEvent = `
INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4)
`

type InsertDomainEventParams struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) error {
	_, err := q.db.Exec(ctx, insertDomainEvent, arg.ID, arg.Topic, arg.AggregateID, arg.Payload)
	return err
}

const listEventsByAggregate = `
SELECT id, topic, aggregate_id, payload, occurred_at
FROM domain_events WHERE aggregate_id = $1 ORDER BY occurred_at
`

func (q *Queries) ListEventsByAggregate(ctx context.Context, aggregateID pgtype.UUID) ([]DomainEvent, error) {
	rows, err := q.db.Query(ctx, listEventsByAggregate, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DomainEvent
	for rows.Next() {
		var e DomainEvent
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
