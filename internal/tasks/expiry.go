package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// TypeExpireAttempts sweeps payment attempts that were opened but never
// verified or settled by the gateway.
const TypeExpireAttempts = "payment:expire_attempts"

// NewExpireAttemptsTask builds the periodic sweep task.
func NewExpireAttemptsTask() *asynq.Task {
	return asynq.NewTask(TypeExpireAttempts, nil)
}

type Querier interface {
	ExpireStaleAttempts(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiryHandler fails stale CREATED attempts so orders become retryable again.
type ExpiryHandler struct {
	Q      Querier
	Events *events.Bus
	TTL    time.Duration
	Logger zerolog.Logger
	Now    func() time.Time
}

func (h *ExpiryHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if h == nil || h.Q == nil {
		return errors.New("expiry handler not configured")
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ttl := h.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cutoff := now().Add(-ttl)
	expired, err := h.Q.ExpireStaleAttempts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale attempts: %w", err)
	}
	if expired == 0 {
		return nil
	}
	h.Logger.Info().Int64("expired", expired).Time("cutoff", cutoff).Msg("expired stale payment attempts")
	if h.Events != nil {
		if _, err := h.Events.Emit(ctx, events.TopicPaymentExpired, store.NewUUID(), map[string]any{
			"expired": expired,
			"cutoff":  cutoff.UTC().Format(time.RFC3339),
		}); err != nil {
			h.Logger.Error().Err(err).Msg("emit payment expired event")
		}
	}
	return nil
}
