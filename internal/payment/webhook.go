package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/obs"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

const (
	webhookEventCaptured = "payment.captured"
	webhookEventFailed   = "payment.failed"
)

// Webhook handles gateway callbacks. Signature failures are rejected;
// everything after a valid signature is acknowledged with 200 so the gateway
// stops retrying, with processing failures recorded as domain events for
// operators instead.
type Webhook struct {
	Svc       *Service
	Secret    string
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    *events.Bus
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID          string `json:"id"`
				OrderID     string `json:"order_id"`
				Amount      int64  `json:"amount"`
				Status      string `json:"status"`
				ErrorReason string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Handle processes one webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	signature := r.Header.Get("X-Razorpay-Signature")
	if !VerifyWebhookSignature(body, signature, h.Secret) {
		h.count("unknown", "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.count("unknown", "malformed")
		h.recordError(r.Context(), store.NewUUID(), "malformed webhook payload", body)
		common.JSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}
	event := strings.TrimSpace(env.Event)

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:" + common.Sha256Hex(body)
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err == nil && !fresh {
			h.count(event, "duplicate")
			common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
	}

	switch event {
	case webhookEventCaptured:
		h.handleCaptured(w, r, env, body)
	case webhookEventFailed:
		h.handleFailed(w, r, env, body)
	default:
		h.count(event, "ignored")
		common.JSON(w, http.StatusOK, map[string]any{"status": "ignored"})
	}
}

func (h Webhook) handleCaptured(w http.ResponseWriter, r *http.Request, env webhookEnvelope, body []byte) {
	ctx := r.Context()
	entity := env.Payload.Payment.Entity

	attempt, err := h.Svc.Q.GetAttemptByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.count(env.Event, "unknown_order")
			h.recordError(ctx, store.NewUUID(), fmt.Sprintf("no attempt for gateway order %s", entity.OrderID), body)
			common.JSON(w, http.StatusOK, map[string]any{"status": "unknown_order"})
			return
		}
		h.ackError(w, ctx, env.Event, store.NewUUID(), err, body)
		return
	}
	order, err := h.Svc.Q.GetOrderByID(ctx, attempt.OrderID)
	if err != nil {
		h.ackError(w, ctx, env.Event, attempt.OrderID, err, body)
		return
	}
	if order.IsPaid {
		h.count(env.Event, "already_paid")
		common.JSON(w, http.StatusOK, map[string]any{"status": "already_paid"})
		return
	}
	if entity.Amount != attempt.Amount {
		h.count(env.Event, "amount_mismatch")
		h.recordError(ctx, order.ID, fmt.Sprintf("webhook amount %d does not match attempt %d", entity.Amount, attempt.Amount), body)
		common.JSON(w, http.StatusOK, map[string]any{"status": "amount_mismatch"})
		return
	}

	settled, err := h.Svc.settle(ctx, order, attempt, entity.ID, body, false)
	if err != nil {
		h.ackError(w, ctx, env.Event, order.ID, err, body)
		return
	}
	if !settled {
		h.count(env.Event, "already_paid")
		common.JSON(w, http.StatusOK, map[string]any{"status": "already_paid"})
		return
	}
	h.count(env.Event, "captured")
	common.JSON(w, http.StatusOK, map[string]any{"status": "captured"})
}

func (h Webhook) handleFailed(w http.ResponseWriter, r *http.Request, env webhookEnvelope, body []byte) {
	ctx := r.Context()
	entity := env.Payload.Payment.Entity

	attempt, err := h.Svc.Q.GetAttemptByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.count(env.Event, "unknown_order")
			common.JSON(w, http.StatusOK, map[string]any{"status": "unknown_order"})
			return
		}
		h.ackError(w, ctx, env.Event, store.NewUUID(), err, body)
		return
	}
	order, err := h.Svc.Q.GetOrderByID(ctx, attempt.OrderID)
	if err != nil {
		h.ackError(w, ctx, env.Event, attempt.OrderID, err, body)
		return
	}
	// A failure webhook can trail a capture; the paid state wins.
	if order.IsPaid {
		h.count(env.Event, "already_paid")
		common.JSON(w, http.StatusOK, map[string]any{"status": "already_paid"})
		return
	}
	reason := strings.TrimSpace(entity.ErrorReason)
	if reason == "" {
		reason = "gateway reported failure"
	}
	// The gateway's word is final for this attempt; a retry means a new one.
	if CanTransition(attempt.Status, store.AttemptStatusFailed) {
		_ = h.Svc.Q.UpdateAttemptStatus(ctx, attempt.ID, store.AttemptStatusFailed,
			pgtypeText(reason))
	}
	_ = h.Svc.Q.SetOrderPaymentStatus(ctx, order.ID, store.PaymentStatusFailed)
	if h.Events != nil {
		_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, order.ID, map[string]any{
			"orderId": store.UUIDString(order.ID),
			"reason":  reason,
		})
	}
	h.count(env.Event, "failed")
	common.JSON(w, http.StatusOK, map[string]any{"status": "failed"})
}

// ackError acknowledges the delivery while preserving the failure for
// operators.
func (h Webhook) ackError(w http.ResponseWriter, ctx context.Context, event string, aggregateID pgtype.UUID, err error, body []byte) {
	h.count(event, "error")
	h.recordError(ctx, aggregateID, err.Error(), body)
	common.JSON(w, http.StatusOK, map[string]any{"status": "error"})
}

func (h Webhook) recordError(ctx context.Context, aggregateID pgtype.UUID, reason string, body []byte) {
	if h.Events == nil {
		return
	}
	_, _ = h.Events.Emit(ctx, events.TopicPaymentWebhookError, aggregateID, map[string]any{
		"reason": reason,
		"body":   string(body),
	})
}

func pgtypeText(v string) pgtype.Text {
	return pgtype.Text{String: v, Valid: true}
}

func (h Webhook) count(event, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(event, result).Inc()
	}
}
