package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

const testWebhookSecret = "whsec_test"

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookFixture(t *testing.T) (*stubQuerier, Webhook, string) {
	t.Helper()
	q := &stubQuerier{order: pendingOrder(), paidRows: 1}
	gw := &stubGateway{}
	svc := newService(q, gw)

	intent, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)

	return q, Webhook{Svc: svc, Secret: testWebhookSecret}, intent.GatewayOrderID
}

func capturedBody(gatewayOrderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_wh","order_id":"%s","amount":%d,"status":"captured"}}}}`,
		gatewayOrderID, amount))
}

func post(h Webhook, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	q, h, gwOrderID := webhookFixture(t)
	body := capturedBody(gwOrderID, 106200)

	rec := post(h, body, "bad-signature")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, q.markPaidCalls)

	rec = post(h, body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookCaptures(t *testing.T) {
	q, h, gwOrderID := webhookFixture(t)
	body := capturedBody(gwOrderID, 106200)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "captured")
	require.Equal(t, 1, q.markPaidCalls)
	require.Equal(t, []string{"pay_wh"}, q.captured)
	// The delivery that settled the attempt is kept as its gateway response.
	require.Equal(t, body, q.attempts[0].GatewayResponse)
}

func TestWebhookAfterVerifyIsNoop(t *testing.T) {
	q, h, gwOrderID := webhookFixture(t)
	q.order.IsPaid = true
	body := capturedBody(gwOrderID, 106200)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "already_paid")
	require.Zero(t, q.markPaidCalls)
}

func TestWebhookAmountMismatchAckedButNotSettled(t *testing.T) {
	q, h, gwOrderID := webhookFixture(t)
	body := capturedBody(gwOrderID, 999)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "amount_mismatch")
	require.Zero(t, q.markPaidCalls)
}

func TestWebhookUnknownOrderAcked(t *testing.T) {
	q, h, _ := webhookFixture(t)
	body := capturedBody("order_unknown", 106200)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, q.markPaidCalls)
}

func TestWebhookReplayGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, h, gwOrderID := webhookFixture(t)
	h.Replay = client
	h.ReplayTTL = time.Hour
	body := capturedBody(gwOrderID, 106200)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, q.markPaidCalls)

	rec = post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate")
	require.Equal(t, 1, q.markPaidCalls)
}

func TestWebhookFailureMarksOrder(t *testing.T) {
	q, h, gwOrderID := webhookFixture(t)
	body := []byte(fmt.Sprintf(
		`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_wh","order_id":"%s","amount":106200,"status":"failed","error_description":"card declined"}}}}`,
		gwOrderID))

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, q.statusUpdates, store.PaymentStatusFailed)
	// Gateway-reported failure is terminal for the attempt.
	require.Equal(t, store.AttemptStatusFailed, q.attempts[0].Status)
	require.Equal(t, "card declined", q.attempts[0].ErrorReason.String)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	q, h, _ := webhookFixture(t)
	body := []byte(`{"event":"refund.processed","payload":{"payment":{"entity":{}}}}`)

	rec := post(h, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
	require.Zero(t, q.markPaidCalls)
}
