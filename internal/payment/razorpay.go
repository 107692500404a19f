package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
)

const razorpayDefaultBaseURL = "https://api.razorpay.com/v1"

// Razorpay implements the Gateway interface against the Razorpay Orders and
// Payments APIs using key/secret basic auth.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Client    *http.Client
	Timeout   time.Duration
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Captured bool   `json:"captured"`
	Method   string `json:"method"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a gateway order for the given amount.
func (g Razorpay) CreateOrder(ctx context.Context, in CreateOrderInput) (GatewayOrder, error) {
	payload := map[string]any{
		"amount":          in.Amount,
		"currency":        in.Currency,
		"receipt":         in.Receipt,
		"payment_capture": 1,
	}
	if len(in.Notes) > 0 {
		payload["notes"] = in.Notes
	}
	raw, err := g.do(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return GatewayOrder{}, err
	}
	var ord razorpayOrder
	if err := json.Unmarshal(raw, &ord); err != nil {
		return GatewayOrder{}, common.GatewayError("malformed gateway order response", err)
	}
	if ord.ID == "" {
		return GatewayOrder{}, common.GatewayError("gateway order response missing id", nil)
	}
	return GatewayOrder{
		ID:       ord.ID,
		Amount:   ord.Amount,
		Currency: ord.Currency,
		Status:   ord.Status,
		Raw:      raw,
	}, nil
}

// FetchPayment reads the authoritative payment record from the gateway.
func (g Razorpay) FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return GatewayPayment{}, common.GatewayError("payment id is required", nil)
	}
	raw, err := g.do(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return GatewayPayment{}, err
	}
	var p razorpayPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return GatewayPayment{}, common.GatewayError("malformed gateway payment response", err)
	}
	return GatewayPayment{
		ID:       p.ID,
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   p.Status,
		Captured: p.Captured,
		Method:   p.Method,
		Raw:      raw,
	}, nil
}

func (g Razorpay) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.KeyID, g.KeySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, common.GatewayError("gateway request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.GatewayError("gateway response read failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr razorpayError
		if json.Unmarshal(raw, &gwErr) == nil && gwErr.Error.Description != "" {
			return nil, common.GatewayError(gwErr.Error.Description, fmt.Errorf("gateway status %d code %s", resp.StatusCode, gwErr.Error.Code))
		}
		return nil, common.GatewayError("gateway rejected request", fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	return raw, nil
}

func (g Razorpay) baseURL() string {
	base := strings.TrimSpace(g.BaseURL)
	if base == "" {
		base = razorpayDefaultBaseURL
	}
	return strings.TrimRight(base, "/")
}
