package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentIntentTotal counts gateway order creation outcomes.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts client-side payment verification outcomes.
	PaymentVerifyTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound gateway webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentCapturedTotal counts first-time payment captures.
	PaymentCapturedTotal prometheus.Counter
	// InventoryConflictTotal counts orders reverted after losing a stock race.
	// Every increment is a paid-but-unfulfilled order needing manual follow-up.
	InventoryConflictTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of gateway order creation outcomes.",
		}, []string{"result"})
		PaymentVerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verify_total",
			Help:      "Count of payment verification outcomes.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed gateway webhooks by event and outcome.",
		}, []string{"event", "result"})
		PaymentCapturedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_captured_total",
			Help:      "Number of payments captured for the first time.",
		})
		InventoryConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_conflict_total",
			Help:      "Number of paid orders reverted after an insufficient-stock conflict.",
		})

		mustRegisterCollector(reg, PaymentIntentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentIntentTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentVerifyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentVerifyTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentCapturedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PaymentCapturedTotal = v
			}
		})
		mustRegisterCollector(reg, InventoryConflictTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InventoryConflictTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
