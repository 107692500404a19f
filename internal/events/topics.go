package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated        = "order.created"
	TopicOrderPaid           = "order.paid"
	TopicOrderReverted       = "order.reverted"
	TopicPaymentFailed       = "payment.failed"
	TopicPaymentExpired      = "payment.expired"
	TopicPaymentWebhookError = "payment.webhook_error"
	TopicInventoryConflict   = "inventory.conflict"
	TopicCouponRedeemed      = "coupon.redeemed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderReverted,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicPaymentWebhookError,
		TopicInventoryConflict,
		TopicCouponRedeemed,
	}
}
