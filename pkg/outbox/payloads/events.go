package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderItemSnapshot is a line of the cart frozen at checkout.
type OrderItemSnapshot struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPricePaise int64     `json:"unit_price_paise"`
	LineTotalPaise int64     `json:"line_total_paise"`
}

// OrderCreatedEvent signals a checkout that is waiting for payment.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	UserID           uuid.UUID           `json:"user_id"`
	TotalAmountPaise int64               `json:"total_amount_paise"`
	Currency         enums.Currency      `json:"currency"`
	Items            []OrderItemSnapshot `json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
}

// OrderPaidEvent is emitted once the gateway payment is verified.
type OrderPaidEvent struct {
	OrderID          uuid.UUID      `json:"order_id"`
	UserID           uuid.UUID      `json:"user_id"`
	GatewayOrderID   string         `json:"gateway_order_id"`
	GatewayPaymentID string         `json:"gateway_payment_id,omitempty"`
	TotalAmountPaise int64          `json:"total_amount_paise"`
	Currency         enums.Currency `json:"currency"`
	PaidAt           time.Time      `json:"paid_at"`
	// Source is "verify" for client callbacks and "reconcile" for the cron job.
	Source string `json:"source"`
}

// OrderExpiredEvent reports an order whose payment window closed unpaid.
type OrderExpiredEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	UserID         uuid.UUID `json:"user_id"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	GatewayStatus  string    `json:"gateway_status,omitempty"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// OrderCancelledEvent reports an order that never reached the gateway.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// UserSignedUpEvent is emitted when an account is registered.
type UserSignedUpEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
