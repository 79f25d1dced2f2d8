package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CheckoutAddress is the shipping address captured at checkout.
type CheckoutAddress struct {
	Address  string `json:"address"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

// Order is a checkout attempt bound to a gateway payment intent.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_orders_user_idempotency_key"`
	CartID           string              `gorm:"column:cart_id;not null"`
	CustomerEmail    string              `gorm:"column:customer_email;not null"`
	CustomerName     string              `gorm:"column:customer_name;not null"`
	CustomerPhone    string              `gorm:"column:customer_phone;not null"`
	CheckoutAddress  CheckoutAddress     `gorm:"column:checkout_address;type:jsonb;serializer:json;not null"`
	TotalAmountPaise int64               `gorm:"column:total_amount_paise;not null"`
	ClientTotalPaise *int64              `gorm:"column:client_total_paise"`
	Currency         enums.Currency      `gorm:"column:currency;not null"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	OrderStatus      enums.OrderStatus   `gorm:"column:order_status;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null"`
	IdempotencyKey   *string             `gorm:"column:idempotency_key;uniqueIndex:ux_orders_user_idempotency_key"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
