package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// CheckoutResult is handed to the client to open the gateway checkout.
type CheckoutResult struct {
	OrderID        uuid.UUID      `json:"orderId"`
	GatewayOrderID string         `json:"gatewayOrderId"`
	Amount         int64          `json:"amount"`
	AmountDisplay  string         `json:"amountDisplay"`
	Currency       enums.Currency `json:"currency"`
	KeyID          string         `json:"keyId"`
	// Replayed is true when the idempotency key matched an existing order.
	Replayed bool `json:"replayed"`
}

type OrderItemDTO struct {
	ProductID      uuid.UUID `json:"productId"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      string    `json:"unitPrice"`
	UnitPricePaise int64     `json:"unitPricePaise"`
	LineTotal      string    `json:"lineTotal"`
	LineTotalPaise int64     `json:"lineTotalPaise"`
}

type OrderDTO struct {
	ID               uuid.UUID              `json:"id"`
	CartID           string                 `json:"cartId"`
	CustomerEmail    string                 `json:"email"`
	CustomerName     string                 `json:"name"`
	CustomerPhone    string                 `json:"phone"`
	CheckoutAddress  models.CheckoutAddress `json:"checkoutAddress"`
	TotalAmount      string                 `json:"totalAmount"`
	TotalAmountPaise int64                  `json:"totalAmountPaise"`
	Currency         enums.Currency         `json:"currency"`
	GatewayOrderID   *string                `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string                `json:"paymentId,omitempty"`
	OrderStatus      enums.OrderStatus      `json:"orderStatus"`
	PaymentStatus    enums.PaymentStatus    `json:"paymentStatus"`
	Items            []OrderItemDTO         `json:"items"`
	PaidAt           *time.Time             `json:"paidAt,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

type OrderListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ReconcileSummary counts what one reconciliation pass changed.
type ReconcileSummary struct {
	Attached  int
	Cancelled int
	Paid      int
	Expired   int
	Skipped   int
}

func NewOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      money.Format(item.UnitPricePaise),
			UnitPricePaise: item.UnitPricePaise,
			LineTotal:      money.Format(item.LineTotalPaise),
			LineTotalPaise: item.LineTotalPaise,
		})
	}
	return &OrderDTO{
		ID:               order.ID,
		CartID:           order.CartID,
		CustomerEmail:    order.CustomerEmail,
		CustomerName:     order.CustomerName,
		CustomerPhone:    order.CustomerPhone,
		CheckoutAddress:  order.CheckoutAddress,
		TotalAmount:      money.Format(order.TotalAmountPaise),
		TotalAmountPaise: order.TotalAmountPaise,
		Currency:         order.Currency,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: order.GatewayPaymentID,
		OrderStatus:      order.OrderStatus,
		PaymentStatus:    order.PaymentStatus,
		Items:            items,
		PaidAt:           order.PaidAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}
