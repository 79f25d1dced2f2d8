package enums

// OrderStatus tracks the fulfilment side of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusExpired   OrderStatus = "Expired"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderStatuses = newSet("order status",
	OrderStatusPending,
	OrderStatusCompleted,
	OrderStatusExpired,
	OrderStatusCancelled,
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// Payable reports whether a verified payment may still complete the order.
// Expired orders stay payable because the gateway may capture late.
func (s OrderStatus) Payable() bool {
	return s == OrderStatusPending || s == OrderStatusExpired
}

func ParseOrderStatus(value string) (OrderStatus, error) { return orderStatuses.parse(value) }
