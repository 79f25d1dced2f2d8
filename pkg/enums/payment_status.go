package enums

// PaymentStatus tracks the gateway payment attached to an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

var paymentStatuses = newSet("payment status", PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

// Settled reports whether the gateway outcome is final.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusPaid || p == PaymentStatusFailed
}

func ParsePaymentStatus(value string) (PaymentStatus, error) { return paymentStatuses.parse(value) }
