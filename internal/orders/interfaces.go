package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error)
	FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	AttachGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID *string, paidAt time.Time) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, to Transition) (bool, error)
	FindUnattachedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// Gateway is the payment provider surface used by checkout.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error)
	FindOrderByReceipt(ctx context.Context, receipt string) (*razorpay.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Inventory lowers stock once an order is paid.
type Inventory interface {
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type paymentMetrics interface {
	IncOrderCreated(result string)
	IncVerification(outcome string)
	IncReconciled(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) IncOrderCreated(string) {}
func (noopMetrics) IncVerification(string) {}
func (noopMetrics) IncReconciled(string)   {}
