package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Transition describes a conditional status change. The update only applies
// while the order is still in one of the From statuses.
type Transition struct {
	From          []enums.OrderStatus
	OrderStatus   enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).Where("id = ? AND user_id = ?", id, userID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIdempotencyKey returns nil, nil when the key has not been used.
func (r *repository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByGatewayOrderIDForUpdate locks the row on postgres; callers must be in a transaction.
func (r *repository) FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	qb := r.db.WithContext(ctx)
	if qb.Dialector.Name() == "postgres" {
		qb = qb.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := qb.Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", order.ID).Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	keyset, err := pagination.Keyset(params)
	if err != nil {
		return nil, "", err
	}

	var rows []models.Order
	if err := r.withItems(ctx).Where("user_id = ?", userID).Scopes(keyset).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, nextCursor := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, nextCursor, nil
}

// AttachGatewayOrder records the gateway intent id once. It reports false when
// the order already carries one.
func (r *repository) AttachGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND gateway_order_id IS NULL", id).
		Updates(map[string]any{
			"gateway_order_id": gatewayOrderID,
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// MarkPaid moves a payable order to Completed/Paid. It reports false when
// the order was already paid or is no longer payable.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentID *string, paidAt time.Time) (bool, error) {
	updates := map[string]any{
		"order_status":   enums.OrderStatusCompleted,
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        paidAt,
		"updated_at":     time.Now().UTC(),
	}
	if paymentID != nil {
		updates["gateway_payment_id"] = *paymentID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND order_status IN ?", id, enums.PaymentStatusPaid,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusExpired}).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, to Transition) (bool, error) {
	qb := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", id, enums.PaymentStatusPaid)
	if len(to.From) > 0 {
		qb = qb.Where("order_status IN ?", to.From)
	}
	res := qb.Updates(map[string]any{
		"order_status":   to.OrderStatus,
		"payment_status": to.PaymentStatus,
		"updated_at":     time.Now().UTC(),
	})
	return res.RowsAffected > 0, res.Error
}

// FindUnattachedBefore returns pending orders that never received a gateway id.
func (r *repository) FindUnattachedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("gateway_order_id IS NULL AND order_status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindPendingBefore returns unpaid orders with a gateway intent created before cutoff.
func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("gateway_order_id IS NOT NULL AND order_status = ? AND payment_status = ? AND created_at < ?",
			enums.OrderStatusPending, enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("id ASC")
	})
}
