package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type pendingReconciler interface {
	ReconcilePending(ctx context.Context) (*orders.ReconcileSummary, error)
}

// PaymentReconcileJobParams configure the orphaned payment intent sweep.
type PaymentReconcileJobParams struct {
	Logger *logger.Logger
	Orders pendingReconciler
}

// NewPaymentReconcileJob builds the job that settles orders left pending
// after checkout: intents that were never attached and intents the customer
// never verified.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &paymentReconcileJob{logg: params.Logger, orders: params.Orders}, nil
}

type paymentReconcileJob struct {
	logg   *logger.Logger
	orders pendingReconciler
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	summary, err := j.orders.ReconcilePending(ctx)
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"attached":  summary.Attached,
			"cancelled": summary.Cancelled,
			"paid":      summary.Paid,
			"expired":   summary.Expired,
			"skipped":   summary.Skipped,
		})
		j.logg.Info(logCtx, "payment reconcile summary")
	}
	if err != nil {
		return fmt.Errorf("payment reconcile: %w", err)
	}
	return nil
}
