package orders

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

const reasonNoGatewayIntent = "gateway intent never created"

// ReconcilePending settles orders the checkout flow left open: orders whose
// gateway intent was never attached, and unpaid orders past the expiry window.
func (s *service) ReconcilePending(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}
	var errs error

	unattached, err := s.repo.FindUnattachedBefore(ctx, s.cutoff(s.cfg.AttachGracePeriod), s.cfg.ReconcileBatch)
	if err != nil {
		return summary, fmt.Errorf("load unattached orders: %w", err)
	}
	for _, order := range unattached {
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		intent, err := s.gateway.FindOrderByReceipt(orderCtx, order.ID.String())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("lookup receipt %s: %w", order.ID, err))
			continue
		}
		if intent != nil {
			attached, err := s.repo.AttachGatewayOrder(orderCtx, order.ID, intent.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("attach %s: %w", order.ID, err))
				continue
			}
			if attached {
				summary.Attached++
				s.metrics.IncReconciled("attached")
				s.logg.Info(s.logg.WithField(orderCtx, "gateway_order_id", intent.ID), "orphaned gateway intent attached")
			} else {
				summary.Skipped++
			}
			continue
		}
		cancelled, err := s.cancelOrder(orderCtx, order, reasonNoGatewayIntent)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", order.ID, err))
			continue
		}
		if cancelled {
			summary.Cancelled++
			s.metrics.IncReconciled("cancelled")
			s.logg.Info(orderCtx, "order without gateway intent cancelled")
		} else {
			summary.Skipped++
		}
	}

	pending, err := s.repo.FindPendingBefore(ctx, s.cutoff(s.cfg.ExpireAfter), s.cfg.ReconcileBatch)
	if err != nil {
		return summary, multierr.Append(errs, fmt.Errorf("load pending orders: %w", err))
	}
	for _, order := range pending {
		if order.PaymentStatus.Settled() {
			summary.Skipped++
			continue
		}
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
		intent, err := s.gateway.FetchOrder(orderCtx, *order.GatewayOrderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fetch gateway order %s: %w", *order.GatewayOrderID, err))
			continue
		}
		if intent.Paid() {
			paid, err := s.markPaidFromGateway(orderCtx, order)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("complete %s: %w", order.ID, err))
				continue
			}
			if paid {
				summary.Paid++
				s.metrics.IncReconciled("paid")
				s.logg.Info(orderCtx, "gateway reported order paid")
			} else {
				summary.Skipped++
			}
			continue
		}
		expired, err := s.expireOrder(orderCtx, order, intent.Status)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", order.ID, err))
			continue
		}
		if expired {
			summary.Expired++
			s.metrics.IncReconciled("expired")
			s.logg.Info(s.logg.WithField(orderCtx, "gateway_status", intent.Status), "unpaid order expired")
		} else {
			summary.Skipped++
		}
	}

	return summary, errs
}
