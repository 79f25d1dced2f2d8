package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	paymentSourceVerify    = "verify"
	paymentSourceReconcile = "reconcile"
)

func (s *service) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*OrderDTO, error) {
	input.GatewayOrderID = strings.TrimSpace(input.GatewayOrderID)
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	input.Signature = strings.TrimSpace(input.Signature)

	details := map[string]any{}
	if input.GatewayOrderID == "" {
		details["orderId"] = "is required"
	}
	if input.PaymentID == "" {
		details["paymentId"] = "is required"
	}
	if input.Signature == "" {
		details["signature"] = "is required"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation error").WithDetails(details)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":            input.UserID.String(),
		"gateway_order_id":   input.GatewayOrderID,
		"gateway_payment_id": input.PaymentID,
	})

	if !s.gateway.VerifyPaymentSignature(input.GatewayOrderID, input.PaymentID, input.Signature) {
		s.metrics.IncVerification("mismatch")
		s.logg.Warn(ctx, "payment signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeVerification, "payment verification failed")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).FindByGatewayOrderIDForUpdate(ctx, input.GatewayOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if found.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order = found
		if found.PaymentStatus == enums.PaymentStatusPaid {
			return nil
		}
		if !found.OrderStatus.Payable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be paid").
				WithDetails(map[string]any{"orderStatus": found.OrderStatus})
		}
		paymentID := input.PaymentID
		_, err = s.completePayment(ctx, tx, found, &paymentID, paymentSourceVerify)
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncVerification(strings.ToLower(string(typed.Code())))
		}
		return nil, err
	}

	s.metrics.IncVerification("verified")
	reloaded, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment verified")
	return NewOrderDTO(reloaded), nil
}

// completePayment applies the paid transition inside tx: status, stock,
// cart and the order_paid event. It reports false when another caller
// already completed the order.
func (s *service) completePayment(ctx context.Context, tx *gorm.DB, order *models.Order, paymentID *string, source string) (bool, error) {
	paidAt := s.now().UTC()
	updated, err := s.repo.WithTx(tx).MarkPaid(ctx, order.ID, paymentID, paidAt)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	if !updated {
		return false, nil
	}

	for _, item := range order.Items {
		if err := s.inventory.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
	}

	userCart, err := s.carts.WithTx(tx).FindByUser(ctx, order.UserID)
	switch {
	case err == nil:
		bought := make([]cart.OrderedLine, 0, len(order.Items))
		for _, item := range order.Items {
			bought = append(bought, cart.OrderedLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		if err := s.carts.WithTx(tx).RemoveOrdered(ctx, userCart.ID, bought); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove purchased cart lines")
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	gatewayID := ""
	if order.GatewayOrderID != nil {
		gatewayID = *order.GatewayOrderID
	}
	paymentRef := ""
	if paymentID != nil {
		paymentRef = *paymentID
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.UserRoleCustomer)},
		OccurredAt:    paidAt,
		Data: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			UserID:           order.UserID,
			GatewayOrderID:   gatewayID,
			GatewayPaymentID: paymentRef,
			TotalAmountPaise: order.TotalAmountPaise,
			Currency:         order.Currency,
			PaidAt:           paidAt,
			Source:           source,
		},
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
	}
	return true, nil
}

func (s *service) expireOrder(ctx context.Context, order models.Order, gatewayStatus string) (bool, error) {
	var expired bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, order.ID, Transition{
			From:          []enums.OrderStatus{enums.OrderStatusPending},
			OrderStatus:   enums.OrderStatusExpired,
			PaymentStatus: enums.PaymentStatusFailed,
		})
		if err != nil || !ok {
			return err
		}
		expired = true
		gatewayID := ""
		if order.GatewayOrderID != nil {
			gatewayID = *order.GatewayOrderID
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderExpiredEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				GatewayOrderID: gatewayID,
				GatewayStatus:  gatewayStatus,
				ExpiredAt:      s.now().UTC(),
			},
		})
	})
	return expired, err
}

func (s *service) cancelOrder(ctx context.Context, order models.Order, reason string) (bool, error) {
	var cancelled bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, order.ID, Transition{
			From:          []enums.OrderStatus{enums.OrderStatusPending},
			OrderStatus:   enums.OrderStatusCancelled,
			PaymentStatus: enums.PaymentStatusFailed,
		})
		if err != nil || !ok {
			return err
		}
		cancelled = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				Reason:      reason,
				CancelledAt: s.now().UTC(),
			},
		})
	})
	return cancelled, err
}

func (s *service) markPaidFromGateway(ctx context.Context, order models.Order) (bool, error) {
	var paid bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		full, err := s.repo.WithTx(tx).FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		paid, err = s.completePayment(ctx, tx, full, nil, paymentSourceReconcile)
		return err
	})
	return paid, err
}

func (s *service) cutoff(window time.Duration) time.Time {
	return s.now().UTC().Add(-window)
}
