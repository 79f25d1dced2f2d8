package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

const (
	defaultReconcileBatch = 100
	idempotencyConstraint = "ux_orders_user_idempotency_key"
)

// Service defines checkout and payment operations for a signed-in user.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CheckoutResult, error)
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*OrderDTO, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderListResult, error)
	ReconcilePending(ctx context.Context) (*ReconcileSummary, error)
}

// CreateOrderInput carries the checkout form. TotalAmount is the client's
// view of the cart total and is only used for diagnostics.
type CreateOrderInput struct {
	UserID         uuid.UUID
	CartID         string
	CustomerEmail  string
	CustomerName   string
	CustomerPhone  string
	Address        models.CheckoutAddress
	TotalAmount    *decimal.Decimal
	IdempotencyKey string
}

// VerifyPaymentInput is the gateway checkout callback relayed by the client.
type VerifyPaymentInput struct {
	UserID         uuid.UUID
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Gateway    Gateway
	Carts      cart.CartRepository
	Inventory  Inventory
	Logger     *logger.Logger
	Metrics    paymentMetrics
	Currency   enums.Currency
	Config     config.OrdersConfig
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	gateway   Gateway
	carts     cart.CartRepository
	inventory Inventory
	logg      *logger.Logger
	metrics   paymentMetrics
	currency  enums.Currency
	cfg       config.OrdersConfig
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyINR
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	var metrics paymentMetrics = noopMetrics{}
	if params.Metrics != nil {
		metrics = params.Metrics
	}
	cfg := params.Config
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = defaultReconcileBatch
	}
	return &service{
		repo:      params.Repository,
		tx:        params.Tx,
		outbox:    params.Outbox,
		gateway:   params.Gateway,
		carts:     params.Carts,
		inventory: params.Inventory,
		logg:      params.Logger,
		metrics:   metrics,
		currency:  currency,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CheckoutResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateCheckout(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, input.UserID, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order by idempotency key")
		}
		if existing != nil {
			return s.replay(ctx, existing)
		}
	}

	userCart, err := s.carts.FindByUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if userCart.ID.String() != strings.TrimSpace(input.CartID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}

	items, total, err := snapshotCart(userCart)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:           input.UserID,
		CartID:           userCart.ID.String(),
		CustomerEmail:    strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		CustomerName:     strings.TrimSpace(input.CustomerName),
		CustomerPhone:    strings.TrimSpace(input.CustomerPhone),
		CheckoutAddress:  input.Address,
		TotalAmountPaise: total,
		Currency:         s.currency,
		OrderStatus:      enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		Items:            items,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}
	if input.TotalAmount != nil {
		hint, err := money.ToPaise(*input.TotalAmount)
		if err == nil {
			order.ClientTotalPaise = &hint
			if hint != total {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"client_total_paise": hint,
					"server_total_paise": total,
				})
				s.logg.Warn(logCtx, "client order total differs from cart total")
			}
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.UserRoleCustomer)},
			Data:          orderCreatedPayload(order),
		})
	})
	if err != nil {
		if key != "" && isIdempotencyViolation(err) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, input.UserID, key)
			if findErr == nil && existing != nil {
				return s.replay(ctx, existing)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	gatewayID, err := s.openIntent(ctx, order, false)
	if err != nil {
		s.metrics.IncOrderCreated("detached")
		return nil, err
	}
	s.metrics.IncOrderCreated("attached")
	s.logg.Info(s.logg.WithField(ctx, "gateway_order_id", gatewayID), "order created")
	return s.checkoutResult(order, gatewayID, false), nil
}

// replay answers a repeated create with the stored order. An order whose
// gateway call failed earlier gets its intent opened now.
func (s *service) replay(ctx context.Context, order *models.Order) (*CheckoutResult, error) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.GatewayOrderID != nil {
		return s.checkoutResult(order, *order.GatewayOrderID, true), nil
	}
	if order.OrderStatus != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be paid").
			WithDetails(map[string]any{"orderStatus": order.OrderStatus})
	}
	gatewayID, err := s.openIntent(ctx, order, true)
	if err != nil {
		return nil, err
	}
	return s.checkoutResult(order, gatewayID, true), nil
}

// openIntent creates the gateway order and attaches it. With lookup set an
// intent already created under the receipt is reused.
func (s *service) openIntent(ctx context.Context, order *models.Order, lookup bool) (string, error) {
	receipt := order.ID.String()
	var intent *razorpay.Order
	if lookup {
		found, err := s.gateway.FindOrderByReceipt(ctx, receipt)
		if err != nil {
			s.logg.Error(ctx, "gateway receipt lookup failed", err)
			return "", err
		}
		intent = found
	}
	if intent == nil {
		created, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
			Amount:         order.TotalAmountPaise,
			Currency:       string(order.Currency),
			Receipt:        receipt,
			PaymentCapture: 1,
			Notes:          map[string]string{"user_id": order.UserID.String()},
		})
		if err != nil {
			s.logg.Error(ctx, "gateway order creation failed", err)
			return "", err
		}
		intent = created
	}

	attached, err := s.repo.AttachGatewayOrder(ctx, order.ID, intent.ID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "gateway_order_id", intent.ID), "attach gateway order failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach gateway order")
	}
	if !attached {
		current, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		if current.GatewayOrderID == nil {
			return "", pkgerrors.New(pkgerrors.CodeInternal, "gateway order not attached")
		}
		return *current.GatewayOrderID, nil
	}
	order.GatewayOrderID = &intent.ID
	return intent.ID, nil
}

func (s *service) checkoutResult(order *models.Order, gatewayID string, replayed bool) *CheckoutResult {
	return &CheckoutResult{
		OrderID:        order.ID,
		GatewayOrderID: gatewayID,
		Amount:         order.TotalAmountPaise,
		AmountDisplay:  money.Format(order.TotalAmountPaise),
		Currency:       order.Currency,
		KeyID:          s.gateway.KeyID(),
		Replayed:       replayed,
	}
}

func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return NewOrderDTO(order), nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderListResult, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	result := &OrderListResult{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		result.Orders = append(result.Orders, *NewOrderDTO(&rows[i]))
	}
	return result, nil
}

func validateCheckout(input CreateOrderInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.CartID) == "" {
		details["cartId"] = "is required"
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		details["email"] = "is required"
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		details["name"] = "is required"
	}
	if strings.TrimSpace(input.CustomerPhone) == "" {
		details["phone"] = "is required"
	}
	if strings.TrimSpace(input.Address.Address) == "" {
		details["address.address"] = "is required"
	}
	if strings.TrimSpace(input.Address.City) == "" {
		details["address.city"] = "is required"
	}
	if strings.TrimSpace(input.Address.State) == "" {
		details["address.state"] = "is required"
	}
	if strings.TrimSpace(input.Address.Pincode) == "" {
		details["address.pincode"] = "is required"
	}
	if input.TotalAmount != nil {
		if _, err := money.ToPaise(*input.TotalAmount); err != nil {
			details["totalAmount"] = "must have at most two decimal places"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation error").WithDetails(details)
	}
	return nil
}

// snapshotCart prices every line at the current offer price and checks stock.
func snapshotCart(c *models.Cart) ([]models.OrderItem, int64, error) {
	if len(c.Items) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	items := make([]models.OrderItem, 0, len(c.Items))
	shortages := map[string]any{}
	var total int64
	for _, line := range c.Items {
		if line.Product == nil {
			shortages[line.ProductID.String()] = "product no longer available"
			continue
		}
		if line.Product.Stock < line.Quantity {
			shortages[line.ProductID.String()] = fmt.Sprintf("only %d in stock", line.Product.Stock)
			continue
		}
		lineTotal := line.Product.OfferPricePaise * int64(line.Quantity)
		total += lineTotal
		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			Name:           line.Product.Name,
			UnitPricePaise: line.Product.OfferPricePaise,
			Quantity:       line.Quantity,
			LineTotalPaise: lineTotal,
		})
	}
	if len(shortages) > 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").WithDetails(shortages)
	}
	return items, total, nil
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	items := make([]payloads.OrderItemSnapshot, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderItemSnapshot{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPricePaise: item.UnitPricePaise,
			LineTotalPaise: item.LineTotalPaise,
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:          order.ID,
		UserID:           order.UserID,
		TotalAmountPaise: order.TotalAmountPaise,
		Currency:         order.Currency,
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
}

func isIdempotencyViolation(err error) bool {
	return dbpkg.IsUniqueViolation(err, idempotencyConstraint) ||
		dbpkg.IsUniqueViolation(err, "orders.idempotency_key")
}
