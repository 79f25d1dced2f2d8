package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrdersService struct {
	createInput internalorders.CreateOrderInput
	verifyInput internalorders.VerifyPaymentInput
	listParams  pagination.Params
	lookedUp    uuid.UUID
	checkout    *internalorders.CheckoutResult
	order       *internalorders.OrderDTO
	err         error
}

func (s *stubOrdersService) CreateOrder(_ context.Context, input internalorders.CreateOrderInput) (*internalorders.CheckoutResult, error) {
	s.createInput = input
	return s.checkout, s.err
}

func (s *stubOrdersService) VerifyPayment(_ context.Context, input internalorders.VerifyPaymentInput) (*internalorders.OrderDTO, error) {
	s.verifyInput = input
	return s.order, s.err
}

func (s *stubOrdersService) GetOrder(_ context.Context, _ uuid.UUID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	s.lookedUp = orderID
	return s.order, s.err
}

func (s *stubOrdersService) ListOrders(_ context.Context, _ uuid.UUID, params pagination.Params) (*internalorders.OrderListResult, error) {
	s.listParams = params
	return &internalorders.OrderListResult{Orders: []internalorders.OrderDTO{}}, s.err
}

func (s *stubOrdersService) ReconcilePending(context.Context) (*internalorders.ReconcileSummary, error) {
	return &internalorders.ReconcileSummary{}, nil
}

func authed(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), middleware.Identity{UserID: userID, Role: enums.UserRoleCustomer}))
}

const checkoutBody = `{
	"cartId": "c1",
	"customerEmail": "asha@example.com",
	"customerName": "Asha",
	"customerPhone": "9999999999",
	"checkoutAddress": {"address": "12 MG Road", "city": "Pune", "state": "MH", "pincode": "411001"},
	"totalAmount": "1499.00"
}`

func TestCreateOrderPassesIdempotencyKey(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{checkout: &internalorders.CheckoutResult{OrderID: uuid.New(), GatewayOrderID: "order_1", Amount: 149900, Currency: enums.CurrencyINR}}
	handler := CreateOrder(svc, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create-order", strings.NewReader(checkoutBody)), userID)
	req.Header.Set(middleware.IdempotencyKeyHeader, " key-1 ")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	in := svc.createInput
	if in.UserID != userID || in.IdempotencyKey != "key-1" || in.CartID != "c1" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.Address.Pincode != "411001" || in.TotalAmount == nil || in.TotalAmount.String() != "1499" {
		t.Fatalf("unexpected address or total %+v %v", in.Address, in.TotalAmount)
	}

	var envelope struct {
		Data internalorders.CheckoutResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.GatewayOrderID != "order_1" || envelope.Data.Amount != 149900 {
		t.Fatalf("unexpected checkout %+v", envelope.Data)
	}
}

func TestCreateOrderReplayReturnsOK(t *testing.T) {
	svc := &stubOrdersService{checkout: &internalorders.CheckoutResult{OrderID: uuid.New(), Replayed: true}}
	handler := CreateOrder(svc, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create-order", strings.NewReader(checkoutBody)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable")}
	handler := CreateOrder(svc, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create-order", strings.NewReader(checkoutBody)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestCreateOrderRequiresUser(t *testing.T) {
	handler := CreateOrder(&stubOrdersService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create-order", strings.NewReader(checkoutBody))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestVerifyPaymentMapsBody(t *testing.T) {
	svc := &stubOrdersService{order: &internalorders.OrderDTO{ID: uuid.New(), PaymentStatus: enums.PaymentStatusPaid}}
	handler := VerifyPayment(svc, nil)

	body := `{"orderId":"order_1","paymentId":"pay_1","signature":"abc"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.verifyInput.GatewayOrderID != "order_1" || svc.verifyInput.PaymentID != "pay_1" || svc.verifyInput.Signature != "abc" {
		t.Fatalf("unexpected verify input %+v", svc.verifyInput)
	}
}

func TestVerifyPaymentSignatureMismatch(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeVerification, "payment verification failed")}
	handler := VerifyPayment(svc, nil)

	body := `{"orderId":"order_1","paymentId":"pay_1","signature":"bad"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVerifyPaymentRequiresSignature(t *testing.T) {
	svc := &stubOrdersService{}
	handler := VerifyPayment(svc, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", strings.NewReader(`{"orderId":"o","paymentId":"p"}`)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.verifyInput.GatewayOrderID != "" {
		t.Fatalf("service should not be called")
	}
}

func TestListPassesCursor(t *testing.T) {
	svc := &stubOrdersService{}
	handler := List(svc, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/orders?limit=5&cursor=next", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listParams.Limit != 5 || svc.listParams.Cursor != "next" {
		t.Fatalf("unexpected params %+v", svc.listParams)
	}
}

func TestDetailParsesOrderID(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{order: &internalorders.OrderDTO{ID: orderID}}
	handler := Detail(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID.String())
	req = authed(req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lookedUp != orderID {
		t.Fatalf("unexpected lookup %s", svc.lookedUp)
	}
}
