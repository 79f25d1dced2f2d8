package orders

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

const testKeySecret = "rzp_test_secret"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

type fakeGateway struct {
	createErr error
	created   []razorpay.CreateOrderRequest
	orders    map[string]*razorpay.Order
	seq       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: map[string]*razorpay.Order{}}
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	g.seq++
	order := &razorpay.Order{
		ID:        fmt.Sprintf("order_test_%d", g.seq),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    razorpay.OrderStatusCreated,
		CreatedAt: int64(g.seq),
	}
	g.orders[order.ID] = order
	return order, nil
}

func (g *fakeGateway) FetchOrder(_ context.Context, id string) (*razorpay.Order, error) {
	order, ok := g.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order request failed")
	}
	return order, nil
}

func (g *fakeGateway) FindOrderByReceipt(_ context.Context, receipt string) (*razorpay.Order, error) {
	for _, order := range g.orders {
		if order.Receipt == receipt {
			return order, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return razorpay.VerifySignature(testKeySecret, orderID, paymentID, signature)
}

type fixture struct {
	db      *gorm.DB
	svc     *service
	gateway *fakeGateway
	userID  uuid.UUID
	cartID  uuid.UUID
	product models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	gateway := newFakeGateway()
	carts := cart.NewRepository(db)

	iface, err := NewService(ServiceParams{
		Repository: NewRepository(db),
		Tx:         dbpkg.Wrap(db),
		Outbox:     outbox.NewService(outbox.NewRepository(db), logg),
		Gateway:    gateway,
		Carts:      carts,
		Inventory:  product.NewInventory(product.NewRepository(db)),
		Logger:     logg,
		Config: config.OrdersConfig{
			AttachGracePeriod: 5 * time.Minute,
			ExpireAfter:       24 * time.Hour,
			ReconcileBatch:    10,
		},
	})
	require.NoError(t, err)
	svc := iface.(*service)

	p := models.Product{
		Name:               "Trail Running Shoe",
		Brand:              "Stride",
		OriginalPricePaise: 599900,
		OfferPricePaise:    499900,
		Stock:              5,
	}
	require.NoError(t, db.Create(&p).Error)

	userID := uuid.New()
	userCart, err := carts.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, carts.UpsertItem(context.Background(), userCart.ID, p.ID, 2))

	return &fixture{db: db, svc: svc, gateway: gateway, userID: userID, cartID: userCart.ID, product: p}
}

func (f *fixture) checkoutInput(key string) CreateOrderInput {
	hint := decimal.RequireFromString("9998.00")
	return CreateOrderInput{
		UserID:        f.userID,
		CartID:        f.cartID.String(),
		CustomerEmail: "Asha@Example.com",
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		Address: models.CheckoutAddress{
			Address: "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			Pincode: "560001",
		},
		TotalAmount:    &hint,
		IdempotencyKey: key,
	}
}

func (f *fixture) loadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.Preload("Items").First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, "id = ?", f.product.ID).Error)
	return p.Stock
}

func (f *fixture) outboxTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	return types
}
