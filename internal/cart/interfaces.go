package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	FindItemForUser(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error)
	SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	RemoveOrdered(ctx context.Context, cartID uuid.UUID, lines []OrderedLine) error
}

// OrderedLine is a purchased quantity of one product.
type OrderedLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type urlResolver interface {
	URL(key string) string
}
