package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedProduct(t *testing.T, db *gorm.DB, name string, offerPaise int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:               name,
		Brand:              "Acme",
		OriginalPricePaise: offerPaise + 1000,
		OfferPricePaise:    offerPaise,
		Stock:              10,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestRepositoryUpsertIncrementsExistingLine(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	product := seedProduct(t, db, "Mouse", 99900)

	cart, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertItem(ctx, cart.ID, product.ID, 2))
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, product.ID, 3))

	loaded, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	require.Equal(t, 5, loaded.Items[0].Quantity)
	require.NotNil(t, loaded.Items[0].Product)
	require.Equal(t, "Mouse", loaded.Items[0].Product.Name)
}

func TestRepositoryGetOrCreateReturnsSameCart(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()

	first, err := repo.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	second, err := repo.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Cart{}).Where("user_id = ?", userID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRepositorySetItemQuantityBelowOneRemovesLine(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	product := seedProduct(t, db, "Keyboard", 250000)

	cart, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, product.ID, 1))
	loaded, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	itemID := loaded.Items[0].ID

	require.NoError(t, repo.SetItemQuantity(ctx, itemID, 4))
	item, err := repo.FindItemForUser(ctx, userID, itemID)
	require.NoError(t, err)
	require.Equal(t, 4, item.Quantity)

	require.NoError(t, repo.SetItemQuantity(ctx, itemID, 0))
	_, err = repo.FindItemForUser(ctx, userID, itemID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound), "got %v", err)
}

func TestRepositoryFindItemForUserIsScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	owner := uuid.New()
	product := seedProduct(t, db, "Monitor", 1500000)

	cart, err := repo.GetOrCreate(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, product.ID, 1))
	loaded, err := repo.FindByUser(ctx, owner)
	require.NoError(t, err)

	_, err = repo.FindItemForUser(ctx, uuid.New(), loaded.Items[0].ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound), "got %v", err)
}

func TestRepositoryQuantityCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	product := seedProduct(t, db, "Cable", 50000)
	cart, err := repo.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)

	require.Error(t, repo.UpsertItem(ctx, cart.ID, product.ID, 0))
}

func TestRepositoryRemoveOrderedKeepsOtherLines(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	mouse := seedProduct(t, db, "Mouse", 120000)
	pad := seedProduct(t, db, "Mouse Pad", 30000)
	cable := seedProduct(t, db, "Cable", 50000)

	cart, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, mouse.ID, 3))
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, pad.ID, 1))
	require.NoError(t, repo.UpsertItem(ctx, cart.ID, cable.ID, 2))

	require.NoError(t, repo.RemoveOrdered(ctx, cart.ID, []OrderedLine{
		{ProductID: mouse.ID, Quantity: 2},
		{ProductID: cable.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
	}))

	loaded, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	left := map[uuid.UUID]int{}
	for _, item := range loaded.Items {
		left[item.ProductID] = item.Quantity
	}
	require.Equal(t, map[uuid.UUID]int{mouse.ID: 1, pad.ID: 1}, left)
}
