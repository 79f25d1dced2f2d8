package product

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/storage"
)

var testPNG = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newTestService(t *testing.T) (Service, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	svc, err := NewService(NewRepository(openTestDB(t)), store, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return svc, store
}

func pngUpload() ImageUpload {
	return ImageUpload{Filename: "a.png", Size: int64(len(testPNG)), Body: bytes.NewReader(testPNG)}
}

func validCreateInput() CreateProductInput {
	return CreateProductInput{
		Name:          "Pixel 8",
		Description:   "Android phone",
		Brand:         "Google",
		OriginalPrice: decimal.RequireFromString("59999"),
		OfferPrice:    decimal.RequireFromString("54999.50"),
		Stock:         4,
	}
}

func TestCreateProductStoresImagesInOrder(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput()
	input.Images = []ImageUpload{pngUpload(), pngUpload()}

	dto, err := svc.CreateProduct(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, int64(5499950), dto.OfferPricePaise)
	require.Equal(t, "54999.50", dto.OfferPrice)
	require.Len(t, dto.Images, 2)
	for _, img := range dto.Images {
		require.True(t, strings.HasPrefix(img.Key, "products/"))
		require.True(t, strings.HasSuffix(img.Key, ".png"))
		require.Equal(t, "/uploads/"+img.Key, img.URL)
	}

	fetched, err := svc.GetProduct(context.Background(), dto.ID)
	require.NoError(t, err)
	require.Equal(t, dto.Images, fetched.Images)
}

func TestCreateProductRequiresBrand(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput()
	input.Brand = "   "

	_, err := svc.CreateProduct(context.Background(), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
	details := pkgerrors.As(err).Details().(map[string]string)
	require.Equal(t, "is required", details["brand"])
}

func TestCreateProductRejectsTooManyImages(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput()
	input.Images = []ImageUpload{pngUpload(), pngUpload(), pngUpload(), pngUpload()}

	_, err := svc.CreateProduct(context.Background(), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreateProductRejectsNonImage(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput()
	input.Images = []ImageUpload{pngUpload(), {Filename: "x.txt", Body: strings.NewReader("plain text")}}

	_, err := svc.CreateProduct(context.Background(), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	list, err := svc.ListProducts(context.Background(), pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, list.Products)
}

func TestCreateProductRejectsOfferAboveOriginal(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput()
	input.OfferPrice = decimal.RequireFromString("60000")

	_, err := svc.CreateProduct(context.Background(), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestGetProductNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetProduct(context.Background(), uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestUpdateProductAppliesOnlySuppliedFields(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.CreateProduct(context.Background(), validCreateInput())
	require.NoError(t, err)

	stock := 10
	name := "  Pixel 8 Pro "
	updated, err := svc.UpdateProduct(context.Background(), created.ID, UpdateProductInput{Name: &name, Stock: &stock})
	require.NoError(t, err)
	require.Equal(t, "Pixel 8 Pro", updated.Name)
	require.Equal(t, 10, updated.Stock)
	require.Equal(t, created.Brand, updated.Brand)
	require.Equal(t, created.OfferPricePaise, updated.OfferPricePaise)

	_, err = svc.UpdateProduct(context.Background(), uuid.New(), UpdateProductInput{Stock: &stock})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	negative := -1
	_, err = svc.UpdateProduct(context.Background(), created.ID, UpdateProductInput{Stock: &negative})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestSearchProducts(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateProduct(context.Background(), validCreateInput())
	require.NoError(t, err)

	_, err = svc.SearchProducts(context.Background(), "  ", pagination.Params{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	res, err := svc.SearchProducts(context.Background(), "ANDROID", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	res, err = svc.SearchProducts(context.Background(), "iphone", pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, res.Products)
}

func TestListProductsRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListProducts(context.Background(), pagination.Params{Cursor: "!!"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}
