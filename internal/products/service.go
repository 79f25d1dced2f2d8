package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/storage"
)

// MaxImages caps how many images a product may carry.
const MaxImages = 3

const imageKeyPrefix = "products"

// Service exposes catalog operations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	SearchProducts(ctx context.Context, query string, params pagination.Params) (*ProductListResult, error)
}

// ImageUpload is a single image file attached to a create request.
type ImageUpload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name          string
	Description   string
	Brand         string
	OriginalPrice decimal.Decimal
	OfferPrice    decimal.Decimal
	Stock         int
	Images        []ImageUpload
}

// UpdateProductInput holds optional mutation values for a product. Only
// non-nil fields are applied.
type UpdateProductInput struct {
	Name          *string
	Description   *string
	Brand         *string
	OriginalPrice *decimal.Decimal
	OfferPrice    *decimal.Decimal
	Stock         *int
	ImageKeys     *[]string
}

type service struct {
	repo    *Repository
	objects storage.Store
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs a product service instance.
func NewService(repo *Repository, objects storage.Store, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, objects: objects, logg: logg, now: time.Now}, nil
}

// CreateProduct stores the images, then inserts the product. Images already
// stored are removed again when a later step fails.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if len(input.Images) > MaxImages {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d images are allowed", MaxImages))
	}
	product := &models.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Brand:       strings.TrimSpace(input.Brand),
		Stock:       input.Stock,
	}
	var err error
	if product.OriginalPricePaise, err = toPaise("original_price", input.OriginalPrice); err != nil {
		return nil, err
	}
	if product.OfferPricePaise, err = toPaise("offer_price", input.OfferPrice); err != nil {
		return nil, err
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	keys, err := s.storeImages(ctx, input.Images)
	if err != nil {
		return nil, err
	}
	product.Images = keys

	if err := s.repo.Create(ctx, product); err != nil {
		s.discardImages(ctx, keys)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return NewProductDTO(product, s.objects.URL), nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error) {
	return s.list(ctx, productListQuery{Pagination: params})
}

func (s *service) SearchProducts(ctx context.Context, query string, params pagination.Params) (*ProductListResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query is required")
	}
	return s.list(ctx, productListQuery{Pagination: params, Search: query})
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product, s.objects.URL), nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyUpdateToProduct(product, input); err != nil {
		return nil, err
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	return NewProductDTO(product, s.objects.URL), nil
}

func (s *service) list(ctx context.Context, query productListQuery) (*ProductListResult, error) {
	if _, err := pagination.ParseCursor(query.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	out := &ProductListResult{Products: make([]ProductDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Products = append(out.Products, *NewProductDTO(&rows[i], s.objects.URL))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

func (s *service) storeImages(ctx context.Context, uploads []ImageUpload) ([]string, error) {
	keys := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		obj, err := storage.PutImage(ctx, s.objects, imageKeyPrefix, upload.Body, upload.Size, s.now())
		if err != nil {
			s.discardImages(ctx, keys)
			return nil, err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *service) discardImages(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "key", key), "failed to discard product image")
		}
	}
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) error {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.Brand != nil {
		product.Brand = strings.TrimSpace(*input.Brand)
	}
	if input.OriginalPrice != nil {
		paise, err := toPaise("original_price", *input.OriginalPrice)
		if err != nil {
			return err
		}
		product.OriginalPricePaise = paise
	}
	if input.OfferPrice != nil {
		paise, err := toPaise("offer_price", *input.OfferPrice)
		if err != nil {
			return err
		}
		product.OfferPricePaise = paise
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.ImageKeys != nil {
		if len(*input.ImageKeys) > MaxImages {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d images are allowed", MaxImages))
		}
		product.Images = append([]string{}, (*input.ImageKeys)...)
	}
	return nil
}

func validateProduct(product *models.Product) error {
	details := map[string]string{}
	if product.Name == "" {
		details["name"] = "is required"
	}
	if product.Brand == "" {
		details["brand"] = "is required"
	}
	if product.OriginalPricePaise <= 0 {
		details["original_price"] = "must be greater than 0"
	}
	if product.OfferPricePaise <= 0 {
		details["offer_price"] = "must be greater than 0"
	} else if product.OfferPricePaise > product.OriginalPricePaise {
		details["offer_price"] = "must not exceed original_price"
	}
	if product.Stock < 0 {
		details["stock"] = "must be at least 0"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func toPaise(field string, amount decimal.Decimal) (int64, error) {
	paise, err := money.ToPaise(amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithDetails(map[string]string{field: err.Error()})
	}
	return paise, nil
}
