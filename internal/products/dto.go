package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Brand              string     `json:"brand"`
	OriginalPrice      string     `json:"original_price"`
	OfferPrice         string     `json:"offer_price"`
	OriginalPricePaise int64      `json:"original_price_paise"`
	OfferPricePaise    int64      `json:"offer_price_paise"`
	Stock              int        `json:"stock"`
	Images             []ImageDTO `json:"images"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ImageDTO pairs a stored object key with its public URL.
type ImageDTO struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ProductListResult is a page of products.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// NewProductDTO builds a DTO from the persisted model. urlFor resolves image
// keys; a nil resolver returns the keys unchanged.
func NewProductDTO(product *models.Product, urlFor func(string) string) *ProductDTO {
	images := make([]ImageDTO, 0, len(product.Images))
	for _, key := range product.Images {
		url := key
		if urlFor != nil {
			url = urlFor(key)
		}
		images = append(images, ImageDTO{Key: key, URL: url})
	}
	return &ProductDTO{
		ID:                 product.ID,
		Name:               product.Name,
		Description:        product.Description,
		Brand:              product.Brand,
		OriginalPrice:      money.Format(product.OriginalPricePaise),
		OfferPrice:         money.Format(product.OfferPricePaise),
		OriginalPricePaise: product.OriginalPricePaise,
		OfferPricePaise:    product.OfferPricePaise,
		Stock:              product.Stock,
		Images:             images,
		CreatedAt:          product.CreatedAt,
		UpdatedAt:          product.UpdatedAt,
	}
}
