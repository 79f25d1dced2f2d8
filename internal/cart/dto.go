package cart

import (
	"time"

	"github.com/google/uuid"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// CartDTO is the cart returned to clients with each line's product resolved.
type CartDTO struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"user_id"`
	Items      []CartItemDTO `json:"items"`
	ItemCount  int           `json:"item_count"`
	Total      string        `json:"total"`
	TotalPaise int64         `json:"total_paise"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// CartItemDTO is a single cart line.
type CartItemDTO struct {
	ID             uuid.UUID           `json:"id"`
	ProductID      uuid.UUID           `json:"product_id"`
	Quantity       int                 `json:"quantity"`
	Product        *product.ProductDTO `json:"product"`
	LineTotal      string              `json:"line_total"`
	LineTotalPaise int64               `json:"line_total_paise"`
}

// NewCartDTO maps the cart and its preloaded products.
func NewCartDTO(cart *models.Cart, urlFor func(string) string) *CartDTO {
	dto := &CartDTO{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     make([]CartItemDTO, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		line := CartItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if item.Product != nil {
			line.Product = product.NewProductDTO(item.Product, urlFor)
			line.LineTotalPaise = item.Product.OfferPricePaise * int64(item.Quantity)
		}
		line.LineTotal = money.Format(line.LineTotalPaise)
		dto.TotalPaise += line.LineTotalPaise
		dto.ItemCount += item.Quantity
		dto.Items = append(dto.Items, line)
	}
	dto.Total = money.Format(dto.TotalPaise)
	return dto
}
