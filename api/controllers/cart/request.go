package cart

import "github.com/google/uuid"

type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  *int      `json:"quantity,omitempty"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}
