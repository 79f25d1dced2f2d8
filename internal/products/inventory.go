package product

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Inventory adjusts stock inside a caller-owned transaction.
type Inventory struct {
	repo *Repository
}

func NewInventory(repo *Repository) *Inventory {
	return &Inventory{repo: repo}
}

// DecrementStock lowers stock by qty, clamped at zero.
func (i *Inventory) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return i.repo.WithTx(tx).DecrementStock(ctx, productID, qty)
}
