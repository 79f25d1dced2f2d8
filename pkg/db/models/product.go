package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog listing. Prices are stored in paise.
type Product struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	Description        string    `gorm:"column:description;not null;default:''"`
	Brand              string    `gorm:"column:brand;not null"`
	OriginalPricePaise int64     `gorm:"column:original_price_paise;not null"`
	OfferPricePaise    int64     `gorm:"column:offer_price_paise;not null"`
	Stock              int       `gorm:"column:stock;not null;default:0"`
	Images             []string  `gorm:"column:images;type:jsonb;serializer:json;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return nil
}
