package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// ProduceListing is owned by the catalog; orders only read it.
type ProduceListing struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	FarmerID  uuid.UUID       `gorm:"column:farmer_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;not null"`
	Unit      enums.Unit      `gorm:"column:unit;type:text;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Currency  string          `gorm:"column:currency;type:text;not null;default:'INR'"`
	Active    bool            `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProduceListing) TableName() string { return "produce_listings" }
