package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

// Order is the aggregate root for one buyer's purchase of a farmer's listing.
// Every write after creation goes through a version-checked update.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID            uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	FarmerID           uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null;index"`
	ProduceID          uuid.UUID           `gorm:"column:produce_id;type:uuid;not null"`
	Quantity           decimal.Decimal     `gorm:"column:quantity;type:numeric(12,3);not null"`
	Unit               enums.Unit          `gorm:"column:unit;type:text;not null"`
	UnitPriceSnapshot  decimal.Decimal     `gorm:"column:unit_price_snapshot;type:numeric(12,2);not null"`
	TotalAmount        decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency           string              `gorm:"column:currency;type:text;not null;default:'INR'"`
	ShippingCost       decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'none'"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	ProviderOrderID    *string             `gorm:"column:provider_order_id"`
	TrackingNumber     *string             `gorm:"column:tracking_number"`
	CarrierName        *string             `gorm:"column:carrier_name"`
	CarrierTrackingURL *string             `gorm:"column:carrier_tracking_url"`
	EstimatedDelivery  *time.Time          `gorm:"column:estimated_delivery"`
	DeliveryAddress    *types.Location     `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	Note               *string             `gorm:"column:note"`
	FarmerPaidOut      bool                `gorm:"column:farmer_paid_out;not null;default:false"`
	FarmerPaidOutAt    *time.Time          `gorm:"column:farmer_paid_out_at"`
	FarmerPaidOutBy    *uuid.UUID          `gorm:"column:farmer_paid_out_by;type:uuid"`
	Version            int                 `gorm:"column:version;not null;default:1"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
