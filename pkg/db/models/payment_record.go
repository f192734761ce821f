package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// PaymentRecord is a captured payment. ProviderPaymentID is unique so a
// capture can only be recorded once regardless of which path reports it.
type PaymentRecord struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	ProviderOrderID   *string               `gorm:"column:provider_order_id"`
	ProviderPaymentID string                `gorm:"column:provider_payment_id;not null;uniqueIndex:ux_payment_records_provider_payment_id"`
	Signature         *string               `gorm:"column:signature"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                `gorm:"column:currency;type:text;not null"`
	CapturedAt        time.Time             `gorm:"column:captured_at;not null"`
	MethodDetail      *string               `gorm:"column:method_detail"`
	Source            enums.PaymentSource   `gorm:"column:source;type:text;not null"`
	RefundedAt        *time.Time            `gorm:"column:refunded_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentRecord) TableName() string { return "payment_records" }
