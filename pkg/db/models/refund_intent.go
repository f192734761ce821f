package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/enums"
)

// RefundIntent records that money must be returned to the buyer. Execution of
// the refund happens outside this service. RefundKey is the order id for an
// order refund and the provider payment id for a returned extra capture, so
// one order can carry both kinds.
type RefundIntent struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index:idx_refund_intents_order_id"`
	RefundKey       string             `gorm:"column:refund_key;type:text;not null;uniqueIndex:ux_refund_intents_refund_key"`
	PaymentRecordID *uuid.UUID         `gorm:"column:payment_record_id;type:uuid"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string             `gorm:"column:currency;type:text;not null"`
	Reason          enums.RefundReason `gorm:"column:reason;type:text;not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null;default:'requested'"`
	RequestedBy     *uuid.UUID         `gorm:"column:requested_by;type:uuid"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (RefundIntent) TableName() string { return "refund_intents" }
