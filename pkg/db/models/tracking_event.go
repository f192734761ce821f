package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

// TrackingEvent is one immutable ledger entry for an order.
type TrackingEvent struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_tracking_events_order_status,priority:1"`
	StatusKey      enums.TrackingStatusKey `gorm:"column:status_key;type:text;not null;uniqueIndex:ux_tracking_events_order_status,priority:2"`
	OccurredAt     time.Time               `gorm:"column:occurred_at;not null"`
	Location       *types.Location         `gorm:"column:location;type:jsonb;serializer:json"`
	Description    *string                 `gorm:"column:description"`
	CarrierName    *string                 `gorm:"column:carrier_name"`
	TrackingNumber *string                 `gorm:"column:tracking_number"`
	TrackingURL    *string                 `gorm:"column:tracking_url"`
	ActorID        *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	ActorRole      enums.ActorRole         `gorm:"column:actor_role;type:text;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (TrackingEvent) TableName() string { return "tracking_events" }
