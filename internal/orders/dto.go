package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

// CreateOrderInput carries a buyer's purchase request.
type CreateOrderInput struct {
	Actor           auth.Actor
	ProduceID       uuid.UUID
	Quantity        decimal.Decimal
	Unit            types.Unit
	DeliveryAddress *types.Location
	Note            *string
}

// TransitionInput moves an order along the status graph.
type TransitionInput struct {
	OrderID uuid.UUID
	Actor   auth.Actor
	Target  enums.OrderStatus
	Note    *string
}

// TrackingDetailsInput updates carrier metadata without touching status.
type TrackingDetailsInput struct {
	OrderID           uuid.UUID
	Actor             auth.Actor
	TrackingNumber    string
	CarrierName       string
	ShippingCost      *decimal.Decimal
	EstimatedDelivery *time.Time
	Location          *types.Location
}

// PaymentStep is the buyer-facing payment milestone.
type PaymentStep string

const (
	PaymentStepPending   PaymentStep = "pending"
	PaymentStepCompleted PaymentStep = "completed"
	PaymentStepSkipped   PaymentStep = "skipped"
	PaymentStepRefunded  PaymentStep = "refunded"
)

// OrderView is the read model behind GET /orders/{id}.
type OrderView struct {
	Order              *models.Order
	Tracking           []models.TrackingEvent
	PaymentStep        PaymentStep
	AllowedTransitions []enums.OrderStatus
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                 uuid.UUID           `json:"id"`
	BuyerID            uuid.UUID           `json:"buyerId"`
	FarmerID           uuid.UUID           `json:"farmerId"`
	ProduceID          uuid.UUID           `json:"produceId"`
	Quantity           decimal.Decimal     `json:"quantity"`
	Unit               enums.Unit          `json:"unit"`
	UnitPrice          decimal.Decimal     `json:"unitPrice"`
	TotalAmount        decimal.Decimal     `json:"totalAmount"`
	Currency           string              `json:"currency"`
	ShippingCost       decimal.Decimal     `json:"shippingCost"`
	Status             enums.OrderStatus   `json:"status"`
	PaymentMethod      enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus      enums.PaymentStatus `json:"paymentStatus"`
	TrackingNumber     *string             `json:"trackingNumber,omitempty"`
	CarrierName        *string             `json:"carrierName,omitempty"`
	CarrierTrackingURL *string             `json:"carrierTrackingUrl,omitempty"`
	EstimatedDelivery  *time.Time          `json:"estimatedDelivery,omitempty"`
	DeliveryAddress    *types.Location     `json:"deliveryAddress,omitempty"`
	Note               *string             `json:"note,omitempty"`
	FarmerPaidOut      bool                `json:"farmerPaidOut"`
	FarmerPaidOutAt    *time.Time          `json:"farmerPaidOutAt,omitempty"`
	Version            int                 `json:"version"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func NewOrderDTO(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:                 o.ID,
		BuyerID:            o.BuyerID,
		FarmerID:           o.FarmerID,
		ProduceID:          o.ProduceID,
		Quantity:           o.Quantity,
		Unit:               o.Unit,
		UnitPrice:          o.UnitPriceSnapshot,
		TotalAmount:        o.TotalAmount,
		Currency:           o.Currency,
		ShippingCost:       o.ShippingCost,
		Status:             o.Status,
		PaymentMethod:      o.PaymentMethod,
		PaymentStatus:      o.PaymentStatus,
		TrackingNumber:     o.TrackingNumber,
		CarrierName:        o.CarrierName,
		CarrierTrackingURL: o.CarrierTrackingURL,
		EstimatedDelivery:  o.EstimatedDelivery,
		DeliveryAddress:    o.DeliveryAddress,
		Note:               o.Note,
		FarmerPaidOut:      o.FarmerPaidOut,
		FarmerPaidOutAt:    o.FarmerPaidOutAt,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// TrackingEventDTO is one ledger entry as shown to clients.
type TrackingEventDTO struct {
	Status         enums.TrackingStatusKey `json:"status"`
	OccurredAt     time.Time               `json:"occurredAt"`
	Location       *types.Location         `json:"location,omitempty"`
	Description    *string                 `json:"description,omitempty"`
	CarrierName    *string                 `json:"carrierName,omitempty"`
	TrackingNumber *string                 `json:"trackingNumber,omitempty"`
	TrackingURL    *string                 `json:"trackingUrl,omitempty"`
	ActorRole      enums.ActorRole         `json:"actorRole"`
}

type OrderViewDTO struct {
	Order              *OrderDTO           `json:"order"`
	Tracking           []TrackingEventDTO  `json:"tracking"`
	PaymentStep        PaymentStep         `json:"paymentStep"`
	AllowedTransitions []enums.OrderStatus `json:"allowedTransitions"`
}

func (v *OrderView) DTO() *OrderViewDTO {
	if v == nil {
		return nil
	}
	tracking := make([]TrackingEventDTO, 0, len(v.Tracking))
	for _, ev := range v.Tracking {
		tracking = append(tracking, TrackingEventDTO{
			Status:         ev.StatusKey,
			OccurredAt:     ev.OccurredAt,
			Location:       ev.Location,
			Description:    ev.Description,
			CarrierName:    ev.CarrierName,
			TrackingNumber: ev.TrackingNumber,
			TrackingURL:    ev.TrackingURL,
			ActorRole:      ev.ActorRole,
		})
	}
	allowed := v.AllowedTransitions
	if allowed == nil {
		allowed = []enums.OrderStatus{}
	}
	return &OrderViewDTO{
		Order:              NewOrderDTO(v.Order),
		Tracking:           tracking,
		PaymentStep:        v.PaymentStep,
		AllowedTransitions: allowed,
	}
}
