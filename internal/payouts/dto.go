package payouts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/pagination"
)

// Summary is the admin money overview, optionally scoped to one farmer.
type Summary struct {
	FarmerID           *uuid.UUID      `json:"farmerId,omitempty"`
	TotalCollected     decimal.Decimal `json:"totalCollected"`
	TotalRefunded      decimal.Decimal `json:"totalRefunded"`
	PendingPayouts     int64           `json:"pendingPayouts"`
	FarmerPayoutTotal  decimal.Decimal `json:"farmerPayoutTotal"`
	FarmerPaidOutTotal decimal.Decimal `json:"farmerPaidOutTotal"`
}

type ListParams struct {
	FarmerID *uuid.UUID
	pagination.Params
}

// PendingPayout is one row of the admin payout queue.
type PendingPayout struct {
	OrderID       uuid.UUID           `json:"orderId"`
	FarmerID      uuid.UUID           `json:"farmerId"`
	BuyerID       uuid.UUID           `json:"buyerId"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func pendingFromOrder(o models.Order) PendingPayout {
	return PendingPayout{
		OrderID:       o.ID,
		FarmerID:      o.FarmerID,
		BuyerID:       o.BuyerID,
		Amount:        o.TotalAmount,
		Currency:      o.Currency,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
}
