package payouts

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	"github.com/farmlink/farmlink-backend/pkg/pagination"
)

// Repository runs the reporting reads behind the admin payout screens.
type Repository interface {
	Summary(ctx context.Context, farmerID *uuid.UUID) (*Summary, error)
	ListPending(ctx context.Context, farmerID *uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

const summaryQuery = `
SELECT
	COALESCE(SUM(CASE WHEN payment_status = @paid THEN total_amount ELSE 0 END), 0) AS total_collected,
	COALESCE(SUM(CASE WHEN payment_status = @refunded THEN total_amount ELSE 0 END), 0) AS total_refunded,
	COUNT(CASE WHEN payment_status = @paid AND status IN @eligible AND farmer_paid_out = @not_paid_out THEN 1 END) AS pending_payouts,
	COALESCE(SUM(CASE WHEN payment_status = @paid AND status IN @eligible AND farmer_paid_out = @not_paid_out THEN total_amount ELSE 0 END), 0) AS farmer_payout_total,
	COALESCE(SUM(CASE WHEN payment_status = @paid AND farmer_paid_out = @paid_out THEN total_amount ELSE 0 END), 0) AS farmer_paid_out_total
FROM orders`

type summaryRow struct {
	TotalCollected     decimal.Decimal `gorm:"column:total_collected"`
	TotalRefunded      decimal.Decimal `gorm:"column:total_refunded"`
	PendingPayouts     int64           `gorm:"column:pending_payouts"`
	FarmerPayoutTotal  decimal.Decimal `gorm:"column:farmer_payout_total"`
	FarmerPaidOutTotal decimal.Decimal `gorm:"column:farmer_paid_out_total"`
}

// Summary aggregates money totals in SQL. Refunded orders never count toward
// payable totals.
func (r *repository) Summary(ctx context.Context, farmerID *uuid.UUID) (*Summary, error) {
	args := map[string]any{
		"paid":         enums.PaymentStatusPaid,
		"refunded":     enums.PaymentStatusRefunded,
		"eligible":     []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted},
		"paid_out":     true,
		"not_paid_out": false,
	}
	query := summaryQuery
	if farmerID != nil {
		query += "\nWHERE farmer_id = @farmer"
		args["farmer"] = *farmerID
	}

	var row summaryRow
	if err := r.db.WithContext(ctx).Raw(query, args).Scan(&row).Error; err != nil {
		return nil, err
	}
	return &Summary{
		FarmerID:           farmerID,
		TotalCollected:     row.TotalCollected.Round(2),
		TotalRefunded:      row.TotalRefunded.Round(2),
		PendingPayouts:     row.PendingPayouts,
		FarmerPayoutTotal:  row.FarmerPayoutTotal.Round(2),
		FarmerPaidOutTotal: row.FarmerPaidOutTotal.Round(2),
	}, nil
}

// ListPending returns paid, delivered orders still waiting for a payout, newest first.
func (r *repository) ListPending(ctx context.Context, farmerID *uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_status = ? AND status IN ? AND farmer_paid_out = ?",
			enums.PaymentStatusPaid,
			[]enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCompleted},
			false)
	if farmerID != nil {
		q = q.Where("farmer_id = ?", *farmerID)
	}
	var out []models.Order
	if err := q.Scopes(pagination.Scope(cursor, limit)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
