package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
)

// Repository persists payment records and refund intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertPaymentIgnoreDuplicate(ctx context.Context, record *models.PaymentRecord) (bool, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentRecord, error)
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentRecord, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertRefundIntentIgnoreDuplicate(ctx context.Context, intent *models.RefundIntent) (bool, error)
	FindRefundIntent(ctx context.Context, orderID uuid.UUID) (*models.RefundIntent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// InsertPaymentIgnoreDuplicate reports false when the provider payment id is already stored.
func (r *repository) InsertPaymentIgnoreDuplicate(ctx context.Context, record *models.PaymentRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_payment_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByProviderPaymentID returns nil when no record exists.
func (r *repository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("provider_payment_id = ?", providerPaymentID).
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// FindActiveByOrder returns the latest captured, unrefunded payment or nil.
func (r *repository) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND refunded_at IS NULL", orderID).
		Order("captured_at DESC").
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ? AND refunded_at IS NULL", id).
		Update("refunded_at", at).Error
}

func orderRefundKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

func captureRefundKey(providerPaymentID string) string {
	return "capture:" + providerPaymentID
}

// InsertRefundIntentIgnoreDuplicate reports false when an intent with the same
// refund key already exists.
func (r *repository) InsertRefundIntentIgnoreDuplicate(ctx context.Context, intent *models.RefundIntent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "refund_key"}},
			DoNothing: true,
		}).
		Create(intent)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindRefundIntent returns the order-level refund intent.
func (r *repository) FindRefundIntent(ctx context.Context, orderID uuid.UUID) (*models.RefundIntent, error) {
	var intent models.RefundIntent
	if err := r.db.WithContext(ctx).Where("refund_key = ?", orderRefundKey(orderID)).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}
