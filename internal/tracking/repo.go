package tracking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
)

// Repository manages persistence for tracking events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIgnoreDuplicate(ctx context.Context, event *models.TrackingEvent) (bool, error)
	Latest(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tracking repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// InsertIgnoreDuplicate reports false when (order_id, status_key) already exists.
func (r *repository) InsertIgnoreDuplicate(ctx context.Context, event *models.TrackingEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "status_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Latest returns nil when the order has no events yet.
func (r *repository) Latest(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error) {
	var events []models.TrackingEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at DESC").
		Limit(1).
		Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
