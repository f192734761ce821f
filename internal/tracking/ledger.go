package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

// Ledger is the append-only audit trail of an order.
type Ledger interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	List(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error)
}

// Entry is one event to record. A zero OccurredAt means now.
type Entry struct {
	OrderID        uuid.UUID
	StatusKey      enums.TrackingStatusKey
	OccurredAt     time.Time
	Location       *types.Location
	Description    *string
	CarrierName    *string
	TrackingNumber *string
	TrackingURL    *string
	Actor          auth.Actor
}

type ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger wires a ledger with the provided repository.
func NewLedger(repo Repository) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	return &ledger{repo: repo, now: time.Now}, nil
}

// Append writes entry inside tx. It returns false without error when the
// order already has an event with the same status key. Timestamps never go
// backwards: an entry older than the newest existing one is clamped to it.
func (l *ledger) Append(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	if entry.OrderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !entry.StatusKey.IsValid() {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid tracking status key %q", entry.StatusKey)
	}
	if !entry.Actor.Role.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "actor role required")
	}

	repo := l.repo.WithTx(tx)

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = l.now()
	}
	occurredAt = occurredAt.UTC()

	latest, err := repo.Latest(ctx, entry.OrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest tracking event")
	}
	if latest != nil && occurredAt.Before(latest.OccurredAt) {
		occurredAt = latest.OccurredAt.UTC()
	}

	event := &models.TrackingEvent{
		ID:             uuid.New(),
		OrderID:        entry.OrderID,
		StatusKey:      entry.StatusKey,
		OccurredAt:     occurredAt,
		Location:       entry.Location,
		Description:    entry.Description,
		CarrierName:    entry.CarrierName,
		TrackingNumber: entry.TrackingNumber,
		TrackingURL:    entry.TrackingURL,
		ActorID:        entry.Actor.UserIDPtr(),
		ActorRole:      entry.Actor.Role,
	}

	inserted, err := repo.InsertIgnoreDuplicate(ctx, event)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking event")
	}
	return inserted, nil
}

func (l *ledger) List(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	events, err := l.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tracking events")
	}
	return events, nil
}

// HasKey reports whether events contains key.
func HasKey(events []models.TrackingEvent, key enums.TrackingStatusKey) bool {
	for _, e := range events {
		if e.StatusKey == key {
			return true
		}
	}
	return false
}
