// Package produce is the read-only view of farmer listings used at order time.
package produce

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

// Snapshot is the price and ownership data an order copies at creation.
type Snapshot struct {
	ProduceID uuid.UUID
	FarmerID  uuid.UUID
	Name      string
	Unit      enums.Unit
	UnitPrice decimal.Decimal
	Currency  string
}

// Catalog resolves listings for order placement.
type Catalog interface {
	Lookup(ctx context.Context, produceID uuid.UUID) (*Snapshot, error)
}

// Repository loads listings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a listing regardless of its active flag.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProduceListing, error) {
	var listing models.ProduceListing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

type catalog struct {
	repo *Repository
}

func NewCatalog(repo *Repository) (Catalog, error) {
	if repo == nil {
		return nil, fmt.Errorf("produce repository required")
	}
	return &catalog{repo: repo}, nil
}

func (c *catalog) Lookup(ctx context.Context, produceID uuid.UUID) (*Snapshot, error) {
	if produceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "produce id required")
	}
	listing, err := c.repo.FindByID(ctx, produceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "produce listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load produce listing")
	}
	if !listing.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "produce listing is not available").
			WithDetails(map[string]any{"produce_id": produceID})
	}
	if !listing.UnitPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "produce listing has no price")
	}
	return &Snapshot{
		ProduceID: listing.ID,
		FarmerID:  listing.FarmerID,
		Name:      listing.Name,
		Unit:      listing.Unit,
		UnitPrice: listing.UnitPrice,
		Currency:  listing.Currency,
	}, nil
}
