package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink-backend/internal/produce"
	"github.com/farmlink/farmlink-backend/internal/tracking"
	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db"
	"github.com/farmlink/farmlink-backend/pkg/db/dbtest"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/outbox"
	"github.com/farmlink/farmlink-backend/pkg/types"
)

type fixture struct {
	client  *db.Client
	svc     Service
	repo    Repository
	ledger  tracking.Ledger
	listing models.ProduceListing
	buyer   auth.Actor
	farmer  auth.Actor
	admin   auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)

	listing := models.ProduceListing{
		ID:        uuid.New(),
		FarmerID:  uuid.New(),
		Name:      "Onions",
		Unit:      enums.UnitKilogram,
		UnitPrice: decimal.NewFromInt(50),
		Currency:  "INR",
		Active:    true,
	}
	require.NoError(t, client.DB().Create(&listing).Error)

	ledger, err := tracking.NewLedger(tracking.NewRepository(client.DB()))
	require.NoError(t, err)
	catalog, err := produce.NewCatalog(produce.NewRepository(client.DB()))
	require.NoError(t, err)
	repo := NewRepository(client.DB())

	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Ledger:  ledger,
		Catalog: catalog,
	})
	require.NoError(t, err)

	return &fixture{
		client:  client,
		svc:     svc,
		repo:    repo,
		ledger:  ledger,
		listing: listing,
		buyer:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
		farmer:  auth.Actor{UserID: listing.FarmerID, Role: enums.ActorRoleFarmer},
		admin:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
	}
}

func (f *fixture) createOrder(t *testing.T, qty string) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		Actor:     f.buyer,
		ProduceID: f.listing.ID,
		Quantity:  decimal.RequireFromString(qty),
		Unit:      types.Unit{Code: enums.UnitKilogram},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) move(t *testing.T, orderID uuid.UUID, actor auth.Actor, target enums.OrderStatus) *models.Order {
	t.Helper()
	order, err := f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: orderID, Actor: actor, Target: target})
	require.NoError(t, err)
	return order
}

func countOutbox(t *testing.T, client *db.Client, orderID uuid.UUID, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", orderID, eventType).
		Count(&n).Error)
	return n
}

func TestHappyPathFulfillment(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "10")

	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, 1, order.Version)
	assert.EqualValues(t, 1, countOutbox(t, f.client, order.ID, enums.EventOrderCreated))

	steps := []enums.OrderStatus{
		enums.OrderStatusAccepted,
		enums.OrderStatusPacked,
		enums.OrderStatusShipped,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
	}
	for i, target := range steps {
		updated := f.move(t, order.ID, f.farmer, target)
		assert.Equal(t, target, updated.Status)
		assert.Equal(t, i+2, updated.Version)

		events, err := f.ledger.List(context.Background(), order.ID)
		require.NoError(t, err)
		// order_placed plus one entry per transition so far
		require.Len(t, events, i+2)
		assert.Equal(t, enums.TrackingStatusKey(target), events[len(events)-1].StatusKey)
	}
	assert.EqualValues(t, len(steps), countOutbox(t, f.client, order.ID, enums.EventOrderStatusChanged))
}

func TestTotalAmountIgnoresLaterPriceChanges(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "2.5")
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("125")))

	require.NoError(t, f.client.DB().Model(&models.ProduceListing{}).
		Where("id = ?", f.listing.ID).
		Update("unit_price", decimal.NewFromInt(80)).Error)

	view, err := f.svc.Get(context.Background(), order.ID, f.buyer)
	require.NoError(t, err)
	assert.True(t, view.Order.TotalAmount.Equal(decimal.RequireFromString("125")))
	assert.True(t, view.Order.UnitPriceSnapshot.Equal(decimal.NewFromInt(50)))
}

func TestSkippedTransitionIsForbidden(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")

	_, err := f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: order.ID, Actor: f.farmer, Target: enums.OrderStatusShipped})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition))

	stored, err := Load(context.Background(), f.repo, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestTerminalStatusRejectsFurtherTransitions(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")
	f.move(t, order.ID, f.buyer, enums.OrderStatusCancelled)

	for _, target := range []enums.OrderStatus{enums.OrderStatusAccepted, enums.OrderStatusPending, enums.OrderStatusRejected} {
		_, err := f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: order.ID, Actor: f.farmer, Target: target})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition), "target %s", target)
	}
}

func TestWrongOwnerIsForbidden(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")
	stranger := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleFarmer}

	_, err := f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: order.ID, Actor: stranger, Target: enums.OrderStatusAccepted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition))

	_, err = f.svc.Get(context.Background(), order.ID, stranger)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestApplyTransitionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: uuid.New(), Actor: f.farmer, Target: enums.OrderStatusAccepted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")

	_, err := Save(context.Background(), f.repo, order, map[string]any{"note": "first"})
	require.NoError(t, err)

	// order still carries version 1
	_, err = Save(context.Background(), f.repo, order, map[string]any{"note": "second"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeConflict).Retryable)
}

func TestConcurrentAcceptAndCancelOneWins(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: order.ID, Actor: f.farmer, Target: enums.OrderStatusAccepted})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.ApplyTransition(context.Background(), TransitionInput{OrderID: order.ID, Actor: f.buyer, Target: enums.OrderStatusCancelled})
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code := pkgerrors.CodeOf(err)
		assert.True(t, code == pkgerrors.CodeForbiddenTransition || code == pkgerrors.CodeConflict, "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := Load(context.Background(), f.repo, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestUpdateTrackingDetails(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "3")

	cost := decimal.RequireFromString("40")
	eta := time.Now().Add(48 * time.Hour)
	input := TrackingDetailsInput{
		OrderID:           order.ID,
		Actor:             f.farmer,
		TrackingNumber:    "DL42",
		CarrierName:       "Delhivery",
		ShippingCost:      &cost,
		EstimatedDelivery: &eta,
	}

	_, err := f.svc.UpdateTrackingDetails(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition), "pending orders cannot carry tracking")

	f.move(t, order.ID, f.farmer, enums.OrderStatusAccepted)
	updated, err := f.svc.UpdateTrackingDetails(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAccepted, updated.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, updated.PaymentStatus)
	require.NotNil(t, updated.CarrierTrackingURL)
	assert.Equal(t, "https://www.delhivery.com/track/package/DL42", *updated.CarrierTrackingURL)
	assert.True(t, updated.ShippingCost.Equal(cost))
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(150)))

	input.Actor = f.buyer
	_, err = f.svc.UpdateTrackingDetails(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	events, err := f.ledger.List(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, tracking.HasKey(events, enums.TrackingUpdated))
	assert.EqualValues(t, 1, countOutbox(t, f.client, order.ID, enums.EventOrderTrackingUpdated))
}

func TestUpdateTrackingDetailsEditKeepsFirstLedgerEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "3")
	f.move(t, order.ID, f.farmer, enums.OrderStatusAccepted)

	input := TrackingDetailsInput{OrderID: order.ID, Actor: f.farmer, TrackingNumber: "DL42", CarrierName: "Delhivery"}
	_, err := f.svc.UpdateTrackingDetails(ctx, input)
	require.NoError(t, err)

	input.TrackingNumber, input.CarrierName = "BD77", "BlueDart"
	updated, err := f.svc.UpdateTrackingDetails(ctx, input)
	require.NoError(t, err)
	require.NotNil(t, updated.TrackingNumber)
	assert.Equal(t, "BD77", *updated.TrackingNumber)
	require.NotNil(t, updated.CarrierName)
	assert.Equal(t, "BlueDart", *updated.CarrierName)

	events, err := f.ledger.List(ctx, order.ID)
	require.NoError(t, err)
	var entries []models.TrackingEvent
	for _, e := range events {
		if e.StatusKey == enums.TrackingUpdated {
			entries = append(entries, e)
		}
	}
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].TrackingNumber)
	assert.Equal(t, "DL42", *entries[0].TrackingNumber)
	assert.EqualValues(t, 2, countOutbox(t, f.client, order.ID, enums.EventOrderTrackingUpdated))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateOrderInput{Actor: f.farmer, ProduceID: f.listing.ID, Quantity: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Create(ctx, CreateOrderInput{Actor: f.buyer, ProduceID: f.listing.ID, Quantity: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{Actor: f.buyer, ProduceID: f.listing.ID, Quantity: decimal.NewFromInt(1), Unit: types.Unit{Code: enums.UnitDozen}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{Actor: f.buyer, ProduceID: uuid.New(), Quantity: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetViewForAdminIncludesLedger(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "1")
	f.move(t, order.ID, f.farmer, enums.OrderStatusAccepted)

	view, err := f.svc.Get(context.Background(), order.ID, f.admin)
	require.NoError(t, err)
	require.Len(t, view.Tracking, 2)
	assert.Equal(t, enums.TrackingOrderPlaced, view.Tracking[0].StatusKey)
	assert.Equal(t, PaymentStepPending, view.PaymentStep)
	assert.Empty(t, view.AllowedTransitions)

	farmerView, err := f.svc.Get(context.Background(), order.ID, f.farmer)
	require.NoError(t, err)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusPacked}, farmerView.AllowedTransitions)
}

func TestDerivePaymentStep(t *testing.T) {
	accepted := []models.TrackingEvent{{StatusKey: enums.TrackingOrderPlaced}, {StatusKey: enums.TrackingAccepted}}
	cases := []struct {
		name   string
		order  models.Order
		events []models.TrackingEvent
		want   PaymentStep
	}{
		{"unpaid online", models.Order{PaymentMethod: enums.PaymentMethodNone, PaymentStatus: enums.PaymentStatusUnpaid}, accepted, PaymentStepPending},
		{"paid", models.Order{PaymentMethod: enums.PaymentMethodRazorpay, PaymentStatus: enums.PaymentStatusPaid}, accepted, PaymentStepCompleted},
		{"refunded", models.Order{PaymentStatus: enums.PaymentStatusRefunded}, nil, PaymentStepRefunded},
		{"cod accepted", models.Order{PaymentMethod: enums.PaymentMethodCOD, PaymentStatus: enums.PaymentStatusUnpaid}, accepted, PaymentStepSkipped},
		{"cod pending", models.Order{PaymentMethod: enums.PaymentMethodCOD, PaymentStatus: enums.PaymentStatusUnpaid}, accepted[:1], PaymentStepPending},
		{"cod collected", models.Order{PaymentMethod: enums.PaymentMethodCOD, PaymentStatus: enums.PaymentStatusPaid}, accepted, PaymentStepCompleted},
	}
	for _, tc := range cases {
		if got := DerivePaymentStep(&tc.order, tc.events); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
