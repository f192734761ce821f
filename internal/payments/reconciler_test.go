package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

func TestCancelWithRefundPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, withIntent("order_abc"))

	captured, err := f.svc.VerifyPayment(ctx, f.verifyInput(order, "pay_001"))
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusCancelled).Error)

	refunded, err := f.reconciler.CancelWithRefund(ctx, order.ID, f.buyer, enums.RefundReasonCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.PaymentStatus)
	assert.Equal(t, captured.Order.Version+1, refunded.Version)

	var intent models.RefundIntent
	require.NoError(t, f.client.DB().Where("order_id = ?", order.ID).First(&intent).Error)
	assert.Equal(t, enums.RefundReasonCancelled, intent.Reason)
	assert.True(t, intent.Amount.Equal(order.TotalAmount))
	require.NotNil(t, intent.RequestedBy)
	assert.Equal(t, f.buyer.UserID, *intent.RequestedBy)

	again, err := f.reconciler.CancelWithRefund(ctx, order.ID, f.buyer, enums.RefundReasonCancelled)
	require.NoError(t, err)
	assert.Equal(t, refunded.Version, again.Version)
	assert.Equal(t, enums.PaymentStatusRefunded, again.PaymentStatus)

	assert.EqualValues(t, 1, count(t, f.client, &models.RefundIntent{}, "order_id = ?", order.ID))
	assert.EqualValues(t, 1, count(t, f.client, &models.TrackingEvent{}, "order_id = ? AND status_key = ?", order.ID, enums.TrackingRefundInitiated))
	assert.EqualValues(t, 1, count(t, f.client, &models.OutboxEvent{}, "aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderRefunded))
}

func TestCancelWithRefundDerivesReasonFromStatus(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusRejected
		o.PaymentStatus = enums.PaymentStatusPaid
		o.PaymentMethod = enums.PaymentMethodRazorpay
	})

	refunded, err := f.reconciler.CancelWithRefund(context.Background(), order.ID, f.farmer, "")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.PaymentStatus)

	var intent models.RefundIntent
	require.NoError(t, f.client.DB().Where("order_id = ?", order.ID).First(&intent).Error)
	assert.Equal(t, enums.RefundReasonRejected, intent.Reason)
	assert.Nil(t, intent.PaymentRecordID)
}

func TestCancelWithRefundUnpaidIsNoop(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, func(o *models.Order) { o.Status = enums.OrderStatusCancelled })

	result, err := f.reconciler.CancelWithRefund(context.Background(), order.ID, f.buyer, enums.RefundReasonCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusUnpaid, result.PaymentStatus)
	assert.Equal(t, 1, result.Version)
	assert.EqualValues(t, 0, count(t, f.client, &models.RefundIntent{}, "order_id = ?", order.ID))
}

func TestCancelWithRefundRequiresClosedOrder(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusAccepted
		o.PaymentStatus = enums.PaymentStatusPaid
	})

	_, err := f.reconciler.CancelWithRefund(context.Background(), order.ID, f.buyer, enums.RefundReasonCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition))
	assert.Equal(t, enums.PaymentStatusPaid, f.reload(t, order.ID).PaymentStatus)
}
