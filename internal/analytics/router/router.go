package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmlink/farmlink-backend/internal/analytics/types"
	"github.com/farmlink/farmlink-backend/pkg/logger"
	"github.com/farmlink/farmlink-backend/pkg/outbox/registry"
)

// ErrUnsupportedEventType marks envelopes the analytics sink does not record.
var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer persists analytics rows.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
}

// Router decodes envelopes with the shared payload registry and writes one
// order_events row per event.
type Router struct {
	decoders *registry.DecoderRegistry
	writer   Writer
	logg     *logger.Logger
}

// NewRouter wires the router to the provided writer.
func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		decoders: registry.NewPayloadDecoders(),
		writer:   writer,
		logg:     logg,
	}, nil
}

// Handle implements worker.Handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.EventType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrUnsupportedEventType, envelope.EventType)
	}

	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEventType, err)
	}

	row, err := BuildRow(envelope, payload)
	if err != nil {
		return err
	}
	if err := r.writer.InsertOrderEvent(ctx, row); err != nil {
		return err
	}
	r.logg.Info(r.logg.WithField(ctx, "order_id", row.OrderID), "order event row written")
	return nil
}
