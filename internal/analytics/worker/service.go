package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/internal/analytics/router"
	"github.com/farmlink/farmlink-backend/internal/analytics/types"
	"github.com/farmlink/farmlink-backend/pkg/logger"
)

const analyticsConsumerName = "analytics"

// Handler defines how to process analytics envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// receiver is the part of a Pub/Sub subscriber the worker drives.
type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type verdict bool

const (
	ack  verdict = false
	nack verdict = true
)

// Service consumes order events from Pub/Sub. Each event id is claimed in
// Redis before the handler runs and released again if the handler fails, so
// a redelivery is handled at most once after a success.
type Service struct {
	subscription receiver
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription receiver, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, manager: manager, logg: logg}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process decides the fate of one message. Malformed and unsupported events
// are acked and dropped; only transient failures are nacked for redelivery.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	started := time.Now()
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decodeEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "invalid analytics envelope")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID.String(),
		"occurred_at":  env.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		s.logg.Warn(ctx, "invalid event id")
		return ack
	}

	seen, err := s.manager.CheckAndMarkProcessed(ctx, analyticsConsumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "idempotency check failed", err)
		return nack
	case seen:
		s.logg.Info(ctx, "event already processed")
		return ack
	}

	err = s.handler.Handle(ctx, *env)
	switch {
	case err == nil:
		s.logg.Info(s.logg.WithField(ctx, "duration_ms", time.Since(started).Milliseconds()), "analytics event recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "dropping unsupported analytics event")
		return ack
	}

	s.logg.Error(ctx, "handler error", err)
	if relErr := s.manager.Delete(ctx, analyticsConsumerName, eventID); relErr != nil {
		s.logg.Error(ctx, "failed to release idempotency key", relErr)
	}
	return nack
}
