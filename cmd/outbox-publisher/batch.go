package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/outbox/registry"
)

const (
	terminalNonRetryable = "non_retryable"
	terminalMaxAttempts  = "max_attempts"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeTerminal
)

// delivery tracks one outbox row from resolution to its publish ack.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

func (d *delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

// processBatch claims a batch, hands every row to Pub/Sub before waiting on
// any ack, then records each row's outcome. It reports whether any rows were
// claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		claimed = true

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		deliveries := make([]*delivery, len(events))
		for i, event := range events {
			deliveries[i] = s.send(publishCtx, event)
		}
		for _, d := range deliveries {
			if d.err == nil {
				_, d.err = d.result.Get(publishCtx)
			}
			if err := s.settle(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// send resolves the row and starts its publish. Failures that no retry can
// fix come back as registry.NonRetryableError on the delivery.
func (s *Service) send(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}
	d.resolved, d.err = s.registry.Resolve(event)
	if d.err != nil {
		return d
	}

	pub := s.publisherFactory(d.topic())
	if pub == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", d.topic()))
		return d
	}
	d.result = pub.Publish(ctx, buildMessage(event, d.resolved.Envelope))
	if d.result == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", d.topic()))
	}
	return d
}

func (s *Service) classify(d *delivery) (outcome, string) {
	if d.err == nil {
		return outcomePublished, ""
	}
	if registry.IsNonRetryable(d.err) {
		return outcomeTerminal, terminalNonRetryable
	}
	if d.event.AttemptCount+1 >= s.maxAttempts {
		return outcomeTerminal, terminalMaxAttempts
	}
	return outcomeRetry, ""
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	eventType := string(d.event.EventType)
	fields := s.deliveryFields(d)
	state, reason := s.classify(d)

	switch state {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")

	case outcomeRetry:
		fields["attempt_count"] = d.event.AttemptCount + 1
		fields["error"] = d.err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
		s.metrics.IncRetried(eventType)

	case outcomeTerminal:
		cause := d.err
		if reason == terminalMaxAttempts {
			cause = fmt.Errorf("max publish attempts reached: %w", d.err)
		}
		fields["terminal_reason"] = reason
		fields["error"] = cause.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event parked")
		// terminal_at keeps the row out of future fetches; the payload stays
		// for manual replay.
		if err := s.repo.MarkTerminalTx(tx, d.event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
		s.metrics.IncTerminal(eventType, reason)
	}
	return nil
}

func (s *Service) deliveryFields(d *delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
		"batch_size":     s.batchSize,
	}
	if topic := d.topic(); topic != "" {
		fields["topic"] = topic
	}
	if d.resolved != nil && d.resolved.Envelope.EventID != "" {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["occurred_at"] = d.resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	return fields
}
