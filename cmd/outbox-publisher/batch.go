package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

// pending is a claimed row that resolved against the registry.
type pending struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
}

func (p pending) topic() string { return p.resolved.Descriptor.Topic }

// errPublishStalled marks a batch where every publish failed and rows were
// left for retry. Run backs off on it instead of polling again at once.
var errPublishStalled = errors.New("no outbox events published")

// outcome is what happens to a row after a failed publish.
type outcome struct {
	retry  bool
	reason enums.OutboxDLQErrorReason
	err    error
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	started := s.now()
	processed := false
	published, retrying := 0, 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		var ready []pending
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, nil, outcome{reason: enums.OutboxDLQReasonNonRetryable, err: err}); err != nil {
					return err
				}
				continue
			}
			ready = append(ready, pending{event: event, resolved: resolved})
		}

		for _, group := range groupByTopic(ready) {
			results := s.publishTopic(ctx, group)
			for i, p := range group {
				retry, err := s.settle(ctx, tx, p, results[i])
				if err != nil {
					return err
				}
				switch {
				case retry:
					retrying++
				case results[i] == nil:
					published++
				}
			}
		}
		return nil
	})
	if processed {
		s.metrics.ObserveBatch(s.now().Sub(started))
	}
	if err == nil && published == 0 && retrying > 0 {
		err = fmt.Errorf("%w: %d events awaiting retry", errPublishStalled, retrying)
	}
	return processed, err
}

// groupByTopic keeps first-seen topic order and row order within a topic,
// so per-aggregate ordering survives batching.
func groupByTopic(ready []pending) [][]pending {
	index := map[string]int{}
	var groups [][]pending
	for _, p := range ready {
		i, ok := index[p.topic()]
		if !ok {
			i = len(groups)
			index[p.topic()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

// publishTopic writes one topic's rows in a single call and returns one
// error slot per row.
func (s *Service) publishTopic(ctx context.Context, group []pending) []error {
	results := make([]error, len(group))
	topic := group[0].topic()

	pub := s.writerFor(topic)
	if pub == nil {
		missing := registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		for i := range results {
			results[i] = missing
		}
		return results
	}

	msgs := make([]kafkago.Message, len(group))
	for i, p := range group {
		msgs[i] = buildMessage(p)
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	err := pub.WriteMessages(publishCtx, msgs...)
	if err == nil {
		return results
	}

	var perMessage kafkago.WriteErrors
	if errors.As(err, &perMessage) && len(perMessage) == len(group) {
		copy(results, perMessage)
		return results
	}
	for i := range results {
		results[i] = err
	}
	return results
}

func buildMessage(p pending) kafkago.Message {
	event := p.event
	aggregateID := event.AggregateID.String()
	return kafkago.Message{
		Key:   []byte(aggregateID),
		Value: event.Payload,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(p.resolved.Envelope.EventID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
			{Key: "aggregate_id", Value: []byte(aggregateID)},
			{Key: "created_at", Value: []byte(event.CreatedAt.Format(time.RFC3339Nano))},
		},
		Time: event.CreatedAt,
	}
}

// settle records the publish result for one row and reports whether the row
// stays queued for another attempt.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, p pending, publishErr error) (bool, error) {
	event := p.event
	if publishErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return false, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, s.eventFields(event, p.resolved)), "outbox event published")
		return false, nil
	}

	next := decide(event.AttemptCount, s.maxAttempts, publishErr)
	if !next.retry {
		return false, s.deadLetter(ctx, tx, event, p.resolved, next)
	}

	fields := s.eventFields(event, p.resolved)
	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = publishErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.repo.MarkFailedTx(tx, event.ID, publishErr); err != nil {
		return false, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return true, nil
}

// decide classifies a failed publish for a row that has already been tried
// attempts times.
func decide(attempts, maxAttempts int, err error) outcome {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcome{reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	if attempts+1 >= maxAttempts {
		return outcome{reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("max publish attempts reached: %w", err)}
	}
	return outcome{retry: true, err: err}
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent, o outcome) error {
	fields := s.eventFields(event, resolved)
	fields["error_reason"] = o.reason
	fields["error"] = o.err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	if err := s.dlq.InsertTx(tx, outbox.NewDLQEntry(event, o.reason, o.err, s.now())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, o.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(o.reason))
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if env := resolved.Envelope; env.EventID != "" {
			fields["event_id"] = env.EventID
			fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
