// Package events publishes run lifecycle events to the outbound topics.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Emitter publishes clover run events.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// RunCompleted emits a run.completed event with the run's final stats.
func (e *Emitter) RunCompleted(ctx context.Context, run *models.ReconcileRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunCompleted")
	defer span.End()

	return e.publishRun(ctx, TopicRunsCompleted, EventTypeRunCompleted, run)
}

// RunFailed emits a run.failed event carrying the failure message.
func (e *Emitter) RunFailed(ctx context.Context, run *models.ReconcileRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunFailed")
	defer span.End()

	return e.publishRun(ctx, TopicRunsFailed, EventTypeRunFailed, run)
}

// ExceptionsRaised emits one batched event with the run's exception counts
// by kind.
func (e *Emitter) ExceptionsRaised(ctx context.Context, run *models.ReconcileRun, kinds map[string]int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ExceptionsRaised")
	defer span.End()

	total := 0
	for _, count := range kinds {
		total += count
	}

	payload, err := json.Marshal(&ExceptionsEvent{
		RunID:    run.ID,
		TenantID: run.TenantID,
		Total:    total,
		Kinds:    kinds,
	})
	if err != nil {
		return err
	}

	if err := e.producer.Publish(ctx, TopicExceptionsRaised, e.envelope(EventTypeExceptionsRaised, run.TenantID, payload)); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit exceptions.raised event")
		return err
	}
	return nil
}

func (e *Emitter) publishRun(ctx context.Context, topic, eventType string, run *models.ReconcileRun) error {
	payload, err := json.Marshal(&RunEvent{
		RunID:            run.ID,
		TenantID:         run.TenantID,
		Status:           string(run.Status),
		InputFingerprint: run.InputFingerprint,
		Stats:            run.Stats.Data,
		Error:            run.Error,
	})
	if err != nil {
		return err
	}

	if err := e.producer.Publish(ctx, topic, e.envelope(eventType, run.TenantID, payload)); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": run.ID,
			"type":   eventType,
		}).Error("Failed to emit run event")
		return err
	}
	return nil
}

func (e *Emitter) envelope(eventType, tenantID string, payload json.RawMessage) *kafka.Envelope {
	return &kafka.Envelope{
		Type:          eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}
}
