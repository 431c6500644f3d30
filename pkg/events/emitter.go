// Package events emits export run lifecycle events
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventExportStarted   = "export.started"
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
)

// Publisher sends an export event to a broker
type Publisher interface {
	PublishExportEvent(ctx context.Context, event *kafka.ExportEvent) error
}

// Emitter turns export runs into events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitExportStarted emits export.started
func (e *Emitter) EmitExportStarted(ctx context.Context, run *models.ExportRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitExportStarted")
	defer span.End()

	return e.emit(ctx, newEvent(EventExportStarted, run))
}

// EmitExportCompleted emits export.completed carrying the run's element counts
func (e *Emitter) EmitExportCompleted(ctx context.Context, run *models.ExportRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitExportCompleted")
	defer span.End()

	event := newEvent(EventExportCompleted, run)
	data, err := json.Marshal(map[string]any{
		"node_count":        run.NodeCount,
		"entry_count":       run.EntryCount,
		"relation_count":    run.RelationCount,
		"association_count": run.AssociationCount,
		"resource_count":    run.ResourceCount,
	})
	if err != nil {
		return err
	}
	event.Data = data

	return e.emit(ctx, event)
}

// EmitExportFailed emits export.failed with the error that stopped the run
func (e *Emitter) EmitExportFailed(ctx context.Context, run *models.ExportRun, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitExportFailed")
	defer span.End()

	event := newEvent(EventExportFailed, run)
	if cause != nil {
		event.Error = cause.Error()
	}
	return e.emit(ctx, event)
}

func (e *Emitter) emit(ctx context.Context, event *kafka.ExportEvent) error {
	if err := e.publisher.PublishExportEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("failed to emit %s event", event.EventType)
		return err
	}
	return nil
}

func newEvent(eventType string, run *models.ExportRun) *kafka.ExportEvent {
	return &kafka.ExportEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		RunID:         run.ID,
		ChannelID:     run.ChannelID,
		Full:          run.Full,
	}
}
