// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package webhooks

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error describes internal webhooks error.
	Error = errs.Class("webhooks")

	// ErrDuplicate is returned when an event was already recorded.
	ErrDuplicate = errs.Class("duplicate webhook event")

	mon = monkit.Package()
)

// Handler processes one recorded webhook event.
type Handler interface {
	// Handle applies the side effects of the event.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle implements Handler.
func (fn HandlerFunc) Handle(ctx context.Context, event Event) error { return fn(ctx, event) }

// Config contains configuration for the webhook ledger.
type Config struct {
	MaxRetries int `help:"how many times a failed event handler gets re-run" default:"3"`
}

// Service records webhook events and runs their handlers, tracking the
// outcome per event.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	events Events
	config Config

	handlers map[Source]Handler

	nowFn func() time.Time
}

// NewService creates a new webhook ledger service.
func NewService(log *zap.Logger, events Events, config Config) *Service {
	return &Service{
		log:      log,
		events:   events,
		config:   config,
		handlers: make(map[Source]Handler),
		nowFn:    time.Now,
	}
}

// TestSetNow allows tests to have the service act as if the current time is
// whatever they want.
func (service *Service) TestSetNow(nowFn func() time.Time) {
	service.nowFn = nowFn
}

// RegisterHandler installs the handler for events of the given source.
func (service *Service) RegisterHandler(source Source, handler Handler) {
	service.handlers[source] = handler
}

// Record stores an incoming event in the ledger. It returns ErrDuplicate
// when the same (source, eventID, eventType) was seen before.
func (service *Service) Record(ctx context.Context, source Source, eventType, eventID string, payload []byte, signature string) (_ *Event, err error) {
	defer mon.Task()(&ctx)(&err)

	event, inserted, err := service.events.Insert(ctx, &Event{
		Source:    source,
		EventType: eventType,
		EventID:   eventID,
		Payload:   payload,
		Signature: signature,
		Status:    EventPending,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !inserted {
		return nil, ErrDuplicate.New("%s %s %s", source, eventID, eventType)
	}

	mon.Counter("webhook_events_recorded").Inc(1)
	return event, nil
}

// Process runs the registered handler for the event and persists the
// outcome. Handler errors are recorded in the ledger, not returned.
func (service *Service) Process(ctx context.Context, event *Event) (err error) {
	defer mon.Task()(&ctx)(&err)

	handler, ok := service.handlers[event.Source]
	if !ok {
		return Error.New("no handler registered for source %s", event.Source)
	}

	err = service.events.SetStatus(ctx, event.ID, EventProcessing, "", nil)
	if err != nil {
		return Error.Wrap(err)
	}

	handlerErr := handler.Handle(ctx, *event)

	now := service.nowFn()
	if handlerErr != nil {
		service.log.Error("webhook handler failed",
			zap.String("source", string(event.Source)),
			zap.String("eventType", event.EventType),
			zap.String("eventID", event.EventID),
			zap.Error(handlerErr))
		mon.Counter("webhook_events_failed").Inc(1)
		return Error.Wrap(service.events.SetStatus(ctx, event.ID, EventFailed, handlerErr.Error(), &now))
	}

	mon.Counter("webhook_events_completed").Inc(1)
	return Error.Wrap(service.events.SetStatus(ctx, event.ID, EventCompleted, "", &now))
}

// RetryFailed re-runs handlers for failed events that have retry budget
// left. It returns how many events were retried.
func (service *Service) RetryFailed(ctx context.Context) (retried int, err error) {
	defer mon.Task()(&ctx)(&err)

	failed, err := service.events.ListFailed(ctx, service.config.MaxRetries)
	if err != nil {
		return 0, Error.Wrap(err)
	}

	for i := range failed {
		event := failed[i]
		if err := service.Process(ctx, &event); err != nil {
			service.log.Error("webhook retry failed", zap.String("eventID", event.EventID), zap.Error(err))
			continue
		}
		retried++
	}
	return retried, nil
}

// ListRecent returns the newest ledger entries for monitoring.
func (service *Service) ListRecent(ctx context.Context, limit int) (_ []Event, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return service.events.ListRecent(ctx, limit)
}
