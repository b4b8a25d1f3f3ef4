package operations

import (
	"context"
	"log/slog"
	"sync"

	"dicommart/pkg/contracts/domain"
)

// EventBroadcaster fans run events out to its sinks. Events are delivered
// one at a time in publish order; a failing sink is logged and never
// reported to the publisher.
type EventBroadcaster struct {
	sinks   []EventSink
	logger  *slog.Logger
	updates chan eventRequest
	stop    chan struct{}
	once    sync.Once
}

type eventRequest struct {
	ctx   context.Context
	event domain.RunEvent
	done  chan struct{}
}

// NewEventBroadcaster creates a broadcaster over sinks. Nil sinks are
// ignored.
func NewEventBroadcaster(logger *slog.Logger, sinks ...EventSink) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	eb := &EventBroadcaster{
		logger:  logger.With(slog.String("component", "event_broadcaster")),
		updates: make(chan eventRequest, 100),
		stop:    make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			eb.sinks = append(eb.sinks, s)
		}
	}

	go eb.processEvents()
	return eb
}

// AddSink registers another sink. It must be called before events flow.
func (eb *EventBroadcaster) AddSink(sink EventSink) {
	if sink != nil {
		eb.sinks = append(eb.sinks, sink)
	}
}

func (eb *EventBroadcaster) processEvents() {
	for {
		select {
		case <-eb.stop:
			return
		case req := <-eb.updates:
			select {
			case <-eb.stop:
				close(req.done)
				return
			default:
			}
			eb.deliver(req.ctx, req.event)
			close(req.done)
		}
	}
}

func (eb *EventBroadcaster) deliver(ctx context.Context, event domain.RunEvent) {
	for _, sink := range eb.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			eb.logger.WarnContext(ctx, "run event delivery failed",
				slog.String("type", event.Type),
				slog.String("run_id", event.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Publish delivers event to every sink and waits until they are done.
// It always returns nil.
func (eb *EventBroadcaster) Publish(ctx context.Context, event domain.RunEvent) error {
	select {
	case <-eb.stop:
		return nil
	default:
	}

	req := eventRequest{
		ctx:   context.WithoutCancel(ctx),
		event: event,
		done:  make(chan struct{}),
	}

	select {
	case eb.updates <- req:
	case <-eb.stop:
		return nil
	}

	select {
	case <-req.done:
	case <-eb.stop:
	}
	return nil
}

// Stop shuts the delivery loop down. Later events are dropped.
func (eb *EventBroadcaster) Stop() {
	eb.once.Do(func() { close(eb.stop) })
}
