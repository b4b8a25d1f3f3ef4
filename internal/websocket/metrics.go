package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// hubMetrics holds the hub's instruments. A nil *hubMetrics records nothing.
type hubMetrics struct {
	connections     metric.Int64Counter
	active          metric.Int64UpDownCounter
	duration        metric.Float64Histogram
	messagesSent    metric.Int64Counter
	droppedMessages metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		return nil, nil
	}
	var (
		m   hubMetrics
		err error
	)
	if m.connections, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.messagesSent, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages handed to client send buffers")); err != nil {
		return nil, err
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because a client buffer was full")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *hubMetrics) connected(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *hubMetrics) disconnected(ctx context.Context, d time.Duration, reason string) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *hubMetrics) sent(ctx context.Context, msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.messagesSent.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *hubMetrics) dropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1)
}
