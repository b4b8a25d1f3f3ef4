package operations

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"dicommart/pkg/contracts/domain"
)

type failingSink struct{ calls int }

func (f *failingSink) Publish(context.Context, domain.RunEvent) error {
	f.calls++
	return fmt.Errorf("broker unavailable")
}

func TestEventBroadcaster_FansOutInOrder(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	broken := &failingSink{}
	eb := NewEventBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)), first, nil, broken)
	eb.AddSink(second)
	defer eb.Stop()

	ctx := context.Background()
	for _, typ := range []string{domain.EventRunStarted, domain.EventRunPhase, domain.EventRunCompleted} {
		assert.NoError(t, eb.Publish(ctx, domain.RunEvent{Type: typ, RunID: "r1"}))
	}

	want := []string{domain.EventRunStarted, domain.EventRunPhase, domain.EventRunCompleted}
	assert.Equal(t, want, first.types())
	assert.Equal(t, want, second.types())
	assert.Equal(t, 3, broken.calls, "a failing sink keeps receiving events")
}

func TestEventBroadcaster_StoppedDropsEvents(t *testing.T) {
	sink := &recordingSink{}
	eb := NewEventBroadcaster(nil, sink)
	eb.Stop()
	eb.Stop()

	assert.NoError(t, eb.Publish(context.Background(), domain.RunEvent{Type: domain.EventRunStarted}))
	assert.Empty(t, sink.types())
}
