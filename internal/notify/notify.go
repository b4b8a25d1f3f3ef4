// Package notify publishes run events outside the process.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"dicommart/internal/config"
	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// Drivers accepted by New.
const (
	DriverNone  = "none"
	DriverLog   = "log"
	DriverKafka = "kafka"
	DriverSQS   = "sqs"
)

// Publisher delivers run events to one destination.
type Publisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
	Close() error
}

// New builds the publisher selected by cfg.Notify. Region and static
// credentials for SQS fall back to the source settings.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Notify.Driver {
	case "", DriverNone:
		return Nop{}, nil
	case DriverLog:
		return NewLogPublisher(logger), nil
	case DriverKafka:
		return NewKafkaPublisher(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
	case DriverSQS:
		return NewSQSPublisher(ctx, cfg.Notify, cfg.Source)
	default:
		return nil, errors.NewConfigError("unknown notify driver", nil).WithContext("driver", cfg.Notify.Driver)
	}
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, domain.RunEvent) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// LogPublisher writes every event to a structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher logging to logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(slog.String("component", "run_events"))}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, event domain.RunEvent) error {
	level := slog.LevelInfo
	if event.Type == domain.EventRunFailed {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "run event",
		slog.String("type", event.Type),
		slog.String("run_id", event.RunID),
		slog.String("phase", event.Phase),
		slog.String("message", event.Message),
		slog.Int("succeeded", event.Succeeded),
		slog.Int("failed", event.Failed),
	)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }

func encode(event domain.RunEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrTypeValidation, "encode run event", err)
	}
	return body, nil
}
