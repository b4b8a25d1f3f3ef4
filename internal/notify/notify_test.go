package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicommart/internal/config"
	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

var testEvent = domain.RunEvent{
	Type:      domain.EventRunCompleted,
	RunID:     "run-42",
	Succeeded: 7,
	Failed:    1,
	Time:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		notify  config.NotifyConfig
		want    any
		wantErr bool
	}{
		{name: "none", notify: config.NotifyConfig{Driver: DriverNone}, want: Nop{}},
		{name: "empty", notify: config.NotifyConfig{}, want: Nop{}},
		{name: "log", notify: config.NotifyConfig{Driver: DriverLog}, want: &LogPublisher{}},
		{
			name:   "kafka",
			notify: config.NotifyConfig{Driver: DriverKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "runs"},
			want:   &KafkaPublisher{},
		},
		{name: "kafka without topic", notify: config.NotifyConfig{Driver: DriverKafka}, wantErr: true},
		{
			name:   "sqs",
			notify: config.NotifyConfig{Driver: DriverSQS, SQSQueueURL: "https://sqs.eu-north-1.amazonaws.com/1/runs"},
			want:   &SQSPublisher{},
		},
		{name: "sqs without queue", notify: config.NotifyConfig{Driver: DriverSQS}, wantErr: true},
		{name: "unknown", notify: config.NotifyConfig{Driver: "smtp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Source.AccessKeyID = "test"
			cfg.Source.SecretAccessKey = "test"
			cfg.Notify = tt.notify

			pub, err := New(context.Background(), cfg, slog.Default())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, pub)
			assert.NoError(t, pub.Close())
		})
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, pub.Publish(context.Background(), testEvent))
	require.NoError(t, pub.Publish(context.Background(), domain.RunEvent{Type: domain.EventRunFailed, RunID: "run-43"}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "run-42", first["run_id"])
	assert.Equal(t, "run_events", first["component"])
	assert.Equal(t, "ERROR", second["level"])
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := &KafkaPublisher{writer: w, topic: "runs"}

	require.NoError(t, pub.Publish(context.Background(), testEvent))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("run-42"), msg.Key)
	assert.Equal(t, []kafka.Header{{Key: "event-type", Value: []byte(domain.EventRunCompleted)}}, msg.Headers)

	var got domain.RunEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, testEvent, got)

	w.err = fmt.Errorf("leader not available")
	err := pub.Publish(context.Background(), testEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestSQSPublisher(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisherFromClient(client, "https://queue/runs")

	require.NoError(t, pub.Publish(context.Background(), testEvent))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "https://queue/runs", aws.ToString(in.QueueUrl))
	assert.Equal(t, domain.EventRunCompleted, aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var got domain.RunEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &got))
	assert.Equal(t, "run-42", got.RunID)

	client.err = fmt.Errorf("throttled")
	assert.Error(t, pub.Publish(context.Background(), testEvent))
}
