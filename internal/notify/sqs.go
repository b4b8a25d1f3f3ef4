package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"dicommart/internal/config"
	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// sqsAPI is the part of *sqs.Client the publisher uses.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as one queue message.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher builds an SQS client from cfg. The region defaults to the
// source region; static credentials are taken from the source settings when
// present, otherwise the default AWS chain applies.
func NewSQSPublisher(ctx context.Context, cfg config.NotifyConfig, src config.SourceConfig) (*SQSPublisher, error) {
	if cfg.SQSQueueURL == "" {
		return nil, errors.NewConfigError("sqs notifier needs a queue url", nil)
	}

	region := cfg.SQSRegion
	if region == "" {
		region = src.Region
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if src.AccessKeyID != "" && src.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(src.AccessKeyID, src.SecretAccessKey, src.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewConfigError("load aws config", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if src.Endpoint != "" {
			o.BaseEndpoint = aws.String(src.Endpoint)
		}
	})
	return NewSQSPublisherFromClient(client, cfg.SQSQueueURL), nil
}

// NewSQSPublisherFromClient wraps an existing client.
func NewSQSPublisherFromClient(client sqsAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish implements Publisher.
func (p *SQSPublisher) Publish(ctx context.Context, event domain.RunEvent) error {
	body, err := encode(event)
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
			"run_id":     {DataType: aws.String("String"), StringValue: aws.String(event.RunID)},
		},
	})
	if err != nil {
		return errors.NewAppError(errors.ErrTypeSource, "send sqs message", err).
			WithContext("queue_url", p.queueURL).
			WithContext("run_id", event.RunID)
	}
	return nil
}

// Close implements Publisher.
func (p *SQSPublisher) Close() error { return nil }
