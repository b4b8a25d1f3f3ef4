package source

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dicommart/internal/config"
	apperrors "dicommart/internal/errors"
)

// S3 reads and writes objects in one bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds an S3 backend from cfg. Static credentials are used only when
// both the key id and the secret are set; otherwise the default AWS chain
// applies.
func NewS3(ctx context.Context, cfg config.SourceConfig) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewConfigError("load aws config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3FromClient(client, cfg.Bucket), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Bucket returns the bucket name.
func (s *S3) Bucket() string { return s.bucket }

// WithBucket returns a backend on another bucket sharing the same client.
func (s *S3) WithBucket(bucket string) *S3 {
	return &S3{client: s.client, bucket: bucket}
}

// List returns every object under prefix, following continuation tokens,
// sorted by key.
func (s *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	var (
		out   []Object
		token *string
	)
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, apperrors.NewSourceError("list objects", err).
				WithContext("bucket", s.bucket).
				WithContext("prefix", prefix)
		}
		for _, obj := range page.Contents {
			o := Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			out = append(out, o)
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Fetch downloads key in full.
func (s *S3) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.NewSourceError("get object", err).WithContext("key", key)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(io.LimitReader(obj.Body, config.MaxObjectSize+1))
	if err != nil {
		return nil, apperrors.NewSourceError("read object body", err).WithContext("key", key)
	}
	if len(data) > config.MaxObjectSize {
		return nil, apperrors.NewSourceError("object exceeds size limit", nil).WithContext("key", key)
	}
	return data, nil
}

// Upload writes body to key, replacing any existing object.
func (s *S3) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperrors.NewSourceError("put object", err).
			WithContext("bucket", s.bucket).
			WithContext("key", key)
	}
	return nil
}
