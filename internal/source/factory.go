package source

import (
	"context"
	"fmt"

	"dicommart/internal/config"
)

// Driver names accepted by Open.
const (
	DriverS3         = "s3"
	DriverFilesystem = "fs"
)

// Open selects a Source from cfg and applies its rate limit.
func Open(ctx context.Context, cfg config.SourceConfig) (Source, error) {
	var src Source
	switch cfg.Driver {
	case DriverS3:
		s, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		src = s
	case DriverFilesystem:
		src = NewFilesystem(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
	}
	return Throttle(src, cfg.RateLimit, cfg.Burst), nil
}

// OpenUploader returns the destination for published outputs, or nil when
// publishing is disabled. S3 sources publish to bucket with the source's
// client settings; filesystem sources publish under bucket as a directory.
func OpenUploader(ctx context.Context, cfg config.SourceConfig, bucket string) (Uploader, error) {
	if bucket == "" {
		return nil, nil
	}
	switch cfg.Driver {
	case DriverS3:
		s, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s.WithBucket(bucket), nil
	case DriverFilesystem:
		return NewFilesystem(bucket), nil
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
	}
}
