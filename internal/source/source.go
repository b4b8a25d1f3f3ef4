// Package source lists and fetches the raw objects a run ingests, and
// uploads run outputs. S3 is the production backend; the filesystem and
// in-memory backends serve local runs and tests.
package source

import (
	"context"
	"strings"
	"time"
)

// Object describes one listed object.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Source lists objects under a prefix and fetches their bytes.
type Source interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Uploader stores run outputs.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// IsDirectoryMarker reports whether key is a zero-content folder placeholder
// rather than a real object.
func IsDirectoryMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}

// Objects drops directory markers from listed.
func Objects(listed []Object) []Object {
	out := make([]Object, 0, len(listed))
	for _, o := range listed {
		if !IsDirectoryMarker(o.Key) {
			out = append(out, o)
		}
	}
	return out
}
