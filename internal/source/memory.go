package source

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "dicommart/internal/errors"
)

type memoryEntry struct {
	data    []byte
	modTime time.Time
}

// Memory is a process-local backend, used by tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memoryEntry)}
}

// Put stores data under key, replacing any previous value.
func (m *Memory) Put(key string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.objs[key] = memoryEntry{data: cp, modTime: time.Now().UTC()}
	m.mu.Unlock()
}

// Keys returns all stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objs))
	for k := range m.objs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns all objects whose key starts with prefix.
func (m *Memory) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Object, 0, len(m.objs))
	for k, v := range m.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(v.data)), LastModified: v.modTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Fetch returns a copy of key's bytes.
func (m *Memory) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	obj, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewSourceError("object not found", nil).WithContext("key", key)
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, nil
}

// Upload stores body under key.
func (m *Memory) Upload(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Put(key, body)
	return nil
}
