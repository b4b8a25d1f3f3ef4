// Package entitystore consolidates attribute records into one durable table
// per (PatientID, StudyInstanceUID).
//
// Every merge is a locked read-modify-write of a single file followed by an
// atomic replace, so merges on one key never interleave and a failed merge
// leaves the previous file untouched. Merges on different keys run
// concurrently.
package entitystore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	apperrors "dicommart/internal/errors"
	"dicommart/internal/files"
	"dicommart/internal/table"
	"dicommart/pkg/contracts/domain"
)

// MergeResult describes the entity file after a successful merge.
type MergeResult struct {
	Key     domain.EntityKey
	Path    string
	Rows    int
	Created bool
}

// Store owns every entity file under its root.
type Store struct {
	root      string
	files     *files.Manager
	discovery *files.Discovery
	locks     *files.PathLocks
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLocks shares a lock registry between stores opened on the same root.
func WithLocks(locks *files.PathLocks) Option {
	return func(s *Store) { s.locks = locks }
}

// New creates a store rooted at root.
func New(root string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		root:      root,
		files:     files.NewManager(""),
		discovery: files.NewDiscovery(root),
		locks:     files.NewPathLocks(),
		logger:    logger.With(slog.String("component", "entity_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// EnsureRoot creates the root directory. Failing here is fatal for a run.
func (s *Store) EnsureRoot() error {
	if err := s.files.EnsureDirectory(s.root); err != nil {
		return apperrors.NewPersistenceError("entity store root unavailable", err).
			WithContext("root", s.root)
	}
	return nil
}

// Path returns the file that holds key's records.
func (s *Store) Path(key domain.EntityKey) string {
	return filepath.Join(s.root, key.PatientID, key.StudyInstanceUID+table.Ext)
}

// Merge appends rec to its entity file and drops exact-duplicate rows.
// A record without a natural key is rejected with an EMPTY_RECORD error and
// nothing is written.
func (s *Store) Merge(ctx context.Context, rec domain.AttributeRecord) (MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}

	key, err := rec.Key()
	if err != nil {
		if errors.Is(err, domain.ErrMissingNaturalKey) {
			return MergeResult{}, apperrors.NewEmptyRecordError("record has no natural key", err)
		}
		return MergeResult{}, apperrors.NewAppValidationError("record key is unusable", err)
	}

	path := s.Path(key)
	unlock := s.locks.Lock(path)
	defer unlock()

	current, created, err := s.read(path)
	if err != nil {
		return MergeResult{}, apperrors.NewPersistenceError("read entity file", err).
			WithContext("key", key.String()).
			WithContext("path", path)
	}

	current.AppendRecord(rec)
	dropped := current.DropDuplicates()

	data, err := current.Encode()
	if err != nil {
		return MergeResult{}, apperrors.NewPersistenceError("encode entity file", err).
			WithContext("key", key.String())
	}
	if err := s.files.WriteFileAtomic(path, data); err != nil {
		return MergeResult{}, apperrors.NewPersistenceError("write entity file", err).
			WithContext("key", key.String()).
			WithContext("path", path)
	}

	s.logger.DebugContext(ctx, "entity merged",
		slog.String("key", key.String()),
		slog.Int("rows", current.Len()),
		slog.Int("duplicates_dropped", dropped),
		slog.Bool("created", created),
	)

	return MergeResult{Key: key, Path: path, Rows: current.Len(), Created: created}, nil
}

// Load reads key's entity file.
func (s *Store) Load(key domain.EntityKey) (*table.Table, error) {
	if err := key.Validate(); err != nil {
		return nil, apperrors.NewAppValidationError("invalid entity key", err)
	}
	return s.LoadFile(s.Path(key))
}

// LoadFile reads one entity file by path.
func (s *Store) LoadFile(path string) (*table.Table, error) {
	t, created, err := s.read(path)
	if err != nil {
		return nil, apperrors.NewPersistenceError("read entity file", err).WithContext("path", path)
	}
	if created {
		return nil, apperrors.NewNotFoundError("entity file").WithContext("path", path)
	}
	return t, nil
}

// List returns every entity file under the root, sorted by path.
func (s *Store) List(ctx context.Context) ([]files.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := s.discovery.FindTableFiles(".", table.Ext)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list entity files", err).WithContext("root", s.root)
	}
	return found, nil
}

// LoadAll concatenates every entity file into one table.
func (s *Store) LoadAll(ctx context.Context) (*table.Table, error) {
	found, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	all := table.New(nil)
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := s.LoadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f.Path, err)
		}
		all.Concat(t)
	}
	return all, nil
}

// read loads path, returning an empty table and created=true when the file
// does not exist yet.
func (s *Store) read(path string) (*table.Table, bool, error) {
	data, err := s.files.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return table.New(nil), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, err := table.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return t, false, nil
}
