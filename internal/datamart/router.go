// Package datamart fans consolidated records out into per-category tables.
//
// Each category owns one file, <root>/<name>/<name>.csv. Categories with a
// primary key load incrementally: a row is appended only when its key value
// is not in the file yet. Categories without one keep every distinct row.
// Writes to one category file are serialized; different categories are
// routed in parallel.
package datamart

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	apperrors "dicommart/internal/errors"
	"dicommart/internal/files"
	"dicommart/internal/table"
	"dicommart/pkg/contracts/domain"
)

// RouteResult is the outcome of routing into one category.
type RouteResult struct {
	Category string
	Appended int
	Rows     int
	Err      error
}

// Router owns every datamart file under its root.
type Router struct {
	root       string
	categories []domain.DatamartCategory
	files      *files.Manager
	locks      *files.PathLocks
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLocks shares a lock registry between routers writing the same root.
func WithLocks(locks *files.PathLocks) Option {
	return func(r *Router) { r.locks = locks }
}

// NewRouter creates a router for categories rooted at root.
func NewRouter(root string, categories []domain.DatamartCategory, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	cats := make([]domain.DatamartCategory, len(categories))
	copy(cats, categories)
	r := &Router{
		root:       root,
		categories: cats,
		files:      files.NewManager(""),
		locks:      files.NewPathLocks(),
		logger:     logger.With(slog.String("component", "datamart_router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the router's base directory.
func (r *Router) Root() string { return r.root }

// EnsureRoot creates the root directory.
func (r *Router) EnsureRoot() error {
	if err := r.files.EnsureDirectory(r.root); err != nil {
		return apperrors.NewPersistenceError("datamart root unavailable", err).
			WithContext("root", r.root)
	}
	return nil
}

// Categories returns the configured categories.
func (r *Router) Categories() []domain.DatamartCategory {
	out := make([]domain.DatamartCategory, len(r.categories))
	copy(out, r.categories)
	return out
}

// Path returns the file backing category.
func (r *Router) Path(category string) string {
	return filepath.Join(r.root, category, category+table.Ext)
}

// Route routes a single consolidated record into every category.
func (r *Router) Route(ctx context.Context, rec domain.AttributeRecord) []RouteResult {
	return r.RouteTable(ctx, table.FromRecord(rec))
}

// RouteTable routes every row of t into every category. It behaves exactly
// like calling Route for each row in order. A failing category never stops
// the others; results are returned in category order.
func (r *Router) RouteTable(ctx context.Context, t *table.Table) []RouteResult {
	results := make([]RouteResult, len(r.categories))

	var g errgroup.Group
	for i, cat := range r.categories {
		i, cat := i, cat
		g.Go(func() error {
			results[i] = r.routeCategory(ctx, cat, t)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Err != nil {
			r.logger.ErrorContext(ctx, "datamart route failed",
				slog.String("category", res.Category),
				slog.String("error", res.Err.Error()),
			)
		}
	}
	return results
}

func (r *Router) routeCategory(ctx context.Context, cat domain.DatamartCategory, t *table.Table) RouteResult {
	res := RouteResult{Category: cat.Name}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	incoming := t.Project(cat.Columns)
	incoming.Filter(func(row []string) bool { return !allEmpty(row) })

	path := r.Path(cat.Name)
	unlock := r.locks.Lock(path)
	defer unlock()

	current, exists, err := r.read(path)
	if err != nil {
		res.Err = apperrors.NewPersistenceError("read datamart", err).
			WithContext("category", cat.Name).
			WithContext("path", path)
		return res
	}
	repaired := current.DropDuplicates()
	before := current.Len()

	if cat.HasPrimaryKey() {
		keepNewKeys(current, incoming, cat.PrimaryKey)
	}
	if incoming.Len() == 0 && repaired == 0 {
		res.Rows = before
		return res
	}

	current.Concat(incoming)
	// Safety net: the combined file never keeps an exact duplicate.
	current.DropDuplicates()

	if current.Len() == 0 && !exists {
		return res
	}

	data, err := current.Encode()
	if err == nil {
		err = r.files.WriteFileAtomic(path, data)
	}
	if err != nil {
		res.Err = apperrors.NewPersistenceError("write datamart", err).
			WithContext("category", cat.Name).
			WithContext("path", path)
		return res
	}

	res.Appended = current.Len() - before
	res.Rows = current.Len()
	r.logger.DebugContext(ctx, "datamart updated",
		slog.String("category", cat.Name),
		slog.Int("appended", res.Appended),
		slog.Int("rows", res.Rows),
	)
	return res
}

// keepNewKeys filters incoming down to rows whose primary-key value is
// present and not yet in current. Within incoming the first row for a key
// wins.
func keepNewKeys(current, incoming *table.Table, primaryKey string) {
	seen := make(map[string]struct{})
	if values, ok := current.Column(primaryKey); ok {
		for _, v := range values {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}

	idx, ok := incoming.Index(primaryKey)
	if !ok {
		incoming.Filter(func([]string) bool { return false })
		return
	}
	incoming.Filter(func(row []string) bool {
		v := row[idx]
		if v == "" {
			return false
		}
		if _, dup := seen[v]; dup {
			return false
		}
		seen[v] = struct{}{}
		return true
	})
}

// Load reads the table of one category.
func (r *Router) Load(category string) (*table.Table, error) {
	if !domain.SafeSegment(category) {
		return nil, apperrors.NewAppValidationError("invalid datamart name", nil).WithContext("category", category)
	}
	t, exists, err := r.read(r.Path(category))
	if err != nil {
		return nil, apperrors.NewPersistenceError("read datamart", err).WithContext("category", category)
	}
	if !exists {
		return nil, apperrors.NewNotFoundError("datamart").WithContext("category", category)
	}
	return t, nil
}

// Describe reports the current state of every configured category.
func (r *Router) Describe(ctx context.Context) ([]domain.DatamartInfo, error) {
	infos := make([]domain.DatamartInfo, 0, len(r.categories))
	for _, cat := range r.categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := r.Path(cat.Name)
		t, exists, err := r.read(path)
		if err != nil {
			return nil, apperrors.NewPersistenceError("read datamart", err).WithContext("category", cat.Name)
		}
		infos = append(infos, domain.DatamartInfo{
			Name:       cat.Name,
			Path:       path,
			Columns:    cat.Columns,
			PrimaryKey: cat.PrimaryKey,
			Rows:       t.Len(),
			Exists:     exists,
		})
	}
	return infos, nil
}

func (r *Router) read(path string) (*table.Table, bool, error) {
	data, err := r.files.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return table.New(nil), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, err := table.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func allEmpty(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
