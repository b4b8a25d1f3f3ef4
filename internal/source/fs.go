package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	apperrors "dicommart/internal/errors"
	"dicommart/internal/files"
)

// Filesystem serves objects from a directory tree. Keys are slash-separated
// paths relative to the root.
type Filesystem struct {
	root  string
	files *files.Manager
}

// NewFilesystem returns a backend rooted at root.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root, files: files.NewManager("")}
}

// List walks the tree and returns every regular file whose key starts with
// prefix.
func (f *Filesystem) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == f.root {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), files.TempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperrors.NewSourceError("list directory", err).
			WithContext("root", f.root).
			WithContext("prefix", prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Fetch reads one object.
func (f *Filesystem) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, apperrors.NewSourceError("read object", err).WithContext("key", key)
	}
	return data, nil
}

// Upload writes body under key atomically.
func (f *Filesystem) Upload(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := f.files.WriteFileAtomic(p, body); err != nil {
		return apperrors.NewSourceError("write object", err).WithContext("key", key)
	}
	return nil
}

// resolve maps key onto the tree, refusing keys that leave the root.
func (f *Filesystem) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if IsDirectoryMarker(key) || clean == "/" {
		return "", apperrors.NewAppValidationError("invalid object key", nil).WithContext("key", key)
	}
	return filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
