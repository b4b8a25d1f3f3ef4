package files

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindTableFiles walks dir recursively and returns every file with the given
// extension (".csv"), sorted by path. A missing dir yields no files.
func (d *Discovery) FindTableFiles(dir, ext string) ([]FileInfo, error) {
	fullPath := d.resolve(dir)
	ext = strings.ToLower(ext)

	var found []FileInfo
	err := filepath.WalkDir(fullPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == fullPath {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if strings.HasPrefix(name, TempPrefix) || !strings.HasSuffix(strings.ToLower(name), ext) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			// Renamed away between listing and stat.
			return nil
		}
		found = append(found, FileInfo{
			Path:    path,
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", fullPath, err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Path < found[j].Path
	})
	return found, nil
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}
