// Package listing implements paginated, sorted directory listings inside
// the configured mounts.
package listing

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

// DefaultPageSize is the number of entries returned per page.
const DefaultPageSize = 20

// Kind distinguishes files from directories in a listing.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"type"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}

// Page is one page of a directory listing.
type Page struct {
	Path       string  `json:"path"`
	Entries    []Entry `json:"entries"`
	TotalCount int     `json:"total_count"`
	HasMore    bool    `json:"has_more"`
}

// Lister lists directories through a mount registry.
type Lister struct {
	mounts   *mount.Registry
	pageSize int
}

// New creates a Lister. A pageSize <= 0 selects DefaultPageSize.
func New(mounts *mount.Registry, pageSize int) *Lister {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Lister{mounts: mounts, pageSize: pageSize}
}

// List returns the page of path starting at offset.
//
// Directories sort before files, then names compare case-insensitively.
// Entries that cannot be stat'ed (vanished, dangling symlink) are skipped,
// as are symlinks whose target lies outside every mount.
//
// Errors:
//   - ACCESS_DENIED: path is outside every mount
//   - PATH_NOT_FOUND: path does not exist or is not a directory
//   - PERMISSION_DENIED: the directory cannot be read
func (l *Lister) List(path string, offset int) (*Page, error) {
	resolved, err := l.mounts.Resolve(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, statError(path, err)
	}
	if !info.IsDir() {
		return nil, fserr.New(fserr.PathNotFound, "%s is not a directory", path)
	}

	dirents, err := os.ReadDir(resolved)
	if err != nil {
		return nil, statError(path, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		fi, err := l.stat(resolved, d)
		if err != nil {
			logger.Debug("Skipping %s in %s: %v", d.Name(), resolved, err)
			continue
		}
		entries = append(entries, toEntry(d.Name(), fi))
	}

	sortEntries(entries)

	total := len(entries)
	start := min(offset, total)
	end := min(start+l.pageSize, total)
	page := entries[start:end]

	return &Page{
		Path:       resolved,
		Entries:    page,
		TotalCount: total,
		HasMore:    offset+len(page) < total,
	}, nil
}

// stat describes one child of dir. Symlinks report their target's kind, but
// only once the guard has approved the target.
func (l *Lister) stat(dir string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&os.ModeSymlink == 0 {
		return d.Info()
	}
	target, err := l.mounts.Resolve(filepath.Join(dir, d.Name()))
	if err != nil {
		return nil, err
	}
	return os.Stat(target)
}

func toEntry(name string, fi fs.FileInfo) Entry {
	e := Entry{
		Name:     name,
		Kind:     KindFile,
		Size:     fi.Size(),
		Modified: fi.ModTime().Unix(),
	}
	if fi.IsDir() {
		e.Kind = KindDirectory
		e.Size = 0
	}
	return e
}

// sortEntries orders directories first, then by case-folded name. Names
// equal after folding fall back to byte order so the result is stable
// across pages.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Kind != b.Kind {
			return a.Kind == KindDirectory
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

func statError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fserr.Wrap(fserr.PathNotFound, err, "%s not found", path)
	default:
		// EACCES and other OS-level read failures.
		return fserr.Wrap(fserr.PermissionDenied, err, "cannot read %s", path)
	}
}
