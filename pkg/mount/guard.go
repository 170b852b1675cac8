package mount

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/fsbridge/pkg/fserr"
)

// Canonicalize returns the absolute, symlink-resolved, dot-free form of p.
//
// Paths that do not exist yet are resolved through their deepest existing
// ancestor and the missing tail is appended lexically, so a destination
// that is about to be created can still be checked. A broken symlink or an
// unreadable component anywhere in the chain is an error.
func Canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	dir := abs
	var tail []string
	for {
		if _, lerr := os.Lstat(dir); lerr == nil {
			// dir exists; if it is a dangling link this fails, which is
			// exactly the broken-chain case.
			base, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return "", err
			}
			for i := len(tail) - 1; i >= 0; i-- {
				base = filepath.Join(base, tail[i])
			}
			return base, nil
		} else if !errors.Is(lerr, fs.ErrNotExist) {
			return "", lerr
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", err
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether p equals root or descends from it. Both must be
// canonical.
func within(root, p string) bool {
	if root == "" {
		return false
	}
	if p == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(p, root)
}

// IsAllowed reports whether path canonicalizes to a location inside at
// least one mount. With no mounts configured nothing is allowed.
func (r *Registry) IsAllowed(path string) bool {
	_, err := r.Resolve(path)
	return err == nil
}

// Resolve canonicalizes path and checks containment.
//
// Returns the canonical path on success, or an ACCESS_DENIED *fserr.Error
// if the path cannot be canonicalized or escapes every mount. Callers must
// use the returned path, never the original, for the filesystem access
// that follows.
func (r *Registry) Resolve(path string) (string, error) {
	if len(r.canonical) == 0 {
		return "", fserr.New(fserr.AccessDenied, "no mounts configured")
	}
	if path == "" {
		return "", fserr.New(fserr.AccessDenied, "empty path")
	}

	canonical, err := Canonicalize(path)
	if err != nil {
		return "", fserr.Wrap(fserr.AccessDenied, err, "cannot resolve %s", path)
	}

	for _, root := range r.canonical {
		if within(root, canonical) {
			return canonical, nil
		}
	}
	return "", fserr.New(fserr.AccessDenied, "%s is outside configured mounts", path)
}

// Exists reports whether path is allowed and present on disk. It is the
// guarded existence check used by the prefix resolver, cache validation
// and reference checks.
func (r *Registry) Exists(path string) bool {
	canonical, err := r.Resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(canonical)
	return err == nil
}
