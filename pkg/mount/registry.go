// Package mount holds the administrator-configured directory roots and the
// path guard every filesystem access goes through.
package mount

import (
	"fmt"
	"path/filepath"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/fserr"
)

// Mount is one sandbox boundary: a local directory root and its display
// label. Labels are hints and need not be unique.
type Mount struct {
	Root  string `json:"path"`
	Label string `json:"label"`
}

// Registry is the immutable set of mounts supplied at startup.
//
// Roots are canonicalized once, at construction. A root that cannot be
// resolved (missing directory, broken symlink) stays listed but never
// admits any path.
//
// Thread safety:
// A Registry is read-only after NewRegistry returns and is safe to share
// across goroutines and peer sessions.
type Registry struct {
	mounts    []Mount
	canonical []string
}

// NewRegistry validates and canonicalizes the given mounts.
//
// Returns an error if a root is not an absolute path. Missing roots are
// logged and kept; they simply never match.
func NewRegistry(mounts []Mount) (*Registry, error) {
	r := &Registry{
		mounts:    make([]Mount, 0, len(mounts)),
		canonical: make([]string, 0, len(mounts)),
	}

	for i, m := range mounts {
		if !filepath.IsAbs(m.Root) {
			return nil, fmt.Errorf("mount %d: root %q is not an absolute path", i, m.Root)
		}
		root := filepath.Clean(m.Root)
		label := m.Label
		if label == "" {
			label = filepath.Base(root)
		}

		canonical, err := filepath.EvalSymlinks(root)
		if err != nil {
			logger.Warn("Mount %q (%s) cannot be resolved and will reject all paths: %v", label, root, err)
			canonical = ""
		}

		r.mounts = append(r.mounts, Mount{Root: root, Label: label})
		r.canonical = append(r.canonical, canonical)
	}

	return r, nil
}

// Mounts returns a copy of the configured mounts in configuration order.
func (r *Registry) Mounts() []Mount {
	out := make([]Mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}

// Len returns the number of configured mounts.
func (r *Registry) Len() int {
	return len(r.mounts)
}

// ByLabel returns every mount carrying label, or MOUNT_NOT_FOUND.
func (r *Registry) ByLabel(label string) ([]Mount, error) {
	var out []Mount
	for _, m := range r.mounts {
		if m.Label == label {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fserr.New(fserr.MountNotFound, "mount %q not found", label)
	}
	return out, nil
}
