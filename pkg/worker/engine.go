// Package worker assembles the file engine served to one peer.
//
// An Engine owns the per-peer state (the upload slot) and borrows the
// shared services: the read-only mount registry, the synchronized upload
// cache, the labels adapter and metrics. Hosts create one Engine per
// connected peer so sessions never cross-talk, and Close it when the peer
// goes away.
//
// Every path argument is authorized by the mount registry inside the
// component that touches the filesystem; the Engine adds no second check
// and never bypasses the first.
package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/cache"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/labels"
	"github.com/marmos91/fsbridge/pkg/listing"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/mount"
	"github.com/marmos91/fsbridge/pkg/prefix"
	"github.com/marmos91/fsbridge/pkg/search"
	"github.com/marmos91/fsbridge/pkg/upload"
)

// Config tunes the components of an Engine. Zero values take each
// component's defaults.
type Config struct {
	PageSize int
	Search   search.Config
	Upload   upload.Config
}

// Deps are the services shared between engines.
type Deps struct {
	Mounts *mount.Registry
	Cache  cache.Cache
	Labels labels.Adapter
	Config Config
}

// Engine serves the file operations of one peer.
type Engine struct {
	mounts   *mount.Registry
	lister   *listing.Lister
	resolver *search.Resolver
	uploads  *upload.Manager
	labels   *labels.Service
	metrics  metrics.WorkerMetrics
}

// New creates an Engine. A nil m selects no-op metrics.
//
// Returns an error if a required dependency is missing or the upload
// configuration is invalid.
func New(deps Deps, m metrics.WorkerMetrics) (*Engine, error) {
	if deps.Mounts == nil {
		return nil, errors.New("worker: mount registry is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("worker: upload cache is required")
	}
	if deps.Labels == nil {
		return nil, errors.New("worker: labels adapter is required")
	}
	if m == nil {
		m = metrics.NewNoopWorkerMetrics()
	}

	uploads, err := upload.NewManager(deps.Mounts, deps.Cache, deps.Config.Upload)
	if err != nil {
		return nil, err
	}

	return &Engine{
		mounts:   deps.Mounts,
		lister:   listing.New(deps.Mounts, deps.Config.PageSize),
		resolver: search.New(deps.Mounts, deps.Config.Search),
		uploads:  uploads,
		labels:   labels.NewService(deps.Mounts, deps.Labels),
		metrics:  m,
	}, nil
}

// Mounts returns the configured mounts.
func (e *Engine) Mounts() []mount.Mount {
	return e.mounts.Mounts()
}

// ListDirectory returns one page of a directory listing.
func (e *Engine) ListDirectory(path string, offset int) (*listing.Page, error) {
	return e.lister.List(path, offset)
}

// Resolve searches the mounts for files matching q.
func (e *Engine) Resolve(ctx context.Context, q search.Query) (*search.Result, error) {
	start := time.Now()
	res, err := e.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordSearch(time.Since(start), res.TimedOut)
	return res, nil
}

// ResolvePrefix derives the prefix change from original -> chosen and
// classifies others by whether the rewritten path exists inside a mount.
func (e *Engine) ResolvePrefix(original, chosen string, others []string) *prefix.Result {
	return prefix.Compute(original, chosen, others, e.mounts.Exists)
}

// StartUpload opens the upload slot.
func (e *Engine) StartUpload(filename string, total int64, destDir string, createSubdir bool) (*upload.Session, error) {
	return e.uploads.Start(filename, total, destDir, createSubdir)
}

// WriteChunk appends a chunk to the active upload.
func (e *Engine) WriteChunk(chunk []byte, onProgress upload.ProgressFunc) error {
	err := e.uploads.Write(chunk, onProgress)
	switch fserr.CodeOf(err) {
	case "":
		e.metrics.RecordBytesTransferred(metrics.DirectionUpload, int64(len(chunk)))
	case fserr.UploadSizeMismatch:
		e.metrics.RecordUpload("mismatch")
	case fserr.UploadIOError:
		e.metrics.RecordUpload("error")
	}
	return err
}

// FinishUpload completes the active upload.
func (e *Engine) FinishUpload(ctx context.Context) (*upload.Completed, error) {
	done, err := e.uploads.Finish(ctx)
	switch fserr.CodeOf(err) {
	case "":
		e.metrics.RecordUpload("complete")
	case fserr.UploadSizeMismatch:
		e.metrics.RecordUpload("mismatch")
	case fserr.UploadIOError:
		e.metrics.RecordUpload("error")
	}
	return done, err
}

// AbortUpload discards the active upload, reporting whether one existed.
func (e *Engine) AbortUpload() bool {
	if !e.uploads.Abort() {
		return false
	}
	e.metrics.RecordUpload("aborted")
	return true
}

// CheckCache looks up previously uploaded content by digest.
func (e *Engine) CheckCache(ctx context.Context, digest, filename string) (string, bool, error) {
	path, hit, err := e.uploads.CheckCache(ctx, digest, filename)
	if err != nil {
		return "", false, err
	}
	if hit {
		e.metrics.RecordCacheLookup("hit")
	} else {
		e.metrics.RecordCacheLookup("miss")
	}
	return path, hit, nil
}

// CheckReferences reports which media files of a label file are reachable.
func (e *Engine) CheckReferences(path string) (*labels.Accessibility, error) {
	return e.labels.CheckAccessibility(path)
}

// RewriteReferences writes a remapped copy of a label file.
func (e *Engine) RewriteReferences(source, outputDir string, pathMap map[string]string) (*labels.Rewrite, error) {
	return e.labels.WriteWithRemap(source, outputDir, pathMap)
}

// OpenDownload opens a regular file inside the mounts for sending.
//
// Errors:
//   - ACCESS_DENIED: path outside the mounts
//   - PATH_NOT_FOUND: missing or not a regular file
//   - PERMISSION_DENIED: the file cannot be opened
func (e *Engine) OpenDownload(path string) (*os.File, os.FileInfo, error) {
	resolved, err := e.mounts.Resolve(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fserr.Wrap(fserr.PathNotFound, err, "%s not found", path)
		}
		return nil, nil, fserr.Wrap(fserr.PermissionDenied, err, "cannot open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fserr.Wrap(fserr.PermissionDenied, err, "cannot stat %s", path)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, fserr.New(fserr.PathNotFound, "%s is not a regular file", path)
	}
	return f, info, nil
}

// RecordDownload accounts bytes sent to the peer.
func (e *Engine) RecordDownload(bytes int64) {
	e.metrics.RecordBytesTransferred(metrics.DirectionDownload, bytes)
}

// Close releases the peer's state: an active upload is aborted and its
// partial file removed. The shared services are left open.
func (e *Engine) Close() error {
	if e.AbortUpload() {
		logger.Info("Active upload aborted on peer disconnect")
	}
	return nil
}
