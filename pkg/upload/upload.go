// Package upload implements the single-slot upload session and the
// content-addressed short-circuit in front of it.
//
// A Manager owns at most one active Session. The lifecycle is:
//
//	Idle --Start--> Receiving --Write*--> Receiving --Finish--> Finalizing --> Idle
//
// Every failure (size mismatch, write error, abort) closes the handle,
// removes the partial file and returns the Manager to Idle. A completed
// upload is recorded in the shared cache under the digest of its content so
// a later upload of identical bytes can be skipped.
package upload

import (
	"context"
	"errors"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/cache"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

const (
	DefaultSubdirName       = "uploads"
	DefaultProgressInterval = 500 * time.Millisecond
)

// State is the position of a Manager in the upload lifecycle.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Config configures a Manager. Zero fields take the package defaults.
type Config struct {
	// SubdirName is joined to the destination when a start request asks for
	// a subdirectory.
	SubdirName string `mapstructure:"subdir_name"`

	// ProgressInterval is the minimum time between progress reports.
	ProgressInterval time.Duration `mapstructure:"progress_interval" validate:"gte=0"`

	// Digest names the content digest algorithm (sha256 or blake3).
	Digest string `mapstructure:"digest" validate:"omitempty,oneof=sha256 blake3"`
}

// Progress is a snapshot reported while receiving.
type Progress struct {
	Received int64
	Total    int64
}

// ProgressFunc receives throttled progress reports.
type ProgressFunc func(Progress)

// Completed describes a successfully finished upload.
type Completed struct {
	SessionID string
	Path      string
	Size      int64
	Digest    string
	Duration  time.Duration
}

// Session is the single active upload.
type Session struct {
	ID       string
	Path     string
	Total    int64
	Received int64
	Started  time.Time

	file     *os.File
	progress *rate.Sometimes
}

// Manager holds the upload slot of one peer and a reference to the cache
// shared by all peers.
//
// Thread safety: all methods serialize on an internal mutex, so at most one
// Session exists at any time.
type Manager struct {
	mu      sync.Mutex
	mounts  *mount.Registry
	cache   cache.Cache
	config  Config
	newHash func() hash.Hash
	now     func() time.Time

	state   State
	session *Session
}

// NewManager creates an idle Manager.
//
// Returns an error if config.Digest names an unsupported algorithm.
func NewManager(mounts *mount.Registry, c cache.Cache, config Config) (*Manager, error) {
	if config.SubdirName == "" {
		config.SubdirName = DefaultSubdirName
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}
	newHash, err := NewHasher(config.Digest)
	if err != nil {
		return nil, err
	}

	return &Manager{
		mounts:  mounts,
		cache:   c,
		config:  config,
		newHash: newHash,
		now:     time.Now,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns a copy of the active session, or nil when idle.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *Session {
	s := *m.session
	s.file, s.progress = nil, nil
	return &s
}

// validFilename accepts plain base names only.
func validFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// Start opens a new session writing filename (a plain base name) inside
// destDir, or inside destDir/<SubdirName> when createSubdir is set. An
// existing file at the destination is truncated.
//
// Errors:
//   - UPLOAD_BUSY: another session is active; it is left untouched
//   - INVALID_ARGUMENT: bad filename or negative size
//   - UPLOAD_DEST_OUTSIDE_MOUNTS: the destination escapes every mount
//   - UPLOAD_IO_ERROR: the directory or file cannot be created
func (m *Manager) Start(filename string, total int64, destDir string, createSubdir bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return nil, fserr.New(fserr.UploadBusy, "upload already in progress")
	}
	if !validFilename(filename) {
		return nil, fserr.New(fserr.InvalidArgument, "invalid filename %q", filename)
	}
	if total < 0 {
		return nil, fserr.New(fserr.InvalidArgument, "invalid size %d", total)
	}

	dir := destDir
	if createSubdir {
		dir = filepath.Join(destDir, m.config.SubdirName)
	}
	resolvedDir, err := m.mounts.Resolve(dir)
	if err != nil {
		logger.Debug("Upload destination rejected: %v", err)
		return nil, fserr.New(fserr.UploadDestOutsideMounts, "destination outside configured mounts")
	}

	if createSubdir {
		if err := os.MkdirAll(resolvedDir, 0755); err != nil {
			return nil, fserr.Wrap(fserr.UploadIOError, err, "")
		}
	} else if info, err := os.Stat(resolvedDir); err != nil {
		return nil, fserr.Wrap(fserr.UploadIOError, err, "")
	} else if !info.IsDir() {
		return nil, fserr.New(fserr.UploadIOError, "%s is not a directory", destDir)
	}

	// An existing destination may be a symlink; it must stay inside too.
	dest, err := m.mounts.Resolve(filepath.Join(resolvedDir, filename))
	if err != nil {
		logger.Debug("Upload destination rejected: %v", err)
		return nil, fserr.New(fserr.UploadDestOutsideMounts, "destination outside configured mounts")
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fserr.Wrap(fserr.UploadIOError, err, "")
	}

	m.session = &Session{
		ID:       uuid.NewString(),
		Path:     dest,
		Total:    total,
		Started:  m.now(),
		file:     f,
		progress: &rate.Sometimes{Interval: m.config.ProgressInterval},
	}
	m.state = StateReceiving

	logger.With(logger.Fields{"upload": m.session.ID}).Info("Upload started: %s (%d bytes)", dest, total)

	return m.snapshotLocked(), nil
}

// Write appends chunk to the active session. onProgress, if non-nil, is
// called at most once per ProgressInterval.
//
// A chunk that would exceed the declared size, or a failed write, aborts the
// session.
func (m *Manager) Write(chunk []byte, onProgress ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil || m.state != StateReceiving {
		return fserr.New(fserr.UploadNotActive, "no active upload")
	}

	if s.Received+int64(len(chunk)) > s.Total {
		m.discardLocked("overflow")
		return fserr.New(fserr.UploadSizeMismatch, "size mismatch: received more than %d bytes", s.Total)
	}

	n, err := s.file.Write(chunk)
	s.Received += int64(n)
	if err != nil {
		m.discardLocked("write failed")
		return fserr.Wrap(fserr.UploadIOError, err, "")
	}

	if onProgress != nil {
		p := Progress{Received: s.Received, Total: s.Total}
		s.progress.Do(func() { onProgress(p) })
	}
	return nil
}

// Finish closes the active session. On success the file is complete, its
// digest is recorded in the cache and the Manager is Idle again.
//
// Errors:
//   - UPLOAD_NOT_ACTIVE: no session
//   - UPLOAD_SIZE_MISMATCH: fewer bytes than declared were received
//   - UPLOAD_IO_ERROR: closing or hashing the file failed
//
// A cache write failure is logged and does not fail the upload.
func (m *Manager) Finish(ctx context.Context) (*Completed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil || m.state != StateReceiving {
		return nil, fserr.New(fserr.UploadNotActive, "no active upload")
	}
	m.state = StateFinalizing

	if s.Received != s.Total {
		m.discardLocked("size mismatch")
		return nil, fserr.New(fserr.UploadSizeMismatch,
			"size mismatch: received %d bytes, expected %d", s.Received, s.Total)
	}

	if err := s.file.Close(); err != nil {
		s.file = nil
		m.discardLocked("close failed")
		return nil, fserr.Wrap(fserr.UploadIOError, err, "")
	}
	s.file = nil

	digest, err := HashFile(s.Path, m.newHash)
	if err != nil {
		m.discardLocked("hash failed")
		return nil, fserr.Wrap(fserr.UploadIOError, err, "")
	}

	done := &Completed{
		SessionID: s.ID,
		Path:      s.Path,
		Size:      s.Received,
		Digest:    digest,
		Duration:  m.now().Sub(s.Started),
	}

	if modTime, err := stamp(s.Path, m.now()); err != nil {
		logger.Warn("Upload %s: not cached, cannot stat %s: %v", s.ID, s.Path, err)
	} else {
		entry := cache.Entry{Path: s.Path, Size: s.Received, ModTime: modTime, StoredAt: m.now()}
		if err := m.cache.Put(ctx, digest, entry); err != nil {
			logger.Warn("Upload %s: failed to record cache entry: %v", s.ID, err)
		}
	}

	m.session = nil
	m.state = StateIdle

	logger.With(logger.Fields{"upload": done.SessionID}).Info("Upload complete: %s (%d bytes, digest %s)", done.Path, done.Size, digest)
	return done, nil
}

// stamp sets path's modification time to t and returns it as the
// filesystem stores it. Kernel timestamps are coarse; a precise stamp keeps
// two uploads to the same path distinguishable in CheckCache.
func stamp(path string, t time.Time) (time.Time, error) {
	if err := os.Chtimes(path, t, t); err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Abort discards the active session. It reports whether one was active.
func (m *Manager) Abort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return false
	}
	m.discardLocked("aborted")
	return true
}

// discardLocked closes and removes the partial file and returns to Idle.
func (m *Manager) discardLocked(reason string) {
	s := m.session
	if s.file != nil {
		_ = s.file.Close()
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Upload %s: failed to remove partial file %s: %v", s.ID, s.Path, err)
	}
	logger.With(logger.Fields{"upload": s.ID}).Info("Upload discarded (%s): %s after %d/%d bytes", reason, s.Path, s.Received, s.Total)

	m.session = nil
	m.state = StateIdle
}

// CheckCache reports whether content with digest is already stored inside
// a mount, returning its canonical path on a hit.
//
// The filename is informational: identical content uploaded under another
// name is a hit. An entry whose file is gone, has been modified or now
// resolves outside the mounts is evicted and reported as a miss.
func (m *Manager) CheckCache(ctx context.Context, digest, filename string) (string, bool, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return "", false, fserr.New(fserr.InvalidArgument, "empty digest")
	}

	entry, ok, err := m.cache.Lookup(ctx, digest)
	if err != nil || !ok {
		return "", false, err
	}

	stale := ""
	path, err := m.mounts.Resolve(entry.Path)
	if err != nil {
		stale = "outside mounts"
	} else if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		stale = "missing"
	} else if info.Size() != entry.Size {
		stale = "size changed"
	} else if !info.ModTime().Equal(entry.ModTime) {
		stale = "modified"
	}

	if stale != "" {
		logger.Warn("Evicting stale cache entry %s -> %s (%s)", digest, entry.Path, stale)
		if err := m.cache.Evict(ctx, digest); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	logger.Debug("Cache hit for %s (requested as %s): %s", digest, filename, path)
	return path, true, nil
}
