// Package search locates files by name across the configured mounts.
//
// A search walks each mount with an explicit work list, bounded by depth
// and by a wall-clock deadline checked at every directory. Matches are
// scored and the best ones returned; a search that runs out of time still
// succeeds with whatever it found, flagged as timed out.
package search

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

const (
	DefaultMaxDepth      = 5
	DefaultTimeout       = 10 * time.Second
	DefaultMaxCandidates = 20

	// minLiteralChars is the minimum number of non-wildcard characters a
	// wildcard pattern must carry.
	minLiteralChars = 3

	wildcardChars = "*?["
)

// Base scores per match kind, and the secondary adjustments.
const (
	scoreExact     = 100
	scoreWildcard  = 50
	scoreSubstring = 25

	bonusSizeExact = 20
	bonusSizeNear  = 10
	sizeTolerance  = 0.10
	depthPenalty   = 0.1
)

// MatchKind records how a candidate matched the pattern.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchWildcard  MatchKind = "wildcard"
	MatchSubstring MatchKind = "substring"
)

// Candidate is one ranked search hit.
type Candidate struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified int64     `json:"modified"`
	Match    MatchKind `json:"match_type"`
	Score    float64   `json:"score"`
	Mount    string    `json:"mount"`
}

// Query describes one search request. Zero MaxDepth selects the
// configured default; empty MountLabel searches every mount.
type Query struct {
	Pattern      string
	ExpectedSize *int64
	MaxDepth     int
	MountLabel   string
}

// Result is the outcome of a search.
type Result struct {
	Candidates   []Candidate `json:"candidates"`
	Truncated    bool        `json:"truncated"`
	TimedOut     bool        `json:"timeout"`
	SearchTimeMS int64       `json:"search_time_ms"`
}

// Config bounds a Resolver. Zero fields take the package defaults.
type Config struct {
	MaxDepth      int           `mapstructure:"max_depth" validate:"gte=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxCandidates int           `mapstructure:"max_candidates" validate:"gte=0"`
}

func (c *Config) applyDefaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
}

// Resolver runs searches against a mount registry. It holds no per-search
// state and is safe for concurrent use.
type Resolver struct {
	mounts *mount.Registry
	config Config
	now    func() time.Time
}

// New creates a Resolver.
func New(mounts *mount.Registry, config Config) *Resolver {
	config.applyDefaults()
	return &Resolver{mounts: mounts, config: config, now: time.Now}
}

// pendingDir is one work-list item.
type pendingDir struct {
	path  string
	depth int
	label string
}

// Resolve searches for files whose base name matches q.Pattern.
//
// Errors:
//   - PATTERN_TOO_BROAD: wildcard pattern with fewer than 3 literal characters
//   - INVALID_ARGUMENT: empty or malformed pattern
//   - MOUNT_NOT_FOUND: q.MountLabel names no mount
//
// Cancelling ctx behaves like the deadline expiring.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	start := r.now()

	m, err := newMatcher(q.Pattern)
	if err != nil {
		return nil, err
	}

	mounts := r.mounts.Mounts()
	if q.MountLabel != "" {
		if mounts, err = r.mounts.ByLabel(q.MountLabel); err != nil {
			return nil, err
		}
	}

	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = r.config.MaxDepth
	}
	deadline := start.Add(r.config.Timeout)

	var stack []pendingDir
	for i := len(mounts) - 1; i >= 0; i-- {
		root, err := r.mounts.Resolve(mounts[i].Root)
		if err != nil {
			logger.Debug("Search skipping unresolvable mount %s: %v", mounts[i].Root, err)
			continue
		}
		stack = append(stack, pendingDir{path: root, label: mounts[i].Label})
	}

	var matches []Candidate
	timedOut := false

	for len(stack) > 0 {
		if ctx.Err() != nil || r.now().After(deadline) {
			timedOut = true
			break
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirents, err := os.ReadDir(dir.path)
		if err != nil {
			logger.Debug("Search skipping unreadable directory %s: %v", dir.path, err)
			continue
		}

		var subdirs []pendingDir
		for _, d := range dirents {
			full := filepath.Join(dir.path, d.Name())

			if d.Type()&os.ModeSymlink != 0 {
				// Links are only followed to files, and only when the target
				// stays inside a mount. Linked directories are not entered.
				if _, err := r.mounts.Resolve(full); err != nil {
					continue
				}
				kind, ok := m.match(d.Name())
				if !ok {
					continue
				}
				fi, err := os.Stat(full)
				if err != nil || fi.IsDir() {
					continue
				}
				c := score(kind, d.Name(), fi, dir.depth, q.ExpectedSize)
				c.Path, c.Mount = full, dir.label
				matches = append(matches, c)
				continue
			}

			if d.IsDir() {
				if dir.depth < maxDepth {
					subdirs = append(subdirs, pendingDir{path: full, depth: dir.depth + 1, label: dir.label})
				}
				continue
			}

			if !d.Type().IsRegular() {
				continue
			}
			kind, ok := m.match(d.Name())
			if !ok {
				continue
			}
			fi, err := d.Info()
			if err != nil {
				continue
			}
			c := score(kind, d.Name(), fi, dir.depth, q.ExpectedSize)
			c.Path, c.Mount = full, dir.label
			matches = append(matches, c)
		}

		// Push in reverse so directories are visited in name order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	rank(matches)

	result := &Result{
		Candidates:   matches,
		TimedOut:     timedOut,
		SearchTimeMS: r.now().Sub(start).Milliseconds(),
	}
	if len(matches) > r.config.MaxCandidates {
		result.Candidates = matches[:r.config.MaxCandidates]
		result.Truncated = true
	}
	if result.Candidates == nil {
		result.Candidates = []Candidate{}
	}

	if timedOut {
		logger.Warn("Search for %q timed out after %dms with %d matches", q.Pattern, result.SearchTimeMS, len(matches))
	}
	return result, nil
}

// rank sorts by descending score; ties prefer shorter, then
// lexicographically smaller paths.
func rank(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if len(c[i].Path) != len(c[j].Path) {
			return len(c[i].Path) < len(c[j].Path)
		}
		return c[i].Path < c[j].Path
	})
}

// matcher holds a lower-cased pattern and whether it is a glob.
type matcher struct {
	pattern  string
	wildcard bool
}

func newMatcher(pattern string) (*matcher, error) {
	if pattern == "" {
		return nil, fserr.New(fserr.InvalidArgument, "empty search pattern")
	}

	m := &matcher{
		pattern:  strings.ToLower(pattern),
		wildcard: strings.ContainsAny(pattern, wildcardChars),
	}
	if !m.wildcard {
		return m, nil
	}

	literals := 0
	for _, r := range pattern {
		if !strings.ContainsRune(wildcardChars, r) {
			literals++
		}
	}
	if literals < minLiteralChars {
		return nil, fserr.New(fserr.PatternTooBroad,
			"pattern %q is too broad: at least %d non-wildcard characters required", pattern, minLiteralChars)
	}
	if _, err := filepath.Match(m.pattern, ""); err != nil {
		return nil, fserr.Wrap(fserr.InvalidArgument, err, "invalid pattern %q", pattern)
	}
	return m, nil
}

// match classifies name against the pattern.
func (m *matcher) match(name string) (MatchKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case lower == m.pattern:
		return MatchExact, true
	case m.wildcard && globMatch(m.pattern, lower):
		return MatchWildcard, true
	case strings.Contains(lower, m.pattern):
		return MatchSubstring, true
	}
	return "", false
}

func globMatch(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// score builds the ranked Candidate for a matched file at depth levels
// below its mount root.
func score(kind MatchKind, name string, fi os.FileInfo, depth int, expectedSize *int64) Candidate {
	var s float64
	switch kind {
	case MatchExact:
		s = scoreExact
	case MatchWildcard:
		s = scoreWildcard
	case MatchSubstring:
		s = scoreSubstring
	}

	size := fi.Size()
	if expectedSize != nil {
		want := *expectedSize
		switch {
		case size == want:
			s += bonusSizeExact
		case want > 0 && math.Abs(float64(size-want)) <= sizeTolerance*float64(want):
			s += bonusSizeNear
		}
	}
	s -= depthPenalty * float64(depth)

	return Candidate{
		Name:     name,
		Size:     size,
		Modified: fi.ModTime().Unix(),
		Match:    kind,
		Score:    math.Round(s*100) / 100,
	}
}
