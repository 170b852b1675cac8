// Package prefix derives a path-prefix substitution from one confirmed fix
// and applies it to a batch of other broken paths.
//
// Paths are compared component by component, splitting on both '/' and
// '\', so references recorded on Windows hosts can be repaired on a POSIX
// worker. Derived prefixes keep the spelling of the path they were cut
// from. Absolute paths keep a leading empty component, which makes "/a" and
// "a" distinct.
//
// A prefix only matches on a component boundary: "/data" is a prefix of
// "/data/x" but not of "/data2/x".
package prefix

import "strings"

// Resolution pairs a broken path with the candidate that exists on disk.
type Resolution struct {
	Original string `json:"original"`
	Resolved string `json:"resolved"`
}

// Result is the outcome of applying a prefix substitution to a batch.
type Result struct {
	OldPrefix       string       `json:"old_prefix"`
	NewPrefix       string       `json:"new_prefix"`
	WouldResolve    []Resolution `json:"would_resolve"`
	WouldNotResolve []string     `json:"would_not_resolve"`
}

// ExistsFunc reports whether a path is present. The worker passes a guarded
// check so candidates outside the mounts count as missing.
type ExistsFunc func(path string) bool

// components splits p on either separator. ends[i] is the byte offset just
// past component i in p.
func components(p string) (parts []string, ends []int) {
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' || p[i] == '\\' {
			parts = append(parts, p[start:i])
			ends = append(ends, i)
			start = i + 1
		}
	}
	return parts, ends
}

// head returns the first k components of p as p spells them.
func head(p string, ends []int, k int) string {
	switch {
	case k == 0:
		return ""
	case k == 1 && ends[0] == 0:
		// Only the root: keep its separator.
		return p[:1]
	}
	return p[:ends[k-1]]
}

// prefixParts splits a prefix. A bare separator is the root alone.
func prefixParts(prefix string) []string {
	switch prefix {
	case "":
		return nil
	case "/", `\`:
		return []string{""}
	}
	parts, _ := components(prefix)
	return parts
}

// separator returns the first separator used in any of paths, or '/'.
func separator(paths ...string) string {
	for _, p := range paths {
		if i := strings.IndexAny(p, `/\`); i >= 0 {
			return p[i : i+1]
		}
	}
	return "/"
}

func join(parts []string, sep string) string {
	if len(parts) == 1 && parts[0] == "" {
		return sep
	}
	return strings.Join(parts, sep)
}

// commonSuffix counts the trailing components shared by a and b.
func commonSuffix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// FindChangedSubpath returns the leading parts of oldPath and newPath that
// differ once their longest common trailing run of components is removed.
//
// With no common trailing component the prefixes are the full paths.
//
// Example:
//
//	FindChangedSubpath("/Volumes/talmo/project/day1/vid.mp4", "/vast/project/day1/vid.mp4")
//	// "/Volumes/talmo", "/vast"
func FindChangedSubpath(oldPath, newPath string) (oldPrefix, newPrefix string) {
	o, oEnds := components(oldPath)
	n, nEnds := components(newPath)
	common := commonSuffix(o, n)
	if common == 0 {
		return oldPath, newPath
	}
	return head(oldPath, oEnds, len(o)-common), head(newPath, nEnds, len(n)-common)
}

// hasPrefix reports whether p starts with the components of prefix.
func hasPrefix(p, prefix []string) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Substitute replaces the leading oldPrefix components of p with newPrefix.
// It reports false when p does not start with oldPrefix on a component
// boundary. The result is joined with newPrefix's separator.
func Substitute(p, oldPrefix, newPrefix string) (string, bool) {
	parts, _ := components(p)
	op := prefixParts(oldPrefix)
	if !hasPrefix(parts, op) {
		return "", false
	}
	np := prefixParts(newPrefix)

	out := make([]string, 0, len(np)+len(parts)-len(op))
	out = append(out, np...)
	out = append(out, parts[len(op):]...)
	return join(out, separator(newPrefix, p)), true
}

// Compute derives the substitution from original and chosen, then
// classifies every path in others by whether its rewritten form exists.
// Paths not starting with the old prefix, and rewrites that do not exist,
// land in WouldNotResolve. Input order is preserved in both lists.
func Compute(original, chosen string, others []string, exists ExistsFunc) *Result {
	oldPrefix, newPrefix := FindChangedSubpath(original, chosen)

	res := &Result{
		OldPrefix:       oldPrefix,
		NewPrefix:       newPrefix,
		WouldResolve:    []Resolution{},
		WouldNotResolve: []string{},
	}

	for _, p := range others {
		candidate, ok := Substitute(p, oldPrefix, newPrefix)
		if ok && exists(candidate) {
			res.WouldResolve = append(res.WouldResolve, Resolution{Original: p, Resolved: candidate})
			continue
		}
		res.WouldNotResolve = append(res.WouldNotResolve, p)
	}
	return res
}
