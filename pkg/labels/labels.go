// Package labels is the boundary between the engine and annotation files.
//
// Annotation formats are handled by an Adapter with a four-method
// capability set. The Service on top of it adds what the engine needs:
// sandbox checks, accessibility reports for referenced media, and writing a
// copy of a label file with broken media paths remapped.
package labels

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

// LabelSet is an adapter-owned, loaded annotation file. The Service never
// inspects it.
type LabelSet any

// Reference is one media file referenced by a label set.
type Reference struct {
	Filename     string
	OriginalPath string
	// Embedded media travels inside the label file and needs no external
	// file.
	Embedded bool
}

// Adapter loads, inspects, rewrites and saves one annotation format.
type Adapter interface {
	Load(path string) (LabelSet, error)
	References(set LabelSet) []Reference
	// Remap returns a label set whose reference paths are replaced per
	// pathMap (original path -> new path). The input is not modified.
	Remap(set LabelSet, pathMap map[string]string) (LabelSet, error)
	Save(set LabelSet, destination string) error
}

// MissingReference is an external reference whose file is not reachable.
type MissingReference struct {
	Filename     string `json:"filename"`
	OriginalPath string `json:"original_path"`
}

// Accessibility summarizes which references of a label file can be opened.
type Accessibility struct {
	Total      int                `json:"total"`
	Accessible int                `json:"accessible"`
	Missing    []MissingReference `json:"missing"`
	Embedded   int                `json:"embedded"`
}

// Rewrite is the outcome of WriteWithRemap.
type Rewrite struct {
	OutputPath   string `json:"output_path"`
	UpdatedCount int    `json:"updated_count"`
}

// Service applies an Adapter within the mounts.
type Service struct {
	mounts  *mount.Registry
	adapter Adapter
	now     func() time.Time
}

// NewService creates a Service.
func NewService(mounts *mount.Registry, adapter Adapter) *Service {
	return &Service{mounts: mounts, adapter: adapter, now: time.Now}
}

func (s *Service) load(path string) (string, LabelSet, error) {
	resolved, err := s.mounts.Resolve(path)
	if err != nil {
		return "", nil, err
	}
	set, err := s.adapter.Load(resolved)
	if err != nil {
		return "", nil, fserr.Wrap(fserr.LabelsError, err, "failed to load %s", path)
	}
	return resolved, set, nil
}

// CheckAccessibility loads the label file at path and buckets each external
// reference as accessible or missing. A reference outside the mounts counts
// as missing.
func (s *Service) CheckAccessibility(path string) (*Accessibility, error) {
	_, set, err := s.load(path)
	if err != nil {
		return nil, err
	}

	refs := s.adapter.References(set)
	report := &Accessibility{Total: len(refs), Missing: []MissingReference{}}
	for _, ref := range refs {
		if ref.Embedded {
			report.Embedded++
			continue
		}
		if s.mounts.Exists(ref.OriginalPath) {
			report.Accessible++
			continue
		}
		report.Missing = append(report.Missing, MissingReference{
			Filename:     ref.Filename,
			OriginalPath: ref.OriginalPath,
		})
	}

	logger.Debug("Checked %s: %d references, %d accessible, %d missing, %d embedded",
		path, report.Total, report.Accessible, len(report.Missing), report.Embedded)
	return report, nil
}

// WriteWithRemap saves a copy of the label file at source into outputDir
// with reference paths replaced per pathMap. UpdatedCount is the number of
// pathMap keys that actually occur among the source's references.
//
// Errors:
//   - ACCESS_DENIED: source or outputDir outside the mounts
//   - PATH_NOT_FOUND: outputDir missing or not a directory
//   - LABELS_ERROR: the adapter failed to load, remap or save
func (s *Service) WriteWithRemap(source, outputDir string, pathMap map[string]string) (*Rewrite, error) {
	dir, err := s.mounts.Resolve(outputDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fserr.New(fserr.PathNotFound, "output directory %s does not exist", outputDir)
	}

	resolvedSource, set, err := s.load(source)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool)
	for _, ref := range s.adapter.References(set) {
		present[ref.OriginalPath] = true
	}
	updated := 0
	for old := range pathMap {
		if present[old] {
			updated++
		}
	}

	remapped, err := s.adapter.Remap(set, pathMap)
	if err != nil {
		return nil, fserr.Wrap(fserr.LabelsError, err, "failed to remap %s", source)
	}

	out, err := s.mounts.Resolve(filepath.Join(dir, OutputName(resolvedSource, s.now())))
	if err != nil {
		return nil, err
	}
	if err := s.adapter.Save(remapped, out); err != nil {
		return nil, fserr.Wrap(fserr.LabelsError, err, "failed to save %s", out)
	}

	logger.Info("Wrote %s with %d remapped references", out, updated)
	return &Rewrite{OutputPath: out, UpdatedCount: updated}, nil
}

// OutputName is the file name a rewritten copy of source gets on date:
// resolved_<YYYYMMDD>_<stem>[.pkg].<ext>. A ".pkg" infix before the final
// extension is kept.
func OutputName(source string, date time.Time) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	pkg := ""
	if strings.HasSuffix(stem, ".pkg") {
		pkg = ".pkg"
		stem = strings.TrimSuffix(stem, pkg)
	}
	return "resolved_" + date.Format("20060102") + "_" + stem + pkg + ext
}
