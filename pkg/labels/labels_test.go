package labels

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

// fakeSet is the label set handled by fakeAdapter.
type fakeSet struct {
	refs []Reference
}

// fakeAdapter serves label sets from memory and records saves.
type fakeAdapter struct {
	sets    map[string]*fakeSet
	saved   map[string]*fakeSet
	loadErr error
}

func (a *fakeAdapter) Load(path string) (LabelSet, error) {
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	set, ok := a.sets[path]
	if !ok {
		return nil, errors.New("no such label file")
	}
	return set, nil
}

func (a *fakeAdapter) References(set LabelSet) []Reference {
	return set.(*fakeSet).refs
}

func (a *fakeAdapter) Remap(set LabelSet, pathMap map[string]string) (LabelSet, error) {
	out := &fakeSet{}
	for _, r := range set.(*fakeSet).refs {
		if p, ok := pathMap[r.OriginalPath]; ok {
			r.OriginalPath = p
			r.Filename = filepath.Base(p)
		}
		out.refs = append(out.refs, r)
	}
	return out, nil
}

func (a *fakeAdapter) Save(set LabelSet, destination string) error {
	if a.saved == nil {
		a.saved = make(map[string]*fakeSet)
	}
	a.saved[destination] = set.(*fakeSet)
	return os.WriteFile(destination, []byte("saved"), 0644)
}

func setup(t *testing.T) (*Service, *fakeAdapter, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	reg, err := mount.NewRegistry([]mount.Mount{{Root: root}})
	require.NoError(t, err)

	adapter := &fakeAdapter{sets: make(map[string]*fakeSet)}
	svc := NewService(reg, adapter)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return svc, adapter, root
}

func TestCheckAccessibility(t *testing.T) {
	svc, adapter, root := setup(t)
	present := filepath.Join(root, "present.mp4")
	require.NoError(t, os.WriteFile(present, nil, 0644))
	outside := filepath.Join(t.TempDir(), "outside.mp4")
	require.NoError(t, os.WriteFile(outside, nil, 0644))

	labelsPath := filepath.Join(root, "labels.slp")
	adapter.sets[labelsPath] = &fakeSet{refs: []Reference{
		{Filename: "present.mp4", OriginalPath: present},
		{Filename: "gone.mp4", OriginalPath: "/Volumes/old/gone.mp4"},
		{Filename: "outside.mp4", OriginalPath: outside},
		{Filename: "inline.mp4", Embedded: true},
	}}

	report, err := svc.CheckAccessibility(labelsPath)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Accessible)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, []MissingReference{
		{Filename: "gone.mp4", OriginalPath: "/Volumes/old/gone.mp4"},
		{Filename: "outside.mp4", OriginalPath: outside},
	}, report.Missing)
}

func TestCheckAccessibilityErrors(t *testing.T) {
	svc, adapter, root := setup(t)

	_, err := svc.CheckAccessibility("/etc/labels.slp")
	assert.Equal(t, fserr.AccessDenied, fserr.CodeOf(err))

	adapter.loadErr = errors.New("corrupt file")
	_, err = svc.CheckAccessibility(filepath.Join(root, "labels.slp"))
	assert.Equal(t, fserr.LabelsError, fserr.CodeOf(err))
	assert.Contains(t, err.Error(), "corrupt file")
}

func TestWriteWithRemap(t *testing.T) {
	svc, adapter, root := setup(t)
	labelsPath := filepath.Join(root, "session.pkg.slp")
	adapter.sets[labelsPath] = &fakeSet{refs: []Reference{
		{Filename: "a.mp4", OriginalPath: "/old/a.mp4"},
		{Filename: "b.mp4", OriginalPath: "/old/b.mp4"},
	}}
	outDir := filepath.Join(root, "out")
	require.NoError(t, os.Mkdir(outDir, 0755))

	res, err := svc.WriteWithRemap(labelsPath, outDir, map[string]string{
		"/old/a.mp4":     "/new/a.mp4",
		"/old/other.mp4": "/new/other.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "resolved_20261019_session.pkg.slp"), res.OutputPath)
	assert.Equal(t, 1, res.UpdatedCount)

	saved := adapter.saved[res.OutputPath]
	require.NotNil(t, saved)
	assert.Equal(t, "/new/a.mp4", saved.refs[0].OriginalPath)
	assert.Equal(t, "/old/b.mp4", saved.refs[1].OriginalPath)
	assert.Equal(t, "/old/a.mp4", adapter.sets[labelsPath].refs[0].OriginalPath, "source untouched")
}

func TestWriteWithRemapOutputDirChecks(t *testing.T) {
	svc, adapter, root := setup(t)
	labelsPath := filepath.Join(root, "labels.slp")
	adapter.sets[labelsPath] = &fakeSet{}

	_, err := svc.WriteWithRemap(labelsPath, t.TempDir(), nil)
	assert.Equal(t, fserr.AccessDenied, fserr.CodeOf(err))

	_, err = svc.WriteWithRemap(labelsPath, filepath.Join(root, "missing"), nil)
	assert.Equal(t, fserr.PathNotFound, fserr.CodeOf(err))

	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0644))
	_, err = svc.WriteWithRemap(labelsPath, filepath.Join(root, "file"), nil)
	assert.Equal(t, fserr.PathNotFound, fserr.CodeOf(err))
}

func TestOutputName(t *testing.T) {
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		source string
		want   string
	}{
		{"/data/labels.v001.slp", "resolved_20250102_labels.v001.slp"},
		{"/data/labels.v001.pkg.slp", "resolved_20250102_labels.v001.pkg.slp"},
		{"/data/manifest.yaml", "resolved_20250102_manifest.yaml"},
		{"/data/noext", "resolved_20250102_noext"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputName(tt.source, date))
		})
	}
}
