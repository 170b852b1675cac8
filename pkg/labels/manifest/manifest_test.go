package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/fsbridge/pkg/labels"
)

const sample = `videos:
  - filename: /Volumes/talmo/day1/cam0.mp4
    fps: 30
  - filename: cam1.mp4
    embedded: true
skeleton:
  nodes: [head, thorax]
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))
	return path
}

func TestReferences(t *testing.T) {
	a := Adapter{}
	set, err := a.Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, []labels.Reference{
		{Filename: "cam0.mp4", OriginalPath: "/Volumes/talmo/day1/cam0.mp4"},
		{Filename: "cam1.mp4", OriginalPath: "cam1.mp4", Embedded: true},
	}, a.References(set))
}

func TestRemapAndSavePreservesOtherKeys(t *testing.T) {
	a := Adapter{}
	src := writeSample(t)
	set, err := a.Load(src)
	require.NoError(t, err)

	remapped, err := a.Remap(set, map[string]string{
		"/Volumes/talmo/day1/cam0.mp4": "/vast/day1/cam0.mp4",
		"cam1.mp4":                     "/vast/cam1.mp4",
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, a.Save(remapped, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "skeleton")

	reloaded, err := a.Load(dest)
	require.NoError(t, err)
	m := reloaded.(*Manifest)
	assert.Equal(t, "/vast/day1/cam0.mp4", m.Videos[0].Filename)
	assert.Equal(t, 30, m.Videos[0].Extra["fps"])
	assert.Equal(t, "cam1.mp4", m.Videos[1].Filename, "embedded media is not remapped")

	orig := set.(*Manifest)
	assert.Equal(t, "/Volumes/talmo/day1/cam0.mp4", orig.Videos[0].Filename, "source set untouched")
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("videos: [unclosed"), 0644))

	_, err := Adapter{}.Load(path)
	assert.Error(t, err)

	_, err = Adapter{}.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
