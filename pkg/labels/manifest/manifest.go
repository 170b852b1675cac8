// Package manifest is a labels.Adapter for YAML label manifests:
//
//	videos:
//	  - filename: /data/session1/cam0.mp4
//	  - filename: cam1.mp4
//	    embedded: true
//	skeleton: {...}
//
// Keys other than the video list, and unknown keys of each video, are
// carried through Remap and Save unchanged.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/fsbridge/pkg/labels"
)

// Video is one media entry of a manifest.
type Video struct {
	Filename string         `yaml:"filename"`
	Embedded bool           `yaml:"embedded,omitempty"`
	Extra    map[string]any `yaml:",inline"`
}

// Manifest is a loaded label manifest.
type Manifest struct {
	Videos []Video        `yaml:"videos"`
	Extra  map[string]any `yaml:",inline"`
}

// Adapter reads and writes Manifest files.
type Adapter struct{}

var _ labels.Adapter = Adapter{}

func (Adapter) Load(path string) (labels.LabelSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

func asManifest(set labels.LabelSet) (*Manifest, error) {
	m, ok := set.(*Manifest)
	if !ok {
		return nil, fmt.Errorf("unexpected label set type %T", set)
	}
	return m, nil
}

func (Adapter) References(set labels.LabelSet) []labels.Reference {
	m, err := asManifest(set)
	if err != nil {
		return nil
	}

	refs := make([]labels.Reference, 0, len(m.Videos))
	for _, v := range m.Videos {
		refs = append(refs, labels.Reference{
			Filename:     filepath.Base(v.Filename),
			OriginalPath: v.Filename,
			Embedded:     v.Embedded,
		})
	}
	return refs
}

func (Adapter) Remap(set labels.LabelSet, pathMap map[string]string) (labels.LabelSet, error) {
	m, err := asManifest(set)
	if err != nil {
		return nil, err
	}

	out := &Manifest{Extra: m.Extra, Videos: make([]Video, len(m.Videos))}
	copy(out.Videos, m.Videos)
	for i := range out.Videos {
		if p, ok := pathMap[out.Videos[i].Filename]; ok && !out.Videos[i].Embedded {
			out.Videos[i].Filename = p
		}
	}
	return out, nil
}

// Save writes the manifest next to destination and renames it into place,
// so readers never observe a partial file.
func (Adapter) Save(set labels.LabelSet, destination string) error {
	m, err := asManifest(set)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), ".manifest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destination)
}
