package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/mount"
)

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func newResolver(t *testing.T, mounts ...mount.Mount) *Resolver {
	t.Helper()
	reg, err := mount.NewRegistry(mounts)
	require.NoError(t, err)
	return New(reg, Config{})
}

func TestResolveExactBeatsSubstring(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "fly.slp"), 10)
	writeFile(t, filepath.Join(root, "fly_tracking.slp"), 10)
	r := newResolver(t, mount.Mount{Root: root, Label: "lab"})

	res, err := r.Resolve(context.Background(), Query{Pattern: "fly.slp"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "fly.slp", res.Candidates[0].Name)
	assert.Equal(t, MatchExact, res.Candidates[0].Match)
	assert.Equal(t, 100.0, res.Candidates[0].Score)
	assert.Equal(t, "lab", res.Candidates[0].Mount)

	res, err = r.Resolve(context.Background(), Query{Pattern: "fly"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	for _, c := range res.Candidates {
		assert.Equal(t, MatchSubstring, c.Match)
		assert.Equal(t, 25.0, c.Score)
	}
	// Equal scores: the shorter path ranks first.
	assert.Equal(t, "fly.slp", res.Candidates[0].Name)
}

func TestResolveCaseInsensitive(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "Session1.MP4"), 1)
	r := newResolver(t, mount.Mount{Root: root})

	res, err := r.Resolve(context.Background(), Query{Pattern: "session1.mp4"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, MatchExact, res.Candidates[0].Match)
}

func TestResolveWildcard(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "a.mp4"), 1)
	writeFile(t, filepath.Join(root, "b.avi"), 1)
	r := newResolver(t, mount.Mount{Root: root})

	res, err := r.Resolve(context.Background(), Query{Pattern: "*.mp4"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, MatchWildcard, res.Candidates[0].Match)
	assert.Equal(t, 50.0, res.Candidates[0].Score)
}

func TestResolvePatternTooBroad(t *testing.T) {
	r := newResolver(t, mount.Mount{Root: tempRoot(t)})

	for _, p := range []string{"*.x", "*", "??", "*a*"} {
		res, err := r.Resolve(context.Background(), Query{Pattern: p})
		assert.Nil(t, res, p)
		assert.Equal(t, fserr.PatternTooBroad, fserr.CodeOf(err), p)
	}

	_, err := r.Resolve(context.Background(), Query{Pattern: ""})
	assert.Equal(t, fserr.InvalidArgument, fserr.CodeOf(err))
}

func TestResolveUnknownMountLabel(t *testing.T) {
	r := newResolver(t, mount.Mount{Root: tempRoot(t), Label: "lab"})

	_, err := r.Resolve(context.Background(), Query{Pattern: "video.mp4", MountLabel: "other"})
	assert.Equal(t, fserr.MountNotFound, fserr.CodeOf(err))
}

func TestResolveMountLabelFilter(t *testing.T) {
	a, b := tempRoot(t), tempRoot(t)
	writeFile(t, filepath.Join(a, "clip.mp4"), 1)
	writeFile(t, filepath.Join(b, "clip.mp4"), 1)
	r := newResolver(t, mount.Mount{Root: a, Label: "a"}, mount.Mount{Root: b, Label: "b"})

	res, err := r.Resolve(context.Background(), Query{Pattern: "clip.mp4"})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)

	res, err = r.Resolve(context.Background(), Query{Pattern: "clip.mp4", MountLabel: "b"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, filepath.Join(b, "clip.mp4"), res.Candidates[0].Path)
}

func TestResolveTruncatesToMaxCandidates(t *testing.T) {
	tests := []struct {
		files     int
		want      int
		truncated bool
	}{
		{20, 20, false},
		{21, 20, true},
		{25, 20, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d files", tt.files), func(t *testing.T) {
			root := tempRoot(t)
			for i := 0; i < tt.files; i++ {
				writeFile(t, filepath.Join(root, fmt.Sprintf("take%02d.mp4", i)), 1)
			}
			r := newResolver(t, mount.Mount{Root: root})

			res, err := r.Resolve(context.Background(), Query{Pattern: "take"})
			require.NoError(t, err)
			assert.Len(t, res.Candidates, tt.want)
			assert.Equal(t, tt.truncated, res.Truncated)
		})
	}
}

func TestResolveSizeBonus(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "a", "rec.mp4"), 1000)
	writeFile(t, filepath.Join(root, "b", "rec.mp4"), 1050)
	writeFile(t, filepath.Join(root, "c", "rec.mp4"), 2000)
	r := newResolver(t, mount.Mount{Root: root})

	size := int64(1000)
	res, err := r.Resolve(context.Background(), Query{Pattern: "rec.mp4", ExpectedSize: &size})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)

	// One directory down: 0.1 depth penalty on each.
	assert.Equal(t, filepath.Join(root, "a", "rec.mp4"), res.Candidates[0].Path)
	assert.Equal(t, 119.9, res.Candidates[0].Score)
	assert.Equal(t, filepath.Join(root, "b", "rec.mp4"), res.Candidates[1].Path)
	assert.Equal(t, 109.9, res.Candidates[1].Score)
	assert.Equal(t, filepath.Join(root, "c", "rec.mp4"), res.Candidates[2].Path)
	assert.Equal(t, 99.9, res.Candidates[2].Score)
}

func TestResolveDepthBound(t *testing.T) {
	root := tempRoot(t)
	shallow := filepath.Join(root, "1", "2", "3", "4", "5", "deep.bin")
	tooDeep := filepath.Join(root, "1", "2", "3", "4", "5", "6", "deep.bin")
	writeFile(t, shallow, 1)
	writeFile(t, tooDeep, 1)
	r := newResolver(t, mount.Mount{Root: root})

	res, err := r.Resolve(context.Background(), Query{Pattern: "deep.bin"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, shallow, res.Candidates[0].Path)
	assert.Equal(t, 99.5, res.Candidates[0].Score)

	res, err = r.Resolve(context.Background(), Query{Pattern: "deep.bin", MaxDepth: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestResolveSymlinks(t *testing.T) {
	root := tempRoot(t)
	outside := tempRoot(t)
	writeFile(t, filepath.Join(outside, "secret.key"), 1)
	writeFile(t, filepath.Join(outside, "dir", "secret.key"), 1)
	writeFile(t, filepath.Join(root, "real", "inner.dat"), 1)

	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.key"), filepath.Join(root, "secret.key")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "dir"), filepath.Join(root, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(root, "real", "inner.dat"), filepath.Join(root, "alias_inner.dat")))
	r := newResolver(t, mount.Mount{Root: root})

	res, err := r.Resolve(context.Background(), Query{Pattern: "secret.key"})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates, "links leaving the mount are never reported")

	res, err = r.Resolve(context.Background(), Query{Pattern: "inner.dat"})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
}

func TestResolveSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "locked", "clip.mp4"), 1)
	writeFile(t, filepath.Join(root, "open", "clip.mp4"), 1)
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })
	r := newResolver(t, mount.Mount{Root: root})

	res, err := r.Resolve(context.Background(), Query{Pattern: "clip.mp4"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, filepath.Join(root, "open", "clip.mp4"), res.Candidates[0].Path)
}

func TestResolveTimeout(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "clip.mp4"), 1)
	r := newResolver(t, mount.Mount{Root: root})

	// Every reading of the clock advances it past the deadline.
	base := time.Unix(1_700_000_000, 0)
	calls := 0
	r.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * time.Minute)
	}

	res, err := r.Resolve(context.Background(), Query{Pattern: "clip.mp4"})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Empty(t, res.Candidates)
	assert.Positive(t, res.SearchTimeMS)
}

func TestResolveCancelledContext(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "clip.mp4"), 1)
	r := newResolver(t, mount.Mount{Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Resolve(ctx, Query{Pattern: "clip.mp4"})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.NotNil(t, res.Candidates)
}
