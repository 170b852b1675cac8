package webrtc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/internal/protocol"
	"github.com/marmos91/fsbridge/internal/ratelimiter"
	"github.com/marmos91/fsbridge/pkg/cache/memory"
	"github.com/marmos91/fsbridge/pkg/labels/manifest"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/mount"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// recordingChannel collects text replies.
type recordingChannel struct {
	mu    sync.Mutex
	texts []string
}

func (c *recordingChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *recordingChannel) Send([]byte) error      { return nil }
func (c *recordingChannel) BufferedAmount() uint64 { return 0 }

func (c *recordingChannel) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func testDeps(t *testing.T) (worker.Deps, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	reg, err := mount.NewRegistry([]mount.Mount{{Root: root, Label: "data"}})
	require.NoError(t, err)
	c := memory.New()
	t.Cleanup(func() { _ = c.Close() })
	return worker.Deps{Mounts: reg, Cache: c, Labels: manifest.Adapter{}}, root
}

func startSession(t *testing.T, deps worker.Deps, limiter *ratelimiter.RateLimiter) (*session, *recordingChannel) {
	t.Helper()
	engine, err := worker.New(deps, nil)
	require.NoError(t, err)

	ch := &recordingChannel{}
	s := newSession(context.Background(), "test", engine, ch, limiter,
		protocol.TransferConfig{}, metrics.NewNoopWorkerMetrics(), logger.With(logger.Fields{"peer": "test"}))
	go s.run()
	t.Cleanup(func() {
		s.close()
		<-s.done
	})
	return s, ch
}

func TestSessionHandlesFramesInOrder(t *testing.T) {
	deps, root := testDeps(t)
	s, ch := startSession(t, deps, ratelimiter.New(0, 0))

	s.deliver(true, []byte("UPLOAD_START::a.bin::6::"+root+"::false"))
	s.deliver(false, []byte("abc"))
	s.deliver(false, []byte("def"))
	s.deliver(true, []byte("UPLOAD_FINISH"))

	complete := protocol.Join(protocol.ReplyUploadComplete, filepath.Join(root, "a.bin"))
	require.Eventually(t, func() bool {
		r := ch.replies()
		return len(r) > 0 && r[len(r)-1] == complete
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, protocol.ReplyUploadReady, ch.replies()[0])
	data, err := os.ReadFile(filepath.Join(root, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestSessionRateLimitsTextFrames(t *testing.T) {
	deps, _ := testDeps(t)
	s, ch := startSession(t, deps, ratelimiter.New(1, 2))

	for i := 0; i < 3; i++ {
		s.deliver(true, []byte("GET_MOUNTS"))
	}

	require.Eventually(t, func() bool { return len(ch.replies()) == 3 }, 5*time.Second, 10*time.Millisecond)
	r := ch.replies()

	var mounts []mount.Mount
	require.NoError(t, json.Unmarshal([]byte(r[0]), &mounts))
	assert.Len(t, mounts, 1)
	assert.Equal(t, "ERROR::RATE_LIMITED::rate limit exceeded", r[2])
}

func TestSessionCloseAbortsUpload(t *testing.T) {
	deps, root := testDeps(t)
	s, ch := startSession(t, deps, ratelimiter.New(0, 0))

	s.deliver(true, []byte("UPLOAD_START::partial.bin::100::"+root+"::false"))
	s.deliver(false, []byte("abc"))
	require.Eventually(t, func() bool { return len(ch.replies()) >= 1 }, 5*time.Second, 10*time.Millisecond)

	s.close()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload removed")

	s.deliver(true, []byte("GET_MOUNTS"))
}
