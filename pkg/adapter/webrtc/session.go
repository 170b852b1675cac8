package webrtc

import (
	"context"
	"sync"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/internal/protocol"
	"github.com/marmos91/fsbridge/internal/ratelimiter"
	"github.com/marmos91/fsbridge/pkg/fserr"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// inboxSize is how many frames may wait for the session goroutine before
// the transport's read loop blocks.
const inboxSize = 64

type frame struct {
	text bool
	data []byte
}

// session binds one data channel to its own engine. Frames are queued by
// the transport callback and handled in order by a single goroutine.
type session struct {
	id      string
	engine  *worker.Engine
	handler *protocol.Handler
	channel protocol.Channel
	limiter *ratelimiter.RateLimiter
	metrics metrics.WorkerMetrics
	log     logger.Entry

	inbox  chan frame
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

func newSession(
	parent context.Context,
	id string,
	engine *worker.Engine,
	channel protocol.Channel,
	limiter *ratelimiter.RateLimiter,
	transfer protocol.TransferConfig,
	m metrics.WorkerMetrics,
	log logger.Entry,
) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		id:      id,
		engine:  engine,
		handler: protocol.NewHandler(engine, channel, transfer, m, log),
		channel: channel,
		limiter: limiter,
		metrics: m,
		log:     log,
		inbox:   make(chan frame, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// deliver queues a frame. It blocks while the inbox is full and drops the
// frame once the session is closed.
func (s *session) deliver(text bool, data []byte) {
	select {
	case s.inbox <- frame{text: text, data: data}:
	case <-s.ctx.Done():
	}
}

// run handles queued frames until the session is closed, then releases the
// engine, aborting any upload in progress.
func (s *session) run() {
	defer close(s.done)
	defer func() {
		if err := s.engine.Close(); err != nil {
			s.log.Warn("Failed to release engine: %v", err)
		}
		s.log.Debug("Session closed")
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.inbox:
			s.handle(f)
		}
	}
}

func (s *session) handle(f frame) {
	if !f.text {
		s.handler.HandleBinary(s.ctx, f.data)
		return
	}

	if !s.limiter.Allow() {
		s.metrics.RecordRateLimited()
		s.log.Debug("Rate limited %s", protocol.OpOf(string(f.data)))
		reply := protocol.Join(protocol.ReplyError, string(fserr.RateLimited), "rate limit exceeded")
		if err := s.channel.SendText(reply); err != nil {
			s.log.Warn("Failed to send reply: %v", err)
		}
		return
	}
	s.handler.HandleText(s.ctx, string(f.data))
}

// close stops the session. It is safe to call more than once and from any
// goroutine; wait for s.done to know the engine was released.
func (s *session) close() {
	s.closeOnce.Do(s.cancel)
}
