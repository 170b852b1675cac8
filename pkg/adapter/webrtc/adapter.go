// Package webrtc serves peers over WebRTC data channels.
//
// Peers post an SDP offer to the HTTP signaling endpoint and receive the
// answer with all ICE candidates gathered. Every data channel the peer then
// opens is bound to a fresh worker.Engine and speaks the text protocol of
// internal/protocol: string messages are requests, binary messages upload
// chunks. The data channel's buffered amount is the backpressure signal for
// downloads.
package webrtc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/internal/ratelimiter"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// Adapter accepts WebRTC peers.
//
// Architecture:
//   - an HTTP server answers offers on POST /offer
//   - one PeerConnection per offer, tracked as a peer with its own rate limiter
//   - one session goroutine per data channel, owning a worker.Engine
//
// Graceful shutdown:
//  1. Stop closes the signaling server so no new peers arrive
//  2. session contexts are cancelled, interrupting paused downloads
//  3. every PeerConnection is closed
//  4. Stop waits for session goroutines (aborting their uploads) until its
//     context expires
//
// Thread safety:
// Serve and Stop may be called concurrently.
type Adapter struct {
	config  Config
	metrics metrics.WorkerMetrics
	deps    worker.Deps
	api     *pion.API
	http    *http.Server

	port atomic.Int32

	mu    sync.Mutex
	peers map[string]*peer

	activePeers atomic.Int32
	sessions    sync.WaitGroup

	// sessionCtx is the parent of every session context.
	sessionCtx     context.Context
	cancelSessions context.CancelFunc

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates an Adapter. A nil m selects no-op metrics.
//
// The adapter is not usable until the server injects its dependencies with
// SetDeps.
func New(config Config, m metrics.WorkerMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewNoopWorkerMetrics()
	}

	se := pion.SettingEngine{}
	if config.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		config:         config,
		metrics:        m,
		api:            pion.NewAPI(pion.WithSettingEngine(se)),
		peers:          make(map[string]*peer),
		sessionCtx:     sessionCtx,
		cancelSessions: cancel,
		shutdown:       make(chan struct{}),
	}

	a.http = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// SetDeps implements adapter.Adapter.
func (a *Adapter) SetDeps(deps worker.Deps) {
	a.deps = deps
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() string {
	return "WebRTC"
}

// Port returns the bound signaling port once Serve is listening, else the
// configured one.
func (a *Adapter) Port() int {
	if p := a.port.Load(); p > 0 {
		return int(p)
	}
	p, _ := listenPort(a.config.ListenAddr)
	return p
}

// Handler returns the signaling HTTP handler.
func (a *Adapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/offer", a.handleOffer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}

// Serve implements adapter.Adapter.
func (a *Adapter) Serve(ctx context.Context) error {
	if a.deps.Mounts == nil || a.deps.Cache == nil || a.deps.Labels == nil {
		return errors.New("webrtc adapter: dependencies not set")
	}

	ln, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("webrtc adapter: listen on %s: %w", a.config.ListenAddr, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		a.port.Store(int32(tcp.Port))
	}
	logger.Info("WebRTC signaling listening on %s", ln.Addr())

	srvErr := make(chan error, 1)
	go func() {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The serving ctx is already cancelled; shut down on a fresh one.
		stopCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			logger.Warn("WebRTC adapter shutdown: %v", err)
		}
		return ctx.Err()

	case <-a.shutdown:
		return nil

	case err := <-srvErr:
		return fmt.Errorf("webrtc adapter: signaling server: %w", err)
	}
}

// Stop implements adapter.Adapter.
func (a *Adapter) Stop(ctx context.Context) error {
	var stopErr error
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		logger.Info("WebRTC adapter shutting down")

		if err := a.http.Shutdown(ctx); err != nil {
			logger.Debug("Signaling server shutdown: %v", err)
		}

		a.cancelSessions()

		a.mu.Lock()
		peers := make([]*peer, 0, len(a.peers))
		for _, p := range a.peers {
			peers = append(peers, p)
		}
		a.mu.Unlock()
		for _, p := range peers {
			a.closePeer(p)
		}

		done := make(chan struct{})
		go func() {
			a.sessions.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("WebRTC adapter stopped, all sessions closed")
		case <-ctx.Done():
			stopErr = fmt.Errorf("webrtc adapter: sessions still open: %w", ctx.Err())
		}
	})
	return stopErr
}

func (a *Adapter) stopping() bool {
	select {
	case <-a.shutdown:
		return true
	default:
		return false
	}
}

// handleOffer answers POST /offer with a JSON SessionDescription.
func (a *Adapter) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.authorized(r) {
		logger.Debug("Rejected offer from %s: bad token", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if a.stopping() || a.deps.Mounts == nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	var offer pion.SessionDescription
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOfferSize)).Decode(&offer); err != nil {
		http.Error(w, "invalid offer: "+err.Error(), http.StatusBadRequest)
		return
	}
	if offer.Type != pion.SDPTypeOffer || offer.SDP == "" {
		http.Error(w, "invalid offer: expected an SDP offer", http.StatusBadRequest)
		return
	}

	answer, err := a.accept(r.Context(), offer)
	if err != nil {
		logger.Warn("Failed to answer offer from %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

func (a *Adapter) authorized(r *http.Request) bool {
	if a.config.Token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(a.config.Token)) == 1
}

// accept creates the PeerConnection for offer and returns its answer once
// ICE gathering completes.
func (a *Adapter) accept(ctx context.Context, offer pion.SessionDescription) (*pion.SessionDescription, error) {
	cfg := pion.Configuration{}
	if len(a.config.ICEServers) > 0 {
		cfg.ICEServers = []pion.ICEServer{{URLs: a.config.ICEServers}}
	}

	pc, err := a.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := a.register(pc)

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		a.attach(p, dc)
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug("Connection state %s", state)
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			// Closing from inside a pion callback can deadlock.
			go a.closePeer(p)
		}
	})

	fail := func(format string, err error) (*pion.SessionDescription, error) {
		a.closePeer(p)
		return nil, fmt.Errorf(format, err)
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail("create answer: %w", err)
	}

	gatherComplete := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(a.config.GatherTimeout):
		return fail("ICE gathering: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return fail("ICE gathering: %w", ctx.Err())
	}

	p.log.Info("Peer connected")
	return pc.LocalDescription(), nil
}

// peer is one PeerConnection and the sessions of its data channels.
type peer struct {
	id      string
	pc      *pion.PeerConnection
	limiter *ratelimiter.RateLimiter
	log     logger.Entry

	mu       sync.Mutex
	sessions []*session
	closed   bool
}

func (a *Adapter) register(pc *pion.PeerConnection) *peer {
	id := uuid.NewString()
	p := &peer{
		id:      id,
		pc:      pc,
		limiter: ratelimiter.New(a.config.RequestsPerSecond, a.config.Burst),
		log:     logger.With(logger.Fields{"peer": id}),
	}

	a.mu.Lock()
	a.peers[id] = p
	a.mu.Unlock()

	a.metrics.SetActivePeers(a.activePeers.Add(1))
	return p
}

// attach binds a newly opened data channel to a fresh engine.
func (a *Adapter) attach(p *peer, dc *pion.DataChannel) {
	log := p.log.With(logger.Fields{"channel": dc.Label()})

	engine, err := worker.New(a.deps, a.metrics)
	if err != nil {
		log.Error("Failed to create engine: %v", err)
		_ = dc.Close()
		return
	}

	s := newSession(a.sessionCtx, dc.Label(), engine, dc, p.limiter, a.config.Transfer, a.metrics, log)

	p.mu.Lock()
	if p.closed || a.stopping() {
		p.mu.Unlock()
		s.close()
		_ = engine.Close()
		_ = dc.Close()
		return
	}
	p.sessions = append(p.sessions, s)
	a.sessions.Add(1)
	p.mu.Unlock()

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		s.deliver(msg.IsString, msg.Data)
	})
	dc.OnClose(s.close)

	go func() {
		defer a.sessions.Done()
		s.run()
	}()

	log.Debug("Data channel attached")
}

// closePeer closes every session of p and its PeerConnection. Idempotent.
func (a *Adapter) closePeer(p *peer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	if err := p.pc.Close(); err != nil {
		p.log.Debug("Close peer connection: %v", err)
	}

	a.mu.Lock()
	delete(a.peers, p.id)
	a.mu.Unlock()

	a.metrics.SetActivePeers(a.activePeers.Add(-1))
	p.log.Info("Peer disconnected")
}
