package webrtc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/fsbridge/internal/protocol"
)

const (
	DefaultListenAddr      = ":7400"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultGatherTimeout   = 10 * time.Second

	// maxOfferSize caps the body of a signaling request.
	maxOfferSize = 64 * 1024
)

// Config configures the WebRTC adapter.
type Config struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// ListenAddr is the TCP address of the HTTP signaling endpoint.
	// Default: ":7400"
	ListenAddr string `mapstructure:"listen_addr"`

	// ICEServers lists STUN/TURN URLs offered to the ICE agent. Empty means
	// host candidates only.
	ICEServers []string `mapstructure:"ice_servers"`

	// Token, when set, must be presented as "Authorization: Bearer <token>"
	// on every offer.
	Token string `mapstructure:"token"`

	// RequestsPerSecond limits the text requests of each peer. 0 disables
	// limiting. Binary upload chunks are not counted; the data channel's
	// own flow control paces them.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the per-peer bucket size. 0 selects twice RequestsPerSecond.
	Burst uint `mapstructure:"burst"`

	// ShutdownTimeout bounds how long Serve waits for sessions to close
	// once its context is cancelled.
	// Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`

	// GatherTimeout bounds ICE candidate gathering while answering an offer.
	// Default: 10s
	GatherTimeout time.Duration `mapstructure:"gather_timeout" validate:"gte=0"`

	// IncludeLoopback adds loopback ICE candidates, for peers on the same
	// host.
	IncludeLoopback bool `mapstructure:"include_loopback"`

	// Transfer tunes outbound downloads. Filled from the top-level transfer
	// section.
	Transfer protocol.TransferConfig `mapstructure:"-"`
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = DefaultGatherTimeout
	}
	c.Transfer.ApplyDefaults()
}

func (c *Config) validate() error {
	if _, err := listenPort(c.ListenAddr); err != nil {
		return err
	}
	for _, u := range c.ICEServers {
		if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
			return fmt.Errorf("invalid ICE server URL %q: want stun:, turn: or turns: scheme", u)
		}
	}
	return nil
}

// listenPort extracts the port of a host:port address.
func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid listen port %q", p)
	}
	return port, nil
}
