package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/fsbridge/internal/protocol"
	"github.com/marmos91/fsbridge/pkg/adapter/webrtc"
	"github.com/marmos91/fsbridge/pkg/listing"
	"github.com/marmos91/fsbridge/pkg/search"
	"github.com/marmos91/fsbridge/pkg/upload"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Mounts are never invented; an empty list fails validation
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMountDefaults(cfg.Mounts)
	applyListingDefaults(&cfg.Listing)
	applySearchDefaults(&cfg.Search)
	applyUploadDefaults(&cfg.Upload)
	applyTransferDefaults(&cfg.Transfer)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyMountDefaults(mounts []MountConfig) {
	for i := range mounts {
		if mounts[i].Label == "" && mounts[i].Path != "" {
			mounts[i].Label = filepath.Base(filepath.Clean(mounts[i].Path))
		}
	}
}

func applyListingDefaults(cfg *ListingConfig) {
	if cfg.PageSize == 0 {
		cfg.PageSize = listing.DefaultPageSize
	}
}

func applySearchDefaults(cfg *search.Config) {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = search.DefaultMaxDepth
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = search.DefaultTimeout
	}
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = search.DefaultMaxCandidates
	}
}

func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.SubdirName == "" {
		cfg.SubdirName = upload.DefaultSubdirName
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = upload.DefaultProgressInterval
	}
	if cfg.Digest == "" {
		cfg.Digest = upload.DigestSHA256
	}
	cfg.Digest = strings.ToLower(cfg.Digest)

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.Memory == nil {
		cfg.Cache.Memory = make(map[string]any)
	}
	if cfg.Cache.Badger == nil {
		cfg.Cache.Badger = make(map[string]any)
	}
	if _, ok := cfg.Cache.Badger["db_path"]; !ok {
		cfg.Cache.Badger["db_path"] = filepath.Join(getConfigDir(), "upload-cache")
	}
}

func applyTransferDefaults(cfg *protocol.TransferConfig) {
	cfg.ApplyDefaults()
}

func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if cfg.WebRTC.ListenAddr == "" {
		cfg.WebRTC.ListenAddr = webrtc.DefaultListenAddr
	}
	if cfg.WebRTC.ShutdownTimeout == 0 {
		cfg.WebRTC.ShutdownTimeout = webrtc.DefaultShutdownTimeout
	}
	if cfg.WebRTC.GatherTimeout == 0 {
		cfg.WebRTC.GatherTimeout = webrtc.DefaultGatherTimeout
	}
	if cfg.WebRTC.ICEServers == nil {
		cfg.WebRTC.ICEServers = []string{}
	}
}

// GetDefaultConfig returns a Config with all default values applied, the
// WebRTC adapter enabled and the user's home directory as the only mount.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{
		Mounts: []MountConfig{{Path: home, Label: "home"}},
		Adapters: AdaptersConfig{
			WebRTC: webrtc.Config{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
