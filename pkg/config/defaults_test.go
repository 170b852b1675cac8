package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Empty(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Upload.SubdirName != "uploads" || cfg.Upload.ProgressInterval != 500*time.Millisecond {
		t.Errorf("Unexpected upload defaults: %+v", cfg.Upload.Config)
	}
	if got := cfg.Upload.Cache.Badger["db_path"]; got != filepath.Join(xdg, "fsbridge", "upload-cache") {
		t.Errorf("Unexpected default badger path %v", got)
	}
	if cfg.Transfer.ChunkSize != 64*1024 || cfg.Transfer.PollInterval != 10*time.Millisecond {
		t.Errorf("Unexpected transfer defaults: %+v", cfg.Transfer)
	}
	if cfg.Adapters.WebRTC.ShutdownTimeout != 10*time.Second {
		t.Errorf("Unexpected webrtc shutdown timeout %v", cfg.Adapters.WebRTC.ShutdownTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", Output: "/var/log/fsbridge.log"},
		Mounts:  []MountConfig{{Path: "/data/raw/", Label: "raw-data"}, {Path: "/data/videos/"}},
		Listing: ListingConfig{PageSize: 50},
		Upload: UploadConfig{
			Cache: CacheConfig{Type: "badger", Badger: map[string]any{"db_path": "/tmp/c"}},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" || cfg.Logging.Output != "/var/log/fsbridge.log" {
		t.Errorf("Logging values not preserved: %+v", cfg.Logging)
	}
	if cfg.Mounts[0].Label != "raw-data" {
		t.Errorf("Explicit label overwritten: %q", cfg.Mounts[0].Label)
	}
	if cfg.Mounts[1].Label != "videos" {
		t.Errorf("Expected label derived from path, got %q", cfg.Mounts[1].Label)
	}
	if cfg.Listing.PageSize != 50 {
		t.Errorf("Page size not preserved: %d", cfg.Listing.PageSize)
	}
	if cfg.Upload.Cache.Badger["db_path"] != "/tmp/c" {
		t.Errorf("Badger path not preserved: %v", cfg.Upload.Cache.Badger["db_path"])
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if len(cfg.Mounts) != 1 || !cfg.Adapters.WebRTC.Enabled {
		t.Errorf("Unexpected default config: mounts=%v webrtc=%v", cfg.Mounts, cfg.Adapters.WebRTC.Enabled)
	}
}
