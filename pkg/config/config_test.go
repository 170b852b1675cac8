package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

mounts:
  - path: "/srv/data"

adapters:
  webrtc:
    enabled: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Mounts[0].Label != "data" {
		t.Errorf("Expected mount label derived from path, got %q", cfg.Mounts[0].Label)
	}
	if cfg.Listing.PageSize != 20 {
		t.Errorf("Expected default page size 20, got %d", cfg.Listing.PageSize)
	}
	if cfg.Search.MaxDepth != 5 || cfg.Search.Timeout != 10*time.Second || cfg.Search.MaxCandidates != 20 {
		t.Errorf("Unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Upload.Digest != "sha256" || cfg.Upload.Cache.Type != "memory" {
		t.Errorf("Unexpected upload defaults: digest=%q cache=%q", cfg.Upload.Digest, cfg.Upload.Cache.Type)
	}
	if cfg.Transfer.HighWaterMark != 16*1024*1024 {
		t.Errorf("Expected default high-water mark 16MiB, got %d", cfg.Transfer.HighWaterMark)
	}
	if cfg.Adapters.WebRTC.ListenAddr != ":7400" {
		t.Errorf("Expected default listen address ':7400', got %q", cfg.Adapters.WebRTC.ListenAddr)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  shutdown_timeout: 5s
  metrics:
    enabled: true
    port: 9191
mounts:
  - path: /mnt/lab
    label: lab
  - path: /mnt/archive
search:
  max_depth: 3
  timeout: 2s
upload:
  subdir_name: incoming
  progress_interval: 250ms
  digest: BLAKE3
  cache:
    type: badger
    badger:
      db_path: /var/lib/fsbridge/cache
transfer:
  chunk_size: 16384
  high_water_mark: 1048576
adapters:
  webrtc:
    enabled: true
    listen_addr: 127.0.0.1:8000
    ice_servers: ["stun:stun.l.google.com:19302"]
    token: s3cret
    requests_per_second: 50
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second || !cfg.Server.Metrics.Enabled || cfg.Server.Metrics.Port != 9191 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if len(cfg.Mounts) != 2 || cfg.Mounts[0].Label != "lab" || cfg.Mounts[1].Label != "archive" {
		t.Errorf("Unexpected mounts: %+v", cfg.Mounts)
	}
	if cfg.Search.MaxDepth != 3 || cfg.Search.Timeout != 2*time.Second {
		t.Errorf("Unexpected search config: %+v", cfg.Search)
	}
	if cfg.Upload.SubdirName != "incoming" || cfg.Upload.ProgressInterval != 250*time.Millisecond {
		t.Errorf("Unexpected upload config: %+v", cfg.Upload.Config)
	}
	if cfg.Upload.Digest != "blake3" {
		t.Errorf("Expected normalized digest 'blake3', got %q", cfg.Upload.Digest)
	}
	if cfg.Upload.Cache.Badger["db_path"] != "/var/lib/fsbridge/cache" {
		t.Errorf("Unexpected badger options: %v", cfg.Upload.Cache.Badger)
	}
	if cfg.Transfer.ChunkSize != 16384 || cfg.Transfer.HighWaterMark != 1048576 {
		t.Errorf("Unexpected transfer config: %+v", cfg.Transfer)
	}
	web := cfg.Adapters.WebRTC
	if web.ListenAddr != "127.0.0.1:8000" || web.Token != "s3cret" || web.RequestsPerSecond != 50 {
		t.Errorf("Unexpected webrtc config: %+v", web)
	}
	if len(web.ICEServers) != 1 {
		t.Errorf("Expected one ICE server, got %v", web.ICEServers)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Point the default location at an empty directory.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// Without a file there are no mounts, which fails validation.
	if _, err := Load(""); err == nil {
		t.Fatal("Expected validation error without mounts")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "mounts: [\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "DEBUG"

[[mounts]]
path = "/srv/data"
label = "data"

[adapters.webrtc]
enabled = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if len(cfg.Mounts) != 1 || cfg.Mounts[0].Path != "/srv/data" {
		t.Errorf("Unexpected mounts: %+v", cfg.Mounts)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("FSBRIDGE_LOGGING_LEVEL", "ERROR")
	t.Setenv("FSBRIDGE_ADAPTERS_WEBRTC_TOKEN", "from-env")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
mounts:
  - path: /srv/data
adapters:
  webrtc:
    enabled: true
    token: from-file
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.WebRTC.Token != "from-env" {
		t.Errorf("Expected token from env var, got %q", cfg.Adapters.WebRTC.Token)
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if got := GetConfigDir(); got != filepath.Join(xdg, "fsbridge") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "fsbridge"), got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(xdg, "fsbridge", "config.yaml") {
		t.Errorf("Unexpected default config path %q", got)
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh directory")
	}
}
