package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if configPath != GetDefaultConfigPath() {
		t.Errorf("Expected %q, got %q", GetDefaultConfigPath(), configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	for _, section := range []string{
		"# fsbridge worker configuration",
		"logging:",
		"mounts:",
		"upload:",
		"transfer:",
		"adapters:",
		"webrtc:",
	} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if _, err := InitConfig(false); err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if _, err := InitConfig(true); err != nil {
		t.Fatalf("Forced InitConfig failed: %v", err)
	}
}

func TestInitConfigToPath_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "fsbridge.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	want := GetDefaultConfig()
	want.Mounts = []MountConfig{{Path: "/srv/lab data", Label: "lab"}}
	want.Adapters.WebRTC.ICEServers = []string{"stun:stun.example.com:3478"}

	data, err := GenerateYAML(want)
	if err != nil {
		t.Fatalf("GenerateYAML failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v\n%s", err, data)
	}

	if got.Mounts[0] != want.Mounts[0] {
		t.Errorf("Mount mismatch: got %+v, want %+v", got.Mounts[0], want.Mounts[0])
	}
	if got.Search != want.Search {
		t.Errorf("Search mismatch: got %+v, want %+v", got.Search, want.Search)
	}
	if got.Upload.Config != want.Upload.Config {
		t.Errorf("Upload mismatch: got %+v, want %+v", got.Upload.Config, want.Upload.Config)
	}
	if got.Transfer != want.Transfer {
		t.Errorf("Transfer mismatch: got %+v, want %+v", got.Transfer, want.Transfer)
	}
	if got.Server.ShutdownTimeout != want.Server.ShutdownTimeout {
		t.Errorf("Shutdown timeout mismatch: got %v, want %v", got.Server.ShutdownTimeout, want.Server.ShutdownTimeout)
	}
	if len(got.Adapters.WebRTC.ICEServers) != 1 || got.Adapters.WebRTC.ICEServers[0] != "stun:stun.example.com:3478" {
		t.Errorf("ICE servers mismatch: %v", got.Adapters.WebRTC.ICEServers)
	}
}
