package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// InitConfig writes the default configuration to GetDefaultConfigPath.
//
// Returns the path written, or an error if the file exists and force is
// false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating
// parent directories.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateYAML(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateYAML renders cfg as a commented YAML document that Load accepts.
func GenerateYAML(cfg *Config) ([]byte, error) {
	mounts := &yaml.Node{Kind: yaml.SequenceNode}
	for _, m := range cfg.Mounts {
		mounts.Content = append(mounts.Content, mapping(
			kv("path", str(m.Path), ""),
			kv("label", str(m.Label), ""),
		))
	}

	iceServers := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, u := range cfg.Adapters.WebRTC.ICEServers {
		iceServers.Content = append(iceServers.Content, str(u))
	}

	web := cfg.Adapters.WebRTC
	doc := mapping(
		kv("logging", mapping(
			kv("level", str(cfg.Logging.Level), "DEBUG, INFO, WARN or ERROR"),
			kv("format", str(cfg.Logging.Format), "text or json"),
			kv("output", str(cfg.Logging.Output), "stdout, stderr or a file path"),
		), ""),
		kv("server", mapping(
			kv("shutdown_timeout", dur(cfg.Server.ShutdownTimeout), ""),
			kv("metrics", mapping(
				kv("enabled", boolean(cfg.Server.Metrics.Enabled), ""),
				kv("port", integer(int64(cfg.Server.Metrics.Port)), ""),
			), "Prometheus endpoint at /metrics"),
		), ""),
		kv("mounts", mounts, "Directories peers may list, search, upload to and download from.\nNothing outside these roots is reachable."),
		kv("listing", mapping(
			kv("page_size", integer(int64(cfg.Listing.PageSize)), ""),
		), ""),
		kv("search", mapping(
			kv("max_depth", integer(int64(cfg.Search.MaxDepth)), "Levels below each mount root"),
			kv("timeout", dur(cfg.Search.Timeout), ""),
			kv("max_candidates", integer(int64(cfg.Search.MaxCandidates)), ""),
		), ""),
		kv("upload", mapping(
			kv("subdir_name", str(cfg.Upload.SubdirName), ""),
			kv("progress_interval", dur(cfg.Upload.ProgressInterval), ""),
			kv("digest", str(cfg.Upload.Digest), "sha256 or blake3; peers must hash with the same algorithm"),
			kv("cache", mapping(
				kv("type", str(cfg.Upload.Cache.Type), "memory or badger"),
				kv("badger", mapping(
					kv("db_path", str(fmt.Sprint(cfg.Upload.Cache.Badger["db_path"])), ""),
				), ""),
			), "Remembers uploaded files by content digest"),
		), ""),
		kv("transfer", mapping(
			kv("chunk_size", integer(int64(cfg.Transfer.ChunkSize)), ""),
			kv("high_water_mark", integer(int64(cfg.Transfer.HighWaterMark)), "Downloads pause while more bytes than this are unsent"),
			kv("poll_interval", dur(cfg.Transfer.PollInterval), ""),
		), ""),
		kv("adapters", mapping(
			kv("webrtc", mapping(
				kv("enabled", boolean(web.Enabled), ""),
				kv("listen_addr", str(web.ListenAddr), "HTTP signaling endpoint (POST /offer)"),
				kv("ice_servers", iceServers, "e.g. [\"stun:stun.l.google.com:19302\"]"),
				kv("token", str(web.Token), "Bearer token required on offers; empty disables the check"),
				kv("requests_per_second", integer(int64(web.RequestsPerSecond)), "0 disables per-peer rate limiting"),
				kv("burst", integer(int64(web.Burst)), ""),
				kv("shutdown_timeout", dur(web.ShutdownTimeout), ""),
			), ""),
		), ""),
	)
	doc.HeadComment = "fsbridge worker configuration\n\nEnvironment variables override any value: FSBRIDGE_LOGGING_LEVEL=DEBUG"

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

type pair struct {
	key, value *yaml.Node
}

func kv(key string, value *yaml.Node, comment string) pair {
	k := str(key)
	k.HeadComment = comment
	return pair{key: k, value: value}
}

func mapping(pairs ...pair) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range pairs {
		n.Content = append(n.Content, p.key, p.value)
	}
	return n
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func str(s string) *yaml.Node { return scalar("!!str", s) }
func integer(n int64) *yaml.Node { return scalar("!!int", strconv.FormatInt(n, 10)) }
func boolean(b bool) *yaml.Node { return scalar("!!bool", strconv.FormatBool(b)) }
func dur(d time.Duration) *yaml.Node { return str(d.String()) }
