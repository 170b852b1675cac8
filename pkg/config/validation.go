package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Mounts) == 0 {
		return fmt.Errorf("mounts: at least one mount must be configured")
	}

	paths := make(map[string]bool)
	for i, m := range cfg.Mounts {
		if paths[m.Path] {
			return fmt.Errorf("mounts[%d]: duplicate mount path %q", i, m.Path)
		}
		paths[m.Path] = true
	}

	if !cfg.Adapters.WebRTC.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Upload.Cache.Type == "badger" {
		path, _ := cfg.Upload.Cache.Badger["db_path"].(string)
		inMemory, _ := cfg.Upload.Cache.Badger["in_memory"].(bool)
		if path == "" && !inMemory {
			return fmt.Errorf("upload.cache.badger: db_path is required")
		}
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == portOf(cfg.Adapters.WebRTC.ListenAddr) {
		return fmt.Errorf("server.metrics.port: %d is also the webrtc signaling port", cfg.Server.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// portOf returns the port of a host:port address, or -1.
func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return -1
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return -1
	}
	return port
}
