package config

// loader.go - configuration loading from a TOML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LoadFile decodes the TOML file at path onto cfg.  Keys absent from
// the file leave the existing value untouched.  Unknown keys are an
// error so typos do not go unnoticed.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("parse config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.File = path
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the ASYNCNET_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ASYNCNET_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("ASYNCNET_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if v := envInt("ASYNCNET_TARGET_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("ASYNCNET_LISTEN") {
		cfg.Listen = true
	}
	if envBool("ASYNCNET_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := envInt("ASYNCNET_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("ASYNCNET_RETRIES"); v > 0 {
		cfg.Retries = v
	}

	// Transport
	if v := os.Getenv("ASYNCNET_BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := envInt("ASYNCNET_READ_BUFFER"); v > 0 {
		cfg.ReadBufferSize = v
	}
	if v := envInt("ASYNCNET_WRITE_BUFFER"); v > 0 {
		cfg.WriteBufferSize = v
	}
	if v := envInt("ASYNCNET_WORKER_IDLE"); v > 0 {
		cfg.WorkerIdleTimeout = secondsDuration(v)
	}
	if envBool("ASYNCNET_REUSE_PORT") {
		cfg.ReusePort = true
	}

	// Output
	if v := envInt("ASYNCNET_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
