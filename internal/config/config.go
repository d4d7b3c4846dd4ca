package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/groblegark/apgate/internal/hook"
)

// Config holds the server configuration, read from APGATE_* env vars.
type Config struct {
	DatabaseURL string   // APGATE_DATABASE_URL (required)
	HTTPAddr    string   // APGATE_HTTP_ADDR (default ":8765")
	NATSURL     string   // APGATE_NATS_URL (optional, empty = no events)
	AuthToken   string   // APGATE_AUTH_TOKEN (optional, empty = auth disabled)
	Responders  []string // APGATE_RESPONDERS (comma-separated; empty = all responds rejected)
	PolicyFile  string   // APGATE_POLICY_FILE (optional TOML rule overrides)

	// Timeout settings
	MaxPendingAge    time.Duration // APGATE_MAX_PENDING_AGE (default 60s)
	ReapInterval     time.Duration // APGATE_REAP_INTERVAL (default 2s)
	DispatchInterval time.Duration // APGATE_DISPATCH_INTERVAL (default 2s)

	// Audit export settings
	AuditInterval   time.Duration // APGATE_AUDIT_INTERVAL (default 3m; 0 = disabled)
	AuditS3Bucket   string        // APGATE_AUDIT_S3_BUCKET (enables S3 when set)
	AuditS3Endpoint string        // APGATE_AUDIT_S3_ENDPOINT (custom endpoint for MinIO)
	AuditS3Region   string        // APGATE_AUDIT_S3_REGION (default "us-east-1")
	AuditS3Key      string        // APGATE_AUDIT_S3_KEY (default "apgate/audit.jsonl")
	AuditFile       string        // APGATE_AUDIT_FILE (enables local file when set)
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:     os.Getenv("APGATE_DATABASE_URL"),
		HTTPAddr:        envOrDefault("APGATE_HTTP_ADDR", ":8765"),
		NATSURL:         os.Getenv("APGATE_NATS_URL"),
		AuthToken:       os.Getenv("APGATE_AUTH_TOKEN"),
		PolicyFile:      os.Getenv("APGATE_POLICY_FILE"),
		AuditS3Bucket:   os.Getenv("APGATE_AUDIT_S3_BUCKET"),
		AuditS3Endpoint: os.Getenv("APGATE_AUDIT_S3_ENDPOINT"),
		AuditS3Region:   envOrDefault("APGATE_AUDIT_S3_REGION", "us-east-1"),
		AuditS3Key:      envOrDefault("APGATE_AUDIT_S3_KEY", "apgate/audit.jsonl"),
		AuditFile:       os.Getenv("APGATE_AUDIT_FILE"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("APGATE_DATABASE_URL is required")
	}

	if v := os.Getenv("APGATE_RESPONDERS"); v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				c.Responders = append(c.Responders, r)
			}
		}
	}

	var err error
	if c.MaxPendingAge, err = durationEnv("APGATE_MAX_PENDING_AGE", 60*time.Second); err != nil {
		return nil, err
	}
	if c.ReapInterval, err = durationEnv("APGATE_REAP_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if c.DispatchInterval, err = durationEnv("APGATE_DISPATCH_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if c.AuditInterval, err = durationEnv("APGATE_AUDIT_INTERVAL", 3*time.Minute); err != nil {
		return nil, err
	}

	if c.MaxPendingAge <= 0 {
		return nil, fmt.Errorf("APGATE_MAX_PENDING_AGE must be positive")
	}

	return c, nil
}

// HookConfig holds the hook binary configuration.
type HookConfig struct {
	ServerURL      string        // APGATE_HTTP_URL (default "http://localhost:8765")
	AuthToken      string        // APGATE_AUTH_TOKEN (optional)
	PolicyFile     string        // APGATE_POLICY_FILE (optional TOML rule overrides)
	ClientDeadline time.Duration // APGATE_CLIENT_DEADLINE (default 55s)
	PollInterval   time.Duration // APGATE_POLL_INTERVAL (default 1s)
	FailMode       hook.FailMode // APGATE_FAIL_MODE (default "open")

	// MaxPendingAge mirrors the server setting for the deadline ordering
	// check; set APGATE_MAX_PENDING_AGE on the hook side too when the
	// server's value was changed.
	MaxPendingAge time.Duration
}

// LoadHook reads the hook configuration from the environment. The client
// deadline must be strictly shorter than the server's max pending age so a
// request abandoned by the hook is always reaped afterwards, never before.
func LoadHook() (*HookConfig, error) {
	c := &HookConfig{
		ServerURL:  envOrDefault("APGATE_HTTP_URL", "http://localhost:8765"),
		AuthToken:  os.Getenv("APGATE_AUTH_TOKEN"),
		PolicyFile: os.Getenv("APGATE_POLICY_FILE"),
		FailMode:   hook.FailMode(envOrDefault("APGATE_FAIL_MODE", "open")),
	}

	var err error
	if c.ClientDeadline, err = durationEnv("APGATE_CLIENT_DEADLINE", 55*time.Second); err != nil {
		return nil, err
	}
	if c.PollInterval, err = durationEnv("APGATE_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if c.MaxPendingAge, err = durationEnv("APGATE_MAX_PENDING_AGE", 60*time.Second); err != nil {
		return nil, err
	}

	if !c.FailMode.IsValid() {
		return nil, fmt.Errorf("APGATE_FAIL_MODE must be %q or %q", hook.FailOpen, hook.FailClosed)
	}
	if c.ClientDeadline <= 0 || c.PollInterval <= 0 {
		return nil, fmt.Errorf("APGATE_CLIENT_DEADLINE and APGATE_POLL_INTERVAL must be positive")
	}
	if c.ClientDeadline >= c.MaxPendingAge {
		return nil, fmt.Errorf("APGATE_CLIENT_DEADLINE (%s) must be shorter than APGATE_MAX_PENDING_AGE (%s)",
			c.ClientDeadline, c.MaxPendingAge)
	}

	return c, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
