package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/weddingdesk/api/internal/ratelimit"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}

	tiers := cfg.Tiers()
	want := []struct {
		typ    ratelimit.LimitType
		max    int
		window time.Duration
		reason string
	}{
		{ratelimit.LimitIP, 5, time.Hour, "ip_rate_limited"},
		{ratelimit.LimitEmail, 3, time.Hour, "email_rate_limited"},
		{ratelimit.LimitGlobal, 100, time.Minute, "service_overloaded"},
	}
	for i, w := range want {
		if tiers[i].Type != w.typ || tiers[i].Limit.MaxAttempts != w.max || tiers[i].Limit.Window != w.window || tiers[i].Reason != w.reason {
			t.Errorf("tier %d: got %+v", i, tiers[i])
		}
	}

	if cfg.Signup.TrustedIPHeader != "CF-Connecting-IP" {
		t.Errorf("unexpected trusted header %q", cfg.Signup.TrustedIPHeader)
	}
	if cfg.LongestWindow() != time.Hour {
		t.Errorf("Expected longest window 1h, got %v", cfg.LongestWindow())
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("RATE_LIMIT_IP_MAX", "20")
	t.Setenv("RATE_LIMIT_GLOBAL_WINDOW", "30s")
	t.Setenv("REDIS_ADDRS", "redis-a:6379, redis-b:6379,")
	t.Setenv("SIGNUP_BCRYPT_COST", "not-a-number")

	cfg := FromEnv()
	if cfg.RateLimit.Backend != BackendRedis {
		t.Errorf("Expected redis backend, got %q", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.IP.MaxAttempts != 20 {
		t.Errorf("Expected ip max 20, got %d", cfg.RateLimit.IP.MaxAttempts)
	}
	if cfg.RateLimit.Global.Window != 30*time.Second {
		t.Errorf("Expected global window 30s, got %v", cfg.RateLimit.Global.Window)
	}
	if len(cfg.Redis.Addrs) != 2 || cfg.Redis.Addrs[1] != "redis-b:6379" {
		t.Errorf("unexpected redis addrs %v", cfg.Redis.Addrs)
	}
	if cfg.Signup.BcryptCost != 10 {
		t.Errorf("Expected unparsable value to keep default, got %d", cfg.Signup.BcryptCost)
	}
}

func TestApplyPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	policy := `
backend: memory
ledger_timeout: 500ms
tiers:
  ip:
    max_attempts: 10
  global:
    max_attempts: 250
    window: 2m
`
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := FromEnv()
	if err := cfg.ApplyPolicyFile(path); err != nil {
		t.Fatalf("ApplyPolicyFile failed: %v", err)
	}

	if cfg.RateLimit.Backend != BackendMemory {
		t.Errorf("Expected memory backend, got %q", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.LedgerTimeout != 500*time.Millisecond {
		t.Errorf("Expected 500ms ledger timeout, got %v", cfg.RateLimit.LedgerTimeout)
	}
	if cfg.RateLimit.IP.MaxAttempts != 10 || cfg.RateLimit.IP.Window != time.Hour {
		t.Errorf("Expected ip max overlaid and window kept, got %+v", cfg.RateLimit.IP)
	}
	if cfg.RateLimit.Email.MaxAttempts != 3 {
		t.Errorf("Expected email tier untouched, got %+v", cfg.RateLimit.Email)
	}
	if cfg.RateLimit.Global.MaxAttempts != 250 || cfg.RateLimit.Global.Window != 2*time.Minute {
		t.Errorf("Expected global tier overlaid, got %+v", cfg.RateLimit.Global)
	}
}

func TestApplyPolicyFile_Errors(t *testing.T) {
	cfg := FromEnv()
	if err := cfg.ApplyPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("tiers: [not, a, map"), 0o600)
	if err := cfg.ApplyPolicyFile(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.RateLimit.Backend = "memcached" }, "RATE_LIMIT_BACKEND"},
		{"zero ip max", func(c *Config) { c.RateLimit.IP.MaxAttempts = 0 }, "ip tier"},
		{"negative email window", func(c *Config) { c.RateLimit.Email.Window = -time.Minute }, "email tier"},
		{"zero ledger timeout", func(c *Config) { c.RateLimit.LedgerTimeout = 0 }, "RATE_LIMIT_LEDGER_TIMEOUT"},
		{"bcrypt cost too high", func(c *Config) { c.Signup.BcryptCost = 40 }, "SIGNUP_BCRYPT_COST"},
		{"redis without addrs", func(c *Config) { c.RateLimit.Backend = BackendRedis; c.Redis.Addrs = nil }, "REDIS_ADDRS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_PolicyFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("tiers:\n  email:\n    max_attempts: 0\n    window: 0s\n"), 0o600)
	t.Setenv("RATE_LIMIT_POLICY_FILE", path)
	t.Setenv("RATE_LIMIT_EMAIL_MAX", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.Email.MaxAttempts != 7 {
		t.Errorf("Expected zero YAML values to leave env value, got %d", cfg.RateLimit.Email.MaxAttempts)
	}
}
