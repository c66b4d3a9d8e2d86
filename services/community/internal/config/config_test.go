package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
port: "8080"
identityServiceURL: http://identity:9000
identityJwksURL: http://identity:9000/.well-known/jwks.json
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.IdentityJWKSURL != "http://identity:9000/.well-known/jwks.json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("databaseURL should default to empty (in-memory store)")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
databaseURL: postgres://file-value
`)
	t.Setenv("DATABASE_URL", "postgres://env-value")
	t.Setenv("COMMUNITY_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COMMUNITY_SEND_RATE_LIMIT_PER_MINUTE", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env-value" {
		t.Fatalf("env override lost: %q", cfg.DatabaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.SendRateLimitPerMinute != 10 {
		t.Fatalf("unexpected send limit: %d", cfg.SendRateLimitPerMinute)
	}
}

func TestLoadChannelSeeds(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
channels:
  - slug: general
    name: General
    category: Community
    position: 1
    type: chat
  - slug: announcements
    name: Announcements
    type: chat
    readonly: true
  - slug: help
    name: Help
    type: forum
    minRole: member
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Channels) != 3 {
		t.Fatalf("expected 3 channel seeds, got %d", len(cfg.Channels))
	}
	if !cfg.Channels[1].Readonly || cfg.Channels[2].Type != "forum" {
		t.Fatalf("unexpected seeds: %+v", cfg.Channels)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing port", `
identityServiceURL: http://identity:9000
identityJwksURL: http://identity:9000/jwks
`},
		{"missing jwks", `
port: "8080"
identityServiceURL: http://identity:9000
`},
		{"negative rate limit", minimalConfig + `
sendRateLimitPerMinute: -1
`},
		{"channel without name", minimalConfig + `
channels:
  - slug: general
`},
		{"channel with unknown type", minimalConfig + `
channels:
  - slug: general
    name: General
    type: wiki
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseJWTLeeway(t *testing.T) {
	if d, err := ParseJWTLeeway(""); err != nil || d != 0 {
		t.Fatalf("empty leeway: d=%v err=%v", d, err)
	}
	if d, err := ParseJWTLeeway("45s"); err != nil || d != 45*time.Second {
		t.Fatalf("45s leeway: d=%v err=%v", d, err)
	}
	if _, err := ParseJWTLeeway("soon"); err == nil {
		t.Fatalf("expected parse error")
	}
}
