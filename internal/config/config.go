package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/agentgate/internal/tools"
)

type Config struct {
	ListenAddr           string                `yaml:"listen_addr"`
	PolicyPath           string                `yaml:"policy_path"`
	PolicyReloadInterval time.Duration         `yaml:"policy_reload_interval"`
	DB                   DBConfig              `yaml:"db"`
	KillSwitch           KillSwitchConfig      `yaml:"kill_switch"`
	LegacyPolicy         LegacyPolicyConfig    `yaml:"legacy_policy"`
	PlainAudit           PlainAuditConfig      `yaml:"plain_audit"`
	Approvals            ApprovalsConfig       `yaml:"approvals"`
	Auth                 AuthConfig            `yaml:"auth"`
	Identities           map[string][]string   `yaml:"identities"`
	Tools                []tools.WebhookConfig `yaml:"tools"`
	Log                  LogConfig             `yaml:"log"`
}

type DBConfig struct {
	// Driver is sqlite, postgres or empty for the in-memory store.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type KillSwitchConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

type LegacyPolicyConfig struct {
	Enabled         bool     `yaml:"enabled"`
	PHIMode         bool     `yaml:"phi_mode"`
	AllowlistNormal []string `yaml:"allowlist_normal"`
	AllowlistPHI    []string `yaml:"allowlist_phi"`
	AllowedDomains  []string `yaml:"allowed_domains"`
	PanicSwitch     bool     `yaml:"panic_switch"`
}

type PlainAuditConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type ApprovalsConfig struct {
	StaleAfter       time.Duration `yaml:"stale_after"`
	CleanupSchedule  string        `yaml:"cleanup_schedule"`
	NotifyWebhookURL string        `yaml:"notify_webhook_url"`
}

type AuthConfig struct {
	DevToken string `yaml:"dev_token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default is the configuration a file overlays.
func Default() Config {
	return Config{
		ListenAddr:           ":8080",
		PolicyPath:           "policies/agent-policy.yaml",
		PolicyReloadInterval: 5 * time.Second,
		KillSwitch:           KillSwitchConfig{Backend: "memory"},
		LegacyPolicy:         LegacyPolicyConfig{PHIMode: true},
		PlainAudit:           PlainAuditConfig{MaxBytes: 5 * 1024 * 1024},
		Approvals:            ApprovalsConfig{StaleAfter: 7 * 24 * time.Hour, CleanupSchedule: "@every 6h"},
		Log:                  LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path with ${ENV} expansion over Default, then applies
// AGENTGATE_* overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 -- path is operator-provided config path.
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}

		expanded := os.ExpandEnv(string(raw))
		expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AGENTGATE_LISTEN_ADDR":         &c.ListenAddr,
		"AGENTGATE_POLICY_PATH":         &c.PolicyPath,
		"AGENTGATE_DB_DRIVER":           &c.DB.Driver,
		"AGENTGATE_DB_DSN":              &c.DB.DSN,
		"AGENTGATE_KILL_SWITCH_BACKEND": &c.KillSwitch.Backend,
		"AGENTGATE_REDIS_URL":           &c.KillSwitch.RedisURL,
		"AGENTGATE_PLAIN_AUDIT_PATH":    &c.PlainAudit.Path,
		"AGENTGATE_NOTIFY_WEBHOOK_URL":  &c.Approvals.NotifyWebhookURL,
		"AGENTGATE_DEV_TOKEN":           &c.Auth.DevToken,
		"AGENTGATE_LOG_LEVEL":           &c.Log.Level,
		"AGENTGATE_LOG_FORMAT":          &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"AGENTGATE_POLICY_RELOAD_INTERVAL": &c.PolicyReloadInterval,
		"AGENTGATE_APPROVAL_STALE_AFTER":   &c.Approvals.StaleAfter,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"AGENTGATE_LEGACY_ENABLED": &c.LegacyPolicy.Enabled,
		"AGENTGATE_PHI_MODE":       &c.LegacyPolicy.PHIMode,
		"AGENTGATE_TOOLS_PANIC":    &c.LegacyPolicy.PanicSwitch,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.PolicyPath == "" {
		return fmt.Errorf("policy_path is required")
	}

	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}

	switch c.KillSwitch.Backend {
	case "", "memory":
	case "redis":
		if c.KillSwitch.RedisURL == "" {
			return fmt.Errorf("kill_switch.redis_url is required when kill_switch.backend=redis")
		}
	default:
		return fmt.Errorf("kill_switch.backend %q is not supported", c.KillSwitch.Backend)
	}

	if c.PolicyReloadInterval < 0 {
		return fmt.Errorf("policy_reload_interval must not be negative")
	}
	if c.Approvals.StaleAfter > 0 && c.Approvals.CleanupSchedule == "" {
		return fmt.Errorf("approvals.cleanup_schedule is required when approvals.stale_after is set")
	}

	seen := map[string]bool{}
	for i, tool := range c.Tools {
		if tool.Name == "" || tool.URL == "" {
			return fmt.Errorf("tools[%d]: name and url are required", i)
		}
		if seen[tool.Name] {
			return fmt.Errorf("tools[%d]: duplicate tool %q", i, tool.Name)
		}
		seen[tool.Name] = true
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", c.Log.Level)
	}
	return nil
}
