// Package config provides YAML-based configuration loading for intake.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zulandar/intake/internal/db"
	"github.com/zulandar/intake/internal/store"
)

// DefaultPath is where commands look for the config file.
const DefaultPath = "intake.yaml"

// Config is the top-level intake configuration, loaded from intake.yaml.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Signature SignatureConfig `yaml:"signature"`
	Storage   StorageConfig   `yaml:"storage"`
	Web       WebConfig       `yaml:"web"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServiceConfig locates and authenticates against the dialogue service.
type ServiceConfig struct {
	BaseURL    string       `yaml:"base_url"`
	TimeoutSec int          `yaml:"timeout_sec"`
	UserAgent  string       `yaml:"user_agent"`
	Tracing    bool         `yaml:"tracing"`
	OAuth2     OAuth2Config `yaml:"oauth2"`
}

// Timeout returns the per-call timeout.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// OAuth2Config enables client-credentials auth when TokenURL is set.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether OAuth2 is configured.
func (o OAuth2Config) Enabled() bool {
	return o.TokenURL != ""
}

// SignatureConfig selects how signature answers are sent.
type SignatureConfig struct {
	Mode string `yaml:"mode"` // "sentinel" or "image"
}

// StorageConfig selects the database.
type StorageConfig struct {
	Driver   string `yaml:"driver"` // "sqlite", "mysql" or "memory"
	DSN      string `yaml:"dsn"`
	MaxTurns int    `yaml:"max_turns"`
}

// WebConfig configures the browser front end.
type WebConfig struct {
	Port int `yaml:"port"`
	// IdleMin drops a browser session nobody has touched for this long.
	IdleMin int `yaml:"idle_min"`
}

// BridgeConfig configures the chat platform front end.
type BridgeConfig struct {
	Platform string        `yaml:"platform"` // "slack" or "discord"
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
	// StaleAfterMin expires an idle thread intake so the thread can start a new one.
	StaleAfterMin int `yaml:"stale_after_min"`
}

// SlackConfig holds Slack socket mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// RetentionConfig schedules pruning of finished sessions.
type RetentionConfig struct {
	PruneCron string `yaml:"prune_cron"`
	KeepDays  int    `yaml:"keep_days"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns the defaults when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Parse(nil)
	}
	return Load(path)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.substituteSecrets()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR} with the value of the environment variable.
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// substituteSecrets expands ${VAR} references in credential fields.
func (c *Config) substituteSecrets() {
	for _, p := range []*string{
		&c.Service.OAuth2.ClientID,
		&c.Service.OAuth2.ClientSecret,
		&c.Storage.DSN,
		&c.Bridge.Slack.AppToken,
		&c.Bridge.Slack.BotToken,
		&c.Bridge.Discord.BotToken,
	} {
		*p = substituteEnvVars(*p)
	}
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = "http://localhost:8000"
	}
	if c.Service.TimeoutSec == 0 {
		c.Service.TimeoutSec = 30
	}
	if c.Service.UserAgent == "" {
		c.Service.UserAgent = "intake"
	}
	if c.Signature.Mode == "" {
		c.Signature.Mode = "sentinel"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = db.DriverSQLite
	}
	if c.Storage.DSN == "" && c.Storage.Driver == db.DriverSQLite {
		c.Storage.DSN = "intake.db"
	}
	if c.Storage.MaxTurns == 0 {
		c.Storage.MaxTurns = store.DefaultMaxTurns
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.IdleMin == 0 {
		c.Web.IdleMin = 60
	}
	if c.Bridge.StaleAfterMin == 0 {
		c.Bridge.StaleAfterMin = 24 * 60
	}
	if c.Retention.PruneCron == "" {
		c.Retention.PruneCron = "0 3 * * *"
	}
	if c.Retention.KeepDays == 0 {
		c.Retention.KeepDays = 30
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("service.base_url %q is not an absolute URL", c.Service.BaseURL))
	}
	if c.Service.TimeoutSec < 0 {
		errs = append(errs, "service.timeout_sec must not be negative")
	}
	if o := c.Service.OAuth2; o.Enabled() && (o.ClientID == "" || o.ClientSecret == "") {
		errs = append(errs, "service.oauth2 requires client_id and client_secret")
	}

	switch c.Signature.Mode {
	case "sentinel", "image":
	default:
		errs = append(errs, fmt.Sprintf("signature.mode %q must be sentinel or image", c.Signature.Mode))
	}

	if err := db.ValidateDSN(c.Storage.Driver, c.Storage.DSN); err != nil {
		errs = append(errs, "storage: "+strings.TrimPrefix(err.Error(), "db: "))
	}
	if c.Storage.MaxTurns < 0 {
		errs = append(errs, "storage.max_turns must not be negative")
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Sprintf("web.port %d out of range", c.Web.Port))
	}

	switch c.Bridge.Platform {
	case "":
	case "slack":
		if c.Bridge.Slack.AppToken == "" || c.Bridge.Slack.BotToken == "" {
			errs = append(errs, "bridge.slack requires app_token and bot_token")
		}
	case "discord":
		if c.Bridge.Discord.BotToken == "" {
			errs = append(errs, "bridge.discord requires bot_token")
		}
	default:
		errs = append(errs, fmt.Sprintf("bridge.platform %q must be slack or discord", c.Bridge.Platform))
	}

	if _, err := store.ParseSchedule(c.Retention.PruneCron); err != nil {
		errs = append(errs, fmt.Sprintf("retention.prune_cron %q is not a 5-field cron expression", c.Retention.PruneCron))
	}
	if c.Retention.KeepDays < 0 {
		errs = append(errs, "retention.keep_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
