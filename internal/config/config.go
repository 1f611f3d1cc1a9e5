// Package config loads process configuration from NETSYNC_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"netsync/logging"
)

// Config is the full process configuration. Each binary reads the sections
// it needs.
type Config struct {
	Addr     string `env:"NETSYNC_ADDR" envDefault:":8080"`
	TickRate int    `env:"NETSYNC_TICK_RATE" envDefault:"60"`
	// CatchupMaxTicks bounds how many ticks the loop replays after a stall.
	CatchupMaxTicks int `env:"NETSYNC_CATCHUP_MAX_TICKS" envDefault:"4"`

	Replication   ReplicationConfig
	Journal       JournalConfig
	Auth          AuthConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Network       NetworkConfig
	Bot           BotConfig
}

// ReplicationConfig tunes the player entity.
type ReplicationConfig struct {
	InterpolationTime time.Duration `env:"NETSYNC_INTERPOLATION_TIME" envDefault:"100ms"`
	ServerAuth        bool          `env:"NETSYNC_SERVER_AUTH" envDefault:"false"`
	FireCooldown      time.Duration `env:"NETSYNC_FIRE_COOLDOWN" envDefault:"500ms"`
}

// JournalConfig bounds the commit journal and its optional SQLite mirror.
type JournalConfig struct {
	Capacity      int           `env:"NETSYNC_JOURNAL_CAPACITY" envDefault:"1024"`
	MaxAge        time.Duration `env:"NETSYNC_JOURNAL_MAX_AGE" envDefault:"2m"`
	SQLitePath    string        `env:"NETSYNC_SQLITE_PATH"`
	FlushInterval time.Duration `env:"NETSYNC_SQLITE_FLUSH_INTERVAL" envDefault:"1s"`
}

// AuthConfig configures join tokens. An empty secret makes the server
// generate one per run.
type AuthConfig struct {
	TokenSecret string        `env:"NETSYNC_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"NETSYNC_TOKEN_TTL" envDefault:"2m"`
}

// LoggingConfig selects structured log sinks.
type LoggingConfig struct {
	Sinks    []string `env:"NETSYNC_LOG_SINKS" envDefault:"console" envSeparator:","`
	JSONPath string   `env:"NETSYNC_LOG_JSON_PATH"`
	Level    string   `env:"NETSYNC_LOG_LEVEL" envDefault:"info"`
}

// ObservabilityConfig holds opt-in diagnostics.
type ObservabilityConfig struct {
	EnablePprofTrace bool   `env:"NETSYNC_ENABLE_PPROF_TRACE" envDefault:"false"`
	OTelEndpoint     string `env:"NETSYNC_OTEL_ENDPOINT"`
}

// NetworkConfig drives the loopback link conditioner used by the sandbox.
type NetworkConfig struct {
	PacketDelay    time.Duration `env:"NETSYNC_SIM_PACKET_DELAY" envDefault:"120ms"`
	PacketJitter   time.Duration `env:"NETSYNC_SIM_PACKET_JITTER" envDefault:"5ms"`
	DropRate       float64       `env:"NETSYNC_SIM_DROP_RATE" envDefault:"0.03"`
	SandboxClients int           `env:"NETSYNC_SANDBOX_CLIENTS" envDefault:"2"`
	SandboxRun     time.Duration `env:"NETSYNC_SANDBOX_DURATION" envDefault:"10s"`
}

// BotConfig configures the headless client.
type BotConfig struct {
	ServerURL     string        `env:"NETSYNC_BOT_SERVER_URL" envDefault:"http://localhost:8080"`
	FireInterval  time.Duration `env:"NETSYNC_BOT_FIRE_INTERVAL" envDefault:"1s"`
	ColorInterval time.Duration `env:"NETSYNC_BOT_COLOR_INTERVAL" envDefault:"3s"`
	Duration      time.Duration `env:"NETSYNC_BOT_DURATION"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("NETSYNC_ADDR is required"))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_TICK_RATE must be positive, got %d", c.TickRate))
	}
	if c.CatchupMaxTicks < 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_CATCHUP_MAX_TICKS must not be negative, got %d", c.CatchupMaxTicks))
	}
	if c.Replication.InterpolationTime < 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_INTERPOLATION_TIME must not be negative, got %s", c.Replication.InterpolationTime))
	}
	if c.Replication.FireCooldown < 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_FIRE_COOLDOWN must not be negative, got %s", c.Replication.FireCooldown))
	}
	if c.Journal.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_JOURNAL_CAPACITY must be positive, got %d", c.Journal.Capacity))
	}
	if c.Journal.SQLitePath != "" && c.Journal.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_SQLITE_FLUSH_INTERVAL must be positive, got %s", c.Journal.FlushInterval))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL))
	}
	if _, err := logging.ParseSeverity(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("NETSYNC_LOG_LEVEL: %w", err))
	}
	for _, sink := range c.Logging.Sinks {
		switch strings.TrimSpace(sink) {
		case "console", "memory":
		case "json":
			if c.Logging.JSONPath == "" {
				errs = append(errs, errors.New("NETSYNC_LOG_JSON_PATH is required for the json sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("NETSYNC_LOG_SINKS: unknown sink %q", sink))
		}
	}
	if c.Network.DropRate < 0 || c.Network.DropRate > 1 {
		errs = append(errs, fmt.Errorf("NETSYNC_SIM_DROP_RATE must be within [0,1], got %v", c.Network.DropRate))
	}
	if c.Network.PacketDelay < 0 || c.Network.PacketJitter < 0 {
		errs = append(errs, errors.New("NETSYNC_SIM_PACKET_DELAY and NETSYNC_SIM_PACKET_JITTER must not be negative"))
	}
	if c.Network.SandboxClients < 0 {
		errs = append(errs, fmt.Errorf("NETSYNC_SANDBOX_CLIENTS must not be negative, got %d", c.Network.SandboxClients))
	}
	if parsed, err := url.Parse(c.Bot.ServerURL); err != nil || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("NETSYNC_BOT_SERVER_URL is not a valid URL: %q", c.Bot.ServerURL))
	}
	return errors.Join(errs...)
}

// LoggingRouterConfig maps the logging section onto the router config.
func (c Config) LoggingRouterConfig() logging.Config {
	cfg := logging.DefaultConfig()
	var sinks []string
	for _, sink := range c.Logging.Sinks {
		if trimmed := strings.TrimSpace(sink); trimmed != "" {
			sinks = append(sinks, trimmed)
		}
	}
	if len(sinks) > 0 {
		cfg.EnabledSinks = sinks
	}
	if severity, err := logging.ParseSeverity(c.Logging.Level); err == nil {
		cfg.MinimumSeverity = severity
	}
	cfg.JSON.FilePath = c.Logging.JSONPath
	cfg.SinkSeverity = map[string]logging.Severity{"memory": logging.SeverityWarn}
	return cfg
}

// TickInterval is the fixed simulation step.
func (c Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}
