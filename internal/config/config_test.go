package config

import (
	"strings"
	"testing"
	"time"

	"netsync/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.TickRate != 60 {
		t.Fatalf("unexpected defaults: addr=%q tick=%d", cfg.Addr, cfg.TickRate)
	}
	if cfg.Replication.InterpolationTime != 100*time.Millisecond {
		t.Fatalf("interpolation time = %s, want 100ms", cfg.Replication.InterpolationTime)
	}
	if cfg.Replication.FireCooldown != 500*time.Millisecond {
		t.Fatalf("fire cooldown = %s, want 500ms", cfg.Replication.FireCooldown)
	}
	if cfg.Replication.ServerAuth {
		t.Fatal("expected owner-authoritative transforms by default")
	}
	if cfg.Network.PacketDelay != 120*time.Millisecond || cfg.Network.PacketJitter != 5*time.Millisecond || cfg.Network.DropRate != 0.03 {
		t.Fatalf("unexpected link conditioner defaults: %+v", cfg.Network)
	}
	if got := cfg.TickInterval(); got != time.Second/60 {
		t.Fatalf("tick interval = %s", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NETSYNC_TICK_RATE", "30")
	t.Setenv("NETSYNC_SERVER_AUTH", "true")
	t.Setenv("NETSYNC_INTERPOLATION_TIME", "250ms")
	t.Setenv("NETSYNC_LOG_SINKS", "console, json")
	t.Setenv("NETSYNC_LOG_JSON_PATH", "/tmp/netsync.jsonl")
	t.Setenv("NETSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 30 || !cfg.Replication.ServerAuth || cfg.Replication.InterpolationTime != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	routerCfg := cfg.LoggingRouterConfig()
	if !routerCfg.HasSink("console") || !routerCfg.HasSink("json") {
		t.Fatalf("expected console and json sinks, got %v", routerCfg.EnabledSinks)
	}
	if routerCfg.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("severity = %v, want debug", routerCfg.MinimumSeverity)
	}
	if routerCfg.SeverityFor("memory") != logging.SeverityWarn || routerCfg.SeverityFor("console") != logging.SeverityDebug {
		t.Fatalf("unexpected sink floors: memory=%v console=%v", routerCfg.SeverityFor("memory"), routerCfg.SeverityFor("console"))
	}
	if routerCfg.JSON.FilePath != "/tmp/netsync.jsonl" {
		t.Fatalf("json path = %q", routerCfg.JSON.FilePath)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("NETSYNC_TICK_RATE", "fast")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"tick rate", func(c *Config) { c.TickRate = 0 }, "NETSYNC_TICK_RATE"},
		{"journal capacity", func(c *Config) { c.Journal.Capacity = 0 }, "NETSYNC_JOURNAL_CAPACITY"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "NETSYNC_LOG_LEVEL"},
		{"unknown sink", func(c *Config) { c.Logging.Sinks = []string{"syslog"} }, "unknown sink"},
		{"json without path", func(c *Config) { c.Logging.Sinks = []string{"json"} }, "NETSYNC_LOG_JSON_PATH"},
		{"drop rate", func(c *Config) { c.Network.DropRate = 1.5 }, "NETSYNC_SIM_DROP_RATE"},
		{"bot url", func(c *Config) { c.Bot.ServerURL = "::" }, "NETSYNC_BOT_SERVER_URL"},
		{"flush interval", func(c *Config) {
			c.Journal.SQLitePath = "commits.db"
			c.Journal.FlushInterval = 0
		}, "NETSYNC_SQLITE_FLUSH_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Logging.Sinks = append([]string(nil), base.Logging.Sinks...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}

	t.Run("collects every error", func(t *testing.T) {
		cfg := base
		cfg.TickRate = 0
		cfg.Journal.Capacity = 0
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "NETSYNC_TICK_RATE") || !strings.Contains(err.Error(), "NETSYNC_JOURNAL_CAPACITY") {
			t.Fatalf("expected both errors, got %v", err)
		}
	})
}
