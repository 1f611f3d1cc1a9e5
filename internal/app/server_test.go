package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"netsync/internal/config"
	servernet "netsync/internal/net"
	"netsync/internal/player"
	"netsync/internal/storage/sqlite"
)

func testSettings(t *testing.T) config.Config {
	t.Helper()

	settings, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	settings.Logging.Sinks = []string{"memory"}
	settings.Auth.TokenSecret = "test-secret"
	settings.Journal.SQLitePath = filepath.Join(t.TempDir(), "commits.db")
	settings.Journal.FlushInterval = 50 * time.Millisecond
	settings.Bot.FireInterval = 600 * time.Millisecond
	settings.Bot.ColorInterval = 400 * time.Millisecond
	return settings
}

func waitUntil(t *testing.T, timeout time.Duration, step func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if step() {
			return
		}
		time.Sleep(time.Second / 60)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestServerAndBotEndToEnd(t *testing.T) {
	settings := testSettings(t)
	ctx := context.Background()

	srv, err := NewServer(ctx, Config{Settings: settings})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Start()
	httpServer := httptest.NewServer(srv.Handler())
	closed := false
	t.Cleanup(func() {
		httpServer.Close()
		if !closed {
			srv.Close(context.Background())
		}
	})

	settings.Bot.ServerURL = httpServer.URL
	bot, err := NewBot(ctx, BotConfig{Settings: settings})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	botID := bot.Local().ID

	waitUntil(t, 5*time.Second, func() bool {
		bot.Step(1.0 / 60)
		p := bot.Player()
		return p != nil && p.Color().Version() >= 2
	})

	// The server's replica follows the bot's transmitted transform.
	waitUntil(t, 5*time.Second, func() bool {
		bot.Step(1.0 / 60)
		owned := srv.Session().OwnedBy(botID)
		if len(owned) != 1 {
			return false
		}
		replica, ok := owned[0].Behavior().(*player.Player)
		if !ok {
			return false
		}
		_, version := replica.Transform().Replicated()
		return version > 10
	})

	resp, err := http.Get(httpServer.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	var diag servernet.Diagnostics
	err = json.NewDecoder(resp.Body).Decode(&diag)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if len(diag.Session.Entities) != 1 || diag.Session.Entities[0].Owner != string(botID) {
		t.Fatalf("unexpected diagnostics entities: %+v", diag.Session.Entities)
	}
	if diag.Telemetry.CommitsApplied == 0 || len(diag.Journal) == 0 {
		t.Fatalf("expected commits in diagnostics, got %+v", diag.Telemetry)
	}
	if w := diag.JournalWindow; w.Size == 0 || w.Newest < w.Oldest || w.Newest < diag.Journal[len(diag.Journal)-1].Sequence {
		t.Fatalf("unexpected journal window %+v", w)
	}
	if diag.Inbox.Capacity == 0 || diag.Inbox.HighWater == 0 {
		t.Fatalf("expected hub inbox stats, got %+v", diag.Inbox)
	}
	if _, ok := diag.Logging.Sinks["memory"]; !ok {
		t.Fatalf("expected memory sink stats, got %+v", diag.Logging)
	}
	if diag.Telemetry.AuthorityViolations != 0 {
		t.Fatalf("unexpected authority violations: %d", diag.Telemetry.AuthorityViolations)
	}

	if err := bot.Close(); err != nil {
		t.Fatalf("close bot: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool {
		return len(srv.Session().OwnedBy(botID)) == 0
	})

	closed = true
	if err := srv.Close(context.Background()); err != nil {
		t.Fatalf("close server: %v", err)
	}

	store, err := sqlite.Open(settings.Journal.SQLitePath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	commits, err := store.ListCommits(context.Background(), sqlite.CommitFilter{Field: string(player.FieldColor), Limit: 100})
	if err != nil {
		t.Fatalf("list commits: %v", err)
	}
	if len(commits) < 2 {
		t.Fatalf("expected persisted color commits, got %d", len(commits))
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":      "ws://localhost:8080/ws",
		"https://example.com/":       "wss://example.com/ws",
		"http://localhost:8080/game": "ws://localhost:8080/game/ws",
	}
	for in, want := range tests {
		got, err := WebSocketURL(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}
