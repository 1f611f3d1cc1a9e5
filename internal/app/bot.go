package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"netsync/internal/config"
	"netsync/internal/motion"
	servernet "netsync/internal/net"
	"netsync/internal/net/ws"
	"netsync/internal/palette"
	"netsync/internal/player"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/sim"
	"netsync/internal/telemetry"
	"netsync/logging"
)

const botReportInterval = time.Second

// BotConfig configures the headless client.
type BotConfig struct {
	Logger   telemetry.Logger
	Settings config.Config
	// HTTPClient is used for /join. Nil selects http.DefaultClient.
	HTTPClient *http.Client
}

// Bot is a headless participant: it joins over HTTP, attaches over
// websocket, and pilots the player the server spawns for it.
type Bot struct {
	logger   telemetry.Logger
	settings config.Config
	join     servernet.JoinResponse
	client   *ws.Client
	session  *session.Session
	counters *telemetry.Counters
	pilot    *pilot

	mu         sync.Mutex
	poses      map[replication.EntityID]motion.Vec2
	sinceLog   float64
	fires      int
	colorSwaps int
}

// Join requests a participant slot from the server at baseURL.
func Join(ctx context.Context, client *http.Client, baseURL string) (servernet.JoinResponse, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/join", nil)
	if err != nil {
		return servernet.JoinResponse{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return servernet.JoinResponse{}, fmt.Errorf("join: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return servernet.JoinResponse{}, fmt.Errorf("join: unexpected status %s", resp.Status)
	}
	var join servernet.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&join); err != nil {
		return servernet.JoinResponse{}, fmt.Errorf("decode join: %w", err)
	}
	return join, nil
}

// WebSocketURL maps an http(s) base URL onto its /ws endpoint.
func WebSocketURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String(), nil
}

// NewBot joins the server and attaches a client session.
func NewBot(ctx context.Context, cfg BotConfig) (*Bot, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	settings := cfg.Settings
	join, err := Join(ctx, cfg.HTTPClient, settings.Bot.ServerURL)
	if err != nil {
		return nil, err
	}
	endpoint, err := WebSocketURL(settings.Bot.ServerURL)
	if err != nil {
		return nil, err
	}
	client, err := ws.Dial(ctx, endpoint, join.Token, ws.ClientConfig{Logger: logger})
	if err != nil {
		return nil, err
	}

	b := &Bot{
		logger:   logger,
		settings: settings,
		join:     join,
		client:   client,
		counters: telemetry.NewCounters(nil),
		pilot:    newPilot(motion.Vec2{}, float64(join.Slot), settings.Bot.FireInterval, settings.Bot.ColorInterval, logger),
		poses:    make(map[replication.EntityID]motion.Vec2),
	}
	publisher := logging.PublisherFunc(func(ctx context.Context, event logging.Event) {
		if event.Severity >= logging.SeverityWarn {
			logger.Printf("[%s] %v", event.Type, event.Payload)
		}
	})
	b.session = session.New(client, session.Deps{Logger: logger, Publisher: publisher, Counters: b.counters})

	playerCfg := playerConfig(settings)
	playerCfg.ColorStart = join.Slot
	b.session.Register(player.Kind, player.Factory(playerCfg, player.Deps{
		Counters: b.counters,
		Effects: player.EffectsFuncs{
			Fire: func(entity replication.EntityID, dir motion.Vec3) {
				b.mu.Lock()
				b.fires++
				b.mu.Unlock()
			},
			Color: func(entity replication.EntityID, _, next palette.Color) {
				b.mu.Lock()
				b.colorSwaps++
				b.mu.Unlock()
			},
		},
		Sink: func(e *session.Entity) motion.Sink {
			entity := e.ID()
			return motion.SinkFunc(func(position motion.Vec2, _ float64) {
				b.mu.Lock()
				b.poses[entity] = position
				b.mu.Unlock()
			})
		},
		Source: func(*session.Entity) player.Source { return b.pilot.Source() },
		OnSpawn: func(p *player.Player) {
			if p.Entity().Role().IsOwner() {
				b.pilot.attach(p)
			}
		},
	}))
	return b, nil
}

// Local returns the identity the server assigned.
func (b *Bot) Local() replication.Participant { return b.client.Local() }

// Session exposes the client session.
func (b *Bot) Session() *session.Session { return b.session }

// Player returns the bot's own player once it has been spawned.
func (b *Bot) Player() *player.Player { return b.pilot.self }

// Pose returns the last presented position of an entity replica.
func (b *Bot) Pose(entity replication.EntityID) (motion.Vec2, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pose, ok := b.poses[entity]
	return pose, ok
}

// Step steers, advances the session and periodically logs remote replicas.
func (b *Bot) Step(dt float64) {
	b.pilot.Step(dt)
	b.session.Advance(dt)

	b.sinceLog += dt
	if b.sinceLog < botReportInterval.Seconds() {
		return
	}
	b.sinceLog = 0
	local := b.client.Local().ID
	for _, e := range b.session.Entities() {
		if e.Owner() == local {
			continue
		}
		if pose, ok := b.Pose(e.ID()); ok {
			b.logger.Printf("remote %s owned by %s at (%.2f, %.2f)", e.ID(), e.Owner(), pose.X, pose.Z)
		}
	}
}

// Run steps the bot at the configured tick rate until ctx is done, the
// configured duration elapses, or the server goes away.
func (b *Bot) Run(ctx context.Context) error {
	if b.settings.Bot.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.settings.Bot.Duration)
		defer cancel()
	}
	loop := sim.NewLoop(sim.StepperFunc(b.Step), sim.LoopConfig{
		TickRate:        b.settings.TickRate,
		CatchupMaxTicks: b.settings.CatchupMaxTicks,
	}, sim.LoopHooks{}, nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(stop)
	}()

	var err error
	select {
	case <-ctx.Done():
	case <-b.client.Done():
		err = errors.New("bot: server closed the connection")
	}
	close(stop)
	<-done

	b.mu.Lock()
	b.logger.Printf("bot %s: fired=%d observedFires=%d colorChanges=%d", b.client.Local().ID, b.pilot.fired, b.fires, b.colorSwaps)
	b.mu.Unlock()
	return errors.Join(err, b.Close())
}

// Close detaches the bot.
func (b *Bot) Close() error {
	return b.session.Close()
}

// RunBot joins, runs and detaches a bot.
func RunBot(ctx context.Context, cfg BotConfig) error {
	bot, err := NewBot(ctx, cfg)
	if err != nil {
		return err
	}
	return bot.Run(ctx)
}
