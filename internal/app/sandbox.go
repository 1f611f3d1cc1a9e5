package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"netsync/internal/config"
	"netsync/internal/motion"
	"netsync/internal/palette"
	"netsync/internal/player"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/sim"
	"netsync/internal/telemetry"
	"netsync/internal/transport"
	"netsync/logging"
)

const sandboxHostID replication.ParticipantID = "host"

// SandboxConfig configures an in-process session: one host and a number of
// clients joined over a conditioned loopback network.
type SandboxConfig struct {
	Logger     telemetry.Logger
	Publisher  logging.Publisher
	Clients    int
	Conditions transport.Conditions
	Seed       int64
	// Clock drives link delays and fire cooldowns. Nil selects wall time.
	Clock         transport.Clock
	Player        player.Config
	FireInterval  time.Duration
	ColorInterval time.Duration
}

type sandboxParticipant struct {
	local    replication.Participant
	endpoint *transport.LoopbackEndpoint
	session  *session.Session
	counters *telemetry.Counters
	pilot    *pilot
	poses    map[replication.EntityID]motion.Vec2
	fires    int
}

// Sandbox runs every participant of a session in one process.
type Sandbox struct {
	cfg          SandboxConfig
	network      *transport.Network
	participants []*sandboxParticipant
}

// ParticipantReport summarises what one participant observed.
type ParticipantReport struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Replicas int    `json:"replicas"`
	// MaxError is the largest distance between a presented remote replica
	// and its owner's actual position.
	MaxError      float64                    `json:"maxError"`
	FireEffects   int                        `json:"fireEffects"`
	ColorVersions map[string]uint64          `json:"colorVersions"`
	Telemetry     telemetry.CountersSnapshot `json:"telemetry"`
}

// SandboxReport is a point-in-time view of every participant.
type SandboxReport struct {
	Tick         uint64              `json:"tick"`
	Participants []ParticipantReport `json:"participants"`
}

// NewSandbox attaches the host, spawns its player, then joins the clients.
// Client players spawn on the host's next Advance.
func NewSandbox(cfg SandboxConfig) (*Sandbox, error) {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.WrapLogger(log.Default())
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	s := &Sandbox{
		cfg:     cfg,
		network: transport.NewNetwork(cfg.Clock, cfg.Conditions, cfg.Seed, nil),
	}

	host, err := s.attach(replication.Participant{ID: sandboxHostID, Kind: replication.KindHost}, 0)
	if err != nil {
		return nil, err
	}
	host.session.OnPeerJoined(func(p replication.Participant) {
		if p.Kind != replication.KindClient {
			return
		}
		if _, err := host.session.Spawn(player.Kind, p.ID); err != nil {
			cfg.Logger.Printf("spawn player for %s failed: %v", p.ID, err)
		}
	})
	if _, err := host.session.Spawn(player.Kind, host.local.ID); err != nil {
		s.Close()
		return nil, fmt.Errorf("spawn host player: %w", err)
	}

	for i := 1; i <= cfg.Clients; i++ {
		id := replication.ParticipantID(fmt.Sprintf("client-%d", i))
		if _, err := s.attach(replication.Participant{ID: id, Kind: replication.KindClient}, i); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Sandbox) attach(local replication.Participant, slot int) (*sandboxParticipant, error) {
	endpoint, err := s.network.Join(local)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", local.ID, err)
	}
	logger := telemetry.Prefixed(s.cfg.Logger, string(local.ID))
	p := &sandboxParticipant{
		local:    local,
		endpoint: endpoint,
		counters: telemetry.NewCounters(nil),
		pilot:    newPilot(motion.Vec2{}, float64(slot), s.cfg.FireInterval, s.cfg.ColorInterval, logger),
		poses:    make(map[replication.EntityID]motion.Vec2),
	}
	p.session = session.New(endpoint, session.Deps{
		Logger:    logger,
		Publisher: logging.WithFields(s.cfg.Publisher, map[string]any{"participant": string(local.ID)}),
		Counters:  p.counters,
	})

	playerCfg := s.cfg.Player
	playerCfg.ColorStart = slot
	p.session.Register(player.Kind, player.Factory(playerCfg, player.Deps{
		Clock:    s.cfg.Clock,
		Counters: p.counters,
		Effects: player.EffectsFuncs{
			Fire:  func(replication.EntityID, motion.Vec3) { p.fires++ },
			Color: func(replication.EntityID, palette.Color, palette.Color) {},
		},
		Sink: func(e *session.Entity) motion.Sink {
			entity := e.ID()
			return motion.SinkFunc(func(position motion.Vec2, _ float64) {
				p.poses[entity] = position
			})
		},
		Source: func(*session.Entity) player.Source { return p.pilot.Source() },
		OnSpawn: func(pl *player.Player) {
			if pl.Entity().Role().IsOwner() {
				p.pilot.attach(pl)
			}
		},
	}))
	s.participants = append(s.participants, p)
	return p, nil
}

// Advance steers every pilot and advances every session, host first.
func (s *Sandbox) Advance(dt float64) {
	for _, p := range s.participants {
		p.pilot.Step(dt)
		p.session.Advance(dt)
	}
}

// Report compares every presented replica with its owner's true position.
func (s *Sandbox) Report() SandboxReport {
	truth := make(map[replication.ParticipantID]motion.Vec2, len(s.participants))
	for _, p := range s.participants {
		truth[p.local.ID] = p.pilot.controller.Position()
	}
	report := SandboxReport{Tick: s.participants[0].session.Tick()}
	for _, p := range s.participants {
		pr := ParticipantReport{
			ID:            string(p.local.ID),
			Kind:          p.local.Kind.String(),
			FireEffects:   p.fires,
			ColorVersions: make(map[string]uint64),
			Telemetry:     p.counters.Snapshot(),
		}
		for _, e := range p.session.Entities() {
			pr.Replicas++
			if pl, ok := e.Behavior().(*player.Player); ok {
				pr.ColorVersions[string(e.Owner())] = pl.Color().Version()
			}
			if e.Owner() == p.local.ID {
				continue
			}
			pose, seen := p.poses[e.ID()]
			owner, known := truth[e.Owner()]
			if !seen || !known {
				continue
			}
			if d := pose.Distance(owner); d > pr.MaxError {
				pr.MaxError = d
			}
		}
		report.Participants = append(report.Participants, pr)
	}
	sort.SliceStable(report.Participants, func(i, j int) bool {
		return report.Participants[i].ID < report.Participants[j].ID
	})
	return report
}

// Close detaches clients before the host.
func (s *Sandbox) Close() error {
	for i := len(s.participants) - 1; i >= 0; i-- {
		s.participants[i].session.Close()
	}
	return nil
}

// RunSandbox runs a host and clients over the link conditioner for the
// configured duration and logs what each participant saw.
func RunSandbox(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	settings := cfg.Settings
	logs, err := newRouter(settings, logger, logging.SystemClock{})
	if err != nil {
		return err
	}
	defer logs.close(context.Background(), logger)

	sandbox, err := NewSandbox(sandboxConfigFrom(settings, logger, logs.router))
	if err != nil {
		return err
	}
	defer sandbox.Close()

	loop := sim.NewLoop(sandbox, sim.LoopConfig{
		TickRate:        settings.TickRate,
		CatchupMaxTicks: settings.CatchupMaxTicks,
	}, sim.LoopHooks{}, nil)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(stop)
	}()

	if settings.Network.SandboxRun > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Network.SandboxRun)
		defer cancel()
	}
	<-ctx.Done()
	close(stop)
	<-done

	report := sandbox.Report()
	for _, p := range report.Participants {
		logger.Printf("%s (%s): replicas=%d maxError=%.3f fireEffects=%d violations=%d",
			p.ID, p.Kind, p.Replicas, p.MaxError, p.FireEffects, p.Telemetry.AuthorityViolations)
	}
	return nil
}

func sandboxConfigFrom(settings config.Config, logger telemetry.Logger, publisher logging.Publisher) SandboxConfig {
	return SandboxConfig{
		Logger:    logger,
		Publisher: publisher,
		Clients:   settings.Network.SandboxClients,
		Conditions: transport.Conditions{
			Delay:    settings.Network.PacketDelay,
			Jitter:   settings.Network.PacketJitter,
			DropRate: settings.Network.DropRate,
		},
		Seed:          time.Now().UnixNano(),
		Player:        playerConfig(settings),
		FireInterval:  settings.Bot.FireInterval,
		ColorInterval: settings.Bot.ColorInterval,
	}
}
