// Package app wires the netsync processes: the authoritative server, the
// headless bot client, and the in-process sandbox.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"netsync/internal/auth"
	"netsync/internal/config"
	"netsync/internal/id"
	"netsync/internal/journal"
	servernet "netsync/internal/net"
	"netsync/internal/net/ws"
	"netsync/internal/observability"
	"netsync/internal/player"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/sim"
	"netsync/internal/storage/sqlite"
	"netsync/internal/telemetry"
	"netsync/logging"
)

const (
	diagnosticsJournalLimit = 50
	diagnosticsEventLimit   = 50
	shutdownTimeout         = 5 * time.Second
)

// Config configures the server process.
type Config struct {
	Logger   telemetry.Logger
	Settings config.Config
}

// Server is a dedicated authority: a websocket hub, the authority session,
// the commit journal and the HTTP surface.
type Server struct {
	settings config.Config
	logger   telemetry.Logger
	logs     *routerBundle
	counters *telemetry.Counters
	hub      *ws.Hub
	session  *session.Session
	journal  *journal.Journal
	store    *sqlite.Store
	flusher  *journalFlusher
	loop     *sim.Loop
	handler  http.Handler
	tracing  func(context.Context) error

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer builds every server component without starting the loop.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	settings := cfg.Settings

	s := &Server{settings: settings, logger: logger, stop: make(chan struct{})}
	ok := false
	defer func() {
		if !ok {
			s.release(context.Background())
		}
	}()

	logs, err := newRouter(settings, logger, logging.SystemClock{})
	if err != nil {
		return nil, err
	}
	s.logs = logs

	obsCfg := observability.Config{
		EnablePprofTrace: settings.Observability.EnablePprofTrace,
		OTelEndpoint:     settings.Observability.OTelEndpoint,
		ServiceName:      "netsync-server",
	}
	s.tracing, err = observability.Setup(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	s.counters = telemetry.NewCounters(telemetry.WrapMetrics(logs.router.Metrics()))
	local := replication.Participant{ID: id.NewParticipant(), Kind: replication.KindServer}
	s.hub, err = ws.NewHub(local, ws.HubConfig{Logger: logger, Metrics: telemetry.ScopedMetrics(telemetry.WrapMetrics(logs.router.Metrics()), "hub")})
	if err != nil {
		return nil, err
	}

	s.session = session.New(s.hub, session.Deps{
		Logger:    logger,
		Publisher: logs.router,
		Counters:  s.counters,
		Tracer:    otel.Tracer("netsync/session"),
	})
	s.session.Register(player.Kind, player.Factory(playerConfig(settings), player.Deps{Counters: s.counters}))
	s.session.OnPeerJoined(func(p replication.Participant) {
		if p.Kind != replication.KindClient {
			return
		}
		if _, err := s.session.Spawn(player.Kind, p.ID); err != nil {
			logger.Printf("spawn player for %s failed: %v", p.ID, err)
		}
	})

	s.journal = journal.New(settings.Journal.Capacity, settings.Journal.MaxAge)
	s.journal.AttachTelemetry(s.counters)
	s.session.OnCommit(func(rec session.CommitRecord) {
		s.journal.Record(journal.Entry{
			Tick:    rec.Tick,
			Entity:  string(rec.Entity),
			Field:   string(rec.Field),
			Origin:  string(rec.Origin),
			Version: rec.Version,
			Remote:  rec.Remote,
			Data:    rec.Data,
		})
	})

	if path := settings.Journal.SQLitePath; path != "" {
		s.store, err = sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open commit store: %w", err)
		}
		s.flusher = &journalFlusher{journal: s.journal, store: s.store, run: id.NewRun(), logger: logger}
	}

	monitor := sim.NewBudgetMonitor(s.counters, logs.router)
	s.loop = sim.NewLoop(s.session, sim.LoopConfig{
		TickRate:        settings.TickRate,
		CatchupMaxTicks: settings.CatchupMaxTicks,
	}, sim.LoopHooks{AfterStep: monitor.AfterStep}, nil)

	secret := settings.Auth.TokenSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		logger.Printf("NETSYNC_TOKEN_SECRET not set; using a per-run secret")
	}
	issuer, err := auth.NewIssuer(secret, settings.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	s.handler = servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Logger:        logger,
		Observability: obsCfg,
		Joiner:        servernet.NewTokenJoiner(issuer, local.ID),
		WebSocket:     ws.NewHandler(s.hub, issuer, ws.HandlerConfig{Logger: logger}),
		Diagnostics:   s.Diagnostics,
	})

	ok = true
	return s, nil
}

func playerConfig(settings config.Config) player.Config {
	cfg := player.DefaultConfig()
	cfg.ServerAuthoritative = settings.Replication.ServerAuth
	if settings.Replication.InterpolationTime > 0 {
		cfg.InterpolationTime = settings.Replication.InterpolationTime.Seconds()
	}
	if settings.Replication.FireCooldown > 0 {
		cfg.FireCooldown = settings.Replication.FireCooldown
	}
	return cfg
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Handler serves /health, /join, /ws and /diagnostics.
func (s *Server) Handler() http.Handler { return s.handler }

// Session exposes the authority session.
func (s *Server) Session() *session.Session { return s.session }

// Counters exposes the replication counters.
func (s *Server) Counters() *telemetry.Counters { return s.counters }

// Journal exposes the commit journal.
func (s *Server) Journal() *journal.Journal { return s.journal }

// Diagnostics snapshots the server for /diagnostics.
func (s *Server) Diagnostics() servernet.Diagnostics {
	diag := servernet.Diagnostics{
		Status:        "ok",
		TickRate:      s.settings.TickRate,
		Session:       s.session.Describe(),
		Telemetry:     s.counters.Snapshot(),
		Journal:       s.journal.Recent(diagnosticsJournalLimit),
		JournalWindow: s.journal.Window(),
		Inbox:         s.hub.InboxStats(),
	}
	if logs := s.logs; logs != nil {
		diag.Events = logs.recent(diagnosticsEventLimit)
		diag.Logging = logs.router.Stats()
	}
	return diag
}

// Start runs the simulation loop and the journal flusher.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop.Run(s.stop)
	}()
	if s.flusher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.flusher.Run(ctx, s.settings.Journal.FlushInterval)
		}()
	}
}

// Close stops the loop, detaches every participant, flushes the journal and
// releases storage, tracing and logging.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	var errs []error
	if err := s.hub.Close(); err != nil {
		errs = append(errs, err)
	}
	if started {
		close(s.stop)
		s.cancel()
		s.wg.Wait()
	} else if s.flusher != nil {
		if _, err := s.flusher.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.session.Close(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.release(ctx))
	return errors.Join(errs...)
}

func (s *Server) release(ctx context.Context) error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
		s.store = nil
	}
	if s.tracing != nil {
		if err := s.tracing(ctx); err != nil {
			errs = append(errs, err)
		}
		s.tracing = nil
	}
	s.logs.close(ctx, s.logger)
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	srv, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	srv.Start()

	httpServer := &http.Server{Addr: srv.settings.Addr, Handler: srv.Handler()}
	srv.logger.Printf("server listening on %s", httpServer.Addr)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		closeErr := srv.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return closeErr
		}
		return errors.Join(fmt.Errorf("server failed: %w", err), closeErr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are closed by the hub, not Shutdown.
	closeErr := srv.Close(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Join(fmt.Errorf("shutdown http: %w", err), closeErr)
	}
	return closeErr
}
