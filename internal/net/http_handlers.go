package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"netsync/internal/auth"
	"netsync/internal/id"
	"netsync/internal/journal"
	"netsync/internal/observability"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/telemetry"
	"netsync/internal/transport"
	"netsync/logging"
)

// JoinResponse is returned by POST /join. The token authorises one
// websocket attachment as ParticipantID.
type JoinResponse struct {
	ParticipantID string `json:"participantId"`
	Slot          int    `json:"slot"`
	Token         string `json:"token"`
	Authority     string `json:"authority"`
}

// Joiner admits a new participant.
type Joiner interface {
	Join() (JoinResponse, error)
}

// TokenJoiner mints participant ids and signed join tokens. Slots are
// handed out in join order and seed the owner's palette cursor.
type TokenJoiner struct {
	issuer    *auth.Issuer
	authority replication.ParticipantID
	next      atomic.Int64
}

// NewTokenJoiner constructs a Joiner for the given authority.
func NewTokenJoiner(issuer *auth.Issuer, authority replication.ParticipantID) *TokenJoiner {
	return &TokenJoiner{issuer: issuer, authority: authority}
}

// Join implements Joiner.
func (j *TokenJoiner) Join() (JoinResponse, error) {
	participant := id.NewParticipant()
	slot := int(j.next.Add(1) - 1)
	token, err := j.issuer.Issue(participant, slot)
	if err != nil {
		return JoinResponse{}, err
	}
	return JoinResponse{
		ParticipantID: string(participant),
		Slot:          slot,
		Token:         token,
		Authority:     string(j.authority),
	}, nil
}

// Diagnostics is the /diagnostics payload.
type Diagnostics struct {
	Status        string                     `json:"status"`
	ServerTime    int64                      `json:"serverTime"`
	TickRate      int                        `json:"tickRate"`
	Session       session.Diagnostics        `json:"session"`
	Telemetry     telemetry.CountersSnapshot `json:"telemetry"`
	Journal       []journal.Entry            `json:"journal,omitempty"`
	JournalWindow journal.Window             `json:"journalWindow"`
	Inbox         transport.InboxStats       `json:"inbox"`
	// Events holds recent warnings retained by the memory log sink.
	Events  []logging.Event     `json:"events,omitempty"`
	Logging logging.RouterStats `json:"logging"`
}

// HTTPHandlerConfig wires the HTTP surface.
type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Observability observability.Config
	Joiner        Joiner
	// WebSocket serves /ws.
	WebSocket   nethttp.Handler
	Diagnostics func() Diagnostics
}

// NewHTTPHandler returns the server mux.
func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := Diagnostics{Status: "ok"}
		if cfg.Diagnostics != nil {
			payload = cfg.Diagnostics()
			if payload.Status == "" {
				payload.Status = "ok"
			}
		}
		payload.ServerTime = time.Now().UnixMilli()
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.Joiner == nil {
			httpError(w, "joining disabled", nethttp.StatusServiceUnavailable)
			return
		}
		join, err := cfg.Joiner.Join()
		if err != nil {
			logger.Printf("join failed: %v", err)
			httpError(w, "join failed", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, join)
	})

	if cfg.WebSocket != nil {
		mux.Handle("/ws", cfg.WebSocket)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
