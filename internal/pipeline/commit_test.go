package pipeline

import (
	"errors"
	"testing"
	"time"

	"netsync/internal/net/proto"
	"netsync/internal/palette"
	"netsync/internal/replication"
	"netsync/internal/transport"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testNet struct {
	server *transport.LoopbackEndpoint
	alice  *transport.LoopbackEndpoint
	bob    *transport.LoopbackEndpoint
}

func newTestNet(t *testing.T, authority replication.Kind) testNet {
	t.Helper()
	network := transport.NewNetwork(fixedClock{now: time.Unix(0, 0)}, transport.Conditions{}, 1, nil)
	server, err := network.Join(replication.Participant{ID: "server", Kind: authority})
	if err != nil {
		t.Fatalf("join server: %v", err)
	}
	alice, err := network.Join(replication.Participant{ID: "alice", Kind: replication.KindClient})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := network.Join(replication.Participant{ID: "bob", Kind: replication.KindClient})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	server.Drain()
	return testNet{server: server, alice: alice, bob: bob}
}

func onlyType(envs []proto.Envelope, typ string) []proto.Envelope {
	var out []proto.Envelope
	for _, env := range envs {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func TestCommitPipelineModeSelection(t *testing.T) {
	tests := []struct {
		name   string
		writer replication.WriterRole
		role   replication.Role
		want   Mode
	}{
		{"owner writes owner field", replication.OwnerAuthoritative, replication.RoleOwner, LocalAuthority},
		{"owner requests server field", replication.ServerAuthoritative, replication.RoleOwner, RemoteAuthority},
		{"host writes server field", replication.ServerAuthoritative, replication.RoleHost, LocalAuthority},
		{"server writes server field", replication.ServerAuthoritative, replication.RoleServer, LocalAuthority},
		{"observer cannot write", replication.OwnerAuthoritative, replication.RoleObserver, RemoteAuthority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := replication.NewVariable[int]("e", "f", tt.writer, 0)
			p := NewCommitPipeline(CommitConfig[int]{Variable: v, Role: tt.role})
			defer p.Close()
			if p.Mode() != tt.want {
				t.Fatalf("expected mode %s, got %s", tt.want, p.Mode())
			}
		})
	}
}

func TestRemoteAuthorityLeavesValueUntilAuthorityCommits(t *testing.T) {
	net := newTestNet(t, replication.KindServer)
	codec := palette.ColorCodec{}

	clientVar := replication.NewVariable("player", "color", replication.ServerAuthoritative, palette.Color{})
	serverVar := replication.NewVariable("player", "color", replication.ServerAuthoritative, palette.Color{})
	var requested int
	client := NewCommitPipeline(CommitConfig[palette.Color]{
		Variable:  clientVar,
		Codec:     codec,
		Role:      replication.RoleOwner,
		Sender:    net.alice,
		Authority: "server",
		OnRequest: func(int) { requested++ },
	})
	defer client.Close()
	authority := NewCommitPipeline(CommitConfig[palette.Color]{
		Variable: serverVar,
		Codec:    codec,
		Role:     replication.RoleServer,
	})
	defer authority.Close()

	if err := client.Commit(palette.Red); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := clientVar.Get(); got != (palette.Color{}) {
		t.Fatalf("expected local value untouched, got %v", got)
	}
	if client.Pending() != 1 || requested != 1 {
		t.Fatalf("expected one pending request, got %d (%d observed)", client.Pending(), requested)
	}

	requests := onlyType(net.server.Drain(), proto.TypeCommitRequest)
	if len(requests) != 1 {
		t.Fatalf("expected one commit request, got %d", len(requests))
	}
	if err := authority.HandleCommitRequest(replication.RoleServer, requests[0].Data); err != nil {
		t.Fatalf("handle commit request: %v", err)
	}
	if got := serverVar.Get(); got != palette.Red {
		t.Fatalf("expected authority to commit red, got %v", got)
	}
	if got := clientVar.Get(); got != (palette.Color{}) {
		t.Fatalf("expected client value to wait for replication, got %v", got)
	}

	value, version := serverVar.Snapshot()
	clientVar.Apply(version, value)
	if clientVar.Get() != palette.Red {
		t.Fatalf("expected replicated value")
	}
	if client.Pending() != 0 {
		t.Fatalf("expected pending requests to clear on change, got %d", client.Pending())
	}
}

func TestCommitRequestsApplyInSendOrder(t *testing.T) {
	net := newTestNet(t, replication.KindServer)
	clientVar := replication.NewVariable[int]("e", "f", replication.ServerAuthoritative, 0)
	serverVar := replication.NewVariable[int]("e", "f", replication.ServerAuthoritative, 0)
	client := NewCommitPipeline(CommitConfig[int]{Variable: clientVar, Role: replication.RoleOwner, Sender: net.alice, Authority: "server"})
	authority := NewCommitPipeline(CommitConfig[int]{Variable: serverVar, Role: replication.RoleServer})

	if err := client.Commit(1); err != nil {
		t.Fatalf("commit A: %v", err)
	}
	if err := client.Commit(2); err != nil {
		t.Fatalf("commit B: %v", err)
	}
	var history []int
	serverVar.OnChange(func(_, next int) { history = append(history, next) })
	for _, env := range onlyType(net.server.Drain(), proto.TypeCommitRequest) {
		if err := authority.HandleCommitRequest(replication.RoleServer, env.Data); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(history) != 2 || history[0] != 1 || history[1] != 2 {
		t.Fatalf("expected A then B, got %v", history)
	}
	if serverVar.Version() != 2 {
		t.Fatalf("expected version 2, got %d", serverVar.Version())
	}
}

func TestObserverCannotCommit(t *testing.T) {
	net := newTestNet(t, replication.KindServer)
	v := replication.NewVariable[int]("e", "f", replication.ServerAuthoritative, 0)
	p := NewCommitPipeline(CommitConfig[int]{Variable: v, Role: replication.RoleObserver, Sender: net.bob, Authority: "server"})
	if err := p.Commit(3); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if got := net.server.Drain(); len(got) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(got))
	}
}

func TestAuthorityRejectsRequestForOwnerField(t *testing.T) {
	v := replication.NewVariable[int]("e", "f", replication.OwnerAuthoritative, 0)
	p := NewCommitPipeline(CommitConfig[int]{Variable: v, Role: replication.RoleServer})
	err := p.HandleCommitRequest(replication.RoleServer, []byte("5"))
	if !errors.Is(err, replication.ErrAuthorityViolation) {
		t.Fatalf("expected authority violation, got %v", err)
	}
	if v.Get() != 0 || v.Version() != 0 {
		t.Fatalf("expected variable untouched")
	}
}

func TestCyclicCommitsFollowPalette(t *testing.T) {
	net := newTestNet(t, replication.KindServer)
	colors := []palette.Color{palette.Red, palette.Blue, palette.Green, palette.Yellow}
	cycle, err := palette.NewCyclic(colors, 0)
	if err != nil {
		t.Fatalf("new cyclic: %v", err)
	}
	clientVar := replication.NewVariable("e", "color", replication.ServerAuthoritative, palette.Color{})
	serverVar := replication.NewVariable("e", "color", replication.ServerAuthoritative, palette.Color{})
	client := NewCommitPipeline(CommitConfig[palette.Color]{Variable: clientVar, Codec: palette.ColorCodec{}, Role: replication.RoleOwner, Sender: net.alice, Authority: "server"})
	authority := NewCommitPipeline(CommitConfig[palette.Color]{Variable: serverVar, Codec: palette.ColorCodec{}, Role: replication.RoleServer})

	var committed []palette.Color
	serverVar.OnChange(func(_, next palette.Color) { committed = append(committed, next) })
	for i := 0; i < 10; i++ {
		if err := client.Commit(cycle.Next()); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		for _, env := range net.server.Drain() {
			if err := authority.HandleCommitRequest(replication.RoleServer, env.Data); err != nil {
				t.Fatalf("handle %d: %v", i, err)
			}
		}
	}
	if len(committed) != 10 {
		t.Fatalf("expected 10 commits, got %d", len(committed))
	}
	for i, c := range committed {
		if c != colors[i%len(colors)] {
			t.Fatalf("commit %d: expected %v, got %v", i, colors[i%len(colors)], c)
		}
	}
}
