package player

import (
	"netsync/internal/motion"
	"netsync/internal/pipeline"
	"netsync/internal/replication"
	"netsync/internal/session"
)

// Source produces the owner's motion for the next tick.
type Source interface {
	Sample(dt float64) (motion.Vec2, float64)
}

// TransformSync transmits an owner's transform every tick and smooths every
// other replica toward the latest replicated snapshot.
type TransformSync struct {
	role     replication.Role
	variable *replication.Variable[motion.Snapshot]
	commit   *pipeline.CommitPipeline[motion.Snapshot]
	interp   *motion.Interpolator
	source   Source
	sink     motion.Sink

	position motion.Vec2
	yaw      float64
}

func newTransformSync(e *session.Entity, cfg Config, source Source, sink motion.Sink) *TransformSync {
	writer := replication.OwnerAuthoritative
	if cfg.ServerAuthoritative {
		writer = replication.ServerAuthoritative
	}
	codec := motion.SnapshotCodec{}
	variable := replication.NewVariable(e.ID(), FieldTransform, writer, motion.NewSnapshot(cfg.Spawn, 0)).WithPolicy(e.Policy())
	e.AddField(replication.Bind[motion.Snapshot](variable, codec))
	commit := pipeline.NewCommitPipeline(pipeline.CommitConfig[motion.Snapshot]{
		Variable:  variable,
		Codec:     codec,
		Role:      e.Role(),
		Policy:    e.Policy(),
		Sender:    e.Sender(),
		Authority: e.Authority(),
	})
	e.AddCommitHandler(FieldTransform, commit)
	return &TransformSync{
		role:     e.Role(),
		variable: variable,
		commit:   commit,
		interp:   motion.NewInterpolator(cfg.InterpolationTime, cfg.Spawn, 0),
		source:   source,
		sink:     sink,
		position: cfg.Spawn,
	}
}

// Tick advances the transform by dt seconds.
func (t *TransformSync) Tick(dt float64) {
	if t.role.IsOwner() {
		t.transmit(dt)
		return
	}
	t.position, t.yaw = t.interp.Step(t.variable.Get(), dt)
	t.present()
}

func (t *TransformSync) transmit(dt float64) {
	if t.source == nil {
		return
	}
	t.position, t.yaw = t.source.Sample(dt)
	t.present()
	// The session sender publishes network.send_failed for undeliverable requests.
	_ = t.commit.Commit(motion.NewSnapshot(t.position, t.yaw))
}

func (t *TransformSync) present() {
	if t.sink != nil {
		t.sink.ApplyMotion(t.position, t.yaw)
	}
}

// Position returns the locally presented position.
func (t *TransformSync) Position() motion.Vec2 { return t.position }

// Yaw returns the locally presented yaw in degrees.
func (t *TransformSync) Yaw() float64 { return t.yaw }

// Replicated returns the latest replicated snapshot and its version.
func (t *TransformSync) Replicated() (motion.Snapshot, uint64) { return t.variable.Snapshot() }

// Mode reports how the owner's samples are committed.
func (t *TransformSync) Mode() pipeline.Mode { return t.commit.Mode() }

// Close releases the pipeline's observer.
func (t *TransformSync) Close() {
	t.commit.Close()
}
