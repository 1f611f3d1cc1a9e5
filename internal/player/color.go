package player

import (
	"netsync/internal/palette"
	"netsync/internal/pipeline"
	"netsync/internal/replication"
	"netsync/internal/session"
)

// ColorSync replicates a server-authoritative color. Only the owner advances
// the palette; everyone else renders whatever the authority committed.
type ColorSync struct {
	role     replication.Role
	variable *replication.Variable[palette.Color]
	commit   *pipeline.CommitPipeline[palette.Color]
	cycle    *palette.Cyclic[palette.Color]
	handle   replication.ChangeHandle
}

func newColorSync(e *session.Entity, cfg Config, effects Effects) (*ColorSync, error) {
	cycle, err := palette.NewCyclic(cfg.Palette, cfg.ColorStart)
	if err != nil {
		return nil, err
	}
	codec := palette.ColorCodec{}
	variable := replication.NewVariable(e.ID(), FieldColor, replication.ServerAuthoritative, palette.Color{}).WithPolicy(e.Policy())
	e.AddField(replication.Bind[palette.Color](variable, codec))
	commit := pipeline.NewCommitPipeline(pipeline.CommitConfig[palette.Color]{
		Variable:  variable,
		Codec:     codec,
		Role:      e.Role(),
		Policy:    e.Policy(),
		Sender:    e.Sender(),
		Authority: e.Authority(),
		OnRequest: e.RequestObserver(FieldColor),
	})
	e.AddCommitHandler(FieldColor, commit)

	c := &ColorSync{
		role:     e.Role(),
		variable: variable,
		commit:   commit,
		cycle:    cycle,
	}
	entity := e.ID()
	c.handle = variable.OnChange(func(previous, next palette.Color) {
		effects.OnColorChanged(entity, previous, next)
	})
	if c.role.IsOwner() {
		if err := c.Advance(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Advance commits the next palette color. Only the owner may advance.
func (c *ColorSync) Advance() error {
	if !c.role.IsOwner() {
		return pipeline.ErrNotOwner
	}
	return c.commit.Commit(c.cycle.Next())
}

// Value returns the replicated color.
func (c *ColorSync) Value() palette.Color { return c.variable.Get() }

// Version returns the replicated color's commit count.
func (c *ColorSync) Version() uint64 { return c.variable.Version() }

// Pending reports commit requests awaiting the authority.
func (c *ColorSync) Pending() uint64 { return c.commit.Pending() }

// Close unregisters the change observer and the pipeline.
func (c *ColorSync) Close() {
	c.variable.OffChange(c.handle)
	c.commit.Close()
}
