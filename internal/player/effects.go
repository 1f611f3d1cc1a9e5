package player

import (
	"netsync/internal/motion"
	"netsync/internal/palette"
	"netsync/internal/replication"
)

// Effects presents the local consequences of replicated player activity.
type Effects interface {
	OnFireEvent(entity replication.EntityID, direction motion.Vec3)
	OnColorChanged(entity replication.EntityID, previous, next palette.Color)
}

// NopEffects discards every effect.
type NopEffects struct{}

func (NopEffects) OnFireEvent(replication.EntityID, motion.Vec3)                     {}
func (NopEffects) OnColorChanged(replication.EntityID, palette.Color, palette.Color) {}

// EffectsFuncs adapts optional functions into Effects.
type EffectsFuncs struct {
	Fire  func(entity replication.EntityID, direction motion.Vec3)
	Color func(entity replication.EntityID, previous, next palette.Color)
}

func (f EffectsFuncs) OnFireEvent(entity replication.EntityID, direction motion.Vec3) {
	if f.Fire != nil {
		f.Fire(entity, direction)
	}
}

func (f EffectsFuncs) OnColorChanged(entity replication.EntityID, previous, next palette.Color) {
	if f.Color != nil {
		f.Color(entity, previous, next)
	}
}
