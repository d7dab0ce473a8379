package world

import (
	"sort"
)

// Snapshot is the immutable state of a tick as sent to clients. Entities
// are sorted by id. Values are quantized to float32 at capture so a decoded
// delta reproduces it exactly.
type Snapshot struct {
	Tick     Tick
	Entities []EntityState
	Players  [2][]EntityID
}

type EntityState struct {
	ID     EntityID
	Team   Team
	Kind   EntityKind
	TypeID uint16
	X, Y   float32

	Actor      *ActorState
	Projectile *ProjectileState
}

type ActorState struct {
	Path      PathState
	TargetID  EntityID
	Health    int32
	MaxHealth int32
	Action    ActionState
}

type ProjectileState struct {
	SourceID EntityID
	TargetID EntityID
	Speed    float32
}

func (e EntityState) Pos() Point {
	return Point{X: e.X, Y: e.Y}
}

func (e EntityState) Equal(o EntityState) bool {
	if e.ID != o.ID || e.Team != o.Team || e.Kind != o.Kind || e.TypeID != o.TypeID || e.X != o.X || e.Y != o.Y {
		return false
	}
	if (e.Actor == nil) != (o.Actor == nil) || (e.Projectile == nil) != (o.Projectile == nil) {
		return false
	}
	if e.Actor != nil && !e.Actor.Equal(*o.Actor) {
		return false
	}
	if e.Projectile != nil && *e.Projectile != *o.Projectile {
		return false
	}
	return true
}

func (a ActorState) Equal(o ActorState) bool {
	return a.Path.Equal(o.Path) &&
		a.TargetID == o.TargetID &&
		a.Health == o.Health &&
		a.MaxHealth == o.MaxHealth &&
		a.Action == o.Action
}

// Find returns the state of id, using binary search over the sorted list.
func (s *Snapshot) Find(id EntityID) (EntityState, bool) {
	i := sort.Search(len(s.Entities), func(i int) bool { return s.Entities[i].ID >= id })
	if i < len(s.Entities) && s.Entities[i].ID == id {
		return s.Entities[i], true
	}
	return EntityState{}, false
}

func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.Tick != o.Tick || len(s.Entities) != len(o.Entities) {
		return false
	}
	for i := range s.Players {
		if len(s.Players[i]) != len(o.Players[i]) {
			return false
		}
		for j := range s.Players[i] {
			if s.Players[i][j] != o.Players[i][j] {
				return false
			}
		}
	}
	for i := range s.Entities {
		if !s.Entities[i].Equal(o.Entities[i]) {
			return false
		}
	}
	return true
}

// Snapshot captures the current tick and then merges anything staged since
// the step finished.
func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{
		Tick:     w.tick,
		Entities: make([]EntityState, 0, len(w.entities)),
		Players:  w.Players(),
	}
	for _, e := range w.entities {
		s.Entities = append(s.Entities, captureEntity(e))
	}
	w.Flush()
	return s
}

func captureEntity(e *Entity) EntityState {
	pos := quantize(e.Pos)
	state := EntityState{
		ID:     e.ID,
		Team:   e.Team,
		Kind:   e.Kind,
		TypeID: e.TypeID,
		X:      pos.X,
		Y:      pos.Y,
	}
	switch e.Kind {
	case KindChampion, KindMinion:
		a := e.Actor
		state.Actor = &ActorState{
			Path:      a.Path.state(),
			TargetID:  a.TargetID,
			Health:    a.Health,
			MaxHealth: a.Def.MaxHealth,
			Action:    actionState(a.Action),
		}
	case KindProjectile:
		p := e.Projectile
		state.Projectile = &ProjectileState{
			SourceID: p.SourceID,
			TargetID: p.TargetID,
			Speed:    float32(p.Speed),
		}
	}
	return state
}
