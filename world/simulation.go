package world

import (
	"fmt"
	"math"
)

// Step simulates the next tick.
func (w *World) Step() {
	w.Flush()
	w.tick++
	now := w.TimeAt(w.tick)

	for _, e := range w.entities {
		if w.Get(e.ID) == nil {
			continue
		}
		switch e.Kind {
		case KindChampion:
			w.updateActor(e, now)
		case KindMinion:
			w.think(e, now)
			w.updateActor(e, now)
		case KindProjectile:
			w.updateProjectile(e)
		default:
			panic(fmt.Sprintf("unknown entity kind %d", e.Kind))
		}
	}
	w.spawnWaves(now)
	w.Flush()
}

func (w *World) updateActor(e *Entity, now float64) {
	a := e.Actor
	if a.queued != nil && now-a.queued.QueuedAt > w.rules.MaxCommandAge {
		a.queued = nil
	}
	w.tryCommand(e, now, math.Inf(-1))
	w.pursue(e, now)

	if a.Action != nil {
		w.runAction(e, now)
		if a.Action.Ended(now) {
			end := a.Action.EndTime()
			a.Action = nil
			if !w.tryCommand(e, now, end) {
				w.pursue(e, now)
			}
		}
	}
	e.Pos = a.Path.Position(now)
}

// acceptWindow reports whether a new order may take over the actor at now,
// whether the current action must be cancelled for it, and the earliest time
// the order may take effect.
func (a *Actor) acceptWindow(now float64) (since float64, cancel bool, ok bool) {
	if a.Action == nil {
		return math.Inf(-1), false, true
	}
	if a.Action.AllowMovement(now) {
		return a.Action.AllowMovementSince(now), false, true
	}
	if a.Action.AllowCancel(now) {
		return a.Action.AllowCancelSince(now), true, true
	}
	return 0, false, false
}

// tryCommand applies the queued command if the actor can take it. Accepted
// and invalid commands are consumed; blocked ones stay queued.
func (w *World) tryCommand(e *Entity, now, notBefore float64) bool {
	a := e.Actor
	cmd := a.queued
	if cmd == nil {
		return false
	}
	switch cmd.Kind {
	case CommandNone:
		a.queued = nil
		return false
	case CommandMove:
		if !w.m.Walkable(w.m.Clamp(cmd.Target)) {
			a.queued = nil
			return false
		}
		since, cancel, ok := a.acceptWindow(now)
		if !ok {
			return false
		}
		if cancel {
			a.Action = nil
		}
		at := math.Min(now, math.Max(cmd.QueuedAt, math.Max(since, notBefore)))
		from := a.Path.Position(at)
		a.Path = NewPath(at, a.Def.MoveSpeed, from, w.m.Clamp(cmd.Target))
		a.TargetID = NoEntity
		a.queued = nil
		return true
	case CommandAttack:
		target := w.Get(cmd.TargetID)
		if target == nil || target.Actor == nil || target.Team == e.Team {
			a.queued = nil
			return false
		}
		if attack, ok := a.Action.(*AttackAction); ok && attack.TargetID == target.ID {
			a.TargetID = target.ID
			a.queued = nil
			return true
		}
		_, cancel, ok := a.acceptWindow(now)
		if !ok {
			return false
		}
		if cancel {
			a.Action = nil
		}
		a.TargetID = target.ID
		a.nextRepath = now
		a.queued = nil
		return true
	default:
		a.queued = nil
		return false
	}
}

// pursue closes in on and attacks the current target.
func (w *World) pursue(e *Entity, now float64) {
	a := e.Actor
	if a.TargetID == NoEntity {
		return
	}
	pos := a.Path.Position(now)
	target := w.Get(a.TargetID)
	if target == nil || target.Actor == nil {
		a.TargetID = NoEntity
		a.Action = nil
		a.Path = StationaryPath(now, pos)
		return
	}

	if Distance(pos, target.Pos) <= a.Def.AttackRange {
		if a.Action != nil {
			return
		}
		if len(a.Path.Points) > 1 && !a.Path.Done(now) {
			a.Path = StationaryPath(now, pos)
		}
		if now < a.attackReadyAt {
			return
		}
		attack := NewAttackAction(w.tick, w.rules.TickDelta, a.Def, target.ID)
		a.Action = attack
		a.attackReadyAt = attack.End
		return
	}

	if now < a.nextRepath {
		return
	}
	if a.Action != nil && !a.Action.AllowMovement(now) {
		return
	}
	a.Path = NewPath(now, a.Def.MoveSpeed, pos, w.m.Clamp(target.Pos))
	a.nextRepath = now + w.rules.RepathInterval
}

func (w *World) runAction(e *Entity, now float64) {
	switch action := e.Actor.Action.(type) {
	case *AttackAction:
		if action.Fired || now < action.PostHit {
			return
		}
		action.Fired = true
		if w.Get(action.TargetID) == nil {
			return
		}
		def := e.Actor.Def
		w.Spawn(&Entity{
			Team:   e.Team,
			Kind:   KindProjectile,
			TypeID: def.TypeID,
			Pos:    e.Actor.Path.Position(now),
			Projectile: &Projectile{
				SourceID: e.ID,
				TargetID: action.TargetID,
				Speed:    def.ProjectileSpeed,
				Damage:   def.Damage,
			},
		})
	default:
		panic(fmt.Sprintf("unknown action %T", action))
	}
}

func (w *World) updateProjectile(e *Entity) {
	p := e.Projectile
	target := w.Get(p.TargetID)
	if target == nil {
		w.Remove(e.ID)
		return
	}
	pos, arrived := MoveToward(e.Pos, target.Pos, p.Speed*w.rules.TickDelta)
	e.Pos = pos
	if !arrived {
		return
	}
	w.Remove(e.ID)
	if target.Actor != nil {
		w.damage(target, p.Damage)
	}
}

func (w *World) damage(e *Entity, amount int32) {
	a := e.Actor
	a.Health -= amount
	if a.Health > 0 {
		return
	}
	switch e.Kind {
	case KindMinion:
		w.Remove(e.ID)
	case KindChampion:
		now := w.Time()
		a.Health = a.Def.MaxHealth
		a.Path = StationaryPath(now, a.Spawn)
		a.Action = nil
		a.TargetID = NoEntity
		a.queued = nil
		e.Pos = a.Spawn
	}
}

// think picks targets for minions: the closest enemy actor within aggro
// range, else the lane goal.
func (w *World) think(e *Entity, now float64) {
	a := e.Actor
	if now < a.nextThink {
		return
	}
	a.nextThink = now + w.rules.RepathInterval
	if a.TargetID != NoEntity {
		if t := w.Get(a.TargetID); t != nil && Distance(e.Pos, t.Pos) <= w.rules.AggroRange*1.5 {
			return
		}
		a.TargetID = NoEntity
	}
	best, bestDist := NoEntity, w.rules.AggroRange
	for _, other := range w.entities {
		if other.Actor == nil || other.Team == e.Team || w.Get(other.ID) == nil {
			continue
		}
		if d := Distance(e.Pos, other.Pos); d <= bestDist {
			best, bestDist = other.ID, d
		}
	}
	if best != NoEntity {
		a.TargetID = best
		return
	}
	if a.Action == nil && a.Path.Destination() != a.Goal {
		a.Path = NewPath(now, a.Def.MoveSpeed, a.Path.Position(now), a.Goal)
	}
}

func (w *World) spawnWaves(now float64) {
	if w.rules.WaveSize <= 0 || now < w.nextWave {
		return
	}
	w.nextWave += w.rules.WaveInterval
	for i := range w.m.Spawns {
		team := TeamFromIndex(i)
		goal, _ := w.m.Spawn(team.Enemy())
		for n := 0; n < w.rules.WaveSize; n++ {
			pos := w.m.Clamp(w.m.Spawns[i].Add(Vec(0, float64(n)-float64(w.rules.WaveSize-1)/2)))
			e := w.newActor(KindMinion, team, w.rules.Minion, pos, now)
			e.Actor.Goal = goal
			w.Spawn(e)
		}
	}
}
