package client

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"arenagame/utils"
	"arenagame/world"
)

// ClockConfig tunes how the local clock follows the server. Times are in
// seconds.
type ClockConfig struct {
	TickDelta     float64
	Damping       float64
	LagBuffer     float64
	SnapThreshold float64
	MaxFrameDelta float64
	// Epsilon absorbs float error when mapping times to ticks.
	Epsilon float64
	// ProjectileLifetime bounds how long a predicted projectile outlives
	// the last snapshot that carried it.
	ProjectileLifetime float64
}

func NewClockConfig(cfg *utils.Config) ClockConfig {
	return ClockConfig{
		TickDelta:     cfg.Sim.TickDelta,
		Damping:       cfg.Client.Damping,
		LagBuffer:     cfg.Client.LagBuffer,
		SnapThreshold: cfg.Client.SnapThreshold,
		MaxFrameDelta: cfg.Client.MaxFrameDelta,
		Epsilon:       cfg.Math.Float64EqualityThreshold,

		ProjectileLifetime: cfg.Client.ProjectileLifetime,
	}
}

// View is the reconciled state of one entity at local time.
type View struct {
	ID        world.EntityID
	Team      world.Team
	Kind      world.EntityKind
	TypeID    uint16
	Pos       mgl64.Vec2
	Health    int32
	MaxHealth int32
	TargetID  world.EntityID
	Action    world.ActionState

	path world.Path

	// Projectiles fly locally between snapshots and are dropped on arrival.
	predicted bool
	speed     float64
	aim       mgl64.Vec2
	movedAt   float64
	seenAt    float64
}

// Reconciler turns the snapshots in a store into entity positions at a
// local time that trails the server by a small buffer.
type Reconciler struct {
	cfg   ClockConfig
	store *SnapshotStore

	local  float64
	synced bool
	tick   world.Tick
	next   *world.Snapshot
	views  map[world.EntityID]*View
}

func NewReconciler(cfg ClockConfig, store *SnapshotStore) *Reconciler {
	return &Reconciler{
		cfg:   cfg,
		store: store,
		tick:  world.NilTick,
		views: make(map[world.EntityID]*View),
	}
}

func (r *Reconciler) LocalTime() float64 {
	return r.local
}

// Tick is the last snapshot tick walked past.
func (r *Reconciler) Tick() world.Tick {
	return r.tick
}

func (r *Reconciler) Synced() bool {
	return r.synced
}

func (r *Reconciler) Get(id world.EntityID) (View, bool) {
	v, ok := r.views[id]
	if !ok {
		return View{}, false
	}
	return *v, true
}

// Views returns every entity sorted by id.
func (r *Reconciler) Views() []View {
	views := make([]View, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func (r *Reconciler) timeOf(t world.Tick) float64 {
	return float64(t) * r.cfg.TickDelta
}

func (r *Reconciler) tickOf(t float64) world.Tick {
	return world.Tick(math.Floor(t/r.cfg.TickDelta + r.cfg.Epsilon))
}

// Expected is where the clock should be given the latest snapshot.
func (r *Reconciler) Expected() (float64, bool) {
	latest := r.store.Latest()
	if latest == nil {
		return 0, false
	}
	return r.timeOf(latest.Tick) - r.cfg.LagBuffer - r.cfg.TickDelta, true
}

// Advance moves the local clock by the frame time dt and updates every
// view. Nothing moves before the first snapshot.
func (r *Reconciler) Advance(dt float64) {
	expected, ok := r.Expected()
	if !ok {
		return
	}
	if !r.synced || !utils.AlmostEqual(r.local, expected, r.cfg.SnapThreshold) {
		r.snap(expected)
	} else {
		shift := r.cfg.Damping * (expected - r.local) * math.Min(dt, r.cfg.MaxFrameDelta)
		r.local += dt + shift
	}
	r.walk(r.store.Latest().Tick)
	r.position()
}

// snap jumps the clock and restarts the walk from the newest snapshot at
// or before the new local tick.
func (r *Reconciler) snap(expected float64) {
	r.local = expected
	r.synced = true
	lt := r.tickOf(r.local)
	if base := r.store.AtOrBefore(lt); base != nil {
		r.tick = base.Tick - 1
	} else {
		r.tick = lt
	}
}

func (r *Reconciler) walk(latest world.Tick) {
	target := r.tickOf(r.local)
	if target > latest {
		target = latest
	}
	for r.tick < target {
		r.tick++
		if snap := r.store.Get(r.tick); snap != nil {
			r.apply(snap)
		}
	}
	r.next = r.store.After(r.tick)
}

// apply makes snap authoritative. Entities it lacks are removed, except
// predicted ones: projectiles are not sent every tick.
func (r *Reconciler) apply(snap *world.Snapshot) {
	now := r.timeOf(snap.Tick)
	seen := make(map[world.EntityID]bool, len(snap.Entities))
	for _, e := range snap.Entities {
		seen[e.ID] = true
		v := r.views[e.ID]
		if v == nil {
			v = &View{ID: e.ID}
			r.views[e.ID] = v
		}
		v.Team, v.Kind, v.TypeID = e.Team, e.Kind, e.TypeID
		v.Pos = e.Pos().Vec()
		switch {
		case e.Actor != nil:
			v.path = e.Actor.Path.Path()
			v.Health = e.Actor.Health
			v.MaxHealth = e.Actor.MaxHealth
			v.TargetID = e.Actor.TargetID
			v.Action = e.Actor.Action
		case e.Projectile != nil:
			v.predicted = true
			v.TargetID = e.Projectile.TargetID
			v.speed = float64(e.Projectile.Speed)
			v.aim = v.Pos
			if target, ok := snap.Find(e.Projectile.TargetID); ok {
				v.aim = target.Pos().Vec()
			}
			v.movedAt = now
			v.seenAt = now
		default:
			v.path = world.StationaryPath(now, v.Pos)
		}
	}
	for id, v := range r.views {
		if !seen[id] && !v.predicted {
			delete(r.views, id)
		}
	}
}

func (r *Reconciler) position() {
	t := r.local
	for _, v := range r.views {
		if !v.predicted {
			v.Pos = r.actorPosition(v, t)
		}
	}
	for id, v := range r.views {
		if !v.predicted {
			continue
		}
		if r.cfg.ProjectileLifetime > 0 && t-v.seenAt > r.cfg.ProjectileLifetime {
			delete(r.views, id)
			continue
		}
		if target, ok := r.views[v.TargetID]; ok && !target.predicted {
			v.aim = target.Pos
		}
		if t <= v.movedAt {
			continue
		}
		pos, arrived := world.MoveToward(v.Pos, v.aim, v.speed*(t-v.movedAt))
		v.Pos, v.movedAt = pos, t
		if arrived {
			delete(r.views, id)
		}
	}
}

// actorPosition follows the current path until the next snapshot's path
// has started, then follows that one.
func (r *Reconciler) actorPosition(v *View, t float64) mgl64.Vec2 {
	if r.next != nil {
		if e, ok := r.next.Find(v.ID); ok && e.Actor != nil && float64(e.Actor.Path.Start) <= t {
			return e.Actor.Path.Path().Position(t)
		}
	}
	return v.path.Position(t)
}
