package world

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sasha-s/go-deadlock"
)

// Tick counts simulation steps; tick n simulates time n*TickDelta.
type Tick int64

const NilTick Tick = -1

var (
	ErrUnknownChampion = errors.New("unknown champion")
	ErrNoSpawn         = errors.New("team has no spawn")
	ErrNotActor        = errors.New("entity is not an actor")
)

// World owns every live entity. Entities are kept in an id-ordered table
// and reference each other by EntityID only. Additions and removals are
// staged and merged at sync points: the start of a step, after the update
// pass, and after a snapshot is captured.
type World struct {
	rules     Rules
	m         *Map
	champions Champions

	tick     Tick
	nextID   EntityID
	entities []*Entity
	index    map[EntityID]*Entity
	players  [2][]EntityID
	nextWave float64

	mu            deadlock.Mutex
	pendingAdd    []*Entity
	pendingRemove map[EntityID]struct{}
}

func New(rules Rules, m *Map, champions Champions) *World {
	return &World{
		rules:         rules,
		m:             m,
		champions:     champions,
		tick:          NilTick,
		nextID:        1,
		index:         make(map[EntityID]*Entity),
		nextWave:      rules.FirstWave,
		pendingRemove: make(map[EntityID]struct{}),
	}
}

func (w *World) Rules() Rules { return w.rules }
func (w *World) Map() *Map    { return w.m }

// Tick is the last simulated tick, NilTick before the first step.
func (w *World) Tick() Tick { return w.tick }

func (w *World) TimeAt(t Tick) float64 {
	return float64(t) * w.rules.TickDelta
}

// Time is the time of the last simulated tick.
func (w *World) Time() float64 {
	if w.tick == NilTick {
		return 0
	}
	return w.TimeAt(w.tick)
}

// NextTime is the time the next step will simulate.
func (w *World) NextTime() float64 {
	return w.TimeAt(w.tick + 1)
}

// Get returns the live entity with id. Entities staged for removal are
// already gone.
func (w *World) Get(id EntityID) *Entity {
	e, ok := w.index[id]
	if !ok {
		return nil
	}
	w.mu.Lock()
	_, removed := w.pendingRemove[id]
	w.mu.Unlock()
	if removed {
		return nil
	}
	return e
}

// ForEach visits live entities in id order.
func (w *World) ForEach(callback func(*Entity)) {
	for _, e := range w.entities {
		callback(e)
	}
}

func (w *World) Len() int {
	return len(w.entities)
}

// Players lists the champion of each roster slot per team.
func (w *World) Players() [2][]EntityID {
	var out [2][]EntityID
	for i := range w.players {
		out[i] = append([]EntityID(nil), w.players[i]...)
	}
	return out
}

// Spawn assigns an id and stages e for addition.
func (w *World) Spawn(e *Entity) EntityID {
	w.mu.Lock()
	defer w.mu.Unlock()
	e.ID = w.nextID
	w.nextID++
	w.pendingAdd = append(w.pendingAdd, e)
	return e.ID
}

// Remove stages id for removal.
func (w *World) Remove(id EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pendingRemove[id] = struct{}{}
}

// Flush merges staged additions and removals. Ids grow monotonically, so
// appending keeps the table ordered.
func (w *World) Flush() {
	w.mu.Lock()
	adds := w.pendingAdd
	removes := w.pendingRemove
	w.pendingAdd = nil
	w.pendingRemove = make(map[EntityID]struct{})
	w.mu.Unlock()

	if len(removes) > 0 {
		kept := w.entities[:0]
		for _, e := range w.entities {
			if _, ok := removes[e.ID]; ok {
				delete(w.index, e.ID)
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(w.entities); i++ {
			w.entities[i] = nil
		}
		w.entities = kept
	}
	for _, e := range adds {
		if _, ok := removes[e.ID]; ok {
			continue
		}
		w.entities = append(w.entities, e)
		w.index[e.ID] = e
	}
}

// AddPlayer spawns a champion for team and appends it to the team roster.
func (w *World) AddPlayer(team Team, champion int16) (EntityID, error) {
	def, ok := w.champions[champion]
	if !ok {
		return NoEntity, fmt.Errorf("%w: %d", ErrUnknownChampion, champion)
	}
	i, ok := team.Index()
	if !ok {
		return NoEntity, fmt.Errorf("%w: %d", ErrNoSpawn, team)
	}
	spawn := w.m.Spawns[i]
	id := w.Spawn(w.newActor(KindChampion, team, def, spawn, w.Time()))
	w.players[i] = append(w.players[i], id)
	w.Flush()
	return id, nil
}

func (w *World) newActor(kind EntityKind, team Team, def ActorDef, pos mgl64.Vec2, now float64) *Entity {
	return &Entity{
		Team:   team,
		Kind:   kind,
		TypeID: def.TypeID,
		Pos:    pos,
		Actor: &Actor{
			Def:    def,
			Path:   StationaryPath(now, pos),
			Health: def.MaxHealth,
			Spawn:  pos,
		},
	}
}

// QueueCommand replaces the pending command of actor id. It must be called
// from the goroutine that steps the world.
func (w *World) QueueCommand(id EntityID, cmd Command) error {
	e := w.Get(id)
	if e == nil || e.Actor == nil {
		return fmt.Errorf("%w: %d", ErrNotActor, id)
	}
	e.Actor.queued = &cmd
	return nil
}
