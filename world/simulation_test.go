package world

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const testMapText = `20
4
1..................2
....................
....................
.........#..........
`

func testDef() ActorDef {
	return ActorDef{
		TypeID:          1,
		Name:            "test",
		MoveSpeed:       1,
		AttackRange:     5,
		AttackTime:      1,
		PreHit:          0.35,
		PostHit:         0.55,
		Reload:          0.85,
		ProjectileSpeed: 10,
		Damage:          10,
		MaxHealth:       100,
	}
}

func testWorld(t *testing.T) *World {
	t.Helper()
	m, err := LoadMap("test", testMapText)
	if err != nil {
		t.Fatal(err)
	}
	rules := DefaultRules()
	rules.WaveSize = 0
	return New(rules, m, Champions{1: testDef()})
}

func place(w *World, team Team, x, y float64) EntityID {
	id := w.Spawn(w.newActor(KindChampion, team, testDef(), Vec(x, y), 0))
	w.Flush()
	return id
}

func stepTo(w *World, tick Tick) {
	for w.Tick() < tick {
		w.Step()
	}
}

func near(a, b mgl64.Vec2) bool {
	return Distance(a, b) < 1e-6
}

func projectilesFrom(w *World, source EntityID) []EntityID {
	var ids []EntityID
	w.ForEach(func(e *Entity) {
		if e.Kind == KindProjectile && e.Projectile.SourceID == source {
			ids = append(ids, e.ID)
		}
	})
	return ids
}

func TestMoveFollowsStraightPath(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	cmd := MoveCommand(1, 10, 0)
	cmd.QueuedAt = w.NextTime()
	if err := w.QueueCommand(a, cmd); err != nil {
		t.Fatal(err)
	}

	stepTo(w, 100)
	if got := w.Get(a).Pos; !near(got, Vec(5, 0)) {
		t.Fatalf("position at t=5 = %v, want (5, 0)", got)
	}
	stepTo(w, 200)
	if got := w.Get(a).Pos; !near(got, Vec(10, 0)) {
		t.Fatalf("position at t=10 = %v, want (10, 0)", got)
	}
	if _, ok := w.Get(a).Actor.Queued(); ok {
		t.Fatalf("accepted command should be consumed")
	}
}

func TestAttackFiresOnce(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	b := place(w, TeamRed, 3, 0)
	cmd := AttackCommand(1, b)
	cmd.QueuedAt = w.NextTime()
	w.QueueCommand(a, cmd)

	stepTo(w, 10)
	if got := projectilesFrom(w, a); len(got) != 0 {
		t.Fatalf("projectiles before posthit = %v", got)
	}
	attack, ok := w.Get(a).Actor.Action.(*AttackAction)
	if !ok {
		t.Fatalf("action = %T, want attack", w.Get(a).Actor.Action)
	}
	if attack.Start != 0 || attack.TargetID != b {
		t.Fatalf("attack = %+v", attack)
	}

	seen := map[EntityID]bool{}
	for w.Tick() < 19 {
		w.Step()
		for _, id := range projectilesFrom(w, a) {
			seen[id] = true
		}
		if w.Tick() == 11 && len(seen) != 1 {
			t.Fatalf("projectiles at t=0.55 = %d, want 1", len(seen))
		}
	}
	if len(seen) != 1 {
		t.Fatalf("projectiles spawned = %d, want 1", len(seen))
	}
	if !attack.Fired {
		t.Fatalf("attack should be latched as fired")
	}
	if got := w.Get(b).Actor.Health; got != 90 {
		t.Fatalf("target health = %d, want 90", got)
	}
}

func TestAttackFiresOnTickFromAnyStart(t *testing.T) {
	for _, start := range []Tick{1, 7, 13, 29, 101} {
		w := testWorld(t)
		a := place(w, TeamBlue, 0, 0)
		b := place(w, TeamRed, 3, 0)
		stepTo(w, start-1)
		cmd := AttackCommand(1, b)
		cmd.QueuedAt = w.NextTime()
		w.QueueCommand(a, cmd)

		fired := NilTick
		for w.Tick() < start+20 && fired == NilTick {
			w.Step()
			if len(projectilesFrom(w, a)) > 0 {
				fired = w.Tick()
			}
		}
		if want := start + 11; fired != want {
			t.Fatalf("attack started at tick %d fired at tick %d, want %d", start, fired, want)
		}
	}
}

func TestMoveWaitsForCancelWindow(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	b := place(w, TeamRed, 3, 0)
	attack := AttackCommand(1, b)
	attack.QueuedAt = w.NextTime()
	w.QueueCommand(a, attack)
	stepTo(w, 7)

	move := MoveCommand(2, 0, 2)
	move.QueuedAt = w.NextTime()
	w.QueueCommand(a, move)
	stepTo(w, 12)
	actor := w.Get(a).Actor
	if _, ok := actor.Queued(); !ok {
		t.Fatalf("move during prehit should stay queued")
	}
	if actor.Action == nil {
		t.Fatalf("attack should not be cancelled during prehit")
	}

	stepTo(w, 18)
	if _, ok := actor.Queued(); ok {
		t.Fatalf("move should be accepted once reloading")
	}
	if actor.Action != nil {
		t.Fatalf("accepted move should cancel the attack")
	}
	if actor.Path.Start < 0.85-1e-9 || actor.Path.Start > w.Time() {
		t.Fatalf("path start = %v, want within [0.85, %v]", actor.Path.Start, w.Time())
	}
	if actor.Path.Destination() != Vec(0, 2) {
		t.Fatalf("destination = %v", actor.Path.Destination())
	}
	if actor.TargetID != NoEntity {
		t.Fatalf("move should clear the target")
	}
}

func TestStaleCommandDropped(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	cmd := MoveCommand(1, 5, 0)
	cmd.QueuedAt = w.NextTime() - w.Rules().MaxCommandAge - 1
	w.QueueCommand(a, cmd)
	w.Step()

	actor := w.Get(a).Actor
	if _, ok := actor.Queued(); ok {
		t.Fatalf("stale command should be dropped")
	}
	if actor.Path.Destination() != Vec(0, 0) {
		t.Fatalf("stale command moved the actor to %v", actor.Path.Destination())
	}
}

func TestInvalidCommandsDropped(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	ally := place(w, TeamBlue, 1, 0)

	for _, cmd := range []Command{
		AttackCommand(1, ally),
		AttackCommand(2, 999),
		AttackCommand(3, a),
		MoveCommand(4, 9.5, 3.5),
	} {
		cmd.QueuedAt = w.NextTime()
		w.QueueCommand(a, cmd)
		w.Step()
		actor := w.Get(a).Actor
		if _, ok := actor.Queued(); ok {
			t.Fatalf("%v command should be dropped", cmd.Kind)
		}
		if actor.TargetID != NoEntity || actor.Action != nil {
			t.Fatalf("%v command changed the actor: target %d action %v", cmd.Kind, actor.TargetID, actor.Action)
		}
	}
}

func TestTargetRemovedCancelsAttack(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	b := place(w, TeamRed, 3, 0)
	cmd := AttackCommand(1, b)
	cmd.QueuedAt = w.NextTime()
	w.QueueCommand(a, cmd)
	stepTo(w, 11)
	projectiles := projectilesFrom(w, a)
	if len(projectiles) != 1 {
		t.Fatalf("projectiles = %v", projectiles)
	}

	w.Remove(b)
	w.Step()
	actor := w.Get(a).Actor
	if actor.Action != nil || actor.TargetID != NoEntity {
		t.Fatalf("attack should stop when the target is gone")
	}
	if w.Get(projectiles[0]) != nil {
		t.Fatalf("projectile without a target should be removed")
	}
}

func TestPursuitClosesDistance(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	b := place(w, TeamRed, 12, 0)
	cmd := AttackCommand(1, b)
	cmd.QueuedAt = w.NextTime()
	w.QueueCommand(a, cmd)

	w.Step()
	if got := w.Get(a).Actor.Path.Destination(); got != Vec(12, 0) {
		t.Fatalf("pursuit path ends at %v, want target", got)
	}
	stepTo(w, 150)
	if d := Distance(w.Get(a).Pos, w.Get(b).Pos); d > testDef().AttackRange+1e-9 {
		t.Fatalf("distance after pursuit = %v", d)
	}
	if w.Get(a).Actor.Action == nil && len(projectilesFrom(w, a)) == 0 && w.Get(b).Actor.Health == 100 {
		t.Fatalf("attacker in range never attacked")
	}
}

func TestChampionRespawns(t *testing.T) {
	w := testWorld(t)
	a := place(w, TeamBlue, 0, 0)
	b := place(w, TeamRed, 3, 0)
	w.Get(b).Actor.Health = 5
	w.Get(b).Actor.Spawn = Vec(19, 3)
	cmd := AttackCommand(1, b)
	cmd.QueuedAt = w.NextTime()
	w.QueueCommand(a, cmd)
	stepTo(w, 19)

	target := w.Get(b)
	if target == nil {
		t.Fatalf("champion should respawn, not be removed")
	}
	if target.Actor.Health != testDef().MaxHealth || target.Pos != Vec(19, 3) {
		t.Fatalf("respawned champion = health %d at %v", target.Actor.Health, target.Pos)
	}
}

func TestStagedAddRemove(t *testing.T) {
	w := testWorld(t)
	id := w.Spawn(w.newActor(KindMinion, TeamBlue, testDef(), Vec(1, 1), 0))
	if w.Get(id) != nil || w.Len() != 0 {
		t.Fatalf("staged entity visible before flush")
	}
	w.Flush()
	if w.Get(id) == nil || w.Len() != 1 {
		t.Fatalf("entity missing after flush")
	}
	w.Remove(id)
	if w.Get(id) != nil {
		t.Fatalf("entity staged for removal still visible")
	}
	if w.Len() != 1 {
		t.Fatalf("table changed before flush")
	}
	w.Flush()
	if w.Len() != 0 {
		t.Fatalf("entity not removed at flush")
	}
}

func TestEntitiesStayOrdered(t *testing.T) {
	w := testWorld(t)
	for i := 0; i < 5; i++ {
		place(w, TeamBlue, float64(i), 1)
	}
	w.Remove(2)
	w.Remove(4)
	place(w, TeamRed, 10, 1)
	var prev EntityID
	w.ForEach(func(e *Entity) {
		if e.ID <= prev {
			t.Fatalf("ids out of order: %d after %d", e.ID, prev)
		}
		prev = e.ID
	})
	if w.Len() != 4 {
		t.Fatalf("Len = %d, want 4", w.Len())
	}
}

func TestMinionWaves(t *testing.T) {
	w := testWorld(t)
	w.rules.WaveSize = 2
	w.rules.FirstWave = 0
	w.rules.WaveInterval = 5
	w.nextWave = 0
	w.rules.Minion = testDef()

	w.Step()
	var counts [2]int
	w.ForEach(func(e *Entity) {
		if e.Kind == KindMinion {
			i, _ := e.Team.Index()
			counts[i]++
			goal, _ := w.Map().Spawn(e.Team.Enemy())
			if e.Actor.Goal != goal {
				t.Fatalf("minion goal = %v, want enemy spawn %v", e.Actor.Goal, goal)
			}
		}
	})
	if counts != [2]int{2, 2} {
		t.Fatalf("minions per team = %v, want [2 2]", counts)
	}

	stepTo(w, 100)
	if w.nextWave != 10 {
		t.Fatalf("next wave at %v, want 10", w.nextWave)
	}
}

func TestAddPlayer(t *testing.T) {
	w := testWorld(t)
	id, err := w.AddPlayer(TeamRed, 1)
	if err != nil {
		t.Fatal(err)
	}
	if players := w.Players(); len(players[1]) != 1 || players[1][0] != id {
		t.Fatalf("players = %v", players)
	}
	spawn, _ := w.Map().Spawn(TeamRed)
	if w.Get(id).Pos != spawn {
		t.Fatalf("champion at %v, want spawn %v", w.Get(id).Pos, spawn)
	}
	if _, err := w.AddPlayer(TeamRed, 42); err == nil {
		t.Fatalf("unknown champion accepted")
	}
	if _, err := w.AddPlayer(TeamNeutral, 1); err == nil {
		t.Fatalf("neutral team accepted")
	}
}

func TestTimeline(t *testing.T) {
	w := testWorld(t)
	if w.Tick() != NilTick || w.NextTime() != 0 {
		t.Fatalf("fresh world at tick %d next %v", w.Tick(), w.NextTime())
	}
	w.Step()
	if w.Tick() != 0 || math.Abs(w.NextTime()-0.05) > 1e-12 {
		t.Fatalf("after one step tick %d next %v", w.Tick(), w.NextTime())
	}
}
