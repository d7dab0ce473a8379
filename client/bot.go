package client

import (
	"log"
	"math"

	"arenagame/world"
)

// Bot plays a session without input: it registers, opens a lobby, locks a
// champion and then walks toward the enemy base, attacking whatever comes
// into range.
type Bot struct {
	Username string
	Password string
	Champion int16
	Map      *world.Map
	Range    float64
	LogEvery float64

	retried   bool
	requested bool
	selecting bool
	picked    bool
	locked    bool
	goal      world.Point
	lastMove  float64
	lastLog   float64
}

func NewBot(username string, champion int16, m *world.Map) *Bot {
	return &Bot{
		Username: username,
		Password: username,
		Champion: champion,
		Map:      m,
		Range:    6,
		LogEvery: 1,
	}
}

// Start sends the registration. Call it before the first frame.
func (b *Bot) Start(g *Game) {
	g.Register(b.Username, b.Password)
}

// Frame is the per-frame hook for Game.Run.
func (b *Bot) Frame(g *Game) {
	switch {
	case g.Token() == 0:
		if g.LoginError() != "" && !b.retried {
			b.retried = true
			g.Login(b.Username, b.Password)
		}
	case g.GameStart() == nil:
		b.lobby(g)
	default:
		b.play(g)
	}
}

func (b *Bot) lobby(g *Game) {
	l := g.Lobby()
	switch {
	case l == nil:
		if !b.requested {
			b.requested = true
			g.CreateLobby(b.Username + "'s game")
		}
	case !l.Selecting:
		if !b.selecting {
			b.selecting = true
			g.StartSelect()
		}
	default:
		for _, m := range l.Members {
			if m.Username != g.Username || m.Locked || b.locked {
				continue
			}
			switch {
			case m.ChampionID == b.Champion:
				b.locked = true
				g.LockChampion()
			case !b.picked:
				b.picked = true
				g.SelectChampion(b.Champion)
			}
		}
	}
}

func (b *Bot) play(g *Game) {
	self, ok := g.Self()
	if !ok {
		return
	}
	r := g.Reconciler()
	me, ok := r.Get(self)
	if !ok {
		return
	}
	now := r.LocalTime()
	if now-b.lastLog >= b.LogEvery {
		b.lastLog = now
		log.Printf("%s at (%.2f, %.2f) health %d/%d", b.Username, me.Pos.X(), me.Pos.Y(), me.Health, me.MaxHealth)
	}
	if g.Commands().Pending() || now-b.lastMove < 0.5 {
		return
	}
	b.lastMove = now

	if enemy, ok := b.nearestEnemy(r, me); ok {
		if me.TargetID != enemy {
			g.Attack(enemy)
		}
		return
	}
	if spawn, ok := b.Map.Spawn(me.Team.Enemy()); ok {
		goal := world.Point{X: float32(spawn.X()), Y: float32(spawn.Y())}
		if goal != b.goal || me.TargetID != world.NoEntity {
			b.goal = goal
			g.Move(goal.X, goal.Y)
		}
	}
}

func (b *Bot) nearestEnemy(r *Reconciler, me View) (world.EntityID, bool) {
	best, bestDist := world.NoEntity, math.Inf(1)
	for _, v := range r.Views() {
		if v.Kind == world.KindProjectile || v.Team == me.Team || v.Team == world.TeamNeutral {
			continue
		}
		if d := world.Distance(me.Pos, v.Pos); d <= b.Range && d < bestDist {
			best, bestDist = v.ID, d
		}
	}
	return best, best != world.NoEntity
}
