package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

type EntityID uint32

// NoEntity is never assigned.
const NoEntity EntityID = 0

type Team uint8

const (
	TeamNeutral Team = iota
	TeamBlue
	TeamRed
)

// Index maps a playing team to 0 or 1.
func (t Team) Index() (int, bool) {
	switch t {
	case TeamBlue:
		return 0, true
	case TeamRed:
		return 1, true
	default:
		return 0, false
	}
}

func (t Team) Enemy() Team {
	switch t {
	case TeamBlue:
		return TeamRed
	case TeamRed:
		return TeamBlue
	default:
		return TeamNeutral
	}
}

func TeamFromIndex(i int) Team {
	return Team(i + 1)
}

type EntityKind uint8

const (
	KindChampion EntityKind = iota + 1
	KindMinion
	KindProjectile
)

func (k EntityKind) String() string {
	switch k {
	case KindChampion:
		return "champion"
	case KindMinion:
		return "minion"
	case KindProjectile:
		return "projectile"
	default:
		return fmt.Sprintf("EntityKind(%d)", uint8(k))
	}
}

func (k EntityKind) Valid() bool {
	return k >= KindChampion && k <= KindProjectile
}

// Entity is a live simulation object. Exactly one of Actor and Projectile is
// set, matching Kind.
type Entity struct {
	ID     EntityID
	Team   Team
	Kind   EntityKind
	TypeID uint16
	Pos    mgl64.Vec2

	Actor      *Actor
	Projectile *Projectile
}

// Actor is the body of champions and minions.
type Actor struct {
	Def      ActorDef
	Path     Path
	Action   Action
	TargetID EntityID
	Health   int32
	Spawn    mgl64.Vec2
	// Goal is where an idle minion walks.
	Goal mgl64.Vec2

	queued        *Command
	attackReadyAt float64
	nextRepath    float64
	nextThink     float64
}

// Queued returns the pending command, if any.
func (a *Actor) Queued() (Command, bool) {
	if a.queued == nil {
		return Command{}, false
	}
	return *a.queued, true
}

type Projectile struct {
	SourceID EntityID
	TargetID EntityID
	Speed    float64
	Damage   int32
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s#%d(team %d)", e.Kind, e.ID, e.Team)
}
