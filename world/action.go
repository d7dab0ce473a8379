package world

import (
	"fmt"
	"math"
)

type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionAttack
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionAttack:
		return "attack"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// Action is a timed activity occupying an actor. The set of actions is
// closed; update sites switch over the concrete types.
type Action interface {
	Kind() ActionKind
	StartTime() float64
	EndTime() float64
	Ended(t float64) bool

	AllowMovement(t float64) bool
	// AllowMovementSince is the earliest time the movement guard has held
	// continuously up to t, or +Inf when it does not hold at t.
	AllowMovementSince(t float64) float64
	AllowCancel(t float64) bool
	AllowCancelSince(t float64) float64

	isAction()
}

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAiming
	PhasePreHit
	PhasePostHit
	PhaseReloading
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAiming:
		return "aiming"
	case PhasePreHit:
		return "prehit"
	case PhasePostHit:
		return "posthit"
	case PhaseReloading:
		return "reloading"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// AttackAction is a ranged attack. Start <= PreHit <= PostHit <= Reload <= End.
// The projectile leaves at PostHit; the action may be cancelled while aiming
// and while reloading.
type AttackAction struct {
	Start    float64
	PreHit   float64
	PostHit  float64
	Reload   float64
	End      float64
	TargetID EntityID
	Fired    bool
}

// NewAttackAction starts an attack at tick start. Phase offsets are rounded
// to whole ticks and every boundary is the exact time of its tick, so the
// guards flip on the same step the simulation reaches them.
func NewAttackAction(start Tick, tickDelta float64, def ActorDef, target EntityID) *AttackAction {
	at := func(offset float64) float64 {
		return float64(start+ticksIn(offset, tickDelta)) * tickDelta
	}
	return &AttackAction{
		Start:    at(0),
		PreHit:   at(def.PreHit),
		PostHit:  at(def.PostHit),
		Reload:   at(def.Reload),
		End:      at(def.AttackTime),
		TargetID: target,
	}
}

// ticksIn is the whole number of ticks closest to d seconds.
func ticksIn(d, tickDelta float64) Tick {
	if tickDelta <= 0 {
		return 0
	}
	return Tick(math.Round(d / tickDelta))
}

var _ Action = (*AttackAction)(nil)

func (a *AttackAction) isAction() {}

func (a *AttackAction) Kind() ActionKind     { return ActionAttack }
func (a *AttackAction) StartTime() float64   { return a.Start }
func (a *AttackAction) EndTime() float64     { return a.End }
func (a *AttackAction) Ended(t float64) bool { return t >= a.End }

func (a *AttackAction) Phase(t float64) Phase {
	switch {
	case t < a.Start || t >= a.End:
		return PhaseIdle
	case t < a.PreHit:
		return PhaseAiming
	case t < a.PostHit:
		return PhasePreHit
	case t < a.Reload:
		return PhasePostHit
	default:
		return PhaseReloading
	}
}

func (a *AttackAction) active(t float64) bool {
	return t >= a.Start && t < a.End
}

func (a *AttackAction) AllowMovement(t float64) bool {
	return !a.active(t)
}

func (a *AttackAction) AllowMovementSince(t float64) float64 {
	switch {
	case t < a.Start:
		return math.Inf(-1)
	case t >= a.End:
		return a.End
	default:
		return math.Inf(1)
	}
}

func (a *AttackAction) AllowCancel(t float64) bool {
	return t < a.PreHit || t >= a.Reload
}

func (a *AttackAction) AllowCancelSince(t float64) float64 {
	switch {
	case t < a.PreHit:
		return a.Start
	case t >= a.Reload:
		return a.Reload
	default:
		return math.Inf(1)
	}
}

// ActionState is the snapshot form of an action.
type ActionState struct {
	Kind     ActionKind
	Start    float32
	PreHit   float32
	PostHit  float32
	Reload   float32
	End      float32
	TargetID EntityID
	Fired    bool
}

func actionState(a Action) ActionState {
	switch a := a.(type) {
	case nil:
		return ActionState{}
	case *AttackAction:
		return ActionState{
			Kind:     ActionAttack,
			Start:    float32(a.Start),
			PreHit:   float32(a.PreHit),
			PostHit:  float32(a.PostHit),
			Reload:   float32(a.Reload),
			End:      float32(a.End),
			TargetID: a.TargetID,
			Fired:    a.Fired,
		}
	default:
		panic(fmt.Sprintf("unknown action %T", a))
	}
}

// Action rebuilds the live action, or nil for ActionNone.
func (s ActionState) Action() Action {
	switch s.Kind {
	case ActionAttack:
		return &AttackAction{
			Start:    float64(s.Start),
			PreHit:   float64(s.PreHit),
			PostHit:  float64(s.PostHit),
			Reload:   float64(s.Reload),
			End:      float64(s.End),
			TargetID: s.TargetID,
			Fired:    s.Fired,
		}
	default:
		return nil
	}
}
