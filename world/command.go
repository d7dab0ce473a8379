package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

type CommandKind uint8

const (
	CommandNone CommandKind = iota
	CommandMove
	CommandAttack
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CommandMove:
		return "move"
	case CommandAttack:
		return "attack"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Command is a player order. Only the latest command per actor is kept; it
// is retried each tick until accepted, rejected or older than MaxCommandAge.
type Command struct {
	Seq      uint16
	Kind     CommandKind
	Target   mgl64.Vec2
	TargetID EntityID
	QueuedAt float64
}

func MoveCommand(seq uint16, x, y float64) Command {
	return Command{Seq: seq, Kind: CommandMove, Target: Vec(x, y)}
}

func AttackCommand(seq uint16, target EntityID) Command {
	return Command{Seq: seq, Kind: CommandAttack, TargetID: target}
}
