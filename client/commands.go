package client

import (
	"arenagame/protocol"
	"arenagame/world"
)

// CommandSender holds the latest local command. Datagrams are unreliable,
// so the command rides along in every outbound datagram until the server
// reports its sequence as consumed. Only the newest command matters: a new
// one replaces any command still waiting.
type CommandSender struct {
	seq     uint16
	pending *protocol.DatagramCommand
}

func NewCommandSender() *CommandSender {
	return &CommandSender{}
}

func (c *CommandSender) Move(x, y float32) uint16 {
	return c.issue(protocol.DatagramCommand{Kind: protocol.CommandMove, X: x, Y: y})
}

func (c *CommandSender) Attack(target world.EntityID) uint16 {
	return c.issue(protocol.DatagramCommand{Kind: protocol.CommandAttack, TargetID: uint32(target)})
}

func (c *CommandSender) issue(cmd protocol.DatagramCommand) uint16 {
	c.seq = protocol.NextSeq(c.seq)
	// The server reports 0 before it consumed anything.
	if c.seq == 0 {
		c.seq = protocol.NextSeq(c.seq)
	}
	cmd.Seq = c.seq
	c.pending = &cmd
	return c.seq
}

// Ack applies the server's last consumed sequence.
func (c *CommandSender) Ack(lastSeq uint16) {
	if c.pending == nil {
		return
	}
	if protocol.IsStale(c.pending.Seq, lastSeq) {
		c.pending = nil
	}
}

// Pending reports whether a command still waits for acknowledgement.
func (c *CommandSender) Pending() bool {
	return c.pending != nil
}

// Current is the command to put in the next datagram.
func (c *CommandSender) Current() protocol.DatagramCommand {
	if c.pending == nil {
		return protocol.DatagramCommand{Seq: c.seq, Kind: protocol.CommandNone}
	}
	return *c.pending
}

// Datagram builds the next outbound datagram.
func (c *CommandSender) Datagram(token uint16, acked world.Tick) protocol.ClientDatagram {
	return protocol.ClientDatagram{
		Token:     token,
		AckedTick: int64(acked),
		Command:   c.Current(),
	}
}
