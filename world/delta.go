package world

import (
	"errors"
	"fmt"
	"math"

	"arenagame/bitstream"
)

const (
	maxEntities   = 1 << 16
	maxPathPoints = 1 << 10
	maxRoster     = 64
)

var (
	ErrKindChanged = errors.New("entity changed kind")
	ErrBadDelta    = errors.New("malformed snapshot delta")
)

// EncodeSnapshot writes s as a diff against base, or in full when base is
// nil. Entities missing from s but present in base are removed on decode.
// The baseline must be the snapshot the receiver will decode against.
func EncodeSnapshot(w *bitstream.Writer, s, base *Snapshot) error {
	w.WriteFormat(bitstream.TickFormat, int64(s.Tick))
	for i := range s.Players {
		w.WriteFormat(bitstream.Uint4to32, int64(len(s.Players[i])))
		for _, id := range s.Players[i] {
			writeID(w, id)
		}
	}
	w.WriteFormat(bitstream.Uint4to32, int64(len(s.Entities)))

	var prev EntityID
	b := 0
	for _, e := range s.Entities {
		if e.ID <= prev {
			return fmt.Errorf("%w: ids not ascending at %d", ErrBadDelta, e.ID)
		}
		w.WriteFormat(bitstream.EntityIDFormat, int64(e.ID-prev))
		prev = e.ID

		var old *EntityState
		if base != nil {
			for b < len(base.Entities) && base.Entities[b].ID < e.ID {
				b++
			}
			if b < len(base.Entities) && base.Entities[b].ID == e.ID {
				old = &base.Entities[b]
			}
		}
		if old == nil {
			writeFull(w, e)
			continue
		}
		if old.Kind != e.Kind {
			return fmt.Errorf("%w: %d", ErrKindChanged, e.ID)
		}
		if e.Equal(*old) {
			w.WriteBool(false)
			continue
		}
		w.WriteBool(true)
		writeChanged(w, e, *old)
	}
	return w.Err()
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot against the same
// base.
func DecodeSnapshot(r *bitstream.Reader, base *Snapshot) (*Snapshot, error) {
	d := decoder{r: r}
	s := &Snapshot{Tick: Tick(d.format(bitstream.TickFormat))}
	for i := range s.Players {
		n := d.count(maxRoster)
		for j := 0; j < n && d.err == nil; j++ {
			s.Players[i] = append(s.Players[i], d.id())
		}
	}
	n := d.count(maxEntities)
	if d.err != nil {
		return nil, d.err
	}
	s.Entities = make([]EntityState, 0, n)

	var prev EntityID
	b := 0
	for i := 0; i < n && d.err == nil; i++ {
		delta := d.format(bitstream.EntityIDFormat)
		if d.err == nil && (delta <= 0 || int64(prev)+delta > math.MaxUint32) {
			d.fail("non-ascending entity id after %d", prev)
		}
		if d.err != nil {
			break
		}
		id := prev + EntityID(delta)
		prev = id

		var old *EntityState
		if base != nil {
			for b < len(base.Entities) && base.Entities[b].ID < id {
				b++
			}
			if b < len(base.Entities) && base.Entities[b].ID == id {
				old = &base.Entities[b]
			}
		}
		var e EntityState
		switch {
		case old == nil:
			e = d.full(id)
		case d.bool():
			e = d.changed(*old)
		default:
			e = *old
		}
		s.Entities = append(s.Entities, e)
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func writeID(w *bitstream.Writer, id EntityID) {
	w.WriteFormat(bitstream.EntityIDFormat, int64(id))
}

func writeFull(w *bitstream.Writer, e EntityState) {
	w.WriteInt(uint64(e.Kind), 2)
	w.WriteInt(uint64(e.Team), 2)
	w.WriteFormat(bitstream.Uint4to32, int64(e.TypeID))
	w.WriteFloat32(e.X)
	w.WriteFloat32(e.Y)
	switch e.Kind {
	case KindChampion, KindMinion:
		a := e.Actor
		writePath(w, a.Path)
		writeID(w, a.TargetID)
		w.WriteFormat(bitstream.SmallSigned, int64(a.Health))
		w.WriteFormat(bitstream.SmallSigned, int64(a.MaxHealth))
		writeAction(w, a.Action)
	case KindProjectile:
		writeProjectile(w, *e.Projectile)
	}
}

// writeChanged writes one flag per field group followed by the groups that
// differ from old.
func writeChanged(w *bitstream.Writer, e, old EntityState) {
	if w.WriteBool(e.Team != old.Team || e.TypeID != old.TypeID) {
		w.WriteInt(uint64(e.Team), 2)
		w.WriteFormat(bitstream.Uint4to32, int64(e.TypeID))
	}
	if w.WriteBool(e.X != old.X || e.Y != old.Y) {
		w.WriteFloat32(e.X)
		w.WriteFloat32(e.Y)
	}
	switch e.Kind {
	case KindChampion, KindMinion:
		a, o := e.Actor, old.Actor
		if w.WriteBool(!a.Path.Equal(o.Path)) {
			writePath(w, a.Path)
		}
		if w.WriteBool(a.TargetID != o.TargetID) {
			writeID(w, a.TargetID)
		}
		if w.WriteBool(a.Health != o.Health || a.MaxHealth != o.MaxHealth) {
			w.WriteFormat(bitstream.SmallSigned, int64(a.Health))
			w.WriteFormat(bitstream.SmallSigned, int64(a.MaxHealth))
		}
		if w.WriteBool(a.Action != o.Action) {
			writeAction(w, a.Action)
		}
	case KindProjectile:
		if w.WriteBool(*e.Projectile != *old.Projectile) {
			writeProjectile(w, *e.Projectile)
		}
	}
}

func writePath(w *bitstream.Writer, p PathState) {
	w.WriteFloat32(p.Start)
	w.WriteFloat32(p.Speed)
	w.WriteFormat(bitstream.Uint4to32, int64(len(p.Points)))
	for _, pt := range p.Points {
		w.WriteFloat32(pt.X)
		w.WriteFloat32(pt.Y)
	}
}

func writeAction(w *bitstream.Writer, a ActionState) {
	w.WriteInt(uint64(a.Kind), 2)
	switch a.Kind {
	case ActionNone:
	case ActionAttack:
		w.WriteFloat32(a.Start)
		w.WriteFloat32(a.PreHit)
		w.WriteFloat32(a.PostHit)
		w.WriteFloat32(a.Reload)
		w.WriteFloat32(a.End)
		writeID(w, a.TargetID)
		w.WriteBool(a.Fired)
	}
}

func writeProjectile(w *bitstream.Writer, p ProjectileState) {
	writeID(w, p.SourceID)
	writeID(w, p.TargetID)
	w.WriteFloat32(p.Speed)
}

// decoder keeps the first error and turns later reads into no-ops.
type decoder struct {
	r   *bitstream.Reader
	err error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]interface{}{ErrBadDelta}, args...)...)
	}
}

func (d *decoder) format(f bitstream.IntFormat) int64 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadFormat(f)
	d.err = err
	return v
}

func (d *decoder) bits(n uint) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadInt(n)
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, err := d.r.ReadBool()
	d.err = err
	return v
}

func (d *decoder) float() float32 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadFloat32()
	d.err = err
	return v
}

func (d *decoder) id() EntityID {
	return EntityID(d.format(bitstream.EntityIDFormat))
}

func (d *decoder) count(max int) int {
	n := d.format(bitstream.Uint4to32)
	if d.err == nil && n > int64(max) {
		d.fail("count %d exceeds %d", n, max)
	}
	if d.err != nil {
		return 0
	}
	return int(n)
}

func (d *decoder) full(id EntityID) EntityState {
	e := EntityState{ID: id, Kind: EntityKind(d.bits(2))}
	e.Team = Team(d.bits(2))
	e.TypeID = uint16(d.format(bitstream.Uint4to32))
	e.X = d.float()
	e.Y = d.float()
	switch e.Kind {
	case KindChampion, KindMinion:
		a := &ActorState{}
		a.Path = d.path()
		a.TargetID = d.id()
		a.Health = int32(d.format(bitstream.SmallSigned))
		a.MaxHealth = int32(d.format(bitstream.SmallSigned))
		a.Action = d.action()
		e.Actor = a
	case KindProjectile:
		p := d.projectile()
		e.Projectile = &p
	default:
		if d.err == nil {
			d.fail("entity %d has kind %d", id, e.Kind)
		}
	}
	return e
}

func (d *decoder) changed(old EntityState) EntityState {
	e := old
	if d.bool() {
		e.Team = Team(d.bits(2))
		e.TypeID = uint16(d.format(bitstream.Uint4to32))
	}
	if d.bool() {
		e.X = d.float()
		e.Y = d.float()
	}
	switch e.Kind {
	case KindChampion, KindMinion:
		a := *old.Actor
		if d.bool() {
			a.Path = d.path()
		}
		if d.bool() {
			a.TargetID = d.id()
		}
		if d.bool() {
			a.Health = int32(d.format(bitstream.SmallSigned))
			a.MaxHealth = int32(d.format(bitstream.SmallSigned))
		}
		if d.bool() {
			a.Action = d.action()
		}
		e.Actor = &a
	case KindProjectile:
		p := *old.Projectile
		if d.bool() {
			p = d.projectile()
		}
		e.Projectile = &p
	}
	return e
}

func (d *decoder) path() PathState {
	p := PathState{Start: d.float(), Speed: d.float()}
	n := d.count(maxPathPoints)
	if n > 0 {
		p.Points = make([]Point, n)
		for i := range p.Points {
			p.Points[i] = Point{X: d.float(), Y: d.float()}
		}
	}
	return p
}

func (d *decoder) action() ActionState {
	a := ActionState{Kind: ActionKind(d.bits(2))}
	switch a.Kind {
	case ActionNone:
	case ActionAttack:
		a.Start = d.float()
		a.PreHit = d.float()
		a.PostHit = d.float()
		a.Reload = d.float()
		a.End = d.float()
		a.TargetID = d.id()
		a.Fired = d.bool()
	default:
		d.fail("action kind %d", a.Kind)
	}
	return a
}

func (d *decoder) projectile() ProjectileState {
	return ProjectileState{SourceID: d.id(), TargetID: d.id(), Speed: d.float()}
}
