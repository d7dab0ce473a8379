package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Path is a polyline walked at constant speed from Start. It is never
// mutated once built, so snapshots may share its points.
type Path struct {
	Start  float64
	Speed  float64
	Points []mgl64.Vec2
}

func NewPath(start, speed float64, points ...mgl64.Vec2) Path {
	p := make([]mgl64.Vec2, len(points))
	copy(p, points)
	return Path{Start: start, Speed: speed, Points: p}
}

// StationaryPath holds pos from start onward.
func StationaryPath(start float64, pos mgl64.Vec2) Path {
	return Path{Start: start, Points: []mgl64.Vec2{pos}}
}

func (p Path) Length() float64 {
	total := 0.0
	for i := 1; i < len(p.Points); i++ {
		total += Distance(p.Points[i-1], p.Points[i])
	}
	return total
}

// End is the time the last point is reached.
func (p Path) End() float64 {
	if len(p.Points) < 2 {
		return p.Start
	}
	if p.Speed <= 0 {
		return math.Inf(1)
	}
	return p.Start + p.Length()/p.Speed
}

func (p Path) Destination() mgl64.Vec2 {
	if len(p.Points) == 0 {
		return mgl64.Vec2{}
	}
	return p.Points[len(p.Points)-1]
}

func (p Path) Done(t float64) bool {
	return t >= p.End()
}

// Position evaluates the path at t. Times before Start clamp to the first
// point, times past the end clamp to the last.
func (p Path) Position(t float64) mgl64.Vec2 {
	if len(p.Points) == 0 {
		return mgl64.Vec2{}
	}
	if t <= p.Start || p.Speed <= 0 || len(p.Points) == 1 {
		return p.Points[0]
	}
	remaining := (t - p.Start) * p.Speed
	for i := 1; i < len(p.Points); i++ {
		seg := Distance(p.Points[i-1], p.Points[i])
		if remaining < seg {
			pos, _ := MoveToward(p.Points[i-1], p.Points[i], remaining)
			return pos
		}
		remaining -= seg
	}
	return p.Points[len(p.Points)-1]
}

func (p Path) state() PathState {
	points := make([]Point, len(p.Points))
	for i, v := range p.Points {
		points[i] = quantize(v)
	}
	return PathState{Start: float32(p.Start), Speed: float32(p.Speed), Points: points}
}

// PathState is the snapshot form of a Path.
type PathState struct {
	Start  float32
	Speed  float32
	Points []Point
}

func (p PathState) Path() Path {
	points := make([]mgl64.Vec2, len(p.Points))
	for i, v := range p.Points {
		points[i] = v.Vec()
	}
	return Path{Start: float64(p.Start), Speed: float64(p.Speed), Points: points}
}

func (p PathState) Equal(o PathState) bool {
	if p.Start != o.Start || p.Speed != o.Speed || len(p.Points) != len(o.Points) {
		return false
	}
	for i := range p.Points {
		if p.Points[i] != o.Points[i] {
			return false
		}
	}
	return true
}
