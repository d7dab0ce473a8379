package world

import (
	"github.com/go-gl/mathgl/mgl64"
)

func Vec(x, y float64) mgl64.Vec2 {
	return mgl64.Vec2{x, y}
}

func Distance(a, b mgl64.Vec2) float64 {
	return b.Sub(a).Len()
}

// MoveToward steps from a toward b by at most dist and reports whether b was
// reached.
func MoveToward(a, b mgl64.Vec2, dist float64) (mgl64.Vec2, bool) {
	d := b.Sub(a)
	length := d.Len()
	if length <= dist || length == 0 {
		return b, true
	}
	return a.Add(d.Mul(dist / length)), false
}

func quantize(v mgl64.Vec2) Point {
	return Point{X: float32(v.X()), Y: float32(v.Y())}
}

// Point is a position as carried in snapshots.
type Point struct {
	X, Y float32
}

func (p Point) Vec() mgl64.Vec2 {
	return mgl64.Vec2{float64(p.X), float64(p.Y)}
}
