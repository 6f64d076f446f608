package components

import "math"

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float32 { return v.X*o.X + v.Y*o.Y }
func (v Vec2) LenSq() float32 { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Len() float32 { return float32(math.Sqrt(float64(v.LenSq()))) }
func (v Vec2) DistSq(o Vec2) float32 { return v.Sub(o).LenSq() }
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }
func (v Vec2) HasNaN() bool { return v.X != v.X || v.Y != v.Y }

// Normalized returns v scaled to unit length, or the zero vector if v is zero.
func (v Vec2) Normalized() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// FromAngle returns the unit vector pointing at radians.
func FromAngle(radians float32) Vec2 {
	s, c := math.Sincos(float64(radians))
	return Vec2{float32(c), float32(s)}
}

// Angle returns the heading of v in radians.
func (v Vec2) Angle() float32 {
	return float32(math.Atan2(float64(v.Y), float64(v.X)))
}
