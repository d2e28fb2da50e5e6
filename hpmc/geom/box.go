package geom

import "math"

// Box is an orthorhombic simulation box centered at the origin, spanning
// [-L/2, L/2) along each axis. Axes are independently periodic. Dim is 2
// or 3; in 2D the Z extent is ignored for minimum-image purposes.
type Box struct {
	L        Vec3
	Periodic [3]bool
	Dim      int
}

// NewBox returns a fully periodic box with edge lengths l and the given
// dimensionality (2 or 3).
func NewBox(l Vec3, dim int) Box {
	return Box{L: l, Periodic: [3]bool{true, true, true}, Dim: dim}
}

// Lo returns the lower corner of the box.
func (b Box) Lo() Vec3 { return Vec3{-b.L.X / 2, -b.L.Y / 2, -b.L.Z / 2} }

// Hi returns the upper corner of the box.
func (b Box) Hi() Vec3 { return Vec3{b.L.X / 2, b.L.Y / 2, b.L.Z / 2} }

func (b Box) Volume() float64 {
	if b.Dim == 2 {
		return b.L.X * b.L.Y
	}
	return b.L.X * b.L.Y * b.L.Z
}

// MinImage returns the minimum-image separation vector equivalent to v
// under the box's periodic directions.
func (b Box) MinImage(v Vec3) Vec3 {
	if b.Periodic[0] {
		v.X -= b.L.X * math.Round(v.X/b.L.X)
	}
	if b.Periodic[1] {
		v.Y -= b.L.Y * math.Round(v.Y/b.L.Y)
	}
	if b.Dim == 3 && b.Periodic[2] {
		v.Z -= b.L.Z * math.Round(v.Z/b.L.Z)
	}
	return v
}

// Wrap maps p back into the primary box along periodic directions.
func (b Box) Wrap(p Vec3) Vec3 {
	if b.Periodic[0] {
		p.X -= b.L.X * math.Floor(p.X/b.L.X+0.5)
	}
	if b.Periodic[1] {
		p.Y -= b.L.Y * math.Floor(p.Y/b.L.Y+0.5)
	}
	if b.Dim == 3 && b.Periodic[2] {
		p.Z -= b.L.Z * math.Floor(p.Z/b.L.Z+0.5)
	}
	return p
}

// NearestPlaneDistance returns, per axis, the distance between opposite box
// faces. For an orthorhombic box this is just the edge length; the minimum
// image convention requires interaction ranges below half of it.
func (b Box) NearestPlaneDistance() Vec3 {
	return b.L
}
