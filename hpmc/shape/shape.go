// Package shape provides the closed set of hard-particle shape variants and
// the pairwise overlap predicate consumed by the narrow phase.
//
// The shape family is a tagged variant (Kind + parameter payload) and
// overlap dispatch goes through a (kind x kind) function table, so adding a
// variant means one new Kind, its support function, and optionally a
// specialized table entry.
package shape

import (
	"fmt"
	"math"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
)

// Kind tags the shape family of a Params payload.
type Kind int

const (
	KindSphere Kind = iota
	KindConvexPolyhedron
	KindSpheropolyhedron
	KindEllipsoid
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindConvexPolyhedron:
		return "convex_polyhedron"
	case KindSpheropolyhedron:
		return "spheropolyhedron"
	case KindEllipsoid:
		return "ellipsoid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Params holds the per-type shape definition. Fields are interpreted by
// Kind: Radius for spheres, Verts (+SweepRadius) for polyhedra and
// spheropolyhedra, Axes (semiaxes) for ellipsoids. Params are shared
// read-only between all particles of a type.
type Params struct {
	Kind        Kind
	Radius      float64
	Verts       []geom.Vec3
	SweepRadius float64
	Axes        geom.Vec3
	Ignore      bool // exclude this type from acceptance statistics
}

// Validate reports malformed shape definitions as errors, before any
// simulation work starts.
func (p *Params) Validate() error {
	switch p.Kind {
	case KindSphere:
		if p.Radius <= 0 {
			return fmt.Errorf("sphere: radius must be > 0, got %g", p.Radius)
		}
	case KindConvexPolyhedron, KindSpheropolyhedron:
		if len(p.Verts) == 0 {
			return fmt.Errorf("%v: at least one vertex required", p.Kind)
		}
		if p.Kind == KindSpheropolyhedron && p.SweepRadius < 0 {
			return fmt.Errorf("spheropolyhedron: sweep radius must be >= 0, got %g", p.SweepRadius)
		}
	case KindEllipsoid:
		if p.Axes.X <= 0 || p.Axes.Y <= 0 || p.Axes.Z <= 0 {
			return fmt.Errorf("ellipsoid: semiaxes must be > 0, got %+v", p.Axes)
		}
	default:
		return fmt.Errorf("unknown shape kind %d", int(p.Kind))
	}
	return nil
}

// HasOrientation reports whether moves of this shape include rotations.
// Spheres are rotation-invariant; a polyhedron degenerates to a point or a
// sphere when it has a single vertex.
func (p *Params) HasOrientation() bool {
	switch p.Kind {
	case KindSphere:
		return false
	case KindConvexPolyhedron, KindSpheropolyhedron:
		return len(p.Verts) > 1
	case KindEllipsoid:
		return !(p.Axes.X == p.Axes.Y && p.Axes.Y == p.Axes.Z)
	}
	return false
}

// IgnoreStatistics reports whether this type is excluded from the
// accept/reject counters.
func (p *Params) IgnoreStatistics() bool { return p.Ignore }

// IsParallel reports whether the overlap test for this shape supports
// subdivided per-pair work. None of the built-in variants do; the narrow
// phase uses this to decide whether to widen its tuning candidates.
func (p *Params) IsParallel() bool { return false }

// CircumsphereDiameter bounds the shape from the outside; pairs farther
// apart than the mean of their circumsphere diameters cannot overlap.
func (p *Params) CircumsphereDiameter() float64 {
	switch p.Kind {
	case KindSphere:
		return 2 * p.Radius
	case KindConvexPolyhedron, KindSpheropolyhedron:
		max2 := 0.0
		for _, v := range p.Verts {
			if n2 := v.Norm2(); n2 > max2 {
				max2 = n2
			}
		}
		return 2 * (math.Sqrt(max2) + p.SweepRadius)
	case KindEllipsoid:
		return 2 * math.Max(p.Axes.X, math.Max(p.Axes.Y, p.Axes.Z))
	}
	return 0
}

// OBBHalfExtents returns the body-frame half extents of the shape's
// oriented bounding box, used to size depletant insertion volumes.
func (p *Params) OBBHalfExtents() geom.Vec3 {
	switch p.Kind {
	case KindSphere:
		return geom.Vec3{X: p.Radius, Y: p.Radius, Z: p.Radius}
	case KindConvexPolyhedron, KindSpheropolyhedron:
		var e geom.Vec3
		for _, v := range p.Verts {
			e.X = math.Max(e.X, math.Abs(v.X))
			e.Y = math.Max(e.Y, math.Abs(v.Y))
			e.Z = math.Max(e.Z, math.Abs(v.Z))
		}
		r := p.SweepRadius
		return geom.Vec3{X: e.X + r, Y: e.Y + r, Z: e.Z + r}
	case KindEllipsoid:
		return p.Axes
	}
	return geom.Vec3{}
}

// AABBHalfExtents returns world-frame half extents of an axis-aligned box
// enclosing the shape at orientation q.
func (p *Params) AABBHalfExtents(q geom.Quat) geom.Vec3 {
	if p.Kind == KindSphere || !p.HasOrientation() {
		return p.OBBHalfExtents()
	}
	s := Shape{P: p, Q: q}
	return geom.Vec3{
		X: s.support(geom.Vec3{X: 1}).X + p.sweepRadius(),
		Y: s.support(geom.Vec3{Y: 1}).Y + p.sweepRadius(),
		Z: s.support(geom.Vec3{Z: 1}).Z + p.sweepRadius(),
	}
}

func (p *Params) sweepRadius() float64 {
	switch p.Kind {
	case KindSphere:
		return p.Radius
	case KindSpheropolyhedron:
		return p.SweepRadius
	}
	return 0
}

// Shape is a placed instance: shared parameters plus an orientation. The
// position is carried separately as the pair separation vector.
type Shape struct {
	P *Params
	Q geom.Quat
}

// support returns the farthest point of the shape's core (sweep sphere
// excluded) along world-frame direction d, for the shape centered at the
// origin.
func (s Shape) support(d geom.Vec3) geom.Vec3 {
	switch s.P.Kind {
	case KindSphere:
		// the core of a sphere is its center
		return geom.Vec3{}
	case KindConvexPolyhedron, KindSpheropolyhedron:
		db := s.Q.Conj().Rotate(d)
		best := s.P.Verts[0]
		bestDot := best.Dot(db)
		for _, v := range s.P.Verts[1:] {
			if dot := v.Dot(db); dot > bestDot {
				best, bestDot = v, dot
			}
		}
		return s.Q.Rotate(best)
	case KindEllipsoid:
		db := s.Q.Conj().Rotate(d)
		a := s.P.Axes
		m := geom.Vec3{X: a.X * a.X * db.X, Y: a.Y * a.Y * db.Y, Z: a.Z * a.Z * db.Z}
		n := math.Sqrt(db.X*db.X*a.X*a.X + db.Y*db.Y*a.Y*a.Y + db.Z*db.Z*a.Z*a.Z)
		if n == 0 {
			return geom.Vec3{}
		}
		return s.Q.Rotate(m.Scale(1 / n))
	}
	return geom.Vec3{}
}
