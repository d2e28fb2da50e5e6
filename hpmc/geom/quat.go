package geom

import "math"

// Quat is a rotation quaternion (scalar part W, vector part V).
type Quat struct {
	W float64
	V Vec3
}

// IdentityQuat is the no-rotation quaternion.
func IdentityQuat() Quat { return Quat{W: 1} }

// FromAxisAngle builds the quaternion rotating by angle (radians) about
// axis. The axis need not be normalized.
func FromAxisAngle(axis Vec3, angle float64) Quat {
	half := angle / 2
	return Quat{
		W: math.Cos(half),
		V: axis.Normalized().Scale(math.Sin(half)),
	}
}

// Mul composes two rotations: (q.Mul(p)).Rotate(v) == q.Rotate(p.Rotate(v)).
func (q Quat) Mul(p Quat) Quat {
	return Quat{
		W: q.W*p.W - q.V.Dot(p.V),
		V: p.V.Scale(q.W).Add(q.V.Scale(p.W)).Add(q.V.Cross(p.V)),
	}
}

func (q Quat) Conj() Quat { return Quat{W: q.W, V: q.V.Neg()} }

func (q Quat) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.V.Norm2())
}

// Normalized rescales q to unit norm so that repeated composition stays a
// valid rotation.
func (q Quat) Normalized() Quat {
	n := q.Norm()
	if n == 0 {
		return IdentityQuat()
	}
	return Quat{W: q.W / n, V: q.V.Scale(1 / n)}
}

// Rotate applies the rotation to v using the expanded sandwich product,
// avoiding two full quaternion multiplies.
func (q Quat) Rotate(v Vec3) Vec3 {
	t := q.V.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(q.V.Cross(t))
}
