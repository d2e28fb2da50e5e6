package shape

import "github.com/hpmc-sim/hpmc-sim/hpmc/geom"

// gjkTol is the relative convergence tolerance of the distance iteration;
// coreEps is the squared distance below which two zero-sweep cores are
// considered touching.
const (
	gjkTol     = 1e-10
	coreEps    = 1e-14
	gjkMaxIter = 64
)

type overlapFn func(rAB geom.Vec3, a, b Shape) bool

// overlapTable is the (kind x kind) double-dispatch table. Sphere pairs use
// the exact test; every other combination goes through the GJK distance
// kernel on the shape cores plus sweep radii.
var overlapTable [numKinds][numKinds]overlapFn

func init() {
	for i := range overlapTable {
		for j := range overlapTable[i] {
			overlapTable[i][j] = overlapGJK
		}
	}
	overlapTable[KindSphere][KindSphere] = overlapSphereSphere
}

// TestOverlap reports whether a and b overlap when b's center sits at
// separation rAB from a's center. The caller applies the minimum image
// convention to rAB beforehand.
func TestOverlap(rAB geom.Vec3, a, b Shape) bool {
	return overlapTable[a.P.Kind][b.P.Kind](rAB, a, b)
}

func overlapSphereSphere(rAB geom.Vec3, a, b Shape) bool {
	sum := a.P.Radius + b.P.Radius
	return rAB.Norm2() < sum*sum
}

func overlapGJK(rAB geom.Vec3, a, b Shape) bool {
	sum := a.P.sweepRadius() + b.P.sweepRadius()
	d2 := gjkDistance2(rAB, a, b)
	if sum == 0 {
		return d2 < coreEps
	}
	return d2 < sum*sum
}

// minkowskiSupport returns the support point of the Minkowski difference
// A - (B + rAB) in direction d.
func minkowskiSupport(d, rAB geom.Vec3, a, b Shape) geom.Vec3 {
	return a.support(d).Sub(b.support(d.Neg()).Add(rAB))
}

// gjkDistance2 returns the squared distance between the cores of a and b
// (sweep spheres excluded), or 0 when the cores intersect.
func gjkDistance2(rAB geom.Vec3, a, b Shape) float64 {
	// initial direction: the line of centers, or x if coincident
	dir := rAB
	if dir.Norm2() == 0 {
		dir = geom.Vec3{X: 1}
	}
	v := minkowskiSupport(dir, rAB, a, b)
	simplex := make([]geom.Vec3, 0, 4)

	for iter := 0; iter < gjkMaxIter; iter++ {
		v2 := v.Norm2()
		if v2 < coreEps {
			return 0
		}
		w := minkowskiSupport(v.Neg(), rAB, a, b)
		// no measurable progress toward the origin: converged
		if v2-v.Dot(w) <= gjkTol*v2 {
			return v2
		}
		simplex = append(simplex, w)
		var inside bool
		v, simplex, inside = closestOnSimplex(simplex)
		if inside {
			return 0
		}
	}
	return v.Norm2()
}

// closestOnSimplex returns the point of the simplex hull closest to the
// origin and the supporting sub-simplex, or inside=true when a tetrahedron
// encloses the origin.
func closestOnSimplex(pts []geom.Vec3) (geom.Vec3, []geom.Vec3, bool) {
	switch len(pts) {
	case 1:
		return pts[0], pts, false
	case 2:
		c, s := closestOnSegment(pts[0], pts[1])
		return c, s, false
	case 3:
		c, s := closestOnTriangle(pts[0], pts[1], pts[2])
		return c, s, false
	default:
		return closestOnTetrahedron(pts[0], pts[1], pts[2], pts[3])
	}
}

func closestOnSegment(a, b geom.Vec3) (geom.Vec3, []geom.Vec3) {
	ab := b.Sub(a)
	denom := ab.Norm2()
	if denom == 0 {
		return a, []geom.Vec3{a}
	}
	t := -a.Dot(ab) / denom
	if t <= 0 {
		return a, []geom.Vec3{a}
	}
	if t >= 1 {
		return b, []geom.Vec3{b}
	}
	return a.Add(ab.Scale(t)), []geom.Vec3{a, b}
}

// closestOnTriangle locates the origin's Voronoi region of triangle abc.
func closestOnTriangle(a, b, c geom.Vec3) (geom.Vec3, []geom.Vec3) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := a.Neg()
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, []geom.Vec3{a}
	}

	bp := b.Neg()
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, []geom.Vec3{b}
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		t := d1 / (d1 - d3)
		return a.Add(ab.Scale(t)), []geom.Vec3{a, b}
	}

	cp := c.Neg()
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, []geom.Vec3{c}
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		t := d2 / (d2 - d6)
		return a.Add(ac.Scale(t)), []geom.Vec3{a, c}
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		t := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Scale(t)), []geom.Vec3{b, c}
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Scale(v)).Add(ac.Scale(w)), []geom.Vec3{a, b, c}
}

// originOutsideFace tests whether the origin lies on the far side of plane
// abc relative to the opposite vertex d.
func originOutsideFace(a, b, c, d geom.Vec3) bool {
	n := b.Sub(a).Cross(c.Sub(a))
	signP := a.Neg().Dot(n)
	signD := d.Sub(a).Dot(n)
	return signP*signD < 0
}

func closestOnTetrahedron(a, b, c, d geom.Vec3) (geom.Vec3, []geom.Vec3, bool) {
	outsideABC := originOutsideFace(a, b, c, d)
	outsideABD := originOutsideFace(a, b, d, c)
	outsideACD := originOutsideFace(a, c, d, b)
	outsideBCD := originOutsideFace(b, c, d, a)

	if !outsideABC && !outsideABD && !outsideACD && !outsideBCD {
		return geom.Vec3{}, []geom.Vec3{a, b, c, d}, true
	}

	best := geom.Vec3{}
	var bestSub []geom.Vec3
	bestD2 := -1.0
	consider := func(p, q, r geom.Vec3) {
		cl, sub := closestOnTriangle(p, q, r)
		if d2 := cl.Norm2(); bestD2 < 0 || d2 < bestD2 {
			best, bestSub, bestD2 = cl, sub, d2
		}
	}
	if outsideABC {
		consider(a, b, c)
	}
	if outsideABD {
		consider(a, b, d)
	}
	if outsideACD {
		consider(a, c, d)
	}
	if outsideBCD {
		consider(b, c, d)
	}
	return best, bestSub, false
}
