package shape

import (
	"math"
	"testing"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
)

func sphere(r float64) *Params {
	return &Params{Kind: KindSphere, Radius: r}
}

func cube(half float64) *Params {
	return &Params{Kind: KindConvexPolyhedron, Verts: []geom.Vec3{
		{X: -half, Y: -half, Z: -half}, {X: half, Y: -half, Z: -half},
		{X: -half, Y: half, Z: -half}, {X: half, Y: half, Z: -half},
		{X: -half, Y: -half, Z: half}, {X: half, Y: -half, Z: half},
		{X: -half, Y: half, Z: half}, {X: half, Y: half, Z: half},
	}}
}

func TestOverlap_Spheres(t *testing.T) {
	a := Shape{P: sphere(0.5), Q: geom.IdentityQuat()}
	b := Shape{P: sphere(0.5), Q: geom.IdentityQuat()}
	tests := []struct {
		name string
		sep  float64
		want bool
	}{
		{"touching cores overlap", 0.99, true},
		{"separated", 1.01, false},
		{"coincident", 0.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TestOverlap(geom.Vec3{X: tt.sep}, a, b)
			if got != tt.want {
				t.Errorf("TestOverlap(sep=%g) = %v, want %v", tt.sep, got, tt.want)
			}
		})
	}
}

func TestOverlap_Cubes(t *testing.T) {
	a := Shape{P: cube(0.5), Q: geom.IdentityQuat()}
	b := Shape{P: cube(0.5), Q: geom.IdentityQuat()}

	// GIVEN two axis-aligned unit cubes
	if !TestOverlap(geom.Vec3{X: 0.9}, a, b) {
		t.Error("cubes at separation 0.9 should overlap")
	}
	if TestOverlap(geom.Vec3{X: 1.1}, a, b) {
		t.Error("cubes at separation 1.1 should not overlap")
	}

	// WHEN one cube is rotated 45 degrees about z its x extent grows to
	// sqrt(2)/2 per side
	rot := Shape{P: cube(0.5), Q: geom.FromAxisAngle(geom.Vec3{Z: 1}, math.Pi/4)}
	if !TestOverlap(geom.Vec3{X: 1.15}, rot, b) {
		t.Error("rotated cube at separation 1.15 should overlap")
	}
	if TestOverlap(geom.Vec3{X: 1.25}, rot, b) {
		t.Error("rotated cube at separation 1.25 should not overlap")
	}
}

func TestOverlap_Spheropolyhedron(t *testing.T) {
	// a point swept by radius 0.3 is a sphere of radius 0.3
	pt := Shape{P: &Params{Kind: KindSpheropolyhedron, Verts: []geom.Vec3{{}}, SweepRadius: 0.3}, Q: geom.IdentityQuat()}
	s := Shape{P: sphere(0.2), Q: geom.IdentityQuat()}
	if !TestOverlap(geom.Vec3{X: 0.49}, pt, s) {
		t.Error("swept point and sphere at 0.49 should overlap")
	}
	if TestOverlap(geom.Vec3{X: 0.52}, pt, s) {
		t.Error("swept point and sphere at 0.52 should not overlap")
	}
}

func TestOverlap_Ellipsoid(t *testing.T) {
	e := Shape{P: &Params{Kind: KindEllipsoid, Axes: geom.Vec3{X: 2, Y: 1, Z: 1}}, Q: geom.IdentityQuat()}
	s := Shape{P: sphere(0.5), Q: geom.IdentityQuat()}

	// along x the ellipsoid reaches 2
	if !TestOverlap(geom.Vec3{X: 2.4}, e, s) {
		t.Error("ellipsoid long axis at 2.4 should overlap")
	}
	if TestOverlap(geom.Vec3{X: 2.6}, e, s) {
		t.Error("ellipsoid long axis at 2.6 should not overlap")
	}
	// along y it only reaches 1
	if TestOverlap(geom.Vec3{Y: 1.6}, e, s) {
		t.Error("ellipsoid short axis at 1.6 should not overlap")
	}

	// rotating the ellipsoid 90 degrees about z swaps the axes
	rot := Shape{P: e.P, Q: geom.FromAxisAngle(geom.Vec3{Z: 1}, math.Pi/2)}
	if !TestOverlap(geom.Vec3{Y: 2.4}, rot, s) {
		t.Error("rotated ellipsoid at y=2.4 should overlap")
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"valid sphere", Params{Kind: KindSphere, Radius: 0.5}, false},
		{"negative radius", Params{Kind: KindSphere, Radius: -1}, true},
		{"polyhedron without vertices", Params{Kind: KindConvexPolyhedron}, true},
		{"valid ellipsoid", Params{Kind: KindEllipsoid, Axes: geom.Vec3{X: 1, Y: 1, Z: 2}}, false},
		{"ellipsoid zero axis", Params{Kind: KindEllipsoid, Axes: geom.Vec3{X: 1, Z: 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCircumsphereDiameter(t *testing.T) {
	if d := sphere(0.5).CircumsphereDiameter(); d != 1 {
		t.Errorf("sphere diameter = %g, want 1", d)
	}
	c := cube(0.5)
	want := math.Sqrt(3)
	if d := c.CircumsphereDiameter(); math.Abs(d-want) > 1e-12 {
		t.Errorf("cube diameter = %g, want %g", d, want)
	}
}
