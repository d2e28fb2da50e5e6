package hpmc

import (
	"testing"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
	"github.com/hpmc-sim/hpmc-sim/hpmc/shape"
)

// encodeAndSolve drives the narrow phase and solver over manually staged
// trial moves.
func encodeAndSolve(t *testing.T, it *Integrator) []bool {
	t.Helper()
	n := it.pd.N()
	excell := buildExcell(it.cl)
	part := NewPartition(n, 2)
	for {
		it.enc.Reset(n)
		shardCounters := make([]Counters, part.NumShards())
		it.narrowPhase(excell, part, shardCounters)
		it.completeCNF(part)
		if !it.enc.CheckReallocate() {
			break
		}
	}
	cs := buildComponents(it.enc, part)
	if err := solveComponents(it.enc, cs, it.order, NewPartition(cs.ncomp, 2), it.assign, it.reject); err != nil {
		t.Fatalf("solveComponents: %v", err)
	}
	return it.reject
}

// stageTrial sets up a no-op trial for every particle, then applies the
// given overrides.
func stageTrial(it *Integrator, overrides map[int]geom.Vec3) {
	for i := 0; i < it.pd.N(); i++ {
		it.trialPos[i] = it.pd.Pos(i)
		it.trialOrient[i] = it.pd.Orientation(i)
		it.moveType[i] = moveTranslate
		it.rejectOutOfCell[i] = false
		it.rejectOut[i] = 0
	}
	for i, p := range overrides {
		it.trialPos[i] = p
		it.rejectOutOfCell[i] = it.cl.CellIndex(p) != it.cl.CellOf(i)
	}
}

func TestEncode_MoveIntoNeighborRejectedUnderBothOrders(t *testing.T) {
	// GIVEN two unit spheres at separation 2.5 and a trial moving A to
	// separation 1.8 from stationary B
	pd := NewParticleData(geom.NewBox(geom.Vec3{X: 20, Y: 20, Z: 20}, 3), []string{"A"})
	pd.AddParticle(geom.Vec3{X: -1.25}, geom.IdentityQuat(), 0)
	pd.AddParticle(geom.Vec3{X: 1.25}, geom.IdentityQuat(), 0)
	it := New(pd, nil, 1)
	t.Cleanup(it.Close)
	if err := it.SetParams("A", shape.Params{Kind: shape.KindSphere, Radius: 1}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := it.SetD("A", 0.8); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	prepare(t, it)

	for _, reversed := range []bool{false, true} {
		it.order.reversed = reversed
		stageTrial(it, map[int]geom.Vec3{0: {X: -0.55}})

		reject := encodeAndSolve(t, it)

		// THEN A's move is rejected and B keeps its accepted no-op move
		// regardless of which particle ranks first
		if !reject[0] {
			t.Errorf("reversed=%v: overlapping move of A not rejected", reversed)
		}
		if reject[1] {
			t.Errorf("reversed=%v: B rejected without cause", reversed)
		}
	}
}

func TestEncode_MutualTrialOverlapEarlierRankWins(t *testing.T) {
	// GIVEN two spheres whose trial moves collide with each other but not
	// with any old configuration
	pd := NewParticleData(geom.NewBox(geom.Vec3{X: 20, Y: 20, Z: 20}, 3), []string{"A"})
	pd.AddParticle(geom.Vec3{X: -1.6}, geom.IdentityQuat(), 0)
	pd.AddParticle(geom.Vec3{X: 1.6}, geom.IdentityQuat(), 0)
	it := New(pd, nil, 1)
	t.Cleanup(it.Close)
	if err := it.SetParams("A", shape.Params{Kind: shape.KindSphere, Radius: 0.5}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := it.SetD("A", 1.5); err != nil {
		t.Fatalf("SetD: %v", err)
	}
	prepare(t, it)

	// both move toward the center, trial separation 0.8 < 1.0
	for _, reversed := range []bool{false, true} {
		it.order.reversed = reversed
		stageTrial(it, map[int]geom.Vec3{0: {X: -0.4}, 1: {X: 0.4}})

		reject := encodeAndSolve(t, it)

		winner, loser := 0, 1
		if reversed {
			winner, loser = 1, 0
		}
		if reject[winner] {
			t.Errorf("reversed=%v: earlier-ranked particle %d rejected", reversed, winner)
		}
		if !reject[loser] {
			t.Errorf("reversed=%v: later-ranked particle %d not rejected", reversed, loser)
		}
	}
}

func TestEncode_OutOfCellNeighborStillBlocks(t *testing.T) {
	// GIVEN B flagged out-of-cell (stays put) and A moving onto B's old
	// position
	pd := NewParticleData(geom.NewBox(geom.Vec3{X: 20, Y: 20, Z: 20}, 3), []string{"A"})
	pd.AddParticle(geom.Vec3{X: -1.25}, geom.IdentityQuat(), 0)
	pd.AddParticle(geom.Vec3{X: 1.25}, geom.IdentityQuat(), 0)
	it := New(pd, nil, 1)
	t.Cleanup(it.Close)
	if err := it.SetParams("A", shape.Params{Kind: shape.KindSphere, Radius: 1}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	prepare(t, it)

	stageTrial(it, map[int]geom.Vec3{0: {X: -0.55}})
	it.rejectOutOfCell[1] = true

	reject := encodeAndSolve(t, it)
	if !reject[0] || !reject[1] {
		t.Errorf("reject = %v, want both rejected", reject)
	}
}

func TestUpdate_CounterConservation(t *testing.T) {
	const n, sweeps = 27, 5
	_, it := newSphereSystem(t, n, 20, 0.5, 0.2, 21)
	if err := it.SetNSelect(2); err != nil {
		t.Fatalf("SetNSelect: %v", err)
	}
	for ts := uint64(0); ts < sweeps; ts++ {
		if err := it.Update(ts); err != nil {
			t.Fatalf("Update(%d): %v", ts, err)
		}
	}
	c := it.Counters()
	// every particle attempts exactly nselect moves per sweep
	if want := int64(n * 2 * sweeps); c.Attempts() != want {
		t.Errorf("Attempts = %d, want %d", c.Attempts(), want)
	}
	if c.OutOfCellReject > c.TranslateReject+c.RotateReject {
		t.Error("out-of-cell rejections exceed total rejections")
	}
}

func TestUpdate_NeverCreatesOverlaps(t *testing.T) {
	// GIVEN a moderately dense hard-sphere fluid; several seeds and enough
	// sweeps for accepted moves and grid shifts to re-bin every particle
	const n, sweeps = 64, 15
	for _, seed := range []uint64{1, 2, 33} {
		pd, it := newSphereSystem(t, n, 8, 0.5, 0.3, seed)
		p := sphereParams(it)
		for ts := uint64(0); ts < sweeps; ts++ {
			if err := it.Update(ts); err != nil {
				t.Fatalf("seed %d: Update(%d): %v", seed, ts, err)
			}
			// THEN no accepted configuration contains an overlapping pair
			box := pd.Box()
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					rij := box.MinImage(pd.Pos(j).Sub(pd.Pos(i)))
					a := shape.Shape{P: p, Q: pd.Orientation(i)}
					b := shape.Shape{P: p, Q: pd.Orientation(j)}
					if shape.TestOverlap(rij, a, b) {
						t.Fatalf("seed %d sweep %d: particles %d and %d overlap at separation %g", seed, ts, i, j, rij.Norm())
					}
				}
			}
		}
		if it.Counters().TranslateAccept == 0 {
			t.Errorf("seed %d: no move was ever accepted", seed)
		}
	}
}

func TestIntegrator_ExcellFollowsRebinning(t *testing.T) {
	// GIVEN a completed sweep whose accepted moves and grid shift changed
	// cell membership since the expanded list was last filled
	_, it := newSphereSystem(t, 64, 8, 0.5, 0.3, 1)
	if err := it.Update(0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// WHEN the particles are re-binned and the cached list refreshed
	if err := it.cl.Compute(it.pd); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	it.refreshExcell()

	// THEN the cache matches a list built from scratch; a stale cache
	// would silently drop overlap constraints for re-binned particles
	fresh := buildExcell(it.cl)
	if len(fresh) != len(it.excell) {
		t.Fatalf("expanded list has %d cells, want %d", len(it.excell), len(fresh))
	}
	for c := range fresh {
		if len(fresh[c]) != len(it.excell[c]) {
			t.Fatalf("cell %d holds %d members, want %d", c, len(it.excell[c]), len(fresh[c]))
		}
		for k := range fresh[c] {
			if fresh[c][k] != it.excell[c][k] {
				t.Fatalf("cell %d member %d is %d, want %d", c, k, it.excell[c][k], fresh[c][k])
			}
		}
	}
}

func sphereParams(it *Integrator) *shape.Params { return &it.params[0] }

func TestUpdate_DeterministicForSeed(t *testing.T) {
	pd1, it1 := newSphereSystem(t, 27, 12, 0.5, 0.25, 77)
	pd2, it2 := newSphereSystem(t, 27, 12, 0.5, 0.25, 77)
	pd3, it3 := newSphereSystem(t, 27, 12, 0.5, 0.25, 78)

	differs := false
	for ts := uint64(0); ts < 5; ts++ {
		for _, it := range []*Integrator{it1, it2, it3} {
			if err := it.Update(ts); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
	}
	for i := 0; i < 27; i++ {
		if pd1.Pos(i) != pd2.Pos(i) {
			t.Fatalf("same seed diverged at particle %d", i)
		}
		if pd1.Pos(i) != pd3.Pos(i) {
			differs = true
		}
	}
	if !differs {
		t.Error("different seeds produced identical trajectories")
	}
}

func TestUpdate_CapacityGrowthPreservesTrajectory(t *testing.T) {
	// GIVEN one system with ample clause capacity and one starting from
	// minimal rows, forcing reallocate-and-retry cycles
	pd1, it1 := newSphereSystem(t, 64, 8, 0.5, 0.3, 55)
	pd2, it2 := newSphereSystem(t, 64, 8, 0.5, 0.3, 55)
	it2.enc = NewEncoding(1, 1)

	for ts := uint64(0); ts < 5; ts++ {
		if err := it1.Update(ts); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if err := it2.Update(ts); err != nil {
			t.Fatalf("Update (minimal capacity): %v", err)
		}
	}
	for i := 0; i < 64; i++ {
		if pd1.Pos(i) != pd2.Pos(i) {
			t.Fatalf("capacity growth changed the trajectory at particle %d", i)
		}
	}
}

func TestUpdate_TunersDoNotAffectResults(t *testing.T) {
	pd1, it1 := newSphereSystem(t, 27, 12, 0.5, 0.25, 91)
	pd2, it2 := newSphereSystem(t, 27, 12, 0.5, 0.25, 91)
	it2.SetTunersEnabled(false)

	for ts := uint64(0); ts < 5; ts++ {
		if err := it1.Update(ts); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if err := it2.Update(ts); err != nil {
			t.Fatalf("Update (no tuning): %v", err)
		}
	}
	for i := 0; i < 27; i++ {
		if pd1.Pos(i) != pd2.Pos(i) {
			t.Fatalf("tuning changed results at particle %d", i)
		}
	}
}

func TestUpdate_BoxTooSmallIsError(t *testing.T) {
	// interaction width 1 + 0.6*sqrt(3) > 2, twice that exceeds the box
	_, it := newSphereSystem(t, 8, 3, 0.5, 0.6, 1)
	if err := it.Update(0); err == nil {
		t.Fatal("expected error for box below twice the interaction width")
	}
}

func TestIntegrator_SetterValidation(t *testing.T) {
	_, it := newSphereSystem(t, 8, 20, 0.5, 0.2, 1)
	if err := it.SetD("missing", 0.1); err == nil {
		t.Error("SetD with unknown type should fail")
	}
	if err := it.SetTranslationMoveProbability(1.5); err == nil {
		t.Error("move probability above 1 should fail")
	}
	if err := it.SetNSelect(0); err == nil {
		t.Error("nselect 0 should fail")
	}
	if err := it.SetNTrial(-1); err == nil {
		t.Error("negative ntrial should fail")
	}
}

func TestIntegrator_TypeAdditionGrowsParameters(t *testing.T) {
	pd, it := newSphereSystem(t, 8, 20, 0.5, 0.2, 1)
	pd.AddType("B")
	if err := it.SetD("B", 0.4); err != nil {
		t.Fatalf("SetD on added type: %v", err)
	}
	if err := it.SetParams("B", shape.Params{Kind: shape.KindSphere, Radius: 0.25}); err != nil {
		t.Fatalf("SetParams on added type: %v", err)
	}
}
