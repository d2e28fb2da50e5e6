package hpmc

import (
	"math"
	randv2 "math/rand/v2"
	"sync/atomic"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
	"github.com/hpmc-sim/hpmc-sim/hpmc/shape"

	"gonum.org/v1/gonum/stat/distuv"
)

// deltaFScale is the fixed-point scale for the auxiliary-mode free energy
// accumulators. Workers add scaled integer contributions atomically; the
// accept stage converts back to float.
const deltaFScale = 1 << 16

// newPoisson returns a Poisson sampler over its own deterministic stream.
// distuv draws from a math/rand/v2 source.
func newPoisson(lambda float64, seed uint64, id StreamID, counters ...uint64) distuv.Poisson {
	s := streamSeed(seed, id, counters...)
	return distuv.Poisson{Lambda: lambda, Src: randv2.NewPCG(s, s^0x9e3779b97f4a7c15)}
}

// insertionRegion returns the center and half-extents of the axis-aligned
// sampling box for depletant insertions around a moving particle: the
// particle's old and trial configurations padded by the depletant
// circumsphere radius.
func (it *Integrator) insertionRegion(i int, rDep float64) (center, half geom.Vec3) {
	pd := it.pd
	typ := pd.TypeID(i)
	p := &it.params[typ]
	oldHalf := p.AABBHalfExtents(pd.Orientation(i))
	newHalf := p.AABBHalfExtents(it.trialOrient[i])

	oldPos := pd.Pos(i)
	newPos := it.trialPos[i]
	lo := geom.Vec3{
		X: math.Min(oldPos.X-oldHalf.X, newPos.X-newHalf.X) - rDep,
		Y: math.Min(oldPos.Y-oldHalf.Y, newPos.Y-newHalf.Y) - rDep,
		Z: math.Min(oldPos.Z-oldHalf.Z, newPos.Z-newHalf.Z) - rDep,
	}
	hi := geom.Vec3{
		X: math.Max(oldPos.X+oldHalf.X, newPos.X+newHalf.X) + rDep,
		Y: math.Max(oldPos.Y+oldHalf.Y, newPos.Y+newHalf.Y) + rDep,
		Z: math.Max(oldPos.Z+oldHalf.Z, newPos.Z+newHalf.Z) + rDep,
	}
	center = lo.Add(hi).Scale(0.5)
	half = hi.Sub(lo).Scale(0.5)
	return center, half
}

// encodeDepletants runs the implicit-depletant stage for every depletant
// type with nonzero fugacity. In the direct mode a Poisson number of
// depletants is inserted into each moving particle's sampling region; an
// insertion that fits in the old configuration but not the trial one rejects
// the move unless a neighbor's configuration blocks it at i's turn in the
// update order:
//
//	old_j blocks, rank(j) > rank(i)  -> no clause (j has not moved yet)
//	old_j blocks, rank(j) < rank(i)  -> (!a_i v !a_j)
//	new_j blocks, rank(j) < rank(i)  -> (!a_i v a_j)
//	no blocker                       -> unit !a_i
//
// With NTrial > 0 the auxiliary mode replaces the clause emission with a
// Metropolis-Hastings acceptance on an unbiased free-energy difference
// estimate, accumulated in fixed point across two barrier phases.
func (it *Integrator) encodeDepletants(timestep, pass uint64, excell [][]int, part Partition, shardImplicit []ImplicitCounters) {
	for depType, z := range it.fugacity {
		if z == 0 {
			continue
		}
		if it.nTrial > 0 {
			it.depletantsAux(timestep, pass, depType, z, excell, part, shardImplicit)
			continue
		}
		it.depletantsDirect(timestep, pass, depType, z, excell, part, shardImplicit)
	}
}

func (it *Integrator) depletantsDirect(timestep, pass uint64, depType int, z float64, excell [][]int, part Partition, shardImplicit []ImplicitCounters) {
	pd := it.pd
	box := pd.Box()
	depParams := &it.params[depType]
	rDep := depParams.CircumsphereDiameter() / 2

	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			if it.rejectOutOfCell[i] {
				continue
			}
			center, half := it.insertionRegion(i, rDep)
			vol := 8 * half.X * half.Y * half.Z
			if box.Dim == 2 {
				vol = 4 * half.X * half.Y
			}
			lambda := math.Abs(z) * vol
			if lambda == 0 {
				continue
			}
			tag := pd.Tag(i)
			n := int(newPoisson(lambda, it.seed, StreamDepletantCount, timestep, pass, tag, uint64(depType)).Rand())
			if n == 0 {
				continue
			}
			rng := NewStream(it.seed, StreamDepletantPlace, timestep, pass, tag, uint64(depType))
			typ := pd.TypeID(i)
			oldI := shape.Shape{P: &it.params[typ], Q: pd.Orientation(i)}
			newI := shape.Shape{P: &it.params[typ], Q: it.trialOrient[i]}

			for k := 0; k < n; k++ {
				depPos := geom.Vec3{
					X: center.X + (2*rng.Float64()-1)*half.X,
					Y: center.Y + (2*rng.Float64()-1)*half.Y,
					Z: center.Z + (2*rng.Float64()-1)*half.Z,
				}
				if box.Dim == 2 {
					depPos.Z = 0
				}
				dep := shape.Shape{P: depParams, Q: randomOrientation(rng, depParams)}
				shardImplicit[shard].InsertCount++

				// only insertions excluded by the trial but not the old
				// configuration can veto the move
				if !shape.TestOverlap(box.MinImage(depPos.Sub(it.trialPos[i])), newI, dep) {
					shardImplicit[shard].InsertAcceptCount++
					continue
				}
				if shape.TestOverlap(box.MinImage(depPos.Sub(pd.Pos(i))), oldI, dep) {
					continue
				}
				it.emitDepletantClause(box, i, depPos, dep, excell)
			}
		}
	})
}

// emitDepletantClause searches i's neighborhood for a configuration that
// blocks the depletant at i's turn in the update order and emits the
// least constraining clause. Ghosts and neighbors ranked after i are
// still at their old positions when i moves, so their old configurations
// block unconditionally; only earlier-ranked neighbors can condition the
// veto on their own accept variables, and the resulting positive literal
// always sits on the earlier-ranked variable.
func (it *Integrator) emitDepletantClause(box geom.Box, i int, depPos geom.Vec3, dep shape.Shape, excell [][]int) {
	pd := it.pd
	ri := it.order.At(i)
	ci := it.cl.CellOf(i)
	firstOld := -1
	for _, j := range excell[ci] {
		if j == i {
			continue
		}
		oldJ := shape.Shape{P: &it.params[pd.TypeID(j)], Q: pd.Orientation(j)}
		if shape.TestOverlap(box.MinImage(depPos.Sub(pd.Pos(j))), oldJ, dep) {
			if j >= pd.N() || it.order.At(j) > ri {
				return
			}
			if firstOld < 0 {
				firstOld = j
			}
		}
	}
	if firstOld >= 0 {
		// blocked unless the earlier-ranked neighbor moved away first
		it.enc.AddBinary(NegLit(i), NegLit(firstOld))
		return
	}
	for _, j := range excell[ci] {
		if j == i || j >= pd.N() || it.order.At(j) > ri {
			continue
		}
		newJ := shape.Shape{P: &it.params[pd.TypeID(j)], Q: it.trialOrient[j]}
		if shape.TestOverlap(box.MinImage(depPos.Sub(it.trialPos[j])), newJ, dep) {
			// blocked only if the earlier-ranked neighbor's move landed
			it.enc.AddBinary(NegLit(i), PosLit(j))
			return
		}
	}
	it.enc.AddUnit(i, NegLit(i))
}

// depletantsAux implements the auxiliary-variable mode: NTrial re-insertion
// attempts per Poisson draw estimate the free-energy difference of the move,
// and a per-particle Metropolis-Hastings test converts the estimate into an
// unconditional rejection before the solver runs. Contributions are
// accumulated in fixed point so concurrent workers can add atomically.
func (it *Integrator) depletantsAux(timestep, pass uint64, depType int, z float64, excell [][]int, part Partition, shardImplicit []ImplicitCounters) {
	pd := it.pd
	box := pd.Box()
	depParams := &it.params[depType]
	rDep := depParams.CircumsphereDiameter() / 2

	// phase 1: estimate the log free-volume change per particle
	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			atomic.StoreInt64(&it.deltaFInt[i], 0)
			if it.rejectOutOfCell[i] {
				continue
			}
			center, half := it.insertionRegion(i, rDep)
			vol := 8 * half.X * half.Y * half.Z
			if box.Dim == 2 {
				vol = 4 * half.X * half.Y
			}
			lambda := math.Abs(z) * vol
			if lambda == 0 {
				continue
			}
			tag := pd.Tag(i)
			n := int(newPoisson(lambda, it.seed, StreamDepletantCount, timestep, pass, tag, uint64(depType)).Rand())
			if n == 0 {
				continue
			}
			rng := NewStream(it.seed, StreamDepletantPlace, timestep, pass, tag, uint64(depType))
			typ := pd.TypeID(i)
			oldI := shape.Shape{P: &it.params[typ], Q: pd.Orientation(i)}
			newI := shape.Shape{P: &it.params[typ], Q: it.trialOrient[i]}

			var freeOld, freeNew int
			total := n * it.nTrial
			for k := 0; k < total; k++ {
				depPos := geom.Vec3{
					X: center.X + (2*rng.Float64()-1)*half.X,
					Y: center.Y + (2*rng.Float64()-1)*half.Y,
					Z: center.Z + (2*rng.Float64()-1)*half.Z,
				}
				if box.Dim == 2 {
					depPos.Z = 0
				}
				dep := shape.Shape{P: depParams, Q: randomOrientation(rng, depParams)}
				shardImplicit[shard].InsertCount++
				inOld := shape.TestOverlap(box.MinImage(depPos.Sub(pd.Pos(i))), oldI, dep)
				inNew := shape.TestOverlap(box.MinImage(depPos.Sub(it.trialPos[i])), newI, dep)
				if !it.depletantBlocked(box, i, depPos, dep, excell) {
					if !inOld {
						freeOld++
					}
					if !inNew {
						freeNew++
						shardImplicit[shard].InsertAcceptCount++
					}
				}
			}
			if freeOld == 0 || freeNew == 0 {
				if freeNew < freeOld {
					atomic.StoreInt32(&it.rejectOut[i], 1)
				}
				continue
			}
			// deltaF = -lambda * (ln Vfree_new - ln Vfree_old) estimate
			dF := lambda * (math.Log(float64(freeOld)) - math.Log(float64(freeNew)))
			atomic.AddInt64(&it.deltaFInt[i], int64(dF*deltaFScale))
		}
	})

	// phase 2: Metropolis-Hastings accept on the accumulated estimate
	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			if it.rejectOutOfCell[i] || atomic.LoadInt32(&it.rejectOut[i]) != 0 {
				continue
			}
			dF := float64(atomic.LoadInt64(&it.deltaFInt[i])) / deltaFScale
			if dF == 0 {
				continue
			}
			rng := NewStream(it.seed, StreamDepletantAccept, timestep, pass, pd.Tag(i), uint64(depType))
			if !mhAccept(dF, rng.Float64()) {
				atomic.StoreInt32(&it.rejectOut[i], 1)
			}
		}
	})
}

// depletantBlocked reports whether any neighbor's old configuration
// excludes the depletant independent of this sweep's moves.
func (it *Integrator) depletantBlocked(box geom.Box, i int, depPos geom.Vec3, dep shape.Shape, excell [][]int) bool {
	pd := it.pd
	ci := it.cl.CellOf(i)
	for _, j := range excell[ci] {
		if j == i {
			continue
		}
		oldJ := shape.Shape{P: &it.params[pd.TypeID(j)], Q: pd.Orientation(j)}
		if shape.TestOverlap(box.MinImage(depPos.Sub(pd.Pos(j))), oldJ, dep) {
			return true
		}
	}
	return false
}

// mhAccept is the Metropolis-Hastings criterion on a free-energy
// difference: accept with probability min(1, exp(-deltaF)).
func mhAccept(deltaF, u float64) bool {
	if deltaF <= 0 {
		return true
	}
	return u < math.Exp(-deltaF)
}

// randomOrientation draws a uniform orientation for shapes that need one;
// isotropic shapes keep the identity.
func randomOrientation(rng interface{ NormFloat64() float64 }, p *shape.Params) geom.Quat {
	if !p.HasOrientation() {
		return geom.IdentityQuat()
	}
	q := geom.Quat{
		W: rng.NormFloat64(),
		V: geom.Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()},
	}
	return q.Normalized()
}
