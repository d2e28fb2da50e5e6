package hpmc

import (
	"math"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
)

const (
	// moveRatioScale is the fixed-point denominator of the stored
	// translation-move probability.
	moveRatioScale = 65536
)

// proposeMoves generates one trial move per local particle, in parallel
// over the partition shards. Every particle draws from its own stream keyed
// by (timestep, pass, tag), so proposals are independent of shard layout
// and particle ordering. Moves whose trial position leaves the particle's
// current cell are marked for unconditional rejection; the nominal cell
// width bounds the interaction range, so a cell-crossing move could
// interact with pairs the narrow phase never visits.
func (it *Integrator) proposeMoves(timestep, pass uint64, part Partition) {
	pd := it.pd
	box := pd.Box()
	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			rng := NewStream(it.seed, StreamMove, timestep, pass, pd.Tag(i))
			typ := pd.TypeID(i)
			p := &it.params[typ]
			pos := pd.Pos(i)
			orient := pd.Orientation(i)

			translate := !p.HasOrientation() || uint32(rng.Intn(moveRatioScale)) < it.moveRatio
			if translate {
				d := it.d[typ]
				delta := geom.Vec3{
					X: (2*rng.Float64() - 1) * d,
					Y: (2*rng.Float64() - 1) * d,
					Z: (2*rng.Float64() - 1) * d,
				}
				if box.Dim == 2 {
					delta.Z = 0
				}
				it.trialPos[i] = pos.Add(delta)
				it.trialOrient[i] = orient
				it.moveType[i] = moveTranslate
			} else {
				axis := geom.Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
				if box.Dim == 2 {
					axis = geom.Vec3{Z: 1}
				}
				n := axis.Norm()
				if n == 0 {
					axis = geom.Vec3{Z: 1}
				} else {
					axis = axis.Scale(1 / n)
				}
				angle := (2*rng.Float64() - 1) * it.a[typ]
				it.trialPos[i] = pos
				it.trialOrient[i] = geom.FromAxisAngle(axis, angle).Mul(orient).Normalized()
				it.moveType[i] = moveRotate
			}

			it.rejectOutOfCell[i] = it.cl.CellIndex(it.trialPos[i]) != it.cl.CellOf(i)
		}
	})
}

const (
	moveTranslate byte = iota
	moveRotate
)

// maxMoveDisplacement returns the largest per-step displacement any type
// can make, a term of the nominal interaction width.
func (it *Integrator) maxMoveDisplacement() float64 {
	max := 0.0
	for _, d := range it.d {
		// a cubic displacement of half-extent d moves at most d*sqrt(3)
		if v := d * math.Sqrt(3); v > max {
			max = v
		}
	}
	return max
}
