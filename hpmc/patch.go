package hpmc

import (
	"math"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
)

// PatchEnergy is a soft pair interaction layered on top of the hard cores.
// Energies are in units of kT.
type PatchEnergy interface {
	// RCut returns the maximum interaction range over all type pairs.
	RCut() float64

	// AdditiveCutoff returns the per-type extension of the interaction
	// range, half of which each partner contributes.
	AdditiveCutoff(typeID int) float64

	// Energy evaluates the pair energy for separation rij (from i to j,
	// minimum image) and the given types and orientations.
	Energy(rij geom.Vec3, typeI int, qI geom.Quat, typeJ int, qJ geom.Quat) float64
}

// patchEnergyScale converts patch energies to the fixed-point integers of
// the pseudo-Boolean inequalities.
const patchEnergyScale = 1 << 16

// encodePatch emits one pseudo-Boolean inequality per moving particle
// bounding the energy change of its trial move. For particle i with energy
// threshold -ln(u), u uniform, the Metropolis criterion
//
//	deltaE_i <= -ln(u)
//
// becomes a linear inequality over the neighbors' accept variables: a
// neighbor j contributes its new-configuration pair energy when a_j and its
// old one when !a_j. Frozen neighbors contribute a constant folded into the
// right-hand side. The whole inequality is conditioned on a_i through an
// activation term: a large negative coefficient on !a_i satisfies the
// inequality trivially whenever i's move is rejected.
func (it *Integrator) encodePatch(timestep, pass uint64, excell [][]int, part Partition) {
	if it.patch == nil {
		return
	}
	pd := it.pd
	box := pd.Box()

	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			if it.rejectOutOfCell[i] {
				continue
			}
			typI := pd.TypeID(i)
			posI := pd.Pos(i)
			trialI := it.trialPos[i]
			oldQI := pd.Orientation(i)
			newQI := it.trialOrient[i]
			ci := it.cl.CellOf(i)

			// constant part: frozen neighbors and the neighbors' old
			// configurations paired against i's old configuration
			var constE float64
			var absSum int64

			for _, j := range excell[ci] {
				if j == i {
					continue
				}
				typJ := pd.TypeID(j)
				oldQJ := pd.Orientation(j)
				posJ := pd.Pos(j)

				if j >= pd.N() {
					eNew := it.patch.Energy(box.MinImage(posJ.Sub(trialI)), typI, newQI, typJ, oldQJ)
					eOld := it.patch.Energy(box.MinImage(posJ.Sub(posI)), typI, oldQI, typJ, oldQJ)
					constE += eNew - eOld
					continue
				}

				// moving neighbor: branch on a_j
				eNewNew := it.patch.Energy(box.MinImage(it.trialPos[j].Sub(trialI)), typI, newQI, typJ, it.trialOrient[j])
				eNewOld := it.patch.Energy(box.MinImage(posJ.Sub(trialI)), typI, newQI, typJ, oldQJ)
				eOldOld := it.patch.Energy(box.MinImage(posJ.Sub(posI)), typI, oldQI, typJ, oldQJ)

				// the !a_j branch is the baseline; the a_j branch adds the
				// difference through a positive-literal term
				cOld := int64(math.Round((eNewOld - eOldOld) * patchEnergyScale))
				cNew := int64(math.Round((eNewNew - eOldOld) * patchEnergyScale))
				if cOld != 0 {
					it.enc.AddInequalityTerm(i, cOld, NegLit(j))
					absSum += abs64(cOld)
				}
				if cNew != 0 {
					it.enc.AddInequalityTerm(i, cNew, PosLit(j))
					absSum += abs64(cNew)
				}
			}

			rng := NewStream(it.seed, StreamPatch, timestep, pass, pd.Tag(i))
			u := rng.Float64()
			for u == 0 {
				u = rng.Float64()
			}
			rhs := int64(math.Round((-math.Log(u) - constE) * patchEnergyScale))
			// activation: with a_i false the term -M on !a_i makes the
			// left side at most rhs regardless of the neighbors
			m := absSum + abs64(rhs) + 1
			it.enc.AddInequalityTerm(i, -m, NegLit(i))
			it.enc.SetRHS(i, rhs)
		}
	})
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
