package hpmc

import (
	"sync/atomic"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
	"github.com/hpmc-sim/hpmc-sim/hpmc/shape"
)

// narrowPhase tests every nearby pair's old and trial configurations and
// emits the clauses that make the parallel sweep reproduce a sequential
// Metropolis sweep in rank order. For a local pair (first, second) ordered
// by rank (first moves before second):
//
//	overlap(trial_first, old_second)  -> unit !a_first
//	  (when first moves, second has not moved yet; the overlap rejects
//	   first unconditionally)
//	overlap(trial_second, old_first)  -> (a_first v !a_second)
//	  (second's move is only blocked if first stayed put)
//	overlap(trial_first, trial_second) -> (!a_first v !a_second)
//	  (both moves cannot be accepted together)
//
// Old/old overlaps never constrain anything. A ghost neighbor is frozen in
// its old configuration, so any overlap with a local trial is a unit
// rejection.
func (it *Integrator) narrowPhase(excell [][]int, part Partition, shardCounters []Counters) {
	pd := it.pd
	box := pd.Box()
	order := it.order

	part.ParallelFor(func(shard, begin, end int) {
		var checks int64
		for i := begin; i < end; i++ {
			// an out-of-cell particle is still visited: its own trial is
			// never tested, but its old configuration must block neighbors
			ci := it.cl.CellOf(i)
			oldI := shape.Shape{P: &it.params[pd.TypeID(i)], Q: pd.Orientation(i)}
			newI := shape.Shape{P: &it.params[pd.TypeID(i)], Q: it.trialOrient[i]}
			posI := pd.Pos(i)
			trialI := it.trialPos[i]

			for _, j := range excell[ci] {
				if j == i {
					continue
				}
				local := j < pd.N()
				if local && j < i {
					// local pairs are handled once, from the lower index
					continue
				}
				checks += it.encodePair(box, i, j, local, posI, trialI, oldI, newI, order)
			}
		}
		shardCounters[shard].OverlapChecks += checks
	})
}

// encodePair runs the overlap tests for one (i, j) pair and registers the
// resulting clauses. Returns the number of shape-pair evaluations done.
func (it *Integrator) encodePair(box geom.Box, i, j int, local bool, posI, trialI geom.Vec3, oldI, newI shape.Shape, order *UpdateOrder) int64 {
	pd := it.pd
	oldJ := shape.Shape{P: &it.params[pd.TypeID(j)], Q: pd.Orientation(j)}
	posJ := pd.Pos(j)
	var checks int64

	if !local {
		if it.rejectOutOfCell[i] {
			return 0
		}
		// frozen neighbor: only trial_i vs old_j matters
		checks++
		if shape.TestOverlap(box.MinImage(posJ.Sub(trialI)), newI, oldJ) {
			it.enc.AddUnit(i, NegLit(i))
		}
		return checks
	}

	newJ := shape.Shape{P: &it.params[pd.TypeID(j)], Q: it.trialOrient[j]}
	trialJ := it.trialPos[j]
	iRejected := it.rejectOutOfCell[i]
	jRejected := it.rejectOutOfCell[j]

	// order the pair by rank
	first, second := i, j
	oldF, newF, posF, trialF := oldI, newI, posI, trialI
	oldS, newS, posS, trialS := oldJ, newJ, posJ, trialJ
	fRejected, sRejected := iRejected, jRejected
	if order.At(j) < order.At(i) {
		first, second = j, i
		oldF, newF, posF, trialF = oldJ, newJ, posJ, trialJ
		oldS, newS, posS, trialS = oldI, newI, posI, trialI
		fRejected, sRejected = jRejected, iRejected
	}

	// trial_first vs old_second
	if !fRejected {
		checks++
		if shape.TestOverlap(box.MinImage(posS.Sub(trialF)), newF, oldS) {
			it.enc.AddUnit(first, NegLit(first))
			fRejected = true
		}
	}
	// trial_second vs old_first
	if !sRejected {
		checks++
		if shape.TestOverlap(box.MinImage(posF.Sub(trialS)), newS, oldF) {
			it.enc.AddBinary(PosLit(first), NegLit(second))
		}
	}
	// trial_first vs trial_second
	if !fRejected && !sRejected {
		checks++
		if shape.TestOverlap(box.MinImage(trialS.Sub(trialF)), newF, newS) {
			it.enc.AddBinary(NegLit(first), NegLit(second))
		}
	}
	return checks
}

// completeCNF finalizes the encoding after all stages ran: particles marked
// for unconditional rejection (out-of-cell moves, failed auxiliary
// depletant draws) receive a unit clause forcing their variable false.
func (it *Integrator) completeCNF(part Partition) {
	part.ParallelFor(func(shard, begin, end int) {
		for i := begin; i < end; i++ {
			if it.rejectOutOfCell[i] || atomic.LoadInt32(&it.rejectOut[i]) != 0 {
				it.enc.AddUnit(i, NegLit(i))
			}
		}
	})
}
