// Package hpmc implements a hard-particle Monte Carlo trial-move engine
// with parallel overlap resolution through a Boolean-satisfiability solver.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - integrator.go: the per-timestep sweep (propose -> encode -> partition -> solve -> apply)
//   - narrow.go: how pairwise overlap tests become implications between
//     per-particle accept variables
//   - sat.go: the unit-propagation solver that resolves the implications
//     per connected component
//
// # Architecture
//
// All particles propose trial moves simultaneously. Overlap tests between
// the old and trial configurations of every nearby pair are encoded as
// 2-SAT clauses (plus pseudo-Boolean inequalities for depletant and
// patch-energy bounds) over one Boolean "accept" variable per particle,
// directed by the particle ranks of a shuffled update order. The constraint
// graph is split into connected components that are solved independently;
// the result reproduces the statistics of a sequential Metropolis sweep
// without a sequential loop.
//
// Every stage of the pipeline runs as a sharded parallel-for over
// contiguous particle ranges with a full barrier between stages; see
// partition.go. Stage shard counts are chosen online by the
// autotuners in tuner.go.
//
// Sub-packages:
//   - hpmc/geom: Vec3, Quat, periodic Box
//   - hpmc/shape: shape variants and the pairwise overlap predicate
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - PatchEnergy: soft pair interaction layered on the hard cores
//   - Communicator: ghost exchange / particle migration across domains
package hpmc
