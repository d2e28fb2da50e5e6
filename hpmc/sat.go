package hpmc

import (
	"fmt"
	"sort"
)

// assignment values
const (
	assignNone  int8 = -1
	assignFalse int8 = 0
	assignTrue  int8 = 1
)

// solveComponents resolves the constraint system component by component and
// fills reject (true = trial move rejected). Components touch disjoint
// variable sets, so they solve concurrently without coordination.
//
// Within a component the solver makes decisions in update-order rank,
// defaulting every free variable to true (move accepted), and closes each
// decision under unit propagation over the binary clauses and slack
// propagation over the inequalities. Deciding in rank order mirrors the
// sequential sweep and makes a genuine conflict impossible for a
// well-formed encoding; hitting one means clauses were lost, which the
// capacity-retry protocol is supposed to rule out, so it surfaces as an
// error rather than triggering backtracking.
func solveComponents(enc *Encoding, cs *componentSet, order *UpdateOrder, part Partition, assign []int8, reject []bool) error {
	nvar := enc.NVar()
	for v := 0; v < nvar; v++ {
		assign[v] = assignNone
	}

	compPart := NewPartition(cs.ncomp, part.NumShards())
	errs := make([]error, compPart.NumShards())
	compPart.ParallelFor(func(shard, begin, end int) {
		var s solver
		for c := begin; c < end; c++ {
			if err := s.solve(enc, cs.Members(c), order, assign); err != nil {
				errs[shard] = err
				return
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for v := 0; v < nvar; v++ {
		reject[v] = assign[v] == assignFalse
	}
	return nil
}

// solver holds the per-worker scratch state for solving one component at a
// time.
type solver struct {
	queue     []int32
	byRank    []int32
	pairCoeff map[int32][2]int64
}

func (s *solver) solve(enc *Encoding, members []int32, order *UpdateOrder, assign []int8) error {
	// propagation work is linear in the component's clause count per
	// assignment; anything past that indicates a cycle in the scratch state
	maxProps := 0
	for _, v := range members {
		maxProps += enc.NClauses(int(v)) + enc.NTerms(int(v)) + 1
	}
	maxProps = (maxProps + 1) * (len(members) + 1)
	props := 0

	// unit clauses seed the queue
	s.queue = s.queue[:0]
	for _, v := range members {
		for k := 0; k < enc.NClauses(int(v)); k++ {
			l1, l2 := enc.Clause(int(v), k)
			if l2 != LitNone {
				continue
			}
			if err := s.enforce(l1, assign); err != nil {
				return err
			}
		}
	}
	if err := s.propagate(enc, members, assign, &props, maxProps); err != nil {
		return err
	}

	s.byRank = append(s.byRank[:0], members...)
	sort.Slice(s.byRank, func(a, b int) bool {
		return order.At(int(s.byRank[a])) < order.At(int(s.byRank[b]))
	})

	for _, v := range s.byRank {
		if assign[v] != assignNone {
			continue
		}
		assign[v] = assignTrue
		s.queue = append(s.queue, v)
		if err := s.propagate(enc, members, assign, &props, maxProps); err != nil {
			return err
		}
	}
	return nil
}

// enforce assigns literal l true, queueing the variable, or reports a
// conflict.
func (s *solver) enforce(l Lit, assign []int8) error {
	want := assignTrue
	if l.IsNeg() {
		want = assignFalse
	}
	v := int32(l.Var())
	switch assign[v] {
	case assignNone:
		assign[v] = want
		s.queue = append(s.queue, v)
	case want:
	default:
		return fmt.Errorf("sat: conflict on variable %d", v)
	}
	return nil
}

// propagate closes the current assignment under the binary clauses and the
// inequalities of the component.
func (s *solver) propagate(enc *Encoding, members []int32, assign []int8, props *int, maxProps int) error {
	for {
		for len(s.queue) > 0 {
			v := s.queue[len(s.queue)-1]
			s.queue = s.queue[:len(s.queue)-1]
			*props++
			if *props > maxProps {
				return fmt.Errorf("sat: propagation bound exceeded on variable %d", v)
			}
			for k := 0; k < enc.NClauses(int(v)); k++ {
				l1, l2 := enc.Clause(int(v), k)
				if l2 == LitNone {
					continue
				}
				// binaries sit in both rows; the row whose variable is l1
				// owns the clause
				if int32(l1.Var()) != v && int32(l2.Var()) != v {
					return fmt.Errorf("sat: clause row corrupt at variable %d", v)
				}
				if litValue(l1, assign) == assignFalse {
					if err := s.enforce(l2, assign); err != nil {
						return err
					}
				} else if litValue(l2, assign) == assignFalse {
					if err := s.enforce(l1, assign); err != nil {
						return err
					}
				}
			}
		}
		forced, err := s.propagateInequalities(enc, members, assign)
		if err != nil {
			return err
		}
		if !forced {
			return nil
		}
	}
}

// propagateInequalities applies bound propagation to every member's
// inequality and reports whether any literal was forced.
//
// Terms commonly come in branch pairs: a neighbor contributes one
// coefficient on its positive literal and one on its negative literal, and
// exactly one of the two applies. The lower bound of the left side
// therefore counts the smaller branch of every unassigned variable, not
// zero; without this the bound is too loose early and propagation could
// drive both branches of a pair past the slack at once, manufacturing a
// conflict no real assignment has.
func (s *solver) propagateInequalities(enc *Encoding, members []int32, assign []int8) (bool, error) {
	forced := false
	for _, v := range members {
		n := enc.NTerms(int(v))
		if n == 0 {
			continue
		}
		// normalize to positive coefficients: -c*l <= r  ==  c*!l <= r + c
		if s.pairCoeff == nil {
			s.pairCoeff = make(map[int32][2]int64)
		}
		for u := range s.pairCoeff {
			delete(s.pairCoeff, u)
		}
		rhs := enc.RHS(int(v))
		for k := 0; k < n; k++ {
			c, l := enc.Term(int(v), k)
			if c == 0 {
				continue
			}
			if c < 0 {
				rhs -= c
				c, l = -c, l.Neg()
			}
			u := int32(l.Var())
			pc := s.pairCoeff[u]
			if l.IsNeg() {
				pc[1] += c
			} else {
				pc[0] += c
			}
			s.pairCoeff[u] = pc
		}

		// lower bound on the left side under the current assignment
		var base int64
		for u, pc := range s.pairCoeff {
			switch assign[u] {
			case assignTrue:
				base += pc[0]
			case assignFalse:
				base += pc[1]
			default:
				if pc[0] < pc[1] {
					base += pc[0]
				} else {
					base += pc[1]
				}
			}
		}
		if base > rhs {
			return false, fmt.Errorf("sat: inequality of variable %d violated", v)
		}
		for u, pc := range s.pairCoeff {
			if assign[u] != assignNone {
				continue
			}
			min := pc[0]
			if pc[1] < min {
				min = pc[1]
			}
			// a branch whose excess over the minimum breaks the bound is
			// impossible; force the other branch
			if base+pc[0]-min > rhs {
				if err := s.enforce(NegLit(int(u)), assign); err != nil {
					return false, err
				}
				forced = true
			} else if base+pc[1]-min > rhs {
				if err := s.enforce(PosLit(int(u)), assign); err != nil {
					return false, err
				}
				forced = true
			}
		}
	}
	return forced, nil
}

// litValue returns the truth value of l under assign.
func litValue(l Lit, assign []int8) int8 {
	a := assign[l.Var()]
	if a == assignNone {
		return assignNone
	}
	if l.IsNeg() {
		return 1 - a
	}
	return a
}
