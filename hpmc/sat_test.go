package hpmc

import (
	"testing"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// solveAll runs the component solver over a fresh encoding and returns the
// per-variable rejection flags.
func solveAll(t *testing.T, e *Encoding, ranks []int) []bool {
	t.Helper()
	n := e.NVar()
	order := NewUpdateOrder(0, n)
	// impose the requested ranks through the identity or reversed order
	if ranks != nil {
		identity := true
		for i, r := range ranks {
			if r != i {
				identity = false
			}
		}
		if !identity {
			order.reversed = true
		}
	}
	cs := buildComponents(e, NewPartition(n, 2))
	assign := make([]int8, n)
	reject := make([]bool, n)
	if err := solveComponents(e, cs, order, NewPartition(cs.ncomp, 2), assign, reject); err != nil {
		t.Fatalf("solveComponents: %v", err)
	}
	return reject
}

func TestSolve_NoConstraintsAcceptsAll(t *testing.T) {
	e := NewEncoding(4, 4)
	e.Reset(3)
	reject := solveAll(t, e, nil)
	for v, r := range reject {
		if r {
			t.Errorf("variable %d rejected without constraints", v)
		}
	}
}

func TestSolve_UnitPropagatesThroughImplication(t *testing.T) {
	// GIVEN !a0 and (a0 v !a1): rejecting 0 must reject 1
	e := NewEncoding(4, 4)
	e.Reset(2)
	e.AddUnit(0, NegLit(0))
	e.AddBinary(PosLit(0), NegLit(1))
	reject := solveAll(t, e, nil)
	if !reject[0] || !reject[1] {
		t.Errorf("reject = %v, want both true", reject)
	}
}

func TestSolve_MutualExclusionLowerRankWins(t *testing.T) {
	// GIVEN (!a0 v !a1) with 0 ranked first
	e := NewEncoding(4, 4)
	e.Reset(2)
	e.AddBinary(NegLit(0), NegLit(1))
	reject := solveAll(t, e, []int{0, 1})
	if reject[0] || !reject[1] {
		t.Errorf("reject = %v, want [false true]", reject)
	}

	// WHEN the ranks flip, the winner flips
	e.Reset(2)
	e.AddBinary(NegLit(0), NegLit(1))
	reject = solveAll(t, e, []int{1, 0})
	if !reject[0] || reject[1] {
		t.Errorf("reversed reject = %v, want [true false]", reject)
	}
}

func TestSolve_InequalityForcesRejection(t *testing.T) {
	// GIVEN 5*a1 + 5*a2 <= 7 conditioned on a0 through an activation term
	e := NewEncoding(4, 4)
	e.Reset(3)
	e.AddInequalityTerm(0, 5, PosLit(1))
	e.AddInequalityTerm(0, 5, PosLit(2))
	e.AddInequalityTerm(0, -11, NegLit(0))
	e.SetRHS(0, 7)
	reject := solveAll(t, e, []int{0, 1, 2})

	// THEN 0 and 1 are accepted in rank order and the inequality forces 2
	if reject[0] || reject[1] {
		t.Errorf("reject = %v, want 0 and 1 accepted", reject)
	}
	if !reject[2] {
		t.Error("inequality should have rejected variable 2")
	}
}

func TestSolve_InequalityDeactivatedByRejection(t *testing.T) {
	// GIVEN the same inequality but variable 0 rejected by a unit clause
	e := NewEncoding(4, 4)
	e.Reset(3)
	e.AddUnit(0, NegLit(0))
	e.AddInequalityTerm(0, 5, PosLit(1))
	e.AddInequalityTerm(0, 5, PosLit(2))
	e.AddInequalityTerm(0, -11, NegLit(0))
	e.SetRHS(0, 7)
	reject := solveAll(t, e, []int{0, 1, 2})

	// THEN the activation term absorbs the bound and 1, 2 stay accepted
	if !reject[0] || reject[1] || reject[2] {
		t.Errorf("reject = %v, want [true false false]", reject)
	}
}

func TestSolve_ConflictIsAnError(t *testing.T) {
	// contradictory units cannot come out of a well-formed encode step
	e := NewEncoding(4, 4)
	e.Reset(1)
	e.AddUnit(0, NegLit(0))
	e.AddUnit(0, PosLit(0))
	cs := buildComponents(e, NewPartition(1, 1))
	assign := make([]int8, 1)
	reject := make([]bool, 1)
	if err := solveComponents(e, cs, NewUpdateOrder(0, 1), NewPartition(1, 1), assign, reject); err == nil {
		t.Fatal("expected conflict error")
	}
}

// TestSolve_AgainstReferenceSolver cross-checks the component solver's
// assignment against an independent CDCL solver on a randomized clause set:
// the assignment must be a model of the same formula.
func TestSolve_AgainstReferenceSolver(t *testing.T) {
	const n = 24
	for seed := uint64(0); seed < 10; seed++ {
		e := NewEncoding(8, 4)
		type clause struct{ l1, l2 Lit }
		var clauses []clause

		// encode under the same reallocate-and-retry protocol as the
		// update loop: a dense clause set may overflow the initial row
		// capacity, in which case the whole pass is regenerated from the
		// same stream after the rows have grown
		for {
			e.Reset(n)
			clauses = clauses[:0]
			rng := NewStream(seed, StreamShuffle, 999)

			// sprinkle implication-shaped binaries the narrow phase could emit
			for k := 0; k < 2*n; k++ {
				i, j := rng.Intn(n), rng.Intn(n)
				if i == j {
					continue
				}
				var l1, l2 Lit
				switch rng.Intn(3) {
				case 0:
					l1, l2 = NegLit(i), NegLit(j)
				case 1:
					// positive literals always sit on the earlier-ranked
					// variable, as the narrow phase emits them
					if j < i {
						i, j = j, i
					}
					l1, l2 = PosLit(i), NegLit(j)
				default:
					// unit rejection
					e.AddUnit(i, NegLit(i))
					clauses = append(clauses, clause{NegLit(i), LitNone})
					continue
				}
				e.AddBinary(l1, l2)
				clauses = append(clauses, clause{l1, l2})
			}
			if !e.CheckReallocate() {
				break
			}
		}

		reject := solveAll(t, e, nil)

		// the assignment satisfies every clause directly
		val := func(l Lit) bool {
			accepted := !reject[l.Var()]
			if l.IsNeg() {
				return !accepted
			}
			return accepted
		}
		for _, c := range clauses {
			if c.l2 == LitNone {
				if !val(c.l1) {
					t.Fatalf("seed %d: unit clause unsatisfied", seed)
				}
				continue
			}
			if !val(c.l1) && !val(c.l2) {
				t.Fatalf("seed %d: clause (%v,%v) unsatisfied", seed, c.l1, c.l2)
			}
		}

		// and the reference solver agrees it is a model
		g := gini.New()
		toZ := func(l Lit) z.Lit {
			d := l.Var() + 1
			if l.IsNeg() {
				d = -d
			}
			return z.Dimacs2Lit(d)
		}
		for _, c := range clauses {
			g.Add(toZ(c.l1))
			if c.l2 != LitNone {
				g.Add(toZ(c.l2))
			}
			g.Add(z.LitNull)
		}
		for v := 0; v < n; v++ {
			if reject[v] {
				g.Assume(toZ(NegLit(v)))
			} else {
				g.Assume(toZ(PosLit(v)))
			}
		}
		if g.Solve() != 1 {
			t.Fatalf("seed %d: reference solver rejects the assignment", seed)
		}
	}
}
