package hpmc

import "sync/atomic"

// === Literals ===

// Lit encodes a literal over the per-particle accept variables: variable v
// asserted positively is 2v, negated is 2v+1. Variable v true means the
// trial move of particle v is accepted.
type Lit uint32

// LitNone marks an unused literal slot (the second slot of a unit clause).
const LitNone = ^Lit(0)

// PosLit returns the positive literal of variable v.
func PosLit(v int) Lit { return Lit(2 * uint32(v)) }

// NegLit returns the negated literal of variable v.
func NegLit(v int) Lit { return Lit(2*uint32(v) + 1) }

// Var returns the variable of l.
func (l Lit) Var() int { return int(l >> 1) }

// IsNeg reports whether l is negated.
func (l Lit) IsNeg() bool { return l&1 == 1 }

// Neg returns the complement of l.
func (l Lit) Neg() Lit { return l ^ 1 }

// === Clause and inequality storage ===

// Encoding stores the constraint system built by the encode stages: unit
// and binary clauses plus one pseudo-Boolean inequality per variable, in
// flat per-variable rows so concurrent workers append without locks.
//
// Each variable owns maxNLiterals clause slots of two literals each. Units
// occupy one slot as (l, LitNone); binaries are registered in the rows of
// BOTH their variables, canonicalized so the first literal has the smaller
// variable. Row counters are advanced with atomic adds. A full row does not
// truncate: the worker records the demanded capacity in an atomic-max
// register and the whole encode step is re-run after CheckReallocate grows
// the rows, so no clause is ever silently dropped.
type Encoding struct {
	nvar         int
	maxNLiterals int

	// literals holds nvar rows of maxNLiterals slots of 2 literals.
	literals  []Lit
	nLiterals []uint32 // per-variable slot counts, atomic

	// reqNLiterals records the largest per-variable slot demand seen during
	// an overflowing encode step, atomic max.
	reqNLiterals uint32

	// one inequality per variable: sum coeff_k * lit_k <= rhs
	maxNTerms int
	ineqLits  []Lit
	coeff     []int64
	nTerms    []uint32 // per-variable term counts, atomic
	rhs       []int64
	reqNTerms uint32
}

// NewEncoding creates an encoding store with initial per-variable
// capacities.
func NewEncoding(maxNLiterals, maxNTerms int) *Encoding {
	if maxNLiterals < 1 {
		maxNLiterals = 1
	}
	if maxNTerms < 1 {
		maxNTerms = 1
	}
	return &Encoding{maxNLiterals: maxNLiterals, maxNTerms: maxNTerms}
}

// Reset clears the store for nvar variables, growing backing arrays as
// needed. Called at the start of every encode attempt.
func (e *Encoding) Reset(nvar int) {
	e.nvar = nvar
	e.reqNLiterals = 0
	e.reqNTerms = 0

	nslots := nvar * e.maxNLiterals * 2
	if cap(e.literals) < nslots {
		e.literals = make([]Lit, nslots)
	} else {
		e.literals = e.literals[:nslots]
	}
	if cap(e.nLiterals) < nvar {
		e.nLiterals = make([]uint32, nvar)
	} else {
		e.nLiterals = e.nLiterals[:nvar]
		for i := range e.nLiterals {
			e.nLiterals[i] = 0
		}
	}

	nterms := nvar * e.maxNTerms
	if cap(e.ineqLits) < nterms {
		e.ineqLits = make([]Lit, nterms)
		e.coeff = make([]int64, nterms)
	} else {
		e.ineqLits = e.ineqLits[:nterms]
		e.coeff = e.coeff[:nterms]
	}
	if cap(e.nTerms) < nvar {
		e.nTerms = make([]uint32, nvar)
		e.rhs = make([]int64, nvar)
	} else {
		e.nTerms = e.nTerms[:nvar]
		e.rhs = e.rhs[:nvar]
		for i := range e.nTerms {
			e.nTerms[i] = 0
			e.rhs[i] = 0
		}
	}
}

// NVar returns the number of variables covered by the last Reset.
func (e *Encoding) NVar() int { return e.nvar }

// AddUnit appends the unit clause (l) to the row of variable v. Safe for
// concurrent use by workers writing distinct or shared rows.
func (e *Encoding) AddUnit(v int, l Lit) {
	slot := atomic.AddUint32(&e.nLiterals[v], 1) - 1
	if slot >= uint32(e.maxNLiterals) {
		atomicMax(&e.reqNLiterals, slot+1)
		return
	}
	base := (v*e.maxNLiterals + int(slot)) * 2
	e.literals[base] = l
	e.literals[base+1] = LitNone
}

// AddBinary appends the binary clause (l1 v l2) to the rows of both its
// variables, canonicalized so the stored first literal has the smaller
// variable. The solver processes each binary once by acting only on the
// row whose variable matches the first literal.
func (e *Encoding) AddBinary(l1, l2 Lit) {
	if l2.Var() < l1.Var() {
		l1, l2 = l2, l1
	}
	e.addClause(l1.Var(), l1, l2)
	e.addClause(l2.Var(), l1, l2)
}

func (e *Encoding) addClause(v int, l1, l2 Lit) {
	slot := atomic.AddUint32(&e.nLiterals[v], 1) - 1
	if slot >= uint32(e.maxNLiterals) {
		atomicMax(&e.reqNLiterals, slot+1)
		return
	}
	base := (v*e.maxNLiterals + int(slot)) * 2
	e.literals[base] = l1
	e.literals[base+1] = l2
}

// Clause returns clause k of variable v's row.
func (e *Encoding) Clause(v, k int) (l1, l2 Lit) {
	base := (v*e.maxNLiterals + k) * 2
	return e.literals[base], e.literals[base+1]
}

// NClauses returns the number of clauses stored in variable v's row,
// clamped to capacity.
func (e *Encoding) NClauses(v int) int {
	n := int(atomic.LoadUint32(&e.nLiterals[v]))
	if n > e.maxNLiterals {
		n = e.maxNLiterals
	}
	return n
}

// AddInequalityTerm appends the term c*l to variable v's inequality.
func (e *Encoding) AddInequalityTerm(v int, c int64, l Lit) {
	slot := atomic.AddUint32(&e.nTerms[v], 1) - 1
	if slot >= uint32(e.maxNTerms) {
		atomicMax(&e.reqNTerms, slot+1)
		return
	}
	idx := v*e.maxNTerms + int(slot)
	e.coeff[idx] = c
	e.ineqLits[idx] = l
}

// SetRHS sets the right-hand side of variable v's inequality.
func (e *Encoding) SetRHS(v int, rhs int64) { e.rhs[v] = rhs }

// AddRHS atomically-unsafe accumulates into variable v's right-hand side;
// only the single worker owning variable v may call it.
func (e *Encoding) AddRHS(v int, delta int64) { e.rhs[v] += delta }

// RHS returns the right-hand side of variable v's inequality.
func (e *Encoding) RHS(v int) int64 { return e.rhs[v] }

// Term returns term k of variable v's inequality.
func (e *Encoding) Term(v, k int) (c int64, l Lit) {
	idx := v*e.maxNTerms + k
	return e.coeff[idx], e.ineqLits[idx]
}

// NTerms returns the number of terms in variable v's inequality, clamped
// to capacity.
func (e *Encoding) NTerms(v int) int {
	n := int(atomic.LoadUint32(&e.nTerms[v]))
	if n > e.maxNTerms {
		n = e.maxNTerms
	}
	return n
}

// CheckReallocate grows row capacities to any demand recorded during the
// last encode attempt and reports whether a grow happened, in which case
// the encode step must be re-run from Reset.
func (e *Encoding) CheckReallocate() bool {
	grew := false
	if req := int(atomic.LoadUint32(&e.reqNLiterals)); req > e.maxNLiterals {
		e.maxNLiterals = req
		grew = true
	}
	if req := int(atomic.LoadUint32(&e.reqNTerms)); req > e.maxNTerms {
		e.maxNTerms = req
		grew = true
	}
	return grew
}

// atomicMax raises *addr to v if v is larger.
func atomicMax(addr *uint32, v uint32) {
	for {
		cur := atomic.LoadUint32(addr)
		if v <= cur || atomic.CompareAndSwapUint32(addr, cur, v) {
			return
		}
	}
}
