package hpmc

import "testing"

func TestLit_Encoding(t *testing.T) {
	if PosLit(3).Var() != 3 || NegLit(3).Var() != 3 {
		t.Error("Var() does not invert literal construction")
	}
	if PosLit(3).IsNeg() || !NegLit(3).IsNeg() {
		t.Error("IsNeg() wrong")
	}
	if PosLit(5).Neg() != NegLit(5) || NegLit(5).Neg() != PosLit(5) {
		t.Error("Neg() does not complement")
	}
}

func TestEncoding_BinaryRegisteredInBothRows(t *testing.T) {
	e := NewEncoding(4, 4)
	e.Reset(3)
	// GIVEN a binary clause added with the higher variable first
	e.AddBinary(NegLit(2), PosLit(0))

	// THEN both rows hold it, canonicalized to the smaller variable first
	for _, v := range []int{0, 2} {
		if e.NClauses(v) != 1 {
			t.Fatalf("row %d has %d clauses, want 1", v, e.NClauses(v))
		}
		l1, l2 := e.Clause(v, 0)
		if l1 != PosLit(0) || l2 != NegLit(2) {
			t.Errorf("row %d clause = (%v,%v), want (PosLit(0),NegLit(2))", v, l1, l2)
		}
	}
	if e.NClauses(1) != 0 {
		t.Errorf("row 1 has %d clauses, want 0", e.NClauses(1))
	}
}

func TestEncoding_UnitUsesSentinelSlot(t *testing.T) {
	e := NewEncoding(2, 2)
	e.Reset(1)
	e.AddUnit(0, NegLit(0))
	l1, l2 := e.Clause(0, 0)
	if l1 != NegLit(0) || l2 != LitNone {
		t.Errorf("unit stored as (%v,%v), want (NegLit(0),LitNone)", l1, l2)
	}
}

func TestEncoding_OverflowDemandsReallocation(t *testing.T) {
	// GIVEN a store with room for 2 clauses per variable
	e := NewEncoding(2, 2)
	e.Reset(1)
	for k := 0; k < 5; k++ {
		e.AddUnit(0, NegLit(0))
	}
	// THEN stored clauses are capped, nothing is silently truncated without
	// the reallocation demand being recorded
	if e.NClauses(0) != 2 {
		t.Errorf("stored clauses = %d, want capacity 2", e.NClauses(0))
	}
	if !e.CheckReallocate() {
		t.Fatal("CheckReallocate must report growth after overflow")
	}
	// WHEN the encode step reruns, all clauses fit
	e.Reset(1)
	for k := 0; k < 5; k++ {
		e.AddUnit(0, NegLit(0))
	}
	if e.CheckReallocate() {
		t.Error("second CheckReallocate should not grow again")
	}
	if e.NClauses(0) != 5 {
		t.Errorf("stored clauses after regrow = %d, want 5", e.NClauses(0))
	}
}

func TestEncoding_InequalityOverflowDemandsReallocation(t *testing.T) {
	e := NewEncoding(2, 1)
	e.Reset(2)
	e.AddInequalityTerm(0, 3, PosLit(1))
	e.AddInequalityTerm(0, -2, NegLit(1))
	if e.NTerms(0) != 1 {
		t.Errorf("stored terms = %d, want capacity 1", e.NTerms(0))
	}
	if !e.CheckReallocate() {
		t.Fatal("CheckReallocate must report growth after term overflow")
	}
	e.Reset(2)
	e.AddInequalityTerm(0, 3, PosLit(1))
	e.AddInequalityTerm(0, -2, NegLit(1))
	if e.CheckReallocate() {
		t.Error("terms should fit after regrow")
	}
	c, l := e.Term(0, 1)
	if c != -2 || l != NegLit(1) {
		t.Errorf("Term(0,1) = (%d,%v), want (-2,NegLit(1))", c, l)
	}
}

func TestEncoding_ResetClearsState(t *testing.T) {
	e := NewEncoding(2, 2)
	e.Reset(2)
	e.AddUnit(1, NegLit(1))
	e.SetRHS(1, 7)
	e.Reset(2)
	if e.NClauses(1) != 0 || e.RHS(1) != 0 {
		t.Error("Reset did not clear clause counts and RHS")
	}
}
