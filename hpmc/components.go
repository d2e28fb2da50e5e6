package hpmc

import "sync/atomic"

// componentSet holds the connected components of the constraint graph in
// compressed form: compID maps variables to dense component indices and
// members lists each component's variables grouped by CSR offsets.
type componentSet struct {
	ncomp   int
	compID  []int32
	rowPtr  []int32
	members []int32
}

// Members returns the variables of component c.
func (cs *componentSet) Members(c int) []int32 {
	return cs.members[cs.rowPtr[c]:cs.rowPtr[c+1]]
}

// unionFind is a lock-free disjoint-set forest over int32 elements. Merge
// uses CAS with union by minimum root; Find applies path halving, which is
// safe under concurrent reads because parent pointers only ever move toward
// the root.
type unionFind struct {
	parent []int32
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int32, n)}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

func (uf *unionFind) Find(x int32) int32 {
	for {
		p := atomic.LoadInt32(&uf.parent[x])
		if p == x {
			return x
		}
		gp := atomic.LoadInt32(&uf.parent[p])
		if gp != p {
			atomic.CompareAndSwapInt32(&uf.parent[x], p, gp)
		}
		x = gp
	}
}

// Merge joins the sets of a and b, directing the larger root under the
// smaller so results are independent of merge order.
func (uf *unionFind) Merge(a, b int32) {
	for {
		ra, rb := uf.Find(a), uf.Find(b)
		if ra == rb {
			return
		}
		if ra > rb {
			ra, rb = rb, ra
		}
		if atomic.CompareAndSwapInt32(&uf.parent[rb], rb, ra) {
			return
		}
	}
}

// buildComponents partitions the variables into connected components of the
// constraint graph. Two variables are connected when a binary clause or an
// inequality term links them; unit clauses do not create edges. Merging
// runs in parallel over the partition shards; the CSR assembly is a cheap
// sequential pass.
func buildComponents(enc *Encoding, part Partition) *componentSet {
	nvar := enc.NVar()
	uf := newUnionFind(nvar)

	part.ParallelFor(func(shard, begin, end int) {
		for v := begin; v < end; v++ {
			for k := 0; k < enc.NClauses(v); k++ {
				l1, l2 := enc.Clause(v, k)
				if l2 == LitNone {
					continue
				}
				// binaries are stored in both rows; merging twice is idempotent
				uf.Merge(int32(l1.Var()), int32(l2.Var()))
			}
			for k := 0; k < enc.NTerms(v); k++ {
				_, l := enc.Term(v, k)
				if l.Var() != v {
					uf.Merge(int32(v), int32(l.Var()))
				}
			}
		}
	})

	cs := &componentSet{compID: make([]int32, nvar)}

	// dense component ids in root order
	rootToComp := make([]int32, nvar)
	for i := range rootToComp {
		rootToComp[i] = -1
	}
	for v := 0; v < nvar; v++ {
		r := uf.Find(int32(v))
		if rootToComp[r] < 0 {
			rootToComp[r] = int32(cs.ncomp)
			cs.ncomp++
		}
		cs.compID[v] = rootToComp[r]
	}

	// CSR: count, prefix sum, fill
	cs.rowPtr = make([]int32, cs.ncomp+1)
	for v := 0; v < nvar; v++ {
		cs.rowPtr[cs.compID[v]+1]++
	}
	for c := 0; c < cs.ncomp; c++ {
		cs.rowPtr[c+1] += cs.rowPtr[c]
	}
	cs.members = make([]int32, nvar)
	fill := make([]int32, cs.ncomp)
	for v := 0; v < nvar; v++ {
		c := cs.compID[v]
		cs.members[cs.rowPtr[c]+fill[c]] = int32(v)
		fill[c]++
	}
	return cs
}
