package hpmc

import (
	"fmt"
	"runtime"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
	"github.com/hpmc-sim/hpmc-sim/hpmc/shape"

	"github.com/sirupsen/logrus"
)

// encodeRetryLimit bounds the reallocate-and-retry loop of one encode step.
// Row demand is recorded exactly during an overflowing attempt, so a second
// attempt normally suffices; exhausting the bound means demand keeps
// growing, which a deterministic re-encode cannot cause.
const encodeRetryLimit = 8

// Integrator advances a hard-particle Monte Carlo system by whole sweeps:
// every local particle proposes a trial move, the moves' pairwise conflicts
// are encoded as a Boolean constraint system, and a per-component solver
// decides which moves commit. One Update call performs nselect passes.
type Integrator struct {
	pd    *ParticleData
	comm  Communicator
	cl    *CellList
	enc   *Encoding
	order *UpdateOrder
	seed  uint64

	params   []shape.Params
	d        []float64
	a        []float64
	fugacity []float64
	nTrial   int
	patch    PatchEnergy

	// moveRatio is the translation probability in 1/65536 units
	moveRatio uint32
	nselect   int
	maxShards int

	trialPos        []geom.Vec3
	trialOrient     []geom.Quat
	moveType        []byte
	rejectOutOfCell []bool
	rejectOut       []int32
	deltaFInt       []int64
	assign          []int8
	reject          []bool

	excell    [][]int
	excellDim [3]int

	tunerMoves      *Autotuner
	tunerNarrow     *Autotuner
	tunerDepletants *Autotuner
	tunerComponents *Autotuner
	tunerSAT        *Autotuner
	tunerUpdate     *Autotuner

	counters      Counters
	countersStart Counters
	implicit      ImplicitCounters
	implicitStart ImplicitCounters

	unsubscribeTypes func()
}

// New creates an integrator over pd. A nil comm runs single-domain.
func New(pd *ParticleData, comm Communicator, seed uint64) *Integrator {
	if comm == nil {
		comm = nopCommunicator{}
	}
	it := &Integrator{
		pd:        pd,
		comm:      comm,
		cl:        &CellList{},
		enc:       NewEncoding(8, 8),
		order:     NewUpdateOrder(seed, pd.N()),
		seed:      seed,
		moveRatio: moveRatioScale / 2,
		nselect:   4,
		maxShards: runtime.GOMAXPROCS(0),
	}
	it.cl.SetSortCells(true)
	it.resizeTypeArrays()
	it.unsubscribeTypes = pd.OnNTypesChange(it.resizeTypeArrays)

	candidates := TppListPow2(uint(2 * it.maxShards))
	for _, t := range []struct {
		dst  **Autotuner
		name string
	}{
		{&it.tunerMoves, "moves"},
		{&it.tunerNarrow, "narrow"},
		{&it.tunerDepletants, "depletants"},
		{&it.tunerComponents, "components"},
		{&it.tunerSAT, "sat"},
		{&it.tunerUpdate, "update"},
	} {
		tuner, err := NewAutotuner(candidates, 5, 1000, t.name)
		if err != nil {
			panic(err)
		}
		*t.dst = tuner
	}
	return it
}

// Close releases the type-table observer registration.
func (it *Integrator) Close() {
	if it.unsubscribeTypes != nil {
		it.unsubscribeTypes()
		it.unsubscribeTypes = nil
	}
}

// resizeTypeArrays grows the per-type parameter arrays to the current type
// table; runs on construction and whenever a type is added.
func (it *Integrator) resizeTypeArrays() {
	nt := it.pd.NTypes()
	for len(it.params) < nt {
		it.params = append(it.params, shape.Params{Kind: shape.KindSphere, Radius: 0.5})
	}
	for len(it.d) < nt {
		it.d = append(it.d, 0.1)
	}
	for len(it.a) < nt {
		it.a = append(it.a, 0.1)
	}
	for len(it.fugacity) < nt {
		it.fugacity = append(it.fugacity, 0)
	}
}

// SetParams sets the shape of the named type.
func (it *Integrator) SetParams(typeName string, p shape.Params) error {
	t, err := it.pd.TypeByName(typeName)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	it.params[t] = p
	return nil
}

// SetD sets the maximum translation displacement of the named type.
func (it *Integrator) SetD(typeName string, d float64) error {
	t, err := it.pd.TypeByName(typeName)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("integrator: negative displacement %g for type %s", d, typeName)
	}
	it.d[t] = d
	return nil
}

// SetA sets the maximum rotation angle of the named type, in radians.
func (it *Integrator) SetA(typeName string, a float64) error {
	t, err := it.pd.TypeByName(typeName)
	if err != nil {
		return err
	}
	if a < 0 {
		return fmt.Errorf("integrator: negative rotation angle %g for type %s", a, typeName)
	}
	it.a[t] = a
	return nil
}

// SetTranslationMoveProbability sets the probability of choosing a
// translation over a rotation for shapes with orientation.
func (it *Integrator) SetTranslationMoveProbability(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("integrator: translation move probability %g outside [0,1]", p)
	}
	it.moveRatio = uint32(p * moveRatioScale)
	return nil
}

// SetNSelect sets the number of full passes per Update call.
func (it *Integrator) SetNSelect(n int) error {
	if n < 1 {
		return fmt.Errorf("integrator: nselect %d must be at least 1", n)
	}
	it.nselect = n
	return nil
}

// SetFugacity sets the depletant fugacity of the named type. Zero disables
// depletant insertion for the type.
func (it *Integrator) SetFugacity(typeName string, z float64) error {
	t, err := it.pd.TypeByName(typeName)
	if err != nil {
		return err
	}
	it.fugacity[t] = z
	return nil
}

// SetNTrial selects the auxiliary depletant mode with n re-insertion trials
// per sample; zero selects the direct mode.
func (it *Integrator) SetNTrial(n int) error {
	if n < 0 {
		return fmt.Errorf("integrator: ntrial %d must not be negative", n)
	}
	it.nTrial = n
	return nil
}

// SetPatch installs a soft pair interaction; nil removes it.
func (it *Integrator) SetPatch(p PatchEnergy) { it.patch = p }

// Tuner returns the named stage autotuner for external control. Unknown
// names return nil.
func (it *Integrator) Tuner(name string) *Autotuner {
	switch name {
	case "moves":
		return it.tunerMoves
	case "narrow":
		return it.tunerNarrow
	case "depletants":
		return it.tunerDepletants
	case "components":
		return it.tunerComponents
	case "sat":
		return it.tunerSAT
	case "update":
		return it.tunerUpdate
	}
	return nil
}

// SetTunersEnabled enables or disables all stage autotuners.
func (it *Integrator) SetTunersEnabled(enabled bool) {
	for _, t := range []*Autotuner{it.tunerMoves, it.tunerNarrow, it.tunerDepletants, it.tunerComponents, it.tunerSAT, it.tunerUpdate} {
		t.SetEnabled(enabled)
	}
}

// Counters returns the trial-move statistics accumulated since the last
// ResetStats.
func (it *Integrator) Counters() Counters { return it.counters.Sub(it.countersStart) }

// ImplicitCounters returns the depletant insertion statistics accumulated
// since the last ResetStats.
func (it *Integrator) ImplicitCounters() ImplicitCounters { return it.implicit.Sub(it.implicitStart) }

// ResetStats zeroes the reported statistics.
func (it *Integrator) ResetStats() {
	it.countersStart = it.counters
	it.implicitStart = it.implicit
}

// nominalWidth returns the interaction width that bounds how far any pair
// influence reaches in one pass: the largest core circumsphere plus the
// largest single-move displacement, extended by the depletant and patch
// ranges.
func (it *Integrator) nominalWidth() float64 {
	maxDiam := 0.0
	for _, p := range it.params {
		if d := p.CircumsphereDiameter(); d > maxDiam {
			maxDiam = d
		}
	}
	depDiam := 0.0
	for t, z := range it.fugacity {
		if z != 0 {
			if d := it.params[t].CircumsphereDiameter(); d > depDiam {
				depDiam = d
			}
		}
	}
	w := maxDiam + depDiam
	if it.patch != nil {
		pr := it.patch.RCut()
		maxCut := 0.0
		for t := range it.params {
			if c := it.patch.AdditiveCutoff(t); c > maxCut {
				maxCut = c
			}
		}
		if pr+maxCut > w {
			w = pr + maxCut
		}
	}
	return w + it.maxMoveDisplacement()
}

// checkBox verifies the box can hold the interaction width: with fewer than
// two cells per periodic axis a particle could interact with its own image
// through both faces at once, which the encoding cannot represent.
func (it *Integrator) checkBox(width float64) error {
	box := it.pd.Box()
	d := box.NearestPlaneDistance()
	dist := [3]float64{d.X, d.Y, d.Z}
	for a := 0; a < 3; a++ {
		if a == 2 && box.Dim == 2 {
			continue
		}
		if box.Periodic[a] && dist[a] <= 2*width {
			return fmt.Errorf("integrator: box dimension %d (%g) too small for interaction width %g", a, dist[a], width)
		}
	}
	return nil
}

// grow resizes the per-particle scratch arrays to n.
func (it *Integrator) grow(n int) {
	if cap(it.trialPos) < n {
		it.trialPos = make([]geom.Vec3, n)
		it.trialOrient = make([]geom.Quat, n)
		it.moveType = make([]byte, n)
		it.rejectOutOfCell = make([]bool, n)
		it.rejectOut = make([]int32, n)
		it.deltaFInt = make([]int64, n)
		it.assign = make([]int8, n)
		it.reject = make([]bool, n)
		return
	}
	it.trialPos = it.trialPos[:n]
	it.trialOrient = it.trialOrient[:n]
	it.moveType = it.moveType[:n]
	it.rejectOutOfCell = it.rejectOutOfCell[:n]
	it.rejectOut = it.rejectOut[:n]
	it.deltaFInt = it.deltaFInt[:n]
	it.assign = it.assign[:n]
	it.reject = it.reject[:n]
}

// refreshExcell rebuilds the expanded cell list from the current binning.
// The slot array is reallocated only when the grid dimensions change; the
// contents are refilled after every Compute because accepted moves and
// grid shifts rebin particles, and stale member lists would silently drop
// overlap constraints.
func (it *Integrator) refreshExcell() {
	dim := it.cl.Dim()
	if it.excell == nil || dim != it.excellDim {
		it.excell = make([][]int, dim[0]*dim[1]*dim[2])
		it.excellDim = dim
	}
	fillExcell(it.cl, it.excell)
}

// stagePartition brackets one tuned stage: the tuner picks the shard
// count, the caller runs the stage between Begin and End.
func (it *Integrator) stagePartition(t *Autotuner, n int) Partition {
	shards := int(t.Param(0))
	if shards > it.maxShards*2 {
		shards = it.maxShards * 2
	}
	return NewPartition(n, shards)
}

// Update performs one timestep: nselect full trial-move passes followed by
// a global grid shift and a ghost exchange.
func (it *Integrator) Update(timestep uint64) error {
	width := it.nominalWidth()
	if err := it.checkBox(width); err != nil {
		return err
	}
	it.cl.SetNominalWidth(width)
	if err := it.cl.Compute(it.pd); err != nil {
		return err
	}
	it.refreshExcell()

	n := it.pd.N()
	it.grow(n)
	it.order.Resize(n)

	for pass := 0; pass < it.nselect; pass++ {
		if err := it.runPass(timestep, uint64(pass)); err != nil {
			return err
		}
		// re-bin for the next pass; accepted moves changed cell membership
		if pass < it.nselect-1 {
			if err := it.cl.Compute(it.pd); err != nil {
				return err
			}
			it.refreshExcell()
		}
	}

	// shift the cell grid origin so cell boundaries do not pin the
	// stationary distribution
	shiftRng := NewStream(it.seed, StreamShift, timestep)
	shift := geom.Vec3{
		X: (2*shiftRng.Float64() - 1) * width / 2,
		Y: (2*shiftRng.Float64() - 1) * width / 2,
		Z: (2*shiftRng.Float64() - 1) * width / 2,
	}
	if it.pd.Box().Dim == 2 {
		shift.Z = 0
	}
	it.pd.TranslateOrigin(shift)

	return it.comm.Exchange(it.pd, true)
}

// runPass executes one full trial-move pass.
func (it *Integrator) runPass(timestep, pass uint64) error {
	n := it.pd.N()
	if n == 0 {
		return nil
	}
	it.order.Shuffle(timestep, pass)

	it.tunerMoves.Begin()
	it.proposeMoves(timestep, pass, it.stagePartition(it.tunerMoves, n))
	it.tunerMoves.End()

	var narrowCounters []Counters
	var implicitCounters []ImplicitCounters
	encoded := false
	for try := 0; try < encodeRetryLimit; try++ {
		it.enc.Reset(n)
		for i := 0; i < n; i++ {
			it.rejectOut[i] = 0
		}

		it.tunerNarrow.Begin()
		narrowPart := it.stagePartition(it.tunerNarrow, n)
		narrowCounters = make([]Counters, narrowPart.NumShards())
		it.narrowPhase(it.excell, narrowPart, narrowCounters)
		it.tunerNarrow.End()

		it.tunerDepletants.Begin()
		depPart := it.stagePartition(it.tunerDepletants, n)
		implicitCounters = make([]ImplicitCounters, depPart.NumShards())
		it.encodeDepletants(timestep, pass, it.excell, depPart, implicitCounters)
		it.tunerDepletants.End()

		it.encodePatch(timestep, pass, it.excell, it.stagePartition(it.tunerNarrow, n))
		it.completeCNF(NewPartition(n, it.maxShards))

		if !it.enc.CheckReallocate() {
			encoded = true
			break
		}
		logrus.Debugf("encode overflow at timestep %d pass %d, retry %d", timestep, pass, try+1)
	}
	if !encoded {
		return fmt.Errorf("integrator: encode capacity did not converge after %d retries", encodeRetryLimit)
	}

	it.tunerComponents.Begin()
	compPart := it.stagePartition(it.tunerComponents, n)
	cs := buildComponents(it.enc, compPart)
	it.tunerComponents.End()

	it.tunerSAT.Begin()
	err := solveComponents(it.enc, cs, it.order, it.stagePartition(it.tunerSAT, cs.ncomp), it.assign, it.reject)
	it.tunerSAT.End()
	if err != nil {
		return err
	}

	it.tunerUpdate.Begin()
	updatePart := it.stagePartition(it.tunerUpdate, n)
	updateCounters := make([]Counters, updatePart.NumShards())
	updatePart.ParallelFor(func(shard, begin, end int) {
		c := &updateCounters[shard]
		for i := begin; i < end; i++ {
			if it.reject[i] {
				if it.moveType[i] == moveTranslate {
					c.TranslateReject++
				} else {
					c.RotateReject++
				}
				if it.rejectOutOfCell[i] {
					c.OutOfCellReject++
				}
				continue
			}
			it.pd.SetPos(i, it.pd.Box().Wrap(it.trialPos[i]))
			it.pd.SetOrientation(i, it.trialOrient[i])
			if it.moveType[i] == moveTranslate {
				c.TranslateAccept++
			} else {
				c.RotateAccept++
			}
		}
	})
	it.tunerUpdate.End()

	for _, c := range narrowCounters {
		it.counters.Add(c)
	}
	for _, c := range updateCounters {
		it.counters.Add(c)
	}
	for _, c := range implicitCounters {
		it.implicit.Add(c)
	}
	return nil
}
