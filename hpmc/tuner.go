package hpmc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// TunerMode selects how the samples of one candidate are condensed into a
// single figure of merit.
type TunerMode int

const (
	// TunerModeMedian is robust against scheduler noise (default).
	TunerModeMedian TunerMode = iota
	// TunerModeMean suits bimodal stage runtimes (variable-size input).
	TunerModeMean
)

type tunerState int

const (
	tunerStartup tunerState = iota // initial sweep over all candidates
	tunerIdle                      // best candidate fixed, counting calls
	tunerScanning                  // periodic re-sweep
)

// Autotuner selects a launch parameter (shard count, work granularity) for
// one pipeline stage by timing the stage under every candidate value and
// fixing on the fastest. Begin and End must bracket exactly the work being
// timed; Param(dim) returns the value to use for the next launch. After the
// initial sweep completes (nsamples per candidate, odd for a median) the
// tuner re-scans every period calls to adapt to changing conditions.
//
// An external controller thread may Attach to the tuner and drive the
// parameter choice itself through Measure, which blocks until the execution
// thread's Begin/End pair has supplied the corresponding timing, and ends
// control with SetOptimalParameter.
type Autotuner struct {
	name     string
	params   [][]uint // candidate parameter vectors, n-dimensional
	ndim     int
	nsamples int
	period   int
	mode     TunerMode
	enabled  bool

	state          tunerState
	currentElement int
	currentSample  int
	calls          int
	current        []uint
	samples        [][]float64 // seconds, per candidate

	// external-control protocol
	mu         sync.Mutex
	cv         *sync.Cond
	attached   bool
	haveParam  bool
	haveTiming bool
	pending    []uint
	lastSample float64

	timing  bool
	started time.Time
}

// NewAutotuner constructs a one-dimensional tuner from an explicit
// candidate list. nsamples is forced odd so the median is a sample.
func NewAutotuner(params []uint, nsamples, period int, name string) (*Autotuner, error) {
	vecs := make([][]uint, len(params))
	for i, p := range params {
		vecs[i] = []uint{p}
	}
	return NewAutotunerND(vecs, nsamples, period, name)
}

// NewAutotunerRange constructs a one-dimensional tuner over the values
// start, start+step, ..., end (inclusive).
func NewAutotunerRange(start, end, step uint, nsamples, period int, name string) (*Autotuner, error) {
	if step == 0 || end < start {
		return nil, fmt.Errorf("autotuner %s: invalid range [%d,%d] step %d", name, start, end, step)
	}
	var params []uint
	for v := start; v <= end; v += step {
		params = append(params, v)
	}
	return NewAutotuner(params, nsamples, period, name)
}

// NewAutotunerND constructs a tuner from an explicit list of n-dimensional
// candidate vectors. Constructing with zero candidates is invalid input.
func NewAutotunerND(params [][]uint, nsamples, period int, name string) (*Autotuner, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("autotuner %s: no valid parameters", name)
	}
	ndim := len(params[0])
	for _, p := range params {
		if len(p) != ndim {
			return nil, fmt.Errorf("autotuner %s: mixed parameter dimensionality", name)
		}
	}
	if nsamples < 1 {
		nsamples = 1
	}
	if nsamples%2 == 0 {
		nsamples++
	}
	t := &Autotuner{
		name:     name,
		params:   params,
		ndim:     ndim,
		nsamples: nsamples,
		period:   period,
		enabled:  true,
		state:    tunerStartup,
		current:  append([]uint(nil), params[0]...),
		samples:  make([][]float64, len(params)),
	}
	t.cv = sync.NewCond(&t.mu)
	return t, nil
}

// TppListPow2 returns the work-subdivision candidates {1, 2, 4, ..., max},
// used to build composite candidate sets for pair-parallel stages.
func TppListPow2(max uint) []uint {
	v := []uint{1}
	for s := uint(2); s <= max; s *= 2 {
		v = append(v, s)
	}
	return v
}

// Param returns component dim of the parameter to use for the next launch.
// dim out of range is a programming error and panics.
func (t *Autotuner) Param(dim int) uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dim < 0 || dim >= t.ndim {
		panic(fmt.Sprintf("autotuner %s: parameter dimension %d out of range [0,%d)", t.name, dim, t.ndim))
	}
	return t.current[dim]
}

// Begin starts timing the stage launch. When attached it blocks until the
// controller supplies a parameter through Measure.
func (t *Autotuner) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached {
		for t.attached && !t.haveParam {
			t.cv.Wait()
		}
		if t.haveParam {
			copy(t.current, t.pending)
			t.timing = true
			t.started = time.Now()
		}
		return
	}
	if t.enabled && t.state != tunerIdle {
		t.timing = true
		t.started = time.Now()
	}
}

// End stops the timer and advances the tuning state machine.
func (t *Autotuner) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timing {
		elapsed := time.Since(t.started).Seconds()
		t.timing = false
		if t.attached {
			t.lastSample = elapsed
			t.haveTiming = true
			t.haveParam = false
			t.cv.Broadcast()
			return
		}
		t.recordSample(elapsed)
	}
	if t.state == tunerIdle && t.enabled && t.period > 0 {
		t.calls++
		if t.calls >= t.period {
			t.calls = 0
			t.startScan()
		}
	}
}

// recordSample files one timing for the current candidate and advances the
// sweep; when every candidate holds nsamples samples the tuner fixes on the
// optimum.
func (t *Autotuner) recordSample(seconds float64) {
	e := t.currentElement
	t.samples[e] = append(t.samples[e], seconds)
	t.currentSample++
	if t.currentSample < t.nsamples {
		return
	}
	t.currentSample = 0
	t.currentElement++
	if t.currentElement < len(t.params) {
		copy(t.current, t.params[t.currentElement])
		return
	}
	// sweep complete
	best := t.computeOptimal()
	copy(t.current, t.params[best])
	t.state = tunerIdle
	t.calls = 0
	logrus.Debugf("autotuner %s: optimal parameter %v", t.name, t.current)
}

// computeOptimal returns the candidate index with the lowest condensed
// sample time.
func (t *Autotuner) computeOptimal() int {
	best := 0
	bestTime := t.condense(0)
	for e := 1; e < len(t.params); e++ {
		if v := t.condense(e); v < bestTime {
			best, bestTime = e, v
		}
	}
	return best
}

func (t *Autotuner) condense(element int) float64 {
	s := t.samples[element]
	if len(s) == 0 {
		return 0
	}
	if t.mode == TunerModeMean {
		return stat.Mean(s, nil)
	}
	sorted := append([]float64(nil), s...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func (t *Autotuner) startScan() {
	t.state = tunerScanning
	t.currentElement = 0
	t.currentSample = 0
	for e := range t.samples {
		t.samples[e] = t.samples[e][:0]
	}
	copy(t.current, t.params[0])
	// scanning reuses the startup bookkeeping; recordSample returns the
	// state to idle once the re-sweep finishes
	t.state = tunerStartup
}

// IsComplete reports whether the initial sweep has finished.
func (t *Autotuner) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != tunerStartup
}

// SetEnabled enables or disables sampling. Disabling before the first sweep
// completes freezes the first candidate and logs a warning.
func (t *Autotuner) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if !enabled && t.state == tunerStartup {
		logrus.Warnf("autotuner %s disabled before initial sweep completed; using first parameter %v", t.name, t.params[0])
		copy(t.current, t.params[0])
		t.state = tunerIdle
	}
}

// SetPeriod changes the number of calls between re-scans.
func (t *Autotuner) SetPeriod(period int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = period
}

// SetMode switches between median and mean sample condensation.
func (t *Autotuner) SetMode(mode TunerMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
}

// === External control API ===

// Attach yields parameter selection to a controlling thread. Must be
// called while the stage is not executing. Subsequent Begin calls block
// until Measure supplies a parameter.
func (t *Autotuner) Attach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached = true
	t.haveParam = false
	t.haveTiming = false
}

// Measure supplies the parameter for the next stage launch and blocks
// until that launch's timing has been recorded by the execution thread's
// Begin/End pair. It returns the elapsed stage time in seconds. Intended
// to be called from the controlling thread only.
func (t *Autotuner) Measure(param []uint) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(param) != t.ndim {
		panic(fmt.Sprintf("autotuner %s: measure with %d-dimensional parameter, want %d", t.name, len(param), t.ndim))
	}
	t.pending = append(t.pending[:0], param...)
	t.haveParam = true
	t.haveTiming = false
	t.cv.Broadcast()
	for !t.haveTiming {
		t.cv.Wait()
	}
	t.haveTiming = false
	return t.lastSample
}

// SetOptimalParameter fixes the parameter for all subsequent launches and
// releases external control.
func (t *Autotuner) SetOptimalParameter(opt []uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(opt) != t.ndim {
		panic(fmt.Sprintf("autotuner %s: optimal parameter with %d dimensions, want %d", t.name, len(opt), t.ndim))
	}
	copy(t.current, opt)
	t.attached = false
	t.state = tunerIdle
	t.calls = 0
	t.cv.Broadcast()
}
