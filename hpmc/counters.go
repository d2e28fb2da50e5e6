package hpmc

// Counters aggregates trial-move statistics for one run. Workers accumulate
// into per-shard instances; Reduce folds them into the run totals at sweep
// end. Value semantics: Sub produces the delta between two snapshots for
// reporting over a run segment.
type Counters struct {
	TranslateAccept int64
	TranslateReject int64
	RotateAccept    int64
	RotateReject    int64

	// OutOfCellReject counts hard rejections from cell-crossing moves.
	// These are also included in the translate/rotate reject totals.
	OutOfCellReject int64

	// OverlapChecks counts individual shape-pair overlap evaluations.
	OverlapChecks int64
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.TranslateAccept += o.TranslateAccept
	c.TranslateReject += o.TranslateReject
	c.RotateAccept += o.RotateAccept
	c.RotateReject += o.RotateReject
	c.OutOfCellReject += o.OutOfCellReject
	c.OverlapChecks += o.OverlapChecks
}

// Sub returns the counter delta c - o, used to report statistics since a
// run-start snapshot.
func (c Counters) Sub(o Counters) Counters {
	return Counters{
		TranslateAccept: c.TranslateAccept - o.TranslateAccept,
		TranslateReject: c.TranslateReject - o.TranslateReject,
		RotateAccept:    c.RotateAccept - o.RotateAccept,
		RotateReject:    c.RotateReject - o.RotateReject,
		OutOfCellReject: c.OutOfCellReject - o.OutOfCellReject,
		OverlapChecks:   c.OverlapChecks - o.OverlapChecks,
	}
}

// Attempts returns the total number of trial moves covered by c.
func (c Counters) Attempts() int64 {
	return c.TranslateAccept + c.TranslateReject + c.RotateAccept + c.RotateReject
}

// TranslateAcceptance returns the acceptance ratio of translation moves,
// or 0 when none were attempted.
func (c Counters) TranslateAcceptance() float64 {
	n := c.TranslateAccept + c.TranslateReject
	if n == 0 {
		return 0
	}
	return float64(c.TranslateAccept) / float64(n)
}

// RotateAcceptance returns the acceptance ratio of rotation moves, or 0
// when none were attempted.
func (c Counters) RotateAcceptance() float64 {
	n := c.RotateAccept + c.RotateReject
	if n == 0 {
		return 0
	}
	return float64(c.RotateAccept) / float64(n)
}

// ImplicitCounters tracks depletant insertion statistics per depletant
// type pair.
type ImplicitCounters struct {
	InsertCount       int64
	InsertAcceptCount int64
}

// Add accumulates o into c.
func (c *ImplicitCounters) Add(o ImplicitCounters) {
	c.InsertCount += o.InsertCount
	c.InsertAcceptCount += o.InsertAcceptCount
}

// Sub returns the counter delta c - o.
func (c ImplicitCounters) Sub(o ImplicitCounters) ImplicitCounters {
	return ImplicitCounters{
		InsertCount:       c.InsertCount - o.InsertCount,
		InsertAcceptCount: c.InsertAcceptCount - o.InsertAcceptCount,
	}
}
