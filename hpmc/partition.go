package hpmc

import "sync"

// Partition splits [0, N) into contiguous shard ranges, one per worker.
// It is the value-object analog of a static device partition: every
// parallel stage of the sweep runs the same function over each range
// concurrently, and ParallelFor returns only after all shards finished
// (a full barrier between pipeline stages).
type Partition struct {
	n      int
	ranges [][2]int
}

// NewPartition builds a partition of [0, n) into at most shards contiguous
// ranges. Shards never receive empty ranges; with n < shards the partition
// has n single-element ranges.
func NewPartition(n, shards int) Partition {
	if shards < 1 {
		shards = 1
	}
	if shards > n {
		shards = n
	}
	p := Partition{n: n}
	if n == 0 {
		return p
	}
	chunk := n / shards
	rem := n % shards
	begin := 0
	for s := 0; s < shards; s++ {
		end := begin + chunk
		if s < rem {
			end++
		}
		p.ranges = append(p.ranges, [2]int{begin, end})
		begin = end
	}
	return p
}

// NumShards returns the number of non-empty shard ranges.
func (p Partition) NumShards() int { return len(p.ranges) }

// Range returns the half-open index range of shard s.
func (p Partition) Range(s int) (begin, end int) {
	r := p.ranges[s]
	return r[0], r[1]
}

// ParallelFor runs fn once per shard concurrently and blocks until every
// shard has completed. fn must confine its writes to per-shard state or
// use atomic operations; the return acts as a synchronization barrier.
func (p Partition) ParallelFor(fn func(shard, begin, end int)) {
	if len(p.ranges) == 1 {
		fn(0, p.ranges[0][0], p.ranges[0][1])
		return
	}
	var wg sync.WaitGroup
	for s, r := range p.ranges {
		wg.Add(1)
		go func(s, begin, end int) {
			defer wg.Done()
			fn(s, begin, end)
		}(s, r[0], r[1])
	}
	wg.Wait()
}
