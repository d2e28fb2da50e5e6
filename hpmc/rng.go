package hpmc

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// === Stream identifiers ===

// StreamID names an independent random-number stream of the engine. Every
// (stream, counter...) combination yields its own deterministic generator,
// so concurrent workers never share RNG state and results are reproducible
// bit for bit given the master seed.
type StreamID uint32

const (
	// StreamShuffle drives the per-pass update-order coin flip.
	StreamShuffle StreamID = iota + 1

	// StreamMove drives trial-move generation, one substream per particle.
	StreamMove

	// StreamDepletantCount draws Poisson insertion counts.
	StreamDepletantCount

	// StreamDepletantPlace places depletant trial insertions.
	StreamDepletantPlace

	// StreamDepletantAccept draws the Metropolis-Hastings uniform for the
	// auxiliary depletant mode.
	StreamDepletantAccept

	// StreamPatch draws the per-particle energy acceptance threshold.
	StreamPatch

	// StreamShift draws the post-sweep global grid shift.
	StreamShift
)

// === Deterministic stream derivation ===

// streamSeed derives a 64-bit seed from the master seed, a stream
// identifier, and an arbitrary list of counters (timestep, pass, particle
// tag, ...) by hashing them with FNV-1a. Distinct identifier/counter tuples
// give independent streams.
func streamSeed(seed uint64, id StreamID, counters ...uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h.Write(buf[:])
	for _, c := range counters {
		binary.LittleEndian.PutUint64(buf[:], c)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// NewStream returns a deterministically seeded generator for the given
// stream and counters. Each call returns a fresh generator; callers must
// not share one across goroutines.
func NewStream(seed uint64, id StreamID, counters ...uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(streamSeed(seed, id, counters...))))
}
