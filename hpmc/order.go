package hpmc

// UpdateOrder maintains the rank assignment that directs overlap
// implications between particles. To avoid directional bias the order is
// either forward or reversed, chosen by a deterministic coin flip per pass;
// the full shuffle a sequential sweep would use is unnecessary because the
// constraint encoding only depends on the relative rank of interacting
// pairs.
type UpdateOrder struct {
	seed     uint64
	order    []int
	reverse  []int
	reversed bool
}

// NewUpdateOrder creates an update order for n particles.
func NewUpdateOrder(seed uint64, n int) *UpdateOrder {
	u := &UpdateOrder{seed: seed}
	u.Resize(n)
	return u
}

// Resize adjusts the order to n particles. A no-op when n is unchanged, so
// the rank permutation survives across sweeps at constant particle count.
func (u *UpdateOrder) Resize(n int) {
	if n == len(u.order) {
		return
	}
	u.order = make([]int, n)
	u.reverse = make([]int, n)
	for i := 0; i < n; i++ {
		u.order[i] = i
		u.reverse[i] = n - 1 - i
	}
}

// Shuffle re-draws the direction of the order for the given timestep and
// pass. Deterministic in (seed, timestep, pass).
func (u *UpdateOrder) Shuffle(timestep uint64, pass uint64) {
	rng := NewStream(u.seed, StreamShuffle, timestep, pass)
	u.reversed = rng.Intn(2) == 1
}

// At returns the rank of particle i in the current order. Lower ranks move
// "first": when two trial moves conflict, the lower-ranked particle's move
// is considered before the higher-ranked one.
func (u *UpdateOrder) At(i int) int {
	if u.reversed {
		return u.reverse[i]
	}
	return u.order[i]
}

// Len returns the number of particles covered by the order.
func (u *UpdateOrder) Len() int { return len(u.order) }
