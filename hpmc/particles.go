package hpmc

import (
	"fmt"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"

	"github.com/sirupsen/logrus"
)

// ParticleData owns the per-particle state of the simulation: positions,
// orientations, type identifiers, and permanent tags. Local particles occupy
// indices [0, N); ghost copies of remote particles follow in [N, N+NGhost).
// Ghosts participate in overlap tests but never move.
type ParticleData struct {
	box    geom.Box
	n      int
	nGhost int

	pos    []geom.Vec3
	orient []geom.Quat
	typeID []int
	tag    []uint64

	typeNames []string
	nextTag   uint64
	origin    geom.Vec3

	typeObservers map[int]func()
	nextObserver  int
}

// NewParticleData creates an empty particle store for the given box and
// type table.
func NewParticleData(box geom.Box, typeNames []string) *ParticleData {
	return &ParticleData{
		box:           box,
		typeNames:     append([]string(nil), typeNames...),
		typeObservers: make(map[int]func()),
	}
}

// AddParticle appends a local particle and returns its index. The position
// is wrapped into the box.
func (pd *ParticleData) AddParticle(pos geom.Vec3, orient geom.Quat, typeID int) int {
	if pd.nGhost > 0 {
		panic("particles: AddParticle while ghosts are present")
	}
	if typeID < 0 || typeID >= len(pd.typeNames) {
		panic(fmt.Sprintf("particles: type id %d out of range [0,%d)", typeID, len(pd.typeNames)))
	}
	i := pd.n
	pd.pos = append(pd.pos, pd.box.Wrap(pos))
	pd.orient = append(pd.orient, orient.Normalized())
	pd.typeID = append(pd.typeID, typeID)
	pd.tag = append(pd.tag, pd.nextTag)
	pd.nextTag++
	pd.n++
	return i
}

// AddGhost appends a ghost particle. Ghosts sit past the local range and
// are dropped by ClearGhosts before the next exchange.
func (pd *ParticleData) AddGhost(pos geom.Vec3, orient geom.Quat, typeID int, tag uint64) int {
	i := pd.n + pd.nGhost
	pd.pos = append(pd.pos, pos)
	pd.orient = append(pd.orient, orient.Normalized())
	pd.typeID = append(pd.typeID, typeID)
	pd.tag = append(pd.tag, tag)
	pd.nGhost++
	return i
}

// ClearGhosts removes all ghost particles.
func (pd *ParticleData) ClearGhosts() {
	pd.pos = pd.pos[:pd.n]
	pd.orient = pd.orient[:pd.n]
	pd.typeID = pd.typeID[:pd.n]
	pd.tag = pd.tag[:pd.n]
	pd.nGhost = 0
}

// N returns the number of local particles.
func (pd *ParticleData) N() int { return pd.n }

// NGhost returns the number of ghost particles.
func (pd *ParticleData) NGhost() int { return pd.nGhost }

// NTotal returns the number of local plus ghost particles.
func (pd *ParticleData) NTotal() int { return pd.n + pd.nGhost }

// NTypes returns the number of registered particle types.
func (pd *ParticleData) NTypes() int { return len(pd.typeNames) }

// Box returns the simulation box.
func (pd *ParticleData) Box() geom.Box { return pd.box }

// SetBox replaces the simulation box. Positions are not rewrapped; callers
// resize around unwrapped coordinates before calling.
func (pd *ParticleData) SetBox(box geom.Box) { pd.box = box }

// Pos returns the position of particle i.
func (pd *ParticleData) Pos(i int) geom.Vec3 { return pd.pos[i] }

// SetPos overwrites the position of particle i.
func (pd *ParticleData) SetPos(i int, p geom.Vec3) { pd.pos[i] = p }

// Orientation returns the orientation of particle i.
func (pd *ParticleData) Orientation(i int) geom.Quat { return pd.orient[i] }

// SetOrientation overwrites the orientation of particle i.
func (pd *ParticleData) SetOrientation(i int, q geom.Quat) { pd.orient[i] = q }

// TypeID returns the type index of particle i.
func (pd *ParticleData) TypeID(i int) int { return pd.typeID[i] }

// Tag returns the permanent tag of particle i. Tags survive reordering and
// migration and key the per-particle RNG streams.
func (pd *ParticleData) Tag(i int) uint64 { return pd.tag[i] }

// TypeName returns the name of type t.
func (pd *ParticleData) TypeName(t int) string { return pd.typeNames[t] }

// TypeByName resolves a type name to its index. Unknown names are an error;
// type tables are fixed configuration, so a miss is a caller bug.
func (pd *ParticleData) TypeByName(name string) (int, error) {
	for i, n := range pd.typeNames {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("particles: unknown type %q", name)
}

// AddType registers a new particle type and notifies type-table observers.
// Returns the new type index.
func (pd *ParticleData) AddType(name string) int {
	for _, n := range pd.typeNames {
		if n == name {
			logrus.Warnf("particles: type %q already exists", name)
		}
	}
	pd.typeNames = append(pd.typeNames, name)
	t := len(pd.typeNames) - 1
	for _, fn := range pd.typeObservers {
		fn()
	}
	return t
}

// OnNTypesChange registers fn to run whenever the type table grows and
// returns a function that removes the registration.
func (pd *ParticleData) OnNTypesChange(fn func()) (unsubscribe func()) {
	id := pd.nextObserver
	pd.nextObserver++
	pd.typeObservers[id] = fn
	return func() { delete(pd.typeObservers, id) }
}

// Origin returns the accumulated grid-shift origin.
func (pd *ParticleData) Origin() geom.Vec3 { return pd.origin }

// TranslateOrigin shifts every particle by -shift and records the
// accumulated offset, so absolute particle trajectories can be recovered.
// The shift leaves all pair separations invariant.
func (pd *ParticleData) TranslateOrigin(shift geom.Vec3) {
	for i := range pd.pos {
		pd.pos[i] = pd.box.Wrap(pd.pos[i].Sub(shift))
	}
	pd.origin = pd.origin.Add(shift)
}

// Communicator exchanges particles and ghosts with neighboring domains.
// The single-domain engine uses nopCommunicator; a distributed build plugs
// in its own implementation.
type Communicator interface {
	// Exchange refreshes ghost particles; with migrate set it also
	// migrates particles that left the local domain.
	Exchange(pd *ParticleData, migrate bool) error
}

type nopCommunicator struct{}

func (nopCommunicator) Exchange(pd *ParticleData, migrate bool) error { return nil }
