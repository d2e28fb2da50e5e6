package cmd

import (
	"fmt"
	"math"
	"os"

	"github.com/hpmc-sim/hpmc-sim/hpmc"
	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
	"github.com/hpmc-sim/hpmc-sim/hpmc/shape"

	"gopkg.in/yaml.v3"
)

// Define structs for YAML
type SimConfig struct {
	Box        BoxConfig    `yaml:"box"`
	Seed       uint64       `yaml:"seed"`
	Sweeps     int          `yaml:"sweeps"`
	NSelect    int          `yaml:"nselect"`
	MoveRatio  float64      `yaml:"translation_move_probability"`
	Types      []TypeConfig `yaml:"types"`
	Depletants []Depletant  `yaml:"depletants"`
}

type BoxConfig struct {
	L   []float64 `yaml:"l"`
	Dim int       `yaml:"dim"`
}

type TypeConfig struct {
	Name  string      `yaml:"name"`
	Shape ShapeConfig `yaml:"shape"`
	D     float64     `yaml:"d"`
	A     float64     `yaml:"a"`
	Count int         `yaml:"count"`
}

type ShapeConfig struct {
	Kind        string      `yaml:"kind"`
	Radius      float64     `yaml:"radius"`
	SweepRadius float64     `yaml:"sweep_radius"`
	Vertices    [][]float64 `yaml:"vertices"`
	Axes        []float64   `yaml:"axes"`
	Ignore      bool        `yaml:"ignore_statistics"`
}

type Depletant struct {
	Type     string  `yaml:"type"`
	Fugacity float64 `yaml:"fugacity"`
	NTrial   int     `yaml:"ntrial"`
}

// GetSimConfig reads and validates a simulation config from a YAML file.
func GetSimConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg SimConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SimConfig) applyDefaults() {
	if c.Sweeps == 0 {
		c.Sweeps = 100
	}
	if c.NSelect == 0 {
		c.NSelect = 4
	}
	if c.MoveRatio == 0 {
		c.MoveRatio = 0.5
	}
	if c.Box.Dim == 0 {
		c.Box.Dim = 3
	}
}

func (c *SimConfig) Validate() error {
	if len(c.Box.L) != 3 {
		return fmt.Errorf("config: box.l must have 3 entries, got %d", len(c.Box.L))
	}
	if c.Box.Dim != 2 && c.Box.Dim != 3 {
		return fmt.Errorf("config: box.dim must be 2 or 3, got %d", c.Box.Dim)
	}
	if c.MoveRatio < 0 || c.MoveRatio > 1 {
		return fmt.Errorf("config: translation_move_probability %g outside [0,1]", c.MoveRatio)
	}
	if len(c.Types) == 0 {
		return fmt.Errorf("config: at least one particle type required")
	}
	seen := map[string]bool{}
	for _, t := range c.Types {
		if t.Name == "" {
			return fmt.Errorf("config: particle type with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate type %q", t.Name)
		}
		seen[t.Name] = true
		if _, err := t.Shape.Params(); err != nil {
			return fmt.Errorf("config: type %q: %w", t.Name, err)
		}
	}
	for _, d := range c.Depletants {
		if !seen[d.Type] {
			return fmt.Errorf("config: depletant references unknown type %q", d.Type)
		}
	}
	return nil
}

// Params converts the YAML shape description into engine shape parameters.
func (s *ShapeConfig) Params() (shape.Params, error) {
	var p shape.Params
	switch s.Kind {
	case "sphere":
		p.Kind = shape.KindSphere
		p.Radius = s.Radius
	case "convex_polyhedron":
		p.Kind = shape.KindConvexPolyhedron
	case "spheropolyhedron":
		p.Kind = shape.KindSpheropolyhedron
		p.SweepRadius = s.SweepRadius
	case "ellipsoid":
		p.Kind = shape.KindEllipsoid
		if len(s.Axes) == 3 {
			p.Axes = geom.Vec3{X: s.Axes[0], Y: s.Axes[1], Z: s.Axes[2]}
		}
	default:
		return p, fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	for _, v := range s.Vertices {
		if len(v) != 3 {
			return p, fmt.Errorf("vertex must have 3 coordinates, got %d", len(v))
		}
		p.Verts = append(p.Verts, geom.Vec3{X: v[0], Y: v[1], Z: v[2]})
	}
	p.Ignore = s.Ignore
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// BuildSystem constructs the particle store and integrator described by the
// config. Particles are placed on a simple cubic lattice, one type after
// the other.
func (c *SimConfig) BuildSystem() (*hpmc.ParticleData, *hpmc.Integrator, error) {
	box := geom.NewBox(geom.Vec3{X: c.Box.L[0], Y: c.Box.L[1], Z: c.Box.L[2]}, c.Box.Dim)

	names := make([]string, len(c.Types))
	total := 0
	for i, t := range c.Types {
		names[i] = t.Name
		total += t.Count
	}
	pd := hpmc.NewParticleData(box, names)

	// lattice spacing that fits every particle
	perSide := int(math.Ceil(math.Cbrt(float64(total))))
	if c.Box.Dim == 2 {
		perSide = int(math.Ceil(math.Sqrt(float64(total))))
	}
	if perSide < 1 {
		perSide = 1
	}
	lo := box.Lo()
	placed := 0
	for ti, t := range c.Types {
		for k := 0; k < t.Count; k++ {
			ix := placed % perSide
			iy := (placed / perSide) % perSide
			iz := placed / (perSide * perSide)
			pos := geom.Vec3{
				X: lo.X + (float64(ix)+0.5)*box.L.X/float64(perSide),
				Y: lo.Y + (float64(iy)+0.5)*box.L.Y/float64(perSide),
				Z: lo.Z + (float64(iz)+0.5)*box.L.Z/float64(perSide),
			}
			if c.Box.Dim == 2 {
				pos.Z = 0
			}
			pd.AddParticle(pos, geom.IdentityQuat(), ti)
			placed++
		}
	}

	it := hpmc.New(pd, nil, c.Seed)
	if err := it.SetNSelect(c.NSelect); err != nil {
		return nil, nil, err
	}
	if err := it.SetTranslationMoveProbability(c.MoveRatio); err != nil {
		return nil, nil, err
	}
	for _, t := range c.Types {
		p, err := t.Shape.Params()
		if err != nil {
			return nil, nil, err
		}
		if err := it.SetParams(t.Name, p); err != nil {
			return nil, nil, err
		}
		if err := it.SetD(t.Name, t.D); err != nil {
			return nil, nil, err
		}
		if err := it.SetA(t.Name, t.A); err != nil {
			return nil, nil, err
		}
	}
	for _, d := range c.Depletants {
		if err := it.SetFugacity(d.Type, d.Fugacity); err != nil {
			return nil, nil, err
		}
		if d.NTrial > 0 {
			if err := it.SetNTrial(d.NTrial); err != nil {
				return nil, nil, err
			}
		}
	}
	return pd, it, nil
}
