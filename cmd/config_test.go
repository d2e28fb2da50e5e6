package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
box:
  l: [12, 12, 12]
seed: 7
sweeps: 10
nselect: 2
translation_move_probability: 0.6
types:
  - name: A
    shape:
      kind: sphere
      radius: 0.5
    d: 0.2
    count: 27
`

func TestGetSimConfig_Valid(t *testing.T) {
	cfg, err := GetSimConfig(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 10, cfg.Sweeps)
	assert.Equal(t, 2, cfg.NSelect)
	assert.Equal(t, 0.6, cfg.MoveRatio)
	require.Len(t, cfg.Types, 1)
	assert.Equal(t, "A", cfg.Types[0].Name)
}

func TestGetSimConfig_DefaultsApplied(t *testing.T) {
	cfg, err := GetSimConfig(writeConfig(t, `
box:
  l: [10, 10, 10]
types:
  - name: A
    shape:
      kind: sphere
      radius: 0.5
    count: 1
`))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Sweeps)
	assert.Equal(t, 4, cfg.NSelect)
	assert.Equal(t, 0.5, cfg.MoveRatio)
	assert.Equal(t, 3, cfg.Box.Dim)
}

func TestGetSimConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"missing box", `
types:
  - name: A
    shape: {kind: sphere, radius: 0.5}
    count: 1
`},
		{"no types", `
box:
  l: [10, 10, 10]
`},
		{"duplicate type", `
box:
  l: [10, 10, 10]
types:
  - name: A
    shape: {kind: sphere, radius: 0.5}
    count: 1
  - name: A
    shape: {kind: sphere, radius: 0.5}
    count: 1
`},
		{"unknown shape kind", `
box:
  l: [10, 10, 10]
types:
  - name: A
    shape: {kind: torus, radius: 0.5}
    count: 1
`},
		{"negative sphere radius", `
box:
  l: [10, 10, 10]
types:
  - name: A
    shape: {kind: sphere, radius: -1}
    count: 1
`},
		{"depletant with unknown type", `
box:
  l: [10, 10, 10]
types:
  - name: A
    shape: {kind: sphere, radius: 0.5}
    count: 1
depletants:
  - type: ghost
    fugacity: 1
`},
		{"move probability out of range", `
box:
  l: [10, 10, 10]
translation_move_probability: 1.5
types:
  - name: A
    shape: {kind: sphere, radius: 0.5}
    count: 1
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetSimConfig(writeConfig(t, tt.config))
			assert.Error(t, err)
		})
	}
}

func TestBuildSystem_PlacesAllParticles(t *testing.T) {
	cfg, err := GetSimConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	pd, it, err := cfg.BuildSystem()
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, 27, pd.N())
	assert.Equal(t, 1, pd.NTypes())

	// the lattice placement must be runnable as-is
	require.NoError(t, it.Update(0))
}

func TestBuildSystem_MultipleTypesAndDepletants(t *testing.T) {
	cfg, err := GetSimConfig(writeConfig(t, `
box:
  l: [14, 14, 14]
types:
  - name: A
    shape: {kind: sphere, radius: 0.5}
    d: 0.2
    count: 8
  - name: dep
    shape: {kind: sphere, radius: 0.25}
    count: 0
depletants:
  - type: dep
    fugacity: 0.5
`))
	require.NoError(t, err)

	pd, it, err := cfg.BuildSystem()
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, 8, pd.N())
	assert.Equal(t, 2, pd.NTypes())
	require.NoError(t, it.Update(0))
	assert.Greater(t, it.ImplicitCounters().InsertCount, int64(0))
}
