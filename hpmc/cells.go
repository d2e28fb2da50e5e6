package hpmc

import (
	"fmt"
	"sort"

	"github.com/hpmc-sim/hpmc-sim/hpmc/geom"
)

// CellList bins local and ghost particles into a uniform grid whose cell
// width is at least the nominal interaction width, so any pair that can
// interact lives in adjacent cells. The grid is rebuilt from scratch each
// sweep; cell membership is the broad phase of the overlap narrow phase.
type CellList struct {
	nominalWidth float64
	sortCells    bool

	dim   [3]int
	width geom.Vec3
	box   geom.Box

	// Cells[c] lists the particle indices binned into cell c.
	Cells [][]int

	// cellOf[i] is the flat cell index of particle i.
	cellOf []int
}

// SetNominalWidth sets the minimum cell width. Must be called before
// Compute.
func (cl *CellList) SetNominalWidth(w float64) { cl.nominalWidth = w }

// NominalWidth returns the configured minimum cell width.
func (cl *CellList) NominalWidth() float64 { return cl.nominalWidth }

// SetSortCells enables sorting of each cell's member list. Binning order
// depends on iteration order; sorting restores a canonical layout for
// deterministic traversal.
func (cl *CellList) SetSortCells(sortCells bool) { cl.sortCells = sortCells }

// Dim returns the cell grid dimensions.
func (cl *CellList) Dim() [3]int { return cl.dim }

// Compute rebuilds the cell list from the current particle data. It fails
// when the box cannot fit at least one cell of the nominal width per
// periodic axis.
func (cl *CellList) Compute(pd *ParticleData) error {
	if cl.nominalWidth <= 0 {
		return fmt.Errorf("cells: nominal width %g not positive", cl.nominalWidth)
	}
	box := pd.Box()
	var dim [3]int
	var width geom.Vec3
	L := [3]float64{box.L.X, box.L.Y, box.L.Z}
	w := [3]float64{}
	for a := 0; a < 3; a++ {
		if a == 2 && box.Dim == 2 {
			dim[a] = 1
			w[a] = L[a]
			continue
		}
		d := int(L[a] / cl.nominalWidth)
		if d < 1 {
			return fmt.Errorf("cells: box dimension %d (%g) smaller than nominal width %g", a, L[a], cl.nominalWidth)
		}
		dim[a] = d
		w[a] = L[a] / float64(d)
	}
	width = geom.Vec3{X: w[0], Y: w[1], Z: w[2]}

	ncell := dim[0] * dim[1] * dim[2]
	cl.dim = dim
	cl.width = width
	cl.box = box
	if cap(cl.Cells) >= ncell {
		cl.Cells = cl.Cells[:ncell]
		for c := range cl.Cells {
			cl.Cells[c] = cl.Cells[c][:0]
		}
	} else {
		cl.Cells = make([][]int, ncell)
	}

	nt := pd.NTotal()
	if cap(cl.cellOf) >= nt {
		cl.cellOf = cl.cellOf[:nt]
	} else {
		cl.cellOf = make([]int, nt)
	}
	for i := 0; i < nt; i++ {
		c := cl.CellIndex(pd.Pos(i))
		cl.Cells[c] = append(cl.Cells[c], i)
		cl.cellOf[i] = c
	}
	if cl.sortCells {
		for c := range cl.Cells {
			sort.Ints(cl.Cells[c])
		}
	}
	return nil
}

// CellIndex maps a position to its flat cell index. Positions are wrapped
// first, so out-of-box coordinates bin correctly.
func (cl *CellList) CellIndex(p geom.Vec3) int {
	p = cl.box.Wrap(p)
	lo := cl.box.Lo()
	ix := clampCell(int((p.X-lo.X)/cl.width.X), cl.dim[0])
	iy := clampCell(int((p.Y-lo.Y)/cl.width.Y), cl.dim[1])
	iz := clampCell(int((p.Z-lo.Z)/cl.width.Z), cl.dim[2])
	return (iz*cl.dim[1]+iy)*cl.dim[0] + ix
}

// CellOf returns the cell particle i was binned into by the last Compute.
func (cl *CellList) CellOf(i int) int { return cl.cellOf[i] }

// clampCell guards against the floating-point edge case where a wrapped
// coordinate lands exactly on the upper box face.
func clampCell(i, dim int) int {
	if i < 0 {
		return 0
	}
	if i >= dim {
		return dim - 1
	}
	return i
}

// buildExcell returns, for every cell, the union of particles in the cell
// and its 27-cell neighborhood (expanded cell list). With grid dimensions
// of one or two cells along an axis the periodic neighborhood aliases, so
// members are deduplicated.
func buildExcell(cl *CellList) [][]int {
	ex := make([][]int, cl.dim[0]*cl.dim[1]*cl.dim[2])
	fillExcell(cl, ex)
	return ex
}

// fillExcell refills ex, which must hold one slot per cell of cl's grid.
// Cell membership changes with every rebinning, so the contents must be
// refilled after each Compute; only the per-cell backing arrays are reused
// across refills.
func fillExcell(cl *CellList, ex [][]int) {
	dim := cl.dim
	small := dim[0] < 3 || dim[1] < 3 || dim[2] < 3
	var seen map[int]struct{}
	if small {
		seen = make(map[int]struct{}, 27)
	}
	for iz := 0; iz < dim[2]; iz++ {
		for iy := 0; iy < dim[1]; iy++ {
			for ix := 0; ix < dim[0]; ix++ {
				c := (iz*dim[1]+iy)*dim[0] + ix
				ex[c] = ex[c][:0]
				if small {
					for k := range seen {
						delete(seen, k)
					}
				}
				for dz := -1; dz <= 1; dz++ {
					for dy := -1; dy <= 1; dy++ {
						for dx := -1; dx <= 1; dx++ {
							nx := wrapCell(ix+dx, dim[0])
							ny := wrapCell(iy+dy, dim[1])
							nz := wrapCell(iz+dz, dim[2])
							nc := (nz*dim[1]+ny)*dim[0] + nx
							if small {
								if _, ok := seen[nc]; ok {
									continue
								}
								seen[nc] = struct{}{}
							}
							ex[c] = append(ex[c], cl.Cells[nc]...)
						}
					}
				}
			}
		}
	}
}

func wrapCell(i, dim int) int {
	if i < 0 {
		return i + dim
	}
	if i >= dim {
		return i - dim
	}
	return i
}
