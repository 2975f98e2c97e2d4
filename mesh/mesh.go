package mesh

import (
	"fmt"

	"github.com/notargets/gofv/utils"
)

// DefaultFamily is the family id of entities carrying no group at all.
// Family ids are 1-based; 0 marks an unset family.
const DefaultFamily = 1

// Modification flags raised by mesh transforms.
const (
	ModifiedTopo uint = 1 << iota
	ModifiedBalance
)

// Mesh is a face-based unstructured mesh. Interior faces connect two cells,
// boundary faces close exactly one cell. Face rings are stored CSR style and
// ordered so the face normal points from IFaceCells[f][0] toward
// IFaceCells[f][1], outward for boundary faces.
//
// Cells with index >= NCells are ghosts mirroring cells owned by another
// domain (or periodic images). Arrays dimensioned per cell are sized
// NCellsExt so ghost values can ride along.
type Mesh struct {
	NCells    int // owned cells
	NCellsExt int // owned + ghost cells
	NIFaces   int
	NBFaces   int
	NVertices int

	IFaceCells [][2]int // interior face -> adjacent cells (-1 if severed)
	BFaceCells []int    // boundary face -> cell (-1 if isolated)

	IFaceVtxIdx []int // CSR index, len NIFaces+1
	IFaceVtx    []int
	BFaceVtxIdx []int // CSR index, len NBFaces+1
	BFaceVtx    []int

	VtxCoord []float64 // interleaved x,y,z, len 3*NVertices

	CellFamily  []int // len NCellsExt
	IFaceFamily []int
	BFaceFamily []int
	Families    FamilyTable

	// Global numbers are 1-based; nil slices mean a serial mesh where the
	// local index + 1 is the global number.
	GlobalCellNum  []int64
	GlobalIFaceNum []int64
	GlobalBFaceNum []int64
	GlobalVtxNum   []int64

	NGCells    int64
	NGIFaces   int64
	NGBFaces   int64
	NGVertices int64

	// Optional cell -> vertex adjacency, built on demand
	CellVtxIdx []int
	CellVtx    []int

	Modified uint
	Epoch    int // bumped by every topology transform, invalidates caches
}

// NewMesh returns an empty mesh carrying only the default family.
func NewMesh() *Mesh {
	m := &Mesh{}
	m.Families.Add()
	return m
}

// GlobalCellNumOf returns the 1-based global number of cell c.
func (m *Mesh) GlobalCellNumOf(c int) int64 {
	if m.GlobalCellNum == nil {
		return int64(c) + 1
	}
	return m.GlobalCellNum[c]
}

// GlobalVtxNumOf returns the 1-based global number of vertex v.
func (m *Mesh) GlobalVtxNumOf(v int) int64 {
	if m.GlobalVtxNum == nil {
		return int64(v) + 1
	}
	return m.GlobalVtxNum[v]
}

// IFaceVertices returns the vertex ring of interior face f.
func (m *Mesh) IFaceVertices(f int) []int {
	return m.IFaceVtx[m.IFaceVtxIdx[f]:m.IFaceVtxIdx[f+1]]
}

// BFaceVertices returns the vertex ring of boundary face f.
func (m *Mesh) BFaceVertices(f int) []int {
	return m.BFaceVtx[m.BFaceVtxIdx[f]:m.BFaceVtxIdx[f+1]]
}

// NGhosts returns the ghost cell count.
func (m *Mesh) NGhosts() int {
	return m.NCellsExt - m.NCells
}

// BuildCellVertices derives the cell -> vertex adjacency from the face
// rings, owned cells only. Vertices appear once per cell, unordered.
func (m *Mesh) BuildCellVertices() {
	var (
		counts = make([]int, m.NCells)
		seen   = make(map[[2]int]struct{})
	)
	mark := func(c, v int) bool {
		if c < 0 || c >= m.NCells {
			return false
		}
		key := [2]int{c, v}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	}
	for f := 0; f < m.NIFaces; f++ {
		for _, v := range m.IFaceVertices(f) {
			for side := 0; side < 2; side++ {
				if mark(m.IFaceCells[f][side], v) {
					counts[m.IFaceCells[f][side]]++
				}
			}
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		for _, v := range m.BFaceVertices(f) {
			if mark(m.BFaceCells[f], v) {
				counts[m.BFaceCells[f]]++
			}
		}
	}
	m.CellVtxIdx = make([]int, m.NCells+1)
	for c := 0; c < m.NCells; c++ {
		m.CellVtxIdx[c+1] = m.CellVtxIdx[c] + counts[c]
	}
	m.CellVtx = make([]int, m.CellVtxIdx[m.NCells])
	fill := make([]int, m.NCells)
	for key := range seen {
		delete(seen, key)
	}
	add := func(c, v int) {
		if c < 0 || c >= m.NCells {
			return
		}
		key := [2]int{c, v}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		m.CellVtx[m.CellVtxIdx[c]+fill[c]] = v
		fill[c]++
	}
	for f := 0; f < m.NIFaces; f++ {
		for _, v := range m.IFaceVertices(f) {
			add(m.IFaceCells[f][0], v)
			add(m.IFaceCells[f][1], v)
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		for _, v := range m.BFaceVertices(f) {
			add(m.BFaceCells[f], v)
		}
	}
}

// CellVertices returns the vertex set of cell c, building the adjacency on
// first use.
func (m *Mesh) CellVertices(c int) []int {
	if m.CellVtxIdx == nil {
		m.BuildCellVertices()
	}
	return m.CellVtx[m.CellVtxIdx[c]:m.CellVtxIdx[c+1]]
}

// UpdateGlobalCounts refreshes the global entity counts. On a serial mesh
// (nil comm) the local counts are the global ones.
func (m *Mesh) UpdateGlobalCounts(c *utils.Comm) {
	if c == nil || c.Size() == 1 {
		m.NGCells = int64(m.NCells)
		m.NGIFaces = int64(m.NIFaces)
		m.NGBFaces = int64(m.NBFaces)
		m.NGVertices = int64(m.NVertices)
		return
	}
	m.NGCells = c.AllReduceInt64(int64(m.NCells), utils.OpSum)
	var maxI, maxB, maxV int64
	for _, g := range m.GlobalIFaceNum {
		if g > maxI {
			maxI = g
		}
	}
	for _, g := range m.GlobalBFaceNum {
		if g > maxB {
			maxB = g
		}
	}
	for _, g := range m.GlobalVtxNum {
		if g > maxV {
			maxV = g
		}
	}
	m.NGIFaces = c.AllReduceInt64(maxI, utils.OpMax)
	m.NGBFaces = c.AllReduceInt64(maxB, utils.OpMax)
	m.NGVertices = c.AllReduceInt64(maxV, utils.OpMax)
}

// SelectCellsByGroup returns the owned cells whose family carries the group.
func (m *Mesh) SelectCellsByGroup(name string) (sel []int) {
	for c := 0; c < m.NCells; c++ {
		if m.Families.HasGroup(m.CellFamily[c], name) {
			sel = append(sel, c)
		}
	}
	return
}

// SelectBFacesByGroup returns the boundary faces whose family carries the
// group.
func (m *Mesh) SelectBFacesByGroup(name string) (sel []int) {
	for f := 0; f < m.NBFaces; f++ {
		if m.Families.HasGroup(m.BFaceFamily[f], name) {
			sel = append(sel, f)
		}
	}
	return
}

// PrintStatistics prints entity counts and family content.
func (m *Mesh) PrintStatistics() {
	fmt.Printf("Mesh Statistics:\n")
	fmt.Printf("  Cells: %d (plus %d ghosts)\n", m.NCells, m.NGhosts())
	fmt.Printf("  Interior faces: %d\n", m.NIFaces)
	fmt.Printf("  Boundary faces: %d\n", m.NBFaces)
	fmt.Printf("  Vertices: %d\n", m.NVertices)
	for fam := 1; fam <= m.Families.N(); fam++ {
		groups := m.Families.GroupsOf(fam)
		if len(groups) == 0 {
			fmt.Printf("  Family %d: (no group)\n", fam)
		} else {
			fmt.Printf("  Family %d: %v\n", fam, groups)
		}
	}
}

// MarkModified raises modification flags and bumps the epoch.
func (m *Mesh) MarkModified(flags uint) {
	m.Modified |= flags
	m.Epoch++
}

// FamilyTable maps 1-based family ids to their group names. Family 1 is
// always present and empty.
type FamilyTable struct {
	groups [][]string
}

// Add registers a family with the given groups, returning its id. An
// existing family with the same groups is reused.
func (ft *FamilyTable) Add(groups ...string) int {
	for id, g := range ft.groups {
		if equalGroups(g, groups) {
			return id + 1
		}
	}
	cp := make([]string, len(groups))
	copy(cp, groups)
	ft.groups = append(ft.groups, cp)
	return len(ft.groups)
}

// N returns the family count.
func (ft *FamilyTable) N() int { return len(ft.groups) }

// GroupsOf returns the groups of family id.
func (ft *FamilyTable) GroupsOf(id int) []string {
	if id < 1 || id > len(ft.groups) {
		panic(fmt.Sprintf("family id %d out of bounds", id))
	}
	return ft.groups[id-1]
}

// HasGroup reports whether family id carries the named group.
func (ft *FamilyTable) HasGroup(id int, name string) bool {
	if id < 1 || id > len(ft.groups) {
		return false
	}
	for _, g := range ft.groups[id-1] {
		if g == name {
			return true
		}
	}
	return false
}

// WithGroup returns the family extending base with one more group.
func (ft *FamilyTable) WithGroup(base int, name string) int {
	if ft.HasGroup(base, name) {
		return base
	}
	groups := append(append([]string{}, ft.GroupsOf(base)...), name)
	return ft.Add(groups...)
}

func equalGroups(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
