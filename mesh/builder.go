package mesh

import (
	"fmt"
	"sort"
)

// ElementSet is the element-based description a mesh file or generator
// produces before face derivation.
type ElementSet struct {
	VtxCoord []float64 // interleaved x,y,z

	Elements [][]int // element -> vertex connectivity
	Types    []ElementType
	Groups   []string // optional volume group per element ("" for none)

	// Surface patches naming boundary faces
	Patches []BoundaryPatch
}

// BoundaryPatch is one surface element carrying a group name.
type BoundaryPatch struct {
	Vertices []int
	Group    string
}

// FromElements derives the face-based mesh: every element face appears once,
// faces shared by two elements become interior faces oriented from the first
// element that produced them, the rest close the boundary. Surface patches
// are matched to boundary faces by vertex set to assign families.
func FromElements(es *ElementSet) (*Mesh, error) {
	type pendingFace struct {
		ring   []int
		cell   [2]int
		second bool
	}
	var (
		m       = NewMesh()
		faceMap = make(map[string]int)
		faces   []pendingFace
	)
	m.NCells = len(es.Elements)
	m.NCellsExt = m.NCells
	m.NVertices = len(es.VtxCoord) / 3
	m.VtxCoord = make([]float64, len(es.VtxCoord))
	copy(m.VtxCoord, es.VtxCoord)

	for elem, verts := range es.Elements {
		if es.Types[elem].NVertices() != len(verts) {
			return nil, fmt.Errorf("element %d: %s needs %d vertices, got %d",
				elem, es.Types[elem], es.Types[elem].NVertices(), len(verts))
		}
		for _, ring := range ElementFaces(es.Types[elem], verts) {
			key := faceKey(ring)
			if fid, exists := faceMap[key]; exists {
				if faces[fid].second {
					return nil, fmt.Errorf("face %v shared by more than two elements", ring)
				}
				faces[fid].cell[1] = elem
				faces[fid].second = true
			} else {
				faceMap[key] = len(faces)
				faces = append(faces, pendingFace{
					ring: ring,
					cell: [2]int{elem, -1},
				})
			}
		}
	}

	// Patch groups keyed the same way
	patchGroup := make(map[string]string)
	for _, p := range es.Patches {
		patchGroup[faceKey(p.Vertices)] = p.Group
	}

	for _, pf := range faces {
		if pf.second {
			m.IFaceCells = append(m.IFaceCells, pf.cell)
			m.IFaceVtx = append(m.IFaceVtx, pf.ring...)
			m.IFaceVtxIdx = append(m.IFaceVtxIdx, len(m.IFaceVtx))
			m.IFaceFamily = append(m.IFaceFamily, DefaultFamily)
		} else {
			fam := DefaultFamily
			if g, named := patchGroup[faceKey(pf.ring)]; named && g != "" {
				fam = m.Families.Add(g)
			}
			m.BFaceCells = append(m.BFaceCells, pf.cell[0])
			m.BFaceVtx = append(m.BFaceVtx, pf.ring...)
			m.BFaceVtxIdx = append(m.BFaceVtxIdx, len(m.BFaceVtx))
			m.BFaceFamily = append(m.BFaceFamily, fam)
		}
	}
	m.NIFaces = len(m.IFaceCells)
	m.NBFaces = len(m.BFaceCells)
	m.IFaceVtxIdx = append([]int{0}, m.IFaceVtxIdx...)
	m.BFaceVtxIdx = append([]int{0}, m.BFaceVtxIdx...)

	m.CellFamily = make([]int, m.NCells)
	for c := range m.CellFamily {
		m.CellFamily[c] = DefaultFamily
		if es.Groups != nil && es.Groups[c] != "" {
			m.CellFamily[c] = m.Families.Add(es.Groups[c])
		}
	}
	m.UpdateGlobalCounts(nil)
	return m, nil
}

// faceKey builds the identity key of a face from its sorted vertex set.
func faceKey(ring []int) string {
	sorted := make([]int, len(ring))
	copy(sorted, ring)
	sort.Ints(sorted)
	return fmt.Sprintf("%v", sorted)
}

// NewCartesian builds an nx x ny x nz hex mesh on [0,lx]x[0,ly]x[0,lz].
// Boundary faces are grouped by side: xmin, xmax, ymin, ymax, zmin, zmax.
func NewCartesian(nx, ny, nz int, lx, ly, lz float64) *Mesh {
	if nx < 1 || ny < 1 || nz < 1 {
		panic(fmt.Sprintf("cell counts %d %d %d out of bounds", nx, ny, nz))
	}
	var (
		nvx, nvy, nvz = nx + 1, ny + 1, nz + 1
		es            = &ElementSet{}
		vid           = func(i, j, k int) int { return i + nvx*(j+nvy*k) }
	)
	es.VtxCoord = make([]float64, 3*nvx*nvy*nvz)
	for k := 0; k < nvz; k++ {
		for j := 0; j < nvy; j++ {
			for i := 0; i < nvx; i++ {
				v := vid(i, j, k)
				es.VtxCoord[3*v+0] = lx * float64(i) / float64(nx)
				es.VtxCoord[3*v+1] = ly * float64(j) / float64(ny)
				es.VtxCoord[3*v+2] = lz * float64(k) / float64(nz)
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				es.Elements = append(es.Elements, []int{
					vid(i, j, k), vid(i+1, j, k), vid(i+1, j+1, k), vid(i, j+1, k),
					vid(i, j, k+1), vid(i+1, j, k+1), vid(i+1, j+1, k+1), vid(i, j+1, k+1),
				})
				es.Types = append(es.Types, Hex)
			}
		}
	}
	addPatch := func(group string, verts ...int) {
		es.Patches = append(es.Patches, BoundaryPatch{Vertices: verts, Group: group})
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			addPatch("xmin", vid(0, j, k), vid(0, j+1, k), vid(0, j+1, k+1), vid(0, j, k+1))
			addPatch("xmax", vid(nx, j, k), vid(nx, j+1, k), vid(nx, j+1, k+1), vid(nx, j, k+1))
		}
	}
	for k := 0; k < nz; k++ {
		for i := 0; i < nx; i++ {
			addPatch("ymin", vid(i, 0, k), vid(i+1, 0, k), vid(i+1, 0, k+1), vid(i, 0, k+1))
			addPatch("ymax", vid(i, ny, k), vid(i+1, ny, k), vid(i+1, ny, k+1), vid(i, ny, k+1))
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			addPatch("zmin", vid(i, j, 0), vid(i+1, j, 0), vid(i+1, j+1, 0), vid(i, j+1, 0))
			addPatch("zmax", vid(i, j, nz), vid(i+1, j, nz), vid(i+1, j+1, nz), vid(i, j+1, nz))
		}
	}
	m, err := FromElements(es)
	if err != nil {
		panic(err)
	}
	return m
}
