package mesh

import (
	"bytes"
	"testing"
)

func TestCartesianCounts(t *testing.T) {
	m := NewCartesian(2, 2, 2, 1, 1, 1)

	if m.NCells != 8 {
		t.Errorf("Expected 8 cells, got %d", m.NCells)
	}
	if m.NCellsExt != 8 {
		t.Errorf("Expected 8 extended cells, got %d", m.NCellsExt)
	}
	if m.NVertices != 27 {
		t.Errorf("Expected 27 vertices, got %d", m.NVertices)
	}
	if m.NIFaces != 12 {
		t.Errorf("Expected 12 interior faces, got %d", m.NIFaces)
	}
	if m.NBFaces != 24 {
		t.Errorf("Expected 24 boundary faces, got %d", m.NBFaces)
	}

	// Each side of the cube carries 4 named faces
	for _, side := range []string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"} {
		if n := len(m.SelectBFacesByGroup(side)); n != 4 {
			t.Errorf("Side %s: expected 4 faces, got %d", side, n)
		}
	}

	// Serial mesh: global counts equal local counts
	if m.NGCells != 8 || m.NGIFaces != 12 || m.NGBFaces != 24 || m.NGVertices != 27 {
		t.Errorf("Global counts wrong: %d %d %d %d",
			m.NGCells, m.NGIFaces, m.NGBFaces, m.NGVertices)
	}
}

func TestSingleCellMesh(t *testing.T) {
	m := NewCartesian(1, 1, 1, 1, 1, 1)

	if m.NCells != 1 {
		t.Errorf("Expected 1 cell, got %d", m.NCells)
	}
	if m.NIFaces != 0 {
		t.Errorf("Expected no interior faces, got %d", m.NIFaces)
	}
	if m.NBFaces != 6 {
		t.Errorf("Expected 6 boundary faces, got %d", m.NBFaces)
	}
	if m.NVertices != 8 {
		t.Errorf("Expected 8 vertices, got %d", m.NVertices)
	}
	for f := 0; f < m.NBFaces; f++ {
		if m.BFaceCells[f] != 0 {
			t.Errorf("Boundary face %d should close cell 0, got %d", f, m.BFaceCells[f])
		}
		if len(m.BFaceVertices(f)) != 4 {
			t.Errorf("Boundary face %d should have 4 vertices, got %d",
				f, len(m.BFaceVertices(f)))
		}
	}
}

func TestFromElementsTwoTets(t *testing.T) {
	// Two tets sharing face {1,2,3}
	es := &ElementSet{
		VtxCoord: []float64{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
			1, 1, 1,
		},
		Elements: [][]int{
			{0, 1, 2, 3},
			{1, 2, 3, 4},
		},
		Types: []ElementType{Tet, Tet},
	}

	m, err := FromElements(es)
	if err != nil {
		t.Fatalf("FromElements failed: %v", err)
	}

	if m.NCells != 2 {
		t.Errorf("Expected 2 cells, got %d", m.NCells)
	}
	if m.NIFaces != 1 {
		t.Errorf("Expected 1 interior face, got %d", m.NIFaces)
	}
	if m.NBFaces != 6 {
		t.Errorf("Expected 6 boundary faces, got %d", m.NBFaces)
	}

	// The shared face is oriented from the first element producing it
	if m.IFaceCells[0][0] != 0 || m.IFaceCells[0][1] != 1 {
		t.Errorf("Shared face should connect cell 0 to cell 1, got %v", m.IFaceCells[0])
	}
}

func TestFromElementsOverSharedFace(t *testing.T) {
	// Three tets claiming the same face is not a valid conforming mesh
	es := &ElementSet{
		VtxCoord: []float64{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
			1, 1, 1,
			-1, -1, -1,
		},
		Elements: [][]int{
			{0, 1, 2, 3},
			{1, 2, 3, 4},
			{1, 2, 3, 5},
		},
		Types: []ElementType{Tet, Tet, Tet},
	}

	if _, err := FromElements(es); err == nil {
		t.Error("Expected error for face shared by three elements")
	}
}

func TestFromElementsVertexCountMismatch(t *testing.T) {
	es := &ElementSet{
		VtxCoord: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Elements: [][]int{{0, 1, 2}},
		Types:    []ElementType{Tet},
	}
	if _, err := FromElements(es); err == nil {
		t.Error("Expected error for wrong vertex count")
	}
}

func TestCellVertices(t *testing.T) {
	m := NewCartesian(2, 2, 2, 1, 1, 1)

	for c := 0; c < m.NCells; c++ {
		verts := m.CellVertices(c)
		if len(verts) != 8 {
			t.Errorf("Cell %d: expected 8 vertices, got %d", c, len(verts))
		}
		seen := make(map[int]bool)
		for _, v := range verts {
			if seen[v] {
				t.Errorf("Cell %d: vertex %d repeated", c, v)
			}
			seen[v] = true
		}
	}
}

func TestVolumeGroups(t *testing.T) {
	es := &ElementSet{
		VtxCoord: []float64{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
			1, 1, 1,
		},
		Elements: [][]int{
			{0, 1, 2, 3},
			{1, 2, 3, 4},
		},
		Types:  []ElementType{Tet, Tet},
		Groups: []string{"fluid", "solid"},
	}

	m, err := FromElements(es)
	if err != nil {
		t.Fatalf("FromElements failed: %v", err)
	}

	if sel := m.SelectCellsByGroup("fluid"); len(sel) != 1 || sel[0] != 0 {
		t.Errorf("Expected cell 0 in group fluid, got %v", sel)
	}
	if sel := m.SelectCellsByGroup("solid"); len(sel) != 1 || sel[0] != 1 {
		t.Errorf("Expected cell 1 in group solid, got %v", sel)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewCartesian(2, 2, 1, 2, 2, 1)

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got.NCells != m.NCells || got.NIFaces != m.NIFaces ||
		got.NBFaces != m.NBFaces || got.NVertices != m.NVertices {
		t.Errorf("Counts changed: %d %d %d %d vs %d %d %d %d",
			got.NCells, got.NIFaces, got.NBFaces, got.NVertices,
			m.NCells, m.NIFaces, m.NBFaces, m.NVertices)
	}
	if got.Families.N() != m.Families.N() {
		t.Errorf("Family count changed: %d vs %d", got.Families.N(), m.Families.N())
	}
	if len(got.SelectBFacesByGroup("xmin")) != len(m.SelectBFacesByGroup("xmin")) {
		t.Error("Group selection changed across the round trip")
	}
}
