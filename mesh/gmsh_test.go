package mesh

import (
	"os"
	"path/filepath"
	"testing"
)

const gmshSingleHex = `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
2
3 1 "fluid"
2 2 "inlet"
$EndPhysicalNames
$Nodes
8
1 0 0 0
2 1 0 0
3 1 1 0
4 0 1 0
5 0 0 1
6 1 0 1
7 1 1 1
8 0 1 1
$EndNodes
$Elements
2
1 5 2 1 1 1 2 3 4 5 6 7 8
2 3 2 2 2 1 2 3 4
$EndElements
`

func writeGmshFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.msh")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestReadGmshSingleHex(t *testing.T) {
	m, err := ReadGmsh(writeGmshFile(t, gmshSingleHex))
	if err != nil {
		t.Fatalf("ReadGmsh failed: %v", err)
	}

	if m.NCells != 1 {
		t.Errorf("Expected 1 cell, got %d", m.NCells)
	}
	if m.NVertices != 8 {
		t.Errorf("Expected 8 vertices, got %d", m.NVertices)
	}
	if m.NIFaces != 0 {
		t.Errorf("Expected no interior faces, got %d", m.NIFaces)
	}
	if m.NBFaces != 6 {
		t.Errorf("Expected 6 boundary faces, got %d", m.NBFaces)
	}

	if sel := m.SelectCellsByGroup("fluid"); len(sel) != 1 {
		t.Errorf("Expected 1 cell in group fluid, got %d", len(sel))
	}
	inlet := m.SelectBFacesByGroup("inlet")
	if len(inlet) != 1 {
		t.Fatalf("Expected 1 face in group inlet, got %d", len(inlet))
	}
	// The inlet quad names nodes 1..4, the bottom of the hex
	for _, v := range m.BFaceVertices(inlet[0]) {
		if m.VtxCoord[3*v+2] != 0 {
			t.Errorf("Inlet face vertex %d not on z=0", v)
		}
	}
}

func TestReadGmshGeometry(t *testing.T) {
	m, err := ReadGmsh(writeGmshFile(t, gmshSingleHex))
	if err != nil {
		t.Fatalf("ReadGmsh failed: %v", err)
	}
	q := ComputeQuantities(m, nil)
	if v := q.CellVol[0]; v < 0.999999 || v > 1.000001 {
		t.Errorf("Hex volume should be 1, got %g", v)
	}
}

func TestReadGmshUnsupportedVersion(t *testing.T) {
	content := "$MeshFormat\n4.1 0 8\n$EndMeshFormat\n"
	if _, err := ReadGmsh(writeGmshFile(t, content)); err == nil {
		t.Error("Expected error for 4.1 format")
	}
}

func TestReadGmshBinaryRejected(t *testing.T) {
	content := "$MeshFormat\n2.2 1 8\n$EndMeshFormat\n"
	if _, err := ReadGmsh(writeGmshFile(t, content)); err == nil {
		t.Error("Expected error for binary file")
	}
}

func TestReadGmshNoVolumeElements(t *testing.T) {
	content := `$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
3
1 0 0 0
2 1 0 0
3 0 1 0
$EndNodes
$Elements
1
1 2 0 1 2 3
$EndElements
`
	if _, err := ReadGmsh(writeGmshFile(t, content)); err == nil {
		t.Error("Expected error for a surface-only file")
	}
}

func TestReadGmshUnknownNode(t *testing.T) {
	content := `$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
4
1 0 0 0
2 1 0 0
3 0 1 0
4 0 0 1
$EndNodes
$Elements
1
1 4 0 1 2 3 9
$EndElements
`
	if _, err := ReadGmsh(writeGmshFile(t, content)); err == nil {
		t.Error("Expected error for a dangling node reference")
	}
}
