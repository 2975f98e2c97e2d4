package mesh

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewCartesian(3, 2, 2, 3, 2, 2)

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	r, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if r.NCells != m.NCells || r.NIFaces != m.NIFaces ||
		r.NBFaces != m.NBFaces || r.NVertices != m.NVertices {
		t.Fatalf("Counts changed: got %d/%d/%d/%d want %d/%d/%d/%d",
			r.NCells, r.NIFaces, r.NBFaces, r.NVertices,
			m.NCells, m.NIFaces, m.NBFaces, m.NVertices)
	}
	for f := 0; f < m.NIFaces; f++ {
		if r.IFaceCells[f] != m.IFaceCells[f] {
			t.Errorf("Face %d cells changed: got %v want %v",
				f, r.IFaceCells[f], m.IFaceCells[f])
		}
	}
	for i, x := range m.VtxCoord {
		if r.VtxCoord[i] != x {
			t.Fatalf("Coordinate %d changed: got %g want %g", i, r.VtxCoord[i], x)
		}
	}

	// The family table rides along through its gob hooks
	if r.Families.N() != m.Families.N() {
		t.Fatalf("Family count changed: got %d want %d", r.Families.N(), m.Families.N())
	}
	for _, name := range []string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"} {
		got, want := r.SelectBFacesByGroup(name), m.SelectBFacesByGroup(name)
		if len(got) != len(want) {
			t.Errorf("Group %s selects %d faces after reload, want %d",
				name, len(got), len(want))
		}
	}
}

func TestSaveLoadFile(t *testing.T) {
	m := NewCartesian(2, 2, 1, 1, 1, 1)
	path := filepath.Join(t.TempDir(), "mesh.gob")

	if err := m.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if r.NCells != m.NCells || r.NVertices != m.NVertices {
		t.Errorf("Counts changed: got %d cells %d vertices, want %d and %d",
			r.NCells, r.NVertices, m.NCells, m.NVertices)
	}

	q := ComputeQuantities(r, nil)
	total := 0.0
	for c := 0; c < r.NCells; c++ {
		total += q.CellVol[c]
	}
	if total <= 0.99 || total >= 1.01 {
		t.Errorf("Reloaded mesh volume should be 1, got %g", total)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Errorf("LoadFile on a missing file should fail")
	}
}
