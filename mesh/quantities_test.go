package mesh

import (
	"math"
	"testing"
)

func TestUnitCubeQuantities(t *testing.T) {
	m := NewCartesian(1, 1, 1, 1, 1, 1)
	q := ComputeQuantities(m, nil)

	if math.Abs(q.CellVol[0]-1) > 1e-12 {
		t.Errorf("Unit cube volume should be 1, got %g", q.CellVol[0])
	}
	for d := 0; d < 3; d++ {
		if math.Abs(q.CellCen[d]-0.5) > 1e-12 {
			t.Errorf("Centroid component %d should be 0.5, got %g", d, q.CellCen[d])
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		if math.Abs(q.BFaceSurf[f]-1) > 1e-12 {
			t.Errorf("Face %d area should be 1, got %g", f, q.BFaceSurf[f])
		}
		if math.Abs(q.BDist[f]-0.5) > 1e-12 {
			t.Errorf("Face %d wall distance should be 0.5, got %g", f, q.BDist[f])
		}
	}
	if q.NNegVol != 0 {
		t.Errorf("Expected no negative volumes, got %d", q.NNegVol)
	}
}

func TestTetQuantities(t *testing.T) {
	// Unit right tet: volume 1/6, centroid at the vertex mean
	es := &ElementSet{
		VtxCoord: []float64{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		Elements: [][]int{{0, 1, 2, 3}},
		Types:    []ElementType{Tet},
	}
	m, err := FromElements(es)
	if err != nil {
		t.Fatalf("FromElements failed: %v", err)
	}
	q := ComputeQuantities(m, nil)

	if math.Abs(q.CellVol[0]-1.0/6.0) > 1e-12 {
		t.Errorf("Tet volume should be 1/6, got %g", q.CellVol[0])
	}
	for d := 0; d < 3; d++ {
		if math.Abs(q.CellCen[d]-0.25) > 1e-12 {
			t.Errorf("Centroid component %d should be 0.25, got %g", d, q.CellCen[d])
		}
	}
}

func TestBoundaryNormalsPointOutward(t *testing.T) {
	m := NewCartesian(2, 3, 2, 1, 1, 1)
	q := ComputeQuantities(m, nil)

	for f := 0; f < m.NBFaces; f++ {
		cell := m.BFaceCells[f]
		dot := 0.0
		for d := 0; d < 3; d++ {
			dot += q.BFaceNormal[3*f+d] * (q.BFaceCog[3*f+d] - q.CellCen[3*cell+d])
		}
		if dot <= 0 {
			t.Errorf("Boundary face %d normal does not point outward (dot %g)", f, dot)
		}
	}
}

func TestInteriorNormalOrientation(t *testing.T) {
	m := NewCartesian(3, 2, 2, 1, 1, 1)
	q := ComputeQuantities(m, nil)

	for f := 0; f < m.NIFaces; f++ {
		c0, c1 := m.IFaceCells[f][0], m.IFaceCells[f][1]
		dot := 0.0
		for d := 0; d < 3; d++ {
			dot += q.IFaceNormal[3*f+d] * (q.CellCen[3*c1+d] - q.CellCen[3*c0+d])
		}
		if dot <= 0 {
			t.Errorf("Interior face %d normal does not point from cell %d to %d (dot %g)",
				f, c0, c1, dot)
		}
	}
}

func TestCellClosure(t *testing.T) {
	// The outward face normals of a closed cell sum to zero
	m := NewCartesian(3, 2, 1, 2, 1, 1)
	q := ComputeQuantities(m, nil)

	sum := make([]float64, 3*m.NCells)
	for f := 0; f < m.NIFaces; f++ {
		c0, c1 := m.IFaceCells[f][0], m.IFaceCells[f][1]
		for d := 0; d < 3; d++ {
			sum[3*c0+d] += q.IFaceNormal[3*f+d]
			sum[3*c1+d] -= q.IFaceNormal[3*f+d]
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		cell := m.BFaceCells[f]
		for d := 0; d < 3; d++ {
			sum[3*cell+d] += q.BFaceNormal[3*f+d]
		}
	}
	for c := 0; c < m.NCells; c++ {
		for d := 0; d < 3; d++ {
			if math.Abs(sum[3*c+d]) > 1e-12 {
				t.Errorf("Cell %d: face normals do not close (component %d = %g)",
					c, d, sum[3*c+d])
			}
		}
	}
}

func TestUniformGridFaceQuantities(t *testing.T) {
	// Unit cells: weights are exactly half, face offsets vanish
	m := NewCartesian(2, 2, 2, 2, 2, 2)
	q := ComputeQuantities(m, nil)

	for f := 0; f < m.NIFaces; f++ {
		if math.Abs(q.Weight[f]-0.5) > 1e-12 {
			t.Errorf("Face %d weight should be 0.5, got %g", f, q.Weight[f])
		}
		if math.Abs(q.IDist[f]-1) > 1e-12 {
			t.Errorf("Face %d cell distance should be 1, got %g", f, q.IDist[f])
		}
		for d := 0; d < 3; d++ {
			if math.Abs(q.DofIJ[3*f+d]) > 1e-12 {
				t.Errorf("Face %d offset component %d should vanish, got %g",
					f, d, q.DofIJ[3*f+d])
			}
		}
	}

	total := 0.0
	for c := 0; c < m.NCells; c++ {
		total += q.CellVol[c]
	}
	if math.Abs(total-8) > 1e-12 {
		t.Errorf("Total volume should be 8, got %g", total)
	}
	if math.Abs(q.MinVol-1) > 1e-12 || math.Abs(q.MaxVol-1) > 1e-12 {
		t.Errorf("Volume range should be [1,1], got [%g,%g]", q.MinVol, q.MaxVol)
	}
}

func TestQualityUniformGrid(t *testing.T) {
	m := NewCartesian(3, 3, 3, 1, 1, 1)
	q := ComputeQuantities(m, nil)
	crit := ComputeQuality(m, q)

	for f := 0; f < m.NIFaces; f++ {
		if math.Abs(crit.FaceWeighting[f]-0.5) > 1e-12 {
			t.Errorf("Face %d weighting should be 0.5, got %g", f, crit.FaceWeighting[f])
		}
		if crit.IFaceOrtho[f] > 1e-6 {
			t.Errorf("Face %d should be orthogonal, got %g degrees", f, crit.IFaceOrtho[f])
		}
	}
	for c := 0; c < m.NCells; c++ {
		if math.Abs(crit.Offsetting[c]-1) > 1e-12 {
			t.Errorf("Cell %d offsetting should be 1, got %g", c, crit.Offsetting[c])
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		if crit.BFaceOrtho[f] > 1e-6 {
			t.Errorf("Boundary face %d should be orthogonal, got %g degrees",
				f, crit.BFaceOrtho[f])
		}
	}

	flagged := FlagBadCells(m, q)
	for c, bad := range flagged {
		if bad {
			t.Errorf("Cell %d flagged bad on a uniform grid", c)
		}
	}
}
