package operators

import (
	"math"
	"testing"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
)

func TestFaceDiffusionPotentialAffine(t *testing.T) {
	m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	q := mesh.ComputeQuantities(m, nil)
	g := [3]float64{1, -2, 0.5}
	bcc := dirichletFromField(m, q, g, 4)

	p := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		p[cl] = affine(g, 4, q.CellCen[3*cl:3*cl+3])
	}
	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 1
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)

	iMass := make([]float64, m.NIFaces)
	bMass := make([]float64, m.NBFaces)
	FaceDiffusionPotential(m, q, nil, nil, true, 1, 2, 1e-5,
		p, bcc, iVisc, bVisc, nil, iMass, bMass)

	// Every face flux is the exact -grad(p).S.
	for f := 0; f < m.NIFaces; f++ {
		var want float64
		for d := 0; d < 3; d++ {
			want -= g[d] * q.IFaceNormal[3*f+d]
		}
		if math.Abs(iMass[f]-want) > 1e-10 {
			t.Errorf("interior face %d: expected flux %g, got %g", f, want, iMass[f])
			return
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		var want float64
		for d := 0; d < 3; d++ {
			want -= g[d] * q.BFaceNormal[3*f+d]
		}
		if math.Abs(bMass[f]-want) > 1e-10 {
			t.Errorf("boundary face %d: expected flux %g, got %g", f, want, bMass[f])
			return
		}
	}

	// A divergence-free flux field: the per-cell balance closes.
	div := make([]float64, m.NCellsExt)
	Divergence(m, true, iMass, bMass, div)
	for cl := 0; cl < m.NCells; cl++ {
		if math.Abs(div[cl]) > 1e-10 {
			t.Errorf("cell %d: expected closed balance, got %g", cl, div[cl])
		}
	}
}

func TestFaceAnisotropicDiffusionPotentialAffine(t *testing.T) {
	m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	q := mesh.ComputeQuantities(m, nil)
	g := [3]float64{1, 1, -1}
	kd := [3]float64{2, 3, 4}

	viscel := make([]float64, 6*m.NCellsExt)
	for cl := 0; cl < m.NCellsExt; cl++ {
		viscel[6*cl], viscel[6*cl+1], viscel[6*cl+2] = kd[0], kd[1], kd[2]
	}

	bcc := bc.NewCoeffs(m.NBFaces)
	p := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		p[cl] = affine(g, 0, q.CellCen[3*cl:3*cl+3])
	}
	for f := 0; f < m.NBFaces; f++ {
		var n [3]float64
		for d := 0; d < 3; d++ {
			n[d] = q.BFaceNormal[3*f+d] / q.BFaceSurf[f]
		}
		kn := kd[0]*n[0]*n[0] + kd[1]*n[1]*n[1] + kd[2]*n[2]*n[2]
		v := affine(g, 0, q.BFaceCog[3*f:3*f+3])
		bcc.SetDirichlet(f, v, kn/q.BDist[f], -1)
	}

	iMass := make([]float64, m.NIFaces)
	bMass := make([]float64, m.NBFaces)
	FaceAnisotropicDiffusionPotential(m, q, nil, nil, true, 1, 2, 1e-5,
		p, bcc, viscel, iMass, bMass)

	// Fluxes follow -K.grad(p).S with the diagonal tensor K.
	for f := 0; f < m.NIFaces; f++ {
		var want float64
		for d := 0; d < 3; d++ {
			want -= kd[d] * g[d] * q.IFaceNormal[3*f+d]
		}
		if math.Abs(iMass[f]-want) > 1e-10 {
			t.Errorf("interior face %d: expected flux %g, got %g", f, want, iMass[f])
			return
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		var want float64
		for d := 0; d < 3; d++ {
			want -= kd[d] * g[d] * q.BFaceNormal[3*f+d]
		}
		if math.Abs(bMass[f]-want) > 1e-10 {
			t.Errorf("boundary face %d: expected flux %g, got %g", f, want, bMass[f])
			return
		}
	}
}

func TestFaceDiffusionPotentialInit(t *testing.T) {
	m, q := twoCells()
	bcc := bc.NewCoeffs(m.NBFaces)
	p := []float64{1, 3}
	iVisc := []float64{2}
	bVisc := make([]float64, m.NBFaces)

	iMass := []float64{100}
	bMass := make([]float64, m.NBFaces)
	FaceDiffusionPotential(m, q, nil, nil, false, 1, 1, 1e-5,
		p, bcc, iVisc, bVisc, nil, iMass, bMass)
	// visc*(p0-p1) accumulated on the seed.
	if math.Abs(iMass[0]-96) > 1e-12 {
		t.Errorf("expected accumulated flux 96, got %g", iMass[0])
	}
	FaceDiffusionPotential(m, q, nil, nil, true, 1, 1, 1e-5,
		p, bcc, iVisc, bVisc, nil, iMass, bMass)
	if math.Abs(iMass[0]+4) > 1e-12 {
		t.Errorf("init must reset the fluxes, expected -4, got %g", iMass[0])
	}
}
