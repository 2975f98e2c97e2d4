package operators

import (
	"math"
	"testing"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
)

// TestMatrixScalarMatchesOperator checks that the assembled matrix is
// the negative Jacobian of the explicit operator: for the upwind
// scheme without reconstruction both are linear in the unknown, so
// A*p must equal -rhs(p) when solving an increment.
func TestMatrixScalarMatchesOperator(t *testing.T) {
	m := mesh.NewCartesian(2, 2, 1, 2, 2, 1)
	q := mesh.ComputeQuantities(m, nil)

	bcc := bc.NewCoeffs(m.NBFaces)
	for f := 0; f < m.NBFaces; f++ {
		switch f % 3 {
		case 0:
			bcc.SetDirichlet(f, 2.5, 1/q.BDist[f], -1)
		case 1:
			bcc.SetDirichlet(f, -1, 1/q.BDist[f], 4)
		default:
			bcc.SetNeumann(f, 0.7, 1/q.BDist[f])
		}
	}

	p := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		p[cl] = math.Cos(float64(cl)) * 3
	}
	iMass := make([]float64, m.NIFaces)
	for f := range iMass {
		iMass[f] = math.Sin(float64(f) + 0.5)
	}
	bMass := make([]float64, m.NBFaces)
	for f := range bMass {
		bMass[f] = math.Cos(float64(2*f)) * 1.4
	}
	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 0.9
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)

	e := DefaultParams()
	e.NDircl = 1
	e.BlendCv = 0
	e.IRcflu, e.IRcflb = 0, 0

	da, xa := MatrixScalar(m, &e, false, bcc, nil, nil, iMass, bMass, iVisc, bVisc)
	sys := NewSystem(m, nil, nil, 1, false, da, xa)

	ap := make([]float64, m.NCells)
	sys.Apply(p, ap)

	rhs := make([]float64, m.NCellsExt)
	ConvectionDiffusionScalar(m, q, nil, nil, &e, 0, p, bcc, iMass, bMass, iVisc, bVisc, rhs)

	for cl := 0; cl < m.NCells; cl++ {
		if math.Abs(ap[cl]+rhs[cl]) > 1e-12 {
			t.Errorf("cell %d: A*p=%g does not match -rhs=%g", cl, ap[cl], -rhs[cl])
		}
	}
}

func TestMatrixScalarSymmetric(t *testing.T) {
	m := mesh.NewCartesian(3, 1, 1, 3, 1, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)

	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 1
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)

	e := DefaultParams()
	e.IConv = 0
	e.NDircl = 1

	da, xa := MatrixScalar(m, &e, true, bcc, nil, nil, nil, nil, iVisc, bVisc)
	if len(xa) != m.NIFaces {
		t.Fatalf("symmetric packing must carry one entry per face, got %d", len(xa))
	}
	// With neutral Neumann walls every row sums to zero.
	rowsum := make([]float64, m.NCells)
	copy(rowsum, da[:m.NCells])
	for f := 0; f < m.NIFaces; f++ {
		rowsum[m.IFaceCells[f][0]] += xa[f]
		rowsum[m.IFaceCells[f][1]] += xa[f]
	}
	for cl := 0; cl < m.NCells; cl++ {
		if math.Abs(rowsum[cl]) > 1e-12 {
			t.Errorf("cell %d: expected zero row sum, got %g", cl, rowsum[cl])
		}
	}
	for f := 0; f < m.NIFaces; f++ {
		if math.Abs(xa[f]+iVisc[f]) > 1e-12 {
			t.Errorf("face %d: expected xa=-visc, got %g", f, xa[f])
		}
	}
}

func TestMatrixScalarReinforcement(t *testing.T) {
	m := mesh.NewCartesian(2, 1, 1, 2, 1, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)
	cvisc := []float64{1, 1}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)
	rovsdt := []float64{2, 2}

	e := DefaultParams()
	e.IConv = 0
	e.NDircl = 1
	daRef, _ := MatrixScalar(m, &e, true, bcc, rovsdt, nil, nil, nil, iVisc, bVisc)

	e.NDircl = 0
	da, _ := MatrixScalar(m, &e, true, bcc, rovsdt, nil, nil, nil, iVisc, bVisc)
	for cl := 0; cl < m.NCells; cl++ {
		want := daRef[cl] * (1 + 1e-7)
		if math.Abs(da[cl]-want) > 1e-12 {
			t.Errorf("cell %d: expected reinforced diagonal %g, got %g", cl, want, da[cl])
		}
	}
}

// TestMatrixVectorMatchesOperator runs the Jacobian consistency check
// for the block form, with boundary blocks that couple the components.
func TestMatrixVectorMatchesOperator(t *testing.T) {
	m := mesh.NewCartesian(2, 1, 1, 2, 1, 1)
	q := mesh.ComputeQuantities(m, nil)

	vcc := bc.NewVectorCoeffs(m.NBFaces)
	hintt := [6]float64{3, 4, 5, 0.5, -0.25, 1}
	for f := 0; f < m.NBFaces; f++ {
		if f%2 == 0 {
			if err := vcc.SetDirichletAniso(f, [3]float64{1, 0, 2}, hintt,
				[3]float64{-1, -1, -1}); err != nil {
				t.Fatalf("SetDirichletAniso: %v", err)
			}
		} else {
			vcc.SetDirichlet(f, [3]float64{0, 1, 0}, 1/q.BDist[f], [3]float64{-1, 5, -1})
		}
	}

	v := make([]float64, 3*m.NCellsExt)
	for k := range v {
		v[k] = math.Sin(float64(k) + 1)
	}
	iMass := []float64{1.1}
	bMass := make([]float64, m.NBFaces)
	for f := range bMass {
		bMass[f] = math.Cos(float64(f)) * 0.8
	}
	cvisc := []float64{1.5, 1.5}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)

	e := DefaultParams()
	e.NDircl = 1
	e.BlendCv = 0
	e.IRcflu, e.IRcflb = 0, 0

	da, xa := MatrixVector(m, &e, false, vcc, nil, iMass, bMass, iVisc, bVisc)
	sys := NewSystem(m, nil, nil, 3, false, da, xa)

	av := make([]float64, 3*m.NCells)
	sys.Apply(v, av)

	rhs := make([]float64, 3*m.NCellsExt)
	ConvectionDiffusionVector(m, q, nil, nil, &e, 0, v, vcc, iMass, bMass, iVisc, bVisc, rhs)

	for k := 0; k < 3*m.NCells; k++ {
		if math.Abs(av[k]+rhs[k]) > 1e-12 {
			t.Errorf("entry %d: A*v=%g does not match -rhs=%g", k, av[k], -rhs[k])
		}
	}
}
