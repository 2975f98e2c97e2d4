package operators

import (
	"math"
	"strings"
	"testing"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/mesh/halo"
	"github.com/notargets/gofv/utils"
)

func TestFactorLU(t *testing.T) {
	ad := []float64{2, 1, 1, 3}
	lu := make([]float64, 4)
	factorLU(ad, lu, 2)
	// L = [[1,0],[0.5,1]], U = [[2,1],[0,2.5]]
	want := []float64{2, 1, 0.5, 2.5}
	for k := range want {
		if math.Abs(lu[k]-want[k]) > 1e-12 {
			t.Errorf("entry %d: expected %g, got %g", k, want[k], lu[k])
		}
	}
}

func TestSolveCGDiffusion(t *testing.T) {
	m := mesh.NewCartesian(3, 3, 1, 3, 3, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)
	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 1
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)
	rovsdt := make([]float64, m.NCells)
	for cl := range rovsdt {
		rovsdt[cl] = 1
	}

	e := DefaultParams()
	e.IConv = 0
	e.NDircl = 1
	da, xa := MatrixScalar(m, &e, true, bcc, rovsdt, nil, nil, nil, iVisc, bVisc)
	sys := NewSystem(m, nil, nil, 1, true, da, xa)

	want := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		want[cl] = math.Sin(float64(cl)*1.7) + 2
	}
	rhs := make([]float64, m.NCells)
	sys.Apply(want, rhs)

	var rnorm float64
	for _, v := range rhs {
		rnorm += v * v
	}
	conv := &Convergence{Name: "diffusion", Precision: 1e-12, RNorm: math.Sqrt(rnorm)}
	x := make([]float64, m.NCellsExt)
	if err := sys.Solve(rhs, x, conv); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if conv.NIter == 0 {
		t.Errorf("expected at least one iteration")
	}
	for cl := 0; cl < m.NCells; cl++ {
		if math.Abs(x[cl]-want[cl]) > 1e-8 {
			t.Errorf("cell %d: expected %g, got %g", cl, want[cl], x[cl])
		}
	}
}

func TestSolveBiCGSTABConvectionDiffusion(t *testing.T) {
	m := mesh.NewCartesian(3, 3, 1, 3, 3, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)
	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 0.5
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)
	iMass := make([]float64, m.NIFaces)
	for f := range iMass {
		iMass[f] = math.Sin(float64(f)) + 0.3
	}
	bMass := make([]float64, m.NBFaces)
	rovsdt := make([]float64, m.NCells)
	for cl := range rovsdt {
		rovsdt[cl] = 2
	}

	e := DefaultParams()
	e.NDircl = 1
	da, xa := MatrixScalar(m, &e, false, bcc, rovsdt, nil, iMass, bMass, iVisc, bVisc)
	sys := NewSystem(m, nil, nil, 1, false, da, xa)

	want := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		want[cl] = math.Cos(float64(cl) * 0.9)
	}
	rhs := make([]float64, m.NCells)
	sys.Apply(want, rhs)

	conv := &Convergence{Name: "convdiff", Precision: 1e-12, RNorm: 1}
	x := make([]float64, m.NCellsExt)
	if err := sys.Solve(rhs, x, conv); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	for cl := 0; cl < m.NCells; cl++ {
		if math.Abs(x[cl]-want[cl]) > 1e-8 {
			t.Errorf("cell %d: expected %g, got %g", cl, want[cl], x[cl])
		}
	}
}

func TestSolveBlockSystem(t *testing.T) {
	m, _ := twoCells()
	// Coupled 3x3 diagonal blocks, componentwise face coupling.
	da := []float64{
		4, 1, 0,
		1, 5, 2,
		0, 2, 6,

		5, 0, 1,
		0, 4, 0,
		1, 0, 3,
	}
	xa := []float64{-1}
	sys := NewSystem(m, nil, nil, 3, true, da, xa)

	want := []float64{1, -2, 3, 0.5, 2, -1}
	rhs := make([]float64, 6)
	sys.Apply(want, rhs)

	conv := &Convergence{Name: "block", Precision: 1e-13, RNorm: 1}
	x := make([]float64, 6)
	if err := sys.Solve(rhs, x, conv); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	for k := range want {
		if math.Abs(x[k]-want[k]) > 1e-8 {
			t.Errorf("entry %d: expected %g, got %g", k, want[k], x[k])
		}
	}
}

func TestSolveReportsNonConvergence(t *testing.T) {
	m := mesh.NewCartesian(4, 4, 1, 4, 4, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)
	cvisc := make([]float64, m.NCellsExt)
	for cl := range cvisc {
		cvisc[cl] = 1
	}
	iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)
	rovsdt := make([]float64, m.NCells)
	for cl := range rovsdt {
		rovsdt[cl] = 0.01
	}

	e := DefaultParams()
	e.IConv = 0
	e.NDircl = 1
	da, xa := MatrixScalar(m, &e, true, bcc, rovsdt, nil, nil, nil, iVisc, bVisc)
	sys := NewSystem(m, nil, nil, 1, true, da, xa)

	rhs := make([]float64, m.NCells)
	for cl := range rhs {
		rhs[cl] = 1
	}
	conv := &Convergence{Name: "starved", Precision: 1e-14, RNorm: 1, NIterMax: 1}
	x := make([]float64, m.NCellsExt)
	err := sys.Solve(rhs, x, conv)
	if err == nil || !strings.Contains(err.Error(), "no convergence") {
		t.Errorf("expected a convergence error, got %v", err)
	}
	if conv.NIter != 1 {
		t.Errorf("expected the iteration budget to be spent, got %d", conv.NIter)
	}
}

func TestSolveParallelMatchesSerial(t *testing.T) {
	global := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	part := []int{0, 0, 0, 0, 1, 1, 1, 1}

	buildSystem := func(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer, c *utils.Comm) (*System, []float64) {
		bcc := bc.NewCoeffs(m.NBFaces)
		for f := 0; f < m.NBFaces; f++ {
			bcc.SetDirichlet(f, 0, 1/q.BDist[f], -1)
		}
		cvisc := make([]float64, m.NCellsExt)
		for cl := range cvisc {
			cvisc[cl] = 1
		}
		iVisc, bVisc := FaceViscosity(m, q, 0, cvisc)
		e := DefaultParams()
		e.IConv = 0
		e.NDircl = 1
		da, xa := MatrixScalar(m, &e, true, bcc, nil, nil, nil, nil, iVisc, bVisc)
		rhs := make([]float64, m.NCells)
		for cl := range rhs {
			rhs[cl] = q.CellVol[cl]
		}
		return NewSystem(m, sync, c, 1, true, da, xa), rhs
	}

	qg := mesh.ComputeQuantities(global, nil)
	sysg, rhsg := buildSystem(global, qg, nil, nil)
	convg := &Convergence{Name: "poisson", Precision: 1e-12, RNorm: 1}
	want := make([]float64, global.NCellsExt)
	if err := sysg.Solve(rhsg, want, convg); err != nil {
		t.Fatalf("serial solve failed: %v", err)
	}

	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		local, gs := mesh.Distribute(global, part, c)
		h := halo.Build(local, gs, c)
		q := mesh.ComputeQuantities(local, h)

		sys, rhs := buildSystem(local, q, h, c)
		conv := &Convergence{Name: "poisson", Precision: 1e-12, RNorm: 1}
		x := make([]float64, local.NCellsExt)
		if err := sys.Solve(rhs, x, conv); err != nil {
			t.Errorf("rank %d: solve failed: %v", c.Rank(), err)
			return
		}
		for cl := 0; cl < local.NCells; cl++ {
			gcell := int(local.GlobalCellNumOf(cl)) - 1
			if math.Abs(x[cl]-want[gcell]) > 1e-7 {
				t.Errorf("rank %d cell %d: %g diverges from serial %g",
					c.Rank(), cl, x[cl], want[gcell])
				return
			}
		}
	})
}
