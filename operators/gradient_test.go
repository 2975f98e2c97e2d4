package operators

import (
	"math"
	"testing"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/mesh/halo"
	"github.com/notargets/gofv/utils"
)

// affine evaluates g.x + b.
func affine(g [3]float64, b float64, x []float64) float64 {
	return g[0]*x[0] + g[1]*x[1] + g[2]*x[2] + b
}

// dirichletFromField pins every boundary face to the affine field value
// at its centroid.
func dirichletFromField(m *mesh.Mesh, q *mesh.Quantities, g [3]float64, b float64) *bc.Coeffs {
	bcc := bc.NewCoeffs(m.NBFaces)
	for f := 0; f < m.NBFaces; f++ {
		v := affine(g, b, q.BFaceCog[3*f:3*f+3])
		bcc.SetDirichlet(f, v, 1/q.BDist[f], -1)
	}
	return bcc
}

func TestGradientScalarAffineExact(t *testing.T) {
	m := mesh.NewCartesian(3, 3, 3, 3, 3, 3)
	q := mesh.ComputeQuantities(m, nil)
	g := [3]float64{2, -1, 0.5}
	bcc := dirichletFromField(m, q, g, 3)

	p := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		p[cl] = affine(g, 3, q.CellCen[3*cl:3*cl+3])
	}
	grad := GradientScalar(m, q, nil, nil, bcc, 1, 2, 1e-5, p)
	for cl := 0; cl < m.NCells; cl++ {
		for d := 0; d < 3; d++ {
			if math.Abs(grad[3*cl+d]-g[d]) > 1e-10 {
				t.Errorf("cell %d: gradient component %d should be %g, got %g",
					cl, d, g[d], grad[3*cl+d])
				return
			}
		}
	}
}

func TestGradientScalarNeumannInterior(t *testing.T) {
	// With homogeneous Neumann walls the x-linear field still has the
	// right gradient away from the boundary.
	m := mesh.NewCartesian(5, 1, 1, 5, 1, 1)
	q := mesh.ComputeQuantities(m, nil)
	bcc := bc.NewCoeffs(m.NBFaces)

	p := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		p[cl] = q.CellCen[3*cl]
	}
	grad := GradientScalar(m, q, nil, nil, bcc, 1, 1, 1e-5, p)
	for cl := 1; cl < m.NCells-1; cl++ {
		if math.Abs(grad[3*cl]-1) > 1e-10 {
			t.Errorf("cell %d: interior x-gradient should be 1, got %g", cl, grad[3*cl])
		}
	}
}

func TestGradientVectorAffineExact(t *testing.T) {
	m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	q := mesh.ComputeQuantities(m, nil)
	// Rows of the target gradient, one affine function per component.
	gs := [3][3]float64{{1, 2, 3}, {0, -1, 4}, {2, 0, -2}}
	bs := [3]float64{1, 0, -5}

	vcc := bc.NewVectorCoeffs(m.NBFaces)
	for f := 0; f < m.NBFaces; f++ {
		var pimp [3]float64
		for cm := 0; cm < 3; cm++ {
			pimp[cm] = affine(gs[cm], bs[cm], q.BFaceCog[3*f:3*f+3])
		}
		vcc.SetDirichlet(f, pimp, 1/q.BDist[f], [3]float64{-1, -1, -1})
	}

	v := make([]float64, 3*m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		for cm := 0; cm < 3; cm++ {
			v[3*cl+cm] = affine(gs[cm], bs[cm], q.CellCen[3*cl:3*cl+3])
		}
	}
	grad := GradientVector(m, q, nil, nil, vcc, 1, 2, 1e-5, v)
	for cl := 0; cl < m.NCells; cl++ {
		for cm := 0; cm < 3; cm++ {
			for d := 0; d < 3; d++ {
				if math.Abs(grad[9*cl+3*cm+d]-gs[cm][d]) > 1e-10 {
					t.Errorf("cell %d comp %d: gradient %d should be %g, got %g",
						cl, cm, d, gs[cm][d], grad[9*cl+3*cm+d])
					return
				}
			}
		}
	}
}

func TestGradientScalarParallelMatchesSerial(t *testing.T) {
	global := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	part := []int{0, 0, 0, 0, 1, 1, 1, 1}
	g := [3]float64{1.5, -2, 3}

	qg := mesh.ComputeQuantities(global, nil)
	pg := make([]float64, global.NCellsExt)
	for cl := 0; cl < global.NCells; cl++ {
		pg[cl] = affine(g, 2, qg.CellCen[3*cl:3*cl+3])
	}
	want := GradientScalar(global, qg, nil, nil, dirichletFromField(global, qg, g, 2), 1, 3, 1e-5, pg)

	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		local, gs := mesh.Distribute(global, part, c)
		h := halo.Build(local, gs, c)
		q := mesh.ComputeQuantities(local, h)

		p := make([]float64, local.NCellsExt)
		for cl := 0; cl < local.NCells; cl++ {
			p[cl] = affine(g, 2, q.CellCen[3*cl:3*cl+3])
		}
		h.SyncScalar(p)
		grad := GradientScalar(local, q, h, c, dirichletFromField(local, q, g, 2), 1, 3, 1e-5, p)

		for cl := 0; cl < local.NCells; cl++ {
			gcell := int(local.GlobalCellNumOf(cl)) - 1
			for d := 0; d < 3; d++ {
				if math.Abs(grad[3*cl+d]-want[3*gcell+d]) > 1e-10 {
					t.Errorf("rank %d cell %d: gradient %d diverges from the serial run: %g vs %g",
						c.Rank(), cl, d, grad[3*cl+d], want[3*gcell+d])
					return
				}
			}
		}
	})
}
