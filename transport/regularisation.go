// Package transport bundles the field utilities layered on the
// finite-volume operators: regularisation of fields on low-quality
// cells, the wall distance with its dimensionless refinement, and the
// interpolation of vertex data onto cell centers.
package transport

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/operators"
	"github.com/notargets/gofv/utils"
)

const (
	big    = 1e12
	epzero = 1e-12
)

// RegulariseScalar replaces the values of the flagged cells by the
// solution of a small diffusion problem fed by their non-flagged
// neighbors, then clips the field to the min/max recorded over the
// non-flagged cells. flags marks owned cells, as produced by
// mesh.FlagBadCells; v covers the owned and ghost range with current
// ghost values and leaves synchronized.
func RegulariseScalar(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, flags []bool, v []float64) error {
	return regularise(m, q, sync, c, flags, 1, "potential_regularisation_scalar", nil, v)
}

// RegulariseVector is the interleaved three-component variant. With a
// non-nil bTypes the wall-normal component of flagged cells against a
// wall or symmetry face is pinned by projecting the unit face normal
// onto the diagonal block.
func RegulariseVector(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, flags []bool, bTypes []bc.Type, v []float64) error {
	return regularise(m, q, sync, c, flags, 3, "potential_regularisation_vector", bTypes, v)
}

// RegulariseSymTensor regularises a symmetric tensor field stored as
// xx, yy, zz, xy, yz, xz per cell.
func RegulariseSymTensor(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, flags []bool, v []float64) error {
	return regularise(m, q, sync, c, flags, 6, "potential_regularisation_sym_tensor", nil, v)
}

// RegulariseTensor regularises a row-major 3x3 tensor field.
func RegulariseTensor(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, flags []bool, v []float64) error {
	return regularise(m, q, sync, c, flags, 9, "potential_regularisation_tensor", nil, v)
}

// regularise assembles and solves the interpolation system shared by
// the stride variants. Non-flagged rows reduce to the identity scaled
// by their face coefficients, so non-flagged cells keep their values;
// flagged cells couple to each other and receive their non-flagged
// neighbors through the right hand side.
func regularise(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, flags []bool, db int, name string, bTypes []bc.Type,
	v []float64) error {

	if c == nil {
		c = utils.Serial()
	}
	flags = ghostFlags(m, sync, flags)

	varmin := make([]float64, db)
	varmax := make([]float64, db)
	for k := 0; k < db; k++ {
		varmin[k] = 1e20
		varmax[k] = -1e20
	}
	for cl := 0; cl < m.NCells; cl++ {
		if flags[cl] {
			continue
		}
		for k := 0; k < db; k++ {
			varmin[k] = math.Min(varmin[k], v[db*cl+k])
			varmax[k] = math.Max(varmax[k], v[db*cl+k])
		}
	}
	for k := 0; k < db; k++ {
		varmin[k] = c.AllReduceFloat64(varmin[k], utils.OpMin)
		varmax[k] = c.AllReduceFloat64(varmax[k], utils.OpMax)
		if varmin[k] > varmax[k] {
			varmin[k], varmax[k] = math.Inf(-1), math.Inf(1)
		}
	}

	var dam []float64
	if db == 1 {
		dam = make([]float64, m.NCellsExt)
	} else {
		dam = make([]float64, db*db*m.NCellsExt)
	}
	xam := make([]float64, m.NIFaces)
	rhs := make([]float64, db*m.NCellsExt)

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		surf := math.Max(q.IFaceSurf[f], 0.1*0.5*(q.CellVol[i]+q.CellVol[j])/q.IDist[f])
		ssd := surf / q.IDist[f]

		if db == 1 {
			dam[i] += ssd
			dam[j] += ssd
		} else {
			for k := 0; k < db; k++ {
				dam[db*db*i+db*k+k] += ssd
				dam[db*db*j+db*k+k] += ssd
			}
		}
		switch {
		case flags[i] && flags[j]:
			xam[f] = -ssd
		case flags[i]:
			for k := 0; k < db; k++ {
				rhs[db*i+k] += ssd * v[db*j+k]
				rhs[db*j+k] += ssd * v[db*j+k]
			}
		case flags[j]:
			for k := 0; k < db; k++ {
				rhs[db*i+k] += ssd * v[db*i+k]
				rhs[db*j+k] += ssd * v[db*i+k]
			}
		default:
			for k := 0; k < db; k++ {
				rhs[db*i+k] += ssd * v[db*i+k]
				rhs[db*j+k] += ssd * v[db*j+k]
			}
		}
	}

	if db == 3 && bTypes != nil {
		for f := 0; f < m.NBFaces; f++ {
			if t := bTypes[f]; !t.IsWall() && t != bc.Symmetry {
				continue
			}
			cl := m.BFaceCells[f]
			if cl < 0 || !flags[cl] || q.BFaceSurf[f] <= 0 || q.BDist[f] <= 0 {
				continue
			}
			ssd := q.BFaceSurf[f] / q.BDist[f]
			var n [3]float64
			for d := 0; d < 3; d++ {
				n[d] = q.BFaceNormal[3*f+d] / q.BFaceSurf[f]
			}
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					dam[9*cl+3*i+j] += ssd * n[i] * n[j]
				}
			}
		}
	}

	rhs = rhs[:db*m.NCells]
	rnorm := math.Sqrt(c.AllReduceFloat64(floats.Dot(rhs, rhs), utils.OpSum))

	sys := operators.NewSystem(m, sync, c, db, true, dam, xam)
	conv := &operators.Convergence{Name: name, Precision: epzero, RNorm: rnorm}
	err := sys.Solve(rhs, v, conv)
	if c.Rank() == 0 {
		fmt.Printf("Solving %s: N iter: %d, Res: %12.5e, Norm: %12.5e\n",
			name, conv.NIter, conv.Residual, rnorm)
	}
	if err != nil {
		return err
	}

	for cl := 0; cl < m.NCells; cl++ {
		for k := 0; k < db; k++ {
			kk := db*cl + k
			v[kk] = math.Min(v[kk], varmax[k])
			v[kk] = math.Max(v[kk], varmin[k])
		}
	}
	if sync != nil {
		switch db {
		case 1:
			sync.SyncScalar(v)
		case 3:
			sync.SyncVector(v)
		case 6:
			sync.SyncSymTensor(v)
		default:
			sync.SyncTensor(v)
		}
	}
	return nil
}

// ghostFlags extends owned cell flags over the ghost tail so the face
// loop can test both sides of partition-straddling faces.
func ghostFlags(m *mesh.Mesh, sync mesh.Synchronizer, flags []bool) []bool {
	out := make([]bool, m.NCellsExt)
	copy(out, flags[:m.NCells])
	if sync == nil {
		return out
	}
	w := make([]float64, m.NCellsExt)
	for cl := 0; cl < m.NCells; cl++ {
		if out[cl] {
			w[cl] = 1
		}
	}
	sync.SyncScalar(w)
	for cl := m.NCells; cl < m.NCellsExt; cl++ {
		out[cl] = w[cl] > 0.5
	}
	return out
}
