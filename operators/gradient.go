package operators

import (
	"math"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// GradientScalar computes the Green-Gauss cell gradient of p, face
// values taken as distance-weighted means and boundary values from the
// coefficient pair (a, b). With nswrgr > 1 the face values are
// corrected iteratively for the offset between the face center and the
// weighted line point until the update drops below epsrgr relative to
// the gradient norm. p must hold synchronized ghost values; the result
// is 3 per cell over the extended range, ghosts synchronized.
func GradientScalar(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, bcc *bc.Coeffs, inc, nswrgr int, epsrgr float64,
	p []float64) []float64 {

	if c == nil {
		c = utils.Serial()
	}
	if nswrgr < 1 {
		nswrgr = 1
	}
	var (
		grad = make([]float64, 3*m.NCellsExt)
		prev []float64
	)
	for sweep := 0; sweep < nswrgr; sweep++ {
		grad, prev = gradientSweep(m, q, bcc, inc, sweep > 0, p, grad, prev)
		if sync != nil {
			sync.SyncVector(grad)
		}
		if sweep == 0 {
			continue
		}
		var delta, norm float64
		for cell := 0; cell < m.NCells; cell++ {
			for d := 0; d < 3; d++ {
				g := grad[3*cell+d]
				dg := g - prev[3*cell+d]
				delta += q.CellVol[cell] * dg * dg
				norm += q.CellVol[cell] * g * g
			}
		}
		delta = c.AllReduceFloat64(delta, utils.OpSum)
		norm = c.AllReduceFloat64(norm, utils.OpSum)
		if delta <= epsrgr*epsrgr*math.Max(norm, 1e-300) {
			break
		}
	}
	return grad
}

// gradientSweep runs one Green-Gauss pass, optionally with the
// offset correction taken from the previous gradient. It returns the
// new gradient and the buffer holding the previous one for reuse.
func gradientSweep(m *mesh.Mesh, q *mesh.Quantities, bcc *bc.Coeffs,
	inc int, recon bool, p, grad, prev []float64) ([]float64, []float64) {

	if prev == nil {
		prev = make([]float64, len(grad))
	}
	grad, prev = prev, grad
	for i := range grad {
		grad[i] = 0
	}

	for f := 0; f < m.NIFaces; f++ {
		var (
			i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
			w    = q.Weight[f]
			pfac = w*p[i] + (1-w)*p[j]
		)
		if recon {
			for d := 0; d < 3; d++ {
				pfac += 0.5 * (prev[3*i+d] + prev[3*j+d]) * q.DofIJ[3*f+d]
			}
		}
		for d := 0; d < 3; d++ {
			s := q.IFaceNormal[3*f+d]
			grad[3*i+d] += pfac * s
			grad[3*j+d] -= pfac * s
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		i := m.BFaceCells[f]
		if i < 0 {
			continue
		}
		pip := p[i]
		if recon {
			var iip [3]float64
			boundaryOffset(q, f, i, &iip)
			for d := 0; d < 3; d++ {
				pip += prev[3*i+d] * iip[d]
			}
		}
		pfac := float64(inc)*bcc.A[f] + bcc.B[f]*pip
		for d := 0; d < 3; d++ {
			grad[3*i+d] += pfac * q.BFaceNormal[3*f+d]
		}
	}
	for cell := 0; cell < m.NCells; cell++ {
		if v := q.CellVol[cell]; v > 0 {
			for d := 0; d < 3; d++ {
				grad[3*cell+d] /= v
			}
		}
	}
	return grad, prev
}

// boundaryOffset fills the tangential offset from the cell center to
// the boundary face center, the lever arm of the reconstructed cell
// value on non-orthogonal faces.
func boundaryOffset(q *mesh.Quantities, f, cell int, out *[3]float64) {
	surf := q.BFaceSurf[f]
	if surf <= 0 {
		*out = [3]float64{}
		return
	}
	var delta, dn [3]float64
	var dotn float64
	for d := 0; d < 3; d++ {
		delta[d] = q.BFaceCog[3*f+d] - q.CellCen[3*cell+d]
		dn[d] = q.BFaceNormal[3*f+d] / surf
	}
	dotn = delta[0]*dn[0] + delta[1]*dn[1] + delta[2]*dn[2]
	for d := 0; d < 3; d++ {
		out[d] = delta[d] - dotn*dn[d]
	}
}

// GradientVector computes the Green-Gauss gradient of a 3-component
// field, 9 per cell laid out component-major (g[9c+3i+d] is the d
// derivative of component i). Boundary face values couple the
// components through the 3x3 blocks of the coefficient structure.
func GradientVector(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, vcc *bc.VectorCoeffs, inc, nswrgr int, epsrgr float64,
	v []float64) []float64 {

	if c == nil {
		c = utils.Serial()
	}
	if nswrgr < 1 {
		nswrgr = 1
	}
	var (
		grad = make([]float64, 9*m.NCellsExt)
		prev = make([]float64, 9*m.NCellsExt)
	)
	for sweep := 0; sweep < nswrgr; sweep++ {
		grad, prev = prev, grad
		recon := sweep > 0
		for i := range grad {
			grad[i] = 0
		}

		for f := 0; f < m.NIFaces; f++ {
			var (
				i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
				w    = q.Weight[f]
			)
			for comp := 0; comp < 3; comp++ {
				pfac := w*v[3*i+comp] + (1-w)*v[3*j+comp]
				if recon {
					for d := 0; d < 3; d++ {
						pfac += 0.5 * (prev[9*i+3*comp+d] + prev[9*j+3*comp+d]) * q.DofIJ[3*f+d]
					}
				}
				for d := 0; d < 3; d++ {
					s := q.IFaceNormal[3*f+d]
					grad[9*i+3*comp+d] += pfac * s
					grad[9*j+3*comp+d] -= pfac * s
				}
			}
		}
		for f := 0; f < m.NBFaces; f++ {
			i := m.BFaceCells[f]
			if i < 0 {
				continue
			}
			var iip [3]float64
			if recon {
				boundaryOffset(q, f, i, &iip)
			}
			for comp := 0; comp < 3; comp++ {
				pfac := float64(inc) * vcc.A[3*f+comp]
				for k := 0; k < 3; k++ {
					pik := v[3*i+k]
					if recon {
						for d := 0; d < 3; d++ {
							pik += prev[9*i+3*k+d] * iip[d]
						}
					}
					pfac += vcc.B[9*f+3*comp+k] * pik
				}
				for d := 0; d < 3; d++ {
					grad[9*i+3*comp+d] += pfac * q.BFaceNormal[3*f+d]
				}
			}
		}
		for cell := 0; cell < m.NCells; cell++ {
			if vol := q.CellVol[cell]; vol > 0 {
				for k := 0; k < 9; k++ {
					grad[9*cell+k] /= vol
				}
			}
		}
		if sync != nil {
			sync.SyncTensor(grad)
		}
		if !recon {
			continue
		}
		var delta, norm float64
		for cell := 0; cell < m.NCells; cell++ {
			for k := 0; k < 9; k++ {
				g := grad[9*cell+k]
				dg := g - prev[9*cell+k]
				delta += q.CellVol[cell] * dg * dg
				norm += q.CellVol[cell] * g * g
			}
		}
		delta = c.AllReduceFloat64(delta, utils.OpSum)
		norm = c.AllReduceFloat64(norm, utils.OpSum)
		if delta <= epsrgr*epsrgr*math.Max(norm, 1e-300) {
			break
		}
	}
	return grad
}
