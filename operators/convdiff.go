package operators

import (
	"math"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// ConvectionDiffusionScalar adds the explicit part of the
// convection/diffusion balance of pvar to rhs:
//
//	rhs -= sum_f (m_f phi_f - mu_f grad(phi).S)
//
// The convective face value blends an upwind and a centered
// reconstruction according to e.BlendCv, and with e.IMasac the mass
// accumulation m_f*phi_i is deduced so that the pair of operators
// (matrix, explicit) forms a conservative scheme. pvar must hold
// synchronized ghost values.
func ConvectionDiffusionScalar(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, e *EquationParams, inc int, pvar []float64, bcc *bc.Coeffs,
	iMass, bMass, iVisc, bVisc []float64, rhs []float64) {

	convectionDiffusionScalar(m, q, sync, c, e, inc, pvar, nil, bcc,
		iMass, bMass, iVisc, bVisc, rhs)
}

// ConvectionDiffusionThermal is the scalar operator for a temperature
// equation: the convective part of each face flux is weighted by the
// specific heat of the upstream cell, the diffusive part is not.
func ConvectionDiffusionThermal(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, e *EquationParams, inc int, pvar, xcpp []float64, bcc *bc.Coeffs,
	iMass, bMass, iVisc, bVisc []float64, rhs []float64) {

	convectionDiffusionScalar(m, q, sync, c, e, inc, pvar, xcpp, bcc,
		iMass, bMass, iVisc, bVisc, rhs)
}

func convectionDiffusionScalar(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, e *EquationParams, inc int, pvar, xcpp []float64, bcc *bc.Coeffs,
	iMass, bMass, iVisc, bVisc []float64, rhs []float64) {

	var (
		iconv  = float64(e.IConv)
		idiff  = float64(e.IDiff)
		imasac = float64(e.IMasac)
		blend  = e.BlendCv
		finc   = float64(inc)
	)

	var grad []float64
	if e.IRcflu == 1 || e.IRcflb == 1 {
		grad = GradientScalar(m, q, sync, c, bcc, inc, e.NSwRgr, e.EpsRgr, pvar)
	}

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		pip, pjp := pvar[i], pvar[j]
		if e.IRcflu == 1 {
			var iip, jjp [3]float64
			interiorOffsets(q, f, i, j, &iip, &jjp)
			for d := 0; d < 3; d++ {
				pip += grad[3*i+d] * iip[d]
				pjp += grad[3*j+d] * jjp[d]
			}
		}
		w := q.Weight[f]
		pf := w*pip + (1-w)*pjp
		pif := blend*pf + (1-blend)*pvar[i]
		pjf := blend*pf + (1-blend)*pvar[j]

		mf := iMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		cpi, cpj := 1.0, 1.0
		if xcpp != nil {
			cpi, cpj = xcpp[i], xcpp[j]
		}
		diff := idiff * iVisc[f] * (pip - pjp)
		fluxi := iconv*cpi*(flui*pif+fluj*pjf-imasac*mf*pvar[i]) + diff
		fluxj := iconv*cpj*(flui*pif+fluj*pjf-imasac*mf*pvar[j]) + diff
		rhs[i] -= fluxi
		rhs[j] += fluxj
	}

	for f := 0; f < m.NBFaces; f++ {
		i := m.BFaceCells[f]
		if i < 0 {
			continue
		}
		pip := pvar[i]
		if e.IRcflb == 1 {
			var iip [3]float64
			boundaryOffset(q, f, i, &iip)
			for d := 0; d < 3; d++ {
				pip += grad[3*i+d] * iip[d]
			}
		}
		pfac := finc*bcc.A[f] + bcc.B[f]*pip

		mf := bMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		cpi := 1.0
		if xcpp != nil {
			cpi = xcpp[i]
		}
		flux := iconv*cpi*(flui*pvar[i]+fluj*pfac-imasac*mf*pvar[i]) +
			idiff*bVisc[f]*(finc*bcc.Af[f]+bcc.Bf[f]*pip)
		rhs[i] -= flux
	}
}

// ConvectionDiffusionVector is the three-component variant. v and rhs
// are interleaved with stride 3 and boundary face values couple the
// components through the 3x3 coefficient blocks.
func ConvectionDiffusionVector(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, e *EquationParams, inc int, v []float64, vcc *bc.VectorCoeffs,
	iMass, bMass, iVisc, bVisc []float64, rhs []float64) {

	var (
		iconv  = float64(e.IConv)
		idiff  = float64(e.IDiff)
		imasac = float64(e.IMasac)
		blend  = e.BlendCv
		finc   = float64(inc)
	)

	var grad []float64
	if e.IRcflu == 1 || e.IRcflb == 1 {
		grad = GradientVector(m, q, sync, c, vcc, inc, e.NSwRgr, e.EpsRgr, v)
	}

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		var iip, jjp [3]float64
		if e.IRcflu == 1 {
			interiorOffsets(q, f, i, j, &iip, &jjp)
		}
		w := q.Weight[f]
		mf := iMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		for cm := 0; cm < 3; cm++ {
			pi, pj := v[3*i+cm], v[3*j+cm]
			pip, pjp := pi, pj
			if e.IRcflu == 1 {
				for d := 0; d < 3; d++ {
					pip += grad[9*i+3*cm+d] * iip[d]
					pjp += grad[9*j+3*cm+d] * jjp[d]
				}
			}
			pf := w*pip + (1-w)*pjp
			pif := blend*pf + (1-blend)*pi
			pjf := blend*pf + (1-blend)*pj

			diff := idiff * iVisc[f] * (pip - pjp)
			rhs[3*i+cm] -= iconv*(flui*pif+fluj*pjf-imasac*mf*pi) + diff
			rhs[3*j+cm] += iconv*(flui*pif+fluj*pjf-imasac*mf*pj) + diff
		}
	}

	for f := 0; f < m.NBFaces; f++ {
		i := m.BFaceCells[f]
		if i < 0 {
			continue
		}
		var pip [3]float64
		for k := 0; k < 3; k++ {
			pip[k] = v[3*i+k]
		}
		if e.IRcflb == 1 {
			var iip [3]float64
			boundaryOffset(q, f, i, &iip)
			for k := 0; k < 3; k++ {
				for d := 0; d < 3; d++ {
					pip[k] += grad[9*i+3*k+d] * iip[d]
				}
			}
		}
		mf := bMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		for cm := 0; cm < 3; cm++ {
			pfac := finc * vcc.A[3*f+cm]
			dfac := finc * vcc.Af[3*f+cm]
			for k := 0; k < 3; k++ {
				pfac += vcc.B[9*f+3*cm+k] * pip[k]
				dfac += vcc.Bf[9*f+3*cm+k] * pip[k]
			}
			pi := v[3*i+cm]
			rhs[3*i+cm] -= iconv*(flui*pi+fluj*pfac-imasac*mf*pi) +
				idiff*bVisc[f]*dfac
		}
	}
}

// ConvectionDiffusionTensor is the symmetric-tensor variant. t and rhs
// are interleaved with stride 6 and boundary face values couple the
// components through the 6x6 coefficient blocks.
func ConvectionDiffusionTensor(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, e *EquationParams, inc int, t []float64, tcc *bc.TensorCoeffs,
	iMass, bMass, iVisc, bVisc []float64, rhs []float64) {

	var (
		iconv  = float64(e.IConv)
		idiff  = float64(e.IDiff)
		imasac = float64(e.IMasac)
		blend  = e.BlendCv
		finc   = float64(inc)
	)

	var grad []float64
	if e.IRcflu == 1 || e.IRcflb == 1 {
		grad = gradientTensor(m, q, sync, c, tcc, inc, e.NSwRgr, e.EpsRgr, t)
	}

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		var iip, jjp [3]float64
		if e.IRcflu == 1 {
			interiorOffsets(q, f, i, j, &iip, &jjp)
		}
		w := q.Weight[f]
		mf := iMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		for cm := 0; cm < 6; cm++ {
			pi, pj := t[6*i+cm], t[6*j+cm]
			pip, pjp := pi, pj
			if e.IRcflu == 1 {
				for d := 0; d < 3; d++ {
					pip += grad[18*i+3*cm+d] * iip[d]
					pjp += grad[18*j+3*cm+d] * jjp[d]
				}
			}
			pf := w*pip + (1-w)*pjp
			pif := blend*pf + (1-blend)*pi
			pjf := blend*pf + (1-blend)*pj

			diff := idiff * iVisc[f] * (pip - pjp)
			rhs[6*i+cm] -= iconv*(flui*pif+fluj*pjf-imasac*mf*pi) + diff
			rhs[6*j+cm] += iconv*(flui*pif+fluj*pjf-imasac*mf*pj) + diff
		}
	}

	for f := 0; f < m.NBFaces; f++ {
		i := m.BFaceCells[f]
		if i < 0 {
			continue
		}
		var pip [6]float64
		for k := 0; k < 6; k++ {
			pip[k] = t[6*i+k]
		}
		if e.IRcflb == 1 {
			var iip [3]float64
			boundaryOffset(q, f, i, &iip)
			for k := 0; k < 6; k++ {
				for d := 0; d < 3; d++ {
					pip[k] += grad[18*i+3*k+d] * iip[d]
				}
			}
		}
		mf := bMass[f]
		flui := 0.5 * (mf + math.Abs(mf))
		fluj := 0.5 * (mf - math.Abs(mf))

		for cm := 0; cm < 6; cm++ {
			pfac := finc * tcc.A[6*f+cm]
			dfac := finc * tcc.Af[6*f+cm]
			for k := 0; k < 6; k++ {
				pfac += tcc.B[36*f+6*cm+k] * pip[k]
				dfac += tcc.Bf[36*f+6*cm+k] * pip[k]
			}
			pi := t[6*i+cm]
			rhs[6*i+cm] -= iconv*(flui*pi+fluj*pfac-imasac*mf*pi) +
				idiff*bVisc[f]*dfac
		}
	}
}

// gradientTensor reconstructs cell gradients of a symmetric-tensor
// field, 18 values per cell laid out component-major like the vector
// gradient.
func gradientTensor(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, tcc *bc.TensorCoeffs, inc, nswrgr int, epsrgr float64,
	t []float64) []float64 {

	if c == nil {
		c = utils.Serial()
	}
	if nswrgr < 1 {
		nswrgr = 1
	}
	var (
		grad []float64
		prev []float64
	)
	for sweep := 0; sweep < nswrgr; sweep++ {
		grad, prev = gradientTensorSweep(m, q, tcc, inc, sweep > 0, t, grad, prev)
		if sync != nil {
			sync.SyncStrided(grad, 18)
		}
		if sweep == 0 {
			continue
		}
		var delta, norm float64
		for cl := 0; cl < m.NCells; cl++ {
			vol := q.CellVol[cl]
			for k := 0; k < 18; k++ {
				d := grad[18*cl+k] - prev[18*cl+k]
				delta += vol * d * d
				norm += vol * grad[18*cl+k] * grad[18*cl+k]
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

func gradientTensorSweep(m *mesh.Mesh, q *mesh.Quantities, tcc *bc.TensorCoeffs,
	inc int, recon bool, t, grad, prev []float64) (cur, last []float64) {

	grad, prev = prev, grad
	if grad == nil {
		grad = make([]float64, 18*m.NCellsExt)
	}
	if recon && prev == nil {
		recon = false
	}
	for k := range grad {
		grad[k] = 0
	}
	finc := float64(inc)

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		w := q.Weight[f]
		for cm := 0; cm < 6; cm++ {
			pfac := w*t[6*i+cm] + (1-w)*t[6*j+cm]
			if recon {
				for d := 0; d < 3; d++ {
					pfac += 0.5 * (prev[18*i+3*cm+d] + prev[18*j+3*cm+d]) *
						q.DofIJ[3*f+d]
				}
			}
			for d := 0; d < 3; d++ {
				s := pfac * q.IFaceNormal[3*f+d]
				grad[18*i+3*cm+d] += s
				grad[18*j+3*cm+d] -= s
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
		for cm := 0; cm < 6; cm++ {
			pfac := finc * tcc.A[6*f+cm]
			for k := 0; k < 6; k++ {
				pk := t[6*i+k]
				if recon {
					for d := 0; d < 3; d++ {
						pk += prev[18*i+3*k+d] * iip[d]
					}
				}
				pfac += tcc.B[36*f+6*cm+k] * pk
			}
			for d := 0; d < 3; d++ {
				grad[18*i+3*cm+d] += pfac * q.BFaceNormal[3*f+d]
			}
		}
	}
	for cl := 0; cl < m.NCells; cl++ {
		vol := q.CellVol[cl]
		if vol <= 0 {
			continue
		}
		for k := 0; k < 18; k++ {
			grad[18*cl+k] /= vol
		}
	}
	return grad, prev
}

// interiorOffsets fills the offsets from the two adjacent cell centers
// to their projections on the face, the reconstruction lever arms of
// non-orthogonal faces.
func interiorOffsets(q *mesh.Quantities, f, i, j int, iip, jjp *[3]float64) {
	surf := q.IFaceSurf[f]
	if surf <= 0 {
		*iip = [3]float64{}
		*jjp = [3]float64{}
		return
	}
	var n [3]float64
	for d := 0; d < 3; d++ {
		n[d] = q.IFaceNormal[3*f+d] / surf
		iip[d] = q.IFaceCog[3*f+d] - q.CellCen[3*i+d]
		jjp[d] = q.IFaceCog[3*f+d] - q.CellCen[3*j+d]
	}
	di := iip[0]*n[0] + iip[1]*n[1] + iip[2]*n[2]
	dj := jjp[0]*n[0] + jjp[1]*n[1] + jjp[2]*n[2]
	for d := 0; d < 3; d++ {
		iip[d] -= di * n[d]
		jjp[d] -= dj * n[d]
	}
}
