package operators

import (
	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// FaceDiffusionPotential adds the diffusive flux of the potential p to
// the face mass fluxes: iVisc*(p_i - p_j) on interior faces and the
// boundary flux af + bf*p_i' on boundary faces. With nswrgr > 1 the
// fluxes are corrected for mesh non-orthogonality using the cell
// gradient of p weighted by the cell diffusivity visel (nil for unit
// diffusivity). p must hold synchronized ghost values. With init the
// mass fluxes are zeroed first.
func FaceDiffusionPotential(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, init bool, inc, nswrgr int, epsrgr float64,
	p []float64, bcc *bc.Coeffs, iVisc, bVisc, visel []float64,
	iMass, bMass []float64) {

	if init {
		for f := range iMass {
			iMass[f] = 0
		}
		for f := range bMass {
			bMass[f] = 0
		}
	}

	recon := nswrgr > 1
	var grad []float64
	if recon {
		grad = GradientScalar(m, q, sync, c, bcc, inc, nswrgr, epsrgr, p)
	}

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		flux := iVisc[f] * (p[i] - p[j])
		if recon && q.IDist[f] > 0 {
			var (
				vi, vj = 1.0, 1.0
				corr   float64
			)
			if visel != nil {
				vi, vj = visel[i], visel[j]
			}
			dt := tangentIJ(m, q, f)
			for d := 0; d < 3; d++ {
				corr += 0.5 * (vi*grad[3*i+d] + vj*grad[3*j+d]) * dt[d]
			}
			flux += corr * q.IFaceSurf[f] / q.IDist[f]
		}
		iMass[f] += flux
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
				pip += grad[3*i+d] * iip[d]
			}
		}
		bMass[f] += bVisc[f] * (float64(inc)*bcc.Af[f] + bcc.Bf[f]*pip)
	}
}

// FaceAnisotropicDiffusionPotential is the symmetric-tensor variant:
// the face coefficients come from the normal projections of the cell
// tensors (6 per cell, Voigt order) and the non-orthogonality
// correction applies the full tensor to the cell gradients.
func FaceAnisotropicDiffusionPotential(m *mesh.Mesh, q *mesh.Quantities, sync mesh.Synchronizer,
	c *utils.Comm, init bool, inc, nswrgr int, epsrgr float64,
	p []float64, bcc *bc.Coeffs, viscel []float64,
	iMass, bMass []float64) {

	if init {
		for f := range iMass {
			iMass[f] = 0
		}
		for f := range bMass {
			bMass[f] = 0
		}
	}

	iVisc, bVisc := FaceViscosityAniso(m, q, viscel)

	recon := nswrgr > 1
	var grad []float64
	if recon {
		grad = GradientScalar(m, q, sync, c, bcc, inc, nswrgr, epsrgr, p)
	}

	for f := 0; f < m.NIFaces; f++ {
		i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
		flux := iVisc[f] * (p[i] - p[j])
		if recon && q.IDist[f] > 0 {
			var kgi, kgj [3]float64
			symv(viscel[6*i:6*i+6], grad[3*i:3*i+3], &kgi)
			symv(viscel[6*j:6*j+6], grad[3*j:3*j+3], &kgj)
			dt := tangentIJ(m, q, f)
			var corr float64
			for d := 0; d < 3; d++ {
				corr += 0.5 * (kgi[d] + kgj[d]) * dt[d]
			}
			flux += corr * q.IFaceSurf[f] / q.IDist[f]
		}
		iMass[f] += flux
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
				pip += grad[3*i+d] * iip[d]
			}
		}
		bMass[f] += bVisc[f] * (float64(inc)*bcc.Af[f] + bcc.Bf[f]*pip)
	}
}

// tangentIJ returns the component of the center-to-center vector lying
// in the face plane, the lever arm of the non-orthogonality correction.
func tangentIJ(m *mesh.Mesh, q *mesh.Quantities, f int) [3]float64 {
	var (
		i, j  = m.IFaceCells[f][0], m.IFaceCells[f][1]
		surf  = q.IFaceSurf[f]
		delta [3]float64
		n     [3]float64
	)
	if surf <= 0 {
		return delta
	}
	for d := 0; d < 3; d++ {
		delta[d] = q.CellCen[3*j+d] - q.CellCen[3*i+d]
		n[d] = q.IFaceNormal[3*f+d] / surf
	}
	dn := delta[0]*n[0] + delta[1]*n[1] + delta[2]*n[2]
	for d := 0; d < 3; d++ {
		delta[d] -= dn * n[d]
	}
	return delta
}

// symv applies a Voigt-packed symmetric tensor to a vector.
func symv(k, v []float64, out *[3]float64) {
	out[0] = k[0]*v[0] + k[3]*v[1] + k[5]*v[2]
	out[1] = k[3]*v[0] + k[1]*v[1] + k[4]*v[2]
	out[2] = k[5]*v[0] + k[4]*v[1] + k[2]*v[2]
}
