package operators

import "github.com/notargets/gofv/mesh"

// FaceViscosity averages the cell viscosity c onto faces and folds in
// the surface-over-distance metric, yielding the coefficients the
// diffusion operators expect. mode 0 takes the arithmetic mean, any
// other value the distance-weighted harmonic mean. Boundary faces
// carry the bare surface; the exchange coefficient in bf supplies the
// rest.
func FaceViscosity(m *mesh.Mesh, q *mesh.Quantities, mode int, c []float64) (iVisc, bVisc []float64) {
	iVisc = make([]float64, m.NIFaces)
	bVisc = make([]float64, m.NBFaces)

	for f := 0; f < m.NIFaces; f++ {
		var (
			i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
			w    float64
		)
		if mode == 0 {
			w = 0.5 * (c[i] + c[j])
		} else {
			den := q.Weight[f]*c[i] + (1-q.Weight[f])*c[j]
			if den > 0 {
				w = c[i] * c[j] / den
			}
		}
		if q.IDist[f] > 0 {
			iVisc[f] = w * q.IFaceSurf[f] / q.IDist[f]
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		bVisc[f] = q.BFaceSurf[f]
	}
	return iVisc, bVisc
}

// FaceViscosityAniso projects a symmetric cell viscosity tensor (6 per
// cell, Voigt order xx yy zz xy yz xz) onto the face normals and
// combines the two sides harmonically over their sub-distances. For an
// isotropic tensor it reduces to FaceViscosity in harmonic mode.
func FaceViscosityAniso(m *mesh.Mesh, q *mesh.Quantities, c []float64) (iVisc, bVisc []float64) {
	iVisc = make([]float64, m.NIFaces)
	bVisc = make([]float64, m.NBFaces)

	for f := 0; f < m.NIFaces; f++ {
		var (
			i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
			surf = q.IFaceSurf[f]
		)
		if surf <= 0 || q.IDist[f] <= 0 {
			continue
		}
		n := [3]float64{
			q.IFaceNormal[3*f] / surf,
			q.IFaceNormal[3*f+1] / surf,
			q.IFaceNormal[3*f+2] / surf,
		}
		var (
			vi = normalViscosity(c[6*i:6*i+6], n)
			vj = normalViscosity(c[6*j:6*j+6], n)
			di = (1 - q.Weight[f]) * q.IDist[f]
			dj = q.Weight[f] * q.IDist[f]
		)
		if vi > 0 && vj > 0 {
			iVisc[f] = surf / (di/vi + dj/vj)
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		bVisc[f] = q.BFaceSurf[f]
	}
	return iVisc, bVisc
}

// normalViscosity evaluates n.K.n for a Voigt-packed symmetric tensor.
func normalViscosity(k []float64, n [3]float64) float64 {
	return k[0]*n[0]*n[0] + k[1]*n[1]*n[1] + k[2]*n[2]*n[2] +
		2*(k[3]*n[0]*n[1] + k[4]*n[1]*n[2] + k[5]*n[0]*n[2])
}
