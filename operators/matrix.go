package operators

import (
	"math"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
)

// MatrixScalar assembles the implicit part of a scalar transport
// equation into a diagonal array da (one entry per cell, owned and
// ghost) and an extra-diagonal array xa. With symmetric the convective
// terms must be off and xa holds one entry per interior face, otherwise
// two: xa[2f] couples cell i to j and xa[2f+1] couples j to i. rovsdt
// seeds the diagonal (nil for zero) and xcpp weights the convective
// part for temperature equations (nil for unit). When e.NDircl leaves
// the equation without any Dirichlet point the diagonal is slightly
// reinforced so the system stays invertible.
func MatrixScalar(m *mesh.Mesh, e *EquationParams, symmetric bool,
	bcc *bc.Coeffs, rovsdt, xcpp, iMass, bMass, iVisc, bVisc []float64) (da, xa []float64) {

	var (
		iconv  = float64(e.IConv)
		idiff  = float64(e.IDiff)
		imasac = float64(e.IMasac)
		theta  = e.Theta
	)

	da = make([]float64, m.NCellsExt)
	if rovsdt != nil {
		copy(da[:m.NCells], rovsdt[:m.NCells])
	}

	if symmetric {
		xa = make([]float64, m.NIFaces)
		for f := 0; f < m.NIFaces; f++ {
			i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
			xa[f] = -theta * idiff * iVisc[f]
			da[i] -= xa[f]
			da[j] -= xa[f]
		}
		for f := 0; f < m.NBFaces; f++ {
			i := m.BFaceCells[f]
			if i < 0 {
				continue
			}
			da[i] += theta * idiff * bVisc[f] * bcc.Bf[f]
		}
	} else {
		xa = make([]float64, 2*m.NIFaces)
		for f := 0; f < m.NIFaces; f++ {
			i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
			mf := iMass[f]
			flui := 0.5 * (mf - math.Abs(mf))
			fluj := -0.5 * (mf + math.Abs(mf))

			cpi, cpj := 1.0, 1.0
			if xcpp != nil {
				cpi, cpj = xcpp[i], xcpp[j]
			}
			xa[2*f] = theta * (iconv*cpi*flui - idiff*iVisc[f])
			xa[2*f+1] = theta * (iconv*cpj*fluj - idiff*iVisc[f])
			da[i] += -xa[2*f] + iconv*cpi*(theta-imasac)*mf
			da[j] += -xa[2*f+1] + iconv*cpj*(imasac-theta)*mf
		}
		for f := 0; f < m.NBFaces; f++ {
			i := m.BFaceCells[f]
			if i < 0 {
				continue
			}
			mf := bMass[f]
			flui := 0.5 * (mf - math.Abs(mf))

			cpi := 1.0
			if xcpp != nil {
				cpi = xcpp[i]
			}
			da[i] += iconv*cpi*(theta*flui*(bcc.B[f]-1)+(theta-imasac)*mf) +
				idiff*theta*bVisc[f]*bcc.Bf[f]
		}
	}

	if e.NDircl <= 0 {
		const epsi = 1e-7
		for cl := 0; cl < m.NCells; cl++ {
			da[cl] *= 1 + epsi
		}
	}
	return da, xa
}

// MatrixVector assembles the implicit part of a vector transport
// equation. da holds row-major 3x3 blocks per cell, coupled through the
// boundary coefficient blocks; the extra-diagonal xa is shared by the
// three components since mass flux and viscosity are scalar per face.
// rovsdt seeds the block diagonals (nil for zero).
func MatrixVector(m *mesh.Mesh, e *EquationParams, symmetric bool,
	vcc *bc.VectorCoeffs, rovsdt, iMass, bMass, iVisc, bVisc []float64) (da, xa []float64) {

	var (
		iconv  = float64(e.IConv)
		idiff  = float64(e.IDiff)
		imasac = float64(e.IMasac)
		theta  = e.Theta
	)

	da = make([]float64, 9*m.NCellsExt)
	if rovsdt != nil {
		for cl := 0; cl < m.NCells; cl++ {
			for cm := 0; cm < 3; cm++ {
				da[9*cl+4*cm] = rovsdt[cl]
			}
		}
	}

	if symmetric {
		xa = make([]float64, m.NIFaces)
		for f := 0; f < m.NIFaces; f++ {
			i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
			xa[f] = -theta * idiff * iVisc[f]
			for cm := 0; cm < 3; cm++ {
				da[9*i+4*cm] -= xa[f]
				da[9*j+4*cm] -= xa[f]
			}
		}
	} else {
		xa = make([]float64, 2*m.NIFaces)
		for f := 0; f < m.NIFaces; f++ {
			i, j := m.IFaceCells[f][0], m.IFaceCells[f][1]
			mf := iMass[f]
			flui := 0.5 * (mf - math.Abs(mf))
			fluj := -0.5 * (mf + math.Abs(mf))
			xa[2*f] = theta * (iconv*flui - idiff*iVisc[f])
			xa[2*f+1] = theta * (iconv*fluj - idiff*iVisc[f])
			for cm := 0; cm < 3; cm++ {
				da[9*i+4*cm] += -xa[2*f] + iconv*(theta-imasac)*mf
				da[9*j+4*cm] += -xa[2*f+1] + iconv*(imasac-theta)*mf
			}
		}
	}

	for f := 0; f < m.NBFaces; f++ {
		i := m.BFaceCells[f]
		if i < 0 {
			continue
		}
		mf := bMass[f]
		flui := 0.5 * (mf - math.Abs(mf))
		for cm := 0; cm < 3; cm++ {
			for k := 0; k < 3; k++ {
				d := da[9*i+3*cm+k]
				d += idiff * theta * bVisc[f] * vcc.Bf[9*f+3*cm+k]
				if !symmetric {
					b := vcc.B[9*f+3*cm+k]
					if cm == k {
						d += iconv * (theta*flui*(b-1) + (theta-imasac)*mf)
					} else {
						d += iconv * theta * flui * b
					}
				}
				da[9*i+3*cm+k] = d
			}
		}
	}

	if e.NDircl <= 0 {
		const epsi = 1e-7
		for cl := 0; cl < m.NCells; cl++ {
			for cm := 0; cm < 3; cm++ {
				da[9*cl+4*cm] *= 1 + epsi
			}
		}
	}
	return da, xa
}
