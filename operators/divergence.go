package operators

import "github.com/notargets/gofv/mesh"

// Divergence accumulates the face mass fluxes into their adjacent
// cells. Each interior flux counts positively for its first cell and
// negatively for the second; boundary fluxes count positively for
// their owner. With init the divergence is zeroed first, otherwise
// the contributions add to the caller's values.
func Divergence(m *mesh.Mesh, init bool, iMass, bMass, div []float64) {
	if init {
		for c := range div {
			div[c] = 0
		}
	}
	for f := 0; f < m.NIFaces; f++ {
		div[m.IFaceCells[f][0]] += iMass[f]
		div[m.IFaceCells[f][1]] -= iMass[f]
	}
	for f := 0; f < m.NBFaces; f++ {
		if c := m.BFaceCells[f]; c >= 0 {
			div[c] += bMass[f]
		}
	}
}
