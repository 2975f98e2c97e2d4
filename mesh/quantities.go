package mesh

import (
	"fmt"
	"math"
)

// Synchronizer spreads owned-cell values onto the ghost tail of a
// cell-dimensioned array. A nil Synchronizer means no ghosts.
type Synchronizer interface {
	SyncScalar(v []float64)
	SyncVector(v []float64)
	SyncSymTensor(v []float64)
	SyncTensor(v []float64)
	SyncStrided(v []float64, stride int)
	SyncNum(v []int64)
}

// Quantities holds the metric data derived from the mesh topology and
// vertex coordinates. Face normals are area vectors; Surf slices carry
// their norms. Cell arrays are sized NCellsExt so ghost values can be
// synchronized in.
type Quantities struct {
	IFaceNormal []float64 // 3*NIFaces
	IFaceSurf   []float64
	IFaceCog    []float64
	BFaceNormal []float64
	BFaceSurf   []float64
	BFaceCog    []float64

	CellCen []float64 // 3*NCellsExt
	CellVol []float64 // NCellsExt

	IDist  []float64 // center-to-center distance projected on the normal
	BDist  []float64 // center-to-boundary-face distance projected on the normal
	Weight []float64 // interpolation weight of the first adjacent cell
	DofIJ  []float64 // 3*NIFaces, face cog offset from the weighted line point

	MinVol, MaxVol float64
	NNegVol        int
}

// ComputeQuantities derives all metric quantities. With ghosts present the
// synchronizer fills ghost cell centers and volumes before the face-derived
// quantities are formed.
func ComputeQuantities(m *Mesh, sync Synchronizer) *Quantities {
	q := &Quantities{
		IFaceNormal: make([]float64, 3*m.NIFaces),
		IFaceSurf:   make([]float64, m.NIFaces),
		IFaceCog:    make([]float64, 3*m.NIFaces),
		BFaceNormal: make([]float64, 3*m.NBFaces),
		BFaceSurf:   make([]float64, m.NBFaces),
		BFaceCog:    make([]float64, 3*m.NBFaces),
		CellCen:     make([]float64, 3*m.NCellsExt),
		CellVol:     make([]float64, m.NCellsExt),
		IDist:       make([]float64, m.NIFaces),
		BDist:       make([]float64, m.NBFaces),
		Weight:      make([]float64, m.NIFaces),
		DofIJ:       make([]float64, 3*m.NIFaces),
	}
	for f := 0; f < m.NIFaces; f++ {
		faceMetrics(m.VtxCoord, m.IFaceVertices(f),
			q.IFaceNormal[3*f:3*f+3], q.IFaceCog[3*f:3*f+3])
		q.IFaceSurf[f] = norm3(q.IFaceNormal[3*f : 3*f+3])
	}
	for f := 0; f < m.NBFaces; f++ {
		faceMetrics(m.VtxCoord, m.BFaceVertices(f),
			q.BFaceNormal[3*f:3*f+3], q.BFaceCog[3*f:3*f+3])
		q.BFaceSurf[f] = norm3(q.BFaceNormal[3*f : 3*f+3])
	}

	q.computeCellMetrics(m)

	if sync != nil {
		sync.SyncVector(q.CellCen)
		sync.SyncScalar(q.CellVol)
	}

	q.MinVol = math.Inf(1)
	q.MaxVol = math.Inf(-1)
	for c := 0; c < m.NCells; c++ {
		v := q.CellVol[c]
		if v < q.MinVol {
			q.MinVol = v
		}
		if v > q.MaxVol {
			q.MaxVol = v
		}
		if v <= 0 {
			q.NNegVol++
		}
	}
	if q.NNegVol > 0 {
		fmt.Printf("Mesh quantities: %d cells with non-positive volume\n", q.NNegVol)
	}

	for f := 0; f < m.NIFaces; f++ {
		var (
			i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
			n    = q.IFaceNormal[3*f : 3*f+3]
			surf = q.IFaceSurf[f]
			ij   [3]float64
			jf   [3]float64
		)
		for d := 0; d < 3; d++ {
			ij[d] = q.CellCen[3*j+d] - q.CellCen[3*i+d]
			jf[d] = q.CellCen[3*j+d] - q.IFaceCog[3*f+d]
		}
		if surf > 0 {
			q.IDist[f] = dot3(ij[:], n) / surf
		}
		den := dot3(ij[:], n)
		if den != 0 {
			q.Weight[f] = dot3(jf[:], n) / den
		} else {
			q.Weight[f] = 0.5
		}
		for d := 0; d < 3; d++ {
			xo := q.Weight[f]*q.CellCen[3*i+d] + (1-q.Weight[f])*q.CellCen[3*j+d]
			q.DofIJ[3*f+d] = q.IFaceCog[3*f+d] - xo
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		var (
			i    = m.BFaceCells[f]
			n    = q.BFaceNormal[3*f : 3*f+3]
			surf = q.BFaceSurf[f]
			ifv  [3]float64
		)
		if i < 0 || surf <= 0 {
			continue
		}
		for d := 0; d < 3; d++ {
			ifv[d] = q.BFaceCog[3*f+d] - q.CellCen[3*i+d]
		}
		q.BDist[f] = dot3(ifv[:], n) / surf
	}
	return q
}

// faceMetrics computes the area vector and center of gravity of one face
// ring by fanning triangles around the vertex mean. The normal is the sum of
// the triangle normals, the cog their area-weighted mean.
func faceMetrics(coord []float64, ring []int, normal, cog []float64) {
	var est [3]float64
	for _, v := range ring {
		for d := 0; d < 3; d++ {
			est[d] += coord[3*v+d]
		}
	}
	for d := 0; d < 3; d++ {
		est[d] /= float64(len(ring))
		normal[d] = 0
		cog[d] = 0
	}
	var areaSum float64
	for e := 0; e < len(ring); e++ {
		var (
			p  = ring[e]
			r  = ring[(e+1)%len(ring)]
			a  [3]float64
			b  [3]float64
			tn [3]float64
		)
		for d := 0; d < 3; d++ {
			a[d] = coord[3*p+d] - est[d]
			b[d] = coord[3*r+d] - est[d]
		}
		cross3(a[:], b[:], tn[:])
		for d := 0; d < 3; d++ {
			tn[d] *= 0.5
		}
		area := norm3(tn[:])
		areaSum += area
		for d := 0; d < 3; d++ {
			normal[d] += tn[d]
			cog[d] += area * (est[d] + coord[3*p+d] + coord[3*r+d]) / 3
		}
	}
	if areaSum > 0 {
		for d := 0; d < 3; d++ {
			cog[d] /= areaSum
		}
	} else {
		copy(cog, est[:])
	}
}

// computeCellMetrics integrates volumes and centroids over the face
// triangulation using the divergence theorem. Each face contributes with
// positive sign to its first cell and negative to the second.
func (q *Quantities) computeCellMetrics(m *Mesh) {
	var (
		vol = q.CellVol
		cen = q.CellCen
	)
	acc := func(cell int, sign float64, ring []int) {
		if cell < 0 || cell >= m.NCells {
			return
		}
		var est [3]float64
		for _, v := range ring {
			for d := 0; d < 3; d++ {
				est[d] += m.VtxCoord[3*v+d]
			}
		}
		for d := 0; d < 3; d++ {
			est[d] /= float64(len(ring))
		}
		for e := 0; e < len(ring); e++ {
			var (
				p  = ring[e]
				r  = ring[(e+1)%len(ring)]
				a  [3]float64
				b  [3]float64
				tn [3]float64
				tc [3]float64
			)
			for d := 0; d < 3; d++ {
				a[d] = m.VtxCoord[3*p+d] - est[d]
				b[d] = m.VtxCoord[3*r+d] - est[d]
				tc[d] = (est[d] + m.VtxCoord[3*p+d] + m.VtxCoord[3*r+d]) / 3
			}
			cross3(a[:], b[:], tn[:])
			for d := 0; d < 3; d++ {
				tn[d] *= 0.5
			}
			vol[cell] += sign * dot3(tc[:], tn[:]) / 3
			// Midpoint rule on x_d^2 for the centroid integral
			for d := 0; d < 3; d++ {
				var (
					m1 = (est[d] + m.VtxCoord[3*p+d]) / 2
					m2 = (m.VtxCoord[3*p+d] + m.VtxCoord[3*r+d]) / 2
					m3 = (m.VtxCoord[3*r+d] + est[d]) / 2
				)
				cen[3*cell+d] += sign * tn[d] * (m1*m1 + m2*m2 + m3*m3) / 6
			}
		}
	}
	for f := 0; f < m.NIFaces; f++ {
		ring := m.IFaceVertices(f)
		acc(m.IFaceCells[f][0], 1, ring)
		acc(m.IFaceCells[f][1], -1, ring)
	}
	for f := 0; f < m.NBFaces; f++ {
		acc(m.BFaceCells[f], 1, m.BFaceVertices(f))
	}
	for c := 0; c < m.NCells; c++ {
		if vol[c] != 0 {
			for d := 0; d < 3; d++ {
				cen[3*c+d] /= vol[c]
			}
		}
	}
}

func cross3(a, b, out []float64) {
	out[0] = a[1]*b[2] - a[2]*b[1]
	out[1] = a[2]*b[0] - a[0]*b[2]
	out[2] = a[0]*b[1] - a[1]*b[0]
}

func dot3(a, b []float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm3(a []float64) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}
