package mesh

import (
	"log"
	"math"
)

// Quality thresholds for flagging cells.
const (
	qualityWeightMin = 0.05 // face weighting must stay below 1 - this margin
	qualityOffsetMin = 0.1
	qualityOrthoMin  = 0.1 // cosine against the center-to-center line
)

// QualityCriteria holds per-entity quality measures.
type QualityCriteria struct {
	FaceWeighting []float64 // worst off-centering of each interior face
	Offsetting    []float64 // per cell, 1 is ideal, towards 0 is degenerate
	IFaceOrtho    []float64 // non-orthogonality angle in degrees
	BFaceOrtho    []float64
}

// ComputeQuality evaluates the quality criteria from the metric quantities.
func ComputeQuality(m *Mesh, q *Quantities) *QualityCriteria {
	qc := &QualityCriteria{
		FaceWeighting: make([]float64, m.NIFaces),
		Offsetting:    make([]float64, m.NCells),
		IFaceOrtho:    make([]float64, m.NIFaces),
		BFaceOrtho:    make([]float64, m.NBFaces),
	}
	for c := range qc.Offsetting {
		qc.Offsetting[c] = 1
	}
	for f := 0; f < m.NIFaces; f++ {
		var (
			i, j = m.IFaceCells[f][0], m.IFaceCells[f][1]
			n    = q.IFaceNormal[3*f : 3*f+3]
			ij   [3]float64
			ifc  [3]float64
			jfc  [3]float64
		)
		for d := 0; d < 3; d++ {
			ij[d] = q.CellCen[3*j+d] - q.CellCen[3*i+d]
			ifc[d] = q.IFaceCog[3*f+d] - q.CellCen[3*i+d]
			jfc[d] = q.CellCen[3*j+d] - q.IFaceCog[3*f+d]
		}
		den := dot3(ij[:], n)
		if den != 0 {
			w1 := dot3(ifc[:], n) / den
			w2 := dot3(jfc[:], n) / den
			qc.FaceWeighting[f] = math.Max(w1, w2)
		} else {
			qc.FaceWeighting[f] = math.Inf(1)
		}

		cosa := cosines(ij[:], n)
		qc.IFaceOrtho[f] = math.Acos(math.Min(cosa, 1)) * 180 / math.Pi

		// Offsetting folds the face offset into both adjacent cells
		off := norm3(q.DofIJ[3*f : 3*f+3])
		surf := q.IFaceSurf[f]
		for _, cell := range []int{i, j} {
			if cell < 0 || cell >= m.NCells || q.CellVol[cell] <= 0 {
				continue
			}
			v := 1 - math.Cbrt(off*surf/q.CellVol[cell])
			if v < qc.Offsetting[cell] {
				qc.Offsetting[cell] = v
			}
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		var (
			i   = m.BFaceCells[f]
			n   = q.BFaceNormal[3*f : 3*f+3]
			ifc [3]float64
		)
		if i < 0 {
			continue
		}
		for d := 0; d < 3; d++ {
			ifc[d] = q.BFaceCog[3*f+d] - q.CellCen[3*i+d]
		}
		qc.BFaceOrtho[f] = math.Acos(math.Min(cosines(ifc[:], n), 1)) * 180 / math.Pi
	}
	return qc
}

// FlagBadCells marks cells failing any quality threshold. The flag slice is
// sized NCellsExt so it can be synchronized over ghosts.
func FlagBadCells(m *Mesh, q *Quantities) []bool {
	var (
		qc    = ComputeQuality(m, q)
		flags = make([]bool, m.NCellsExt)
		count int
	)
	for c := 0; c < m.NCells; c++ {
		if qc.Offsetting[c] < qualityOffsetMin {
			flags[c] = true
		}
	}
	for f := 0; f < m.NIFaces; f++ {
		// The two side fractions sum to one, so the max sits in [0.5, inf)
		bad := qc.FaceWeighting[f] > 1-qualityWeightMin
		if math.Cos(qc.IFaceOrtho[f]*math.Pi/180) < qualityOrthoMin {
			bad = true
		}
		if bad {
			for side := 0; side < 2; side++ {
				if cell := m.IFaceCells[f][side]; cell >= 0 && cell < m.NCells {
					flags[cell] = true
				}
			}
		}
	}
	for _, b := range flags[:m.NCells] {
		if b {
			count++
		}
	}
	if count > 0 {
		log.Printf("Mesh quality: %d cells flagged bad of %d", count, m.NCells)
	}
	return flags
}

// cosines returns |cos| of the angle between two vectors, 0 when degenerate.
func cosines(a, b []float64) float64 {
	na, nb := norm3(a), norm3(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Abs(dot3(a, b)) / (na * nb)
}
