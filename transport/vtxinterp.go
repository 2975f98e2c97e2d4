package transport

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofv/mesh"
)

// VtxMethod selects how vertex values are carried onto cell centers.
type VtxMethod int

const (
	// VtxUnweighted averages the incident vertex values.
	VtxUnweighted VtxMethod = iota
	// VtxShepard weights vertex values by inverse distance to the center.
	VtxShepard
	// VtxLSQ fits an affine function over the cell vertices and evaluates
	// it at the center.
	VtxLSQ
)

// VertexInterp interpolates between vertex and cell data. Weights and
// factorizations are cached per method and rebuilt when the mesh epoch
// changes. Results cover owned cells (resp. local vertices); synchronize
// the ghost tail afterwards if the caller needs it.
type VertexInterp struct {
	m *mesh.Mesh
	q *mesh.Quantities

	epoch int
	inv   []float64   // 1/valence per cell
	shep  []float64   // normalized weight per cell-vertex entry
	lsq   []lsqFactor // affine fit per cell
}

type lsqFactor struct {
	chol mat.Cholesky
	ok   bool
}

// NewVertexInterp wraps a mesh and its quantities for interpolation.
func NewVertexInterp(m *mesh.Mesh, q *mesh.Quantities) *VertexInterp {
	return &VertexInterp{m: m, q: q, epoch: m.Epoch}
}

// ToCells interpolates the interleaved vertex field vVar of the given
// stride onto cell centers, writing stride values per owned cell into
// cVar. vWeight, when non-nil, carries one multiplicative weight per
// vertex folded into the normalization.
func (vi *VertexInterp) ToCells(method VtxMethod, vWeight, vVar []float64, stride int, cVar []float64) error {
	vi.refresh()
	switch method {
	case VtxUnweighted:
		vi.applyUnweighted(vWeight, vVar, stride, cVar)
	case VtxShepard:
		vi.applyShepard(vWeight, vVar, stride, cVar)
	case VtxLSQ:
		vi.applyLSQ(vWeight, vVar, stride, cVar)
	default:
		return fmt.Errorf("vertex interpolation: unknown method %d", method)
	}
	return nil
}

// ToVertices spreads the interleaved cell field cVar of the given stride
// onto the vertices of the owned cells, normalizing per vertex. Only the
// unweighted and inverse-distance methods are available in this
// direction.
func (vi *VertexInterp) ToVertices(method VtxMethod, cVar []float64, stride int, vVar []float64) error {
	if method != VtxUnweighted && method != VtxShepard {
		return errors.New("vertex interpolation: cell to vertex supports unweighted and inverse-distance only")
	}
	vi.refresh()
	m := vi.m
	for i := range vVar[:stride*m.NVertices] {
		vVar[i] = 0
	}
	wsum := make([]float64, m.NVertices)
	for c := 0; c < m.NCells; c++ {
		for j := m.CellVtxIdx[c]; j < m.CellVtxIdx[c+1]; j++ {
			v := m.CellVtx[j]
			w := 1.0
			if method == VtxShepard {
				// floor keeps a center sitting on a vertex finite
				w = 1.0 / math.Max(vi.dist(c, v), epzero*epzero)
			}
			for k := 0; k < stride; k++ {
				vVar[v*stride+k] += w * cVar[c*stride+k]
			}
			wsum[v] += w
		}
	}
	for v := 0; v < m.NVertices; v++ {
		if wsum[v] <= 0 {
			continue
		}
		for k := 0; k < stride; k++ {
			vVar[v*stride+k] /= wsum[v]
		}
	}
	return nil
}

// refresh drops the cached weights when the mesh has been modified and
// makes sure the cell -> vertex adjacency exists.
func (vi *VertexInterp) refresh() {
	if vi.m.CellVtxIdx == nil {
		vi.m.BuildCellVertices()
	}
	if vi.epoch != vi.m.Epoch {
		vi.inv, vi.shep, vi.lsq = nil, nil, nil
		vi.epoch = vi.m.Epoch
	}
}

func (vi *VertexInterp) dist(c, v int) float64 {
	var s float64
	for k := 0; k < 3; k++ {
		d := vi.m.VtxCoord[3*v+k] - vi.q.CellCen[3*c+k]
		s += d * d
	}
	return math.Sqrt(s)
}

// offset returns the affine regressor (x_v - x_c, 1) of vertex v seen
// from the center of cell c.
func (vi *VertexInterp) offset(c, v int) [4]float64 {
	var r [4]float64
	for k := 0; k < 3; k++ {
		r[k] = vi.m.VtxCoord[3*v+k] - vi.q.CellCen[3*c+k]
	}
	r[3] = 1
	return r
}

func (vi *VertexInterp) applyUnweighted(vWeight, vVar []float64, stride int, cVar []float64) {
	m := vi.m
	if vWeight != nil {
		for c := 0; c < m.NCells; c++ {
			vi.cellMean(c, vWeight, vVar, stride, cVar)
		}
		return
	}
	if vi.inv == nil {
		vi.inv = make([]float64, m.NCells)
		for c := 0; c < m.NCells; c++ {
			if n := m.CellVtxIdx[c+1] - m.CellVtxIdx[c]; n > 0 {
				vi.inv[c] = 1.0 / float64(n)
			}
		}
	}
	for c := 0; c < m.NCells; c++ {
		for k := 0; k < stride; k++ {
			var s float64
			for j := m.CellVtxIdx[c]; j < m.CellVtxIdx[c+1]; j++ {
				s += vVar[m.CellVtx[j]*stride+k]
			}
			cVar[c*stride+k] = s * vi.inv[c]
		}
	}
}

func (vi *VertexInterp) applyShepard(vWeight, vVar []float64, stride int, cVar []float64) {
	m := vi.m
	if vi.shep == nil {
		vi.buildShepard()
	}
	for c := 0; c < m.NCells; c++ {
		for k := 0; k < stride; k++ {
			var num, den float64
			for j := m.CellVtxIdx[c]; j < m.CellVtxIdx[c+1]; j++ {
				w := vi.shep[j]
				if vWeight != nil {
					w *= vWeight[m.CellVtx[j]]
				}
				num += w * vVar[m.CellVtx[j]*stride+k]
				den += w
			}
			if den > 0 {
				cVar[c*stride+k] = num / den
			} else {
				cVar[c*stride+k] = 0
			}
		}
	}
}

// buildShepard caches the normalized inverse-distance weights. A vertex
// coincident with the cell center takes the whole weight of its cell,
// shared with any other coincident vertex.
func (vi *VertexInterp) buildShepard() {
	m := vi.m
	vi.shep = make([]float64, len(m.CellVtx))
	for c := 0; c < m.NCells; c++ {
		start, end := m.CellVtxIdx[c], m.CellVtxIdx[c+1]
		var (
			wsum       float64
			coincident bool
		)
		for j := start; j < end; j++ {
			w := 1.0 / vi.dist(c, m.CellVtx[j])
			if math.IsInf(w, 1) {
				coincident = true
				break
			}
			vi.shep[j] = w
			wsum += w
		}
		if coincident {
			var n float64
			for j := start; j < end; j++ {
				if math.IsInf(1.0/vi.dist(c, m.CellVtx[j]), 1) {
					vi.shep[j] = 1
					n++
				} else {
					vi.shep[j] = 0
				}
			}
			for j := start; j < end; j++ {
				vi.shep[j] /= n
			}
			continue
		}
		if wsum > 0 {
			for j := start; j < end; j++ {
				vi.shep[j] /= wsum
			}
		}
	}
}

func (vi *VertexInterp) applyLSQ(vWeight, vVar []float64, stride int, cVar []float64) {
	m := vi.m
	if vWeight == nil && vi.lsq == nil {
		vi.buildLSQ()
	}
	var (
		sym = mat.NewSymDense(4, nil)
		rhs = mat.NewVecDense(4, nil)
		sol = mat.NewVecDense(4, nil)
		loc mat.Cholesky
	)
	for c := 0; c < m.NCells; c++ {
		start, end := m.CellVtxIdx[c], m.CellVtxIdx[c+1]
		var (
			ch *mat.Cholesky
			ok bool
		)
		if vWeight == nil {
			ch, ok = &vi.lsq[c].chol, vi.lsq[c].ok
		} else {
			var a [4][4]float64
			for j := start; j < end; j++ {
				r := vi.offset(c, m.CellVtx[j])
				w := vWeight[m.CellVtx[j]]
				for i := 0; i < 4; i++ {
					for k := i; k < 4; k++ {
						a[i][k] += w * r[i] * r[k]
					}
				}
			}
			for i := 0; i < 4; i++ {
				for k := i; k < 4; k++ {
					sym.SetSym(i, k, a[i][k])
				}
			}
			ch, ok = &loc, loc.Factorize(sym)
		}
		if !ok {
			// degenerate vertex cloud, fall back to the mean
			vi.cellMean(c, vWeight, vVar, stride, cVar)
			continue
		}
		for k := 0; k < stride; k++ {
			var b [4]float64
			for j := start; j < end; j++ {
				v := m.CellVtx[j]
				r := vi.offset(c, v)
				phi := vVar[v*stride+k]
				if vWeight != nil {
					phi *= vWeight[v]
				}
				for i := 0; i < 4; i++ {
					b[i] += r[i] * phi
				}
			}
			for i := 0; i < 4; i++ {
				rhs.SetVec(i, b[i])
			}
			if err := ch.SolveVecTo(sol, rhs); err != nil {
				vi.cellMean(c, vWeight, vVar, stride, cVar)
				break
			}
			cVar[c*stride+k] = sol.AtVec(3)
		}
	}
}

func (vi *VertexInterp) buildLSQ() {
	m := vi.m
	vi.lsq = make([]lsqFactor, m.NCells)
	sym := mat.NewSymDense(4, nil)
	for c := 0; c < m.NCells; c++ {
		var a [4][4]float64
		for j := m.CellVtxIdx[c]; j < m.CellVtxIdx[c+1]; j++ {
			r := vi.offset(c, m.CellVtx[j])
			for i := 0; i < 4; i++ {
				for k := i; k < 4; k++ {
					a[i][k] += r[i] * r[k]
				}
			}
		}
		for i := 0; i < 4; i++ {
			for k := i; k < 4; k++ {
				sym.SetSym(i, k, a[i][k])
			}
		}
		vi.lsq[c].ok = vi.lsq[c].chol.Factorize(sym)
	}
}

// cellMean writes the (optionally weighted) vertex mean of cell c.
func (vi *VertexInterp) cellMean(c int, vWeight, vVar []float64, stride int, cVar []float64) {
	m := vi.m
	for k := 0; k < stride; k++ {
		var num, den float64
		for j := m.CellVtxIdx[c]; j < m.CellVtxIdx[c+1]; j++ {
			v := m.CellVtx[j]
			w := 1.0
			if vWeight != nil {
				w = vWeight[v]
			}
			num += w * vVar[v*stride+k]
			den += w
		}
		if den > 0 {
			cVar[c*stride+k] = num / den
		} else {
			cVar[c*stride+k] = 0
		}
	}
}
