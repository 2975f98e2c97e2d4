package halo

import (
	"github.com/notargets/gofv/mesh"
)

var _ mesh.Synchronizer = (*Halo)(nil)

// All sync calls are collective: every rank of the communicator passes
// an array of the same kind and the same halo type.

// SyncScalar updates the whole ghost tail of a cell scalar in place.
func (h *Halo) SyncScalar(v []float64) {
	syncValues(h, Extended, 1, v)
}

// SyncVector updates the ghost tail of an interleaved cell vector and
// rotates periodic ghosts into their frame.
func (h *Halo) SyncVector(v []float64) {
	syncValues(h, Extended, 3, v)
	h.perioRotate(Extended, 3, v, rotateVector)
}

// SyncSymTensor updates the ghost tail of a symmetric cell tensor
// stored as xx, yy, zz, xy, yz, xz.
func (h *Halo) SyncSymTensor(v []float64) {
	syncValues(h, Extended, 6, v)
	h.perioRotate(Extended, 6, v, rotateSymTensor)
}

// SyncTensor updates the ghost tail of a row major 3x3 cell tensor.
func (h *Halo) SyncTensor(v []float64) {
	syncValues(h, Extended, 9, v)
	h.perioRotate(Extended, 9, v, rotateTensor)
}

// SyncStrided updates the ghost tail of an interleaved cell array of
// arbitrary stride. No periodic rotation is applied; components are
// exchanged as plain values.
func (h *Halo) SyncStrided(v []float64, stride int) {
	syncValues(h, Extended, stride, v)
}

// SyncNum updates the ghost tail of a cell numbering.
func (h *Halo) SyncNum(v []int64) {
	syncValues(h, Extended, 1, v)
}

// State tracks one in-flight ghost exchange between SyncStart and
// SyncWait, so local work can overlap the transfer. The raw exchange
// applies no periodic rotation.
type State struct {
	h      *Halo
	t      Type
	stride int
	v      []float64
	tag    int64
	remote []interface{}
}

// SyncStart packs and posts the ghost exchange of an interleaved cell
// array without waiting for it to land.
func (h *Halo) SyncStart(t Type, stride int, v []float64) *State {
	s := &State{h: h, t: t, stride: stride, v: v}
	if t == None || h.comm.Size() == 1 {
		return s
	}
	switch h.Exchange {
	case OneSided:
		bufs := make([][]float64, h.comm.Size())
		for di, d := range h.CDomainRank {
			bufs[d] = packSection(h, di, t, stride, v)
		}
		s.remote = h.comm.Publish(bufs)
	default:
		s.tag = h.comm.NewTag()
		for di, d := range h.CDomainRank {
			h.comm.Send(s.tag, d, packSection(h, di, t, stride, v))
		}
	}
	return s
}

// SyncWait scatters the exchanged values onto the ghost tail and
// retires the exchange.
func (s *State) SyncWait() {
	h := s.h
	if s.t == None || h.comm.Size() == 1 {
		return
	}
	switch h.Exchange {
	case OneSided:
		me := h.comm.Rank()
		for di, d := range h.CDomainRank {
			scatterSection(h, di, s.t, s.stride, s.remote[d].([][]float64)[me], s.v)
		}
	default:
		for di, d := range h.CDomainRank {
			scatterSection(h, di, s.t, s.stride, h.comm.Recv(s.tag, d).([]float64), s.v)
		}
		h.comm.ReleaseTag(s.tag)
	}
}

// syncValues runs one blocking ghost exchange. Ranks without neighbors
// still take part in the collective tag and board operations.
func syncValues[T any](h *Halo, t Type, stride int, v []T) {
	if t == None || h.comm.Size() == 1 {
		return
	}
	switch h.Exchange {
	case OneSided:
		bufs := make([][]T, h.comm.Size())
		for di, d := range h.CDomainRank {
			bufs[d] = packSection(h, di, t, stride, v)
		}
		remote := h.comm.Publish(bufs)
		me := h.comm.Rank()
		for di, d := range h.CDomainRank {
			scatterSection(h, di, t, stride, remote[d].([][]T)[me], v)
		}
	default:
		tag := h.comm.NewTag()
		for di, d := range h.CDomainRank {
			h.comm.Send(tag, d, packSection(h, di, t, stride, v))
		}
		for di, d := range h.CDomainRank {
			scatterSection(h, di, t, stride, h.comm.Recv(tag, d).([]T), v)
		}
		h.comm.ReleaseTag(tag)
	}
}

// packSection copies the stride components of every SendList cell of
// domain section di into a fresh buffer.
func packSection[T any](h *Halo, di int, t Type, stride int, v []T) []T {
	lo, hi := h.sendRange(di, t)
	buf := make([]T, (hi-lo)*stride)
	for k, cell := range h.SendList[lo:hi] {
		copy(buf[k*stride:(k+1)*stride], v[cell*stride:(cell+1)*stride])
	}
	return buf
}

// scatterSection writes a received buffer onto the ghost tail run of
// domain section di. Tail cells of one section are contiguous.
func scatterSection[T any](h *Halo, di int, t Type, stride int, buf, v []T) {
	lo, hi := h.recvRange(di, t)
	base := (h.m.NCells + lo) * stride
	copy(v[base:base+(hi-lo)*stride], buf)
}

// perioRotate applies the periodic rotations over the transformed
// subsections of the ghost tail.
func (h *Halo) perioRotate(t Type, stride int, v []float64,
	rot func(R *[3][3]float64, v []float64, base int)) {
	nd := len(h.CDomainRank)
	for tr := 0; tr < h.NTransforms; tr++ {
		R := &h.Transforms[tr].Rotation
		for di := 0; di < nd; di++ {
			p := h.PerioLst[4*(tr*nd+di):]
			h.rotateRun(v, stride, p[0], p[1], R, rot)
			if t == Extended {
				h.rotateRun(v, stride, p[2], p[3], R, rot)
			}
		}
	}
}

func (h *Halo) rotateRun(v []float64, stride, start, n int,
	R *[3][3]float64, rot func(R *[3][3]float64, v []float64, base int)) {
	for g := start; g < start+n; g++ {
		rot(R, v, (h.m.NCells+g)*stride)
	}
}

func rotateVector(R *[3][3]float64, v []float64, base int) {
	x, y, z := v[base], v[base+1], v[base+2]
	v[base+0] = R[0][0]*x + R[0][1]*y + R[0][2]*z
	v[base+1] = R[1][0]*x + R[1][1]*y + R[1][2]*z
	v[base+2] = R[2][0]*x + R[2][1]*y + R[2][2]*z
}

func rotateSymTensor(R *[3][3]float64, v []float64, base int) {
	T := [3][3]float64{
		{v[base+0], v[base+3], v[base+5]},
		{v[base+3], v[base+1], v[base+4]},
		{v[base+5], v[base+4], v[base+2]},
	}
	W := similarity(R, &T)
	v[base+0], v[base+1], v[base+2] = W[0][0], W[1][1], W[2][2]
	v[base+3], v[base+4], v[base+5] = W[0][1], W[1][2], W[0][2]
}

func rotateTensor(R *[3][3]float64, v []float64, base int) {
	var T [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			T[i][j] = v[base+3*i+j]
		}
	}
	W := similarity(R, &T)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v[base+3*i+j] = W[i][j]
		}
	}
}

// similarity returns R T Rt.
func similarity(R, T *[3][3]float64) (W [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				for l := 0; l < 3; l++ {
					s += R[i][k] * T[k][l] * R[j][l]
				}
			}
			W[i][j] = s
		}
	}
	return
}
