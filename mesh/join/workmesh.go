package join

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// VertexState records what happened to a work vertex while joining.
type VertexState int

const (
	StateUndef VertexState = iota
	StateNew
	StateOrigin
	StatePerio
	StateMerge
	StatePerioMerge
	StateSplit
)

func (s VertexState) String() string {
	switch s {
	case StateUndef:
		return "UDF"
	case StateNew:
		return "NEW"
	case StateOrigin:
		return "ORI"
	case StatePerio:
		return "PER"
	case StateMerge:
		return "MRG"
	case StatePerioMerge:
		return "PMG"
	case StateSplit:
		return "SPL"
	}
	return "ERR"
}

// Vertex is a local copy of a parent mesh vertex with the merge
// bookkeeping attached. Tolerance is the radius of the sphere inside
// which the vertex may fuse with another.
type Vertex struct {
	State     VertexState
	GNum      int64
	Tolerance float64
	Coord     [3]float64
}

func (v Vertex) String() string {
	return fmt.Sprintf(" %10d | %11.6f | % 12.10e  % 12.10e  % 12.10e | %s",
		v.GNum, v.Tolerance, v.Coord[0], v.Coord[1], v.Coord[2], v.State)
}

// WorkMesh is the face subset a joining operation works on, detached
// from its parent mesh. Faces keep their parent global numbers while
// the vertex copies are rewritten by the merge before the result is
// folded back into the parent.
type WorkMesh struct {
	Name string

	NFaces     int
	FaceGNum   []int64
	FaceVtxIdx []int // CSR index, len NFaces+1
	FaceVtx    []int
	NGFaces    int64

	Vertices   []Vertex
	NGVertices int64
}

// NewWorkMesh copies the selected boundary faces of m into a fresh
// work mesh. The selection holds local boundary face ids.
func NewWorkMesh(name string, m *mesh.Mesh, sel []int) *WorkMesh {
	wm := &WorkMesh{
		Name:       name,
		NFaces:     len(sel),
		FaceVtxIdx: []int{0},
		NGFaces:    m.NGBFaces,
		NGVertices: m.NGVertices,
	}
	loc := make(map[int]int)
	for _, f := range sel {
		if m.GlobalBFaceNum == nil {
			wm.FaceGNum = append(wm.FaceGNum, int64(f)+1)
		} else {
			wm.FaceGNum = append(wm.FaceGNum, m.GlobalBFaceNum[f])
		}
		for _, v := range m.BFaceVertices(f) {
			id, ok := loc[v]
			if !ok {
				id = len(wm.Vertices)
				loc[v] = id
				wm.Vertices = append(wm.Vertices, Vertex{
					State:     StateOrigin,
					GNum:      m.GlobalVtxNumOf(v),
					Tolerance: math.MaxFloat64,
					Coord: [3]float64{
						m.VtxCoord[3*v], m.VtxCoord[3*v+1], m.VtxCoord[3*v+2],
					},
				})
			}
			wm.FaceVtx = append(wm.FaceVtx, id)
		}
		wm.FaceVtxIdx = append(wm.FaceVtxIdx, len(wm.FaceVtx))
	}
	return wm
}

// Ring returns the vertex ring of face f.
func (wm *WorkMesh) Ring(f int) []int {
	return wm.FaceVtx[wm.FaceVtxIdx[f]:wm.FaceVtxIdx[f+1]]
}

// Clean simplifies the face rings after vertices were merged: repeated
// consecutive vertices go first, then edges traversed and immediately
// reversed inside the same ring.
func (wm *WorkMesh) Clean() error {
	gnum := func(f int) int64 { return wm.FaceGNum[f] }
	idx, lst, nSimpl, err := removeEmptyEdges(wm.FaceVtxIdx, wm.FaceVtx, gnum)
	if err != nil {
		return err
	}
	wm.FaceVtxIdx, wm.FaceVtx = idx, lst
	if nSimpl > 0 {
		fmt.Printf("  Number of simplified faces: %d\n", nSimpl)
	}
	idx, lst, nDegen, err := removeDegenerateEdges(wm.FaceVtxIdx, wm.FaceVtx, gnum)
	if err != nil {
		return err
	}
	wm.FaceVtxIdx, wm.FaceVtx = idx, lst
	if nDegen > 0 {
		fmt.Printf("  Edge removed for %d faces\n", nDegen)
	}
	return nil
}

// removeEmptyEdges drops consecutive duplicate vertices from every ring
// of the idx/lst pair, compacting lst in place. Writes never pass the
// read position, so the single pass is safe. gnum names faces in
// diagnostics.
func removeEmptyEdges(idx, lst []int, gnum func(int) int64) ([]int, []int, int, error) {
	n := len(idx) - 1
	newIdx := make([]int, n+1)
	shift := 0
	simplified := 0
	for f := 0; f < n; f++ {
		s, e := idx[f], idx[f+1]
		if lst[e-1] != lst[s] {
			lst[shift] = lst[s]
			shift++
		}
		for j := s; j < e-1; j++ {
			if lst[j] != lst[j+1] {
				lst[shift] = lst[j+1]
				shift++
			}
		}
		newIdx[f+1] = shift
		if k := newIdx[f+1] - newIdx[f]; k < e-s {
			simplified++
			if k < 3 {
				return nil, nil, 0, fmt.Errorf(
					"the simplified face %d (%d) has less than 3 vertices, check the joining parameters",
					f+1, gnum(f))
			}
		}
	}
	return newIdx, lst[:shift], simplified, nil
}

// removeDegenerateEdges deletes ring spikes, edges walked forward and
// straight back again. Removing a spike can expose a new one, so each
// ring is scanned until stable.
func removeDegenerateEdges(idx, lst []int, gnum func(int) int64) ([]int, []int, int, error) {
	n := len(idx) - 1
	newIdx := make([]int, n+1)
	shift := 0
	modified := 0
	for f := 0; f < n; f++ {
		s, e := idx[f], idx[f+1]
		nv := e - s
		tmp := make([]int, nv, nv+2)
		copy(tmp, lst[s:e])
		tmp = append(tmp, tmp[0], tmp[1])
		kill := make([]bool, nv)

		for nv >= 3 {
			count := 0
			for j := 0; j < nv; j++ {
				if tmp[j] == tmp[j+2] {
					count++
					kill[j] = true
					kill[(j+1)%nv] = true
				}
			}
			if count == 0 {
				break
			}
			k := 0
			for j := 0; j < nv; j++ {
				if !kill[j] {
					tmp[k] = tmp[j]
					k++
				}
				kill[j] = false
			}
			nv = k
			tmp = tmp[:nv]
			if nv >= 2 {
				tmp = append(tmp, tmp[0], tmp[1])
			}
			kill = kill[:nv]
		}
		if nv != e-s {
			modified++
			if nv < 3 {
				return nil, nil, 0, fmt.Errorf(
					"the simplified face %d (%d) has less than 3 vertices, check the joining parameters",
					f+1, gnum(f))
			}
		}
		copy(lst[shift:], tmp[:nv])
		shift += nv
		newIdx[f+1] = shift
	}
	return newIdx, lst[:shift], modified, nil
}

// VertexClean drops vertices sharing a global number with another and
// vertices no ring references, rewriting the rings onto the surviving
// representative of each global number.
func (wm *WorkMesh) VertexClean() {
	if len(wm.Vertices) == 0 {
		return
	}
	used := make([]bool, len(wm.Vertices))
	for _, v := range wm.FaceVtx {
		used[v] = true
	}
	order := make([]int, len(wm.Vertices))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return wm.Vertices[order[a]].GNum < wm.Vertices[order[b]].GNum
	})
	var (
		final   []Vertex
		old2new = make([]int, len(wm.Vertices))
		prev    int64 = -1
		rep           = -1
	)
	for _, id := range order {
		if g := wm.Vertices[id].GNum; g != prev {
			prev, rep = g, -1
		}
		if used[id] && rep < 0 {
			final = append(final, wm.Vertices[id])
			rep = len(final) - 1
		}
		old2new[id] = rep
	}
	for i, v := range wm.FaceVtx {
		wm.FaceVtx[i] = old2new[v]
	}
	wm.Vertices = final
}

// MinMaxTolerance prints the vertices carrying the smallest and the
// largest merge tolerance across all ranks. Collective.
func (wm *WorkMesh) MinMaxTolerance(c *utils.Comm) {
	vmin := Vertex{Tolerance: math.MaxFloat64}
	vmax := Vertex{Tolerance: -math.MaxFloat64}
	for _, v := range wm.Vertices {
		if v.Tolerance < vmin.Tolerance {
			vmin = v
		}
		if v.Tolerance > vmax.Tolerance {
			vmax = v
		}
	}
	for _, b := range c.Publish([2]Vertex{vmin, vmax}) {
		pair := b.([2]Vertex)
		if pair[0].Tolerance < vmin.Tolerance {
			vmin = pair[0]
		}
		if pair[1].Tolerance > vmax.Tolerance {
			vmax = pair[1]
		}
	}
	if c.Rank() == 0 {
		fmt.Printf("  Global min/max. tolerance:\n\n")
		fmt.Printf(" Glob. Num. |  Tolerance  |              Coordinates\n\n")
		fmt.Printf("%s\n%s\n", vmin, vmax)
	}
}

// Redistribute reshuffles the faces into contiguous slabs of the
// global face numbering, one slab per rank, each ring traveling with
// copies of its vertices. Collective.
func (wm *WorkMesh) Redistribute(c *utils.Comm) *WorkMesh {
	type parcel struct {
		G    int64
		Ring []Vertex
	}
	bd := utils.NewBlockDist(wm.NGFaces, c.Size())
	dest := make([]int, wm.NFaces)
	parcels := make([]parcel, wm.NFaces)
	for f := 0; f < wm.NFaces; f++ {
		ring := make([]Vertex, 0, wm.FaceVtxIdx[f+1]-wm.FaceVtxIdx[f])
		for _, v := range wm.Ring(f) {
			ring = append(ring, wm.Vertices[v])
		}
		dest[f] = bd.RankOf(wm.FaceGNum[f])
		parcels[f] = parcel{G: wm.FaceGNum[f], Ring: ring}
	}
	recv, _ := utils.AllToAllv(c, dest, parcels)
	sort.Slice(recv, func(i, j int) bool { return recv[i].G < recv[j].G })

	out := &WorkMesh{
		Name:       wm.Name,
		NGFaces:    wm.NGFaces,
		NGVertices: wm.NGVertices,
		FaceVtxIdx: []int{0},
	}
	for _, p := range recv {
		out.FaceGNum = append(out.FaceGNum, p.G)
		for _, v := range p.Ring {
			out.FaceVtx = append(out.FaceVtx, len(out.Vertices))
			out.Vertices = append(out.Vertices, v)
		}
		out.FaceVtxIdx = append(out.FaceVtxIdx, len(out.FaceVtx))
	}
	out.NFaces = len(out.FaceGNum)
	out.VertexClean()
	return out
}
