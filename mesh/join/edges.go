package join

import (
	"fmt"
	"sort"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// Edges is the signed edge view of a work mesh. Each undirected edge
// stores the vertex with the smaller global number first; the per
// vertex adjacency records edge numbers signed positive when the edge
// is stored leaving that vertex.
type Edges struct {
	NEdges  int
	Def     []int // 2 per edge, 1-based local vertex numbers
	GNum    []int64
	NGEdges int64

	VtxIdx  []int // per vertex CSR index, len n_vertices+1
	AdjVtx  []int // 0-based adjacent vertex ids
	EdgeLst []int // signed 1-based edge numbers
}

// DefineEdges extracts every ring edge of wm, canonicalized so the
// vertex with the smaller global number comes first, deduplicated and
// numbered globally. Collective.
func DefineEdges(wm *WorkMesh, c *utils.Comm) *Edges {
	pairs := make([][2]int, 0, len(wm.FaceVtx))
	for f := 0; f < wm.NFaces; f++ {
		ring := wm.Ring(f)
		for j := range ring {
			v1, v2 := ring[j], ring[(j+1)%len(ring)]
			if wm.Vertices[v1].GNum > wm.Vertices[v2].GNum {
				v1, v2 = v2, v1
			}
			pairs = append(pairs, [2]int{v1, v2})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if g1, g2 := wm.Vertices[a[0]].GNum, wm.Vertices[b[0]].GNum; g1 != g2 {
			return g1 < g2
		}
		return wm.Vertices[a[1]].GNum < wm.Vertices[b[1]].GNum
	})

	e := &Edges{}
	var couples [][2]int64
	for i, p := range pairs {
		if i > 0 && p == pairs[i-1] {
			continue
		}
		e.Def = append(e.Def, p[0]+1, p[1]+1)
		couples = append(couples,
			[2]int64{wm.Vertices[p[0]].GNum, wm.Vertices[p[1]].GNum})
	}
	e.NEdges = len(couples)
	e.GNum, e.NGEdges = edgeGlobalNums(c, wm.NGVertices, couples)

	nv := len(wm.Vertices)
	e.VtxIdx = make([]int, nv+1)
	for i := 0; i < e.NEdges; i++ {
		e.VtxIdx[e.Def[2*i]]++
		e.VtxIdx[e.Def[2*i+1]]++
	}
	for i := 1; i <= nv; i++ {
		e.VtxIdx[i] += e.VtxIdx[i-1]
	}
	e.AdjVtx = make([]int, 2*e.NEdges)
	e.EdgeLst = make([]int, 2*e.NEdges)
	fill := make([]int, nv)
	for i := 0; i < e.NEdges; i++ {
		a, b := e.Def[2*i]-1, e.Def[2*i+1]-1
		pa := e.VtxIdx[a] + fill[a]
		e.AdjVtx[pa], e.EdgeLst[pa] = b, i+1
		fill[a]++
		pb := e.VtxIdx[b] + fill[b]
		e.AdjVtx[pb], e.EdgeLst[pb] = a, -(i + 1)
		fill[b]++
	}
	return e
}

// GetEdge returns the signed edge number joining two 1-based vertex
// numbers, positive when the stored edge runs v1 to v2.
func (e *Edges) GetEdge(v1, v2 int) (int, error) {
	if v1 < 1 || v1 >= len(e.VtxIdx) || e.VtxIdx[v1] == e.VtxIdx[v1-1] {
		return 0, fmt.Errorf("vertex number %d is not defined in the edge structure", v1)
	}
	for i := e.VtxIdx[v1-1]; i < e.VtxIdx[v1]; i++ {
		if e.AdjVtx[i] == v2-1 {
			return e.EdgeLst[i], nil
		}
	}
	return 0, fmt.Errorf("the vertex couple (%d, %d) is not defined in the edge structure", v1, v2)
}

// edgeGlobalNums ranks canonical vertex couples into a dense 1-based
// global edge numbering. Each couple is ranked by the block owner of
// its first vertex number so every rank seeing the same couple agrees.
// Collective.
func edgeGlobalNums(c *utils.Comm, ngVertices int64, couples [][2]int64) ([]int64, int64) {
	if c.Size() == 1 {
		out := make([]int64, len(couples))
		for i := range out {
			out[i] = int64(i) + 1
		}
		return out, int64(len(couples))
	}

	type query struct {
		A, B int64
		Idx  int64
	}
	bd := utils.NewBlockDist(ngVertices, c.Size())
	queries := make([]query, len(couples))
	dest := make([]int, len(couples))
	for i, cp := range couples {
		queries[i] = query{A: cp[0], B: cp[1], Idx: int64(i)}
		dest[i] = bd.RankOf(cp[0])
	}
	recv, src := utils.AllToAllv(c, dest, queries)

	rank := make(map[[2]int64]int64, len(recv))
	for _, q := range recv {
		rank[[2]int64{q.A, q.B}] = 0
	}
	keys := make([][2]int64, 0, len(rank))
	for k := range rank {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	base, total := mesh.PrefixCount(c, int64(len(keys)))
	for i, k := range keys {
		rank[k] = base + int64(i) + 1
	}

	type reply struct {
		Idx int64
		Num int64
	}
	replies := make([]reply, len(recv))
	for i, q := range recv {
		replies[i] = reply{Idx: q.Idx, Num: rank[[2]int64{q.A, q.B}]}
	}
	got, _ := utils.AllToAllv(c, src, replies)
	out := make([]int64, len(couples))
	for _, r := range got {
		out[r.Idx] = r.Num
	}
	return out, total
}
