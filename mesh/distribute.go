package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/gofv/utils"
)

// GhostSet describes the ghost cell tail of a distributed mesh, in ghost
// order: entry i belongs to local cell NCells+i. Ghosts are grouped by owning
// rank, each rank's face-adjacent ghosts before its vertex-only ones, sorted
// by global number inside every section.
type GhostSet struct {
	Domains []int // communicating ranks, ascending

	// Section offsets, 2*len(Domains)+1 entries: domain i's face-adjacent
	// ghosts sit in [Index[2i], Index[2i+1]), its vertex-only ghosts in
	// [Index[2i+1], Index[2i+2]).
	Index []int

	Rank []int   // owning rank per ghost
	GNum []int64 // global cell number per ghost
	NStd int     // face-adjacent ghost count over all domains
}

// Distribute carves the local mesh of this rank out of a global mesh and a
// part assignment. Every rank calls it with the same global mesh and part
// slice; the global mesh is only read. Interior faces on a rank boundary are
// kept by both ranks under the same global face number, with the foreign cell
// appearing as a ghost.
func Distribute(global *Mesh, part []int, c *utils.Comm) (*Mesh, *GhostSet) {
	if len(part) != global.NCells {
		panic(fmt.Sprintf("part length %d does not match %d cells",
			len(part), global.NCells))
	}
	rank := c.Rank()

	cellLoc := make(map[int]int)
	var owned []int
	for g := 0; g < global.NCells; g++ {
		if part[g] < 0 || part[g] >= c.Size() {
			panic(fmt.Sprintf("cell %d assigned to rank %d of %d", g, part[g], c.Size()))
		}
		if part[g] == rank {
			cellLoc[g] = len(owned)
			owned = append(owned, g)
		}
	}

	// Face-adjacent ghosts
	stdSet := make(map[int]bool)
	for f := 0; f < global.NIFaces; f++ {
		c0, c1 := global.IFaceCells[f][0], global.IFaceCells[f][1]
		if c0 < 0 || c1 < 0 {
			continue
		}
		owned0, owned1 := part[c0] == rank, part[c1] == rank
		if owned0 && !owned1 {
			stdSet[c1] = true
		}
		if owned1 && !owned0 {
			stdSet[c0] = true
		}
	}

	// Vertex-adjacent ghosts beyond the face-adjacent ones
	extSet := make(map[int]bool)
	vtxIdx, vtxCell := vertexCells(global)
	for v := 0; v < global.NVertices; v++ {
		adj := vtxCell[vtxIdx[v]:vtxIdx[v+1]]
		mine := false
		for _, nb := range adj {
			if part[nb] == rank {
				mine = true
				break
			}
		}
		if !mine {
			continue
		}
		for _, nb := range adj {
			if part[nb] != rank && !stdSet[nb] {
				extSet[nb] = true
			}
		}
	}

	domSet := make(map[int]bool)
	for g := range stdSet {
		domSet[part[g]] = true
	}
	for g := range extSet {
		domSet[part[g]] = true
	}
	domains := make([]int, 0, len(domSet))
	for d := range domSet {
		domains = append(domains, d)
	}
	sort.Ints(domains)

	gs := &GhostSet{Domains: domains, Index: []int{0}}
	var ghosts []int
	for _, dom := range domains {
		std := domainMembers(global, part, stdSet, dom)
		ext := domainMembers(global, part, extSet, dom)
		gs.NStd += len(std)
		ghosts = append(ghosts, std...)
		gs.Index = append(gs.Index, len(ghosts))
		ghosts = append(ghosts, ext...)
		gs.Index = append(gs.Index, len(ghosts))
	}
	for i, g := range ghosts {
		cellLoc[g] = len(owned) + i
	}

	local := NewMesh()
	local.NCells = len(owned)
	local.NCellsExt = len(owned) + len(ghosts)
	for id := 2; id <= global.Families.N(); id++ {
		local.Families.Add(global.Families.GroupsOf(id)...)
	}

	local.CellFamily = make([]int, local.NCellsExt)
	local.GlobalCellNum = make([]int64, local.NCellsExt)
	for l, g := range owned {
		local.CellFamily[l] = global.CellFamily[g]
		local.GlobalCellNum[l] = global.GlobalCellNumOf(g)
	}
	for i, g := range ghosts {
		local.CellFamily[local.NCells+i] = global.CellFamily[g]
		local.GlobalCellNum[local.NCells+i] = global.GlobalCellNumOf(g)
	}

	// Keep every face with at least one owned cell
	var (
		iRings [][]int
		bRings [][]int
	)
	for f := 0; f < global.NIFaces; f++ {
		c0, c1 := global.IFaceCells[f][0], global.IFaceCells[f][1]
		if c0 < 0 || c1 < 0 {
			continue
		}
		if part[c0] != rank && part[c1] != rank {
			continue
		}
		local.IFaceCells = append(local.IFaceCells, [2]int{cellLoc[c0], cellLoc[c1]})
		local.IFaceFamily = append(local.IFaceFamily, global.IFaceFamily[f])
		local.GlobalIFaceNum = append(local.GlobalIFaceNum, global.globalIFaceNumOf(f))
		iRings = append(iRings, global.IFaceVertices(f))
	}
	for f := 0; f < global.NBFaces; f++ {
		g := global.BFaceCells[f]
		if g < 0 || part[g] != rank {
			continue
		}
		local.BFaceCells = append(local.BFaceCells, cellLoc[g])
		local.BFaceFamily = append(local.BFaceFamily, global.BFaceFamily[f])
		local.GlobalBFaceNum = append(local.GlobalBFaceNum, global.globalBFaceNumOf(f))
		bRings = append(bRings, global.BFaceVertices(f))
	}
	local.NIFaces = len(iRings)
	local.NBFaces = len(bRings)

	// Local vertices are the ones the kept rings reference, in global order
	vtxSet := make(map[int]bool)
	for _, ring := range iRings {
		for _, v := range ring {
			vtxSet[v] = true
		}
	}
	for _, ring := range bRings {
		for _, v := range ring {
			vtxSet[v] = true
		}
	}
	vtxList := make([]int, 0, len(vtxSet))
	for v := range vtxSet {
		vtxList = append(vtxList, v)
	}
	sort.Ints(vtxList)
	vtxLoc := make(map[int]int, len(vtxList))
	local.NVertices = len(vtxList)
	local.VtxCoord = make([]float64, 3*len(vtxList))
	local.GlobalVtxNum = make([]int64, len(vtxList))
	for l, v := range vtxList {
		vtxLoc[v] = l
		copy(local.VtxCoord[3*l:3*l+3], global.VtxCoord[3*v:3*v+3])
		local.GlobalVtxNum[l] = global.GlobalVtxNumOf(v)
	}

	local.IFaceVtxIdx = make([]int, local.NIFaces+1)
	for f, ring := range iRings {
		for _, v := range ring {
			local.IFaceVtx = append(local.IFaceVtx, vtxLoc[v])
		}
		local.IFaceVtxIdx[f+1] = len(local.IFaceVtx)
	}
	local.BFaceVtxIdx = make([]int, local.NBFaces+1)
	for f, ring := range bRings {
		for _, v := range ring {
			local.BFaceVtx = append(local.BFaceVtx, vtxLoc[v])
		}
		local.BFaceVtxIdx[f+1] = len(local.BFaceVtx)
	}

	for _, g := range ghosts {
		gs.Rank = append(gs.Rank, part[g])
		gs.GNum = append(gs.GNum, global.GlobalCellNumOf(g))
	}

	local.UpdateGlobalCounts(c)
	return local, gs
}

// domainMembers picks the candidates owned by dom, ordered by global number.
func domainMembers(global *Mesh, part []int, set map[int]bool, dom int) []int {
	var out []int
	for g := range set {
		if part[g] == dom {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return global.GlobalCellNumOf(out[i]) < global.GlobalCellNumOf(out[j])
	})
	return out
}

// vertexCells builds the vertex -> cell adjacency of a mesh from its face
// arrays without touching the mesh itself.
func vertexCells(m *Mesh) (idx []int, cells []int) {
	type pair struct{ v, c int }
	seen := make(map[pair]bool)
	counts := make([]int, m.NVertices)
	visit := func(v, c int, record func(pair)) {
		if c < 0 || c >= m.NCells {
			return
		}
		p := pair{v, c}
		if seen[p] {
			return
		}
		seen[p] = true
		record(p)
	}
	count := func(p pair) { counts[p.v]++ }
	for f := 0; f < m.NIFaces; f++ {
		for _, v := range m.IFaceVertices(f) {
			visit(v, m.IFaceCells[f][0], count)
			visit(v, m.IFaceCells[f][1], count)
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		for _, v := range m.BFaceVertices(f) {
			visit(v, m.BFaceCells[f], count)
		}
	}
	idx = make([]int, m.NVertices+1)
	for v := 0; v < m.NVertices; v++ {
		idx[v+1] = idx[v] + counts[v]
	}
	cells = make([]int, idx[m.NVertices])
	fill := make([]int, m.NVertices)
	for p := range seen {
		delete(seen, p)
	}
	place := func(p pair) {
		cells[idx[p.v]+fill[p.v]] = p.c
		fill[p.v]++
	}
	for f := 0; f < m.NIFaces; f++ {
		for _, v := range m.IFaceVertices(f) {
			visit(v, m.IFaceCells[f][0], place)
			visit(v, m.IFaceCells[f][1], place)
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		for _, v := range m.BFaceVertices(f) {
			visit(v, m.BFaceCells[f], place)
		}
	}
	return
}
