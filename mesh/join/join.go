// Package join fuses coincident boundary faces into interior faces.
// Selected faces are copied into a work mesh, vertices lying inside
// each other's merge tolerance are fused, and boundary face pairs left
// with identical rings become single interior faces connecting their
// two cells.
package join

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// Params controls one joining operation.
type Params struct {
	Fraction      float64 // tolerance fraction of the shortest adjacent edge
	ToleranceMode int     // 1 plain edge length, 2 damped by the edge angle
	Verbosity     int
}

// DefaultParams returns the usual joining setup.
func DefaultParams() Params {
	return Params{Fraction: 0.1, ToleranceMode: 1}
}

// Join fuses the selected boundary faces of m. sel lists local
// boundary face ids; faces whose vertex rings coincide after the
// vertex merge turn into interior faces and leave the boundary. Params
// must match on every rank. Collective.
//
// On error the mesh may be left partially modified.
func Join(m *mesh.Mesh, sel []int, p Params, c *utils.Comm) error {
	if c == nil {
		c = utils.Serial()
	}
	if p.Fraction < 0 || p.Fraction >= 1 {
		return fmt.Errorf("joining fraction %g is outside [0, 1)", p.Fraction)
	}
	wm := NewWorkMesh("join", m, sel)
	if err := computeTolerances(wm, p); err != nil {
		return err
	}
	syncTolerances(wm, c)
	if p.Verbosity > 0 {
		wm.MinMaxTolerance(c)
	}

	merges := detectMerges(wm, c)
	applyMerges(wm, merges)
	wm.VertexClean()
	if err := gateErr(c, wm.Clean()); err != nil {
		return err
	}

	// The merged rings must still form a closed edge cycle
	edges := DefineEdges(wm, c)
	var ringErr error
	for f := 0; f < wm.NFaces && ringErr == nil; f++ {
		ring := wm.Ring(f)
		for j := range ring {
			if _, err := edges.GetEdge(ring[j]+1, ring[(j+1)%len(ring)]+1); err != nil {
				ringErr = fmt.Errorf("face %d (%d): %w", f+1, wm.FaceGNum[f], err)
				break
			}
		}
	}
	if err := gateErr(c, ringErr); err != nil {
		return err
	}

	nPairs, err := foldBack(m, c, sel, merges)
	if err != nil {
		return err
	}
	total := c.AllReduceInt64(int64(nPairs), utils.OpSum)
	if c.Rank() == 0 {
		log.Printf("Joining done: %d vertices merged, %d face pairs now interior",
			len(merges), total)
	}
	return nil
}

// gateErr agrees across ranks on whether anyone failed, so no rank
// walks into a later collective alone. Collective.
func gateErr(c *utils.Comm, err error) error {
	bad := int64(0)
	if err != nil {
		bad = 1
	}
	if c.AllReduceInt64(bad, utils.OpMax) == 0 {
		return nil
	}
	if err == nil {
		return errors.New("joining failed on another rank")
	}
	return err
}

// detectMerges gathers the work vertices of every rank and links the
// pairs lying inside each other's tolerance sphere. Linked components
// fuse onto the member with the smallest global number, placed at the
// component mean. The result holds every vertex of a fused component,
// keyed by its pre-merge global number, and is identical on all ranks.
// Collective.
func detectMerges(wm *WorkMesh, c *utils.Comm) map[int64]Vertex {
	all := append([]Vertex(nil), wm.Vertices...)
	if c.Size() > 1 {
		all = all[:0]
		for _, b := range c.Publish(wm.Vertices) {
			all = append(all, b.([]Vertex)...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].GNum < all[j].GNum })
	var zone []Vertex
	for i, v := range all {
		if i == 0 || v.GNum != all[i-1].GNum {
			zone = append(zone, v)
		}
	}

	merges := make(map[int64]Vertex)
	h := 0.0
	for _, v := range zone {
		if v.Tolerance > h {
			h = v.Tolerance
		}
	}
	if h <= 0 || len(zone) < 2 {
		return merges
	}

	// Bucket by tolerance-sized cells so only neighbor buckets need
	// pairwise checks
	cellOf := func(v Vertex) [3]int {
		return [3]int{
			int(math.Floor(v.Coord[0] / h)),
			int(math.Floor(v.Coord[1] / h)),
			int(math.Floor(v.Coord[2] / h)),
		}
	}
	grid := make(map[[3]int][]int)
	for i, v := range zone {
		key := cellOf(v)
		grid[key] = append(grid[key], i)
	}

	parent := make([]int, len(zone))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Smaller index wins, so the root carries the smallest global
		// number of its component
		if ra > rb {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}
	for i, v := range zone {
		cc := cellOf(v)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					for _, j := range grid[[3]int{cc[0] + dx, cc[1] + dy, cc[2] + dz}] {
						if j <= i {
							continue
						}
						w := zone[j]
						if d := distance(v.Coord, w.Coord); d <= v.Tolerance && d <= w.Tolerance {
							union(i, j)
						}
					}
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := range zone {
		r := find(i)
		groups[r] = append(groups[r], i)
	}
	for r, members := range groups {
		if len(members) < 2 {
			continue
		}
		mv := Vertex{State: StateMerge, GNum: zone[r].GNum, Tolerance: math.MaxFloat64}
		for _, i := range members {
			for k := 0; k < 3; k++ {
				mv.Coord[k] += zone[i].Coord[k]
			}
			if zone[i].Tolerance < mv.Tolerance {
				mv.Tolerance = zone[i].Tolerance
			}
		}
		for k := 0; k < 3; k++ {
			mv.Coord[k] /= float64(len(members))
		}
		for _, i := range members {
			merges[zone[i].GNum] = mv
		}
	}
	return merges
}

// applyMerges rewrites the work vertices onto their merge result.
func applyMerges(wm *WorkMesh, merges map[int64]Vertex) {
	for i := range wm.Vertices {
		if mv, ok := merges[wm.Vertices[i].GNum]; ok {
			wm.Vertices[i] = mv
		}
	}
}

// foldBack applies the vertex merge to the parent mesh, turns
// coincident selected boundary face pairs into interior faces and
// compacts every renumbering. Collective.
func foldBack(m *mesh.Mesh, c *utils.Comm, sel []int, merges map[int64]Vertex) (int, error) {
	ignum := func(f int) int64 {
		if m.GlobalIFaceNum == nil {
			return int64(f) + 1
		}
		return m.GlobalIFaceNum[f]
	}
	bgnum := func(f int) int64 {
		if m.GlobalBFaceNum == nil {
			return int64(f) + 1
		}
		return m.GlobalBFaceNum[f]
	}

	// Move merged parent vertices onto their fused position
	target := make([]int64, m.NVertices)
	for v := 0; v < m.NVertices; v++ {
		g := m.GlobalVtxNumOf(v)
		if mv, ok := merges[g]; ok {
			target[v] = mv.GNum
			m.VtxCoord[3*v] = mv.Coord[0]
			m.VtxCoord[3*v+1] = mv.Coord[1]
			m.VtxCoord[3*v+2] = mv.Coord[2]
		} else {
			target[v] = g
		}
	}
	// Collapse local aliases of the same global number
	repOf := make(map[int64]int, m.NVertices)
	old2new := make([]int, m.NVertices)
	for v := 0; v < m.NVertices; v++ {
		if r, ok := repOf[target[v]]; ok {
			old2new[v] = r
		} else {
			repOf[target[v]] = v
			old2new[v] = v
		}
	}
	for i, v := range m.IFaceVtx {
		m.IFaceVtx[i] = old2new[v]
	}
	for i, v := range m.BFaceVtx {
		m.BFaceVtx[i] = old2new[v]
	}

	// Simplify every ring the merge degenerated
	var ringErr error
	if idx, lst, _, err := removeEmptyEdges(m.IFaceVtxIdx, m.IFaceVtx, ignum); err != nil {
		ringErr = err
	} else if idx, lst, _, err = removeDegenerateEdges(idx, lst, ignum); err != nil {
		ringErr = err
	} else {
		m.IFaceVtxIdx, m.IFaceVtx = idx, lst
	}
	if ringErr == nil {
		if idx, lst, _, err := removeEmptyEdges(m.BFaceVtxIdx, m.BFaceVtx, bgnum); err != nil {
			ringErr = err
		} else if idx, lst, _, err = removeDegenerateEdges(idx, lst, bgnum); err != nil {
			ringErr = err
		} else {
			m.BFaceVtxIdx, m.BFaceVtx = idx, lst
		}
	}
	if err := gateErr(c, ringErr); err != nil {
		return 0, err
	}

	// Drop vertices no face references anymore
	usedV := make([]bool, m.NVertices)
	for _, v := range m.IFaceVtx {
		usedV[v] = true
	}
	for _, v := range m.BFaceVtx {
		usedV[v] = true
	}
	newID := make([]int, m.NVertices)
	nv := 0
	var vtxKeys []int64
	for v := 0; v < m.NVertices; v++ {
		if !usedV[v] {
			newID[v] = -1
			continue
		}
		newID[v] = nv
		m.VtxCoord[3*nv] = m.VtxCoord[3*v]
		m.VtxCoord[3*nv+1] = m.VtxCoord[3*v+1]
		m.VtxCoord[3*nv+2] = m.VtxCoord[3*v+2]
		vtxKeys = append(vtxKeys, target[v])
		nv++
	}
	m.VtxCoord = m.VtxCoord[:3*nv]
	m.NVertices = nv
	for i, v := range m.IFaceVtx {
		m.IFaceVtx[i] = newID[v]
	}
	for i, v := range m.BFaceVtx {
		m.BFaceVtx[i] = newID[v]
	}
	// Renumbering gates must match on every rank, a rank with no faces
	// still takes part in the collective compaction
	if c.Size() > 1 || m.GlobalVtxNum != nil {
		m.GlobalVtxNum, m.NGVertices = mesh.CompactGlobalNums(c, vtxKeys)
	}

	// Selected faces sharing a vertex set pair up into interior faces
	bySig := make(map[string][]int, len(sel))
	for _, f := range sel {
		sig := faceSig(m.BFaceVertices(f))
		bySig[sig] = append(bySig[sig], f)
	}
	over := int64(0)
	var prs [][2]int
	for _, faces := range bySig {
		if len(faces) > 2 {
			over = 1
			break
		}
		if len(faces) != 2 {
			continue
		}
		f1, f2 := faces[0], faces[1]
		if f1 > f2 {
			f1, f2 = f2, f1
		}
		if m.BFaceCells[f1] < 0 || m.BFaceCells[f2] < 0 {
			continue
		}
		prs = append(prs, [2]int{f1, f2})
	}
	if c.AllReduceInt64(over, utils.OpMax) != 0 {
		return 0, errors.New("more than two selected faces share the same vertex ring")
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i][0] < prs[j][0] })

	// Joined faces land on the default family extended by a marker
	// group, registered on every rank so family ids stay aligned
	famJoin := m.Families.WithGroup(mesh.DefaultFamily, "auto:join")
	base, _ := mesh.PrefixCount(c, int64(len(prs)))
	needI := c.Size() > 1 || m.GlobalIFaceNum != nil
	if needI && m.GlobalIFaceNum == nil {
		m.GlobalIFaceNum = make([]int64, m.NIFaces)
		for i := range m.GlobalIFaceNum {
			m.GlobalIFaceNum[i] = int64(i) + 1
		}
	}
	paired := make([]bool, m.NBFaces)
	for i, pr := range prs {
		f1, f2 := pr[0], pr[1]
		paired[f1], paired[f2] = true, true
		m.IFaceCells = append(m.IFaceCells, [2]int{m.BFaceCells[f1], m.BFaceCells[f2]})
		m.IFaceVtx = append(m.IFaceVtx, m.BFaceVertices(f1)...)
		m.IFaceVtxIdx = append(m.IFaceVtxIdx, len(m.IFaceVtx))
		m.IFaceFamily = append(m.IFaceFamily, famJoin)
		if needI {
			m.GlobalIFaceNum = append(m.GlobalIFaceNum, m.NGIFaces+base+int64(i)+1)
		}
	}
	m.NIFaces = len(m.IFaceCells)
	if needI {
		m.GlobalIFaceNum, m.NGIFaces = mesh.CompactGlobalNums(c, m.GlobalIFaceNum)
	}

	// Paired faces leave the boundary
	var (
		keptCells []int
		keptFam   []int
		keptVtx   []int
		keptIdx   = []int{0}
		keptKeys  []int64
	)
	for f := 0; f < m.NBFaces; f++ {
		if paired[f] {
			continue
		}
		keptCells = append(keptCells, m.BFaceCells[f])
		keptFam = append(keptFam, m.BFaceFamily[f])
		keptVtx = append(keptVtx, m.BFaceVertices(f)...)
		keptIdx = append(keptIdx, len(keptVtx))
		keptKeys = append(keptKeys, bgnum(f))
	}
	m.BFaceCells, m.BFaceFamily = keptCells, keptFam
	m.BFaceVtx, m.BFaceVtxIdx = keptVtx, keptIdx
	m.NBFaces = len(keptCells)
	if c.Size() > 1 || m.GlobalBFaceNum != nil {
		m.GlobalBFaceNum, m.NGBFaces = mesh.CompactGlobalNums(c, keptKeys)
	}

	m.CellVtxIdx, m.CellVtx = nil, nil
	m.MarkModified(mesh.ModifiedTopo | mesh.ModifiedBalance)
	m.UpdateGlobalCounts(c)
	return len(prs), nil
}

// faceSig builds the identity key of a face from its sorted vertex set.
func faceSig(ring []int) string {
	sorted := make([]int, len(ring))
	copy(sorted, ring)
	sort.Ints(sorted)
	return fmt.Sprintf("%v", sorted)
}
