package join

import (
	"math"
	"strings"
	"testing"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// twoCubes builds two unit hexes meeting at x=1+gap, each carrying its
// own copy of the four interface vertices, so the mesh arrives as two
// disconnected cells with face rings waiting to be joined.
func twoCubes(gap float64) *mesh.Mesh {
	es := &mesh.ElementSet{
		Elements: [][]int{
			{0, 1, 2, 3, 4, 5, 6, 7},
			{8, 9, 10, 11, 12, 13, 14, 15},
		},
		Types: []mesh.ElementType{mesh.Hex, mesh.Hex},
	}
	x := 1 + gap
	corners := [][3]float64{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
		{x, 0, 0}, {x + 1, 0, 0}, {x + 1, 1, 0}, {x, 1, 0},
		{x, 0, 1}, {x + 1, 0, 1}, {x + 1, 1, 1}, {x, 1, 1},
	}
	for _, p := range corners {
		es.VtxCoord = append(es.VtxCoord, p[0], p[1], p[2])
	}
	m, err := mesh.FromElements(es)
	if err != nil {
		panic(err)
	}
	return m
}

func allBFaces(m *mesh.Mesh) []int {
	sel := make([]int, m.NBFaces)
	for i := range sel {
		sel[i] = i
	}
	return sel
}

func TestJoinTwoCubes(t *testing.T) {
	m := twoCubes(0)
	if m.NCells != 2 || m.NIFaces != 0 || m.NBFaces != 12 || m.NVertices != 16 {
		t.Fatalf("Fixture off: %d cells, %d interior, %d boundary, %d vertices",
			m.NCells, m.NIFaces, m.NBFaces, m.NVertices)
	}

	if err := Join(m, allBFaces(m), DefaultParams(), nil); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if m.NCells != 2 {
		t.Errorf("Expected 2 cells, got %d", m.NCells)
	}
	if m.NIFaces != 1 {
		t.Errorf("Expected 1 interior face, got %d", m.NIFaces)
	}
	if m.NBFaces != 10 {
		t.Errorf("Expected 10 boundary faces, got %d", m.NBFaces)
	}
	if m.NVertices != 12 {
		t.Errorf("Expected 12 vertices after fusing 4 pairs, got %d", m.NVertices)
	}
	if m.NGCells != 2 || m.NGIFaces != 1 || m.NGBFaces != 10 || m.NGVertices != 12 {
		t.Errorf("Global counts wrong: %d %d %d %d",
			m.NGCells, m.NGIFaces, m.NGBFaces, m.NGVertices)
	}

	if m.IFaceCells[0] != [2]int{0, 1} {
		t.Errorf("Interior face connects %v", m.IFaceCells[0])
	}
	ring := m.IFaceVertices(0)
	if len(ring) != 4 {
		t.Errorf("Interior face ring %v", ring)
	}
	for _, v := range ring {
		if x := m.VtxCoord[3*v]; x != 1 {
			t.Errorf("Interior ring vertex %d sits at x=%g", v, x)
		}
	}
	if !m.Families.HasGroup(m.IFaceFamily[0], "auto:join") {
		t.Errorf("Joined face carries family %d without the marker group",
			m.IFaceFamily[0])
	}
	if m.Modified&mesh.ModifiedTopo == 0 {
		t.Errorf("Joining left the topology flag down")
	}
}

func TestJoinGapTolerance(t *testing.T) {
	// A 0.05 gap is absorbed when the tolerance reaches it
	m := twoCubes(0.05)
	p := DefaultParams()
	if err := Join(m, allBFaces(m), p, nil); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if m.NIFaces != 1 || m.NVertices != 12 {
		t.Errorf("Gap not absorbed: %d interior faces, %d vertices",
			m.NIFaces, m.NVertices)
	}
	for _, v := range m.IFaceVertices(0) {
		if x := m.VtxCoord[3*v]; math.Abs(x-1.025) > 1e-12 {
			t.Errorf("Fused vertex %d at x=%g, expected the pair midpoint", v, x)
		}
	}

	// The same gap survives a tolerance smaller than it
	m = twoCubes(0.05)
	p.Fraction = 0.01
	if err := Join(m, allBFaces(m), p, nil); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if m.NIFaces != 0 || m.NBFaces != 12 || m.NVertices != 16 {
		t.Errorf("Faces fused across a gap beyond tolerance: %d %d %d",
			m.NIFaces, m.NBFaces, m.NVertices)
	}
}

func TestJoinBadParams(t *testing.T) {
	m := twoCubes(0)
	p := DefaultParams()
	p.Fraction = -0.1
	if err := Join(m, allBFaces(m), p, nil); err == nil {
		t.Errorf("Negative fraction accepted")
	}
	p.Fraction = 1.0
	if err := Join(m, allBFaces(m), p, nil); err == nil {
		t.Errorf("Fraction 1 accepted")
	}
	p = DefaultParams()
	p.ToleranceMode = 9
	err := Join(m, allBFaces(m), p, nil)
	if err == nil || !strings.Contains(err.Error(), "tolerance computation mode") {
		t.Errorf("Unknown tolerance mode: %v", err)
	}
}

func TestRemoveEmptyEdges(t *testing.T) {
	gnum := func(f int) int64 { return int64(f) + 1 }

	idx, lst, n, err := removeEmptyEdges([]int{0, 5}, []int{0, 1, 1, 2, 3}, gnum)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 1 || idx[1] != 4 {
		t.Errorf("Expected one simplified face of 4 vertices, got %d and %v", n, idx)
	}
	if want := []int{0, 1, 2, 3}; !equalInts(lst, want) {
		t.Errorf("Ring %v, expected %v", lst, want)
	}

	// Wraparound duplicate: last equals first
	idx, lst, n, err = removeEmptyEdges([]int{0, 4}, []int{0, 1, 2, 0}, gnum)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 1 || idx[1] != 3 {
		t.Errorf("Wraparound duplicate kept: %d faces simplified, idx %v", n, idx)
	}
	if want := []int{1, 2, 0}; !equalInts(lst, want) {
		t.Errorf("Ring %v, expected %v", lst, want)
	}

	// Collapsing below a triangle is an error
	_, _, _, err = removeEmptyEdges([]int{0, 4}, []int{5, 5, 6, 6}, gnum)
	if err == nil || !strings.Contains(err.Error(), "less than 3 vertices") {
		t.Errorf("Collapsed face accepted: %v", err)
	}
}

func TestRemoveDegenerateEdges(t *testing.T) {
	gnum := func(f int) int64 { return int64(f) + 1 }

	// The ring walks 1 -> 2 -> 1, a spike that must go
	idx, lst, n, err := removeDegenerateEdges([]int{0, 5}, []int{0, 1, 2, 1, 3}, gnum)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 1 || idx[1] != 3 {
		t.Errorf("Expected one modified face of 3 vertices, got %d and %v", n, idx)
	}
	if want := []int{0, 1, 3}; !equalInts(lst, want) {
		t.Errorf("Ring %v, expected %v", lst, want)
	}

	// An intact ring passes through untouched
	idx, lst, n, err = removeDegenerateEdges([]int{0, 4}, []int{0, 1, 2, 3}, gnum)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 0 || !equalInts(lst, []int{0, 1, 2, 3}) {
		t.Errorf("Intact ring changed: %d modified, %v", n, lst)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVertexClean(t *testing.T) {
	wm := &WorkMesh{
		NFaces:     1,
		FaceGNum:   []int64{1},
		FaceVtxIdx: []int{0, 3},
		FaceVtx:    []int{0, 2, 3},
		Vertices: []Vertex{
			{GNum: 4}, {GNum: 9}, {GNum: 4}, {GNum: 7},
		},
	}
	wm.VertexClean()
	if len(wm.Vertices) != 2 {
		t.Fatalf("Expected 2 vertices, got %d", len(wm.Vertices))
	}
	if wm.Vertices[0].GNum != 4 || wm.Vertices[1].GNum != 7 {
		t.Errorf("Survivors %v", wm.Vertices)
	}
	// Both copies of global number 4 now map to the same local id
	if want := []int{0, 0, 1}; !equalInts(wm.FaceVtx, want) {
		t.Errorf("Ring %v, expected %v", wm.FaceVtx, want)
	}
}

func TestDefineEdgesAndGetEdge(t *testing.T) {
	wm := &WorkMesh{
		NFaces:     1,
		FaceGNum:   []int64{1},
		FaceVtxIdx: []int{0, 4},
		FaceVtx:    []int{0, 1, 2, 3},
		NGFaces:    1,
		NGVertices: 4,
		Vertices: []Vertex{
			{GNum: 1}, {GNum: 2}, {GNum: 3}, {GNum: 4},
		},
	}
	e := DefineEdges(wm, utils.Serial())
	if e.NEdges != 4 || e.NGEdges != 4 {
		t.Fatalf("Expected 4 edges, got %d of %d", e.NEdges, e.NGEdges)
	}

	fwd, err := e.GetEdge(1, 2)
	if err != nil || fwd <= 0 {
		t.Errorf("Edge 1-2 gave %d, %v", fwd, err)
	}
	rev, err := e.GetEdge(2, 1)
	if err != nil || rev != -fwd {
		t.Errorf("Edge 2-1 gave %d against %d, %v", rev, fwd, err)
	}
	// The ring closure runs 4 -> 1 but is stored from the smaller number
	back, err := e.GetEdge(4, 1)
	if err != nil || back >= 0 {
		t.Errorf("Edge 4-1 gave %d, %v", back, err)
	}

	if _, err = e.GetEdge(1, 3); err == nil {
		t.Errorf("Diagonal 1-3 reported as an edge")
	}
	if _, err = e.GetEdge(9, 1); err == nil ||
		!strings.Contains(err.Error(), "vertex number") {
		t.Errorf("Undefined vertex accepted: %v", err)
	}
}

func TestToleranceModes(t *testing.T) {
	// A 3-4-5 triangle gives distinct bounds per vertex
	tri := func() *WorkMesh {
		return &WorkMesh{
			NFaces:     1,
			FaceGNum:   []int64{1},
			FaceVtxIdx: []int{0, 3},
			FaceVtx:    []int{0, 1, 2},
			NGFaces:    1,
			NGVertices: 3,
			Vertices: []Vertex{
				{GNum: 1, Tolerance: math.MaxFloat64},
				{GNum: 2, Tolerance: math.MaxFloat64, Coord: [3]float64{4, 0, 0}},
				{GNum: 3, Tolerance: math.MaxFloat64, Coord: [3]float64{0, 3, 0}},
			},
		}
	}

	wm := tri()
	if err := computeTolerances(wm, Params{Fraction: 0.1, ToleranceMode: 1}); err != nil {
		t.Fatalf("Mode 1 failed: %v", err)
	}
	for i, want := range []float64{0.3, 0.4, 0.3} {
		if got := wm.Vertices[i].Tolerance; math.Abs(got-want) > 1e-12 {
			t.Errorf("Mode 1 vertex %d tolerance %g, expected %g", i, got, want)
		}
	}

	// The right angle keeps its full bound, the acute corners shrink
	wm = tri()
	if err := computeTolerances(wm, Params{Fraction: 0.1, ToleranceMode: 2}); err != nil {
		t.Fatalf("Mode 2 failed: %v", err)
	}
	for i, want := range []float64{0.3, 0.24, 0.24} {
		if got := wm.Vertices[i].Tolerance; math.Abs(got-want) > 1e-12 {
			t.Errorf("Mode 2 vertex %d tolerance %g, expected %g", i, got, want)
		}
	}
}

func TestRedistributeTwoRanks(t *testing.T) {
	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		// Faces arrive interleaved across ranks, leave in block slabs
		mine := [][]int64{{1, 3}, {2, 4}}[c.Rank()]
		wm := &WorkMesh{Name: "redist", NGFaces: 4, NGVertices: 50, FaceVtxIdx: []int{0}}
		for _, g := range mine {
			wm.FaceGNum = append(wm.FaceGNum, g)
			for k := int64(1); k <= 3; k++ {
				wm.FaceVtx = append(wm.FaceVtx, len(wm.Vertices))
				wm.Vertices = append(wm.Vertices, Vertex{
					State:     StateOrigin,
					GNum:      10*g + k,
					Tolerance: 0.1,
					Coord:     [3]float64{float64(g), float64(k), 0},
				})
			}
			wm.FaceVtxIdx = append(wm.FaceVtxIdx, len(wm.FaceVtx))
		}
		wm.NFaces = len(wm.FaceGNum)

		out := wm.Redistribute(c)
		lo, hi := utils.NewBlockDist(4, 2).Range(c.Rank())
		if int64(out.NFaces) != hi-lo {
			t.Errorf("Rank %d: expected %d faces, got %d", c.Rank(), hi-lo, out.NFaces)
			return
		}
		for f := 0; f < out.NFaces; f++ {
			g := out.FaceGNum[f]
			if g != lo+int64(f) {
				t.Errorf("Rank %d: face %d has global number %d", c.Rank(), f, g)
			}
			ring := out.Ring(f)
			if len(ring) != 3 {
				t.Errorf("Rank %d: face %d ring %v", c.Rank(), f, ring)
				continue
			}
			for j, v := range ring {
				vv := out.Vertices[v]
				if vv.GNum != 10*g+int64(j)+1 || vv.Coord[0] != float64(g) {
					t.Errorf("Rank %d: face %d vertex %d travelled wrong: %+v",
						c.Rank(), f, j, vv)
				}
			}
		}
	})
}

func TestSyncTolerancesTwoRanks(t *testing.T) {
	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		wm := &WorkMesh{
			NGVertices: 10,
			Vertices: []Vertex{
				{GNum: 5, Tolerance: []float64{0.3, 0.1}[c.Rank()]},
				{GNum: int64(c.Rank()) + 1, Tolerance: 0.2},
			},
		}
		syncTolerances(wm, c)
		if got := wm.Vertices[0].Tolerance; got != 0.1 {
			t.Errorf("Rank %d: shared vertex kept tolerance %g", c.Rank(), got)
		}
		if got := wm.Vertices[1].Tolerance; got != 0.2 {
			t.Errorf("Rank %d: private vertex moved to %g", c.Rank(), got)
		}
	})
}

func TestJoinTwoRanksVertexFusion(t *testing.T) {
	// One cube per rank: the coincident vertices fuse globally even
	// though the face pair spans ranks and stays on the boundary.
	global := twoCubes(0)
	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		m, _ := mesh.Distribute(global, []int{0, 1}, c)
		if err := Join(m, allBFaces(m), DefaultParams(), c); err != nil {
			t.Errorf("Rank %d: Join failed: %v", c.Rank(), err)
			return
		}
		if m.NVertices != 8 {
			t.Errorf("Rank %d: expected 8 local vertices, got %d", c.Rank(), m.NVertices)
		}
		if m.NGVertices != 12 {
			t.Errorf("Rank %d: expected 12 global vertices, got %d", c.Rank(), m.NGVertices)
		}
		if m.NGBFaces != 12 || m.NGIFaces != 0 {
			t.Errorf("Rank %d: face counts %d/%d changed without a local pair",
				c.Rank(), m.NGIFaces, m.NGBFaces)
		}
		// Interface vertices of both ranks now share global numbers
		shared := 0
		seen := make(map[int64]bool)
		for v := 0; v < m.NVertices; v++ {
			if m.VtxCoord[3*v] == 1 {
				shared++
				seen[m.GlobalVtxNum[v]] = true
			}
		}
		if shared != 4 || len(seen) != 4 {
			t.Errorf("Rank %d: interface carries %d vertices, %d numbers",
				c.Rank(), shared, len(seen))
		}
	})
}
