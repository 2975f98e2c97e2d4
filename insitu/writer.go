package insitu

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// VTK cell codes published in shape maps for downstream consumers.
const (
	vtkLine       = 3
	vtkTri        = 5
	vtkPolygon    = 7
	vtkQuad       = 9
	vtkTet        = 10
	vtkHex        = 12
	vtkWedge      = 13
	vtkPyramid    = 14
	vtkPolyhedron = 42
)

// Runtime consumes the export tree. Initialize receives the discovered
// configuration scripts once, before the first Execute. Execute runs on
// every rank at each flush. Finalize runs once at shutdown, after a
// last flush of pending exports.
type Runtime interface {
	Initialize(scripts []string) error
	Execute(root *Node) error
	Finalize() error
}

// Writer assembles mesh and field exports into a tree and hands the
// tree to its runtime on Flush. One writer serves one communicator;
// Flush and Finalize are collective. The runtime initializes lazily on
// the first flush, after the ranks have agreed on the configuration
// scripts found in ScriptDir.
type Writer struct {
	Name      string
	ScriptDir string // searched for *.py configuration scripts, "" disables

	rt   Runtime
	c    *utils.Comm
	root *Node

	timeStep    int
	timeValue   float64
	modified    bool
	initialized bool

	elems   map[string]int       // exported element count per mesh node
	mirrors map[string][]float64 // interleave buffers for component input
}

func NewWriter(name string, rt Runtime, c *utils.Comm) *Writer {
	if c == nil {
		c = utils.Serial()
	}
	return &Writer{
		Name:      name,
		ScriptDir: ".",
		rt:        rt,
		c:         c,
		root:      NewNode(),
		timeStep:  -1,
		elems:     make(map[string]int),
		mirrors:   make(map[string][]float64),
	}
}

// Tree exposes the assembled export tree.
func (w *Writer) Tree() *Node { return w.root }

// SetTime tags subsequent exports with the timestep and physical time.
func (w *Writer) SetTime(step int, t float64) {
	w.timeStep = step
	w.timeValue = t
	w.modified = true
}

func (w *Writer) meshNode(name string, m *mesh.Mesh) *Node {
	mn := w.root.Child("data/" + name)
	mn.Child("state/domain").SetInt(int64(w.c.Rank()))
	cs := mn.Child("coordsets/coords")
	cs.Child("type").SetString("explicit")
	cs.Child("values/x").SetView(FloatView{Data: m.VtxCoord, Offset: 0, Stride: 3, Count: m.NVertices})
	cs.Child("values/y").SetView(FloatView{Data: m.VtxCoord, Offset: 1, Stride: 3, Count: m.NVertices})
	cs.Child("values/z").SetView(FloatView{Data: m.VtxCoord, Offset: 2, Stride: 3, Count: m.NVertices})
	top := mn.Child("topologies/mesh")
	top.Child("coordset").SetString("coords")
	top.Child("type").SetString("unstructured")
	return mn
}

// ExportVolume publishes the owned cells of m as a polyhedral mesh
// under data/<name>. The element connectivity lists face ids, interior
// faces first, and the subelement table spells each face as a vertex
// polygon. Coordinates are strided views into the mesh's interleaved
// array, so later coordinate updates show through without re-export.
func (w *Writer) ExportVolume(name string, m *mesh.Mesh) {
	mn := w.meshNode(name, m)

	counts := make([]int, m.NCells)
	for f := 0; f < m.NIFaces; f++ {
		for _, c := range m.IFaceCells[f] {
			if c >= 0 && c < m.NCells {
				counts[c]++
			}
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		if c := m.BFaceCells[f]; c >= 0 && c < m.NCells {
			counts[c]++
		}
	}
	sizes := make([]int64, m.NCells)
	offsets := make([]int64, m.NCells)
	var total int64
	for c, n := range counts {
		sizes[c] = int64(n)
		offsets[c] = total
		total += int64(n)
	}
	conn := make([]int64, total)
	fill := make([]int64, m.NCells)
	copy(fill, offsets)
	for f := 0; f < m.NIFaces; f++ {
		for _, c := range m.IFaceCells[f] {
			if c >= 0 && c < m.NCells {
				conn[fill[c]] = int64(f)
				fill[c]++
			}
		}
	}
	for f := 0; f < m.NBFaces; f++ {
		if c := m.BFaceCells[f]; c >= 0 && c < m.NCells {
			conn[fill[c]] = int64(m.NIFaces + f)
			fill[c]++
		}
	}
	el := mn.Child("topologies/mesh/elements")
	el.Child("shape").SetString("polyhedral")
	el.Child("connectivity").SetInts(conn)
	el.Child("sizes").SetInts(sizes)
	el.Child("offsets").SetInts(offsets)

	nf := m.NIFaces + m.NBFaces
	fsizes := make([]int64, nf)
	foffsets := make([]int64, nf)
	fshapes := make([]int64, nf)
	var fconn []int64
	for f := 0; f < nf; f++ {
		var ring []int
		if f < m.NIFaces {
			ring = m.IFaceVertices(f)
		} else {
			ring = m.BFaceVertices(f - m.NIFaces)
		}
		fsizes[f] = int64(len(ring))
		foffsets[f] = int64(len(fconn))
		fshapes[f] = vtkPolygon
		for _, v := range ring {
			fconn = append(fconn, int64(v))
		}
	}
	se := mn.Child("topologies/mesh/subelements")
	se.Child("shape").SetString("mixed")
	se.Child("shape_map/polygonal").SetInt(vtkPolygon)
	se.Child("connectivity").SetInts(fconn)
	se.Child("shapes").SetInts(fshapes)
	se.Child("sizes").SetInts(fsizes)
	se.Child("offsets").SetInts(foffsets)

	w.elems[name] = m.NCells
	w.modified = true
}

func surfaceShape(ringLen int) (string, int64) {
	switch ringLen {
	case 3:
		return "tri", vtkTri
	case 4:
		return "quad", vtkQuad
	default:
		return "polygonal", vtkPolygon
	}
}

// ExportBoundary publishes the boundary faces listed in faces, or all
// of them when faces is nil, as a surface mesh under data/<name>.
// Triangles and quadrangles keep their fixed-stride shape, larger
// rings become polygons, and a mix of ring sizes becomes a mixed
// topology with an explicit shape map.
func (w *Writer) ExportBoundary(name string, m *mesh.Mesh, faces []int) {
	if faces == nil {
		faces = make([]int, m.NBFaces)
		for f := range faces {
			faces[f] = f
		}
	}
	mn := w.meshNode(name, m)

	single := true
	firstName := "polygonal"
	var conn, sizes, offsets, shapes []int64
	codes := make(map[string]int64)
	for i, f := range faces {
		ring := m.BFaceVertices(f)
		nm, code := surfaceShape(len(ring))
		if i == 0 {
			firstName = nm
		} else if nm != firstName {
			single = false
		}
		codes[nm] = code
		sizes = append(sizes, int64(len(ring)))
		offsets = append(offsets, int64(len(conn)))
		shapes = append(shapes, code)
		for _, v := range ring {
			conn = append(conn, int64(v))
		}
	}
	el := mn.Child("topologies/mesh/elements")
	switch {
	case single && firstName != "polygonal":
		el.Child("shape").SetString(firstName)
		el.Child("connectivity").SetInts(conn)
	case single:
		el.Child("shape").SetString("polygonal")
		el.Child("connectivity").SetInts(conn)
		el.Child("sizes").SetInts(sizes)
		el.Child("offsets").SetInts(offsets)
	default:
		el.Child("shape").SetString("mixed")
		names := make([]string, 0, len(codes))
		for nm := range codes {
			names = append(names, nm)
		}
		sort.Strings(names)
		for _, nm := range names {
			el.Child("shape_map/" + nm).SetInt(codes[nm])
		}
		el.Child("connectivity").SetInts(conn)
		el.Child("shapes").SetInts(shapes)
		el.Child("sizes").SetInts(sizes)
		el.Child("offsets").SetInts(offsets)
	}

	w.elems[name] = len(faces)
	w.modified = true
}

// componentKeys returns the per-component leaf names under values for
// the conventional dimensions, or nil when the dimension has none.
func componentKeys(dim int) []string {
	switch dim {
	case 3:
		return []string{"x", "y", "z"}
	case 6:
		return []string{"xx", "yy", "zz", "xy", "yz", "xz"}
	case 9:
		return []string{"xx", "xy", "xz", "yx", "yy", "yz", "zx", "zy", "zz"}
	}
	return nil
}

// ExportElementField publishes an interleaved element-centered field of
// the given dimension on a previously exported mesh. Vector and tensor
// components become strided views named by axis; dimensions without a
// conventional naming split into scalar fields suffixed _0, _1, and on.
func (w *Writer) ExportElementField(meshName, field string, v []float64, dim int) {
	w.exportField(meshName, field, "element", v, dim, w.elems[meshName])
}

// ExportVertexField publishes an interleaved vertex-centered field.
func (w *Writer) ExportVertexField(meshName, field string, v []float64, dim int) {
	n := 0
	if x := w.root.Fetch("data/" + meshName + "/coordsets/coords/values/x"); x != nil {
		n = x.AsFloats().Count
	}
	w.exportField(meshName, field, "vertex", v, dim, n)
}

// ExportElementFieldComponents mirrors separate per-component slices
// into one interleaved buffer, reused across steps, and publishes it.
func (w *Writer) ExportElementFieldComponents(meshName, field string, comps ...[]float64) {
	v, dim := w.mirror(meshName+"/"+field, comps)
	w.ExportElementField(meshName, field, v, dim)
}

// ExportVertexFieldComponents is the vertex-centered counterpart.
func (w *Writer) ExportVertexFieldComponents(meshName, field string, comps ...[]float64) {
	v, dim := w.mirror(meshName+"/"+field, comps)
	w.ExportVertexField(meshName, field, v, dim)
}

func (w *Writer) mirror(key string, comps [][]float64) ([]float64, int) {
	dim := len(comps)
	n := 0
	if dim > 0 {
		n = len(comps[0])
	}
	buf := w.mirrors[key]
	if cap(buf) < dim*n {
		buf = make([]float64, dim*n)
	}
	buf = buf[:dim*n]
	for k, comp := range comps {
		for i, x := range comp {
			buf[i*dim+k] = x
		}
	}
	w.mirrors[key] = buf
	return buf, dim
}

func (w *Writer) exportField(meshName, field, assoc string, v []float64, dim, n int) {
	mn := w.root.Fetch("data/" + meshName)
	if mn == nil {
		panic(fmt.Sprintf("insitu: field %q exported before mesh %q", field, meshName))
	}
	if dim != 1 && componentKeys(dim) == nil {
		for k := 0; k < dim; k++ {
			w.fieldNode(mn, fmt.Sprintf("%s_%d", field, k), assoc).
				Child("values").SetView(FloatView{Data: v, Offset: k, Stride: dim, Count: n})
		}
		w.modified = true
		return
	}
	fn := w.fieldNode(mn, field, assoc)
	if dim == 1 {
		fn.Child("values").SetView(FloatView{Data: v, Stride: 1, Count: n})
	} else {
		for k, key := range componentKeys(dim) {
			fn.Child("values/" + key).SetView(FloatView{Data: v, Offset: k, Stride: dim, Count: n})
		}
	}
	w.modified = true
}

func (w *Writer) fieldNode(mn *Node, field, assoc string) *Node {
	fn := mn.Child("fields/" + field)
	fn.Child("association").SetString(assoc)
	fn.Child("topology").SetString("mesh")
	fn.Child("volume_dependent").SetString("false")
	return fn
}

// Flush hands the tree to the runtime. The first flush discovers the
// configuration scripts, records them under scripts/ and initializes
// the runtime. A flush with no pending exports returns immediately.
// Collective over the writer's communicator.
func (w *Writer) Flush() error {
	if !w.modified {
		return nil
	}
	if w.rt == nil {
		return fmt.Errorf("insitu writer %s: no runtime attached", w.Name)
	}
	if !w.initialized {
		scripts, err := w.discoverScripts()
		if err != nil {
			return err
		}
		for i, s := range scripts {
			w.root.Child(fmt.Sprintf("scripts/script%d/filename", i)).SetString(s)
		}
		if err := w.rt.Initialize(scripts); err != nil {
			return fmt.Errorf("insitu writer %s: %w", w.Name, err)
		}
		w.initialized = true
		fmt.Printf("Writer %s: runtime initialized, %d configuration scripts\n",
			w.Name, len(scripts))
	}
	w.root.Child("state/cycle").SetInt(int64(w.timeStep))
	w.root.Child("state/time").SetFloat(w.timeValue)
	if d := w.root.Fetch("data"); d != nil {
		for _, mn := range d.Children() {
			mn.Child("state/cycle").SetInt(int64(w.timeStep))
			mn.Child("state/time").SetFloat(w.timeValue)
		}
	}
	w.c.Barrier()
	if err := w.rt.Execute(w.root); err != nil {
		return fmt.Errorf("insitu writer %s: %w", w.Name, err)
	}
	w.modified = false
	return nil
}

// Finalize flushes pending exports and shuts the runtime down.
// Collective over the writer's communicator.
func (w *Writer) Finalize() error {
	if w.modified {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if w.rt == nil {
		return nil
	}
	return w.rt.Finalize()
}

// discoverScripts lists usable configuration scripts. Rank 0 scans
// ScriptDir and checks the content, the result is broadcast so every
// rank initializes its runtime with the same list.
func (w *Writer) discoverScripts() ([]string, error) {
	var names []string
	if w.c.Rank() == 0 && w.ScriptDir != "" {
		matches, err := filepath.Glob(filepath.Join(w.ScriptDir, "*.py"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, p := range matches {
			buf, err := os.ReadFile(p)
			if err != nil {
				fmt.Printf("Writer %s: skipping unreadable script %s\n", w.Name, p)
				continue
			}
			if scriptUsable(buf) {
				names = append(names, p)
			}
		}
	}
	out, _ := w.c.Broadcast(0, names).([]string)
	return out, nil
}

// scriptUsable reports whether the file looks like a co-processing
// configuration script rather than a stray Python file.
func scriptUsable(b []byte) bool {
	s := string(b)
	return strings.Contains(s, "paraview") || strings.Contains(s, "catalyst")
}
