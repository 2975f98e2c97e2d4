package insitu

import (
	"fmt"
	"math"
	"time"

	"github.com/notargets/avs/assets"
	"github.com/notargets/avs/chart2d"
	"github.com/notargets/avs/geometry"
	utils2 "github.com/notargets/avs/utils"
)

// ChartRuntime renders one vertex scalar over a surface mesh from each
// flushed tree in an interactive window. The window opens on the first
// flush and stays up across steps. Rendering needs a display; headless
// runs should attach a DumpRuntime instead.
type ChartRuntime struct {
	Width, Height int
	Mesh          string        // mesh node under data, "" picks the first surface
	Field         string        // vertex field to shade, "" picks the first scalar
	Delay         time.Duration // hold time after each frame

	chart *chart2d.Chart2D
}

func NewChartRuntime(width, height int) *ChartRuntime {
	return &ChartRuntime{Width: width, Height: height}
}

// Initialize ignores configuration scripts; the chart has no scripting.
func (cr *ChartRuntime) Initialize([]string) error { return nil }

func (cr *ChartRuntime) Execute(root *Node) error {
	data := root.Fetch("data")
	if data == nil {
		return fmt.Errorf("chart runtime: tree has no data node")
	}
	var mn *Node
	for _, ch := range data.Children() {
		if cr.Mesh != "" {
			if ch.Name() == cr.Mesh {
				mn = ch
				break
			}
			continue
		}
		if isSurface(ch) {
			mn = ch
			break
		}
	}
	if mn == nil {
		return fmt.Errorf("chart runtime: no surface mesh to render")
	}
	if !isSurface(mn) {
		return fmt.Errorf("chart runtime: mesh %s is not a surface", mn.Name())
	}
	tris, err := surfaceTriangles(mn)
	if err != nil {
		return err
	}
	fname, fv, err := vertexScalar(mn, cr.Field)
	if err != nil {
		return err
	}
	ref := refVertices(tris, fv.Count)
	xy, err := projectXY(mn, ref)
	if err != nil {
		return err
	}
	field := make([]float32, fv.Count)
	fMin, fMax := float32(math.MaxFloat32), -float32(math.MaxFloat32)
	for i := range field {
		field[i] = float32(fv.At(i))
		if !ref[i] {
			continue
		}
		if field[i] < fMin {
			fMin = field[i]
		}
		if field[i] > fMax {
			fMax = field[i]
		}
	}
	if fMax <= fMin {
		fMax = fMin + 1
	}
	gm := geometry.TriMesh{XY: xy, TriVerts: tris}
	xMin, xMax, yMin, yMax := squareBounds(xy, ref)
	if cr.chart == nil {
		cr.chart = chart2d.NewChart2D(xMin, xMax, yMin, yMax,
			cr.Width, cr.Height, utils2.WHITE, utils2.BLACK)
	}
	vs := geometry.VertexScalar{TMesh: &gm, FieldValues: field}
	cr.chart.AddShadedVertexScalar(&vs, fMin, fMax)
	cr.chart.AddTriMesh(gm)
	var cycle int64
	var tval float64
	if sn := root.Fetch("state/cycle"); sn != nil {
		cycle = sn.AsInt()
	}
	if sn := root.Fetch("state/time"); sn != nil {
		tval = sn.AsFloat()
	}
	tf := assets.NewTextFormatter("NotoSans", "Regular", 24,
		utils2.BLACK, true, false)
	cr.chart.Printf(tf, xMin, yMax, "%s  step %d  t=%.4g", fname, cycle, tval)
	if cr.Delay > 0 {
		time.Sleep(cr.Delay)
	}
	return nil
}

func (cr *ChartRuntime) Finalize() error { return nil }

// isSurface reports whether the mesh node's topology holds only
// two-dimensional shapes.
func isSurface(mn *Node) bool {
	sh := mn.Fetch("topologies/mesh/elements/shape")
	if sh == nil {
		return false
	}
	switch sh.AsString() {
	case "tri", "quad", "polygonal":
		return true
	case "mixed":
		sm := mn.Fetch("topologies/mesh/elements/shape_map")
		if sm == nil {
			return false
		}
		for _, ch := range sm.Children() {
			switch ch.Name() {
			case "tri", "quad", "polygonal":
			default:
				return false
			}
		}
		return true
	}
	return false
}

// surfaceTriangles fans every face of a surface topology into
// triangles indexed into the mesh's coordset.
func surfaceTriangles(mn *Node) ([][3]int64, error) {
	el := mn.Fetch("topologies/mesh/elements")
	if el == nil {
		return nil, fmt.Errorf("chart runtime: mesh %s has no elements", mn.Name())
	}
	cn := el.Fetch("connectivity")
	if cn == nil {
		return nil, fmt.Errorf("chart runtime: mesh %s has no connectivity", mn.Name())
	}
	conn := cn.AsInts()
	var tris [][3]int64
	fan := func(ring []int64) {
		for i := 1; i+1 < len(ring); i++ {
			tris = append(tris, [3]int64{ring[0], ring[i], ring[i+1]})
		}
	}
	shape := ""
	if sh := el.Fetch("shape"); sh != nil {
		shape = sh.AsString()
	}
	switch shape {
	case "tri":
		for off := 0; off+3 <= len(conn); off += 3 {
			fan(conn[off : off+3])
		}
	case "quad":
		for off := 0; off+4 <= len(conn); off += 4 {
			fan(conn[off : off+4])
		}
	default:
		szn, ofn := el.Fetch("sizes"), el.Fetch("offsets")
		if szn == nil || ofn == nil {
			return nil, fmt.Errorf("chart runtime: mesh %s: variable shapes without sizes", mn.Name())
		}
		sz, of := szn.AsInts(), ofn.AsInts()
		for i := range sz {
			fan(conn[int(of[i]) : int(of[i])+int(sz[i])])
		}
	}
	return tris, nil
}

// refVertices marks the coordset entries the triangles actually use.
// The coordset is shared with the volume mesh, so a patch references
// only a subset of it.
func refVertices(tris [][3]int64, n int) []bool {
	ref := make([]bool, n)
	for _, t := range tris {
		for _, v := range t {
			if v >= 0 && int(v) < n {
				ref[v] = true
			}
		}
	}
	return ref
}

// projectXY flattens the coordinates onto the two widest axes of the
// referenced vertices. Planar patches render undistorted; a closed
// boundary only loses its thinnest direction.
func projectXY(mn *Node, ref []bool) ([]float32, error) {
	cs := mn.Fetch("coordsets/coords/values")
	if cs == nil {
		return nil, fmt.Errorf("chart runtime: mesh %s has no coordinates", mn.Name())
	}
	var axes [3]FloatView
	for k, key := range []string{"x", "y", "z"} {
		a := cs.Fetch(key)
		if a == nil {
			return nil, fmt.Errorf("chart runtime: mesh %s misses coordinate %s", mn.Name(), key)
		}
		axes[k] = a.AsFloats()
	}
	n := axes[0].Count
	var ext [3]float64
	for k := 0; k < 3; k++ {
		lo, hi := math.MaxFloat64, -math.MaxFloat64
		for i := 0; i < n; i++ {
			if ref != nil && !ref[i] {
				continue
			}
			x := axes[k].At(i)
			if x < lo {
				lo = x
			}
			if x > hi {
				hi = x
			}
		}
		ext[k] = hi - lo
	}
	drop := 0
	for k := 1; k < 3; k++ {
		if ext[k] < ext[drop] {
			drop = k
		}
	}
	var keep []FloatView
	for k := 0; k < 3; k++ {
		if k != drop {
			keep = append(keep, axes[k])
		}
	}
	xy := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		xy[2*i] = float32(keep[0].At(i))
		xy[2*i+1] = float32(keep[1].At(i))
	}
	return xy, nil
}

// vertexScalar returns the named vertex field, or the first vertex
// scalar when name is empty.
func vertexScalar(mn *Node, name string) (string, FloatView, error) {
	fs := mn.Fetch("fields")
	if fs != nil {
		for _, fn := range fs.Children() {
			if name != "" && fn.Name() != name {
				continue
			}
			if a := fn.Fetch("association"); a == nil || a.AsString() != "vertex" {
				continue
			}
			v := fn.Fetch("values")
			if v == nil || v.Kind() != KindFloatArray {
				continue
			}
			return fn.Name(), v.AsFloats(), nil
		}
	}
	if name != "" {
		return "", FloatView{}, fmt.Errorf("chart runtime: mesh %s has no vertex scalar %s", mn.Name(), name)
	}
	return "", FloatView{}, fmt.Errorf("chart runtime: mesh %s has no vertex scalar field", mn.Name())
}

func squareBounds(xy []float32, ref []bool) (xMin, xMax, yMin, yMax float32) {
	xMin, xMax = float32(math.MaxFloat32), -float32(math.MaxFloat32)
	yMin, yMax = float32(math.MaxFloat32), -float32(math.MaxFloat32)
	for i := 0; 2*i+1 < len(xy); i++ {
		if ref != nil && !ref[i] {
			continue
		}
		if xy[2*i] < xMin {
			xMin = xy[2*i]
		}
		if xy[2*i] > xMax {
			xMax = xy[2*i]
		}
		if xy[2*i+1] < yMin {
			yMin = xy[2*i+1]
		}
		if xy[2*i+1] > yMax {
			yMax = xy[2*i+1]
		}
	}
	xRange := xMax - xMin
	yRange := yMax - yMin
	if yRange > xRange {
		xCent := xRange/2 + xMin
		xMin = xCent - yRange/2
		xMax = xCent + yRange/2
	} else {
		yCent := yRange/2 + yMin
		yMin = yCent - xRange/2
		yMax = yCent + xRange/2
	}
	return
}
