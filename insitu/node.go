// Package insitu bridges the mesh and field data to co-processing
// consumers. Meshes and time-tagged fields are exposed through a
// hierarchical tree of named nodes whose array leaves alias the
// simulation's own storage where the layout allows, so an export costs
// no copy of the coordinates or of interleaved field components. A
// Runtime consumes the tree on each collective flush.
package insitu

import "strings"

// Kind discriminates the payload of a tree node.
type Kind int

const (
	KindTree Kind = iota
	KindString
	KindInt
	KindFloat
	KindIntArray
	KindFloatArray
)

// FloatView is a strided window over a float64 slice. It aliases the
// backing array, so writes by the owner after the export show through
// the view. Stride 3 with offsets 0, 1, 2 splits an interleaved
// coordinate array into its x, y, z components.
type FloatView struct {
	Data   []float64
	Offset int
	Stride int
	Count  int
}

// Contiguous wraps a whole slice as a stride-1 view.
func Contiguous(v []float64) FloatView {
	return FloatView{Data: v, Stride: 1, Count: len(v)}
}

// At returns element i of the view.
func (v FloatView) At(i int) float64 {
	return v.Data[v.Offset+i*v.Stride]
}

// Gather materializes the view into dst, growing it as needed.
func (v FloatView) Gather(dst []float64) []float64 {
	if cap(dst) < v.Count {
		dst = make([]float64, v.Count)
	}
	dst = dst[:v.Count]
	for i := range dst {
		dst[i] = v.Data[v.Offset+i*v.Stride]
	}
	return dst
}

// Node is one entry of the export tree. Interior nodes hold an ordered
// list of named children; leaves hold a string, a number or an array.
// Setting a value turns a node into a leaf, descending through Child
// turns it back into an interior node.
type Node struct {
	name     string
	kind     Kind
	children []*Node
	index    map[string]*Node

	str  string
	num  int64
	flt  float64
	ints []int64
	view FloatView
}

// NewNode returns an empty root.
func NewNode() *Node { return &Node{} }

func (n *Node) Name() string { return n.name }
func (n *Node) Kind() Kind   { return n.kind }

// Child returns the node at the slash-separated path below n, creating
// missing segments. Empty segments are skipped, so Child("") is n.
func (n *Node) Child(path string) *Node {
	cur := n
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if cur.kind != KindTree {
			cur.clear()
		}
		next, ok := cur.index[seg]
		if !ok {
			next = &Node{name: seg}
			if cur.index == nil {
				cur.index = make(map[string]*Node)
			}
			cur.index[seg] = next
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur
}

// Fetch returns the node at path, or nil when any segment is missing.
func (n *Node) Fetch(path string) *Node {
	cur := n
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		next, ok := cur.index[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Children returns the child list in insertion order. The slice is the
// node's own; callers must not modify it.
func (n *Node) Children() []*Node { return n.children }

func (n *Node) clear() {
	n.kind = KindTree
	n.children = nil
	n.index = nil
	n.str = ""
	n.num = 0
	n.flt = 0
	n.ints = nil
	n.view = FloatView{}
}

func (n *Node) SetString(s string) {
	n.clear()
	n.kind = KindString
	n.str = s
}

func (n *Node) SetInt(v int64) {
	n.clear()
	n.kind = KindInt
	n.num = v
}

func (n *Node) SetFloat(v float64) {
	n.clear()
	n.kind = KindFloat
	n.flt = v
}

// SetInts stores the slice without copying it.
func (n *Node) SetInts(v []int64) {
	n.clear()
	n.kind = KindIntArray
	n.ints = v
}

// SetFloats stores a stride-1 view of the slice without copying it.
func (n *Node) SetFloats(v []float64) {
	n.SetView(Contiguous(v))
}

// SetView stores a strided view, leaving the backing array in place.
func (n *Node) SetView(v FloatView) {
	n.clear()
	n.kind = KindFloatArray
	n.view = v
}

func (n *Node) AsString() string { return n.str }
func (n *Node) AsInt() int64     { return n.num }
func (n *Node) AsFloat() float64 { return n.flt }

// AsInts returns the stored slice, not a copy.
func (n *Node) AsInts() []int64 { return n.ints }

// AsFloats returns the stored view. Gather materializes it.
func (n *Node) AsFloats() FloatView { return n.view }
