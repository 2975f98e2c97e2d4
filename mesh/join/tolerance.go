package join

import (
	"fmt"
	"math"

	"github.com/notargets/gofv/utils"
)

// computeTolerances assigns every work vertex its merge tolerance.
// Mode 1 scales the shortest adjacent ring edge, mode 2 additionally
// damps the bound by the sine of the edge angle at the vertex.
func computeTolerances(wm *WorkMesh, p Params) error {
	switch p.ToleranceMode {
	case 1:
		toleranceByLength(wm, p.Fraction)
	case 2:
		toleranceByAngle(wm, p.Fraction)
	default:
		return fmt.Errorf("tolerance computation mode (%d) is not defined", p.ToleranceMode)
	}
	return nil
}

func toleranceByLength(wm *WorkMesh, fraction float64) {
	for f := 0; f < wm.NFaces; f++ {
		ring := wm.Ring(f)
		for j := range ring {
			v1, v2 := ring[j], ring[(j+1)%len(ring)]
			tol := fraction * distance(wm.Vertices[v1].Coord, wm.Vertices[v2].Coord)
			if tol < wm.Vertices[v1].Tolerance {
				wm.Vertices[v1].Tolerance = tol
			}
			if tol < wm.Vertices[v2].Tolerance {
				wm.Vertices[v2].Tolerance = tol
			}
		}
	}
}

// toleranceByAngle keeps the mode 1 bound but multiplies it by the
// sine of the angle between the two ring edges meeting at the vertex,
// so vertices sitting on nearly flat rings fuse less eagerly.
func toleranceByAngle(wm *WorkMesh, fraction float64) {
	for f := 0; f < wm.NFaces; f++ {
		ring := wm.Ring(f)
		n := len(ring)
		vec := make([][3]float64, n)
		length := make([]float64, n)
		for k := 0; k < n; k++ {
			a := wm.Vertices[ring[k]].Coord
			b := wm.Vertices[ring[(k+1)%n]].Coord
			vec[k] = [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
			length[k] = math.Sqrt(dot(vec[k], vec[k]))
		}
		for k := 0; k < n; k++ {
			in := (k - 1 + n) % n
			a := [3]float64{-vec[in][0], -vec[in][1], -vec[in][2]}
			cr := cross(a, vec[k])
			sine := math.Sqrt(dot(cr, cr)) / (length[in] * length[k])
			tol := sine * fraction * math.Min(length[in], length[k])
			if tol < wm.Vertices[ring[k]].Tolerance {
				wm.Vertices[ring[k]].Tolerance = tol
			}
		}
	}
}

// syncTolerances replaces every vertex tolerance by the minimum over
// all ranks seeing the same global vertex. The minimum is the safe
// choice: fusion stays forbidden wherever any rank forbids it.
// Collective.
func syncTolerances(wm *WorkMesh, c *utils.Comm) {
	if c.Size() == 1 {
		return
	}
	type query struct {
		G   int64
		Tol float64
		Idx int64
	}
	bd := utils.NewBlockDist(wm.NGVertices, c.Size())
	queries := make([]query, len(wm.Vertices))
	dest := make([]int, len(wm.Vertices))
	for i, v := range wm.Vertices {
		queries[i] = query{G: v.GNum, Tol: v.Tolerance, Idx: int64(i)}
		dest[i] = bd.RankOf(v.GNum)
	}
	recv, src := utils.AllToAllv(c, dest, queries)

	least := make(map[int64]float64, len(recv))
	for _, q := range recv {
		if t, ok := least[q.G]; !ok || q.Tol < t {
			least[q.G] = q.Tol
		}
	}
	type reply struct {
		Idx int64
		Tol float64
	}
	replies := make([]reply, len(recv))
	for i, q := range recv {
		replies[i] = reply{Idx: q.Idx, Tol: least[q.G]}
	}
	got, _ := utils.AllToAllv(c, src, replies)
	for _, r := range got {
		wm.Vertices[r.Idx].Tolerance = r.Tol
	}
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
