package mesh

import (
	"sort"

	"github.com/notargets/gofv/utils"
)

// CompactGlobalNums maps a sparse 1-based global numbering onto the compact
// range 1..N, preserving relative order. Entries may be shared by several
// ranks; shared entries map to the same new number everywhere. Entries <= 0
// are passed through untouched.
func CompactGlobalNums(c *utils.Comm, gnum []int64) (out []int64, ng int64) {
	out = make([]int64, len(gnum))
	if c == nil || c.Size() == 1 {
		uniq := make([]int64, 0, len(gnum))
		seen := make(map[int64]struct{})
		for _, g := range gnum {
			if g <= 0 {
				continue
			}
			if _, dup := seen[g]; !dup {
				seen[g] = struct{}{}
				uniq = append(uniq, g)
			}
		}
		sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
		newOf := make(map[int64]int64, len(uniq))
		for i, g := range uniq {
			newOf[g] = int64(i) + 1
		}
		for i, g := range gnum {
			if g <= 0 {
				out[i] = g
			} else {
				out[i] = newOf[g]
			}
		}
		return out, int64(len(uniq))
	}

	var maxg int64
	for _, g := range gnum {
		if g > maxg {
			maxg = g
		}
	}
	maxg = c.AllReduceInt64(maxg, utils.OpMax)
	if maxg == 0 {
		return out, 0
	}
	bd := utils.NewBlockDist(maxg, c.Size())

	type query struct {
		G   int64
		Idx int64
	}
	var (
		dest []int
		qry  []query
	)
	for i, g := range gnum {
		if g <= 0 {
			out[i] = g
			continue
		}
		dest = append(dest, bd.RankOf(g))
		qry = append(qry, query{G: g, Idx: int64(i)})
	}
	recv, src := utils.AllToAllv(c, dest, qry)

	// Block owner orders the unique numbers of its block
	uniq := make([]int64, 0, len(recv))
	seen := make(map[int64]struct{})
	for _, q := range recv {
		if _, dup := seen[q.G]; !dup {
			seen[q.G] = struct{}{}
			uniq = append(uniq, q.G)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	// Exclusive scan of unique counts gives each block its base offset
	counts := make([]int64, c.Size())
	counts[c.Rank()] = int64(len(uniq))
	c.CounterSum(counts)
	var base int64
	for r := 0; r < c.Rank(); r++ {
		base += counts[r]
	}
	for r := 0; r < c.Size(); r++ {
		ng += counts[r]
	}
	newOf := make(map[int64]int64, len(uniq))
	for i, g := range uniq {
		newOf[g] = base + int64(i) + 1
	}

	type reply struct {
		Idx int64
		New int64
	}
	var (
		rdest []int
		rep   []reply
	)
	for i, q := range recv {
		rdest = append(rdest, src[i])
		rep = append(rep, reply{Idx: q.Idx, New: newOf[q.G]})
	}
	back, _ := utils.AllToAllv(c, rdest, rep)
	for _, r := range back {
		out[r.Idx] = r.New
	}
	return out, ng
}

// PrefixCount returns this rank's exclusive prefix over per-rank counts and
// the global total, for building contiguous numberings.
func PrefixCount(c *utils.Comm, n int64) (base, total int64) {
	if c == nil || c.Size() == 1 {
		return 0, n
	}
	counts := make([]int64, c.Size())
	counts[c.Rank()] = n
	c.CounterSum(counts)
	for r := 0; r < c.Size(); r++ {
		total += counts[r]
		if r < c.Rank() {
			base += counts[r]
		}
	}
	return
}
