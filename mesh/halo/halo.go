package halo

import (
	"fmt"
	"sort"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

// Type selects how much of the ghost tail an exchange covers.
type Type int

const (
	None     Type = iota // no ghost update
	Standard             // face-adjacent ghosts only
	Extended             // face- and vertex-adjacent ghosts
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Standard:
		return "standard"
	case Extended:
		return "extended"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Exchange selects the transport used to move packed ghost values.
// Both modes deliver bit-identical results.
type Exchange int

const (
	// P2P exchanges buffers with tagged point to point messages.
	P2P Exchange = iota
	// OneSided posts every send buffer at once and lets each domain
	// read its section, the message-passing shape of an RMA get.
	OneSided
)

// Transform is a periodic transformation. Values synchronized across a
// rotational periodicity are rotated into the ghost frame after the
// exchange; scalars are left alone.
type Transform struct {
	Rotation [3][3]float64
}

// Halo carries the communication structure pairing the ghost tail of a
// distributed mesh with the owned cells backing it on other ranks.
//
// Both sides are cut into per-domain sections, face-adjacent entries
// before vertex-adjacent ones, so a standard exchange can stop short.
// Section i of domain d = CDomainRank[i] covers SendList entries
// [SendIndex[2i], SendIndex[2i+2]) on the send side and ghost tail
// entries [Index[2i], Index[2i+2]) on the receive side, with the
// midpoint splitting face-adjacent from vertex-adjacent.
type Halo struct {
	CDomainRank []int // communicating ranks, ascending

	SendIndex []int  // 2*len(CDomainRank)+1 offsets into SendList
	SendList  []int  // owned cells feeding other domains
	NSendElts [2]int // sent cells, face-adjacent and total

	Index []int  // 2*len(CDomainRank)+1 offsets into the ghost tail
	NElts [2]int // ghost cells, face-adjacent and total

	// Periodic subsections of the ghost tail. For transform t and
	// domain i, PerioLst[4*(t*len(CDomainRank)+i)] holds the start of
	// the transformed face-adjacent run, then its length, then the
	// start and length of the vertex-adjacent run. Starts count from
	// the head of the tail.
	NTransforms int
	Transforms  []Transform
	PerioLst    []int

	// Exchange transport, P2P unless changed.
	Exchange Exchange

	m    *mesh.Mesh
	comm *utils.Comm
}

// ghostRequest asks the owning rank for one cell by global number.
type ghostRequest struct {
	G   int64
	Ext bool
}

// Build derives the halo of a local mesh from its ghost set. Collective:
// every rank of c takes part, pairing each ghost with the owned cell
// backing it on the owning rank. The ghost set of a serial mesh yields a
// halo with no communicating domains, over which every sync is a no-op.
func Build(m *mesh.Mesh, gs *mesh.GhostSet, c *utils.Comm) *Halo {
	h := &Halo{m: m, comm: c}

	// Ask every owning rank for its cells, in ghost order.
	nGhost := len(gs.GNum)
	reqs := make([]ghostRequest, 0, nGhost)
	dest := make([]int, 0, nGhost)
	for di, dom := range gs.Domains {
		for g := gs.Index[2*di]; g < gs.Index[2*di+1]; g++ {
			reqs = append(reqs, ghostRequest{G: gs.GNum[g]})
			dest = append(dest, dom)
		}
		for g := gs.Index[2*di+1]; g < gs.Index[2*di+2]; g++ {
			reqs = append(reqs, ghostRequest{G: gs.GNum[g], Ext: true})
			dest = append(dest, dom)
		}
	}
	got, src := utils.AllToAllv(c, dest, reqs)

	// Communicating domains: ranks we read from plus ranks reading
	// from us. Mesh adjacency makes the two sets match, but empty
	// sections keep the halo correct either way.
	domSet := make(map[int]bool)
	for _, d := range gs.Domains {
		domSet[d] = true
	}
	for _, r := range src {
		domSet[r] = true
	}
	h.CDomainRank = make([]int, 0, len(domSet))
	for d := range domSet {
		h.CDomainRank = append(h.CDomainRank, d)
	}
	sort.Ints(h.CDomainRank)

	// Receive side: the ghost tail already sits in per-domain section
	// order, so the offsets carry over, widened with empty sections
	// for domains the ghost set never saw.
	h.Index = make([]int, 1, 2*len(h.CDomainRank)+1)
	for _, d := range h.CDomainRank {
		di := sort.SearchInts(gs.Domains, d)
		if di < len(gs.Domains) && gs.Domains[di] == d {
			h.Index = append(h.Index, gs.Index[2*di+1], gs.Index[2*di+2])
		} else {
			last := h.Index[len(h.Index)-1]
			h.Index = append(h.Index, last, last)
		}
	}
	h.NElts[0] = gs.NStd
	h.NElts[1] = nGhost

	// Send side: arrivals come grouped by requesting rank, each
	// rank's face-adjacent requests before its vertex-adjacent ones,
	// in the requester's ghost order.
	own := make(map[int64]int, m.NCells)
	for i := 0; i < m.NCells; i++ {
		own[m.GlobalCellNumOf(i)] = i
	}
	h.SendIndex = make([]int, 1, 2*len(h.CDomainRank)+1)
	i := 0
	for _, d := range h.CDomainRank {
		for i < len(got) && src[i] == d && !got[i].Ext {
			h.SendList = append(h.SendList, h.ownedCell(own, got[i].G, d))
			i++
		}
		h.SendIndex = append(h.SendIndex, len(h.SendList))
		for i < len(got) && src[i] == d && got[i].Ext {
			h.SendList = append(h.SendList, h.ownedCell(own, got[i].G, d))
			i++
		}
		h.SendIndex = append(h.SendIndex, len(h.SendList))
		h.NSendElts[0] += h.SendIndex[len(h.SendIndex)-2] - h.SendIndex[len(h.SendIndex)-3]
	}
	if i != len(got) {
		panic(fmt.Sprintf("halo: %d ghost requests from ranks outside the domain list", len(got)-i))
	}
	h.NSendElts[1] = len(h.SendList)

	return h
}

func (h *Halo) ownedCell(own map[int64]int, g int64, from int) int {
	cell, ok := own[g]
	if !ok {
		panic(fmt.Sprintf("halo: rank %d asked rank %d for global cell %d, not owned here",
			from, h.comm.Rank(), g))
	}
	return cell
}

// DefinePeriodicity attaches periodic transformations to the halo.
// perioLst lays out the transformed subsections of the ghost tail, four
// entries per transform and domain as documented on Halo.PerioLst.
func (h *Halo) DefinePeriodicity(transforms []Transform, perioLst []int) error {
	want := 4 * len(transforms) * len(h.CDomainRank)
	if len(perioLst) != want {
		return fmt.Errorf("periodicity list has %d entries, need %d for %d transforms over %d domains",
			len(perioLst), want, len(transforms), len(h.CDomainRank))
	}
	h.NTransforms = len(transforms)
	h.Transforms = transforms
	h.PerioLst = perioLst
	return nil
}

// sendRange bounds the SendList run feeding domain section di.
func (h *Halo) sendRange(di int, t Type) (lo, hi int) {
	lo = h.SendIndex[2*di]
	switch t {
	case Standard:
		hi = h.SendIndex[2*di+1]
	case Extended:
		hi = h.SendIndex[2*di+2]
	default:
		hi = lo
	}
	return lo, hi
}

// recvRange bounds the ghost tail run fed by domain section di.
func (h *Halo) recvRange(di int, t Type) (lo, hi int) {
	lo = h.Index[2*di]
	switch t {
	case Standard:
		hi = h.Index[2*di+1]
	case Extended:
		hi = h.Index[2*di+2]
	default:
		hi = lo
	}
	return lo, hi
}

func (h *Halo) String() string {
	return fmt.Sprintf("halo: %d domains, %d+%d ghosts in, %d+%d cells out, %d transforms",
		len(h.CDomainRank), h.NElts[0], h.NElts[1]-h.NElts[0],
		h.NSendElts[0], h.NSendElts[1]-h.NSendElts[0], h.NTransforms)
}
