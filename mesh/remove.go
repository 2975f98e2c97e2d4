package mesh

import (
	"fmt"

	"github.com/notargets/gofv/utils"
)

// NegVolumeGroup names the boundary faces uncovered by removing degenerate
// cells.
const NegVolumeGroup = "[join_neg_volume]"

// RemoveCells removes the flagged owned cells. Interior faces that kept
// exactly one owned cell are promoted to boundary faces, reusing the shared
// vertices. When groupName is empty the promoted faces inherit the group
// class of a boundary face of the removed cell; otherwise groupName is added
// to every promoted face still carrying the default family. Any ghost layer
// is invalidated: the caller rebuilds the halo once the mesh settles.
func RemoveCells(m *Mesh, sync Synchronizer, c *utils.Comm, flagged []bool, groupName string) error {
	if len(flagged) < m.NCells {
		return fmt.Errorf("flag slice covers %d of %d cells", len(flagged), m.NCells)
	}

	// Old-to-new cell numbering, -1 for removed. Ghost entries are synced so
	// faces can see whether their remote neighbor goes away.
	var (
		o2n      = make([]int64, m.NCellsExt)
		nNew     int
		nRemoved int64
	)
	for cell := 0; cell < m.NCells; cell++ {
		if flagged[cell] {
			o2n[cell] = -1
			nRemoved++
		} else {
			o2n[cell] = int64(nNew)
			nNew++
		}
	}
	if c != nil {
		nRemoved = c.AllReduceInt64(nRemoved, utils.OpSum)
	}
	if nRemoved == 0 {
		return nil
	}
	fmt.Printf("Removing %d cells from mesh\n", nRemoved)
	if sync != nil {
		sync.SyncNum(o2n)
	}
	removed := func(cell int) bool { return o2n[cell] < 0 }

	// Group class carried over to the uncovered boundary: for each removed
	// cell take one of its existing boundary face families.
	bGcID := make([]int64, m.NCellsExt)
	for cell := range bGcID {
		bGcID[cell] = DefaultFamily
	}
	if groupName == "" {
		for f := 0; f < m.NBFaces; f++ {
			if cell := m.BFaceCells[f]; cell >= 0 && removed(cell) {
				bGcID[cell] = int64(m.BFaceFamily[f])
			}
		}
		if sync != nil {
			sync.SyncNum(bGcID)
		}
	}

	var (
		newIFaceVtx []int
		newIFaceIdx = []int{0}
		newICells   [][2]int
		newIFam     []int
		newIGnum    []int64

		promotedRing  [][]int
		promotedFam   []int
		promotedOwner []int
		promotedKey   []int64 // old interior gnum, seeds the new numbering
	)
	for f := 0; f < m.NIFaces; f++ {
		var (
			c0, c1 = m.IFaceCells[f][0], m.IFaceCells[f][1]
			r0, r1 = removed(c0), removed(c1)
			ring   = m.IFaceVertices(f)
		)
		switch {
		case r0 && r1:
			// dropped with both cells
		case !r0 && !r1:
			var pair [2]int
			for side, cell := range [2]int{c0, c1} {
				if cell < m.NCells {
					pair[side] = int(o2n[cell])
				} else {
					pair[side] = -1 // ghost, resolved at the next halo build
				}
			}
			newICells = append(newICells, pair)
			newIFaceVtx = append(newIFaceVtx, ring...)
			newIFaceIdx = append(newIFaceIdx, len(newIFaceVtx))
			newIFam = append(newIFam, m.IFaceFamily[f])
			if m.GlobalIFaceNum != nil {
				newIGnum = append(newIGnum, m.GlobalIFaceNum[f])
			}
		default:
			kept, gone := c0, c1
			if r0 {
				kept, gone = c1, c0
			}
			if kept >= m.NCells {
				// The kept cell lives on another rank; that rank promotes
				continue
			}
			oriented := append([]int{}, ring...)
			if kept == c1 {
				reverseRing(oriented)
			}
			fam := m.IFaceFamily[f]
			if fam == DefaultFamily {
				fam = int(bGcID[gone])
			}
			promotedRing = append(promotedRing, oriented)
			promotedFam = append(promotedFam, fam)
			promotedOwner = append(promotedOwner, int(o2n[kept]))
			promotedKey = append(promotedKey, m.globalIFaceNumOf(f))
		}
	}

	// Existing boundary faces: drop isolated ones, remap the rest
	var (
		keptBRing [][]int
		keptBFam  []int
		keptBCell []int
		keptBKey  []int64
		nIsolated int64
	)
	for f := 0; f < m.NBFaces; f++ {
		cell := m.BFaceCells[f]
		if cell >= 0 && removed(cell) {
			nIsolated++
			continue
		}
		mapped := -1
		if cell >= 0 {
			mapped = int(o2n[cell])
		}
		keptBRing = append(keptBRing, append([]int{}, m.BFaceVertices(f)...))
		keptBFam = append(keptBFam, m.BFaceFamily[f])
		keptBCell = append(keptBCell, mapped)
		keptBKey = append(keptBKey, m.globalBFaceNumOf(f))
	}
	if c != nil {
		nIsolated = c.AllReduceInt64(nIsolated, utils.OpSum)
	}
	if nIsolated > 0 {
		fmt.Printf("Discarding %d isolated boundary faces\n", nIsolated)
	}

	// Promoted faces still on the default family pick up the removal group
	if groupName != "" {
		for i, fam := range promotedFam {
			if fam == DefaultFamily {
				promotedFam[i] = m.Families.WithGroup(DefaultFamily, groupName)
			}
		}
	}

	// Assemble the new boundary: kept faces first, promoted appended
	m.BFaceCells = m.BFaceCells[:0]
	m.BFaceVtx = m.BFaceVtx[:0]
	m.BFaceVtxIdx = []int{0}
	m.BFaceFamily = m.BFaceFamily[:0]
	for i, ring := range keptBRing {
		m.BFaceCells = append(m.BFaceCells, keptBCell[i])
		m.BFaceVtx = append(m.BFaceVtx, ring...)
		m.BFaceVtxIdx = append(m.BFaceVtxIdx, len(m.BFaceVtx))
		m.BFaceFamily = append(m.BFaceFamily, keptBFam[i])
	}
	for i, ring := range promotedRing {
		m.BFaceCells = append(m.BFaceCells, promotedOwner[i])
		m.BFaceVtx = append(m.BFaceVtx, ring...)
		m.BFaceVtxIdx = append(m.BFaceVtxIdx, len(m.BFaceVtx))
		m.BFaceFamily = append(m.BFaceFamily, promotedFam[i])
	}
	m.NBFaces = len(m.BFaceCells)

	m.IFaceCells = newICells
	m.IFaceVtx = newIFaceVtx
	m.IFaceVtxIdx = newIFaceIdx
	m.IFaceFamily = newIFam
	m.NIFaces = len(newICells)

	// Compact the cell arrays in place
	for cell := 0; cell < m.NCells; cell++ {
		if j := o2n[cell]; j >= 0 {
			m.CellFamily[j] = m.CellFamily[cell]
			if m.GlobalCellNum != nil {
				m.GlobalCellNum[j] = m.GlobalCellNum[cell]
			}
		}
	}
	m.CellFamily = m.CellFamily[:nNew]
	m.NCells = nNew
	m.NCellsExt = nNew

	// Rebuild compact global numberings
	if m.GlobalCellNum != nil {
		m.GlobalCellNum = m.GlobalCellNum[:nNew]
		m.GlobalCellNum, m.NGCells = CompactGlobalNums(c, m.GlobalCellNum)
	}
	if m.GlobalIFaceNum != nil {
		m.GlobalIFaceNum, m.NGIFaces = CompactGlobalNums(c, newIGnum)
		// Boundary numbering: kept faces keep their key, promoted ones are
		// keyed past the old range by their interior number
		keys := make([]int64, 0, m.NBFaces)
		keys = append(keys, keptBKey...)
		for _, k := range promotedKey {
			keys = append(keys, m.NGBFaces+k)
		}
		m.GlobalBFaceNum, m.NGBFaces = CompactGlobalNums(c, keys)
	}

	needRebalance := int64(0)
	if nNew == 0 {
		needRebalance = 1
	}
	if c != nil {
		needRebalance = c.AllReduceInt64(needRebalance, utils.OpMax)
	}
	flags := ModifiedTopo
	if needRebalance != 0 {
		flags |= ModifiedBalance
	}
	m.CellVtxIdx, m.CellVtx = nil, nil
	m.MarkModified(flags)
	m.UpdateGlobalCounts(c)
	return nil
}

// RemoveCellsByGroup removes the cells whose family carries the group. The
// balance flag is always raised since selections rarely spread evenly.
func RemoveCellsByGroup(m *Mesh, sync Synchronizer, c *utils.Comm, name string) error {
	flagged := make([]bool, m.NCells)
	for _, cell := range m.SelectCellsByGroup(name) {
		flagged[cell] = true
	}
	if err := RemoveCells(m, sync, c, flagged, ""); err != nil {
		return err
	}
	m.Modified |= ModifiedBalance
	return nil
}

// RemoveNegativeVolumeCells removes cells whose computed volume is not
// strictly positive, tagging the uncovered boundary.
func RemoveNegativeVolumeCells(m *Mesh, sync Synchronizer, c *utils.Comm, q *Quantities) error {
	var (
		flagged = make([]bool, m.NCells)
		count   int64
	)
	for cell := 0; cell < m.NCells; cell++ {
		if q.CellVol[cell] <= 0 {
			flagged[cell] = true
			count++
		}
	}
	if c != nil {
		count = c.AllReduceInt64(count, utils.OpSum)
	}
	if count == 0 {
		return nil
	}
	fmt.Printf("Will remove %d cells with negative volume\n", count)
	return RemoveCells(m, sync, c, flagged, NegVolumeGroup)
}

func (m *Mesh) globalIFaceNumOf(f int) int64 {
	if m.GlobalIFaceNum == nil {
		return int64(f) + 1
	}
	return m.GlobalIFaceNum[f]
}

func (m *Mesh) globalBFaceNumOf(f int) int64 {
	if m.GlobalBFaceNum == nil {
		return int64(f) + 1
	}
	return m.GlobalBFaceNum[f]
}

func reverseRing(ring []int) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}
