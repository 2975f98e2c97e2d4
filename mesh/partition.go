package mesh

import (
	"fmt"
	"log"
	"math"

	metis "github.com/notargets/go-metis"
)

// PartitionConfig holds configuration for mesh partitioning
type PartitionConfig struct {
	NumPartitions   int32
	ImbalanceFactor float32 // e.g., 1.05 for 5% imbalance
	UseFaceWeights  bool
	UseCellWeights  bool
	Objective       string // "cut" or "vol"
}

// DefaultPartitionConfig returns default partitioning configuration
func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:   nparts,
		ImbalanceFactor: 1.05,
		UseFaceWeights:  true,
		UseCellWeights:  true,
		Objective:       "vol", // minimize communication volume
	}
}

// Partitioner splits the cell graph of a mesh into load-balanced parts.
type Partitioner struct {
	mesh   *Mesh
	config *PartitionConfig

	// Cost models
	computeCostModel func(nFaces int) int32
	commCostModel    func(faceVertices int) int32
}

// NewPartitioner creates a partitioner for the given mesh
func NewPartitioner(mesh *Mesh, config *PartitionConfig) *Partitioner {
	mp := &Partitioner{
		mesh:   mesh,
		config: config,
	}

	// Default compute cost model: a cell costs what its faces cost. A hex
	// carries six quad faces, a tet four triangles, so mixed meshes come
	// out weighted sensibly without element typing.
	mp.computeCostModel = func(nFaces int) int32 {
		return int32(nFaces)
	}

	// Default communication cost model: exchanging a face costs its ring
	mp.commCostModel = func(faceVertices int) int32 {
		return int32(faceVertices)
	}

	return mp
}

// Partition computes the part assignment of every owned cell.
func (mp *Partitioner) Partition() ([]int, error) {
	m := mp.mesh
	log.Printf("Partitioning mesh with %d cells into %d parts",
		m.NCells, mp.config.NumPartitions)

	if mp.config.NumPartitions < 1 {
		return nil, fmt.Errorf("invalid partition count %d", mp.config.NumPartitions)
	}
	part := make([]int, m.NCells)
	if mp.config.NumPartitions == 1 {
		return part, nil
	}

	// Build METIS graph
	xadj, adjncy, vwgt, adjwgt := mp.buildMetisGraph()

	// Set METIS options
	opts := make([]int32, metis.NoOptions)
	err := metis.SetDefaultOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}

	// Set objective function
	if mp.config.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}

	// Set allowed imbalance
	ubvec := []float32{mp.config.ImbalanceFactor}

	// Handle case where weights might be nil
	var vwgtPtr, adjwgtPtr []int32
	if mp.config.UseCellWeights {
		vwgtPtr = vwgt
	}
	if mp.config.UseFaceWeights {
		adjwgtPtr = adjwgt
	}

	// Perform partitioning
	assign, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgtPtr, adjwgtPtr,
		mp.config.NumPartitions, nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	for i := range part {
		part[i] = int(assign[i])
	}

	// Analyze partition quality
	mp.analyzePartition(part, objval)

	return part, nil
}

// cellAdjacency builds per-cell neighbor lists from the interior face pairs,
// owned cells only. Each entry keeps the face carrying the adjacency.
func (mp *Partitioner) cellAdjacency() (adjCell, adjFace [][]int) {
	m := mp.mesh
	adjCell = make([][]int, m.NCells)
	adjFace = make([][]int, m.NCells)
	for f := 0; f < m.NIFaces; f++ {
		c0, c1 := m.IFaceCells[f][0], m.IFaceCells[f][1]
		if c0 < 0 || c1 < 0 || c0 >= m.NCells || c1 >= m.NCells {
			continue // severed or ghost-adjacent face
		}
		adjCell[c0] = append(adjCell[c0], c1)
		adjFace[c0] = append(adjFace[c0], f)
		adjCell[c1] = append(adjCell[c1], c0)
		adjFace[c1] = append(adjFace[c1], f)
	}
	return
}

// buildMetisGraph converts mesh connectivity to METIS format
func (mp *Partitioner) buildMetisGraph() (xadj, adjncy, vwgt, adjwgt []int32) {
	m := mp.mesh
	adjCell, adjFace := mp.cellAdjacency()

	// Count boundary faces into the per-cell face totals
	nFaces := make([]int, m.NCells)
	for c := 0; c < m.NCells; c++ {
		nFaces[c] = len(adjCell[c])
	}
	for f := 0; f < m.NBFaces; f++ {
		if c := m.BFaceCells[f]; c >= 0 && c < m.NCells {
			nFaces[c]++
		}
	}

	// Build vertex weights (computational cost per cell)
	if mp.config.UseCellWeights {
		vwgt = make([]int32, m.NCells)
		for c := 0; c < m.NCells; c++ {
			vwgt[c] = mp.computeCostModel(nFaces[c])
		}
	}

	// Build adjacency and edge weights
	xadj = make([]int32, m.NCells+1)
	adjncy = []int32{}
	adjwgt = []int32{}

	xadj[0] = 0
	for c := 0; c < m.NCells; c++ {
		for k, neighbor := range adjCell[c] {
			adjncy = append(adjncy, int32(neighbor))
			if mp.config.UseFaceWeights {
				f := adjFace[c][k]
				cost := mp.commCostModel(len(mp.mesh.IFaceVertices(f)))
				adjwgt = append(adjwgt, cost)
			}
		}
		xadj[c+1] = int32(len(adjncy))
	}

	return xadj, adjncy, vwgt, adjwgt
}

// analyzePartition computes and reports partition quality metrics
func (mp *Partitioner) analyzePartition(part []int, objval int32) {
	m := mp.mesh
	nparts := int(mp.config.NumPartitions)

	partStats := make([]PartitionStats, nparts)
	for i := range partStats {
		partStats[i].ID = i
		partStats[i].NumNeighbors = make(map[int]int)
	}

	adjCell, adjFace := mp.cellAdjacency()

	// Gather cell statistics
	for c := 0; c < m.NCells; c++ {
		stats := &partStats[part[c]]
		stats.NumCells++
		stats.ComputeLoad += int64(mp.computeCostModel(len(adjCell[c])))
	}

	// Analyze communication
	cutFaces := 0
	commVolume := int64(0)
	interfaceFaces := make(map[[2]int]int) // [part1,part2] -> face count

	for c := 0; c < m.NCells; c++ {
		for k, neighbor := range adjCell[c] {
			if neighbor <= c { // count each face once
				continue
			}
			if part[c] == part[neighbor] {
				continue
			}
			cutFaces++

			p1, p2 := part[c], part[neighbor]
			if p1 > p2 {
				p1, p2 = p2, p1
			}
			interfaceFaces[[2]int{p1, p2}]++

			f := adjFace[c][k]
			commVolume += int64(mp.commCostModel(len(m.IFaceVertices(f))))

			partStats[part[c]].NumNeighbors[part[neighbor]]++
			partStats[part[neighbor]].NumNeighbors[part[c]]++
		}
	}

	// Compute load imbalance
	avgLoad := float64(0)
	maxLoad := int64(0)
	minLoad := int64(math.MaxInt64)

	for _, stats := range partStats {
		avgLoad += float64(stats.ComputeLoad)
		if stats.ComputeLoad > maxLoad {
			maxLoad = stats.ComputeLoad
		}
		if stats.ComputeLoad < minLoad {
			minLoad = stats.ComputeLoad
		}
	}
	avgLoad /= float64(nparts)

	imbalance := float64(maxLoad)/avgLoad - 1.0

	// Report statistics
	log.Printf("Partition Analysis:")
	log.Printf("  Objective value: %d", objval)
	log.Printf("  Cut faces: %d", cutFaces)
	log.Printf("  Communication volume: %d", commVolume)
	log.Printf("  Load imbalance: %.2f%%", imbalance*100)
	log.Printf("  Load range: [%d, %d], avg: %.1f", minLoad, maxLoad, avgLoad)

	// Report per-partition details
	log.Printf("\nPer-partition statistics:")
	for _, stats := range partStats {
		log.Printf("  Partition %d:", stats.ID)
		log.Printf("    Cells: %d", stats.NumCells)
		log.Printf("    Compute load: %d", stats.ComputeLoad)
		log.Printf("    Neighbors: %d", len(stats.NumNeighbors))
	}

	// Report interface statistics
	log.Printf("\nInterface statistics:")
	for pair, faces := range interfaceFaces {
		log.Printf("  Partition %d <-> %d: %d faces",
			pair[0], pair[1], faces)
	}
}

// PartitionStats holds statistics for a single partition
type PartitionStats struct {
	ID           int
	NumCells     int
	ComputeLoad  int64
	NumNeighbors map[int]int // neighbor partition -> shared faces
}
