package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// gmshElementType maps Gmsh 2.2 element types to ours. Only linear volume
// and surface elements take part in the finite-volume derivation.
var gmshElementType = map[int]ElementType{
	2: Tri,
	3: Quad,
	4: Tet,
	5: Hex,
	6: Prism,
	7: Pyramid,
}

var gmshVolumeType = map[ElementType]bool{
	Tet: true, Hex: true, Prism: true, Pyramid: true,
}

// ReadGmsh reads an ASCII Gmsh 2.2 file and derives the face-based mesh.
// Physical names of surface entities become boundary face groups, volume
// physical names become cell groups.
func ReadGmsh(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	const maxScanTokenSize = 1024 * 1024 * 10
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	var (
		es        = &ElementSet{}
		physNames = make(map[int]string)
		nodeIndex = make(map[int]int)
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "$MeshFormat":
			if !scanner.Scan() {
				return nil, fmt.Errorf("unexpected EOF after $MeshFormat")
			}
			parts := strings.Fields(scanner.Text())
			if len(parts) < 3 || !strings.HasPrefix(parts[0], "2") {
				return nil, fmt.Errorf("unsupported Gmsh format: %s", scanner.Text())
			}
			if fileType, _ := strconv.Atoi(parts[1]); fileType == 1 {
				return nil, fmt.Errorf("binary Gmsh files are not supported")
			}

		case "$PhysicalNames":
			if err := readGmshPhysicalNames(scanner, physNames); err != nil {
				return nil, err
			}

		case "$Nodes":
			if err := readGmshNodes(scanner, es, nodeIndex); err != nil {
				return nil, err
			}

		case "$Elements":
			if err := readGmshElements(scanner, es, physNames, nodeIndex); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(es.Elements) == 0 {
		return nil, fmt.Errorf("%s: no volume elements found", filename)
	}
	return FromElements(es)
}

func readGmshPhysicalNames(scanner *bufio.Scanner, names map[int]string) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in $PhysicalNames")
	}
	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid physical name count: %w", err)
	}
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF in $PhysicalNames")
		}
		// dimension physical-id "name"
		parts := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		if len(parts) < 3 {
			return fmt.Errorf("invalid physical name line: %s", scanner.Text())
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid physical id: %w", err)
		}
		names[id] = strings.Trim(parts[2], `"`)
	}
	return nil
}

func readGmshNodes(scanner *bufio.Scanner, es *ElementSet, index map[int]int) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in $Nodes")
	}
	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid node count: %w", err)
	}
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF in $Nodes")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid node id: %w", err)
		}
		index[id] = i
		for d := 0; d < 3; d++ {
			v, err := strconv.ParseFloat(parts[d+1], 64)
			if err != nil {
				return fmt.Errorf("invalid node coordinate: %w", err)
			}
			es.VtxCoord = append(es.VtxCoord, v)
		}
	}
	return nil
}

func readGmshElements(scanner *bufio.Scanner, es *ElementSet,
	physNames map[int]string, nodeIndex map[int]int) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in $Elements")
	}
	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("invalid element count: %w", err)
	}
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF in $Elements")
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return fmt.Errorf("invalid element line: %s", scanner.Text())
		}
		gmshType, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid element type: %w", err)
		}
		elemType, supported := gmshElementType[gmshType]
		if !supported {
			continue // points, lines and high-order elements
		}
		nTags, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("invalid tag count: %w", err)
		}
		var group string
		if nTags > 0 {
			physID, _ := strconv.Atoi(parts[3])
			group = physNames[physID]
			if group == "" && physID != 0 {
				group = fmt.Sprintf("patch_%d", physID)
			}
		}
		nodes := parts[3+nTags:]
		if len(nodes) != elemType.NVertices() {
			return fmt.Errorf("element %s: %s needs %d vertices, got %d",
				parts[0], elemType, elemType.NVertices(), len(nodes))
		}
		verts := make([]int, len(nodes))
		for j, n := range nodes {
			id, err := strconv.Atoi(n)
			if err != nil {
				return fmt.Errorf("invalid node reference: %w", err)
			}
			idx, known := nodeIndex[id]
			if !known {
				return fmt.Errorf("element %s references unknown node %d", parts[0], id)
			}
			verts[j] = idx
		}
		if gmshVolumeType[elemType] {
			es.Elements = append(es.Elements, verts)
			es.Types = append(es.Types, elemType)
			es.Groups = append(es.Groups, group)
		} else {
			es.Patches = append(es.Patches, BoundaryPatch{Vertices: verts, Group: group})
		}
	}
	return nil
}
