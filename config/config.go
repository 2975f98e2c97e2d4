// Package config reads YAML case files for the command line tools. A
// case names its mesh source, the number of domains, the boundary type
// of each boundary group and the solver controls.
package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/notargets/gofv/bc"
	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/operators"
)

// CaseParameters obtained from the YAML case file
type CaseParameters struct {
	Title     string            `yaml:"Title"`
	MeshFile  string            `yaml:"MeshFile"` // Gmsh 2.2 file, empty for a cartesian block
	Nx        int               `yaml:"Nx"`
	Ny        int               `yaml:"Ny"`
	Nz        int               `yaml:"Nz"`
	Lx        float64           `yaml:"Lx"`
	Ly        float64           `yaml:"Ly"`
	Lz        float64           `yaml:"Lz"`
	NDomains  int               `yaml:"NDomains"`
	BCs       map[string]string `yaml:"BCs"` // Key is the boundary group, value the boundary type name
	MaxSweeps int               `yaml:"MaxSweeps"`
	Tolerance float64           `yaml:"Tolerance"`
	Verbosity int               `yaml:"Verbosity"`
	OutputDir string            `yaml:"OutputDir"` // tree dumps land here, empty disables them
	ScriptDir string            `yaml:"ScriptDir"` // co-processing scripts are discovered here
}

func (cp *CaseParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, cp)
}

func (cp *CaseParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", cp.Title)
	if len(cp.MeshFile) != 0 {
		fmt.Printf("[%s]\t\t= MeshFile\n", cp.MeshFile)
	} else {
		fmt.Printf("[%dx%dx%d]\t\t= Cartesian block\n", cp.Nx, cp.Ny, cp.Nz)
	}
	fmt.Printf("[%d]\t\t\t\t= NDomains\n", cp.Domains())
	fmt.Printf("[%d]\t\t\t\t= MaxSweeps\n", cp.MaxSweeps)
	fmt.Printf("%8.2e\t\t= Tolerance\n", cp.Tolerance)
	keys := make([]string, len(cp.BCs))
	i := 0
	for k := range cp.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %s\n", key, cp.BCs[key])
	}
}

// Domains returns the domain count, at least one.
func (cp *CaseParameters) Domains() int {
	if cp.NDomains < 1 {
		return 1
	}
	return cp.NDomains
}

// BuildMesh constructs the case mesh, read from MeshFile when one is
// named, otherwise built as an Nx x Ny x Nz cartesian block. A .gob
// MeshFile is a snapshot written by an earlier run, anything else is
// read as Gmsh 2.2. Extents left at zero default to the cell counts,
// giving unit spacing.
func (cp *CaseParameters) BuildMesh() (*mesh.Mesh, error) {
	if len(cp.MeshFile) != 0 {
		if filepath.Ext(cp.MeshFile) == ".gob" {
			return mesh.LoadFile(cp.MeshFile)
		}
		return mesh.ReadGmsh(cp.MeshFile)
	}
	if cp.Nx <= 0 || cp.Ny <= 0 || cp.Nz <= 0 {
		return nil, fmt.Errorf("case names no MeshFile and no cartesian block dimensions")
	}
	lx, ly, lz := cp.Lx, cp.Ly, cp.Lz
	if lx <= 0 {
		lx = float64(cp.Nx)
	}
	if ly <= 0 {
		ly = float64(cp.Ny)
	}
	if lz <= 0 {
		lz = float64(cp.Nz)
	}
	return mesh.NewCartesian(cp.Nx, cp.Ny, cp.Nz, lx, ly, lz), nil
}

// BoundaryTypes resolves the BCs map against the boundary groups of m,
// one type per boundary face. Faces in no listed group stay Undefined,
// and a group selecting no local faces is accepted. Groups are applied
// in sorted order, so on overlap the last name wins.
func (cp *CaseParameters) BoundaryTypes(m *mesh.Mesh) ([]bc.Type, error) {
	bTypes := make([]bc.Type, m.NBFaces)
	keys := make([]string, 0, len(cp.BCs))
	for k := range cp.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, group := range keys {
		t, err := bc.TypeByName(cp.BCs[group])
		if err != nil {
			return nil, fmt.Errorf("BCs[%s]: %v", group, err)
		}
		for _, f := range m.SelectBFacesByGroup(group) {
			bTypes[f] = t
		}
	}
	return bTypes, nil
}

// Apply writes the solver controls onto e. Entries left at zero in the
// case file keep the defaults of e.
func (cp *CaseParameters) Apply(e *operators.EquationParams) {
	if cp.MaxSweeps > 0 {
		e.NSwRsm = cp.MaxSweeps
	}
	if cp.Tolerance > 0 {
		e.EpsRsm = cp.Tolerance
		e.Epsilo = cp.Tolerance
	}
	e.Verbosity = cp.Verbosity
}
