package mesh

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// Save writes the mesh to w as a gob stream
// (format description at https://golang.org/pkg/encoding/gob/).
func (m *Mesh) Save(w io.Writer) error {
	e := gob.NewEncoder(w)
	if err := e.Encode(m); err != nil {
		return fmt.Errorf("mesh.Mesh.Save: %v", err)
	}
	return nil
}

// Load reads a mesh from a previously Saved stream.
func Load(r io.Reader) (*Mesh, error) {
	dec := gob.NewDecoder(r)
	m := &Mesh{}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("mesh.Load: %v", err)
	}
	return m, nil
}

// SaveFile writes the mesh to a gob file.
func (m *Mesh) SaveFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Save(f)
}

// LoadFile reads a mesh from a gob file.
func LoadFile(filename string) (*Mesh, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// GobEncode lets the family table travel inside mesh snapshots.
func (ft FamilyTable) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ft.groups); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode restores a family table written by GobEncode.
func (ft *FamilyTable) GobDecode(b []byte) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(&ft.groups)
}
