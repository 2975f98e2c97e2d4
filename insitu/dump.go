package insitu

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/notargets/gofv/utils"
)

const dumpMagic = int64(0x76664744) // "DGfv" little endian

// DumpRuntime persists each flushed tree to one file per rank, little
// endian throughout: the magic header, then one record per node in
// depth-first order. A record is the length-prefixed slash path, the
// kind, and the payload; array payloads are length-prefixed and strided
// views are materialized on write. ReadDump restores the tree.
type DumpRuntime struct {
	Dir    string
	Prefix string

	rank    int
	seq     int
	scripts []string
}

func NewDumpRuntime(dir, prefix string, c *utils.Comm) *DumpRuntime {
	if c == nil {
		c = utils.Serial()
	}
	return &DumpRuntime{Dir: dir, Prefix: prefix, rank: c.Rank()}
}

// Initialize records the discovered scripts; the dump format carries
// them through the scripts/ subtree of each flush.
func (d *DumpRuntime) Initialize(scripts []string) error {
	d.scripts = scripts
	return nil
}

// Execute writes the tree to <prefix>_<cycle>_p<rank>.bin in Dir.
func (d *DumpRuntime) Execute(root *Node) error {
	cycle := d.seq
	if sn := root.Fetch("state/cycle"); sn != nil && sn.AsInt() >= 0 {
		cycle = int(sn.AsInt())
	}
	d.seq++
	path := filepath.Join(d.Dir, fmt.Sprintf("%s_%06d_p%04d.bin", d.Prefix, cycle, d.rank))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := binary.Write(bw, binary.LittleEndian, dumpMagic); err != nil {
		return err
	}
	if err := dumpNode(bw, "", root); err != nil {
		return err
	}
	return bw.Flush()
}

func (d *DumpRuntime) Finalize() error { return nil }

func dumpNode(w io.Writer, path string, n *Node) error {
	if err := writeString(w, path); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int64(n.Kind())); err != nil {
		return err
	}
	var err error
	switch n.Kind() {
	case KindTree:
	case KindString:
		err = writeString(w, n.AsString())
	case KindInt:
		err = binary.Write(w, binary.LittleEndian, n.AsInt())
	case KindFloat:
		err = binary.Write(w, binary.LittleEndian, n.AsFloat())
	case KindIntArray:
		v := n.AsInts()
		if err = binary.Write(w, binary.LittleEndian, int64(len(v))); err == nil {
			err = binary.Write(w, binary.LittleEndian, v)
		}
	case KindFloatArray:
		v := n.AsFloats().Gather(nil)
		if err = binary.Write(w, binary.LittleEndian, int64(len(v))); err == nil {
			err = binary.Write(w, binary.LittleEndian, v)
		}
	}
	if err != nil {
		return err
	}
	for _, ch := range n.Children() {
		sub := path + "/" + ch.Name()
		if path == "" {
			sub = ch.Name()
		}
		if err := dumpNode(w, sub, ch); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(s))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, []byte(s))
}

// ReadDump restores a dumped tree. Views come back contiguous; the
// zero-copy structure of the writer side is not preserved.
func ReadDump(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)
	var magic int64
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != dumpMagic {
		return nil, fmt.Errorf("%s: not a tree dump", path)
	}
	root := NewNode()
	for {
		nodePath, err := readString(br)
		if err == io.EOF {
			return root, nil
		}
		if err != nil {
			return nil, err
		}
		var kind int64
		if err := binary.Read(br, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		n := root.Child(nodePath)
		switch Kind(kind) {
		case KindTree:
		case KindString:
			s, err := readString(br)
			if err != nil {
				return nil, err
			}
			n.SetString(s)
		case KindInt:
			var v int64
			if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			n.SetInt(v)
		case KindFloat:
			var v float64
			if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			n.SetFloat(v)
		case KindIntArray:
			var ln int64
			if err := binary.Read(br, binary.LittleEndian, &ln); err != nil {
				return nil, err
			}
			v := make([]int64, ln)
			if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			n.SetInts(v)
		case KindFloatArray:
			var ln int64
			if err := binary.Read(br, binary.LittleEndian, &ln); err != nil {
				return nil, err
			}
			v := make([]float64, ln)
			if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			n.SetFloats(v)
		default:
			return nil, fmt.Errorf("%s: unknown node kind %d", path, kind)
		}
	}
}

func readString(r io.Reader) (string, error) {
	var ln int64
	if err := binary.Read(r, binary.LittleEndian, &ln); err != nil {
		return "", err
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
