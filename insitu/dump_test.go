package insitu

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/gofv/mesh"
	"github.com/notargets/gofv/utils"
)

func countDumps(t *testing.T, dir string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.bin"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return len(matches)
}

func TestDumpRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	rt := NewDumpRuntime(dir, "case", nil)
	w := NewWriter("case", rt, nil)
	w.ScriptDir = ""
	w.ExportVolume("volume", m)
	p := make([]float64, m.NCellsExt)
	for c := range p {
		p[c] = 1.5 * float64(c)
	}
	w.ExportElementField("volume", "pressure", p, 1)
	w.SetTime(3, 0.25)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	path := filepath.Join(dir, "case_000003_p0000.bin")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("dump file missing: %v", err)
	}
	got, err := ReadDump(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if cyc := got.Fetch("state/cycle"); cyc == nil || cyc.AsInt() != 3 {
		t.Fatalf("cycle not restored")
	}
	if tm := got.Fetch("state/time"); tm == nil || tm.AsFloat() != 0.25 {
		t.Fatalf("time not restored")
	}
	if sh := got.Fetch("data/volume/topologies/mesh/elements/shape"); sh == nil || sh.AsString() != "polyhedral" {
		t.Fatalf("topology not restored")
	}
	wantConn := w.Tree().Fetch("data/volume/topologies/mesh/elements/connectivity").AsInts()
	gotConn := got.Fetch("data/volume/topologies/mesh/elements/connectivity").AsInts()
	if len(gotConn) != len(wantConn) {
		t.Fatalf("connectivity length %d, want %d", len(gotConn), len(wantConn))
	}
	for i := range wantConn {
		if gotConn[i] != wantConn[i] {
			t.Fatalf("connectivity entry %d differs", i)
		}
	}
	vals := got.Fetch("data/volume/fields/pressure/values")
	if vals == nil {
		t.Fatalf("field not restored")
	}
	view := vals.AsFloats()
	if view.Count != m.NCells {
		t.Fatalf("field count %d, want %d", view.Count, m.NCells)
	}
	for c := 0; c < m.NCells; c++ {
		if view.At(c) != p[c] {
			t.Fatalf("field value %d differs: %v vs %v", c, view.At(c), p[c])
		}
	}
}

func TestFlushSkipsClean(t *testing.T) {
	dir := t.TempDir()
	m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
	w := NewWriter("case", NewDumpRuntime(dir, "case", nil), nil)
	w.ScriptDir = ""
	w.ExportVolume("volume", m)
	w.SetTime(0, 0)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := countDumps(t, dir); n != 1 {
		t.Fatalf("%d dumps after first flush", n)
	}
	// Nothing changed, nothing written.
	if err := w.Flush(); err != nil {
		t.Fatalf("clean flush: %v", err)
	}
	if n := countDumps(t, dir); n != 1 {
		t.Fatalf("clean flush wrote a file")
	}
	w.SetTime(1, 0.1)
	if err := w.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if n := countDumps(t, dir); n != 2 {
		t.Fatalf("%d dumps after second flush, want 2", n)
	}
}

func TestScriptDiscovery(t *testing.T) {
	scripts := t.TempDir()
	good := filepath.Join(scripts, "render.py")
	if err := os.WriteFile(good, []byte("from paraview import catalyst\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scripts, "helper.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scripts, "readme.txt"), []byte("paraview\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	dir := t.TempDir()
	rt := NewDumpRuntime(dir, "case", nil)
	w := NewWriter("case", rt, nil)
	w.ScriptDir = scripts
	w.ExportVolume("volume", mesh.NewCartesian(1, 1, 1, 1, 1, 1))
	w.SetTime(0, 0)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(rt.scripts) != 1 || rt.scripts[0] != good {
		t.Fatalf("runtime got scripts %v, want [%s]", rt.scripts, good)
	}
	fn := w.Tree().Fetch("scripts/script0/filename")
	if fn == nil || fn.AsString() != good {
		t.Fatalf("script not recorded in tree")
	}
	if w.Tree().Fetch("scripts/script1") != nil {
		t.Fatalf("non-script file slipped through")
	}
}

func TestFinalizeFlushesPending(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter("case", NewDumpRuntime(dir, "case", nil), nil)
	w.ScriptDir = ""
	w.ExportVolume("volume", mesh.NewCartesian(1, 1, 1, 1, 1, 1))
	w.SetTime(2, 0.2)
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if n := countDumps(t, dir); n != 1 {
		t.Fatalf("finalize did not flush, %d dumps", n)
	}
}

func TestDumpParallel(t *testing.T) {
	dir := t.TempDir()
	utils.NewWorld(2).Run(func(c *utils.Comm) {
		m := mesh.NewCartesian(2, 2, 2, 2, 2, 2)
		w := NewWriter("case", NewDumpRuntime(dir, "case", c), c)
		w.ScriptDir = ""
		w.ExportVolume("volume", m)
		w.SetTime(5, 0.5)
		if err := w.Flush(); err != nil {
			t.Errorf("rank %d flush: %v", c.Rank(), err)
			return
		}
	})
	for rank := 0; rank < 2; rank++ {
		path := filepath.Join(dir, fmt.Sprintf("case_000005_p%04d.bin", rank))
		got, err := ReadDump(path)
		if err != nil {
			t.Fatalf("rank %d dump: %v", rank, err)
		}
		if dom := got.Fetch("data/volume/state/domain"); dom == nil || dom.AsInt() != int64(rank) {
			t.Fatalf("rank %d domain wrong", rank)
		}
	}
}
