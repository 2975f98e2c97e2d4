package mesh

import (
	"testing"

	"github.com/notargets/gofv/utils"
)

func TestCompactGlobalNumsSerial(t *testing.T) {
	out, ng := CompactGlobalNums(nil, []int64{10, 3, 7})
	if ng != 3 {
		t.Errorf("Expected 3 distinct numbers, got %d", ng)
	}
	want := []int64{3, 1, 2}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("Entry %d: expected %d, got %d", i, w, out[i])
		}
	}
}

func TestCompactGlobalNumsKeepsFlags(t *testing.T) {
	// Non-positive entries ride through untouched
	out, ng := CompactGlobalNums(nil, []int64{5, -1, 9, 0})
	if ng != 2 {
		t.Errorf("Expected 2 distinct numbers, got %d", ng)
	}
	if out[0] != 1 || out[2] != 2 {
		t.Errorf("Expected 1 and 2, got %d and %d", out[0], out[2])
	}
	if out[1] != -1 || out[3] != 0 {
		t.Errorf("Flag entries changed: %d %d", out[1], out[3])
	}
}

func TestCompactGlobalNumsParallel(t *testing.T) {
	// Sparse numbers with cross-rank sharing: distinct set {2,4,8,16,32}
	input := [][]int64{
		{2, 8},
		{4, 8, 16},
		{2, 32},
	}
	want := [][]int64{
		{1, 3},
		{2, 3, 4},
		{1, 5},
	}
	w := utils.NewWorld(3)
	w.Run(func(c *utils.Comm) {
		out, ng := CompactGlobalNums(c, input[c.Rank()])
		if ng != 5 {
			t.Errorf("Rank %d: expected 5 distinct numbers, got %d", c.Rank(), ng)
		}
		for i, wv := range want[c.Rank()] {
			if out[i] != wv {
				t.Errorf("Rank %d entry %d: expected %d, got %d",
					c.Rank(), i, wv, out[i])
			}
		}
	})
}

func TestCompactGlobalNumsParallelEmptyRank(t *testing.T) {
	w := utils.NewWorld(2)
	w.Run(func(c *utils.Comm) {
		var in []int64
		if c.Rank() == 0 {
			in = []int64{7, 3}
		}
		out, ng := CompactGlobalNums(c, in)
		if ng != 2 {
			t.Errorf("Rank %d: expected 2 distinct numbers, got %d", c.Rank(), ng)
		}
		if c.Rank() == 0 && (out[0] != 2 || out[1] != 1) {
			t.Errorf("Expected [2 1], got %v", out)
		}
	})
}

func TestPrefixCount(t *testing.T) {
	wantBase := []int64{0, 2, 5}
	w := utils.NewWorld(3)
	w.Run(func(c *utils.Comm) {
		base, total := PrefixCount(c, int64(c.Rank())+2)
		if total != 9 {
			t.Errorf("Rank %d: expected total 9, got %d", c.Rank(), total)
		}
		if base != wantBase[c.Rank()] {
			t.Errorf("Rank %d: expected base %d, got %d",
				c.Rank(), wantBase[c.Rank()], base)
		}
	})
}
