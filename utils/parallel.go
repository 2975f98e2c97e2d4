package utils

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// World runs a fixed set of domain goroutines that cooperate like the ranks
// of a distributed run. Each domain executes the same function body and talks
// to the others through its Comm. A World of size 1 is a serial run and every
// collective degenerates to a local operation.
type World struct {
	NP int

	bar     *barrier
	boards  []interface{} // one publication slot per rank
	fSlots  []float64
	iSlots  []int64
	mu      sync.Mutex
	pairs   map[pairKey]chan interface{}
	coll    [][]chan interface{} // coll[src][dst], one message deep
	nextTag int64
}

type pairKey struct {
	tag      int64
	src, dst int
}

func NewWorld(np int) *World {
	if np < 1 {
		panic(fmt.Sprintf("world size %d out of bounds", np))
	}
	w := &World{
		NP:     np,
		bar:    newBarrier(np),
		boards: make([]interface{}, np),
		fSlots: make([]float64, np),
		iSlots: make([]int64, np),
		pairs:  make(map[pairKey]chan interface{}),
		coll:   make([][]chan interface{}, np),
	}
	for s := 0; s < np; s++ {
		w.coll[s] = make([]chan interface{}, np)
		for d := 0; d < np; d++ {
			w.coll[s][d] = make(chan interface{}, 1)
		}
	}
	return w
}

// Run spawns one goroutine per rank and blocks until all of them return.
func (w *World) Run(f func(c *Comm)) {
	var wg sync.WaitGroup
	wg.Add(w.NP)
	for r := 0; r < w.NP; r++ {
		go func(rank int) {
			defer wg.Done()
			f(&Comm{w: w, rank: rank})
		}(r)
	}
	wg.Wait()
}

// pair returns the channel dedicated to (tag, src, dst), creating it on first
// use from either endpoint.
func (w *World) pair(tag int64, src, dst int) chan interface{} {
	key := pairKey{tag, src, dst}
	w.mu.Lock()
	ch, exists := w.pairs[key]
	if !exists {
		ch = make(chan interface{}, 1)
		w.pairs[key] = ch
	}
	w.mu.Unlock()
	return ch
}

func (w *World) releaseTag(tag int64) {
	w.mu.Lock()
	for key := range w.pairs {
		if key.tag == tag {
			delete(w.pairs, key)
		}
	}
	w.mu.Unlock()
}

// Comm is one rank's endpoint into the World.
type Comm struct {
	w    *World
	rank int
}

// Serial returns a standalone single-rank communicator.
func Serial() *Comm {
	c := &Comm{w: NewWorld(1), rank: 0}
	return c
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.w.NP }

func (c *Comm) Barrier() { c.w.bar.await() }

// NewTag reserves a fresh message tag. Collective: every rank receives the
// same value.
func (c *Comm) NewTag() int64 {
	var tag int64
	if c.rank == 0 {
		tag = atomic.AddInt64(&c.w.nextTag, 1)
		c.w.boards[0] = tag
	}
	c.Barrier()
	tag = c.w.boards[0].(int64)
	c.Barrier()
	return tag
}

// ReleaseTag drops the channels created under tag. Collective.
func (c *Comm) ReleaseTag(tag int64) {
	c.Barrier()
	if c.rank == 0 {
		c.w.releaseTag(tag)
	}
	c.Barrier()
}

// Send posts msg to dst under tag. The channel holds one in-flight message
// per (tag, src, dst), so matched protocols never block the sender.
func (c *Comm) Send(tag int64, dst int, msg interface{}) {
	if dst < 0 || dst >= c.w.NP {
		panic(fmt.Sprintf("destination rank %d out of bounds", dst))
	}
	c.w.pair(tag, c.rank, dst) <- msg
}

// Recv blocks until the message from src under tag arrives.
func (c *Comm) Recv(tag int64, src int) interface{} {
	if src < 0 || src >= c.w.NP {
		panic(fmt.Sprintf("source rank %d out of bounds", src))
	}
	return <-c.w.pair(tag, src, c.rank)
}

// ReduceOp selects the combining operator of a reduction.
type ReduceOp int

const (
	OpSum ReduceOp = iota
	OpMin
	OpMax
)

// AllReduceFloat64 combines one value per rank; every rank gets the result.
func (c *Comm) AllReduceFloat64(v float64, op ReduceOp) (r float64) {
	if c.w.NP == 1 {
		return v
	}
	c.w.fSlots[c.rank] = v
	c.Barrier()
	r = c.w.fSlots[0]
	for _, x := range c.w.fSlots[1:] {
		switch op {
		case OpSum:
			r += x
		case OpMin:
			if x < r {
				r = x
			}
		case OpMax:
			if x > r {
				r = x
			}
		}
	}
	c.Barrier()
	return
}

// AllReduceInt64 combines one value per rank; every rank gets the result.
func (c *Comm) AllReduceInt64(v int64, op ReduceOp) (r int64) {
	if c.w.NP == 1 {
		return v
	}
	c.w.iSlots[c.rank] = v
	c.Barrier()
	r = c.w.iSlots[0]
	for _, x := range c.w.iSlots[1:] {
		switch op {
		case OpSum:
			r += x
		case OpMin:
			if x < r {
				r = x
			}
		case OpMax:
			if x > r {
				r = x
			}
		}
	}
	c.Barrier()
	return
}

// CounterSum sums the counter slice elementwise across ranks, in place.
func (c *Comm) CounterSum(counters []int64) {
	if c.w.NP == 1 {
		return
	}
	c.w.boards[c.rank] = counters
	c.Barrier()
	sum := make([]int64, len(counters))
	for r := 0; r < c.w.NP; r++ {
		remote := c.w.boards[r].([]int64)
		if len(remote) != len(counters) {
			panic(fmt.Sprintf("counter length mismatch: %d vs %d on rank %d",
				len(remote), len(counters), r))
		}
		for i, x := range remote {
			sum[i] += x
		}
	}
	c.Barrier()
	copy(counters, sum)
}

// Publish places v on this rank's board slot and returns, after the exchange
// barrier, the slice of all published values indexed by rank. The caller must
// not retain the returned slice past the next collective.
func (c *Comm) Publish(v interface{}) []interface{} {
	c.w.boards[c.rank] = v
	c.Barrier()
	all := make([]interface{}, c.w.NP)
	copy(all, c.w.boards)
	c.Barrier()
	return all
}

// Broadcast returns root's value on every rank.
func (c *Comm) Broadcast(root int, v interface{}) interface{} {
	if c.w.NP == 1 {
		return v
	}
	if c.rank == root {
		c.w.boards[root] = v
	}
	c.Barrier()
	out := c.w.boards[root]
	c.Barrier()
	return out
}

// AllToAllv routes each element of vals to the rank named in dest and returns
// everything routed here, together with the source rank of each element.
// Receive order is by source rank, preserving each source's send order.
func AllToAllv[T any](c *Comm, dest []int, vals []T) (recv []T, src []int) {
	if len(dest) != len(vals) {
		panic(fmt.Sprintf("dest/vals length mismatch: %d vs %d", len(dest), len(vals)))
	}
	np := c.Size()
	buckets := make([][]T, np)
	for i, d := range dest {
		if d < 0 || d >= np {
			panic(fmt.Sprintf("destination rank %d out of bounds", d))
		}
		buckets[d] = append(buckets[d], vals[i])
	}
	if np == 1 {
		recv = buckets[0]
		src = make([]int, len(recv))
		return
	}
	c.Barrier()
	for d := 0; d < np; d++ {
		if d == c.rank {
			continue
		}
		c.w.coll[c.rank][d] <- buckets[d]
	}
	for s := 0; s < np; s++ {
		var part []T
		if s == c.rank {
			part = buckets[s]
		} else {
			part = (<-c.w.coll[s][c.rank]).([]T)
		}
		recv = append(recv, part...)
		for range part {
			src = append(src, s)
		}
	}
	c.Barrier()
	return
}

// barrier is cyclic: the same instance serializes any number of phases.
type barrier struct {
	np    int
	mu    sync.Mutex
	cond  *sync.Cond
	count int
	gen   int
}

func newBarrier(np int) *barrier {
	b := &barrier{np: np}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	if b.np == 1 {
		return
	}
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.np {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// BlockDist assigns a contiguous block of a 1-based global numbering to each
// rank: entity g lives on rank (g-1)/BlockSize.
type BlockDist struct {
	NG        int64
	NP        int
	BlockSize int64
}

func NewBlockDist(ng int64, np int) BlockDist {
	bs := ng / int64(np)
	if ng%int64(np) != 0 {
		bs++
	}
	if bs < 1 {
		bs = 1
	}
	return BlockDist{NG: ng, NP: np, BlockSize: bs}
}

func (bd BlockDist) RankOf(gnum int64) int {
	if gnum < 1 || gnum > bd.NG {
		panic(fmt.Sprintf("global number %d outside [1, %d]", gnum, bd.NG))
	}
	r := int((gnum - 1) / bd.BlockSize)
	if r >= bd.NP {
		r = bd.NP - 1
	}
	return r
}

// Range returns the half-open 1-based interval [lo, hi) owned by rank.
func (bd BlockDist) Range(rank int) (lo, hi int64) {
	lo = int64(rank)*bd.BlockSize + 1
	hi = lo + bd.BlockSize
	if hi > bd.NG+1 {
		hi = bd.NG + 1
	}
	if lo > hi {
		lo = hi
	}
	return
}
