package milp

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/mem"
)

// node is one open subproblem: the branching fixings accumulated from the
// root plus the parent relaxation bound.
type node struct {
	Fixings map[int]int8
	Bound   float64
	Depth   int
}

func (n node) child(idx int, val int8) node {
	fix := make(map[int]int8, len(n.Fixings)+1)
	for k, v := range n.Fixings {
		fix[k] = v
	}
	fix[idx] = val
	return node{Fixings: fix, Bound: n.Bound, Depth: n.Depth + 1}
}

type nodeHeap []node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].Bound < h[j].Bound }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(node)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type spillBatch struct {
	path     string
	minBound float64
	count    int
}

// nodeStore keeps open nodes ordered best-bound-first. When resident memory
// crosses the watermark the worst half of the frontier is spilled to disk as
// a gob batch and reloaded once the in-memory heap drains.
type nodeStore struct {
	heap    nodeHeap
	dir     string
	spills  []spillBatch
	seq     int
	pushes  int
	highPct float64
	usedPct func() (float64, error)
}

func newNodeStore(dir string, memoryFraction float64) *nodeStore {
	if memoryFraction <= 0 || memoryFraction >= 1 {
		memoryFraction = 0.85
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &nodeStore{
		dir:     dir,
		highPct: memoryFraction * 100,
		usedPct: hostMemoryUsedPct,
	}
}

func hostMemoryUsedPct() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (s *nodeStore) push(n node) error {
	heap.Push(&s.heap, n)
	s.pushes++
	if s.pushes%64 != 0 || len(s.heap) < 128 {
		return nil
	}
	used, err := s.usedPct()
	if err != nil || used < s.highPct {
		return nil
	}
	return s.spillWorstHalf()
}

func (s *nodeStore) spillWorstHalf() error {
	keep := len(s.heap) / 2
	worst := make([]node, 0, len(s.heap)-keep)
	for len(s.heap) > keep {
		// Pop from the raw slice tail region instead of the heap root so the
		// best bounds stay resident.
		last := len(s.heap) - 1
		worst = append(worst, s.heap[last])
		s.heap = s.heap[:last]
	}
	heap.Init(&s.heap)

	minBound := math.Inf(1)
	for _, n := range worst {
		if n.Bound < minBound {
			minBound = n.Bound
		}
	}
	s.seq++
	path := filepath.Join(s.dir, fmt.Sprintf("frontier-%06d.gob", s.seq))
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("spill frontier: %w", err)
	}
	if err := gob.NewEncoder(fh).Encode(worst); err != nil {
		fh.Close()
		return fmt.Errorf("spill frontier: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("spill frontier: %w", err)
	}
	s.spills = append(s.spills, spillBatch{path: path, minBound: minBound, count: len(worst)})
	return nil
}

func (s *nodeStore) pop() (node, bool, error) {
	if len(s.heap) == 0 && len(s.spills) > 0 {
		if err := s.reload(); err != nil {
			return node{}, false, err
		}
	}
	if len(s.heap) == 0 {
		return node{}, false, nil
	}
	return heap.Pop(&s.heap).(node), true, nil
}

func (s *nodeStore) reload() error {
	// Reload the batch with the most promising bound first.
	best := 0
	for i, b := range s.spills {
		if b.minBound < s.spills[best].minBound {
			best = i
		}
	}
	batch := s.spills[best]
	s.spills = append(s.spills[:best], s.spills[best+1:]...)

	fh, err := os.Open(batch.path)
	if err != nil {
		return fmt.Errorf("reload frontier: %w", err)
	}
	var nodes []node
	if err := gob.NewDecoder(fh).Decode(&nodes); err != nil {
		fh.Close()
		return fmt.Errorf("reload frontier: %w", err)
	}
	fh.Close()
	os.Remove(batch.path)
	for _, n := range nodes {
		heap.Push(&s.heap, n)
	}
	return nil
}

func (s *nodeStore) size() int {
	n := len(s.heap)
	for _, b := range s.spills {
		n += b.count
	}
	return n
}

// minBound is the best bound over every open node, resident or spilled.
func (s *nodeStore) minBound() float64 {
	min := math.Inf(1)
	if len(s.heap) > 0 {
		min = s.heap[0].Bound
	}
	for _, b := range s.spills {
		if b.minBound < min {
			min = b.minBound
		}
	}
	return min
}

func (s *nodeStore) close() {
	for _, b := range s.spills {
		os.Remove(b.path)
	}
	s.spills = nil
	s.heap = nil
}
