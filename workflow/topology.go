// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import "container/heap"

// TopologicalOrder returns the blocks ordered so that every block comes
// after all blocks feeding it. Among blocks with no constraint between them
// the earlier declared block comes first, so the order is reproducible.
// Wires whose endpoints are not members are ignored. A block listed more
// than once appears once, at its first position.
func (w *Workflow) TopologicalOrder() ([]*Block, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	order, cycleErr := topologicalOrder(distinctBlocks(w.blocks), w.wires)
	if cycleErr != nil {
		return nil, cycleErr
	}
	return order, nil
}

// distinctBlocks drops nil and repeated blocks, keeping first occurrences.
func distinctBlocks(blocks []*Block) []*Block {
	seen := make(map[*Block]bool, len(blocks))
	out := make([]*Block, 0, len(blocks))
	for _, b := range blocks {
		if b == nil || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// graph is the block-level dependency graph over member blocks, indexed by
// declaration position.
type graph struct {
	blocks []*Block
	index  map[*Block]int
	succ   [][]int // successors in wire declaration order, deduplicated
	pred   [][]int
}

func buildGraph(blocks []*Block, wires []*Wire) *graph {
	g := &graph{
		blocks: blocks,
		index:  make(map[*Block]int, len(blocks)),
		succ:   make([][]int, len(blocks)),
		pred:   make([][]int, len(blocks)),
	}
	for i, b := range blocks {
		if _, dup := g.index[b]; !dup {
			g.index[b] = i
		}
	}
	seen := make(map[[2]int]bool)
	for _, wire := range wires {
		if wire == nil {
			continue
		}
		from, okFrom := g.index[wire.source]
		to, okTo := g.index[wire.target]
		if !okFrom || !okTo {
			continue
		}
		edge := [2]int{from, to}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		g.succ[from] = append(g.succ[from], to)
		g.pred[to] = append(g.pred[to], from)
	}
	return g
}

// indexHeap is a min-heap of declaration indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func topologicalOrder(blocks []*Block, wires []*Wire) ([]*Block, *CyclicGraphError) {
	g := buildGraph(blocks, wires)
	indices, cycleErr := g.order()
	if cycleErr != nil {
		return nil, cycleErr
	}
	order := make([]*Block, 0, len(indices))
	for _, i := range indices {
		order = append(order, g.blocks[i])
	}
	return order, nil
}

// order runs Kahn's algorithm picking the lowest ready index each step.
func (g *graph) order() ([]int, *CyclicGraphError) {
	n := len(g.blocks)
	inDegree := make([]int, n)
	for i := range g.pred {
		inDegree[i] = len(g.pred[i])
	}

	ready := &indexHeap{}
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		current := heap.Pop(ready).(int)
		order = append(order, current)
		for _, next := range g.succ[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(order) == n {
		return order, nil
	}
	remaining := make(map[int]bool)
	for i := 0; i < n; i++ {
		if inDegree[i] > 0 {
			remaining[i] = true
		}
	}
	return nil, &CyclicGraphError{Cycle: g.findCycle(remaining)}
}

// findCycle locates one cycle among the given nodes using a three-colour
// depth-first search and returns its block ids, first id repeated last.
func (g *graph) findCycle(nodes map[int]bool) []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.blocks))
	parent := make([]int, len(g.blocks))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var visit func(int) bool
	visit = func(u int) bool {
		color[u] = grey
		for _, v := range g.succ[u] {
			if !nodes[v] {
				continue
			}
			if color[v] == grey {
				// back edge u -> v closes a cycle v -> ... -> u -> v
				path := []int{u}
				for x := u; x != v; {
					x = parent[x]
					path = append(path, x)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = append(path, v)
				return true
			}
			if color[v] == white {
				parent[v] = u
				if visit(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}

	for i := 0; i < len(g.blocks); i++ {
		if nodes[i] && color[i] == white && visit(i) {
			break
		}
	}

	ids := make([]string, 0, len(cycle))
	for _, i := range cycle {
		ids = append(ids, g.blocks[i].id)
	}
	return ids
}
