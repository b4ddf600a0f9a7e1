// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest-neighbour search, adapted from sift's internal/hnsw
// package to back gist's ANNIndex contract over FileRecords instead of code
// chunks. Vectors are pre-normalized (L2) so similarity is computed as a
// plain dot product, which equals cosine similarity.
//
// Parameters:
//
//	M             = 16   (max neighbours per node per layer, except layer 0 which uses 2*M)
//	efConstruction = 200  (candidate pool size during insertion)
//	efSearch       = 50   (candidate pool size during query)
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
)

const (
	// DefaultM is the base number of bi-directional connections per node.
	DefaultM = 16
	// DefaultEfConstruction is the size of the dynamic candidate list during build.
	DefaultEfConstruction = 200
	// DefaultEfSearch is the size of the dynamic candidate list during search.
	DefaultEfSearch = 50
)

// graphResult is a single raw search result keyed by internal node id.
type graphResult struct {
	ID    uint32
	Score float32 // cosine similarity in [-1,1]
}

// node is a vertex in the HNSW graph.
type node struct {
	// neighbors[layer] is the list of neighbour IDs at that layer.
	neighbors [][]uint32
	vec       []float32
}

// graph is the low-level HNSW index: append-only, id-addressed by
// insertion order. Deletion and record bookkeeping live one layer up in
// Index (index.go), which is what implements ann.Index.
type graph struct {
	mu             sync.RWMutex
	nodes          []node
	entryPoint     uint32
	maxLayer       int
	m              int // max connections per layer (Mmax0 = 2*m at layer 0)
	efConstruction int
	efSearch       int
	ml             float64 // level generation factor = 1/ln(m)
	rng            *rand.Rand
}

// newGraph creates an empty HNSW graph with the given parameters.
func newGraph(m, efConstruction, efSearch int) *graph {
	if m <= 0 {
		m = DefaultM
	}
	if efConstruction <= 0 {
		efConstruction = DefaultEfConstruction
	}
	if efSearch <= 0 {
		efSearch = DefaultEfSearch
	}
	return &graph{
		m:              m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		ml:             1.0 / math.Log(float64(m)),
		rng:            rand.New(rand.NewSource(42)),
	}
}

func (g *graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *graph) randomLevel() int {
	return int(math.Floor(-math.Log(g.rng.Float64()) * g.ml))
}

// sim computes dot-product similarity between two pre-normalized vectors.
func sim(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// insert adds vec to the graph and returns its assigned id (= previous
// node count, since ids are sequential by insertion order).
func (g *graph) insert(vec []float32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := uint32(len(g.nodes))
	level := g.randomLevel()

	neighbors := make([][]uint32, level+1)
	for l := 0; l <= level; l++ {
		maxConn := g.m
		if l == 0 {
			maxConn = 2 * g.m
		}
		neighbors[l] = make([]uint32, 0, maxConn)
	}

	g.nodes = append(g.nodes, node{neighbors: neighbors, vec: vec})

	if id == 0 {
		g.entryPoint = 0
		g.maxLayer = level
		return id
	}

	ep := g.entryPoint
	epLevel := g.maxLayer

	for lc := epLevel; lc > level; lc-- {
		ep = g.greedySearchLayer(vec, ep, lc)
	}

	for lc := min(level, epLevel); lc >= 0; lc-- {
		candidates := g.searchLayer(vec, ep, g.efConstruction, lc)
		selected := g.selectNeighbours(candidates, g.m)

		g.nodes[id].neighbors[lc] = selected

		for _, nb := range selected {
			g.nodes[nb].neighbors[lc] = append(g.nodes[nb].neighbors[lc], id)
			maxConn := g.m
			if lc == 0 {
				maxConn = 2 * g.m
			}
			if len(g.nodes[nb].neighbors[lc]) > maxConn {
				g.nodes[nb].neighbors[lc] = g.pruneNeighbours(nb, g.nodes[nb].neighbors[lc], maxConn)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > epLevel {
		g.entryPoint = id
		g.maxLayer = level
	}
	return id
}

// search returns the raw (unfiltered-by-tombstone) k nearest neighbours to
// query, which must already be L2-normalized. Callers needing to skip
// removed ids should request extra headroom via ef.
func (g *graph) search(query []float32, k int) []graphResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		return nil
	}

	ep := g.entryPoint
	epLevel := g.maxLayer

	for lc := epLevel; lc > 0; lc-- {
		ep = g.greedySearchLayer(query, ep, lc)
	}

	ef := g.efSearch
	if k > ef {
		ef = k
	}
	candidates := g.searchLayer(query, ep, ef, 0)

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]graphResult, len(candidates))
	for i, c := range candidates {
		results[i] = graphResult{ID: c.id, Score: c.dist}
	}
	return results
}

type candidate struct {
	id   uint32
	dist float32 // higher = more similar
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (g *graph) greedySearchLayer(query []float32, ep uint32, lc int) uint32 {
	best := ep
	bestSim := sim(query, g.nodes[ep].vec)

	changed := true
	for changed {
		changed = false
		if lc < len(g.nodes[best].neighbors) {
			for _, nb := range g.nodes[best].neighbors[lc] {
				s := sim(query, g.nodes[nb].vec)
				if s > bestSim {
					bestSim = s
					best = nb
					changed = true
				}
			}
		}
	}
	return best
}

// searchLayer performs the full ef-based beam search at layer lc. Returns
// candidates sorted descending by similarity (index 0 = best).
func (g *graph) searchLayer(query []float32, ep uint32, ef, lc int) []candidate {
	visited := make(map[uint32]bool)
	visited[ep] = true

	epSim := sim(query, g.nodes[ep].vec)

	C := &maxHeap{{id: ep, dist: epSim}}
	heap.Init(C)

	W := []candidate{{id: ep, dist: epSim}}
	worstSim := epSim

	minSimInW := func() float32 {
		m := W[0].dist
		for _, c := range W[1:] {
			if c.dist < m {
				m = c.dist
			}
		}
		return m
	}

	for C.Len() > 0 {
		c := heap.Pop(C).(candidate)

		if len(W) >= ef && c.dist < worstSim {
			break
		}

		if lc < len(g.nodes[c.id].neighbors) {
			for _, nb := range g.nodes[c.id].neighbors[lc] {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				s := sim(query, g.nodes[nb].vec)

				if len(W) < ef || s > worstSim {
					heap.Push(C, candidate{id: nb, dist: s})
					W = append(W, candidate{id: nb, dist: s})
					if len(W) > ef {
						minIdx := 0
						for i := 1; i < len(W); i++ {
							if W[i].dist < W[minIdx].dist {
								minIdx = i
							}
						}
						W[minIdx] = W[len(W)-1]
						W = W[:len(W)-1]
					}
					worstSim = minSimInW()
				}
			}
		}
	}

	for i := 0; i < len(W)-1; i++ {
		for j := i + 1; j < len(W); j++ {
			if W[j].dist > W[i].dist {
				W[i], W[j] = W[j], W[i]
			}
		}
	}
	return W
}

func (g *graph) selectNeighbours(candidates []candidate, m int) []uint32 {
	if len(candidates) <= m {
		ids := make([]uint32, len(candidates))
		for i, c := range candidates {
			ids[i] = c.id
		}
		return ids
	}
	ids := make([]uint32, m)
	for i := 0; i < m; i++ {
		ids[i] = candidates[i].id
	}
	return ids
}

func (g *graph) pruneNeighbours(id uint32, nbs []uint32, maxConn int) []uint32 {
	type nb struct {
		id   uint32
		dist float32
	}
	scored := make([]nb, len(nbs))
	for i, n := range nbs {
		scored[i] = nb{id: n, dist: sim(g.nodes[id].vec, g.nodes[n].vec)}
	}
	for i := 0; i < len(scored)-1; i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].dist > scored[i].dist {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
	if len(scored) > maxConn {
		scored = scored[:maxConn]
	}
	out := make([]uint32, len(scored))
	for i, s := range scored {
		out[i] = s.id
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
