package templates

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// HNSW parameters tuned for face embeddings.
const (
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier requests extra candidates so enough survive
	// tombstone and distance filtering.
	hnswSearchMultiplier = 3
)

// Neighbor is one approximate nearest neighbor from the cache index.
type Neighbor struct {
	IdentityID uuid.UUID
	Embedding  []float32
}

// cache holds every enrolled template in memory together with an HNSW
// graph over the full population. All mutation goes through the owning
// Store; reads are safe for concurrent use.
type cache struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID][]float32
	graph     *hnsw.Graph[string]
	graphSize int // nodes added since the last rebuild, including replaced ones
}

func newCache() *cache {
	return &cache{byID: make(map[uuid.UUID][]float32)}
}

func (c *cache) get(id uuid.UUID) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emb, ok := c.byID[id]
	return emb, ok
}

func (c *cache) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// replaceAll swaps the whole cache content and rebuilds the index.
func (c *cache) replaceAll(templates map[uuid.UUID][]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = templates
	c.rebuildLocked()
}

// put inserts or replaces one template. Replacements and deletions leave
// stale nodes in the HNSW graph, so the graph is rebuilt once enough
// churn accumulates; search results are always filtered against byID.
func (c *cache) put(id uuid.UUID, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = embedding

	if c.graph == nil {
		c.rebuildLocked()
		return
	}
	c.graph.Add(hnsw.MakeNode(id.String(), embedding))
	c.graphSize++
	if c.graphSize > 2*len(c.byID) {
		c.rebuildLocked()
	}
}

func (c *cache) remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
	// The node stays in the graph as a tombstone until the next rebuild;
	// search filters it out via the byID lookup.
}

func (c *cache) rebuildLocked() {
	if len(c.byID) == 0 {
		c.graph = nil
		c.graphSize = 0
		return
	}
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	for id, emb := range c.byID {
		g.Add(hnsw.MakeNode(id.String(), emb))
	}
	c.graph = g
	c.graphSize = len(c.byID)
}

// search returns up to k approximate nearest neighbors of the probe over
// the full enrolled population.
func (c *cache) search(probe []float32, k int) []Neighbor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.graph == nil || k <= 0 {
		return nil
	}

	nodes := c.graph.Search(probe, k*hnswSearchMultiplier)
	out := make([]Neighbor, 0, k)
	for _, n := range nodes {
		id, err := uuid.Parse(n.Key)
		if err != nil {
			continue
		}
		// Skip revoked or superseded nodes.
		current, ok := c.byID[id]
		if !ok {
			continue
		}
		out = append(out, Neighbor{IdentityID: id, Embedding: current})
		if len(out) == k {
			break
		}
	}
	return out
}
