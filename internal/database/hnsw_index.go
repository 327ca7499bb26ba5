package database

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// HNSWMaxNeighbors is the M parameter of the HNSW graph.
const HNSWMaxNeighbors = 16

// HNSWIndex wraps an HNSW graph over accepted measurement vectors for
// fast similar-body search.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // For persistence
	idToSet    map[string]*StoredMeasurementSet
	mu         sync.RWMutex
	path       string // Path to save/load index
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToSet: make(map[string]*StoredMeasurementSet),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromSets builds the index from stored measurement sets.
func (h *HNSWIndex) BuildFromSets(sets []StoredMeasurementSet) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(sets) == 0 {
		h.graph = nil
		h.savedGraph = nil
		h.idToSet = make(map[string]*StoredMeasurementSet)
		return nil
	}

	g := newGraph()
	h.idToSet = make(map[string]*StoredMeasurementSet, len(sets))

	for i := range sets {
		set := &sets[i]
		if len(set.Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(set.ID.String(), set.Vector))
		h.idToSet[set.ID.String()] = set
	}

	h.graph = g
	h.savedGraph = nil
	return nil
}

// Add indexes a single stored set.
func (h *HNSWIndex) Add(set *StoredMeasurementSet) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(set.Vector) == 0 {
		return nil
	}
	if h.savedGraph != nil {
		h.savedGraph.Add(hnsw.MakeNode(set.ID.String(), set.Vector))
	} else {
		if h.graph == nil {
			h.graph = newGraph()
		}
		h.graph.Add(hnsw.MakeNode(set.ID.String(), set.Vector))
	}
	h.idToSet[set.ID.String()] = set
	return nil
}

// Search finds the k nearest stored sets to the query vector.
func (h *HNSWIndex) Search(query []float32, k int) ([]SimilarResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	results := make([]SimilarResult, 0, len(neighbors))
	for _, n := range neighbors {
		set, ok := h.idToSet[n.Key]
		if !ok {
			// Node survived a delete; skip it.
			continue
		}
		results = append(results, SimilarResult{
			Set:      set,
			Distance: CosineDistance(query, n.Value),
		})
	}
	return results, nil
}

// Get returns the stored set for an indexed ID, or nil.
func (h *HNSWIndex) Get(id uuid.UUID) *StoredMeasurementSet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToSet[id.String()]
}

// Delete removes a set from search results. The HNSW graph has no true
// deletion; the lookup filter hides the node.
func (h *HNSWIndex) Delete(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToSet, id.String())
}

// Count returns the number of indexed sets.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToSet)
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the index to disk.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil // No path set
	}
	if h.savedGraph != nil {
		if err := h.savedGraph.Save(); err != nil {
			return fmt.Errorf("saving HNSW graph: %w", err)
		}
		return nil
	}
	if h.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// LoadWithSets loads a saved graph from disk and pairs it with the
// current store contents. Fails if no file exists or the saved graph
// no longer matches the store, in which case the caller rebuilds.
func (h *HNSWIndex) LoadWithSets(path string, sets []StoredMeasurementSet) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no saved HNSW index at %s: %w", path, err)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	// The saved graph must hold exactly the store's vectors: equal node
	// count plus membership of every stored ID. A graph from a different
	// store state with a matching count would otherwise load silently.
	indexed := 0
	for i := range sets {
		if len(sets[i].Vector) == 0 {
			continue
		}
		indexed++
		if _, ok := saved.Lookup(sets[i].ID.String()); !ok {
			return fmt.Errorf("saved HNSW index is missing set %s", sets[i].ID)
		}
	}
	if saved.Len() != indexed {
		return fmt.Errorf("saved HNSW index has %d nodes, store has %d", saved.Len(), indexed)
	}

	h.savedGraph = saved
	h.graph = nil
	h.idToSet = make(map[string]*StoredMeasurementSet, len(sets))
	for i := range sets {
		h.idToSet[sets[i].ID.String()] = &sets[i]
	}
	return nil
}
