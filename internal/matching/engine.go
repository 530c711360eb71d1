// Package matching decides which enrolled identity, if any, a probe
// embedding belongs to. The engine is read-only and safe for
// unsynchronized concurrent use.
package matching

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/templates"
)

// Match is a positive identification of a probe embedding.
type Match struct {
	Identity   store.Identity
	Distance   float64
	Confidence float64 // 1 - distance
}

// Engine matches probe embeddings against stored templates. A candidate
// matches when its distance is below the tolerance; among all matching
// candidates the one with the lowest distance wins, regardless of
// iteration order.
type Engine struct {
	templates *templates.Store

	mu        sync.RWMutex
	tolerance float64
}

// NewEngine creates a matching engine with the given distance tolerance.
func NewEngine(store *templates.Store, tolerance float64) *Engine {
	return &Engine{templates: store, tolerance: tolerance}
}

// Tolerance returns the current distance tolerance.
func (e *Engine) Tolerance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tolerance
}

// SetTolerance updates the distance tolerance; must be within (0, 1].
func (e *Engine) SetTolerance(tolerance float64) error {
	if tolerance <= 0 || tolerance > 1 {
		return fmt.Errorf("tolerance %v out of range (0, 1]", tolerance)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tolerance = tolerance
	return nil
}

// Match compares the probe against every candidate's template and
// returns the best match, or nil when nothing is within tolerance.
// Candidates without an enrolled template are skipped. A nil result is
// not an error; it means "face not recognized".
func (e *Engine) Match(probe []float32, candidates []store.Identity) *Match {
	tolerance := e.Tolerance()

	var best *Match
	for i := range candidates {
		embedding, ok := e.templates.Get(candidates[i].ID)
		if !ok {
			continue
		}
		distance := CosineDistance(probe, embedding)
		if distance >= tolerance {
			continue
		}
		if best == nil || distance < best.Distance {
			best = &Match{
				Identity:   candidates[i],
				Distance:   distance,
				Confidence: 1 - distance,
			}
		}
	}
	return best
}

// PopulationMatch identifies the nearest enrolled template across the
// whole population, without identity metadata.
type PopulationMatch struct {
	IdentityID uuid.UUID
	Distance   float64
	Confidence float64
}

// MatchAll searches the full enrolled population through the template
// store's HNSW index and returns the best identity within tolerance, or
// nil. Use Match with an explicit candidate set whenever the context
// implies a bounded population; the narrower scope lowers the
// false-accept probability.
func (e *Engine) MatchAll(probe []float32) *PopulationMatch {
	tolerance := e.Tolerance()

	neighbors := e.templates.Search(probe, 1)
	if len(neighbors) == 0 {
		return nil
	}
	distance := CosineDistance(probe, neighbors[0].Embedding)
	if distance >= tolerance {
		return nil
	}
	return &PopulationMatch{
		IdentityID: neighbors[0].IdentityID,
		Distance:   distance,
		Confidence: 1 - distance,
	}
}
