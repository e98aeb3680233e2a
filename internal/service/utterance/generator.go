package utterance

import (
	"fmt"
	"sync"
)

// Generator issues utterance IDs of the form "<consultation>-utt-<n>".
// Numbering starts at 1 for every consultation.
type Generator struct {
	mu       sync.Mutex
	counters map[string]uint64
}

func NewGenerator() *Generator {
	return &Generator{counters: make(map[string]uint64)}
}

func (g *Generator) Next(consultationID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[consultationID]++
	return fmt.Sprintf("%s-utt-%d", consultationID, g.counters[consultationID])
}

// Forget drops the counter of a closed consultation.
func (g *Generator) Forget(consultationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.counters, consultationID)
}
