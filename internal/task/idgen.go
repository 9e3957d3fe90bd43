package task

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces fresh, opaque task IDs. IDs are human-scannable
// (TASK-<n>) but callers must treat them as opaque.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator creates an ID generator starting from seed (the highest
// numeric suffix already in use), so IDs stay unique across process restarts
// when seeded from the Task Store's current contents.
func NewGenerator(seed uint64) *Generator {
	g := &Generator{}
	g.counter.Store(seed)
	return g
}

// Next returns the next opaque task ID.
func (g *Generator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("TASK-%04d", n)
}

// NextSubPlanner returns an opaque ID for a task created by a sub-planner,
// namespaced by the sub-planner's area so IDs from concurrent sub-planners
// never collide even without a shared counter.
func NextSubPlanner(area string) string {
	return fmt.Sprintf("TASK-%s-%s", area, uuid.NewString()[:8])
}
