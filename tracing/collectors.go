package tracing

import (
	"sync"

	"github.com/sarchlab/octacore/coherence"
	"github.com/sarchlab/octacore/intdist"
	"github.com/sarchlab/octacore/sim"
)

// A StateChangeCollector subscribes to directory state-change hooks and
// keeps a record of every transition. It observes only; it has no way to
// mutate coherence state.
type StateChangeCollector struct {
	mu      sync.Mutex
	changes []coherence.StateChange
}

// NewStateChangeCollector creates a collector and attaches it to the
// directory.
func NewStateChangeCollector(dir *coherence.Directory) *StateChangeCollector {
	c := &StateChangeCollector{}
	dir.AcceptHook(c)
	return c
}

// Func records a state change.
func (c *StateChangeCollector) Func(ctx sim.HookCtx) {
	if ctx.Pos != coherence.HookPosStateChange {
		return
	}

	c.mu.Lock()
	c.changes = append(c.changes, ctx.Item.(coherence.StateChange))
	c.mu.Unlock()
}

// Changes returns a copy of the transitions observed so far.
func (c *StateChangeCollector) Changes() []coherence.StateChange {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]coherence.StateChange, len(c.changes))
	copy(out, c.changes)
	return out
}

// A DispatchCollector subscribes to interrupt dispatch hooks.
type DispatchCollector struct {
	mu         sync.Mutex
	deliveries []intdist.Delivery
}

// NewDispatchCollector creates a collector and attaches it to the
// distributor.
func NewDispatchCollector(dist *intdist.Distributor) *DispatchCollector {
	c := &DispatchCollector{}
	dist.AcceptHook(c)
	return c
}

// Func records a delivery.
func (c *DispatchCollector) Func(ctx sim.HookCtx) {
	if ctx.Pos != intdist.HookPosDispatch {
		return
	}

	c.mu.Lock()
	c.deliveries = append(c.deliveries, ctx.Item.(intdist.Delivery))
	c.mu.Unlock()
}

// Deliveries returns a copy of the dispatches observed so far.
func (c *DispatchCollector) Deliveries() []intdist.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]intdist.Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}
