// Package intdist implements the interrupt distributor: priority and
// affinity based dispatch with coalescing, load-driven migration, and
// message-signaled delivery.
package intdist

import (
	"container/heap"
	"fmt"

	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/sim"
)

// HookPosDispatch marks the delivery of an interrupt to a core.
var HookPosDispatch = &sim.HookPos{Name: "Interrupt Dispatch"}

// A Source describes one interrupt source.
type Source struct {
	ID       int
	Priority int // 0 to 63, higher dispatches first
	Affinity int // current target core, updated on migration
	CanMove  bool

	// CoalesceWindow is the interval within which repeated posts from this
	// source merge into one pending entry.
	CoalesceWindow sim.VTimeInSec
}

// A Delivery is one interrupt handed to a core. It is also the hook detail
// attached to HookPosDispatch.
type Delivery struct {
	Source    int
	Priority  int
	Core      int
	Coalesced int // extra posts merged into this delivery
	Direct    bool
	Migrated  bool
	Time      sim.VTimeInSec
}

type pendingEntry struct {
	source    int
	priority  int
	postTime  sim.VTimeInSec
	seq       uint64
	coalesced int

	index int
}

// pendingHeap orders entries by priority descending, source id ascending.
type pendingHeap []*pendingEntry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].source < h[j].source
}

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap) Push(x interface{}) {
	e := x.(*pendingEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// A Distributor routes interrupt events to cores. Pending events wait in a
// priority queue; message-signaled events with an explicit target bypass it
// but still serialize one-in-flight per target core.
type Distributor struct {
	sim.HookableBase

	name     string
	engine   sim.Engine
	freq     sim.Freq
	reporter health.Reporter

	sources     map[int]*Source
	coreCluster []int

	pending  pendingHeap
	capacity int
	nextSeq  uint64

	// migrationThreshold is the load above which an affinity core is
	// bypassed in favor of the least-loaded core in its cluster.
	migrationThreshold int

	inFlight      map[int]bool
	directWaiting map[int][]*Delivery
	loads         []int

	deliverCost uint64
	deliverer   func(Delivery)
}

// Name returns the name of the distributor.
func (d *Distributor) Name() string {
	return d.name
}

// RegisterDeliverer sets the function that receives dispatched interrupts.
func (d *Distributor) RegisterDeliverer(f func(Delivery)) {
	d.deliverer = f
}

// Post records an interrupt event from a source. A post inside the source's
// coalescing window merges with the pending entry; a post into a full queue
// drops the oldest pending entry first.
func (d *Distributor) Post(sourceID int) error {
	src, found := d.sources[sourceID]
	if !found {
		return fmt.Errorf("unknown interrupt source %d", sourceID)
	}

	now := d.engine.CurrentTime()

	for _, e := range d.pending {
		if e.source != sourceID {
			continue
		}
		if now-e.postTime <= src.CoalesceWindow {
			e.coalesced++
			return nil
		}
	}

	if len(d.pending) >= d.capacity {
		d.dropOldest()
	}

	heap.Push(&d.pending, &pendingEntry{
		source:   sourceID,
		priority: src.Priority,
		postTime: now,
		seq:      d.nextSeq,
	})
	d.nextSeq++

	return nil
}

// dropOldest removes the pending entry that has waited longest and reports
// the storm. Soft degradation, not fatal.
func (d *Distributor) dropOldest() {
	oldest := 0
	for i, e := range d.pending {
		if e.seq < d.pending[oldest].seq {
			oldest = i
		}
	}

	victim := d.pending[oldest]
	heap.Remove(&d.pending, oldest)

	d.reporter.Report(health.Errorf(health.InterruptStorm, d.name,
		"pending queue full, dropped source %d posted at %.9fs",
		victim.source, float64(victim.postTime)))
}

// Dispatch pops the highest-priority pending entry and delivers it to its
// routed core. Entries for the same priority dispatch in ascending source id
// order. Dispatch returns false when nothing is pending or the routed core
// still has an unacknowledged interrupt.
func (d *Distributor) Dispatch() (Delivery, bool) {
	if len(d.pending) == 0 {
		return Delivery{}, false
	}

	e := d.pending[0]
	src := d.sources[e.source]

	core, migrated := d.route(src)
	if d.inFlight[core] {
		return Delivery{}, false
	}

	heap.Pop(&d.pending)

	if migrated {
		src.Affinity = core
	}

	dl := Delivery{
		Source:    e.source,
		Priority:  e.priority,
		Core:      core,
		Coalesced: e.coalesced,
		Migrated:  migrated,
		Time:      d.engine.CurrentTime(),
	}
	d.deliver(dl)

	return dl, true
}

// route picks the target core for a source: the affinity core, unless its
// load exceeds the migration threshold and the source may move, in which
// case the least-loaded core of the affinity core's cluster wins.
func (d *Distributor) route(src *Source) (core int, migrated bool) {
	affinity := src.Affinity

	if !src.CanMove || d.loads[affinity] <= d.migrationThreshold {
		return affinity, false
	}

	cluster := d.coreCluster[affinity]
	best := affinity
	for c, cl := range d.coreCluster {
		if cl != cluster {
			continue
		}
		if d.loads[c] < d.loads[best] {
			best = c
		}
	}

	return best, best != affinity
}

// PostDirect delivers a message-signaled interrupt straight to an explicit
// target core, bypassing priority arbitration. A busy target queues the
// delivery until acknowledgment.
func (d *Distributor) PostDirect(sourceID, target int) error {
	src, found := d.sources[sourceID]
	if !found {
		return fmt.Errorf("unknown interrupt source %d", sourceID)
	}

	dl := Delivery{
		Source:   sourceID,
		Priority: src.Priority,
		Core:     target,
		Direct:   true,
		Time:     d.engine.CurrentTime(),
	}

	if d.inFlight[target] {
		d.directWaiting[target] = append(d.directWaiting[target], &dl)
		return nil
	}

	d.deliver(dl)
	return nil
}

// Ack acknowledges the in-flight interrupt of a core, admitting the next
// delivery to that core. Queued direct deliveries go first.
func (d *Distributor) Ack(core int) {
	delete(d.inFlight, core)

	waiting := d.directWaiting[core]
	if len(waiting) == 0 {
		return
	}

	dl := waiting[0]
	d.directWaiting[core] = waiting[1:]

	dl.Time = d.engine.CurrentTime()
	d.deliver(*dl)
}

// deliver marks the target busy, accounts its load, and hands the delivery
// to the registered deliverer through a scheduled event.
func (d *Distributor) deliver(dl Delivery) {
	d.inFlight[dl.Core] = true
	d.loads[dl.Core]++

	ctx := sim.HookCtx{
		Domain: d,
		Pos:    HookPosDispatch,
		Item:   dl,
	}
	d.InvokeHook(ctx)

	if d.deliverer == nil {
		return
	}

	d.engine.Schedule(&deliverEvent{
		EventBase: sim.NewEventBase(
			d.freq.NCyclesLater(int(d.deliverCost), d.engine.CurrentTime()),
			d,
		),
		delivery: dl,
	})
}

type deliverEvent struct {
	*sim.EventBase

	delivery Delivery
}

// Handle hands a scheduled delivery to the deliverer.
func (d *Distributor) Handle(e sim.Event) error {
	d.deliverer(e.(*deliverEvent).delivery)
	return nil
}

// Load returns the accumulated interrupt load of a core.
func (d *Distributor) Load(core int) int {
	return d.loads[core]
}

// NumPending returns the number of queued priority-arbitrated entries.
func (d *Distributor) NumPending() int {
	return len(d.pending)
}

// AffinityOf returns the current affinity core of a source.
func (d *Distributor) AffinityOf(sourceID int) int {
	return d.sources[sourceID].Affinity
}
