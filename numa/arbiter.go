package numa

import (
	"container/heap"

	"github.com/sarchlab/octacore/mem"
)

// An Arbiter orders contending requests for admission. Below the congestion
// threshold it behaves as a plain FIFO. At or above the threshold, higher
// QoS classes are serviced first, with ties broken by arrival order.
type Arbiter struct {
	congestionThreshold int
	nextSeq             uint64
	entries             arbiterHeap
}

type arbiterEntry struct {
	item interface{}
	qos  mem.QoSClass
	seq  uint64
}

// NewArbiter creates an Arbiter. A congestionThreshold of 0 makes QoS
// ordering always active.
func NewArbiter(congestionThreshold int) *Arbiter {
	return &Arbiter{congestionThreshold: congestionThreshold}
}

// Len returns the number of queued items.
func (a *Arbiter) Len() int {
	return len(a.entries)
}

// Enqueue adds an item with its QoS class.
func (a *Arbiter) Enqueue(item interface{}, qos mem.QoSClass) {
	entry := arbiterEntry{item: item, qos: qos, seq: a.nextSeq}
	a.nextSeq++
	heap.Push(&a.entries, entry)
}

// Dequeue removes and returns the next item to service, or nil if empty.
func (a *Arbiter) Dequeue() interface{} {
	if len(a.entries) == 0 {
		return nil
	}

	if len(a.entries) < a.congestionThreshold {
		return a.popOldest()
	}

	return heap.Pop(&a.entries).(arbiterEntry).item
}

// popOldest removes the entry with the smallest arrival sequence regardless
// of QoS.
func (a *Arbiter) popOldest() interface{} {
	oldest := 0
	for i := range a.entries {
		if a.entries[i].seq < a.entries[oldest].seq {
			oldest = i
		}
	}

	entry := a.entries[oldest]
	heap.Remove(&a.entries, oldest)

	return entry.item
}

type arbiterHeap []arbiterEntry

func (h arbiterHeap) Len() int { return len(h) }

func (h arbiterHeap) Less(i, j int) bool {
	if h[i].qos != h[j].qos {
		return h[i].qos > h[j].qos
	}
	return h[i].seq < h[j].seq
}

func (h arbiterHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *arbiterHeap) Push(x interface{}) {
	*h = append(*h, x.(arbiterEntry))
}

func (h *arbiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
