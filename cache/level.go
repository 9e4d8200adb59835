// Package cache implements the cache hierarchy controllers: private L1s,
// per-cluster L2s, a global L3, and NUMA-distributed L4 slices. The levels
// hold line copies; the authoritative coherence state stays in the
// directory.
package cache

import (
	"container/list"

	"github.com/sarchlab/octacore/mem"
)

type lineKey struct {
	asid mem.ASID
	addr uint64 // line-aligned
}

type line struct {
	key   lineKey
	data  []byte
	dirty bool
	elem  *list.Element
}

// A Victim is a line pushed out of a level to make room for a fill.
type Victim struct {
	ASID     mem.ASID
	LineAddr uint64
	Data     []byte
	Dirty    bool
}

// A Level is one cache level: a bounded store of line copies with LRU
// replacement.
type Level struct {
	name       string
	capacity   int // in lines
	accessCost uint64

	lines   map[lineKey]*line
	lruList *list.List // front is least recently used
}

// NewLevel creates a cache level holding at most capacity lines.
func NewLevel(name string, capacity int, accessCost uint64) *Level {
	return &Level{
		name:       name,
		capacity:   capacity,
		accessCost: accessCost,
		lines:      make(map[lineKey]*line),
		lruList:    list.New(),
	}
}

// Name returns the name of the level.
func (l *Level) Name() string {
	return l.name
}

// AccessCost returns the lookup cost of the level in cycles.
func (l *Level) AccessCost() uint64 {
	return l.accessCost
}

// Lookup returns the data cached for the line and refreshes its recency.
func (l *Level) Lookup(asid mem.ASID, lineAddr uint64) ([]byte, bool) {
	ln, found := l.lines[lineKey{asid, lineAddr}]
	if !found {
		return nil, false
	}

	l.lruList.MoveToBack(ln.elem)

	return ln.data, true
}

// Peek returns the data cached for the line without touching recency.
func (l *Level) Peek(asid mem.ASID, lineAddr uint64) ([]byte, bool) {
	ln, found := l.lines[lineKey{asid, lineAddr}]
	if !found {
		return nil, false
	}

	return ln.data, true
}

// IsDirty tells if the level holds a dirty copy of the line.
func (l *Level) IsDirty(asid mem.ASID, lineAddr uint64) bool {
	ln, found := l.lines[lineKey{asid, lineAddr}]
	return found && ln.dirty
}

// Fill installs a line, evicting the least recently used line if the level
// is full. The victim, if any, is returned so the caller can write it back.
func (l *Level) Fill(
	asid mem.ASID,
	lineAddr uint64,
	data []byte,
	dirty bool,
) *Victim {
	key := lineKey{asid, lineAddr}

	if ln, found := l.lines[key]; found {
		ln.data = data
		ln.dirty = dirty
		l.lruList.MoveToBack(ln.elem)
		return nil
	}

	var victim *Victim
	if len(l.lines) >= l.capacity {
		victim = l.evictLRU()
	}

	ln := &line{key: key, data: data, dirty: dirty}
	ln.elem = l.lruList.PushBack(ln)
	l.lines[key] = ln

	return victim
}

func (l *Level) evictLRU() *Victim {
	front := l.lruList.Front()
	if front == nil {
		return nil
	}

	ln := front.Value.(*line)
	l.lruList.Remove(front)
	delete(l.lines, ln.key)

	return &Victim{
		ASID:     ln.key.asid,
		LineAddr: ln.key.addr,
		Data:     ln.data,
		Dirty:    ln.dirty,
	}
}

// Invalidate drops the line from the level, returning its data and whether
// the dropped copy was dirty.
func (l *Level) Invalidate(
	asid mem.ASID,
	lineAddr uint64,
) ([]byte, bool, bool) {
	key := lineKey{asid, lineAddr}

	ln, found := l.lines[key]
	if !found {
		return nil, false, false
	}

	l.lruList.Remove(ln.elem)
	delete(l.lines, key)

	return ln.data, ln.dirty, true
}

// MarkDirty flags the line as holding data newer than the backing storage.
func (l *Level) MarkDirty(asid mem.ASID, lineAddr uint64) {
	if ln, found := l.lines[lineKey{asid, lineAddr}]; found {
		ln.dirty = true
	}
}

// Size returns the number of resident lines.
func (l *Level) Size() int {
	return len(l.lines)
}

// DrainAll removes every line from the level and returns them, dirty lines
// included. Used when a core is flushed.
func (l *Level) DrainAll() []Victim {
	victims := make([]Victim, 0, len(l.lines))

	for e := l.lruList.Front(); e != nil; e = e.Next() {
		ln := e.Value.(*line)
		victims = append(victims, Victim{
			ASID:     ln.key.asid,
			LineAddr: ln.key.addr,
			Data:     ln.data,
			Dirty:    ln.dirty,
		})
	}

	l.lines = make(map[lineKey]*line)
	l.lruList.Init()

	return victims
}
