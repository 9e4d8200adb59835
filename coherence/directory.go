package coherence

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/sarchlab/octacore/health"
	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/sim"
)

// ErrCoreOffline is returned for transactions from a core that the power
// controller has taken offline.
var ErrCoreOffline = errors.New("core is offline")

// HookPosStateChange marks a line state transition in the directory.
var HookPosStateChange = &sim.HookPos{Name: "Directory State Change"}

// A StateChange is the hook detail attached to HookPosStateChange.
type StateChange struct {
	ASID     mem.ASID
	LineAddr uint64
	From, To LineState
	Core     int
}

// noOwner marks a line without an exclusive or owning core.
const noOwner = -1

// CacheOps is the view of the cache hierarchy that the directory needs to
// move data: fetching a dirty copy from its owner and dropping stale copies.
type CacheOps interface {
	// LineData returns the content a core currently caches for the line.
	LineData(core int, asid mem.ASID, lineAddr uint64) ([]byte, bool)

	// InvalidateLine removes the line from the core's private caches.
	InvalidateLine(core int, asid mem.ASID, lineAddr uint64)

	// InvalidateShared removes the line from the shared cache levels.
	InvalidateShared(asid mem.ASID, lineAddr uint64)
}

type lineKey struct {
	asid mem.ASID
	addr uint64 // line-aligned
}

type entry struct {
	state   LineState
	owner   int
	sharers []int // excludes owner, ordered by add time
	busy    bool
	pending []*Transaction
}

func (e *entry) numHolders() int {
	n := len(e.sharers)
	if e.owner != noOwner {
		n++
	}
	return n
}

func (e *entry) isHolder(core int) bool {
	if e.owner == core {
		return true
	}
	for _, s := range e.sharers {
		if s == core {
			return true
		}
	}
	return false
}

func (e *entry) dropSharer(core int) {
	for i, s := range e.sharers {
		if s == core {
			e.sharers = append(e.sharers[:i], e.sharers[i+1:]...)
			return
		}
	}
}

type dirShard struct {
	sync.Mutex
	entries map[lineKey]*entry
}

// A Directory keeps the authoritative coherence state of every resident
// line. Entries live in a sharded arena addressed by a hash of the
// line-aligned address, each shard independently locked, so transactions on
// unrelated lines never serialize against each other.
type Directory struct {
	sim.HookableBase

	name     string
	engine   sim.Engine
	freq     sim.Freq
	storage  *mem.Storage
	reporter health.Reporter
	cacheOps CacheOps

	shards       []*dirShard
	log2LineSize uint
	maxSharers   int
	ownedOnShare bool

	lookupCost     uint64
	writeBackCost  uint64
	invalidateCost uint64
	atomicCost     uint64

	offlineMu sync.RWMutex
	offline   map[int]bool

	secureMu     sync.Mutex
	secureCopies map[lineKey][]byte
}

// Name returns the name of the directory.
func (d *Directory) Name() string {
	return d.name
}

// RegisterCacheOps sets the cache hierarchy view used for data movement.
func (d *Directory) RegisterCacheOps(ops CacheOps) {
	d.cacheOps = ops
}

// LineSize returns the line size in bytes.
func (d *Directory) LineSize() uint64 {
	return 1 << d.log2LineSize
}

// LineAddr aligns an address down to its line base.
func (d *Directory) LineAddr(addr uint64) uint64 {
	return addr &^ (d.LineSize() - 1)
}

func (d *Directory) shardFor(key lineKey) *dirShard {
	h := fnv.New32a()
	var buf [10]byte
	binary.LittleEndian.PutUint16(buf[0:], uint16(key.asid))
	binary.LittleEndian.PutUint64(buf[2:], key.addr)
	_, _ = h.Write(buf[:])
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Submit hands a transaction to the directory. The callback is invoked,
// through a scheduled event, when the service completes. Transactions on a
// busy line wait in the line's FIFO pending queue.
func (d *Directory) Submit(t *Transaction) {
	t.lineAddr = d.LineAddr(t.Addr)

	if d.isOffline(t.Core) {
		d.complete(t, Result{Err: ErrCoreOffline})
		return
	}

	if t.Secure {
		d.serveSecure(t)
		return
	}

	key := lineKey{asid: t.ASID, addr: t.lineAddr}
	shard := d.shardFor(key)

	shard.Lock()
	defer shard.Unlock()

	e, found := shard.entries[key]
	if !found {
		e = &entry{state: StateInvalid, owner: noOwner}
		shard.entries[key] = e
	}

	if e.busy {
		e.pending = append(e.pending, t)
		return
	}

	e.busy = true
	d.serve(shard, key, e, t)
}

// serve mutates the line state and schedules the completion. The state
// transition together with any write-back or invalidation happens here in
// one step; other requesters of the same line only ever observe the state
// before or after it.
func (d *Directory) serve(
	shard *dirShard,
	key lineKey,
	e *entry,
	t *Transaction,
) {
	var result Result

	switch t.Kind {
	case AccessRead:
		result = d.serveRead(key, e, t)
	case AccessWrite:
		result = d.serveWrite(key, e, t)
	case AccessEvict:
		result = d.serveEvict(key, e, t)
	case AccessAtomic:
		result = d.serveAtomic(key, e, t)
	case AccessInvalidate:
		result = d.serveInvalidate(key, e, t)
	}

	d.scheduleCompletion(t, result, key)
}

func (d *Directory) serveRead(key lineKey, e *entry, t *Transaction) Result {
	result := Result{Cost: d.lookupCost}

	if e.isHolder(t.Core) {
		return result
	}

	switch e.state {
	case StateInvalid:
		d.transition(key, e, eventReadNoHolder, t.Core)
		e.owner = t.Core

	case StateExclusive:
		prevOwner := e.owner
		d.transition(key, e, eventReadJoin, t.Core)
		e.owner = noOwner
		e.sharers = append(e.sharers, prevOwner, t.Core)

	case StateShared, StateOwned:
		d.transition(key, e, eventReadJoin, t.Core)
		e.sharers = append(e.sharers, t.Core)

	case StateModified:
		result.Cost += d.writeBackFromOwner(key, e)

		if d.ownedOnShare {
			d.transition(key, e, eventReadDirtyKeepOwner, t.Core)
			e.sharers = append(e.sharers, t.Core)
		} else {
			prevOwner := e.owner
			d.transition(key, e, eventReadDirtyDemote, t.Core)
			e.owner = noOwner
			e.sharers = append(e.sharers, prevOwner, t.Core)
		}
	}

	result.Cost += d.enforceSharerCapacity(key, e, t.Core)

	return result
}

func (d *Directory) serveWrite(key lineKey, e *entry, t *Transaction) Result {
	result := Result{Cost: d.lookupCost}

	if e.state == StateModified && e.owner == t.Core {
		return result
	}

	result.Cost += d.revokeOthers(key, e, t.Core)

	d.transition(key, e, eventWrite, t.Core)
	e.owner = t.Core
	e.sharers = nil

	// Shared levels may still hold the pre-write copy.
	if d.cacheOps != nil {
		d.cacheOps.InvalidateShared(key.asid, key.addr)
	}

	return result
}

func (d *Directory) serveEvict(key lineKey, e *entry, t *Transaction) Result {
	result := Result{Cost: d.lookupCost}

	if !e.isHolder(t.Core) {
		return result
	}

	result.Cost += d.removeHolder(key, e, t.Core)

	return result
}

// serveInvalidate drops the line from every holder.
func (d *Directory) serveInvalidate(
	key lineKey,
	e *entry,
	t *Transaction,
) Result {
	result := Result{Cost: d.lookupCost}

	if e.state == StateInvalid {
		return result
	}

	result.Cost += d.revokeOthers(key, e, noOwner)
	d.transition(key, e, eventDropLastHolder, t.Core)
	e.owner = noOwner
	e.sharers = nil

	if d.cacheOps != nil {
		d.cacheOps.InvalidateShared(key.asid, key.addr)
	}

	return result
}

// serveAtomic acquires Modified for the duration of the read-modify-write,
// applies the operation on the backing storage, and releases the line.
func (d *Directory) serveAtomic(key lineKey, e *entry, t *Transaction) Result {
	result := Result{Cost: d.lookupCost + d.atomicCost}

	result.Cost += d.revokeOthers(key, e, t.Core)
	if e.isHolder(t.Core) {
		result.Cost += d.removeHolderCopy(key, e, t.Core)
	}

	d.transition(key, e, eventWrite, t.Core)
	e.owner = t.Core
	e.sharers = nil

	if d.cacheOps != nil {
		d.cacheOps.InvalidateShared(key.asid, key.addr)
	}

	old, swapped, err := d.applyAtomic(t)
	result.OldValue = old
	result.Swapped = swapped
	result.Err = err

	// Nothing caches the line after the operation, so the entry is freed.
	d.transition(key, e, eventDropLastHolder, t.Core)
	e.owner = noOwner

	return result
}

func (d *Directory) applyAtomic(t *Transaction) (uint64, bool, error) {
	data, err := d.storage.Read(t.Addr, 8)
	if err != nil {
		return 0, false, err
	}

	old := binary.LittleEndian.Uint64(data)
	newValue := old
	swapped := false

	switch t.Atomic.Kind {
	case AtomicCAS:
		if old == t.Atomic.Compare {
			newValue = t.Atomic.Operand
			swapped = true
		}
	case AtomicFetchAdd:
		newValue = old + t.Atomic.Operand
	}

	if newValue != old {
		binary.LittleEndian.PutUint64(data, newValue)
		if err := d.storage.Write(t.Addr, data); err != nil {
			return old, false, err
		}
	}

	return old, swapped, nil
}

// revokeOthers invalidates every holder other than the requester, writing
// dirty data back first.
func (d *Directory) revokeOthers(key lineKey, e *entry, requester int) uint64 {
	cost := uint64(0)

	if e.state == StateModified && e.owner != requester {
		cost += d.writeBackFromOwner(key, e)
	}

	if e.owner != noOwner && e.owner != requester {
		d.invalidateInCore(key, e.owner)
		e.owner = noOwner
		cost += d.invalidateCost
	}

	remaining := e.sharers[:0]
	for _, s := range e.sharers {
		if s == requester {
			remaining = append(remaining, s)
			continue
		}
		d.invalidateInCore(key, s)
		cost += d.invalidateCost
	}
	e.sharers = remaining

	return cost
}

// removeHolder drops one core from the line, handling owner write-back and
// the resulting state transition.
func (d *Directory) removeHolder(key lineKey, e *entry, core int) uint64 {
	cost := uint64(0)

	if e.owner == core {
		if e.state == StateModified || e.state == StateOwned {
			cost += d.writeBackFromOwner(key, e)
		}

		if e.state == StateOwned && len(e.sharers) > 0 {
			d.transition(key, e, eventOwnerDrop, core)
		} else {
			d.transition(key, e, eventDropLastHolder, core)
		}
		e.owner = noOwner

		return cost
	}

	e.dropSharer(core)
	if e.numHolders() == 0 {
		d.transition(key, e, eventDropLastHolder, core)
	}

	return cost
}

// removeHolderCopy drops the requester's own cached copy without a state
// transition; used before an atomic rewrites the line at the directory.
func (d *Directory) removeHolderCopy(key lineKey, e *entry, core int) uint64 {
	if e.state == StateModified && e.owner == core {
		d.writeBackFromOwner(key, e)
	}

	if e.owner == core {
		e.owner = noOwner
	} else {
		e.dropSharer(core)
	}

	d.invalidateInCore(key, core)

	return d.invalidateCost
}

// enforceSharerCapacity evicts the least-recently-added sharer when the
// holder set grows beyond the configured capacity.
func (d *Directory) enforceSharerCapacity(
	key lineKey,
	e *entry,
	requester int,
) uint64 {
	if d.maxSharers <= 0 || e.numHolders() <= d.maxSharers {
		return 0
	}

	victim := -1
	for _, s := range e.sharers {
		if s != requester {
			victim = s
			break
		}
	}
	if victim == -1 {
		return 0
	}

	d.reporter.Report(health.Errorf(
		health.CoherencyOverflow, d.name,
		"line 0x%x sharer capacity %d exceeded, evicting core %d",
		key.addr, d.maxSharers, victim,
	))

	e.dropSharer(victim)
	d.invalidateInCore(key, victim)

	return d.invalidateCost
}

// writeBackFromOwner copies the owner's dirty line into storage. After the
// write-back, storage holds the latest data for the line.
func (d *Directory) writeBackFromOwner(key lineKey, e *entry) uint64 {
	if d.cacheOps != nil {
		if data, ok := d.cacheOps.LineData(e.owner, key.asid, key.addr); ok {
			if err := d.storage.Write(key.addr, data); err != nil {
				d.reporter.Report(health.Errorf(
					health.ProtocolViolation, d.name,
					"write-back of line 0x%x failed: %v", key.addr, err,
				))
			}
		}
		d.cacheOps.InvalidateShared(key.asid, key.addr)
	}

	return d.writeBackCost
}

func (d *Directory) invalidateInCore(key lineKey, core int) {
	if d.cacheOps != nil {
		d.cacheOps.InvalidateLine(core, key.asid, key.addr)
	}
}

// transition applies the table-driven state machine and emits the state
// change to the hooks. An illegal transition is reported as a protocol
// violation and panics, as it can only be caused by a directory bug.
func (d *Directory) transition(
	key lineKey,
	e *entry,
	ev lineEvent,
	core int,
) {
	next, ok := nextState(e.state, ev)
	if !ok {
		err := health.Errorf(health.ProtocolViolation, d.name,
			"illegal transition from %s on line 0x%x", e.state, key.addr)
		d.reporter.Report(err)
		panic(err)
	}

	if d.NumHooks() > 0 {
		d.InvokeHook(sim.HookCtx{
			Domain: d,
			Pos:    HookPosStateChange,
			Item: StateChange{
				ASID:     key.asid,
				LineAddr: key.addr,
				From:     e.state,
				To:       next,
				Core:     core,
			},
		})
	}

	e.state = next
}

// serveSecure services an isolated request from a private, non-shared copy
// of the line, bypassing all sharer accounting.
func (d *Directory) serveSecure(t *Transaction) {
	key := lineKey{asid: t.ASID, addr: t.lineAddr}

	d.secureMu.Lock()
	copyData, found := d.secureCopies[key]
	if !found {
		data, err := d.storage.Read(key.addr, d.LineSize())
		if err != nil {
			d.secureMu.Unlock()
			d.complete(t, Result{Err: err})
			return
		}
		copyData = data
		d.secureCopies[key] = copyData
	}
	d.secureMu.Unlock()

	result := Result{Cost: d.lookupCost}
	d.scheduleCompletion(t, result, key)
}

// SecureRead returns data from the private copy of a line.
func (d *Directory) SecureRead(
	asid mem.ASID,
	addr, size uint64,
) ([]byte, error) {
	key := lineKey{asid: asid, addr: d.LineAddr(addr)}

	d.secureMu.Lock()
	defer d.secureMu.Unlock()

	copyData, found := d.secureCopies[key]
	if !found {
		return nil, errors.New("no private copy for line")
	}

	offset := addr - key.addr
	out := make([]byte, size)
	copy(out, copyData[offset:offset+size])
	return out, nil
}

// SecureWrite updates the private copy of a line.
func (d *Directory) SecureWrite(asid mem.ASID, addr uint64, data []byte) error {
	key := lineKey{asid: asid, addr: d.LineAddr(addr)}

	d.secureMu.Lock()
	defer d.secureMu.Unlock()

	copyData, found := d.secureCopies[key]
	if !found {
		return errors.New("no private copy for line")
	}

	offset := addr - key.addr
	copy(copyData[offset:offset+uint64(len(data))], data)
	return nil
}

// SetCoreOffline flushes everything the core holds and excludes it from
// further service. Pending transactions from the core are completed with
// ErrCoreOffline.
func (d *Directory) SetCoreOffline(core int) {
	d.offlineMu.Lock()
	d.offline[core] = true
	d.offlineMu.Unlock()

	for _, shard := range d.shards {
		shard.Lock()
		for key, e := range shard.entries {
			if e.isHolder(core) {
				d.removeHolder(key, e, core)
				d.invalidateInCore(key, core)
			}

			remaining := e.pending[:0]
			for _, t := range e.pending {
				if t.Core == core {
					d.complete(t, Result{Err: ErrCoreOffline})
					continue
				}
				remaining = append(remaining, t)
			}
			e.pending = remaining

			if e.state == StateInvalid &&
				e.numHolders() == 0 && len(e.pending) == 0 && !e.busy {
				delete(shard.entries, key)
			}
		}
		shard.Unlock()
	}
}

// SetCoreOnline readmits a core to directory service.
func (d *Directory) SetCoreOnline(core int) {
	d.offlineMu.Lock()
	delete(d.offline, core)
	d.offlineMu.Unlock()
}

func (d *Directory) isOffline(core int) bool {
	d.offlineMu.RLock()
	defer d.offlineMu.RUnlock()
	return d.offline[core]
}

// StateOf reports the directory's view of a line: its state, owner (noOwner
// if none), and sharers in add order. Read-only; meant for tests, the
// monitor, and the debug collector.
func (d *Directory) StateOf(
	asid mem.ASID,
	addr uint64,
) (LineState, int, []int) {
	key := lineKey{asid: asid, addr: d.LineAddr(addr)}
	shard := d.shardFor(key)

	shard.Lock()
	defer shard.Unlock()

	e, found := shard.entries[key]
	if !found {
		return StateInvalid, noOwner, nil
	}

	return e.state, e.owner, append([]int(nil), e.sharers...)
}

type serviceCompleteEvent struct {
	*sim.EventBase

	trans  *Transaction
	result Result
	key    lineKey
	final  bool
}

func (d *Directory) scheduleCompletion(
	t *Transaction,
	result Result,
	key lineKey,
) {
	evt := &serviceCompleteEvent{
		EventBase: sim.NewEventBase(
			d.freq.NCyclesLater(int(result.Cost), d.engine.CurrentTime()),
			d,
		),
		trans:  t,
		result: result,
		key:    key,
	}
	d.engine.Schedule(evt)
}

// complete finishes a transaction without touching line state, at the
// current time.
func (d *Directory) complete(t *Transaction, result Result) {
	evt := &serviceCompleteEvent{
		EventBase: sim.NewEventBase(d.engine.CurrentTime(), d),
		trans:     t,
		result:    result,
		final:     true,
	}
	d.engine.Schedule(evt)
}

// Handle delivers completions and starts service for the next pending
// transaction of the line.
func (d *Directory) Handle(e sim.Event) error {
	evt := e.(*serviceCompleteEvent)

	if evt.trans.Callback != nil {
		evt.trans.Callback(evt.result)
	}

	if evt.final || evt.trans.Secure {
		return nil
	}

	d.serveNext(evt.key)

	return nil
}

// serveNext picks the oldest pending transaction of the line, skipping
// cores that went offline while waiting.
func (d *Directory) serveNext(key lineKey) {
	shard := d.shardFor(key)

	shard.Lock()
	defer shard.Unlock()

	e, found := shard.entries[key]
	if !found {
		return
	}

	for len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]

		if d.isOffline(next.Core) {
			d.complete(next, Result{Err: ErrCoreOffline})
			continue
		}

		d.serve(shard, key, e, next)
		return
	}

	e.busy = false

	if e.state == StateInvalid && e.numHolders() == 0 {
		delete(shard.entries, key)
	}
}
