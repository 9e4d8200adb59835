// Package coherence implements the cache line directory: the authoritative
// per-line coherence state, sharer bookkeeping, and the per-line serialized
// transaction service that all cores and peripherals go through.
package coherence

// LineState is the coherence state of a cache line.
type LineState int

// The MOESI line states.
const (
	StateInvalid LineState = iota
	StateShared
	StateExclusive
	StateOwned
	StateModified
)

var lineStateNames = map[LineState]string{
	StateInvalid:   "I",
	StateShared:    "S",
	StateExclusive: "E",
	StateOwned:     "O",
	StateModified:  "M",
}

func (s LineState) String() string {
	return lineStateNames[s]
}

// lineEvent is an input to the line state machine.
type lineEvent int

const (
	// eventReadNoHolder is a read miss on a line with no current holder.
	eventReadNoHolder lineEvent = iota

	// eventReadJoin is a read miss on a line that already has clean holders.
	eventReadJoin

	// eventReadDirtyKeepOwner is a read miss on a Modified line where the
	// owner writes back and keeps a readable copy.
	eventReadDirtyKeepOwner

	// eventReadDirtyDemote is a read miss on a Modified line where the owner
	// is demoted to a plain sharer.
	eventReadDirtyDemote

	// eventWrite acquires exclusive write rights.
	eventWrite

	// eventOwnerDrop removes the owner of an Owned line that still has
	// sharers; the remaining copies are clean after the write-back.
	eventOwnerDrop

	// eventDropLastHolder removes the last holder of the line.
	eventDropLastHolder
)

type transitionKey struct {
	state LineState
	event lineEvent
}

// transitionTable drives every directory state change. An absent key is a
// protocol violation.
var transitionTable = map[transitionKey]LineState{
	{StateInvalid, eventReadNoHolder}: StateExclusive,

	{StateShared, eventReadJoin}:    StateShared,
	{StateExclusive, eventReadJoin}: StateShared,
	{StateOwned, eventReadJoin}:     StateOwned,

	{StateModified, eventReadDirtyKeepOwner}: StateOwned,
	{StateModified, eventReadDirtyDemote}:    StateShared,

	{StateInvalid, eventWrite}:   StateModified,
	{StateShared, eventWrite}:    StateModified,
	{StateExclusive, eventWrite}: StateModified,
	{StateOwned, eventWrite}:     StateModified,
	{StateModified, eventWrite}:  StateModified,

	{StateOwned, eventOwnerDrop}: StateShared,

	{StateShared, eventDropLastHolder}:    StateInvalid,
	{StateExclusive, eventDropLastHolder}: StateInvalid,
	{StateOwned, eventDropLastHolder}:     StateInvalid,
	{StateModified, eventDropLastHolder}:  StateInvalid,
}

// nextState applies the transition table. The second return value is false
// if the state machine disallows the transition.
func nextState(s LineState, ev lineEvent) (LineState, bool) {
	next, ok := transitionTable[transitionKey{s, ev}]
	return next, ok
}
