// Package health defines the error taxonomy of the coherence and
// synchronization core and the interface through which fatal conditions are
// surfaced to an external health monitor.
package health

import (
	"fmt"
	"sync"
)

// Kind classifies a reported condition.
type Kind int

// The condition kinds that components can report.
const (
	// CoherencyOverflow marks a sharer set that exceeded its configured
	// capacity. Resolved locally by forced eviction; not fatal.
	CoherencyOverflow Kind = iota

	// ProtocolViolation marks an operation that requested a coherence state
	// transition the state machine disallows. Fatal.
	ProtocolViolation

	// NumaRangeFault marks an address outside all configured node ranges, or
	// a node table that does not partition the address space. Fatal.
	NumaRangeFault

	// SyncPrimitiveMisuse marks a semaphore release overflowing the
	// configured maximum or a barrier arrival from a non-member core. Fatal.
	SyncPrimitiveMisuse

	// InterruptStorm marks a coalescing window saturated beyond capacity.
	// Degrades to drop-oldest-pending; not fatal.
	InterruptStorm
)

var kindNames = map[Kind]string{
	CoherencyOverflow:   "CoherencyOverflow",
	ProtocolViolation:   "ProtocolViolation",
	NumaRangeFault:      "NumaRangeFault",
	SyncPrimitiveMisuse: "SyncPrimitiveMisuse",
	InterruptStorm:      "InterruptStorm",
}

func (k Kind) String() string {
	return kindNames[k]
}

// IsFatal tells if conditions of this kind must stop the offending request
// rather than be absorbed locally.
func (k Kind) IsFatal() bool {
	switch k {
	case ProtocolViolation, NumaRangeFault, SyncPrimitiveMisuse:
		return true
	default:
		return false
	}
}

// An Error is a reportable condition tagged with its kind.
type Error struct {
	Kind   Kind
	Where  string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Where, e.Detail)
}

// Errorf creates an Error with a formatted detail message.
func Errorf(kind Kind, where, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Where:  where,
		Detail: fmt.Sprintf(format, args...),
	}
}

// A Reporter receives the conditions that components raise. Fatal conditions
// must never be silently swallowed; recoverable ones are reported for
// accounting only.
type Reporter interface {
	Report(err *Error)
}

// A Log is a Reporter that records every reported condition. It is the
// default reporter and doubles as a test double.
type Log struct {
	mu     sync.Mutex
	errors []*Error
}

// NewLog creates a Log.
func NewLog() *Log {
	return &Log{}
}

// Report records the condition.
func (l *Log) Report(err *Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errors = append(l.errors, err)
}

// Errors returns a copy of everything reported so far.
func (l *Log) Errors() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Error, len(l.errors))
	copy(out, l.errors)
	return out
}

// CountOf returns how many conditions of the given kind were reported.
func (l *Log) CountOf(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.errors {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
