package coherence

import (
	"github.com/sarchlab/octacore/mem"
)

// AccessKind tells what a transaction asks the directory for.
type AccessKind int

// The transaction kinds the directory serves.
const (
	// AccessRead asks for a readable copy of a line.
	AccessRead AccessKind = iota

	// AccessWrite asks for exclusive write rights on a line.
	AccessWrite

	// AccessEvict notifies the directory that a core drops a line.
	AccessEvict

	// AccessAtomic performs a read-modify-write serialized at the directory.
	AccessAtomic

	// AccessInvalidate drops the line from every holder, writing dirty data
	// back first.
	AccessInvalidate
)

// AtomicKind selects the read-modify-write operation.
type AtomicKind int

// The supported atomic operations.
const (
	AtomicCAS AtomicKind = iota
	AtomicFetchAdd
)

// An AtomicOp describes a read-modify-write on an 8-byte word.
type AtomicOp struct {
	Kind    AtomicKind
	Compare uint64 // CAS only
	Operand uint64 // swap value, or addend for fetch-and-add
}

// A Result is delivered to the transaction callback when the directory
// completes service.
type Result struct {
	// Cost is the number of cycles the directory spent on the transaction,
	// including write-backs and invalidations it had to perform.
	Cost uint64

	// OldValue is the word value before an atomic operation.
	OldValue uint64

	// Swapped tells if a compare-and-swap took effect.
	Swapped bool

	Err error
}

// A Transaction is one request for directory service. At most one
// transaction per line is in service at a time; others wait in the line's
// FIFO pending queue.
type Transaction struct {
	Kind     AccessKind
	Core     int
	ASID     mem.ASID
	Addr     uint64
	Secure   bool
	Atomic   *AtomicOp
	Callback func(Result)

	lineAddr uint64
}
