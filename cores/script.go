// Package cores implements the request-issuing agents: cores that replay
// deterministic workload scripts through the cache hierarchy and the
// synchronization unit, and DMA engines that issue QoS-tagged requests
// through ports. The package also provides a sequential reference executor
// for checking replayed runs against a simple memory model.
package cores

import (
	"encoding/binary"

	"github.com/sarchlab/octacore/mem"
	"github.com/sarchlab/octacore/sim"
)

// OpKind selects the operation of one script step.
type OpKind int

// The operations a workload script can contain.
const (
	OpRead OpKind = iota
	OpWrite
	OpAtomicCAS
	OpAtomicAdd
	OpEvict
	OpSend
	OpReceive
	OpAcquire
	OpRelease
	OpArrive
)

// An Op is one step of a workload script.
type Op struct {
	Kind OpKind

	// Memory operations.
	Addr   uint64
	Size   uint64
	Data   []byte
	Secure bool

	// Atomic operations. Compare is the expected value for CAS; Word is
	// the swap value or the addend, and doubles as the mailbox message.
	Compare uint64
	Word    uint64

	// Synchronization operations: mailbox channel, semaphore, or barrier id.
	ID int
}

// A Record is the completion of one script step.
type Record struct {
	Index   int
	Kind    OpKind
	Data    []byte
	Word    uint64
	Swapped bool
	Cost    uint64
	Time    sim.VTimeInSec
	Err     error
}

// A TaggedOp is a script step attributed to its issuing core, used to feed
// the reference executor with a chosen interleaving.
type TaggedOp struct {
	Core int
	Op   Op
}

// ExecSequential applies memory operations one at a time, in the given
// order, against the storage. It models a sequentially consistent executor
// with no caching; a coherent run replaying the same interleaving must end
// with identical memory contents.
func ExecSequential(storage *mem.Storage, ops []TaggedOp) error {
	for _, t := range ops {
		op := t.Op

		switch op.Kind {
		case OpWrite:
			if err := storage.Write(op.Addr, op.Data); err != nil {
				return err
			}

		case OpAtomicCAS:
			old, err := readWord(storage, op.Addr)
			if err != nil {
				return err
			}
			if old == op.Compare {
				if err := writeWord(storage, op.Addr, op.Word); err != nil {
					return err
				}
			}

		case OpAtomicAdd:
			old, err := readWord(storage, op.Addr)
			if err != nil {
				return err
			}
			if err := writeWord(storage, op.Addr, old+op.Word); err != nil {
				return err
			}

		case OpRead, OpEvict:
			// No memory effect.

		default:
			// Synchronization steps have no memory effect either.
		}
	}

	return nil
}

func readWord(storage *mem.Storage, addr uint64) (uint64, error) {
	data, err := storage.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func writeWord(storage *mem.Storage, addr, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return storage.Write(addr, buf[:])
}
