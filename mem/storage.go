// Package mem provides the backing storage and the access protocol shared by
// the cache hierarchy, the directory, and the memory-side agents.
package mem

import "errors"

// Size units.
const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

// A Storage keeps the data of the modeled system.
//
// The storage manages data in units. Units that are never touched by Read or
// Write are not allocated, so a large address space can be modeled with
// little host memory.
type Storage struct {
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity in bytes.
func NewStorage(capacity uint64) *Storage {
	return &Storage{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the number of bytes that the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) unitFor(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, errors.New("accessing address beyond storage capacity")
	}

	baseAddr := address - address%s.unitSize
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

// Read returns a copy of the data stored at [address, address+length).
func (s *Storage) Read(address, length uint64) ([]byte, error) {
	res := make([]byte, length)
	currAddr := address
	dataOffset := uint64(0)

	for currAddr < address+length {
		unit, err := s.unitFor(currAddr)
		if err != nil {
			return nil, err
		}

		inUnitAddr := currAddr % s.unitSize
		lenToRead := min(length-dataOffset, s.unitSize-inUnitAddr)

		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])
		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write stores data starting at the given address.
func (s *Storage) Write(address uint64, data []byte) error {
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit, err := s.unitFor(currAddr)
		if err != nil {
			return err
		}

		inUnitAddr := currAddr % s.unitSize
		lenToWrite := min(
			uint64(len(data))-dataOffset, s.unitSize-inUnitAddr)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}
