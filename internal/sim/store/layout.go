package store

import (
	"encoding/binary"
	"math"
)

// Fixed on-disk layout of the mmap store: maxSlots fixed-size slots, each one
// holding a NUL-padded PV name followed by the value as little-endian float64
// bits. An empty name marks a free slot.
const (
	maxSlots = 4096

	slotNameSize = 64
	slotSize     = slotNameSize + 8
	totalSize    = maxSlots * slotSize
)

func slotName(data []byte, slot int) string {
	b := data[slot*slotSize : slot*slotSize+slotNameSize]
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func slotValue(data []byte, slot int) float64 {
	off := slot*slotSize + slotNameSize
	return math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
}

func setSlot(data []byte, slot int, name string, value float64) {
	off := slot * slotSize
	nameBytes := data[off : off+slotNameSize]
	for i := range nameBytes {
		nameBytes[i] = 0
	}
	copy(nameBytes, name)
	binary.LittleEndian.PutUint64(data[off+slotNameSize:off+slotSize], math.Float64bits(value))
}
