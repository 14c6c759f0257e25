package model

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// MaxMemoryCapacity is the largest number of actions a memory can hold.
// 16 actions at 2 bits each fill the 32-bit packed field exactly.
const MaxMemoryCapacity = 16

// Memory is an ordered sequence of up to 16 actions, newest first, packed
// 2 bits per slot. The newest action occupies bits 0..1. The length is kept
// separately; packed bits beyond the length are always zero.
type Memory struct {
	Bits   uint32
	Length uint8
}

// Push prepends the action as the newest entry, shifting older entries up and
// dropping any that fall beyond the capacity.
func (m Memory) Push(a Action, capacity int) Memory {
	if capacity < 1 {
		capacity = 1
	} else if capacity > MaxMemoryCapacity {
		capacity = MaxMemoryCapacity
	}

	bits := m.Bits<<2 | uint32(a&0x3)
	length := int(m.Length) + 1
	if length > capacity {
		length = capacity
	}
	return Memory{
		Bits:   bits & lowMask(length),
		Length: uint8(length),
	}
}

// Truncate keeps only the newest k entries. Truncating beyond the current
// length is a no-op.
func (m Memory) Truncate(k int) Memory {
	if k < 0 {
		k = 0
	}
	if k >= int(m.Length) {
		return m
	}
	return Memory{
		Bits:   m.Bits & lowMask(k),
		Length: uint8(k),
	}
}

// SliceLast returns the newest k entries as a packed field plus length.
func (m Memory) SliceLast(k int) Memory {
	return m.Truncate(k)
}

// At returns the i-th newest action (0 is the newest). The result is only
// meaningful for i < Length.
func (m Memory) At(i int) Action {
	return Action(m.Bits >> (2 * uint(i)) & 0x3)
}

// Actions unpacks the memory, newest first.
func (m Memory) Actions() []Action {
	out := make([]Action, m.Length)
	for i := range out {
		out[i] = m.At(i)
	}
	return out
}

func lowMask(slots int) uint32 {
	if slots >= MaxMemoryCapacity {
		return ^uint32(0)
	}
	return 1<<(2*uint(slots)) - 1
}

// StateKey derives the 64-bit observation-state key for a player observing
// itself and its opponent. The key is a stable hash of the tuple
// (self.Length, opp.Length, self.Bits, opp.Bits): equal inputs always produce
// equal keys, and the self/opp order makes the key asymmetric between the two
// sides of an interaction.
func StateKey(self, opp Memory) uint64 {
	var buf [10]byte
	buf[0] = self.Length
	buf[1] = opp.Length
	binary.LittleEndian.PutUint32(buf[2:6], self.Bits)
	binary.LittleEndian.PutUint32(buf[6:10], opp.Bits)
	return xxhash.Sum64(buf[:])
}
