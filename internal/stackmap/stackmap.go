// Package stackmap reads and writes the stack-map section the native back
// end emits next to the code: per patch point, where every recorded value
// lives at that instruction.
package stackmap

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

var (
	// ErrTruncated reports a section that ends before its declared contents.
	ErrTruncated = errors.New("stack map section truncated")
	// ErrUnsupportedVersion reports a header version this parser does not know.
	ErrUnsupportedVersion = errors.New("unsupported stack map version")
	// ErrMalformed reports a field that is out of range for its meaning.
	ErrMalformed = errors.New("malformed stack map section")
)

// LocationKind says how a location's value is found.
type LocationKind uint8

const (
	Register      LocationKind = 1
	Direct        LocationKind = 2
	Indirect      LocationKind = 3
	Constant      LocationKind = 4
	ConstantIndex LocationKind = 5
)

func (k LocationKind) String() string {
	switch k {
	case Register:
		return "register"
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	case Constant:
		return "constant"
	case ConstantIndex:
		return "constant_index"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Location is one recorded value.
// Register holds the DWARF register number; Offset is the stack offset for
// Direct/Indirect, the value for Constant, the constants-table index for ConstantIndex.
type Location struct {
	Kind     LocationKind
	Size     uint16
	Register uint16
	Offset   int32
}

// LiveOut is a register live after the patch point.
type LiveOut struct {
	Register uint16
	Size     uint8
}

// Function is one entry of the function table.
type Function struct {
	Address     uint64
	StackSize   uint64
	RecordCount uint64
}

// Record describes one patch point.
type Record struct {
	ID                uint32
	InstructionOffset uint32
	Flags             uint16
	Locations         []Location
	LiveOuts          []LiveOut
}

// StackMaps is a parsed section.
type StackMaps struct {
	Version   uint8
	Functions []Function
	Constants []uint64
	Records   []Record
}

// RecordMap groups records by patch-point id in section order.
type RecordMap map[uint32][]Record

// RecordMap indexes the records by id. An id appears more than once when
// the back end duplicated its patch point.
func (s *StackMaps) RecordMap() RecordMap {
	m := make(RecordMap, len(s.Records))
	for _, r := range s.Records {
		m[r.ID] = append(m[r.ID], r)
	}
	return m
}

// IDs returns the record ids in ascending order.
func (m RecordMap) IDs() []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// StackSize returns the frame size of the only function in the section.
func (s *StackMaps) StackSize() (uint64, error) {
	if len(s.Functions) != 1 {
		return 0, fmt.Errorf("%w: %d functions, want 1", ErrMalformed, len(s.Functions))
	}
	return s.Functions[0].StackSize, nil
}

// RegisterSet is a bit set of DWARF register numbers below 32.
type RegisterSet uint32

// Add returns s with reg included. Registers outside the set are ignored.
func (s RegisterSet) Add(reg uint16) RegisterSet {
	if reg >= 32 {
		return s
	}
	return s | 1<<reg
}

// Has reports whether reg is in s.
func (s RegisterSet) Has(reg uint16) bool {
	return reg < 32 && s&(1<<reg) != 0
}

// Len returns the number of registers in s.
func (s RegisterSet) Len() int { return bits.OnesCount32(uint32(s)) }

// LiveOutSet returns the registers live after the record's patch point.
func (r *Record) LiveOutSet() RegisterSet {
	var s RegisterSet
	for _, lo := range r.LiveOuts {
		s = s.Add(lo.Register)
	}
	return s
}

// LocationSet returns the registers holding Register locations.
func (r *Record) LocationSet() RegisterSet {
	var s RegisterSet
	for _, loc := range r.Locations {
		if loc.Kind == Register {
			s = s.Add(loc.Register)
		}
	}
	return s
}

// UsedRegisterSet is the union of LiveOutSet and LocationSet.
func (r *Record) UsedRegisterSet() RegisterSet {
	return r.LiveOutSet() | r.LocationSet()
}
