// Package patchpoint describes the patchable regions the lowering reserves
// and the code emitter later rewrites. Each region is keyed by the id that
// also appears in the stack map.
package patchpoint

import (
	"fmt"
	"slices"
)

// Kind tells the code emitter how to rewrite a region.
type Kind uint8

const (
	KindCall Kind = iota
	KindTailCall
	KindStoreBarrier
	KindReturn
	KindHeapConstant
	KindExternalConstant
)

var kindNames = [...]string{
	KindCall:             "call",
	KindTailCall:         "tail_call",
	KindStoreBarrier:     "store_barrier",
	KindReturn:           "return",
	KindHeapConstant:     "heap_constant",
	KindExternalConstant: "external_constant",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ConsumesCode reports whether regions of this kind occupy instructions.
// Constant markers only tag a literal-pool load.
func (k Kind) ConsumesCode() bool {
	switch k {
	case KindCall, KindTailCall, KindStoreBarrier, KindReturn:
		return true
	case KindHeapConstant, KindExternalConstant:
		return false
	default:
		panic(fmt.Errorf("patchpoint: unknown kind %d", uint8(k)))
	}
}

// NoRegister marks a call target reached through the relocation table,
// or an operand that is passed on the stack.
const NoRegister = -1

// CallInfo describes a call or tail call site.
type CallInfo struct {
	// Locations holds the target register followed by the register of
	// each stack-class operand, in operand order.
	Locations []int
	// CodeMagic identifies the callee when Locations[0] is NoRegister.
	CodeMagic int64
	// FrameTeardown is set for tail calls from functions with a frame.
	FrameTeardown bool
	// PopCount is the number of stack slots a tail call drops.
	PopCount int
}

// TargetRegister returns the register holding the call target.
func (c *CallInfo) TargetRegister() int {
	if len(c.Locations) == 0 {
		return NoRegister
	}
	return c.Locations[0]
}

// StackRegisters returns the registers carrying stack-class operands.
func (c *CallInfo) StackRegisters() []int {
	if len(c.Locations) < 2 {
		return nil
	}
	return c.Locations[1:]
}

// ReturnInfo describes a function return.
type ReturnInfo struct {
	// PopCountIsConstant selects between an immediate adjustment and a
	// register-scaled one.
	PopCountIsConstant bool
	PopCount           int
}

// ConstantInfo identifies the placeholder a constant load embeds.
type ConstantInfo struct {
	Magic int64
}

// Info is the metadata attached to one patch-point id.
type Info struct {
	Kind Kind
	// ReservedWords is the number of instructions reserved for the region.
	ReservedWords int

	Call     CallInfo
	Return   ReturnInfo
	Constant ConstantInfo
}

// ReservedBytes is the region size in bytes.
func (i *Info) ReservedBytes() int { return i.ReservedWords * 4 }

// Table maps patch-point ids to their metadata for one unit.
type Table struct {
	entries map[uint32]Info
	next    uint32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[uint32]Info)}
}

// NextID hands out a fresh patch-point id.
func (t *Table) NextID() uint32 {
	id := t.next
	t.next++
	return id
}

// Register attaches info to id. Registering an id twice is a contract violation.
func (t *Table) Register(id uint32, info Info) {
	if _, dup := t.entries[id]; dup {
		panic(fmt.Errorf("patchpoint: id %d registered twice", id))
	}
	t.entries[id] = info
}

// Lookup returns the metadata for id.
func (t *Table) Lookup(id uint32) (Info, bool) {
	info, ok := t.entries[id]
	return info, ok
}

// Len returns the number of registered ids.
func (t *Table) Len() int { return len(t.entries) }

// IDs returns every registered id in ascending order.
func (t *Table) IDs() []uint32 {
	ids := make([]uint32, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CountKind returns how many registered ids have kind k.
func (t *Table) CountKind(k Kind) int {
	n := 0
	for _, info := range t.entries {
		if info.Kind == k {
			n++
		}
	}
	return n
}
