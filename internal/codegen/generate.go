// Package codegen turns the raw output of the native back end into a code
// object: patch sites are rewritten into real call, barrier and return
// sequences, call sites get safepoints and literal-pool loads of
// placeholder constants become relocations.
package codegen

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"tfjit/internal/arm"
	"tfjit/internal/constpool"
	"tfjit/internal/patchpoint"
	"tfjit/internal/stackmap"
)

// maxStackSlots bounds the frame a safepoint can describe.
const maxStackSlots = 0x1000

// Input is everything the emitter needs for one unit.
type Input struct {
	Name      string
	Code      []byte
	StackMaps *stackmap.StackMaps
	Patches   *patchpoint.Table
	Consts    *constpool.Recorder
}

type site struct {
	id     uint32
	offset int
	info   patchpoint.Info
	record stackmap.Record
}

// Generate rewrites every patch site in in.Code and collects safepoints and
// relocations. in.Code is not modified.
//
// Disagreement between the stack map and the patch table (missing or
// repeated ids, overlapping sites, exceeded budgets) is a broken contract
// with the lowering and panics; malformed back-end output is an error.
func Generate(in Input) (*CodeObject, error) {
	if len(in.Code)%arm.WordSize != 0 {
		return nil, fmt.Errorf("%s: code size %d is not a multiple of %d", in.Name, len(in.Code), arm.WordSize)
	}
	stackSize, err := in.StackMaps.StackSize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Name, err)
	}
	slots, err := safecast.Conv[int](stackSize / 4)
	if err != nil || slots >= maxStackSlots {
		return nil, fmt.Errorf("%s: stack size %d exceeds %d slots", in.Name, stackSize, maxStackSlots)
	}

	sites, err := collectSites(in)
	if err != nil {
		return nil, err
	}

	e := &emitter{
		code:  slices.Clone(in.Code),
		slots: slots,
		obj:   &CodeObject{Name: in.Name, StackSlots: slots},
	}
	for _, s := range sites {
		if s.offset < e.pos {
			panic(fmt.Errorf("codegen: %s: patch %d at %d overlaps the previous site ending at %d",
				in.Name, s.id, s.offset, e.pos))
		}
		if end := s.offset + s.info.ReservedBytes(); end > len(e.code) {
			return nil, fmt.Errorf("%s: patch %d reserves [%d, %d) beyond code size %d",
				in.Name, s.id, s.offset, end, len(e.code))
		}
		e.pos = s.offset
		n, err := e.patch(s)
		if err != nil {
			return nil, fmt.Errorf("%s: patch %d: %w", in.Name, s.id, err)
		}
		if n < 1 || n > s.info.ReservedWords {
			panic(fmt.Errorf("codegen: %s: %s patch %d used %d of %d reserved instructions",
				in.Name, s.info.Kind, s.id, n, s.info.ReservedWords))
		}
		if e.pos != s.offset+n*arm.WordSize {
			panic(fmt.Errorf("codegen: %s: patch %d cursor at %d, expected %d",
				in.Name, s.id, e.pos, s.offset+n*arm.WordSize))
		}
	}

	e.obj.Relocations = append(e.obj.Relocations, literalPoolRelocations(e.code, in.Consts)...)
	slices.SortStableFunc(e.obj.Relocations, func(a, b Relocation) int { return a.Offset - b.Offset })
	e.obj.Instructions = e.code
	return e.obj, nil
}

// collectSites pairs each instruction-consuming patch id with its single
// record, ordered by code offset.
func collectSites(in Input) ([]site, error) {
	rm := in.StackMaps.RecordMap()
	sites := make([]site, 0, len(rm))
	byOffset := make(map[int]uint32, len(rm))
	for _, id := range rm.IDs() {
		recs := rm[id]
		if len(recs) != 1 {
			panic(fmt.Errorf("codegen: %s: patch %d has %d stack map records", in.Name, id, len(recs)))
		}
		info, ok := in.Patches.Lookup(id)
		if !ok {
			panic(fmt.Errorf("codegen: %s: stack map record for unknown patch %d", in.Name, id))
		}
		if !info.Kind.ConsumesCode() {
			continue
		}
		off, err := safecast.Conv[int](recs[0].InstructionOffset)
		if err != nil {
			return nil, fmt.Errorf("%s: patch %d offset: %w", in.Name, id, err)
		}
		if off%arm.WordSize != 0 {
			return nil, fmt.Errorf("%s: patch %d at unaligned offset %d", in.Name, id, off)
		}
		if prev, dup := byOffset[off]; dup {
			panic(fmt.Errorf("codegen: %s: patches %d and %d share offset %d", in.Name, prev, id, off))
		}
		byOffset[off] = id
		sites = append(sites, site{id: id, offset: off, info: info, record: recs[0]})
	}
	for _, id := range in.Patches.IDs() {
		info, _ := in.Patches.Lookup(id)
		if _, ok := rm[id]; !ok && info.Kind.ConsumesCode() {
			panic(fmt.Errorf("codegen: %s: %s patch %d missing from the stack map", in.Name, info.Kind, id))
		}
	}
	slices.SortFunc(sites, func(a, b site) int { return a.offset - b.offset })
	return sites, nil
}
