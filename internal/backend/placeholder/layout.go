// Package placeholder is a dry-run native back end. It lays a native.Func
// out as A32 words without selecting real instructions: every machine-level
// instruction becomes a nop, patch sites become nop sleds of their reserved
// size and placeholder constants are loaded from a literal pool appended to
// the code. The stack-map section it writes describes exactly that layout,
// so the code emitter can run on its output.
package placeholder

import (
	"context"
	"fmt"

	"fortio.org/safecast"

	"tfjit/internal/arm"
	"tfjit/internal/native"
	"tfjit/internal/pipeline"
	"tfjit/internal/stackmap"
)

// stackMapVersion is the section layout the back end writes.
const stackMapVersion = 3

// maxLiteralOffset is the reach of ldr rt, [pc, #imm12].
const maxLiteralOffset = 0xFFF

// Backend implements pipeline.Backend.
type Backend struct{}

// New returns the placeholder back end.
func New() *Backend { return &Backend{} }

// Name identifies the back end in logs and cache keys.
func (*Backend) Name() string { return "placeholder" }

type literalLoad struct {
	pc    int
	rt    arm.Reg
	magic uint32
}

type layout struct {
	code    []byte
	records []stackmap.Record
	loads   []literalLoad
	// maxGC is the largest number of gc arguments any statepoint carries.
	maxGC int
}

// Compile lays out fn and returns its code and stack-map section.
func (b *Backend) Compile(ctx context.Context, fn *native.Func) (pipeline.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Artifact{}, err
	}
	l := &layout{}
	for _, blk := range fn.Blocks {
		for _, v := range blk.Instrs {
			if err := l.instr(v); err != nil {
				return pipeline.Artifact{}, fmt.Errorf("%s: %s: %w", fn.Name, blk.Name, err)
			}
		}
	}
	if err := l.literalPool(); err != nil {
		return pipeline.Artifact{}, fmt.Errorf("%s: %w", fn.Name, err)
	}

	stackSize, err := safecast.Conv[uint64](l.maxGC * arm.WordSize)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	maps, err := stackmap.Encode(&stackmap.StackMaps{
		Version: stackMapVersion,
		Functions: []stackmap.Function{{
			StackSize:   stackSize,
			RecordCount: uint64(len(l.records)),
		}},
		Records: l.records,
	})
	if err != nil {
		return pipeline.Artifact{}, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return pipeline.Artifact{Code: l.code, StackMaps: maps}, nil
}

func (l *layout) instr(v *native.Value) error {
	switch v.Op {
	case native.OpPhi, native.OpGCRelocate, native.OpGCResult, native.OpExtract:
		// Register moves at most; the allocator is assumed to coalesce them.
		return nil
	case native.OpStackMap:
		return l.record(v.Site, nil)
	case native.OpPatchpoint, native.OpRet:
		if err := l.record(v.Site, nil); err != nil {
			return err
		}
		return l.sled(v.Site)
	case native.OpStatepoint:
		gc := v.GCArgs()
		locs := make([]stackmap.Location, 0, 3+len(gc))
		// Calling convention, flags and deopt count.
		locs = append(locs,
			stackmap.Location{Kind: stackmap.Constant, Size: 8},
			stackmap.Location{Kind: stackmap.Constant, Size: 8},
			stackmap.Location{Kind: stackmap.Constant, Size: 8},
		)
		for k := range gc {
			off, err := safecast.Conv[int32](k * arm.WordSize)
			if err != nil {
				return err
			}
			locs = append(locs, stackmap.Location{
				Kind:     stackmap.Indirect,
				Size:     arm.WordSize,
				Register: uint16(arm.SP),
				Offset:   off,
			})
		}
		l.maxGC = max(l.maxGC, len(gc))
		if err := l.record(v.Site, locs); err != nil {
			return err
		}
		return l.sled(v.Site)
	case native.OpLoadMagic:
		magic, err := safecast.Conv[uint32](v.Int)
		if err != nil {
			return fmt.Errorf("magic %d: %w", v.Int, err)
		}
		l.loads = append(l.loads, literalLoad{
			pc:    len(l.code),
			rt:    arm.Reg(len(l.loads) % int(arm.R9+1)), //nolint:gosec // below 10
			magic: magic,
		})
		l.code = arm.AppendWord(l.code, arm.Nop)
		return nil
	default:
		l.code = arm.AppendWord(l.code, arm.Nop)
		return nil
	}
}

// record notes a stack-map record at the current offset.
func (l *layout) record(site *native.PatchSite, locs []stackmap.Location) error {
	if site == nil {
		return fmt.Errorf("patch site missing")
	}
	id, err := safecast.Conv[uint32](site.ID)
	if err != nil {
		return fmt.Errorf("patch id %d: %w", site.ID, err)
	}
	off, err := safecast.Conv[uint32](len(l.code))
	if err != nil {
		return err
	}
	l.records = append(l.records, stackmap.Record{ID: id, InstructionOffset: off, Locations: locs})
	return nil
}

func (l *layout) sled(site *native.PatchSite) error {
	if site.Bytes <= 0 || site.Bytes%arm.WordSize != 0 {
		return fmt.Errorf("patch %d reserves %d bytes", site.ID, site.Bytes)
	}
	for range site.Bytes / arm.WordSize {
		l.code = arm.AppendWord(l.code, arm.Nop)
	}
	return nil
}

// literalPool appends one pool slot per distinct magic and points every
// load at its slot.
func (l *layout) literalPool() error {
	slots := make(map[uint32]int, len(l.loads))
	for _, ld := range l.loads {
		if _, ok := slots[ld.magic]; ok {
			continue
		}
		slots[ld.magic] = len(l.code)
		l.code = arm.AppendWord(l.code, ld.magic)
	}
	for _, ld := range l.loads {
		rel := slots[ld.magic] - (ld.pc + 8)
		if rel > maxLiteralOffset {
			return fmt.Errorf("literal for 0x%X is %d bytes past its load at %d", ld.magic, rel, ld.pc)
		}
		w, err := arm.LdrImm(ld.rt, arm.PC, rel)
		if err != nil {
			return err
		}
		arm.PutWord(l.code, ld.pc, w)
	}
	return nil
}
