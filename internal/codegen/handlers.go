package codegen

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"tfjit/internal/arm"
	"tfjit/internal/patchpoint"
	"tfjit/internal/stackmap"
)

type emitter struct {
	code  []byte
	pos   int
	slots int
	obj   *CodeObject
}

func (e *emitter) emit(w uint32) {
	arm.PutWord(e.code, e.pos, w)
	e.pos += arm.WordSize
}

// patch rewrites one site and returns the number of instructions written.
func (e *emitter) patch(s site) (int, error) {
	start := e.pos
	switch s.info.Kind {
	case patchpoint.KindCall, patchpoint.KindTailCall:
		if err := e.call(s); err != nil {
			return 0, err
		}
	case patchpoint.KindStoreBarrier:
		// The barrier stub address is already in ip.
		e.emit(arm.Blx(arm.IP))
	case patchpoint.KindReturn:
		e.ret(s.info.Return)
	default:
		panic(fmt.Errorf("codegen: no handler for %s", s.info.Kind))
	}
	return (e.pos - start) / arm.WordSize, nil
}

func (e *emitter) call(s site) error {
	ci := s.info.Call
	tail := s.info.Kind == patchpoint.KindTailCall

	target := ci.TargetRegister()
	if target == patchpoint.NoRegister {
		ldr, err := arm.LdrImm(arm.IP, arm.Root, 0)
		if err != nil {
			panic(fmt.Errorf("codegen: %w", err))
		}
		magic, err := safecast.Conv[uint32](ci.CodeMagic)
		if err != nil {
			panic(fmt.Errorf("codegen: call target magic: %w", err))
		}
		e.obj.Relocations = append(e.obj.Relocations, Relocation{
			Offset:         e.pos,
			ConstantOffset: -1,
			Kind:           RelocCodeTarget,
			Target:         magic,
		})
		e.emit(ldr)
		target = int(arm.IP)
	}

	if tail && ci.FrameTeardown {
		e.emit(arm.Mov(arm.SP, arm.FP))
		e.emit(arm.Pop(arm.List(arm.FP, arm.LR)))
	}
	if tail && ci.PopCount > 0 {
		e.emit(popWords(ci.PopCount, "tail call"))
	}

	var regs []arm.Reg
	for _, r := range ci.StackRegisters() {
		if r == patchpoint.NoRegister {
			continue
		}
		if r < 0 || r > int(arm.R9) {
			panic(fmt.Errorf("codegen: stack operand in r%d", r))
		}
		regs = append(regs, arm.Reg(r))
	}
	if len(regs) > 0 {
		e.emit(arm.Push(arm.List(regs...)))
	}

	if target < 0 || target > int(arm.LR) {
		panic(fmt.Errorf("codegen: call target in r%d", target))
	}
	if tail {
		e.emit(arm.Bx(arm.Reg(target)))
		return nil
	}
	e.emit(arm.Blx(arm.Reg(target)))

	slots, err := e.safepointSlots(s.record)
	if err != nil {
		return err
	}
	e.obj.Safepoints = append(e.obj.Safepoints, Safepoint{PCOffset: e.pos, Slots: slots})
	return nil
}

// safepointSlots maps the spilled gc values of a call record to frame slots.
// Slots count from the frame pointer; sp-relative offsets are converted
// using the frame size.
func (e *emitter) safepointSlots(rec stackmap.Record) ([]int, error) {
	var slots []int
	for _, loc := range rec.Locations {
		if loc.Kind != stackmap.Indirect {
			continue
		}
		off := int(loc.Offset)
		if off%4 != 0 {
			return nil, fmt.Errorf("unaligned spill offset %d", off)
		}
		var slot int
		switch loc.Register {
		case uint16(arm.SP):
			if off < 0 || off/4 >= e.slots {
				return nil, fmt.Errorf("sp offset %d outside a %d slot frame", off, e.slots)
			}
			slot = e.slots - 1 - off/4
		case uint16(arm.FP):
			slot = -off/4 + 1
			if slot < 0 {
				return nil, fmt.Errorf("fp offset %d above the frame", off)
			}
		default:
			return nil, fmt.Errorf("spill relative to r%d", loc.Register)
		}
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slices.Compact(slots), nil
}

func (e *emitter) ret(ri patchpoint.ReturnInfo) {
	switch {
	case !ri.PopCountIsConstant:
		e.emit(arm.AddShifted(arm.SP, arm.SP, arm.R1, 2))
	case ri.PopCount > 0:
		e.emit(popWords(ri.PopCount, "return"))
	}
	e.emit(arm.Bx(arm.LR))
}

// popWords encodes sp += n words.
func popWords(n int, what string) uint32 {
	imm, err := safecast.Conv[uint32](n * arm.WordSize)
	if err != nil {
		panic(fmt.Errorf("codegen: %s pop of %d words: %w", what, n, err))
	}
	add, err := arm.AddImm(arm.SP, arm.SP, imm)
	if err != nil {
		panic(fmt.Errorf("codegen: %s pop: %w", what, err))
	}
	return add
}
