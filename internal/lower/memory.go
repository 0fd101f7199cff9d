package lower

import (
	"fmt"

	"tfjit/internal/ir"
	"tfjit/internal/native"
)

// address computes base+offset as a pointer.
func (b *Builder) address(base, offset *native.Value) *native.Value {
	return b.fn.GEP(b.ensurePointer(base), b.ensureWord32(offset))
}

func (b *Builder) visitLoad(ins *ir.Instr) {
	ld := ins.Load
	t := typeOfRep(ld.Rep)
	v := b.fn.Load(t, b.address(b.value(ld.Base), b.value(ld.Offset)))
	b.bind(ins.ID, b.extendLoad(v, ld.Rep, ld.Semantic))
}

// extendLoad widens narrow integer loads according to their semantic.
func (b *Builder) extendLoad(v *native.Value, rep ir.MachineRepresentation, sem ir.MachineSemantic) *native.Value {
	if rep != ir.RepWord8 && rep != ir.RepWord16 {
		return v
	}
	var to native.Type
	switch sem {
	case ir.SemInt32, ir.SemUint32:
		to = native.I32
	case ir.SemInt64, ir.SemUint64:
		to = native.I64
	default:
		return v
	}
	if sem.IsSigned() {
		return b.fn.CastTo(native.CastSExt, v, to)
	}
	return b.fn.CastTo(native.CastZExt, v, to)
}

func (b *Builder) visitStore(ins *ir.Instr) {
	st := ins.Store
	base := b.value(st.Base)
	slot := b.address(base, b.value(st.Offset))
	val := b.convertForStore(b.value(st.Value), typeOfRep(st.Rep))
	b.fn.Store(val, slot)
	if st.Barrier == ir.BarrierNone {
		return
	}
	b.writeBarrier(base, slot, val, st.Barrier)
}

func (b *Builder) visitLoadParentFramePointer(ins *ir.Instr) {
	if b.store.NeedsFrame() {
		b.bind(ins.ID, b.fn.Load(native.Ptr, b.fn.FP))
		return
	}
	b.bind(ins.ID, b.fn.CastTo(native.CastBitcast, b.fn.FP, native.Ptr))
}

func (b *Builder) visitProjection(ins *ir.Instr) {
	agg := b.value(ins.Proj.Value)
	var t native.Type
	switch agg.Type {
	case native.TaggedPair:
		t = native.Tagged
	case native.OverflowPair:
		t = native.I32
		if ins.Proj.Index == 1 {
			t = native.I1
		}
	default:
		panic(fmt.Errorf("lower: projection %d of %s", ins.Proj.Index, agg.Type))
	}
	if ins.Proj.Index < 0 || ins.Proj.Index > 1 {
		panic(fmt.Errorf("lower: projection index %d out of range", ins.Proj.Index))
	}
	b.bind(ins.ID, b.fn.Extract(agg, ins.Proj.Index, t))
}
