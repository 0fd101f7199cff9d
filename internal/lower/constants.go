package lower

import (
	"fmt"

	"fortio.org/safecast"

	"tfjit/internal/constpool"
	"tfjit/internal/ir"
	"tfjit/internal/native"
	"tfjit/internal/patchpoint"
)

func (b *Builder) visitConstant(ins *ir.Instr) {
	switch ins.Kind {
	case ir.InstrInt32Constant:
		b.intConsts[ins.ID] = ins.Const.Int
		b.bind(ins.ID, b.fn.ConstInt(native.I32, ins.Const.Int))
	case ir.InstrSmiConstant:
		// Int already holds the tagged word.
		b.bind(ins.ID, b.fn.ConstInt(native.Tagged, ins.Const.Int))
	case ir.InstrFloat64Constant:
		b.bind(ins.ID, b.fn.ConstFloat(native.F64, ins.Const.Float))
	case ir.InstrHeapConstant:
		b.bind(ins.ID, b.loadConstant(ins, native.Tagged, constpool.HeapConstant, patchpoint.KindHeapConstant))
	case ir.InstrExternalConstant:
		b.bind(ins.ID, b.loadConstant(ins, native.IntPtr, constpool.ExternalReference, patchpoint.KindExternalConstant))
	case ir.InstrCodeForCall:
		// The callee is reached through the root table; the value itself is never materialised.
		b.codeUses[ins.ID] = ins.Const.Magic
		b.bind(ins.ID, b.fn.Undef(native.IntPtr))
	case ir.InstrRoot:
		off := b.fn.ConstInt(native.IntPtr, ins.Const.Int*int64(b.target.PointerSize))
		b.bind(ins.ID, b.fn.Load(native.Tagged, b.fn.GEP(b.fn.Root, off)))
	default:
		panic(fmt.Errorf("lower: %s is not a constant", ins.Kind))
	}
}

// loadConstant embeds a placeholder the code emitter turns into a
// relocation and tags the load with a zero-size stack map marker.
func (b *Builder) loadConstant(ins *ir.Instr, t native.Type, ct constpool.Type, kind patchpoint.Kind) *native.Value {
	magic, err := safecast.Conv[uint32](ins.Const.Magic)
	if err != nil {
		panic(fmt.Errorf("lower: %s %d magic: %w", ins.Kind, ins.ID, err))
	}
	b.consts.Register(magic, ct, 0)
	v := b.fn.LoadMagic(t, int64(magic))

	id := b.patches.NextID()
	b.patches.Register(id, patchpoint.Info{
		Kind:     kind,
		Constant: patchpoint.ConstantInfo{Magic: int64(magic)},
	})
	b.fn.StackMap(native.PatchSite{ID: uint64(id)}, v)
	return v
}
