package lower

import (
	"fmt"

	"tfjit/internal/ir"
	"tfjit/internal/native"
	"tfjit/internal/patchpoint"
)

// Remembered-set actions and FP modes passed to the barrier stub, shifted
// left by one so they read as small integers.
const (
	rememberedSetEmit = 0
	rememberedSetOmit = 1
	fpRegsDontSave    = 0
)

// storeBarrierWords is the size of the stub call site.
const storeBarrierWords = 3

// writeBarrier emits the filtered slow-path call after a tagged store.
// Every fast path branches to one continuation block, which then ends the
// IR block in place of its original native block.
func (b *Builder) writeBarrier(base, slot, value *native.Value, kind ir.WriteBarrierKind) {
	st := b.currentState()
	seq := b.splits
	b.splits++
	prefix := fmt.Sprintf("B%d_value%d", b.current.ID, seq)
	cont := b.fn.AppendBlock(prefix + "_continuation")

	b.checkPageFlag(base, b.target.PointersFromHereMask, cont, prefix+"_checkpageflag_0")
	if kind > ir.BarrierMap {
		w := b.ensureWord32(value)
		tag := b.fn.Binary(native.OpAnd, w, b.fn.ConstInt(native.IntPtr, 1))
		isSmi := b.fn.ICmp(native.PredEQ, tag, b.fn.ConstInt(native.IntPtr, 0))
		next := b.fn.AppendBlock(prefix + "_checksmi")
		b.fn.CondBr(isSmi, cont, next)
		b.fn.PositionAtEnd(next)
	}
	b.checkPageFlag(value, b.target.PointersToHereMask, cont, prefix+"_checkpageflag_1")

	rsa := rememberedSetOmit
	if kind > ir.BarrierMap {
		rsa = rememberedSetEmit
	}
	words := storeBarrierWords
	if !b.store.NeedsFrame() {
		words += 2
		b.fn.EnsureLR()
	}
	id := b.patches.NextID()
	b.patches.Register(id, patchpoint.Info{Kind: patchpoint.KindStoreBarrier, ReservedWords: words})
	b.fn.Patchpoint(native.PatchSite{ID: uint64(id), Bytes: words * 4},
		base,
		slot,
		b.fn.Undef(native.I32),
		b.fn.ConstInt(native.I32, int64(rsa<<1)),
		b.fn.ConstInt(native.I32, fpRegsDontSave<<1),
		b.fn.Root,
	)
	b.fn.Br(cont)
	b.fn.PositionAtEnd(cont)
	st.continuation = cont
}

// checkPageFlag branches to done when the page holding v has none of the
// mask bits set, otherwise falls into a fresh block named next.
func (b *Builder) checkPageFlag(v *native.Value, mask int, done *native.Block, next string) {
	w := b.ensureWord32(v)
	page := b.fn.Binary(native.OpAnd, w, b.fn.ConstInt(native.IntPtr, int64(b.target.PageMask())))
	header := b.fn.CastTo(native.CastIntToPtr, page, native.Ptr)
	flagsAddr := b.fn.GEP(header, b.fn.ConstInt(native.IntPtr, int64(b.target.PageFlagsOffset)))
	flags := b.fn.Load(native.I32, flagsAddr)
	masked := b.fn.Binary(native.OpAnd, flags, b.fn.ConstInt(native.I32, int64(mask)))
	clean := b.fn.ICmp(native.PredEQ, masked, b.fn.ConstInt(native.I32, 0))
	blk := b.fn.AppendBlock(next)
	b.fn.CondBr(clean, done, blk)
	b.fn.PositionAtEnd(blk)
}
