package native

import (
	"fmt"
	"math"
)

// ConstInt returns an integer or pointer constant. It is not placed in a block.
func (f *Func) ConstInt(t Type, v int64) *Value {
	c := f.newValue(OpConst, t)
	c.Int = v
	return c
}

// ConstFloat returns a floating point constant.
func (f *Func) ConstFloat(t Type, v float64) *Value {
	c := f.newValue(OpConstFloat, t)
	c.Float = v
	return c
}

// Undef returns an undefined value of type t.
func (f *Func) Undef(t Type) *Value {
	return f.newValue(OpUndef, t)
}

// Binary builds an integer or floating point binary operation.
func (f *Func) Binary(op Opcode, l, r *Value) *Value {
	if op < OpAdd || op > OpFDiv {
		panic(fmt.Errorf("native: %s is not a binary operation", op))
	}
	if l.Type != r.Type {
		panic(fmt.Errorf("native: %s operand types differ: %s vs %s", op, l.Type, r.Type))
	}
	v := f.newValue(op, l.Type)
	v.Args = []*Value{l, r}
	return f.insert(v)
}

// FNeg builds a floating point negation.
func (f *Func) FNeg(x *Value) *Value {
	v := f.newValue(OpFNeg, x.Type)
	v.Args = []*Value{x}
	return f.insert(v)
}

// ICmp builds an integer or pointer comparison.
func (f *Func) ICmp(p Predicate, l, r *Value) *Value {
	v := f.newValue(OpICmp, I1)
	v.Pred = p
	v.Args = []*Value{l, r}
	return f.insert(v)
}

// FCmp builds an ordered floating point comparison.
func (f *Func) FCmp(p Predicate, l, r *Value) *Value {
	v := f.newValue(OpFCmp, I1)
	v.Pred = p
	v.Args = []*Value{l, r}
	return f.insert(v)
}

// CastTo converts x to type t.
func (f *Func) CastTo(op CastOp, x *Value, t Type) *Value {
	v := f.newValue(OpCast, t)
	v.Cast = op
	v.Args = []*Value{x}
	return f.insert(v)
}

// GEP offsets base by off bytes. The result keeps base's pointer type.
func (f *Func) GEP(base, off *Value) *Value {
	if !base.Type.IsPointer() {
		panic(fmt.Errorf("native: getelementptr on %s", base.Type))
	}
	v := f.newValue(OpGEP, base.Type)
	v.Args = []*Value{base, off}
	return f.insert(v)
}

// Load reads a t from ptr.
func (f *Func) Load(t Type, ptr *Value) *Value {
	v := f.newValue(OpLoad, t)
	v.Args = []*Value{ptr}
	return f.insert(v)
}

// Store writes val to ptr.
func (f *Func) Store(val, ptr *Value) *Value {
	v := f.newValue(OpStore, Void)
	v.Args = []*Value{val, ptr}
	return f.insert(v)
}

// Phi creates an empty phi of type t.
func (f *Func) Phi(t Type) *Value {
	return f.insert(f.newValue(OpPhi, t))
}

// Extract reads element idx of an aggregate.
func (f *Func) Extract(agg *Value, idx int, t Type) *Value {
	v := f.newValue(OpExtract, t)
	v.Int = int64(idx)
	v.Args = []*Value{agg}
	return f.insert(v)
}

// Intrinsic calls a builtin function by name.
func (f *Func) Intrinsic(name string, t Type, args ...*Value) *Value {
	v := f.newValue(OpIntrinsic, t)
	v.Name = name
	v.Args = args
	return f.insert(v)
}

// InlineAsm emits verbatim assembly text.
func (f *Func) InlineAsm(text string, t Type, args ...*Value) *Value {
	v := f.newValue(OpInlineAsm, t)
	v.Name = text
	v.Args = args
	return f.insert(v)
}

// LoadMagic materialises a placeholder constant that the code emitter
// later turns into a relocation.
func (f *Func) LoadMagic(t Type, magic int64) *Value {
	v := f.newValue(OpLoadMagic, t)
	v.Int = magic
	return f.insert(v)
}

// Statepoint builds a call wrapped in a safepoint. gcArgs are the traced
// values live across the call; each is re-read with GCRelocate.
func (f *Func) Statepoint(site PatchSite, callee *Value, args, gcArgs []*Value, tail bool) *Value {
	v := f.newValue(OpStatepoint, Token)
	v.Site = &site
	v.Tail = tail
	v.Int = int64(len(args))
	v.Args = make([]*Value, 0, 1+len(args)+len(gcArgs))
	v.Args = append(v.Args, callee)
	v.Args = append(v.Args, args...)
	v.Args = append(v.Args, gcArgs...)
	return f.insert(v)
}

// GCRelocate returns the post-call copy of the idx-th gc argument of tok.
func (f *Func) GCRelocate(tok *Value, idx int) *Value {
	if tok.Op != OpStatepoint {
		panic(fmt.Errorf("native: gc.relocate of %s", tok.Op))
	}
	gc := tok.GCArgs()
	if idx < 0 || idx >= len(gc) {
		panic(fmt.Errorf("native: gc.relocate index %d out of %d", idx, len(gc)))
	}
	v := f.newValue(OpGCRelocate, gc[idx].Type)
	v.Int = int64(idx)
	v.Args = []*Value{tok}
	return f.insert(v)
}

// GCResult returns the call result of tok.
func (f *Func) GCResult(tok *Value, t Type) *Value {
	v := f.newValue(OpGCResult, t)
	v.Args = []*Value{tok}
	return f.insert(v)
}

// Patchpoint reserves site.Bytes of patchable code that receives args.
func (f *Func) Patchpoint(site PatchSite, args ...*Value) *Value {
	v := f.newValue(OpPatchpoint, Void)
	v.Site = &site
	v.Args = args
	return f.insert(v)
}

// StackMap records a zero-size marker so the site id shows up in the stack map.
func (f *Func) StackMap(site PatchSite, args ...*Value) *Value {
	v := f.newValue(OpStackMap, Void)
	v.Site = &site
	v.Args = args
	return f.insert(v)
}

// Br jumps to dest.
func (f *Func) Br(dest *Block) *Value {
	v := f.newValue(OpBr, Void)
	v.Succs = []*Block{dest}
	return f.insert(v)
}

// CondBr jumps to t when cond is true, otherwise to e.
func (f *Func) CondBr(cond *Value, t, e *Block) *Value {
	if cond.Type != I1 {
		panic(fmt.Errorf("native: branch on %s", cond.Type))
	}
	v := f.newValue(OpCondBr, Void)
	v.Args = []*Value{cond}
	v.Succs = []*Block{t, e}
	return f.insert(v)
}

// Switch dispatches on x; cases are added with AddCase.
func (f *Func) Switch(x *Value, def *Block, capacity int) *Value {
	v := f.newValue(OpSwitch, Void)
	v.Args = []*Value{x}
	v.Succs = make([]*Block, 1, 1+capacity)
	v.Succs[0] = def
	v.Cases = make([]int64, 0, capacity)
	return f.insert(v)
}

// Ret returns val after dropping pop stack slots; the sequence is patched later.
func (f *Func) Ret(site PatchSite, val, pop *Value) *Value {
	v := f.newValue(OpRet, Void)
	v.Site = &site
	v.Args = []*Value{val, pop}
	return f.insert(v)
}

// Unreachable marks the end of a block control never leaves normally.
func (f *Func) Unreachable() *Value {
	return f.insert(f.newValue(OpUnreachable, Void))
}

// float64Bits is the bit pattern used when printing double constants.
func float64Bits(v float64) uint64 { return math.Float64bits(v) }
