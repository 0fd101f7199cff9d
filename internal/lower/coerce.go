package lower

import (
	"fmt"

	"tfjit/internal/cfg"
	"tfjit/internal/ir"
	"tfjit/internal/native"
)

// typeOfRep maps a machine representation to the native type holding it.
func typeOfRep(rep ir.MachineRepresentation) native.Type {
	switch rep {
	case ir.RepTaggedSigned:
		return native.IntPtr
	case ir.RepTagged, ir.RepTaggedPointer:
		return native.Tagged
	case ir.RepWord8:
		return native.I8
	case ir.RepWord16:
		return native.I16
	case ir.RepWord32:
		return native.I32
	case ir.RepWord64:
		return native.I64
	case ir.RepFloat32:
		return native.F32
	case ir.RepFloat64:
		return native.F64
	default:
		panic(fmt.Errorf("lower: representation %s has no native type", rep))
	}
}

// ensurePhiInput converts v, defined in pred, to the phi type t. The
// conversion is placed at the end of pred's continuation, before its
// terminator; the insertion cursor is left where it was.
func (b *Builder) ensurePhiInput(pred *cfg.Block, v *native.Value, t native.Type) *native.Value {
	if v.Type == t {
		return v
	}
	var op native.CastOp
	switch {
	case t == native.Tagged && v.Type == native.IntPtr:
		op = native.CastIntToPtr
	case t == native.IntPtr && v.Type.IsPointer():
		op = native.CastPtrToInt
	case t == native.IntPtr && v.Type == native.I1:
		op = native.CastZExt
	default:
		panic(fmt.Errorf("lower: cannot feed %s into %s phi from B%d", v.Type, t, pred.ID))
	}
	saved := b.fn.Save()
	defer b.fn.Restore(saved)
	b.fn.PositionBeforeTerminator(b.state(pred).continuation)
	return b.fn.CastTo(op, v, t)
}

// ensureWord32 turns an integer, boolean or pointer value into an i32.
func (b *Builder) ensureWord32(v *native.Value) *native.Value {
	switch v.Type {
	case native.I32:
		return v
	case native.I1, native.I8, native.I16:
		return b.fn.CastTo(native.CastZExt, v, native.I32)
	case native.I64:
		return b.fn.CastTo(native.CastTrunc, v, native.I32)
	case native.Tagged, native.Ptr:
		return b.fn.CastTo(native.CastPtrToInt, v, native.I32)
	default:
		panic(fmt.Errorf("lower: %s is not a word", v.Type))
	}
}

// ensurePointer turns a word into an untraced pointer; pointers pass through.
func (b *Builder) ensurePointer(v *native.Value) *native.Value {
	switch {
	case v.Type.IsPointer():
		return v
	case v.Type.IsInteger():
		return b.fn.CastTo(native.CastIntToPtr, b.ensureWord32(v), native.Ptr)
	default:
		panic(fmt.Errorf("lower: %s used as an address", v.Type))
	}
}

// convertForStore adapts v to the element type t of a store.
func (b *Builder) convertForStore(v *native.Value, t native.Type) *native.Value {
	switch {
	case v.Type == t:
		return v
	case t.IsPointer() && v.Type.IsInteger():
		return b.fn.CastTo(native.CastIntToPtr, b.ensureWord32(v), t)
	case t.IsPointer() && v.Type.IsPointer():
		return b.fn.CastTo(native.CastBitcast, v, t)
	case t.IsInteger() && v.Type.IsPointer():
		w := b.fn.CastTo(native.CastPtrToInt, v, native.IntPtr)
		if t == native.IntPtr {
			return w
		}
		return b.fn.CastTo(native.CastTrunc, w, t)
	case t.IsInteger() && v.Type.IsInteger():
		if v.Type > t {
			return b.fn.CastTo(native.CastTrunc, v, t)
		}
		return b.fn.CastTo(native.CastZExt, v, t)
	default:
		panic(fmt.Errorf("lower: cannot store %s as %s", v.Type, t))
	}
}
