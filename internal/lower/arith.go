package lower

import (
	"fmt"

	"tfjit/internal/ir"
	"tfjit/internal/native"
)

func (b *Builder) lowerUnary(kind ir.InstrKind, x *native.Value) *native.Value {
	switch kind {
	case ir.InstrBitcastWordToTagged:
		return b.fn.CastTo(native.CastIntToPtr, b.ensureWord32(x), native.Tagged)
	case ir.InstrChangeInt32ToFloat64:
		return b.fn.CastTo(native.CastSIToFP, b.ensureWord32(x), native.F64)
	case ir.InstrChangeUint32ToFloat64:
		return b.fn.CastTo(native.CastUIToFP, b.ensureWord32(x), native.F64)
	case ir.InstrTruncateFloat64ToWord32:
		return b.fn.CastTo(native.CastFPToUI, b.ensureFloat64(x), native.I32)
	case ir.InstrRoundFloat64ToInt32:
		return b.fn.CastTo(native.CastFPToSI, b.ensureFloat64(x), native.I32)
	case ir.InstrFloat64Neg:
		return b.fn.FNeg(b.ensureFloat64(x))
	case ir.InstrFloat64Abs:
		return b.fn.Intrinsic("llvm.fabs.f64", native.F64, b.ensureFloat64(x))
	default:
		panic(fmt.Errorf("lower: %s is not unary", kind))
	}
}

var intBinaryOps = map[ir.InstrKind]native.Opcode{
	ir.InstrInt32Add:  native.OpAdd,
	ir.InstrInt32Sub:  native.OpSub,
	ir.InstrInt32Mul:  native.OpMul,
	ir.InstrWord32Shl: native.OpShl,
	ir.InstrWord32Shr: native.OpLShr,
	ir.InstrWord32Sar: native.OpAShr,
	ir.InstrWord32Mul: native.OpMul,
	ir.InstrWord32And: native.OpAnd,
	ir.InstrWord32Or:  native.OpOr,
	ir.InstrWord32Xor: native.OpXor,
}

var intCompares = map[ir.InstrKind]native.Predicate{
	ir.InstrWord32Equal:           native.PredEQ,
	ir.InstrInt32LessThan:         native.PredSLT,
	ir.InstrInt32LessThanOrEqual:  native.PredSLE,
	ir.InstrUint32LessThan:        native.PredULT,
	ir.InstrUint32LessThanOrEqual: native.PredULE,
}

var overflowIntrinsics = map[ir.InstrKind]string{
	ir.InstrInt32AddWithOverflow: "llvm.sadd.with.overflow.i32",
	ir.InstrInt32SubWithOverflow: "llvm.ssub.with.overflow.i32",
	ir.InstrInt32MulWithOverflow: "llvm.smul.with.overflow.i32",
}

var floatBinaryOps = map[ir.InstrKind]native.Opcode{
	ir.InstrFloat64Add: native.OpFAdd,
	ir.InstrFloat64Sub: native.OpFSub,
	ir.InstrFloat64Mul: native.OpFMul,
	ir.InstrFloat64Div: native.OpFDiv,
}

var floatCompares = map[ir.InstrKind]native.Predicate{
	ir.InstrFloat64LessThan:        native.PredOLT,
	ir.InstrFloat64LessThanOrEqual: native.PredOLE,
	ir.InstrFloat64Equal:           native.PredOEQ,
}

func (b *Builder) lowerBinary(kind ir.InstrKind, l, r *native.Value) *native.Value {
	if op, ok := intBinaryOps[kind]; ok {
		return b.fn.Binary(op, b.ensureWord32(l), b.ensureWord32(r))
	}
	if p, ok := intCompares[kind]; ok {
		return b.fn.ICmp(p, b.ensureWord32(l), b.ensureWord32(r))
	}
	if name, ok := overflowIntrinsics[kind]; ok {
		return b.fn.Intrinsic(name, native.OverflowPair, b.ensureWord32(l), b.ensureWord32(r))
	}
	if op, ok := floatBinaryOps[kind]; ok {
		return b.fn.Binary(op, b.ensureFloat64(l), b.ensureFloat64(r))
	}
	if p, ok := floatCompares[kind]; ok {
		return b.fn.FCmp(p, b.ensureFloat64(l), b.ensureFloat64(r))
	}
	if kind == ir.InstrInt32Div {
		// There is no integer divide on the baseline target.
		lf := b.fn.CastTo(native.CastSIToFP, b.ensureWord32(l), native.F64)
		rf := b.fn.CastTo(native.CastSIToFP, b.ensureWord32(r), native.F64)
		return b.fn.CastTo(native.CastFPToSI, b.fn.Binary(native.OpFDiv, lf, rf), native.I32)
	}
	panic(fmt.Errorf("lower: %s is not binary", kind))
}

func (b *Builder) ensureFloat64(v *native.Value) *native.Value {
	if v.Type != native.F64 {
		panic(fmt.Errorf("lower: expected double, got %s", v.Type))
	}
	return v
}
