// Package native holds the typed SSA form handed to the machine back end.
// It mirrors the subset of an LLVM-style builder the lowering needs:
// blocks with an insertion cursor, phis, calls wrapped in statepoints,
// patchpoints and stack map markers.
package native

import "fmt"

// Type is the machine type of a value.
type Type uint8

const (
	Void Type = iota
	I1
	I8
	I16
	I32
	I64
	F32
	F64
	// Tagged is a pointer the collector traces.
	Tagged
	// Ptr is an untraced raw pointer.
	Ptr
	// Token ties statepoint results to their call.
	Token
	// TaggedPair is the result of a two-value call.
	TaggedPair
	// OverflowPair is the {result, overflowed} pair of checked arithmetic.
	OverflowPair
)

// IntPtr is the pointer-sized integer on the 32-bit target.
const IntPtr = I32

var typeNames = [...]string{
	Void:         "void",
	I1:           "i1",
	I8:           "i8",
	I16:          "i16",
	I32:          "i32",
	I64:          "i64",
	F32:          "float",
	F64:          "double",
	Tagged:       "ptr addrspace(1)",
	Ptr:          "ptr",
	Token:        "token",
	TaggedPair:   "{ptr addrspace(1), ptr addrspace(1)}",
	OverflowPair: "{i32, i1}",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// IsPointer reports whether t is Tagged or Ptr.
func (t Type) IsPointer() bool { return t == Tagged || t == Ptr }

// IsInteger reports whether t is an integer type.
func (t Type) IsInteger() bool { return t >= I1 && t <= I64 }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// Opcode identifies the operation of a value.
type Opcode uint8

const (
	OpArg Opcode = iota
	OpConst
	OpConstFloat
	OpUndef

	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFNeg
	OpICmp
	OpFCmp
	OpCast

	OpGEP
	OpLoad
	OpStore
	OpPhi
	OpExtract
	OpIntrinsic
	OpInlineAsm
	OpLoadMagic

	OpStatepoint
	OpGCRelocate
	OpGCResult
	OpPatchpoint
	OpStackMap

	OpBr
	OpCondBr
	OpSwitch
	OpRet
	OpUnreachable
)

var opNames = [...]string{
	OpArg:         "arg",
	OpConst:       "const",
	OpConstFloat:  "fconst",
	OpUndef:       "undef",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpShl:         "shl",
	OpLShr:        "lshr",
	OpAShr:        "ashr",
	OpFAdd:        "fadd",
	OpFSub:        "fsub",
	OpFMul:        "fmul",
	OpFDiv:        "fdiv",
	OpFNeg:        "fneg",
	OpICmp:        "icmp",
	OpFCmp:        "fcmp",
	OpCast:        "cast",
	OpGEP:         "getelementptr",
	OpLoad:        "load",
	OpStore:       "store",
	OpPhi:         "phi",
	OpExtract:     "extractvalue",
	OpIntrinsic:   "call",
	OpInlineAsm:   "asm",
	OpLoadMagic:   "load.magic",
	OpStatepoint:  "statepoint",
	OpGCRelocate:  "gc.relocate",
	OpGCResult:    "gc.result",
	OpPatchpoint:  "patchpoint",
	OpStackMap:    "stackmap",
	OpBr:          "br",
	OpCondBr:      "br",
	OpSwitch:      "switch",
	OpRet:         "ret",
	OpUnreachable: "unreachable",
}

func (o Opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// IsTerminator reports whether the opcode ends a block.
func (o Opcode) IsTerminator() bool { return o >= OpBr }

// Predicate is an icmp/fcmp condition.
type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredSLT
	PredSLE
	PredULT
	PredULE
	PredOLT
	PredOLE
	PredOEQ
)

var predNames = [...]string{
	PredEQ: "eq", PredNE: "ne", PredSLT: "slt", PredSLE: "sle",
	PredULT: "ult", PredULE: "ule", PredOLT: "olt", PredOLE: "ole", PredOEQ: "oeq",
}

func (p Predicate) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("pred(%d)", uint8(p))
}

// CastOp selects the conversion performed by OpCast.
type CastOp uint8

const (
	CastIntToPtr CastOp = iota
	CastPtrToInt
	CastZExt
	CastSExt
	CastTrunc
	CastSIToFP
	CastUIToFP
	CastFPToSI
	CastFPToUI
	CastBitcast
)

var castNames = [...]string{
	CastIntToPtr: "inttoptr", CastPtrToInt: "ptrtoint", CastZExt: "zext", CastSExt: "sext",
	CastTrunc: "trunc", CastSIToFP: "sitofp", CastUIToFP: "uitofp", CastFPToSI: "fptosi",
	CastFPToUI: "fptoui", CastBitcast: "bitcast",
}

func (c CastOp) String() string {
	if int(c) < len(castNames) {
		return castNames[c]
	}
	return fmt.Sprintf("cast(%d)", uint8(c))
}
