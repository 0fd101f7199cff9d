package ir

import "fmt"

// InstrKind enumerates the operations of the linear IR.
type InstrKind uint8

const (
	// InstrInvalid is the zero kind; it never appears in a valid unit.
	InstrInvalid InstrKind = iota

	InstrParameter
	InstrLoadParentFramePointer
	InstrLoadStackPointer
	InstrDebugBreak

	InstrInt32Constant
	InstrSmiConstant
	InstrFloat64Constant
	InstrHeapConstant
	InstrExternalConstant
	// InstrCodeForCall names a code object that is only ever used as a call target.
	InstrCodeForCall
	InstrRoot

	InstrLoad
	InstrStore

	InstrBitcastWordToTagged
	InstrChangeInt32ToFloat64
	InstrChangeUint32ToFloat64
	InstrTruncateFloat64ToWord32
	InstrRoundFloat64ToInt32
	InstrFloat64Neg
	InstrFloat64Abs

	InstrInt32Add
	InstrInt32Sub
	InstrInt32Mul
	InstrInt32Div
	InstrInt32AddWithOverflow
	InstrInt32SubWithOverflow
	InstrInt32MulWithOverflow
	InstrWord32Shl
	InstrWord32Shr
	InstrWord32Sar
	InstrWord32Mul
	InstrWord32And
	InstrWord32Or
	InstrWord32Xor
	InstrWord32Equal
	InstrInt32LessThan
	InstrInt32LessThanOrEqual
	InstrUint32LessThan
	InstrUint32LessThanOrEqual
	InstrFloat64Add
	InstrFloat64Sub
	InstrFloat64Mul
	InstrFloat64Div
	InstrFloat64LessThan
	InstrFloat64LessThanOrEqual
	InstrFloat64Equal

	InstrProjection
	InstrPhi
	InstrCall

	// Block markers for switch successors.
	InstrIfValue
	InstrIfDefault

	// Terminators.
	InstrGoto
	InstrBranch
	InstrSwitch
	InstrReturn
	InstrTailCall

	instrKindCount
)

var instrKindNames = [...]string{
	InstrInvalid:                 "invalid",
	InstrParameter:               "parameter",
	InstrLoadParentFramePointer:  "load_parent_frame_pointer",
	InstrLoadStackPointer:        "load_stack_pointer",
	InstrDebugBreak:              "debug_break",
	InstrInt32Constant:           "int32_constant",
	InstrSmiConstant:             "smi_constant",
	InstrFloat64Constant:         "float64_constant",
	InstrHeapConstant:            "heap_constant",
	InstrExternalConstant:        "external_constant",
	InstrCodeForCall:             "code_for_call",
	InstrRoot:                    "root",
	InstrLoad:                    "load",
	InstrStore:                   "store",
	InstrBitcastWordToTagged:     "bitcast_word_to_tagged",
	InstrChangeInt32ToFloat64:    "change_int32_to_float64",
	InstrChangeUint32ToFloat64:   "change_uint32_to_float64",
	InstrTruncateFloat64ToWord32: "truncate_float64_to_word32",
	InstrRoundFloat64ToInt32:     "round_float64_to_int32",
	InstrFloat64Neg:              "float64_neg",
	InstrFloat64Abs:              "float64_abs",
	InstrInt32Add:                "int32_add",
	InstrInt32Sub:                "int32_sub",
	InstrInt32Mul:                "int32_mul",
	InstrInt32Div:                "int32_div",
	InstrInt32AddWithOverflow:    "int32_add_with_overflow",
	InstrInt32SubWithOverflow:    "int32_sub_with_overflow",
	InstrInt32MulWithOverflow:    "int32_mul_with_overflow",
	InstrWord32Shl:               "word32_shl",
	InstrWord32Shr:               "word32_shr",
	InstrWord32Sar:               "word32_sar",
	InstrWord32Mul:               "word32_mul",
	InstrWord32And:               "word32_and",
	InstrWord32Or:                "word32_or",
	InstrWord32Xor:               "word32_xor",
	InstrWord32Equal:             "word32_equal",
	InstrInt32LessThan:           "int32_less_than",
	InstrInt32LessThanOrEqual:    "int32_less_than_or_equal",
	InstrUint32LessThan:          "uint32_less_than",
	InstrUint32LessThanOrEqual:   "uint32_less_than_or_equal",
	InstrFloat64Add:              "float64_add",
	InstrFloat64Sub:              "float64_sub",
	InstrFloat64Mul:              "float64_mul",
	InstrFloat64Div:              "float64_div",
	InstrFloat64LessThan:         "float64_less_than",
	InstrFloat64LessThanOrEqual:  "float64_less_than_or_equal",
	InstrFloat64Equal:            "float64_equal",
	InstrProjection:              "projection",
	InstrPhi:                     "phi",
	InstrCall:                    "call",
	InstrIfValue:                 "if_value",
	InstrIfDefault:               "if_default",
	InstrGoto:                    "goto",
	InstrBranch:                  "branch",
	InstrSwitch:                  "switch",
	InstrReturn:                  "return",
	InstrTailCall:                "tail_call",
}

func (k InstrKind) String() string {
	if k < instrKindCount {
		return instrKindNames[k]
	}
	return fmt.Sprintf("instr(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k InstrKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *InstrKind) UnmarshalText(b []byte) error {
	v, err := lookupName(instrKindNames[:], "instruction kind", string(b))
	if err != nil {
		return err
	}
	*k = InstrKind(v)
	return nil
}

// IsTerminator reports whether the kind ends a block.
func (k InstrKind) IsTerminator() bool {
	switch k {
	case InstrGoto, InstrBranch, InstrSwitch, InstrReturn, InstrTailCall:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the kind reads its operands from Binary.
func (k InstrKind) IsBinary() bool {
	return k >= InstrInt32Add && k <= InstrFloat64Equal
}

// IsUnary reports whether the kind reads its operand from Unary.
func (k InstrKind) IsUnary() bool {
	return k >= InstrBitcastWordToTagged && k <= InstrFloat64Abs
}

// Defines reports whether an instruction of this kind binds its ID.
func (k InstrKind) Defines() bool {
	switch k {
	case InstrInvalid, InstrDebugBreak, InstrStore, InstrIfValue, InstrIfDefault,
		InstrGoto, InstrBranch, InstrSwitch, InstrReturn, InstrTailCall:
		return false
	default:
		return true
	}
}

// Instr is one operation of the linear IR. Kind selects which payload is meaningful.
type Instr struct {
	Kind InstrKind `toml:"kind"`
	// ID is the value id bound by the instruction, when Kind.Defines().
	ID int `toml:"id"`

	Param   ParamInstr      `toml:"param"`
	Const   ConstInstr      `toml:"const"`
	Unary   UnaryInstr      `toml:"unary"`
	Binary  BinaryInstr     `toml:"binary"`
	Load    LoadInstr       `toml:"load"`
	Store   StoreInstr      `toml:"store"`
	Proj    ProjectionInstr `toml:"proj"`
	Phi     PhiInstr        `toml:"phi"`
	Call    CallInstr       `toml:"call"`
	IfValue IfValueInstr    `toml:"if_value"`
	Goto    GotoInstr       `toml:"goto"`
	Branch  BranchInstr     `toml:"branch"`
	Switch  SwitchInstr     `toml:"switch"`
	Return  ReturnInstr     `toml:"return"`
}

// ParamInstr reads an incoming parameter.
type ParamInstr struct {
	Index int `toml:"index"`
}

// ConstInstr carries constant payloads.
// Int is used by Int32Constant, SmiConstant and Root (root index);
// Float by Float64Constant; Magic by HeapConstant, ExternalConstant and CodeForCall.
type ConstInstr struct {
	Int   int64   `toml:"int"`
	Float float64 `toml:"float"`
	Magic int64   `toml:"magic"`
}

// UnaryInstr applies a conversion or unary arithmetic operation.
type UnaryInstr struct {
	Value int `toml:"value"`
}

// BinaryInstr applies a two-operand operation.
type BinaryInstr struct {
	Left  int `toml:"left"`
	Right int `toml:"right"`
}

// LoadInstr reads memory at Base+Offset. Offset is a value id.
type LoadInstr struct {
	Rep      MachineRepresentation `toml:"rep"`
	Semantic MachineSemantic       `toml:"semantic"`
	Base     int                   `toml:"base"`
	Offset   int                   `toml:"offset"`
}

// StoreInstr writes Value to Base+Offset. Offset is a value id.
type StoreInstr struct {
	Rep     MachineRepresentation `toml:"rep"`
	Barrier WriteBarrierKind      `toml:"barrier"`
	Base    int                   `toml:"base"`
	Offset  int                   `toml:"offset"`
	Value   int                   `toml:"value"`
}

// ProjectionInstr extracts element Index from a multi-result value.
type ProjectionInstr struct {
	Value int `toml:"value"`
	Index int `toml:"index"`
}

// PhiInstr merges one operand per predecessor, in predecessor order.
type PhiInstr struct {
	Rep      MachineRepresentation `toml:"rep"`
	Operands []int                 `toml:"operands"`
}

// CallInstr calls Operands[0] with the remaining operands.
// Code marks calls whose target is a code object rather than a raw address.
type CallInstr struct {
	Code       bool           `toml:"code"`
	Descriptor CallDescriptor `toml:"descriptor"`
	Operands   []int          `toml:"operands"`
}

// IfValueInstr marks a switch case block.
type IfValueInstr struct {
	Value int32 `toml:"value"`
}

// GotoInstr jumps unconditionally.
type GotoInstr struct {
	Target int `toml:"target"`
}

// BranchInstr jumps on a word condition.
type BranchInstr struct {
	Cond  int `toml:"cond"`
	True  int `toml:"true"`
	False int `toml:"false"`
}

// SwitchInstr dispatches on Value; the last successor is the default.
type SwitchInstr struct {
	Value      int   `toml:"value"`
	Successors []int `toml:"successors"`
}

// ReturnInstr returns Values and drops PopCount (a value id) stack slots.
type ReturnInstr struct {
	PopCount int   `toml:"pop_count"`
	Values   []int `toml:"values"`
}

// Uses returns the value ids read by the instruction, excluding phi operands.
func (ins *Instr) Uses() []int {
	if ins == nil {
		return nil
	}
	switch {
	case ins.Kind.IsUnary():
		return []int{ins.Unary.Value}
	case ins.Kind.IsBinary():
		return []int{ins.Binary.Left, ins.Binary.Right}
	}
	switch ins.Kind {
	case InstrLoad:
		return []int{ins.Load.Base, ins.Load.Offset}
	case InstrStore:
		return []int{ins.Store.Base, ins.Store.Offset, ins.Store.Value}
	case InstrProjection:
		return []int{ins.Proj.Value}
	case InstrCall, InstrTailCall:
		return ins.Call.Operands
	case InstrBranch:
		return []int{ins.Branch.Cond}
	case InstrSwitch:
		return []int{ins.Switch.Value}
	case InstrReturn:
		uses := make([]int, 0, len(ins.Return.Values)+1)
		uses = append(uses, ins.Return.PopCount)
		return append(uses, ins.Return.Values...)
	default:
		return nil
	}
}

// Successors returns the block ids a terminator transfers control to.
func (ins *Instr) Successors() []int {
	if ins == nil {
		return nil
	}
	switch ins.Kind {
	case InstrGoto:
		return []int{ins.Goto.Target}
	case InstrBranch:
		return []int{ins.Branch.True, ins.Branch.False}
	case InstrSwitch:
		return ins.Switch.Successors
	default:
		return nil
	}
}
