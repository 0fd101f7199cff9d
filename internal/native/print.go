package native

import (
	"fmt"
	"strings"
)

// String renders the function in an LLVM-like textual form.
func (f *Func) String() string {
	var buf strings.Builder
	params := []string{"ptr %root", "ptr %fp"}
	for _, p := range f.Params() {
		params = append(params, fmt.Sprintf("%s %%%s", p.Type, p.Name))
	}
	fmt.Fprintf(&buf, "define %s @%s(%s)", f.RetType, f.Name, strings.Join(params, ", "))
	if f.NeedsLR {
		buf.WriteString(" \"keep-lr\"")
	}
	buf.WriteString(" {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(&buf, "%s:\n", b.Name)
		for _, v := range b.Instrs {
			buf.WriteString("  ")
			writeInstr(&buf, v)
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

func ref(v *Value) string {
	switch v.Op {
	case OpArg:
		return "%" + v.Name
	case OpConst:
		if v.Type.IsPointer() {
			if v.Int == 0 {
				return "null"
			}
			return fmt.Sprintf("inttoptr (i32 %d)", v.Int)
		}
		return fmt.Sprintf("%d", v.Int)
	case OpConstFloat:
		return fmt.Sprintf("0x%016X", float64Bits(v.Float))
	case OpUndef:
		return "undef"
	default:
		return fmt.Sprintf("%%v%d", v.ID)
	}
}

func typedRef(v *Value) string {
	return v.Type.String() + " " + ref(v)
}

func typedRefs(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = typedRef(v)
	}
	return strings.Join(parts, ", ")
}

func writeInstr(buf *strings.Builder, v *Value) {
	if v.Type != Void {
		fmt.Fprintf(buf, "%s = ", ref(v))
	}
	switch v.Op {
	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr,
		OpFAdd, OpFSub, OpFMul, OpFDiv:
		fmt.Fprintf(buf, "%s %s, %s", v.Op, typedRef(v.Args[0]), ref(v.Args[1]))
	case OpFNeg:
		fmt.Fprintf(buf, "fneg %s", typedRef(v.Args[0]))
	case OpICmp, OpFCmp:
		fmt.Fprintf(buf, "%s %s %s, %s", v.Op, v.Pred, typedRef(v.Args[0]), ref(v.Args[1]))
	case OpCast:
		fmt.Fprintf(buf, "%s %s to %s", v.Cast, typedRef(v.Args[0]), v.Type)
	case OpGEP:
		fmt.Fprintf(buf, "getelementptr i8, %s, %s", typedRef(v.Args[0]), typedRef(v.Args[1]))
	case OpLoad:
		fmt.Fprintf(buf, "load %s, %s", v.Type, typedRef(v.Args[0]))
	case OpStore:
		fmt.Fprintf(buf, "store %s, %s", typedRef(v.Args[0]), typedRef(v.Args[1]))
	case OpPhi:
		fmt.Fprintf(buf, "phi %s ", v.Type)
		for i, in := range v.Args {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(buf, "[ %s, %%%s ]", ref(in), v.Incoming[i].Name)
		}
	case OpExtract:
		fmt.Fprintf(buf, "extractvalue %s, %d", typedRef(v.Args[0]), v.Int)
	case OpIntrinsic:
		fmt.Fprintf(buf, "call %s @%s(%s)", v.Type, v.Name, typedRefs(v.Args))
	case OpInlineAsm:
		fmt.Fprintf(buf, "call %s asm sideeffect %q(%s)", v.Type, v.Name, typedRefs(v.Args))
	case OpLoadMagic:
		fmt.Fprintf(buf, "load.magic %s 0x%X", v.Type, v.Int)
	case OpStatepoint:
		fmt.Fprintf(buf, "call token @llvm.experimental.gc.statepoint(i64 %d, i32 %d, %s, i32 %d, i32 %d",
			v.Site.ID, v.Site.Bytes, typedRef(v.Args[0]), v.Int, boolFlag(v.Tail))
		if args := v.CallArgs(); len(args) > 0 {
			fmt.Fprintf(buf, ", %s", typedRefs(args))
		}
		fmt.Fprintf(buf, ") [ \"gc-live\"(%s) ]", typedRefs(v.GCArgs()))
	case OpGCRelocate:
		fmt.Fprintf(buf, "call %s @llvm.experimental.gc.relocate(token %s, i32 %d, i32 %d)",
			v.Type, ref(v.Args[0]), v.Int, v.Int)
	case OpGCResult:
		fmt.Fprintf(buf, "call %s @llvm.experimental.gc.result(token %s)", v.Type, ref(v.Args[0]))
	case OpPatchpoint:
		fmt.Fprintf(buf, "call void @llvm.experimental.patchpoint.void(i64 %d, i32 %d, ptr null, i32 %d",
			v.Site.ID, v.Site.Bytes, len(v.Args))
		if len(v.Args) > 0 {
			fmt.Fprintf(buf, ", %s", typedRefs(v.Args))
		}
		buf.WriteByte(')')
	case OpStackMap:
		fmt.Fprintf(buf, "call void @llvm.experimental.stackmap(i64 %d, i32 %d", v.Site.ID, v.Site.Bytes)
		if len(v.Args) > 0 {
			fmt.Fprintf(buf, ", %s", typedRefs(v.Args))
		}
		buf.WriteByte(')')
	case OpBr:
		fmt.Fprintf(buf, "br label %%%s", v.Succs[0].Name)
	case OpCondBr:
		fmt.Fprintf(buf, "br i1 %s, label %%%s, label %%%s", ref(v.Args[0]), v.Succs[0].Name, v.Succs[1].Name)
	case OpSwitch:
		fmt.Fprintf(buf, "switch %s, label %%%s [", typedRef(v.Args[0]), v.Succs[0].Name)
		for i, c := range v.Cases {
			fmt.Fprintf(buf, " %s %d, label %%%s", v.Args[0].Type, c, v.Succs[i+1].Name)
		}
		buf.WriteString(" ]")
	case OpRet:
		fmt.Fprintf(buf, "ret %s, pop %s ; patch %d", typedRef(v.Args[0]), typedRef(v.Args[1]), v.Site.ID)
	case OpUnreachable:
		buf.WriteString("unreachable")
	default:
		fmt.Fprintf(buf, "%s", v.Op)
	}
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
