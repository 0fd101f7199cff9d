package lower

import (
	"fmt"

	"tfjit/internal/ir"
	"tfjit/internal/native"
	"tfjit/internal/patchpoint"
)

// operandResolver assigns call operands to the fixed register file.
// Register-class operands keep their assigned register; stack-class
// operands and the call target take the lowest free registers. Whatever
// does not fit is appended after the register file.
type operandResolver struct {
	regs     []*native.Value
	taken    []bool
	overflow []*native.Value
	// locations holds the target register followed by one entry per
	// stack-class operand, NoRegister for overflowed ones.
	locations []int
}

func newOperandResolver(b *Builder) *operandResolver {
	n := b.target.RegisterParameterCount
	r := &operandResolver{
		regs:  make([]*native.Value, n),
		taken: make([]bool, n),
	}
	for i := range r.regs {
		r.regs[i] = b.fn.Undef(native.IntPtr)
	}
	r.set(b.target.RootRegister, b.fn.Root)
	r.set(b.target.FPRegister, b.fn.FP)
	return r
}

func (r *operandResolver) set(reg int, v *native.Value) {
	if reg < 0 || reg >= len(r.regs) {
		panic(fmt.Errorf("lower: register %d outside the register file", reg))
	}
	if r.taken[reg] {
		panic(fmt.Errorf("lower: register %d assigned twice", reg))
	}
	r.regs[reg] = v
	r.taken[reg] = true
}

func (r *operandResolver) nextFree() int {
	for i, t := range r.taken {
		if !t {
			return i
		}
	}
	return patchpoint.NoRegister
}

// place puts v into the next free register, or past the register file.
func (r *operandResolver) place(v *native.Value) int {
	reg := r.nextFree()
	if reg == patchpoint.NoRegister {
		r.overflow = append(r.overflow, v)
		return reg
	}
	r.set(reg, v)
	return reg
}

func (r *operandResolver) args() []*native.Value {
	out := make([]*native.Value, 0, len(r.regs)+len(r.overflow))
	out = append(out, r.regs...)
	return append(out, r.overflow...)
}

// visitCall lowers a call or tail call into a statepoint.
func (b *Builder) visitCall(ins *ir.Instr, tail bool) {
	call := ins.Call
	desc := call.Descriptor
	extra := 0

	var target *native.Value
	var codeMagic int64
	magic, inTable := b.codeUses[call.Operands[0]]
	relocated := call.Code && inTable
	switch {
	case relocated:
		// Loaded from the root table by the emitted call sequence.
		target = b.fn.Undef(native.IntPtr)
		codeMagic = magic
		extra++
	case call.Code:
		code := b.value(call.Operands[0])
		target = b.fn.GEP(b.ensurePointer(code), b.fn.ConstInt(native.IntPtr, int64(b.target.CodeEntryOffset)))
	default:
		target = b.value(call.Operands[0])
	}

	if tail {
		if b.store.NeedsFrame() {
			extra += 2
		} else {
			b.fn.EnsureLR()
		}
		if desc.PopCount > 0 {
			extra++
		}
	}

	r := newOperandResolver(b)
	var stackOps []*native.Value
	for i, reg := range desc.RegistersForOperands {
		v := b.value(call.Operands[i+1])
		if reg < 0 {
			stackOps = append(stackOps, v)
			continue
		}
		r.set(reg, v)
	}
	if relocated {
		r.locations = append(r.locations, patchpoint.NoRegister)
	} else {
		r.locations = append(r.locations, r.place(target))
	}
	for _, v := range stackOps {
		r.locations = append(r.locations, r.place(v))
	}

	var live []int
	var gcArgs []*native.Value
	if !tail {
		live, gcArgs = b.gcRoots(ins.ID)
	}

	words := len(r.locations) + extra
	id := b.patches.NextID()
	kind := patchpoint.KindCall
	if tail {
		kind = patchpoint.KindTailCall
	}
	info := patchpoint.Info{
		Kind:          kind,
		ReservedWords: words,
		Call: patchpoint.CallInfo{
			Locations:     r.locations,
			CodeMagic:     codeMagic,
			FrameTeardown: tail && b.store.NeedsFrame(),
		},
	}
	if tail {
		info.Call.PopCount = desc.PopCount
	}
	b.patches.Register(id, info)

	site := native.PatchSite{ID: uint64(id), Bytes: info.ReservedBytes()}
	tok := b.fn.Statepoint(site, b.fn.ConstInt(native.Ptr, 0), r.args(), gcArgs, tail)
	if tail {
		return
	}
	for i, v := range live {
		b.bind(v, b.fn.GCRelocate(tok, i))
	}
	ret := native.Tagged
	if desc.ReturnCount == 2 {
		ret = native.TaggedPair
	}
	b.bind(ins.ID, b.fn.GCResult(tok, ret))
}

// gcRoots returns the tagged values live into the block following the
// call, excluding the call result. Values not yet bound are defined after
// the call and need no relocation. A validated unit ends the call's block
// with a goto right after the call, so the successor's live-ins cover every
// later read.
func (b *Builder) gcRoots(result int) ([]int, []*native.Value) {
	succs := b.current.Successors()
	if len(succs) != 1 {
		panic(fmt.Errorf("lower: B%d: call block has %d successors, want 1", b.current.ID, len(succs)))
	}
	st := b.currentState()
	var ids []int
	var vals []*native.Value
	for _, live := range succs[0].LiveIns {
		if live == result {
			continue
		}
		v, ok := st.values[live]
		if !ok || v.Type != native.Tagged {
			continue
		}
		ids = append(ids, live)
		vals = append(vals, v)
	}
	return ids, vals
}
