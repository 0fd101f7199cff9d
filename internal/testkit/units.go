package testkit

import (
	"tfjit/internal/ir"
)

// UnitBuilder assembles small units for tests. Value ids are allocated
// sequentially starting at 1; blocks appear in the order they are opened.
type UnitBuilder struct {
	u    ir.Unit
	next int
}

// BlockBuilder appends instructions to one block of a UnitBuilder.
type BlockBuilder struct {
	ub  *UnitBuilder
	idx int
}

// NewUnit starts a unit.
func NewUnit(name string, needsFrame bool) *UnitBuilder {
	return &UnitBuilder{u: ir.Unit{Name: name, NeedsFrame: needsFrame}, next: 1}
}

// Unit returns the assembled unit.
func (ub *UnitBuilder) Unit() *ir.Unit { return &ub.u }

// Block opens block id with the given predecessors.
func (ub *UnitBuilder) Block(id int, preds ...int) *BlockBuilder {
	ub.u.Blocks = append(ub.u.Blocks, ir.Block{ID: id, Preds: preds})
	return &BlockBuilder{ub: ub, idx: len(ub.u.Blocks) - 1}
}

// Deferred marks the block as rarely executed.
func (bb *BlockBuilder) Deferred() *BlockBuilder {
	bb.ub.u.Blocks[bb.idx].Deferred = true
	return bb
}

func (bb *BlockBuilder) emit(ins ir.Instr) int {
	if ins.Kind.Defines() {
		ins.ID = bb.ub.next
		bb.ub.next++
	}
	b := &bb.ub.u.Blocks[bb.idx]
	b.Instrs = append(b.Instrs, ins)
	return ins.ID
}

// Param reads parameter idx.
func (bb *BlockBuilder) Param(idx int) int {
	return bb.emit(ir.Instr{Kind: ir.InstrParameter, Param: ir.ParamInstr{Index: idx}})
}

// Int32 materialises a word constant.
func (bb *BlockBuilder) Int32(v int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrInt32Constant, Const: ir.ConstInstr{Int: v}})
}

// Smi materialises a small-integer tagged constant.
func (bb *BlockBuilder) Smi(v int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrSmiConstant, Const: ir.ConstInstr{Int: v}})
}

// Float64 materialises a double constant.
func (bb *BlockBuilder) Float64(v float64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrFloat64Constant, Const: ir.ConstInstr{Float: v}})
}

// Heap loads a heap object constant identified by magic.
func (bb *BlockBuilder) Heap(magic int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrHeapConstant, Const: ir.ConstInstr{Magic: magic}})
}

// External loads an external reference identified by magic.
func (bb *BlockBuilder) External(magic int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrExternalConstant, Const: ir.ConstInstr{Magic: magic}})
}

// Code names a code object used as a call target.
func (bb *BlockBuilder) Code(magic int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrCodeForCall, Const: ir.ConstInstr{Magic: magic}})
}

// Root loads root table entry idx.
func (bb *BlockBuilder) Root(idx int64) int {
	return bb.emit(ir.Instr{Kind: ir.InstrRoot, Const: ir.ConstInstr{Int: idx}})
}

// Unary applies a unary kind.
func (bb *BlockBuilder) Unary(kind ir.InstrKind, v int) int {
	return bb.emit(ir.Instr{Kind: kind, Unary: ir.UnaryInstr{Value: v}})
}

// Binary applies a binary kind.
func (bb *BlockBuilder) Binary(kind ir.InstrKind, l, r int) int {
	return bb.emit(ir.Instr{Kind: kind, Binary: ir.BinaryInstr{Left: l, Right: r}})
}

// Projection extracts element idx of a pair.
func (bb *BlockBuilder) Projection(v, idx int) int {
	return bb.emit(ir.Instr{Kind: ir.InstrProjection, Proj: ir.ProjectionInstr{Value: v, Index: idx}})
}

// Load reads base+off.
func (bb *BlockBuilder) Load(rep ir.MachineRepresentation, sem ir.MachineSemantic, base, off int) int {
	return bb.emit(ir.Instr{Kind: ir.InstrLoad, Load: ir.LoadInstr{Rep: rep, Semantic: sem, Base: base, Offset: off}})
}

// Store writes val to base+off.
func (bb *BlockBuilder) Store(rep ir.MachineRepresentation, barrier ir.WriteBarrierKind, base, off, val int) {
	bb.emit(ir.Instr{Kind: ir.InstrStore, Store: ir.StoreInstr{Rep: rep, Barrier: barrier, Base: base, Offset: off, Value: val}})
}

// Phi merges one operand per predecessor.
func (bb *BlockBuilder) Phi(rep ir.MachineRepresentation, ops ...int) int {
	return bb.emit(ir.Instr{Kind: ir.InstrPhi, Phi: ir.PhiInstr{Rep: rep, Operands: ops}})
}

// Call calls ops[0] with ops[1:].
func (bb *BlockBuilder) Call(code bool, desc ir.CallDescriptor, ops ...int) int {
	return bb.emit(ir.Instr{Kind: ir.InstrCall, Call: ir.CallInstr{Code: code, Descriptor: desc, Operands: ops}})
}

// TailCall ends the block with a tail call.
func (bb *BlockBuilder) TailCall(code bool, desc ir.CallDescriptor, ops ...int) {
	bb.emit(ir.Instr{Kind: ir.InstrTailCall, Call: ir.CallInstr{Code: code, Descriptor: desc, Operands: ops}})
}

// IfValue marks a switch case block.
func (bb *BlockBuilder) IfValue(v int32) {
	bb.emit(ir.Instr{Kind: ir.InstrIfValue, IfValue: ir.IfValueInstr{Value: v}})
}

// IfDefault marks the switch default block.
func (bb *BlockBuilder) IfDefault() {
	bb.emit(ir.Instr{Kind: ir.InstrIfDefault})
}

// Goto ends the block with a jump.
func (bb *BlockBuilder) Goto(target int) {
	bb.emit(ir.Instr{Kind: ir.InstrGoto, Goto: ir.GotoInstr{Target: target}})
}

// Branch ends the block with a conditional jump.
func (bb *BlockBuilder) Branch(cond, t, f int) {
	bb.emit(ir.Instr{Kind: ir.InstrBranch, Branch: ir.BranchInstr{Cond: cond, True: t, False: f}})
}

// Switch ends the block with a multiway jump; the last successor is the default.
func (bb *BlockBuilder) Switch(v int, succs ...int) {
	bb.emit(ir.Instr{Kind: ir.InstrSwitch, Switch: ir.SwitchInstr{Value: v, Successors: succs}})
}

// Return ends the block returning v and dropping pop slots.
func (bb *BlockBuilder) Return(pop, v int) {
	bb.emit(ir.Instr{Kind: ir.InstrReturn, Return: ir.ReturnInstr{PopCount: pop, Values: []int{v}}})
}
