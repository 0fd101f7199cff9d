// Package lower is the second pass over a unit: it replays the linear IR
// against the CFG built by liveness analysis and emits a native.Func,
// reserving patch points for calls, store barriers and returns.
package lower

import (
	"fmt"

	"fortio.org/safecast"

	"tfjit/internal/cfg"
	"tfjit/internal/config"
	"tfjit/internal/constpool"
	"tfjit/internal/ir"
	"tfjit/internal/native"
	"tfjit/internal/patchpoint"
)

type blockStatus uint8

const (
	statusNotStarted blockStatus = iota
	statusStarted
	statusEnded
)

func (s blockStatus) String() string {
	switch s {
	case statusNotStarted:
		return "not started"
	case statusStarted:
		return "started"
	default:
		return "ended"
	}
}

// deferredPhi is a phi input that could not be filled because its
// predecessor had not been built yet.
type deferredPhi struct {
	pred  *cfg.Block
	value int
	phi   *native.Value
}

type blockState struct {
	status blockStatus
	values map[int]*native.Value
	native *native.Block
	// continuation is the native block that currently ends the IR block.
	// Store barriers split blocks, so it can differ from native.
	continuation *native.Block
	deferred     []deferredPhi
	queued       bool
}

// Builder implements ir.Visitor.
type Builder struct {
	store   *cfg.Store
	target  config.Target
	fn      *native.Func
	patches *patchpoint.Table
	consts  *constpool.Recorder

	states   *cfg.Table[blockState]
	current  *cfg.Block
	worklist []*cfg.Block

	// codeUses maps CodeForCall ids to the callee placeholder.
	codeUses map[int]int64
	// intConsts remembers Int32Constant values for constant pop counts.
	intConsts map[int]int64
	splits    int
}

// NewBuilder creates a builder for the analyzed store.
func NewBuilder(name string, store *cfg.Store, target config.Target, consts *constpool.Recorder) *Builder {
	if consts == nil {
		consts = constpool.NewRecorder()
	}
	return &Builder{
		store:     store,
		target:    target,
		fn:        native.NewFunc(name, native.Tagged),
		patches:   patchpoint.NewTable(),
		consts:    consts,
		states:    cfg.NewTable[blockState](),
		codeUses:  make(map[int]int64),
		intConsts: make(map[int]int64),
	}
}

// Func returns the function being built.
func (b *Builder) Func() *native.Func { return b.fn }

// Patches returns the patch-point metadata registered so far.
func (b *Builder) Patches() *patchpoint.Table { return b.patches }

// Output is the result of lowering one unit.
type Output struct {
	Func    *native.Func
	Patches *patchpoint.Table
	Consts  *constpool.Recorder
}

// Lower replays u over the CFG in store and returns the native function.
func Lower(u *ir.Unit, store *cfg.Store, target config.Target, consts *constpool.Recorder) (*Output, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name, err)
	}
	if len(store.RPO()) == 0 {
		return nil, fmt.Errorf("unit %s: store has no visited blocks", u.Name)
	}
	if missing := store.Unvisited(); len(missing) > 0 {
		return nil, fmt.Errorf("unit %s: blocks %v referenced but never visited", u.Name, missing)
	}
	b := NewBuilder(u.Name, store, target, consts)
	ir.Replay(u, b)
	b.End()
	return &Output{Func: b.fn, Patches: b.patches, Consts: b.consts}, nil
}

func (b *Builder) state(blk *cfg.Block) *blockState {
	return b.states.Ensure(blk)
}

func (b *Builder) ensureNative(blk *cfg.Block) *blockState {
	st := b.state(blk)
	if st.native == nil {
		st.native = b.fn.AppendBlock(fmt.Sprintf("B%d", blk.ID))
		st.continuation = st.native
	}
	return st
}

func (b *Builder) currentState() *blockState {
	if b.current == nil {
		panic(fmt.Errorf("lower: instruction outside of a block"))
	}
	return b.state(b.current)
}

func (b *Builder) value(id int) *native.Value {
	st := b.currentState()
	v, ok := st.values[id]
	if !ok {
		panic(fmt.Errorf("lower: B%d reads unbound value %d", b.current.ID, id))
	}
	return v
}

func (b *Builder) bind(id int, v *native.Value) {
	b.currentState().values[id] = v
}

// VisitBlock starts building blk and merges the bindings of its predecessors.
func (b *Builder) VisitBlock(id int, _ bool, _ []int) {
	if b.current != nil {
		panic(fmt.Errorf("lower: B%d started before B%d ended", id, b.current.ID))
	}
	blk := b.store.MustFind(cfg.BlockID(id))
	st := b.ensureNative(blk)
	if st.status != statusNotStarted {
		panic(fmt.Errorf("lower: B%d is already %s", id, st.status))
	}
	st.status = statusStarted
	st.values = make(map[int]*native.Value, len(blk.LiveIns))
	b.current = blk
	b.fn.PositionAtEnd(st.native)
	b.mergePredecessors(blk, st)
}

func (b *Builder) mergePredecessors(blk *cfg.Block, st *blockState) {
	preds := blk.Predecessors()
	switch len(preds) {
	case 0:
		return
	case 1:
		ps := b.state(preds[0])
		if ps.status != statusEnded {
			panic(fmt.Errorf("lower: B%d entered from unfinished B%d", blk.ID, preds[0].ID))
		}
		for _, live := range blk.LiveIns {
			v, ok := ps.values[live]
			if !ok {
				panic(fmt.Errorf("lower: live-in %d of B%d unbound in B%d", live, blk.ID, preds[0].ID))
			}
			st.values[live] = v
		}
		return
	}

	var ref *cfg.Block
	for _, p := range preds {
		if b.state(p).status == statusEnded {
			ref = p
			break
		}
	}
	if ref == nil {
		panic(fmt.Errorf("lower: B%d has no finished predecessor", blk.ID))
	}
	refState := b.state(ref)

	for _, live := range blk.LiveIns {
		refValue, ok := refState.values[live]
		if !ok {
			panic(fmt.Errorf("lower: live-in %d of B%d unbound in B%d", live, blk.ID, ref.ID))
		}
		// Only tagged values get a phi; raw values are assumed identical on every edge.
		if refValue.Type != native.Tagged {
			st.values[live] = refValue
			continue
		}
		phi := b.fn.Phi(refValue.Type)
		st.values[live] = phi
		for _, p := range preds {
			b.addPhiInput(blk, st, phi, p, live)
		}
	}
}

// addPhiInput fills the input of phi flowing from pred, or records it for
// End when pred has not been built yet.
func (b *Builder) addPhiInput(blk *cfg.Block, st *blockState, phi *native.Value, pred *cfg.Block, value int) {
	ps := b.state(pred)
	if ps.status != statusEnded {
		st.deferred = append(st.deferred, deferredPhi{pred: pred, value: value, phi: phi})
		if !st.queued {
			st.queued = true
			b.worklist = append(b.worklist, blk)
		}
		return
	}
	in, ok := ps.values[value]
	if !ok {
		panic(fmt.Errorf("lower: phi input %d unbound in B%d", value, pred.ID))
	}
	phi.AddIncoming(b.ensurePhiInput(pred, in, phi.Type), ps.continuation)
}

// processWorklist fills every deferred phi input. All blocks are ended by now.
func (b *Builder) processWorklist() {
	for _, blk := range b.worklist {
		st := b.state(blk)
		for _, d := range st.deferred {
			ps := b.state(d.pred)
			if ps.status != statusEnded {
				panic(fmt.Errorf("lower: B%d never finished; phi input for B%d missing", d.pred.ID, blk.ID))
			}
			in, ok := ps.values[d.value]
			if !ok {
				panic(fmt.Errorf("lower: phi input %d unbound in B%d", d.value, d.pred.ID))
			}
			d.phi.AddIncoming(b.ensurePhiInput(d.pred, in, d.phi.Type), ps.continuation)
		}
		st.deferred = nil
		st.queued = false
	}
	b.worklist = nil
}

// endCurrentBlock closes the current block. Blocks without successors that
// did not return get an unreachable terminator.
func (b *Builder) endCurrentBlock() {
	st := b.currentState()
	if st.status != statusStarted {
		panic(fmt.Errorf("lower: ending B%d which is %s", b.current.ID, st.status))
	}
	if len(b.current.Successors()) == 0 && !st.continuation.Terminated() {
		b.fn.PositionAtEnd(st.continuation)
		b.fn.Unreachable()
	}
	st.status = statusEnded
	b.current = nil
}

// End finishes the function: deferred phis are filled and the prologue
// jumps to the first visited block. The builder's side tables are dropped.
func (b *Builder) End() {
	if b.current != nil {
		b.endCurrentBlock()
	}
	b.processWorklist()
	rpo := b.store.RPO()
	if len(rpo) == 0 {
		panic(fmt.Errorf("lower: %s has no blocks", b.fn.Name))
	}
	entry, ok := b.states.Get(rpo[0])
	if !ok || entry.native == nil {
		panic(fmt.Errorf("lower: entry B%d was never built", rpo[0].ID))
	}
	b.fn.PositionAtEnd(b.fn.Prologue)
	b.fn.Br(entry.native)
	b.states.Reset()
	clear(b.codeUses)
	clear(b.intConsts)
}

// VisitInstr lowers one instruction into the current block.
func (b *Builder) VisitInstr(ins *ir.Instr) {
	switch {
	case ins.Kind.IsUnary():
		b.bind(ins.ID, b.lowerUnary(ins.Kind, b.value(ins.Unary.Value)))
		return
	case ins.Kind.IsBinary():
		b.bind(ins.ID, b.lowerBinary(ins.Kind, b.value(ins.Binary.Left), b.value(ins.Binary.Right)))
		return
	}

	switch ins.Kind {
	case ir.InstrParameter:
		b.bind(ins.ID, b.fn.Param(ins.Param.Index))
	case ir.InstrLoadParentFramePointer:
		b.visitLoadParentFramePointer(ins)
	case ir.InstrLoadStackPointer:
		b.bind(ins.ID, b.fn.Intrinsic("llvm.stacksave", native.Ptr))
	case ir.InstrDebugBreak:
		b.fn.InlineAsm("udf #0", native.Void)
	case ir.InstrInt32Constant, ir.InstrSmiConstant, ir.InstrFloat64Constant,
		ir.InstrHeapConstant, ir.InstrExternalConstant, ir.InstrCodeForCall, ir.InstrRoot:
		b.visitConstant(ins)
	case ir.InstrLoad:
		b.visitLoad(ins)
	case ir.InstrStore:
		b.visitStore(ins)
	case ir.InstrProjection:
		b.visitProjection(ins)
	case ir.InstrPhi:
		b.visitPhi(ins)
	case ir.InstrCall:
		b.visitCall(ins, false)
	case ir.InstrIfValue:
		b.visitIfValue(ins)
	case ir.InstrIfDefault:
		// The switch already targets the default block.
	case ir.InstrGoto:
		b.visitGoto(ins)
	case ir.InstrBranch:
		b.visitBranch(ins)
	case ir.InstrSwitch:
		b.visitSwitch(ins)
	case ir.InstrReturn:
		b.visitReturn(ins)
	case ir.InstrTailCall:
		b.visitCall(ins, true)
		b.fn.Unreachable()
		b.endCurrentBlock()
	default:
		panic(fmt.Errorf("lower: unsupported instruction %s", ins.Kind))
	}
}

func (b *Builder) visitPhi(ins *ir.Instr) {
	blk := b.current
	st := b.currentState()
	preds := blk.Predecessors()
	if len(preds) != len(ins.Phi.Operands) {
		panic(fmt.Errorf("lower: B%d phi %d has %d operands for %d predecessors",
			blk.ID, ins.ID, len(ins.Phi.Operands), len(preds)))
	}
	phi := b.fn.Phi(typeOfRep(ins.Phi.Rep))
	for i, op := range ins.Phi.Operands {
		b.addPhiInput(blk, st, phi, preds[i], op)
	}
	b.bind(ins.ID, phi)
}

func (b *Builder) visitGoto(ins *ir.Instr) {
	succ := b.ensureNative(b.store.MustFind(cfg.BlockID(ins.Goto.Target)))
	b.fn.Br(succ.native)
	b.endCurrentBlock()
}

func (b *Builder) visitBranch(ins *ir.Instr) {
	cond := b.value(ins.Branch.Cond)
	switch {
	case cond.Type == native.I1:
	case cond.Type.IsInteger():
		cond = b.fn.CastTo(native.CastTrunc, cond, native.I1)
	default:
		panic(fmt.Errorf("lower: B%d branches on %s", b.current.ID, cond.Type))
	}

	tb := b.store.MustFind(cfg.BlockID(ins.Branch.True))
	fb := b.store.MustFind(cfg.BlockID(ins.Branch.False))
	// Steer the fast path away from deferred blocks.
	expected := int64(-1)
	switch {
	case tb.Deferred && !fb.Deferred:
		expected = 0
	case fb.Deferred && !tb.Deferred:
		expected = 1
	}
	if expected >= 0 {
		cond = b.fn.Intrinsic("llvm.expect.i1", native.I1, cond, b.fn.ConstInt(native.I1, expected))
	}
	b.fn.CondBr(cond, b.ensureNative(tb).native, b.ensureNative(fb).native)
	b.endCurrentBlock()
}

func (b *Builder) visitSwitch(ins *ir.Instr) {
	x := b.ensureWord32(b.value(ins.Switch.Value))
	succs := ins.Switch.Successors
	def := b.ensureNative(b.store.MustFind(cfg.BlockID(succs[len(succs)-1])))
	for _, s := range succs[:len(succs)-1] {
		b.ensureNative(b.store.MustFind(cfg.BlockID(s)))
	}
	b.fn.Switch(x, def.native, len(succs)-1)
	b.endCurrentBlock()
}

// visitIfValue adds the current block as a case of its predecessor's switch.
func (b *Builder) visitIfValue(ins *ir.Instr) {
	preds := b.current.Predecessors()
	if len(preds) != 1 {
		panic(fmt.Errorf("lower: B%d case block has %d predecessors", b.current.ID, len(preds)))
	}
	ps := b.state(preds[0])
	if ps.status != statusEnded {
		panic(fmt.Errorf("lower: B%d case of unfinished B%d", b.current.ID, preds[0].ID))
	}
	sw := ps.continuation.Terminator()
	if sw == nil || sw.Op != native.OpSwitch {
		panic(fmt.Errorf("lower: B%d does not end in a switch", preds[0].ID))
	}
	sw.AddCase(int64(ins.IfValue.Value), b.currentState().native)
}

func (b *Builder) visitReturn(ins *ir.Instr) {
	val := b.value(ins.Return.Values[0])
	switch {
	case val.Type == native.Tagged:
	case val.Type.IsInteger():
		val = b.fn.CastTo(native.CastIntToPtr, b.ensureWord32(val), native.Tagged)
	default:
		panic(fmt.Errorf("lower: B%d returns %s", b.current.ID, val.Type))
	}
	pop := b.ensureWord32(b.value(ins.Return.PopCount))

	info := patchpoint.Info{Kind: patchpoint.KindReturn, ReservedWords: 2}
	if n, ok := b.intConsts[ins.Return.PopCount]; ok {
		count, err := safecast.Conv[int](n)
		if err != nil {
			panic(fmt.Errorf("lower: B%d pop count: %w", b.current.ID, err))
		}
		info.Return = patchpoint.ReturnInfo{PopCountIsConstant: true, PopCount: count}
	}
	id := b.patches.NextID()
	b.patches.Register(id, info)
	b.fn.Ret(native.PatchSite{ID: uint64(id), Bytes: info.ReservedBytes()}, val, pop)
	b.endCurrentBlock()
}
