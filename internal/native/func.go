package native

import (
	"fmt"
	"slices"
)

// PatchSite reserves a patchable instruction region identified by ID.
type PatchSite struct {
	ID uint64
	// Bytes is the size of the reserved region; zero for pure markers.
	Bytes int
}

// Value is an SSA value or an instruction producing one.
// Constants, undef and function arguments have no Block.
type Value struct {
	ID    int
	Op    Opcode
	Type  Type
	Args  []*Value
	Block *Block

	// Int holds a constant, an argument index, an extract index,
	// a gc.relocate slot or the number of call arguments of a statepoint.
	Int   int64
	Float float64
	Pred  Predicate
	Cast  CastOp
	// Name is an intrinsic name, inline assembly text or argument name.
	Name string

	// Succs are branch targets; for switches Succs[0] is the default.
	Succs []*Block
	Cases []int64
	// Incoming holds the source block of each phi argument.
	Incoming []*Block

	Site *PatchSite
	Tail bool
}

// IsConstant reports whether v is a compile-time constant.
func (v *Value) IsConstant() bool {
	return v.Op == OpConst || v.Op == OpConstFloat || v.Op == OpUndef
}

// CallArgs returns the call arguments of a statepoint.
func (v *Value) CallArgs() []*Value {
	if v.Op != OpStatepoint {
		return nil
	}
	return v.Args[1 : 1+v.Int]
}

// GCArgs returns the traced values passed to a statepoint.
func (v *Value) GCArgs() []*Value {
	if v.Op != OpStatepoint {
		return nil
	}
	return v.Args[1+v.Int:]
}

// AddIncoming appends one phi input.
func (v *Value) AddIncoming(in *Value, from *Block) {
	if v.Op != OpPhi {
		panic(fmt.Errorf("native: AddIncoming on %s", v.Op))
	}
	v.Args = append(v.Args, in)
	v.Incoming = append(v.Incoming, from)
}

// IncomingFor returns the phi input flowing from b, if any.
func (v *Value) IncomingFor(b *Block) (*Value, bool) {
	i := slices.Index(v.Incoming, b)
	if i < 0 {
		return nil, false
	}
	return v.Args[i], true
}

// AddCase appends a case to a switch terminator.
func (v *Value) AddCase(c int64, dest *Block) {
	if v.Op != OpSwitch {
		panic(fmt.Errorf("native: AddCase on %s", v.Op))
	}
	v.Cases = append(v.Cases, c)
	v.Succs = append(v.Succs, dest)
}

// Block is a straight-line instruction sequence.
type Block struct {
	Name   string
	Index  int
	Instrs []*Value
	Func   *Func
}

// Terminator returns the final instruction if it ends the block.
func (b *Block) Terminator() *Value {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Terminated reports whether the block already ends in a terminator.
func (b *Block) Terminated() bool { return b.Terminator() != nil }

// Successors returns the targets of the terminator.
func (b *Block) Successors() []*Block {
	if t := b.Terminator(); t != nil {
		return t.Succs
	}
	return nil
}

// Phis returns the leading phi instructions.
func (b *Block) Phis() []*Value {
	n := 0
	for n < len(b.Instrs) && b.Instrs[n].Op == OpPhi {
		n++
	}
	return b.Instrs[:n]
}

// Func is one native function under construction.
type Func struct {
	Name     string
	RetType  Type
	Blocks   []*Block
	Prologue *Block
	// Root and FP are the root register and frame pointer arguments.
	Root *Value
	FP   *Value
	// NeedsLR is set when the link register must be preserved without a frame.
	NeedsLR bool

	params map[int]*Value
	nextID int

	cur    *Block
	before *Value
}

// NewFunc creates a function with an empty prologue block.
func NewFunc(name string, ret Type) *Func {
	f := &Func{
		Name:    name,
		RetType: ret,
		params:  make(map[int]*Value),
	}
	f.Root = f.arg("root", Ptr, -1)
	f.FP = f.arg("fp", Ptr, -2)
	f.Prologue = f.AppendBlock("prologue")
	return f
}

func (f *Func) newValue(op Opcode, t Type) *Value {
	v := &Value{ID: f.nextID, Op: op, Type: t}
	f.nextID++
	return v
}

func (f *Func) arg(name string, t Type, idx int64) *Value {
	v := f.newValue(OpArg, t)
	v.Name = name
	v.Int = idx
	return v
}

// Param returns the tagged argument for parameter idx.
func (f *Func) Param(idx int) *Value {
	if v, ok := f.params[idx]; ok {
		return v
	}
	v := f.arg(fmt.Sprintf("p%d", idx), Tagged, int64(idx))
	f.params[idx] = v
	return v
}

// Params returns the parameters created so far in index order.
func (f *Func) Params() []*Value {
	idx := make([]int, 0, len(f.params))
	for i := range f.params {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	out := make([]*Value, len(idx))
	for i, k := range idx {
		out[i] = f.params[k]
	}
	return out
}

// AppendBlock adds a new empty block at the end of the function.
func (f *Func) AppendBlock(name string) *Block {
	b := &Block{Name: name, Index: len(f.Blocks), Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// EnsureLR records that the link register must survive the function body.
func (f *Func) EnsureLR() { f.NeedsLR = true }

// PositionAtEnd moves the cursor to the end of b.
func (f *Func) PositionAtEnd(b *Block) {
	f.cur = b
	f.before = nil
}

// PositionBeforeTerminator moves the cursor in front of b's terminator,
// or to the end of b when it is not terminated yet.
func (f *Func) PositionBeforeTerminator(b *Block) {
	f.cur = b
	f.before = b.Terminator()
}

// InsertBlock returns the block under the cursor.
func (f *Func) InsertBlock() *Block { return f.cur }

// Position captures the cursor so it can be restored.
type Position struct {
	block  *Block
	before *Value
}

// Save returns the current cursor.
func (f *Func) Save() Position { return Position{block: f.cur, before: f.before} }

// Restore moves the cursor back to p.
func (f *Func) Restore(p Position) {
	f.cur = p.block
	f.before = p.before
}

func (f *Func) insert(v *Value) *Value {
	b := f.cur
	if b == nil {
		panic(fmt.Errorf("native: %s built without an insertion block", v.Op))
	}
	v.Block = b
	if f.before != nil {
		i := slices.Index(b.Instrs, f.before)
		if i < 0 {
			panic(fmt.Errorf("native: insertion point left %s", b.Name))
		}
		b.Instrs = slices.Insert(b.Instrs, i, v)
		return v
	}
	if b.Terminated() {
		panic(fmt.Errorf("native: %s appended after terminator of %s", v.Op, b.Name))
	}
	b.Instrs = append(b.Instrs, v)
	return v
}

// Instructions returns the total instruction count.
func (f *Func) Instructions() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}
