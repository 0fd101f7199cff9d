package ir

// Block is one basic block of a unit, in visitation order.
type Block struct {
	ID       int     `toml:"id"`
	Deferred bool    `toml:"deferred"`
	Preds    []int   `toml:"preds"`
	Instrs   []Instr `toml:"instrs"`
}

// Unit is one compilation unit: a single function in linear IR.
type Unit struct {
	Name string `toml:"name"`
	// NeedsFrame is set when the function keeps a frame pointer.
	NeedsFrame bool    `toml:"needs_frame"`
	Blocks     []Block `toml:"blocks"`
}

// Terminator returns the last instruction of the block, or nil.
func (b *Block) Terminator() *Instr {
	if b == nil || len(b.Instrs) == 0 {
		return nil
	}
	last := &b.Instrs[len(b.Instrs)-1]
	if !last.Kind.IsTerminator() {
		return nil
	}
	return last
}

// Visitor receives a unit as an ordered stream of callbacks.
// Every block is announced with its full predecessor list before any of its instructions.
type Visitor interface {
	VisitBlock(id int, deferred bool, preds []int)
	VisitInstr(ins *Instr)
}

// Replay drives v over the unit in visitation order.
func Replay(u *Unit, v Visitor) {
	if u == nil {
		return
	}
	for i := range u.Blocks {
		b := &u.Blocks[i]
		v.VisitBlock(b.ID, b.Deferred, b.Preds)
		for j := range b.Instrs {
			v.VisitInstr(&b.Instrs[j])
		}
	}
}
