// Package liveness builds the CFG of a unit and computes, for every block,
// the set of values that are live on entry.
package liveness

import (
	"fmt"
	"slices"

	"tfjit/internal/cfg"
	"tfjit/internal/ir"
)

// PhiDesc records that a phi in its block receives Value when entered from From.
type PhiDesc struct {
	From  *cfg.Block
	Value int
}

type blockInfo struct {
	defines valueSet
	// references are values read before being defined in the block.
	references valueSet
	phis       []PhiDesc
	ended      bool
}

// Analyzer is the first pass over a unit. It implements ir.Visitor.
type Analyzer struct {
	store   *cfg.Store
	info    *cfg.Table[blockInfo]
	current *cfg.Block
}

// NewAnalyzer creates an analyzer that fills store.
func NewAnalyzer(store *cfg.Store) *Analyzer {
	return &Analyzer{
		store: store,
		info:  cfg.NewTable[blockInfo](),
	}
}

// Analyze validates u, builds its CFG and computes live-in sets.
func Analyze(u *ir.Unit) (*cfg.Store, error) {
	if err := ir.Validate(u); err != nil {
		return nil, err
	}
	store := cfg.NewStore(u.NeedsFrame)
	a := NewAnalyzer(store)
	ir.Replay(u, a)
	a.Compute()
	if err := store.CheckEdges(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.Name, err)
	}
	return store, nil
}

// VisitBlock starts a new current block.
func (a *Analyzer) VisitBlock(id int, deferred bool, preds []int) {
	if a.current != nil {
		a.endBlock()
	}
	b := a.store.EnsureBlock(cfg.BlockID(id))
	b.Deferred = deferred
	a.store.Visit(b)
	for _, p := range preds {
		a.store.AddPredecessor(b, a.store.EnsureBlock(cfg.BlockID(p)))
	}
	a.info.Ensure(b)
	a.current = b
}

// VisitInstr records the definitions, references and edges of one instruction.
func (a *Analyzer) VisitInstr(ins *ir.Instr) {
	if a.current == nil {
		panic(fmt.Errorf("liveness: %s outside of a block", ins.Kind))
	}
	info := a.info.Ensure(a.current)

	if ins.Kind == ir.InstrPhi {
		preds := a.current.Predecessors()
		if len(preds) != len(ins.Phi.Operands) {
			panic(fmt.Errorf("liveness: B%d phi %d has %d operands for %d predecessors",
				a.current.ID, ins.ID, len(ins.Phi.Operands), len(preds)))
		}
		for i, op := range ins.Phi.Operands {
			info.phis = append(info.phis, PhiDesc{From: preds[i], Value: op})
		}
		a.define(info, ins.ID)
		return
	}

	for _, use := range ins.Uses() {
		a.reference(info, use)
	}
	if ins.Kind.Defines() {
		a.define(info, ins.ID)
	}

	if !ins.Kind.IsTerminator() {
		return
	}
	for _, succ := range ins.Successors() {
		a.store.AddSuccessor(a.current, a.store.EnsureBlock(cfg.BlockID(succ)))
	}
	a.endBlock()
}

func (a *Analyzer) define(info *blockInfo, id int) {
	if info.defines == nil {
		info.defines = valueSet{}
	}
	info.defines.add(id)
}

func (a *Analyzer) reference(info *blockInfo, id int) {
	if info.defines.has(id) {
		return
	}
	if info.references == nil {
		info.references = valueSet{}
	}
	info.references.add(id)
}

// endBlock turns the block's references into its initial live-in candidates.
func (a *Analyzer) endBlock() {
	b := a.current
	a.current = nil
	info := a.info.Ensure(b)
	if info.ended {
		return
	}
	info.ended = true
	b.LiveIns = info.references.sorted()
}

// Compute iterates live-in sets to a fixpoint. Running it again on a
// converged store changes nothing.
func (a *Analyzer) Compute() {
	if a.current != nil {
		a.endBlock()
	}

	rpo := a.store.RPO()
	work := make([]*cfg.Block, 0, len(rpo))
	queued := make(map[*cfg.Block]bool, len(rpo))
	// Seeding from the end converges faster for a backward problem.
	for i := len(rpo) - 1; i >= 0; i-- {
		work = append(work, rpo[i])
		queued[rpo[i]] = true
	}

	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		queued[b] = false

		next := a.transfer(b)
		if slices.Equal(next, b.LiveIns) {
			continue
		}
		b.LiveIns = next
		for _, p := range b.Predecessors() {
			if !queued[p] {
				work = append(work, p)
				queued[p] = true
			}
		}
	}
}

// transfer computes in(b) ∪ ⋃ (in(s) ∪ phi(s, b)) − defines(b).
func (a *Analyzer) transfer(b *cfg.Block) []int {
	live := setFromSorted(b.LiveIns)
	for _, s := range b.Successors() {
		for _, id := range s.LiveIns {
			live.add(id)
		}
		if sinfo, ok := a.info.Get(s); ok {
			for _, phi := range sinfo.phis {
				if phi.From == b {
					live.add(phi.Value)
				}
			}
		}
	}
	if info, ok := a.info.Get(b); ok {
		for id := range info.defines {
			delete(live, id)
		}
	}
	return live.sorted()
}

// Phis returns the phi descriptors recorded for b.
func (a *Analyzer) Phis(b *cfg.Block) []PhiDesc {
	if info, ok := a.info.Get(b); ok {
		return info.phis
	}
	return nil
}

// Defines reports whether b defines id.
func (a *Analyzer) Defines(b *cfg.Block, id int) bool {
	if info, ok := a.info.Get(b); ok {
		return info.defines.has(id)
	}
	return false
}
