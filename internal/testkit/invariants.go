package testkit

import (
	"errors"
	"fmt"
	"slices"

	"tfjit/internal/cfg"
	"tfjit/internal/ir"
)

// CheckLiveness verifies the live-in sets of store against u:
// 1) every live-in list is sorted and duplicate free
// 2) values read in a block before their definition there are live in
// 3) values live into a successor, or feeding a successor's phi along the
// edge, are live in unless the block defines them
// 4) predecessor and successor lists mirror each other
func CheckLiveness(u *ir.Unit, store *cfg.Store) error {
	if u == nil || store == nil {
		return fmt.Errorf("nil unit or store")
	}
	var errs []error
	if err := store.CheckEdges(); err != nil {
		errs = append(errs, err)
	}

	byID := make(map[int]*ir.Block, len(u.Blocks))
	for i := range u.Blocks {
		byID[u.Blocks[i].ID] = &u.Blocks[i]
	}

	for i := range u.Blocks {
		irb := &u.Blocks[i]
		b, err := store.FindBlock(cfg.BlockID(irb.ID))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !slices.IsSorted(b.LiveIns) || len(slices.Compact(slices.Clone(b.LiveIns))) != len(b.LiveIns) {
			errs = append(errs, fmt.Errorf("B%d: live-ins not sorted and unique: %v", irb.ID, b.LiveIns))
		}

		defs := map[int]bool{}
		for j := range irb.Instrs {
			ins := &irb.Instrs[j]
			if ins.Kind != ir.InstrPhi {
				for _, use := range ins.Uses() {
					if !defs[use] && !slices.Contains(b.LiveIns, use) {
						errs = append(errs, fmt.Errorf("B%d: value %d used before definition but not live in", irb.ID, use))
					}
				}
			}
			if ins.Kind.Defines() {
				defs[ins.ID] = true
			}
		}

		for _, s := range b.Successors() {
			for _, id := range s.LiveIns {
				if !defs[id] && !slices.Contains(b.LiveIns, id) {
					errs = append(errs, fmt.Errorf("B%d: value %d live into B%d but not into B%d", irb.ID, id, s.ID, irb.ID))
				}
			}
			sb, ok := byID[int(s.ID)]
			if !ok {
				continue
			}
			at := slices.Index(sb.Preds, irb.ID)
			if at < 0 {
				continue
			}
			for j := range sb.Instrs {
				ins := &sb.Instrs[j]
				if ins.Kind != ir.InstrPhi || at >= len(ins.Phi.Operands) {
					continue
				}
				v := ins.Phi.Operands[at]
				if !defs[v] && !slices.Contains(b.LiveIns, v) {
					errs = append(errs, fmt.Errorf("B%d: phi input %d for B%d not live in", irb.ID, v, s.ID))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// SnapshotLiveIns copies every block's live-in list, keyed by block id.
func SnapshotLiveIns(store *cfg.Store) map[cfg.BlockID][]int {
	out := make(map[cfg.BlockID][]int)
	for _, b := range store.RPO() {
		out[b.ID] = slices.Clone(b.LiveIns)
	}
	return out
}
