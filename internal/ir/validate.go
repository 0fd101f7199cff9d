package ir

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Validate checks the structural invariants a unit must satisfy before lowering.
// All violations are reported together.
func Validate(u *Unit) error {
	if u == nil {
		return errors.New("nil unit")
	}
	if len(u.Blocks) == 0 {
		return fmt.Errorf("unit %s: no blocks", u.Name)
	}

	var errs []error

	blocks := make(map[int]*Block, len(u.Blocks))
	for i := range u.Blocks {
		b := &u.Blocks[i]
		if b.ID < 0 {
			errs = append(errs, fmt.Errorf("B%d: negative block id", b.ID))
			continue
		}
		if _, dup := blocks[b.ID]; dup {
			errs = append(errs, fmt.Errorf("B%d: duplicate block id", b.ID))
			continue
		}
		blocks[b.ID] = b
	}

	if len(u.Blocks[0].Preds) != 0 {
		errs = append(errs, fmt.Errorf("B%d: entry block has predecessors", u.Blocks[0].ID))
	}

	defined, err := collectDefinitions(u)
	if err != nil {
		errs = append(errs, err)
	}

	for i := range u.Blocks {
		if err := validateBlock(&u.Blocks[i], blocks, defined); err != nil {
			errs = append(errs, err)
		}
	}

	if err := validateEdges(u, blocks); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("unit %s: %w", u.Name, errors.Join(errs...))
}

func collectDefinitions(u *Unit) (map[int]struct{}, error) {
	var errs []error
	defined := make(map[int]struct{})
	for i := range u.Blocks {
		b := &u.Blocks[i]
		for j := range b.Instrs {
			ins := &b.Instrs[j]
			if !ins.Kind.Defines() {
				continue
			}
			if ins.ID < 0 {
				errs = append(errs, fmt.Errorf("B%d: %s defines negative id %d", b.ID, ins.Kind, ins.ID))
				continue
			}
			if _, dup := defined[ins.ID]; dup {
				errs = append(errs, fmt.Errorf("B%d: value %d defined twice", b.ID, ins.ID))
				continue
			}
			defined[ins.ID] = struct{}{}
		}
	}
	return defined, errors.Join(errs...)
}

func validateBlock(b *Block, blocks map[int]*Block, defined map[int]struct{}) error {
	if len(b.Instrs) == 0 {
		return fmt.Errorf("B%d: empty block", b.ID)
	}

	var errs []error
	seenNonPhi := false
	for j := range b.Instrs {
		ins := &b.Instrs[j]
		last := j == len(b.Instrs)-1

		switch {
		case ins.Kind == InstrInvalid || ins.Kind >= instrKindCount:
			errs = append(errs, fmt.Errorf("B%d[%d]: invalid instruction kind", b.ID, j))
			continue
		case ins.Kind.IsTerminator() && !last:
			errs = append(errs, fmt.Errorf("B%d[%d]: %s before end of block", b.ID, j, ins.Kind))
		case !ins.Kind.IsTerminator() && last:
			errs = append(errs, fmt.Errorf("B%d: unterminated block", b.ID))
		}

		switch ins.Kind {
		case InstrPhi:
			if seenNonPhi {
				errs = append(errs, fmt.Errorf("B%d[%d]: phi after non-phi instruction", b.ID, j))
			}
			if len(ins.Phi.Operands) != len(b.Preds) {
				errs = append(errs, fmt.Errorf("B%d: phi %d has %d operands for %d predecessors",
					b.ID, ins.ID, len(ins.Phi.Operands), len(b.Preds)))
			}
			for _, op := range ins.Phi.Operands {
				if _, ok := defined[op]; !ok {
					errs = append(errs, fmt.Errorf("B%d: phi %d reads undefined value %d", b.ID, ins.ID, op))
				}
			}
		case InstrIfValue, InstrIfDefault:
			if j != 0 {
				errs = append(errs, fmt.Errorf("B%d: %s must open the block", b.ID, ins.Kind))
			}
			if len(b.Preds) != 1 {
				errs = append(errs, fmt.Errorf("B%d: %s block needs exactly one predecessor", b.ID, ins.Kind))
			} else if p, ok := blocks[b.Preds[0]]; ok {
				if t := p.Terminator(); t == nil || t.Kind != InstrSwitch {
					errs = append(errs, fmt.Errorf("B%d: %s predecessor B%d does not end in a switch", b.ID, ins.Kind, p.ID))
				}
			}
		default:
			seenNonPhi = true
		}

		for _, use := range ins.Uses() {
			if _, ok := defined[use]; !ok {
				errs = append(errs, fmt.Errorf("B%d: %s reads undefined value %d", b.ID, ins.Kind, use))
			}
		}
		for _, succ := range ins.Successors() {
			if _, ok := blocks[succ]; !ok {
				errs = append(errs, fmt.Errorf("B%d: %s targets unknown block B%d", b.ID, ins.Kind, succ))
			}
		}

		switch ins.Kind {
		case InstrSwitch:
			if len(ins.Switch.Successors) == 0 {
				errs = append(errs, fmt.Errorf("B%d: switch without default", b.ID))
			}
		case InstrCall, InstrTailCall:
			if len(ins.Call.Operands) == 0 {
				errs = append(errs, fmt.Errorf("B%d: %s without target", b.ID, ins.Kind))
			} else if len(ins.Call.Descriptor.RegistersForOperands) != len(ins.Call.Operands)-1 {
				errs = append(errs, fmt.Errorf("B%d: %s has %d operands but %d register assignments",
					b.ID, ins.Kind, len(ins.Call.Operands)-1, len(ins.Call.Descriptor.RegistersForOperands)))
			}
			if rc := ins.Call.Descriptor.ReturnCount; rc < 0 || rc > 2 {
				errs = append(errs, fmt.Errorf("B%d: %s returns %d values", b.ID, ins.Kind, rc))
			}
			if ins.Kind == InstrCall && (j != len(b.Instrs)-2 || b.Instrs[len(b.Instrs)-1].Kind != InstrGoto) {
				errs = append(errs, fmt.Errorf("B%d[%d]: call must be followed directly by the block's goto: %w", b.ID, j, ErrCallNotAtBlockEnd))
			}
		case InstrHeapConstant, InstrExternalConstant, InstrCodeForCall:
			if ins.Const.Magic < 0 || ins.Const.Magic > math.MaxUint32 {
				errs = append(errs, fmt.Errorf("B%d: %s magic 0x%X does not fit a word", b.ID, ins.Kind, ins.Const.Magic))
			}
		case InstrReturn:
			if len(ins.Return.Values) != 1 {
				errs = append(errs, fmt.Errorf("B%d: return of %d values is not supported", b.ID, len(ins.Return.Values)))
			}
		}
	}
	return errors.Join(errs...)
}

// ErrCallNotAtBlockEnd marks a call that does not hand control straight to
// its sole successor. Values read after the call inside the same block would
// miss relocation.
var ErrCallNotAtBlockEnd = errors.New("call does not end its block")

// ErrBrokenEdge marks predecessor lists that disagree with terminators.
var ErrBrokenEdge = errors.New("inconsistent control-flow edge")

// validateEdges checks that predecessor lists and terminator successors agree.
func validateEdges(u *Unit, blocks map[int]*Block) error {
	var errs []error
	for i := range u.Blocks {
		b := &u.Blocks[i]
		for _, succ := range b.Terminator().Successors() {
			s, ok := blocks[succ]
			if !ok {
				continue
			}
			if !slices.Contains(s.Preds, b.ID) {
				errs = append(errs, fmt.Errorf("B%d: successor B%d does not list it as predecessor: %w", b.ID, succ, ErrBrokenEdge))
			}
		}
		for _, pred := range b.Preds {
			p, ok := blocks[pred]
			if !ok {
				errs = append(errs, fmt.Errorf("B%d: unknown predecessor B%d: %w", b.ID, pred, ErrBrokenEdge))
				continue
			}
			if !slices.Contains(p.Terminator().Successors(), b.ID) {
				errs = append(errs, fmt.Errorf("B%d: predecessor B%d does not branch to it: %w", b.ID, pred, ErrBrokenEdge))
			}
		}
	}
	return errors.Join(errs...)
}
