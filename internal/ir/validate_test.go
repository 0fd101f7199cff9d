package ir_test

import (
	"errors"
	"strings"
	"testing"

	"tfjit/internal/ir"
)

func int32Const(id int, v int64) ir.Instr {
	return ir.Instr{Kind: ir.InstrInt32Constant, ID: id, Const: ir.ConstInstr{Int: v}}
}

func gotoBlock(target int) ir.Instr {
	return ir.Instr{Kind: ir.InstrGoto, Goto: ir.GotoInstr{Target: target}}
}

func ret(pop, value int) ir.Instr {
	return ir.Instr{Kind: ir.InstrReturn, Return: ir.ReturnInstr{PopCount: pop, Values: []int{value}}}
}

func TestValidate_Straight(t *testing.T) {
	u := &ir.Unit{
		Name: "straight",
		Blocks: []ir.Block{
			{ID: 0, Instrs: []ir.Instr{int32Const(1, 0), gotoBlock(1)}},
			{ID: 1, Preds: []int{0}, Instrs: []ir.Instr{ret(1, 1)}},
		},
	}
	if err := ir.Validate(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	u := &ir.Unit{
		Name: "broken",
		Blocks: []ir.Block{
			{ID: 0, Instrs: []ir.Instr{int32Const(1, 0), int32Const(1, 2), gotoBlock(7)}},
			{ID: 1, Preds: []int{0}, Instrs: []ir.Instr{int32Const(3, 0)}},
		},
	}
	err := ir.Validate(u)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{
		"value 1 defined twice",
		"unknown block B7",
		"B1: unterminated block",
		"predecessor B0 does not branch to it",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in:\n%s", want, msg)
		}
	}
	if !errors.Is(err, ir.ErrBrokenEdge) {
		t.Error("edge violation not marked ErrBrokenEdge")
	}
}

func TestValidate_PhiArity(t *testing.T) {
	u := &ir.Unit{
		Name: "phi",
		Blocks: []ir.Block{
			{ID: 0, Instrs: []ir.Instr{int32Const(1, 0), gotoBlock(1)}},
			{ID: 1, Preds: []int{0}, Instrs: []ir.Instr{
				{Kind: ir.InstrPhi, ID: 2, Phi: ir.PhiInstr{Rep: ir.RepWord32, Operands: []int{1, 1}}},
				ret(1, 2),
			}},
		},
	}
	err := ir.Validate(u)
	if err == nil || !strings.Contains(err.Error(), "has 2 operands for 1 predecessors") {
		t.Fatalf("expected phi arity error, got %v", err)
	}
}

func TestValidate_CallRegisterAssignments(t *testing.T) {
	u := &ir.Unit{
		Name: "call",
		Blocks: []ir.Block{
			{ID: 0, Instrs: []ir.Instr{
				int32Const(1, 0),
				{Kind: ir.InstrCall, ID: 2, Call: ir.CallInstr{
					Descriptor: ir.CallDescriptor{ReturnCount: 1, RegistersForOperands: []int{0}},
					Operands:   []int{1, 1, 1},
				}},
				ret(1, 2),
			}},
		},
	}
	err := ir.Validate(u)
	if err == nil || !strings.Contains(err.Error(), "2 operands but 1 register assignments") {
		t.Fatalf("expected register assignment error, got %v", err)
	}
}

func TestInstrUsesAndSuccessors(t *testing.T) {
	store := ir.Instr{Kind: ir.InstrStore, Store: ir.StoreInstr{Base: 1, Offset: 2, Value: 3}}
	if got := store.Uses(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("store uses = %v", got)
	}
	if store.Kind.Defines() {
		t.Error("store must not define a value")
	}
	br := ir.Instr{Kind: ir.InstrBranch, Branch: ir.BranchInstr{Cond: 4, True: 1, False: 2}}
	if got := br.Successors(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("branch successors = %v", got)
	}
	add := ir.Instr{Kind: ir.InstrInt32Add, ID: 9, Binary: ir.BinaryInstr{Left: 5, Right: 6}}
	if got := add.Uses(); len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("add uses = %v", got)
	}
}

func TestValidate_CallMustEndBlock(t *testing.T) {
	call := func(id int) ir.Instr {
		return ir.Instr{Kind: ir.InstrCall, ID: id, Call: ir.CallInstr{
			Descriptor: ir.CallDescriptor{ReturnCount: 1},
			Operands:   []int{1},
		}}
	}
	param := ir.Instr{Kind: ir.InstrParameter, ID: 1}
	tests := []struct {
		name   string
		blocks []ir.Block
		ok     bool
	}{
		{"goto after call", []ir.Block{
			{ID: 0, Instrs: []ir.Instr{param, call(2), gotoBlock(1)}},
			{ID: 1, Preds: []int{0}, Instrs: []ir.Instr{int32Const(3, 0), ret(3, 1)}},
		}, true},
		{"return after call", []ir.Block{
			{ID: 0, Instrs: []ir.Instr{param, call(2), int32Const(3, 0), ret(3, 1)}},
		}, false},
		{"value after call", []ir.Block{
			{ID: 0, Instrs: []ir.Instr{param, call(2), int32Const(3, 0), gotoBlock(1)}},
			{ID: 1, Preds: []int{0}, Instrs: []ir.Instr{ret(3, 1)}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ir.Validate(&ir.Unit{Name: "call", Blocks: tt.blocks})
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ir.ErrCallNotAtBlockEnd) {
				t.Fatalf("expected call placement error, got %v", err)
			}
		})
	}
}
