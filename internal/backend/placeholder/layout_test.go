package placeholder

import (
	"context"
	"reflect"
	"testing"

	"tfjit/internal/arm"
	"tfjit/internal/native"
	"tfjit/internal/stackmap"
)

// sample builds:
//
//	prologue: br B0
//	B0:       load.magic 0x1001; stackmap 0; load.magic 0x1001
//	          statepoint 1 (12 bytes) gc [p0, magic]; gc.relocate; ret 2 (8 bytes)
func sample() *native.Func {
	fn := native.NewFunc("sample", native.Tagged)
	b0 := fn.AppendBlock("B0")
	fn.PositionAtEnd(fn.Prologue)
	fn.Br(b0)
	fn.PositionAtEnd(b0)
	m1 := fn.LoadMagic(native.Tagged, 0x1001)
	fn.StackMap(native.PatchSite{ID: 0}, m1)
	m2 := fn.LoadMagic(native.Tagged, 0x1001)
	tok := fn.Statepoint(native.PatchSite{ID: 1, Bytes: 12}, fn.ConstInt(native.Ptr, 0), nil,
		[]*native.Value{fn.Param(0), m1}, false)
	fn.GCRelocate(tok, 0)
	fn.Ret(native.PatchSite{ID: 2, Bytes: 8}, m2, fn.ConstInt(native.I32, 0))
	return fn
}

func mustLdr(t *testing.T, rt arm.Reg, off int) uint32 {
	t.Helper()
	w, err := arm.LdrImm(rt, arm.PC, off)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestCompileLayout(t *testing.T) {
	art, err := New().Compile(context.Background(), sample())
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{
		arm.Nop,
		// Both loads read the single pool slot at 32.
		mustLdr(t, arm.R0, 20),
		mustLdr(t, arm.R1, 16),
		// Statepoint and return sleds.
		arm.Nop, arm.Nop, arm.Nop,
		arm.Nop, arm.Nop,
		0x1001,
	}
	if len(art.Code) != len(want)*arm.WordSize {
		t.Fatalf("code is %d bytes, want %d", len(art.Code), len(want)*arm.WordSize)
	}
	for i, w := range want {
		if got := arm.Word(art.Code, i*arm.WordSize); got != w {
			t.Errorf("word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}

	maps, err := stackmap.Parse(art.StackMaps)
	if err != nil {
		t.Fatal(err)
	}
	if maps.Version != 3 || len(maps.Functions) != 1 || maps.Functions[0].StackSize != 8 {
		t.Fatalf("header = %+v", maps)
	}
	var got []uint32
	for _, r := range maps.Records {
		got = append(got, r.ID, r.InstructionOffset)
	}
	if !reflect.DeepEqual(got, []uint32{0, 8, 1, 12, 2, 24}) {
		t.Fatalf("records (id, offset) = %v", got)
	}
	locs := maps.Records[1].Locations
	if len(locs) != 5 || locs[0].Kind != stackmap.Constant {
		t.Fatalf("statepoint locations = %+v", locs)
	}
	for k, l := range locs[3:] {
		if l.Kind != stackmap.Indirect || l.Register != uint16(arm.SP) || int(l.Offset) != k*arm.WordSize {
			t.Fatalf("gc location %d = %+v", k, l)
		}
	}
}

func TestCompileRejectsOddSled(t *testing.T) {
	fn := native.NewFunc("odd", native.Tagged)
	fn.PositionAtEnd(fn.Prologue)
	fn.Ret(native.PatchSite{ID: 0, Bytes: 6}, fn.Param(0), fn.ConstInt(native.I32, 0))
	if _, err := New().Compile(context.Background(), fn); err == nil {
		t.Fatal("6-byte sled accepted")
	}
}

func TestCompileRejectsUnreachableLiteral(t *testing.T) {
	fn := native.NewFunc("far", native.Tagged)
	fn.PositionAtEnd(fn.Prologue)
	fn.LoadMagic(native.Tagged, 0x1001)
	for range 1100 {
		fn.FNeg(fn.ConstFloat(native.F64, 1))
	}
	fn.Unreachable()
	if _, err := New().Compile(context.Background(), fn); err == nil {
		t.Fatal("literal beyond ldr reach accepted")
	}
}

func TestCompileHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Compile(ctx, sample()); err == nil {
		t.Fatal("cancelled context ignored")
	}
}
