package codegen

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"tfjit/internal/arm"
	"tfjit/internal/constpool"
	"tfjit/internal/patchpoint"
	"tfjit/internal/stackmap"
)

func nops(n int) []byte {
	var code []byte
	for i := 0; i < n; i++ {
		code = arm.AppendWord(code, arm.Nop)
	}
	return code
}

func statepointLocations(extra ...stackmap.Location) []stackmap.Location {
	locs := []stackmap.Location{
		{Kind: stackmap.Constant, Size: 8},
		{Kind: stackmap.Constant, Size: 8},
		{Kind: stackmap.Constant, Size: 8},
	}
	return append(locs, extra...)
}

func maps(stackSize uint64, recs ...stackmap.Record) *stackmap.StackMaps {
	return &stackmap.StackMaps{
		Version:   3,
		Functions: []stackmap.Function{{StackSize: stackSize, RecordCount: uint64(len(recs))}},
		Records:   recs,
	}
}

func callInput() Input {
	patches := patchpoint.NewTable()
	patches.Register(0, patchpoint.Info{
		Kind:          patchpoint.KindCall,
		ReservedWords: 4,
		Call:          patchpoint.CallInfo{Locations: []int{-1, 2, 3}, CodeMagic: 0x2001},
	})
	patches.Register(1, patchpoint.Info{
		Kind:          patchpoint.KindReturn,
		ReservedWords: 2,
		Return:        patchpoint.ReturnInfo{PopCountIsConstant: true, PopCount: 2},
	})
	patches.Register(2, patchpoint.Info{Kind: patchpoint.KindHeapConstant})
	return Input{
		Name: "call",
		Code: nops(8),
		StackMaps: maps(16,
			stackmap.Record{ID: 0, InstructionOffset: 4, Locations: statepointLocations(
				stackmap.Location{Kind: stackmap.Indirect, Size: 4, Register: 13, Offset: 0},
				stackmap.Location{Kind: stackmap.Indirect, Size: 4, Register: 13, Offset: 4},
				stackmap.Location{Kind: stackmap.Indirect, Size: 4, Register: 11, Offset: -8},
			)},
			stackmap.Record{ID: 1, InstructionOffset: 24},
			stackmap.Record{ID: 2, InstructionOffset: 0},
		),
		Patches: patches,
		Consts:  constpool.NewRecorder(),
	}
}

func TestGenerate_CallAndReturn(t *testing.T) {
	in := callInput()
	orig := bytes.Clone(in.Code)
	obj, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in.Code, orig) {
		t.Fatal("input code modified")
	}
	want := []uint32{
		arm.Nop,
		0xE59AC000, // ldr ip, [r10]
		0xE92D000C, // push {r2, r3}
		0xE12FFF3C, // blx ip
		arm.Nop,
		arm.Nop,
		0xE28DD008, // add sp, sp, #8
		0xE12FFF1E, // bx lr
	}
	for i, w := range want {
		if got := arm.Word(obj.Instructions, i*4); got != w {
			t.Errorf("word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}
	if obj.StackSlots != 4 {
		t.Fatalf("StackSlots = %d", obj.StackSlots)
	}
	wantSP := []Safepoint{{PCOffset: 16, Slots: []int{2, 3}}}
	if !reflect.DeepEqual(obj.Safepoints, wantSP) {
		t.Fatalf("safepoints = %+v", obj.Safepoints)
	}
	wantRel := []Relocation{{Offset: 4, ConstantOffset: -1, Kind: RelocCodeTarget, Target: 0x2001}}
	if !reflect.DeepEqual(obj.Relocations, wantRel) {
		t.Fatalf("relocations = %+v", obj.Relocations)
	}
}

func TestGenerate_SafepointSlotsInFrame(t *testing.T) {
	in := callInput()
	obj, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	prev := -1
	for _, sp := range obj.Safepoints {
		if sp.PCOffset <= prev || sp.PCOffset > len(obj.Instructions) {
			t.Fatalf("safepoint pc %d out of order", sp.PCOffset)
		}
		prev = sp.PCOffset
		for _, s := range sp.Slots {
			if s < 0 || s >= obj.StackSlots {
				t.Fatalf("slot %d outside %d-slot frame", s, obj.StackSlots)
			}
		}
	}

	in.StackMaps.Records[0].Locations = statepointLocations(
		stackmap.Location{Kind: stackmap.Indirect, Size: 4, Register: 13, Offset: 16})
	if _, err := Generate(in); err == nil {
		t.Fatal("sp offset past the frame accepted")
	}
	in.StackMaps.Records[0].Locations = statepointLocations(
		stackmap.Location{Kind: stackmap.Indirect, Size: 4, Register: 4, Offset: 0})
	if _, err := Generate(in); err == nil {
		t.Fatal("spill relative to r4 accepted")
	}
}

func TestGenerate_TailCallSequence(t *testing.T) {
	patches := patchpoint.NewTable()
	patches.Register(7, patchpoint.Info{
		Kind:          patchpoint.KindTailCall,
		ReservedWords: 5,
		Call: patchpoint.CallInfo{
			Locations:     []int{3, patchpoint.NoRegister},
			FrameTeardown: true,
			PopCount:      2,
		},
	})
	obj, err := Generate(Input{
		Name:      "tail",
		Code:      nops(5),
		StackMaps: maps(0, stackmap.Record{ID: 7}),
		Patches:   patches,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0xE1A0D00B, 0xE8BD4800, 0xE28DD008, 0xE12FFF13, arm.Nop}
	for i, w := range want {
		if got := arm.Word(obj.Instructions, i*4); got != w {
			t.Errorf("word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}
	if len(obj.Safepoints) != 0 {
		t.Fatal("tail call recorded a safepoint")
	}
}

func TestGenerate_StoreBarrierAndDynamicReturn(t *testing.T) {
	patches := patchpoint.NewTable()
	patches.Register(0, patchpoint.Info{Kind: patchpoint.KindStoreBarrier, ReservedWords: 3})
	patches.Register(1, patchpoint.Info{Kind: patchpoint.KindReturn, ReservedWords: 2})
	obj, err := Generate(Input{
		Code:      nops(5),
		StackMaps: maps(8, stackmap.Record{ID: 0, InstructionOffset: 0}, stackmap.Record{ID: 1, InstructionOffset: 12}),
		Patches:   patches,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0xE12FFF3C, arm.Nop, arm.Nop, 0xE08DD101, 0xE12FFF1E}
	for i, w := range want {
		if got := arm.Word(obj.Instructions, i*4); got != w {
			t.Errorf("word %d = 0x%08X, want 0x%08X", i, got, w)
		}
	}
}

func replacePatch(in *Input, id uint32, edit func(*patchpoint.Info)) {
	p := patchpoint.NewTable()
	for _, other := range in.Patches.IDs() {
		info, _ := in.Patches.Lookup(other)
		if other == id {
			edit(&info)
		}
		p.Register(other, info)
	}
	in.Patches = p
}

func TestGenerate_ContractViolationsPanic(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"budget exceeded", func(in *Input) {
			info, _ := in.Patches.Lookup(0)
			info.ReservedWords = 2
			p := patchpoint.NewTable()
			p.Register(0, info)
			for _, id := range []uint32{1, 2} {
				i, _ := in.Patches.Lookup(id)
				p.Register(id, i)
			}
			in.Patches = p
		}},
		{"duplicate record", func(in *Input) {
			in.StackMaps.Records = append(in.StackMaps.Records, stackmap.Record{ID: 1, InstructionOffset: 28})
		}},
		{"unknown id", func(in *Input) {
			in.StackMaps.Records = append(in.StackMaps.Records, stackmap.Record{ID: 9, InstructionOffset: 28})
		}},
		{"shared offset", func(in *Input) {
			in.StackMaps.Records[1].InstructionOffset = 4
		}},
		{"missing record", func(in *Input) {
			in.StackMaps.Records = in.StackMaps.Records[:1]
		}},
		{"call magic beyond a word", func(in *Input) {
			replacePatch(in, 0, func(info *patchpoint.Info) { info.Call.CodeMagic = 1 << 32 })
		}},
		{"return pop beyond a word", func(in *Input) {
			replacePatch(in, 1, func(info *patchpoint.Info) { info.Return.PopCount = 1 << 30 })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := callInput()
			tt.mutate(&in)
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			_, _ = Generate(in)
		})
	}
}

func TestGenerate_BackendErrors(t *testing.T) {
	in := callInput()
	in.Code = in.Code[:30]
	if _, err := Generate(in); err == nil {
		t.Fatal("unaligned code accepted")
	}

	in = callInput()
	in.StackMaps.Functions[0].StackSize = 4 * maxStackSlots
	if _, err := Generate(in); err == nil {
		t.Fatal("oversized frame accepted")
	}

	in = callInput()
	in.StackMaps.Records[1].InstructionOffset = 28
	if _, err := Generate(in); err == nil || !strings.Contains(err.Error(), "beyond code size") {
		t.Fatalf("site past the end: err = %v", err)
	}
}

func TestLiteralPoolRelocations(t *testing.T) {
	consts := constpool.NewRecorder()
	consts.Register(0xCAFE, constpool.HeapConstant, 0)
	consts.Register(0xBEEF, constpool.ExternalReference, 0)
	consts.Register(0x7777, constpool.RelocatableInt32Constant, 0)

	ldr := func(rt arm.Reg, pc, entry int) uint32 {
		w, err := arm.LdrImm(rt, arm.PC, entry-(pc+8))
		if err != nil {
			t.Fatal(err)
		}
		return w
	}
	var code []byte
	code = arm.AppendWord(code, ldr(arm.R0, 0, 28))  // 0: beef
	code = arm.AppendWord(code, ldr(arm.R1, 4, 24))  // 4: cafe
	code = arm.AppendWord(code, ldr(arm.R2, 8, 24))  // 8: cafe again
	code = arm.AppendWord(code, ldr(arm.R3, 12, 32)) // 12: unknown
	code = arm.AppendWord(code, ldr(arm.R4, 16, 36)) // 16: int32
	code = arm.AppendWord(code, arm.Bx(arm.LR))
	code = arm.AppendWord(code, 0xCAFE)
	code = arm.AppendWord(code, 0xBEEF)
	code = arm.AppendWord(code, 0x1234)
	code = arm.AppendWord(code, 0x7777)

	obj, err := Generate(Input{Code: code, StackMaps: maps(0), Patches: patchpoint.NewTable(), Consts: consts})
	if err != nil {
		t.Fatal(err)
	}
	want := []Relocation{
		{Offset: 0, ConstantOffset: 28, Kind: RelocExternalReference, Target: 0xBEEF},
		{Offset: 4, ConstantOffset: 24, Kind: RelocEmbeddedObject, Target: 0xCAFE},
	}
	if !reflect.DeepEqual(obj.Relocations, want) {
		t.Fatalf("relocations = %+v", obj.Relocations)
	}
}

func TestCodeObjectEncodeAndDisassemble(t *testing.T) {
	obj, err := Generate(callInput())
	if err != nil {
		t.Fatal(err)
	}
	data, err := obj.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeCodeObject(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, obj) {
		t.Fatalf("decoded object differs:\n%+v\n%+v", back, obj)
	}

	var buf strings.Builder
	if err := obj.Disassemble(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"code_target 0x2001", "safepoint slots [2 3]", "00000004  e59ac000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("listing lacks %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 9 {
		t.Fatalf("listing has %d lines:\n%s", n, out)
	}
}
