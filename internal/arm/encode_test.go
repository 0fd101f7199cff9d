package arm

import "testing"

func TestEncodings(t *testing.T) {
	mustAdd := func(rd, rn Reg, imm uint32) uint32 {
		w, err := AddImm(rd, rn, imm)
		if err != nil {
			t.Fatal(err)
		}
		return w
	}
	mustLdr := func(rt, rn Reg, off int) uint32 {
		w, err := LdrImm(rt, rn, off)
		if err != nil {
			t.Fatal(err)
		}
		return w
	}
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"blx ip", Blx(IP), 0xE12FFF3C},
		{"bx lr", Bx(LR), 0xE12FFF1E},
		{"push r4-r5", Push(List(R4, R5)), 0xE92D0030},
		{"pop fp lr", Pop(List(FP, LR)), 0xE8BD4800},
		{"mov sp fp", Mov(SP, FP), 0xE1A0D00B},
		{"add sp 8", mustAdd(SP, SP, 8), 0xE28DD008},
		{"add sp 1024", mustAdd(SP, SP, 1024), 0xE28DDB01},
		{"add sp r1 lsl 2", AddShifted(SP, SP, R1, 2), 0xE08DD101},
		{"ldr ip [r10]", mustLdr(IP, Root, 0), 0xE59AC000},
		{"ldr r0 [pc -4]", mustLdr(R0, PC, -4), 0xE51F0004},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = 0x%08X, want 0x%08X", tt.name, tt.got, tt.want)
		}
	}
}

func TestAddImmRejectsUnencodable(t *testing.T) {
	if _, err := AddImm(SP, SP, 0x101); err == nil {
		t.Fatal("0x101 has no rotated form")
	}
	if _, err := LdrImm(R0, PC, 4096); err == nil {
		t.Fatal("offset 4096 accepted")
	}
}

func TestLdrPC(t *testing.T) {
	fwd, _ := LdrImm(R3, PC, 16)
	back, _ := LdrImm(R3, PC, -16)
	other, _ := LdrImm(R3, R2, 16)
	if !IsLdrPCImmediateOffset(fwd) || !IsLdrPCImmediateOffset(back) || IsLdrPCImmediateOffset(other) {
		t.Fatal("pc-relative ldr detection")
	}
	if got := ConstantPoolEntryOffset(fwd, 100); got != 124 {
		t.Fatalf("forward entry = %d", got)
	}
	if got := ConstantPoolEntryOffset(back, 100); got != 92 {
		t.Fatalf("backward entry = %d", got)
	}
}

func TestWordIO(t *testing.T) {
	code := AppendWord(nil, Nop)
	code = AppendWord(code, 0)
	PutWord(code, 4, Blx(R3))
	if Word(code, 0) != Nop || Word(code, 4) != 0xE12FFF33 {
		t.Fatalf("words = %X", code)
	}
}
