// Package arm encodes the handful of A32 instructions the code emitter
// writes into patch sites. All instructions use the AL condition.
package arm

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Reg is a core register number.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	FP // r11
	IP // r12, intra-procedure scratch
	SP
	LR
	PC
)

// Root is the register holding the runtime root table.
const Root = R10

// RegList is a register bit mask for block transfers.
type RegList uint16

// List builds a register mask.
func List(regs ...Reg) RegList {
	var l RegList
	for _, r := range regs {
		l |= 1 << r
	}
	return l
}

// WordSize is the size of one A32 instruction.
const WordSize = 4

// Nop is the architectural no-op.
const Nop uint32 = 0xE320F000

// Blx calls the address in rm.
func Blx(rm Reg) uint32 { return 0xE12FFF30 | uint32(rm&0xF) }

// Bx branches to the address in rm.
func Bx(rm Reg) uint32 { return 0xE12FFF10 | uint32(rm&0xF) }

// Push is stmdb sp!, {list}.
func Push(list RegList) uint32 { return 0xE92D0000 | uint32(list) }

// Pop is ldmia sp!, {list}.
func Pop(list RegList) uint32 { return 0xE8BD0000 | uint32(list) }

// Mov copies rm into rd.
func Mov(rd, rm Reg) uint32 {
	return 0xE1A00000 | uint32(rd&0xF)<<12 | uint32(rm&0xF)
}

// AddImm is add rd, rn, #imm. It fails when imm is not an 8-bit value
// rotated right by an even amount.
func AddImm(rd, rn Reg, imm uint32) (uint32, error) {
	enc, ok := EncodeImmediate(imm)
	if !ok {
		return 0, fmt.Errorf("arm: #%d is not a modified immediate", imm)
	}
	return 0xE2800000 | uint32(rn&0xF)<<16 | uint32(rd&0xF)<<12 | enc, nil
}

// AddShifted is add rd, rn, rm, lsl #shift.
func AddShifted(rd, rn, rm Reg, shift uint) uint32 {
	return 0xE0800000 | uint32(rn&0xF)<<16 | uint32(rd&0xF)<<12 | uint32(shift&0x1F)<<7 | uint32(rm&0xF)
}

// LdrImm is ldr rt, [rn, #off] with a 12-bit offset of either sign.
func LdrImm(rt, rn Reg, off int) (uint32, error) {
	w := uint32(0xE5900000)
	if off < 0 {
		w = 0xE5100000
		off = -off
	}
	if off > 0xFFF {
		return 0, fmt.Errorf("arm: ldr offset %d out of range", off)
	}
	return w | uint32(rn&0xF)<<16 | uint32(rt&0xF)<<12 | uint32(off), nil //nolint:gosec // range checked
}

// EncodeImmediate returns the rotate:imm8 field for v.
func EncodeImmediate(v uint32) (uint32, bool) {
	for rot := 0; rot < 16; rot++ {
		// v == imm8 ror (2*rot)  <=>  imm8 == v rol (2*rot)
		imm := bits.RotateLeft32(v, 2*rot)
		if imm <= 0xFF {
			return uint32(rot)<<8 | imm, true //nolint:gosec // rot < 16
		}
	}
	return 0, false
}

// IsLdrPCImmediateOffset reports whether w is ldr rt, [pc, #±imm12].
func IsLdrPCImmediateOffset(w uint32) bool {
	return w&0x0F7F0000 == 0x051F0000
}

// ConstantPoolEntryOffset returns the byte offset of the literal loaded by
// the pc-relative ldr w located at pc. The pc reads eight bytes ahead.
func ConstantPoolEntryOffset(w uint32, pc int) int {
	off := int(w & 0xFFF)
	if w&(1<<23) == 0 {
		off = -off
	}
	return pc + 8 + off
}

// Word reads the instruction at byte offset off.
func Word(code []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(code[off : off+WordSize])
}

// PutWord overwrites the instruction at byte offset off.
func PutWord(code []byte, off int, w uint32) {
	binary.LittleEndian.PutUint32(code[off:off+WordSize], w)
}

// AppendWord appends w to code.
func AppendWord(code []byte, w uint32) []byte {
	return binary.LittleEndian.AppendUint32(code, w)
}
