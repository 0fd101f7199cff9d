package codegen

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/arch/arm/armasm"

	"tfjit/internal/arm"
)

// Disassemble writes one line per instruction word, annotated with
// safepoints and relocations. Words that do not decode (literal-pool data)
// are printed as .word.
func (c *CodeObject) Disassemble(w io.Writer) error {
	safepoints := make(map[int]Safepoint, len(c.Safepoints))
	for _, sp := range c.Safepoints {
		safepoints[sp.PCOffset] = sp
	}
	relocs := make(map[int][]Relocation, len(c.Relocations))
	for _, r := range c.Relocations {
		relocs[r.Offset] = append(relocs[r.Offset], r)
		if r.ConstantOffset >= 0 && r.ConstantOffset != r.Offset {
			relocs[r.ConstantOffset] = append(relocs[r.ConstantOffset], r)
		}
	}

	for pc := 0; pc+arm.WordSize <= len(c.Instructions); pc += arm.WordSize {
		if sp, ok := safepoints[pc]; ok {
			if _, err := fmt.Fprintf(w, "          ; safepoint slots %v\n", sp.Slots); err != nil {
				return err
			}
		}
		word := arm.Word(c.Instructions, pc)
		text := fmt.Sprintf(".word 0x%08x", word)
		if inst, err := armasm.Decode(c.Instructions[pc:pc+arm.WordSize], armasm.ModeARM); err == nil {
			text = armasm.GNUSyntax(inst)
		}
		var notes []string
		for _, r := range relocs[pc] {
			notes = append(notes, fmt.Sprintf("%s 0x%x", r.Kind, r.Target))
		}
		line := fmt.Sprintf("%08x  %08x  %s", pc, word, text)
		if len(notes) > 0 {
			line += "  ; " + strings.Join(notes, ", ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
