package stackmap

import (
	"fmt"
	"io"
	"strings"
)

func (s RegisterSet) String() string {
	var regs []string
	for r := uint16(0); r < 32; r++ {
		if s.Has(r) {
			regs = append(regs, fmt.Sprintf("r%d", r))
		}
	}
	return "{" + strings.Join(regs, ", ") + "}"
}

func (l Location) String() string {
	switch l.Kind {
	case Register:
		return fmt.Sprintf("reg r%d (%d bytes)", l.Register, l.Size)
	case Direct:
		return fmt.Sprintf("direct r%d%+d", l.Register, l.Offset)
	case Indirect:
		return fmt.Sprintf("[r%d%+d] (%d bytes)", l.Register, l.Offset, l.Size)
	case Constant:
		return fmt.Sprintf("const %d", l.Offset)
	case ConstantIndex:
		return fmt.Sprintf("const #%d", l.Offset)
	default:
		return l.Kind.String()
	}
}

// Dump writes a readable listing of the section, records grouped by id.
func (s *StackMaps) Dump(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "stack map v%d: %d functions, %d constants, %d records\n",
		s.Version, len(s.Functions), len(s.Constants), len(s.Records))
	for i, f := range s.Functions {
		fmt.Fprintf(&b, "function %d: address 0x%x, stack %d, records %d\n", i, f.Address, f.StackSize, f.RecordCount)
	}
	for i, c := range s.Constants {
		fmt.Fprintf(&b, "constant %d: 0x%x\n", i, c)
	}
	byID := s.RecordMap()
	for _, id := range byID.IDs() {
		for _, r := range byID[id] {
			fmt.Fprintf(&b, "record %d @ 0x%x flags %d, uses %s\n", r.ID, r.InstructionOffset, r.Flags, r.UsedRegisterSet())
			for j, l := range r.Locations {
				fmt.Fprintf(&b, "  loc %d: %s\n", j, l)
			}
			for _, lo := range r.LiveOuts {
				fmt.Fprintf(&b, "  live-out r%d (%d bytes)\n", lo.Register, lo.Size)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
