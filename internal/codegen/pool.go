package codegen

import (
	"slices"

	"tfjit/internal/arm"
	"tfjit/internal/constpool"
)

func relocKindOf(t constpool.Type) (RelocKind, bool) {
	switch t {
	case constpool.HeapConstant:
		return RelocEmbeddedObject, true
	case constpool.CodeConstant, constpool.RecordStubCodeConstant:
		return RelocCodeTarget, true
	case constpool.RelativeCall:
		return RelocRelativeCodeTarget, true
	case constpool.ExternalReference, constpool.IsolateExternalReference, constpool.ModuloExternalReference:
		return RelocExternalReference, true
	default:
		// Relocatable int32 constants are patched by value, not by the loader.
		return 0, false
	}
}

// literalPoolRelocations finds every pc-relative load whose literal is a
// registered placeholder. Each pool slot yields one relocation; the result
// is ordered by slot.
func literalPoolRelocations(code []byte, consts *constpool.Recorder) []Relocation {
	if consts == nil {
		return nil
	}
	seen := make(map[int]bool)
	var out []Relocation
	for pc := 0; pc+arm.WordSize <= len(code); pc += arm.WordSize {
		w := arm.Word(code, pc)
		if !arm.IsLdrPCImmediateOffset(w) {
			continue
		}
		entry := arm.ConstantPoolEntryOffset(w, pc)
		if entry < 0 || entry%arm.WordSize != 0 || entry+arm.WordSize > len(code) || seen[entry] {
			continue
		}
		info, ok := consts.Query(arm.Word(code, entry))
		if !ok {
			continue
		}
		kind, ok := relocKindOf(info.Type)
		if !ok {
			continue
		}
		seen[entry] = true
		out = append(out, Relocation{Offset: pc, ConstantOffset: entry, Kind: kind, Target: info.Magic})
	}
	slices.SortStableFunc(out, func(a, b Relocation) int { return a.ConstantOffset - b.ConstantOffset })
	return out
}
