package ir

import (
	"fmt"

	"fortio.org/safecast"
)

// MachineRepresentation describes how a value is laid out in a machine word.
type MachineRepresentation uint8

const (
	// RepNone means no representation is attached.
	RepNone MachineRepresentation = iota
	RepBit
	RepWord8
	RepWord16
	RepWord32
	RepWord64
	// RepTaggedSigned is a small integer carried in a tagged word.
	RepTaggedSigned
	// RepTaggedPointer is a heap object pointer.
	RepTaggedPointer
	// RepTagged is either of the two tagged forms.
	RepTagged
	RepFloat32
	RepFloat64
	RepSimd128
)

var repNames = [...]string{
	RepNone:          "none",
	RepBit:           "bit",
	RepWord8:         "word8",
	RepWord16:        "word16",
	RepWord32:        "word32",
	RepWord64:        "word64",
	RepTaggedSigned:  "tagged_signed",
	RepTaggedPointer: "tagged_pointer",
	RepTagged:        "tagged",
	RepFloat32:       "float32",
	RepFloat64:       "float64",
	RepSimd128:       "simd128",
}

func (r MachineRepresentation) String() string {
	if int(r) < len(repNames) {
		return repNames[r]
	}
	return fmt.Sprintf("rep(%d)", uint8(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r MachineRepresentation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *MachineRepresentation) UnmarshalText(b []byte) error {
	v, err := lookupName(repNames[:], "representation", string(b))
	if err != nil {
		return err
	}
	*r = MachineRepresentation(v)
	return nil
}

// IsTagged reports whether values of this representation are traced by the collector.
func (r MachineRepresentation) IsTagged() bool {
	return r == RepTagged || r == RepTaggedPointer
}

// MachineSemantic refines a representation for loads that need extension.
type MachineSemantic uint8

const (
	SemNone MachineSemantic = iota
	SemBool
	SemInt32
	SemUint32
	SemInt64
	SemUint64
	SemNumber
	SemAny
)

var semNames = [...]string{
	SemNone:   "none",
	SemBool:   "bool",
	SemInt32:  "int32",
	SemUint32: "uint32",
	SemInt64:  "int64",
	SemUint64: "uint64",
	SemNumber: "number",
	SemAny:    "any",
}

func (s MachineSemantic) String() string {
	if int(s) < len(semNames) {
		return semNames[s]
	}
	return fmt.Sprintf("sem(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s MachineSemantic) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MachineSemantic) UnmarshalText(b []byte) error {
	v, err := lookupName(semNames[:], "semantic", string(b))
	if err != nil {
		return err
	}
	*s = MachineSemantic(v)
	return nil
}

// IsSigned reports whether narrow loads with this semantic sign-extend.
func (s MachineSemantic) IsSigned() bool {
	return s == SemInt32 || s == SemInt64
}

// WriteBarrierKind orders the barrier strength attached to a store.
// Comparisons between kinds are meaningful: None < Map < Pointer < Full.
type WriteBarrierKind uint8

const (
	BarrierNone WriteBarrierKind = iota
	BarrierMap
	BarrierPointer
	BarrierFull
)

var barrierNames = [...]string{
	BarrierNone:    "none",
	BarrierMap:     "map",
	BarrierPointer: "pointer",
	BarrierFull:    "full",
}

func (k WriteBarrierKind) String() string {
	if int(k) < len(barrierNames) {
		return barrierNames[k]
	}
	return fmt.Sprintf("barrier(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k WriteBarrierKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *WriteBarrierKind) UnmarshalText(b []byte) error {
	v, err := lookupName(barrierNames[:], "write barrier", string(b))
	if err != nil {
		return err
	}
	*k = WriteBarrierKind(v)
	return nil
}

// CallDescriptor carries the calling convention of one call site.
type CallDescriptor struct {
	// ReturnCount is 0, 1 or 2.
	ReturnCount int `toml:"return_count"`
	// RegistersForOperands has one entry per operand after the target.
	// A negative entry marks a stack-class operand.
	RegistersForOperands []int `toml:"registers"`
	// PopCount is the number of caller stack slots a tail call drops.
	PopCount int `toml:"pop_count"`
}

func lookupName(names []string, what, s string) (uint8, error) {
	for i, n := range names {
		if n == s {
			return safecast.Conv[uint8](i)
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
