package codegen

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// RelocKind tells the loader how to fix up a relocation.
type RelocKind uint8

const (
	RelocEmbeddedObject RelocKind = iota
	RelocCodeTarget
	RelocRelativeCodeTarget
	RelocExternalReference
)

var relocNames = [...]string{
	RelocEmbeddedObject:     "embedded_object",
	RelocCodeTarget:         "code_target",
	RelocRelativeCodeTarget: "relative_code_target",
	RelocExternalReference:  "external_reference",
}

func (k RelocKind) String() string {
	if int(k) < len(relocNames) {
		return relocNames[k]
	}
	return fmt.Sprintf("reloc(%d)", uint8(k))
}

// Relocation marks a word the loader must rewrite on installation.
type Relocation struct {
	// Offset is the instruction that uses the target.
	Offset int `msgpack:"offset"`
	// ConstantOffset is the literal-pool slot holding the placeholder, or
	// -1 when the target is loaded through the root table.
	ConstantOffset int       `msgpack:"constant_offset"`
	Kind           RelocKind `msgpack:"kind"`
	// Target is the placeholder identifying the object or reference.
	Target uint32 `msgpack:"target"`
}

// Safepoint lists the stack slots holding traced values after a call returns.
type Safepoint struct {
	PCOffset int   `msgpack:"pc"`
	Slots    []int `msgpack:"slots"`
}

// CodeObject is what the runtime loader installs.
type CodeObject struct {
	Name         string       `msgpack:"name"`
	Instructions []byte       `msgpack:"instructions"`
	StackSlots   int          `msgpack:"stack_slots"`
	Safepoints   []Safepoint  `msgpack:"safepoints"`
	Relocations  []Relocation `msgpack:"relocations"`
}

// Encode serialises the object with msgpack.
func (c *CodeObject) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode code object %s: %w", c.Name, err)
	}
	return data, nil
}

// DecodeCodeObject reads an object written by Encode.
func DecodeCodeObject(data []byte) (*CodeObject, error) {
	var c CodeObject
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode code object: %w", err)
	}
	return &c, nil
}
