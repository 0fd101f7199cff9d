// Package constpool records which placeholder constants the lowering
// embedded in the code, so the code emitter can turn literal-pool loads of
// those placeholders into relocations.
package constpool

import (
	"fmt"
	"slices"
	"sync"
)

// Type classifies an embedded placeholder.
type Type uint8

const (
	ExternalReference Type = iota
	HeapConstant
	CodeConstant
	RelativeCall
	RelocatableInt32Constant
	IsolateExternalReference
	RecordStubCodeConstant
	ModuloExternalReference
)

var typeNames = [...]string{
	ExternalReference:        "external_reference",
	HeapConstant:             "heap_constant",
	CodeConstant:             "code_constant",
	RelativeCall:             "relative_call",
	RelocatableInt32Constant: "relocatable_int32",
	IsolateExternalReference: "isolate_external_reference",
	RecordStubCodeConstant:   "record_stub_code_constant",
	ModuloExternalReference:  "modulo_external_reference",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// MagicInfo is what the recorder knows about one placeholder.
type MagicInfo struct {
	Type Type
	// RelocMode is passed through to the runtime loader untouched.
	RelocMode int
	Magic     uint32
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu      sync.RWMutex
	entries map[uint32]MagicInfo
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{entries: make(map[uint32]MagicInfo)}
}

// Register records magic with its type and returns the value to embed.
// Registering the same magic with a different type is a contract violation.
func (r *Recorder) Register(magic uint32, t Type, rmode int) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[magic]; ok {
		if prev.Type != t {
			panic(fmt.Errorf("constpool: magic 0x%X registered as %s and %s", magic, prev.Type, t))
		}
		return magic
	}
	r.entries[magic] = MagicInfo{Type: t, RelocMode: rmode, Magic: magic}
	return magic
}

// Query returns the entry for magic.
func (r *Recorder) Query(magic uint32) (MagicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[magic]
	return info, ok
}

// Len returns the number of registered placeholders.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Magics returns every registered placeholder in ascending order.
func (r *Recorder) Magics() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.entries))
	for m := range r.entries {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}
