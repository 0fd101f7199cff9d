package codecache

import (
	"os"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"tfjit/internal/codegen"
	"tfjit/internal/config"
	"tfjit/internal/ir"
)

func sampleObject() *codegen.CodeObject {
	return &codegen.CodeObject{
		Name:         "add",
		Instructions: []byte{0x1e, 0xff, 0x2f, 0xe1},
		StackSlots:   2,
		Safepoints:   []codegen.Safepoint{{PCOffset: 4, Slots: []int{0, 1}}},
		Relocations:  []codegen.Relocation{{Offset: 0, ConstantOffset: -1, Kind: codegen.RelocCodeTarget, Target: 7}},
	}
}

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	k, err := KeyFor(ir.Digest{1}, config.DefaultTarget(), "placeholder")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(k); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	want := sampleObject()
	if err := c.Put(k, "add", want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(k)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}

	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(k); ok {
		t.Fatal("entry survived DropAll")
	}
}

func TestKeyDependsOnEveryInput(t *testing.T) {
	base, _ := KeyFor(ir.Digest{1}, config.DefaultTarget(), "placeholder")
	other := config.DefaultTarget()
	other.PageSizeBits = 18
	for name, mk := range map[string]func() (Key, error){
		"unit":    func() (Key, error) { return KeyFor(ir.Digest{2}, config.DefaultTarget(), "placeholder") },
		"target":  func() (Key, error) { return KeyFor(ir.Digest{1}, other, "placeholder") },
		"backend": func() (Key, error) { return KeyFor(ir.Digest{1}, config.DefaultTarget(), "llvm") },
	} {
		k, err := mk()
		if err != nil {
			t.Fatal(err)
		}
		if k == base {
			t.Errorf("key ignores the %s", name)
		}
	}
}

func TestStaleSchemaMisses(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	k := Key{9}
	if err := c.Put(k, "x", sampleObject()); err != nil {
		t.Fatal(err)
	}
	data, err := msgpack.Marshal(&Payload{Schema: schemaVersion + 1, Object: sampleObject()})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.pathFor(k), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(k); ok || err != nil {
		t.Fatalf("stale entry: ok=%v err=%v", ok, err)
	}

	var nilCache *Cache
	if err := nilCache.Put(k, "x", sampleObject()); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := nilCache.Get(k); ok {
		t.Fatal("nil cache hit")
	}
}
