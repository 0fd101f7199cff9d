package constpool

import "testing"

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	if got := r.Register(0xCAFE, HeapConstant, 0); got != 0xCAFE {
		t.Fatalf("Register returned 0x%X", got)
	}
	r.Register(0xBEEF, ExternalReference, 3)
	r.Register(0xCAFE, HeapConstant, 0)

	info, ok := r.Query(0xBEEF)
	if !ok || info.Type != ExternalReference || info.RelocMode != 3 {
		t.Fatalf("Query = %+v, %v", info, ok)
	}
	if _, ok := r.Query(0x1234); ok {
		t.Fatal("unexpected entry")
	}
	if m := r.Magics(); len(m) != 2 || m[0] != 0xBEEF {
		t.Fatalf("Magics = %v", m)
	}
}

func TestRecorderTypeConflictPanics(t *testing.T) {
	r := NewRecorder()
	r.Register(1, HeapConstant, 0)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.Register(1, CodeConstant, 0)
}
