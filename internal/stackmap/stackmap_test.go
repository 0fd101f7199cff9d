package stackmap

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sample(version uint8, n int) *StackMaps {
	s := &StackMaps{
		Version:   version,
		Functions: []Function{{Address: 0x1000, StackSize: 24, RecordCount: uint64(n)}},
		Constants: []uint64{0xDEADBEEF},
	}
	if version < 2 {
		s.Functions[0].RecordCount = 0
	}
	for i := 0; i < n; i++ {
		rec := Record{
			ID:                uint32(i * 3),
			InstructionOffset: uint32(i * 16),
			Locations: []Location{
				{Kind: Constant, Size: 8, Offset: int32(i)},
				{Kind: Indirect, Size: 4, Register: 13, Offset: int32(4 * i)},
				{Kind: Register, Size: 4, Register: uint16(i % 8)},
				{Kind: Direct, Size: 4, Register: 11, Offset: -8},
			},
		}
		if i%2 == 1 {
			rec.LiveOuts = []LiveOut{{Register: 4, Size: 4}, {Register: 14, Size: 4}}
		}
		s.Records = append(s.Records, rec)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []uint8{1, 2, 3} {
		for _, n := range []int{0, 1, 5} {
			want := sample(version, n)
			data, err := Encode(want)
			if err != nil {
				t.Fatalf("v%d n=%d: encode: %v", version, n, err)
			}
			if len(data)%8 != 0 {
				t.Fatalf("v%d n=%d: section length %d not aligned", version, n, len(data))
			}
			got, err := Parse(data)
			if err != nil {
				t.Fatalf("v%d n=%d: parse: %v", version, n, err)
			}
			if len(got.Records) != n {
				t.Fatalf("v%d: %d records, want %d", version, len(got.Records), n)
			}
			for i := range want.Records {
				w, g := want.Records[i], got.Records[i]
				if g.ID != w.ID || g.InstructionOffset != w.InstructionOffset {
					t.Fatalf("v%d record %d: id/offset %d/%d", version, i, g.ID, g.InstructionOffset)
				}
				if !reflect.DeepEqual(g.Locations, w.Locations) {
					t.Fatalf("v%d record %d: locations %+v", version, i, g.Locations)
				}
				if len(g.LiveOuts) != len(w.LiveOuts) {
					t.Fatalf("v%d record %d: live-outs %+v", version, i, g.LiveOuts)
				}
			}
			if !reflect.DeepEqual(got.Functions, want.Functions) || !reflect.DeepEqual(got.Constants, want.Constants) {
				t.Fatalf("v%d: tables %+v %+v", version, got.Functions, got.Constants)
			}
		}
	}
}

func TestTruncationFails(t *testing.T) {
	for _, version := range []uint8{1, 2, 3} {
		data, err := Encode(sample(version, 4))
		if err != nil {
			t.Fatal(err)
		}
		for cut := 0; cut < len(data); cut++ {
			_, err := Parse(data[:cut])
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("v%d cut at %d of %d: err = %v", version, cut, len(data), err)
			}
		}
	}
}

func TestUnsupportedVersion(t *testing.T) {
	data, err := Encode(sample(3, 1))
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []byte{0, 4, 0xFF} {
		bad := append([]byte(nil), data...)
		bad[0] = v
		if _, err := Parse(bad); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("version %d: err = %v", v, err)
		}
	}
}

func TestBadLocationKind(t *testing.T) {
	s := sample(3, 1)
	data, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	// Header 16, one function 24, one constant 8, record header 16.
	data[16+24+8+16] = 9
	if _, err := Parse(data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestRecordMapAndStackSize(t *testing.T) {
	s := sample(3, 3)
	s.Records = append(s.Records, Record{ID: 3, InstructionOffset: 99})
	m := s.RecordMap()
	if len(m[3]) != 2 || m[3][1].InstructionOffset != 99 {
		t.Fatalf("records for id 3: %+v", m[3])
	}
	if ids := m.IDs(); !reflect.DeepEqual(ids, []uint32{0, 3, 6}) {
		t.Fatalf("IDs = %v", ids)
	}
	size, err := s.StackSize()
	if err != nil || size != 24 {
		t.Fatalf("StackSize = %d, %v", size, err)
	}
	s.Functions = append(s.Functions, Function{})
	if _, err := s.StackSize(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("two functions: err = %v", err)
	}
}

func TestRegisterSets(t *testing.T) {
	rec := sample(3, 2).Records[1]
	if got := rec.LocationSet(); !got.Has(1) || got.Len() != 1 {
		t.Fatalf("LocationSet = %b", got)
	}
	if got := rec.LiveOutSet(); !got.Has(4) || !got.Has(14) || got.Len() != 2 {
		t.Fatalf("LiveOutSet = %b", got)
	}
	if got := rec.UsedRegisterSet(); got.Len() != 3 {
		t.Fatalf("UsedRegisterSet = %b", got)
	}
	if RegisterSet(0).Add(40) != 0 {
		t.Fatal("out of range register added")
	}
}

func TestDump(t *testing.T) {
	var buf strings.Builder
	if err := sample(3, 2).Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"stack map v3: 1 functions, 1 constants, 2 records\n",
		"function 0: address 0x1000, stack 24, records 2\n",
		"constant 0: 0xdeadbeef\n",
		"record 3 @ 0x10 flags 0, uses {r1, r4, r14}\n",
		"  loc 0: const 1\n",
		"  loc 1: [r13+4] (4 bytes)\n",
		"  loc 2: reg r1 (4 bytes)\n",
		"  loc 3: direct r11-8\n",
		"  live-out r14 (4 bytes)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "record 0 ") > strings.Index(out, "record 3 ") {
		t.Error("records not ordered by id")
	}
}
