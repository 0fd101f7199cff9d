package diag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"tfjit/internal/ir"
	"tfjit/internal/pipeline"
	"tfjit/internal/stackmap"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  Code
		sev   Severity
		stage string
		notes int
	}{
		{"backend", &pipeline.CompileError{Unit: "u", Stage: pipeline.StageBackend, Err: errors.New("boom")},
			BackendFailed, SevError, "backend", 0},
		{"truncated", &pipeline.CompileError{Unit: "u", Stage: pipeline.StageStackMap,
			Err: fmt.Errorf("header: %w", stackmap.ErrTruncated)}, StackMapBroken, SevError, "stackmap", 1},
		{"cancelled", &pipeline.CompileError{Unit: "u", Stage: pipeline.StageLower, Err: context.Canceled},
			Cancelled, SevWarning, "lower", 0},
		{"edges", &pipeline.CompileError{Unit: "u", Stage: pipeline.StageLiveness,
			Err: fmt.Errorf("B1: %w", ir.ErrBrokenEdge)}, UnitBrokenEdges, SevError, "liveness", 0},
		{"plain", errors.New("open u.toml: no such file"), UnknownCode, SevError, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromError("u", tt.err)
			if d.Code != tt.code || d.Severity != tt.sev || d.Stage != tt.stage || len(d.Notes) != tt.notes {
				t.Fatalf("diagnostic = %+v", d)
			}
			if d.Unit != "u" {
				t.Fatalf("unit = %q", d.Unit)
			}
		})
	}
}

func TestFromLoadError(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "missing.toml"))
	if d := FromLoadError("missing.toml", err); d.Code != LoadFailed || d.Stage != "load" {
		t.Fatalf("missing file = %+v", d)
	}
	if d := FromLoadError("bad.unit", errors.New("msgpack: invalid code")); d.Code != LoadBadFormat {
		t.Fatalf("bad encoding = %+v", d)
	}
}

func TestBagLimitAndOrder(t *testing.T) {
	b := NewBag(3)
	b.Add(Diagnostic{Unit: "b", Severity: SevWarning, Code: CacheUnavailable})
	b.Add(Diagnostic{Unit: "a", Severity: SevWarning, Code: Cancelled})
	b.Add(Diagnostic{Unit: "a", Severity: SevError, Code: LowerFailed})
	if b.Add(Diagnostic{Unit: "c"}) {
		t.Fatal("limit ignored")
	}
	got := b.Items()
	if got[0].Code != LowerFailed || got[1].Code != Cancelled || got[2].Unit != "b" {
		t.Fatalf("order = %+v", got)
	}
	if !b.HasErrors() || b.Dropped() != 1 {
		t.Fatal("bag state wrong")
	}
}

func TestRender(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	b := NewBag(0)
	ReportResults(b, []pipeline.UnitResult{
		{Name: "ok"},
		{Name: "loop", Err: &pipeline.CompileError{Unit: "loop", Stage: pipeline.StageStackMap, Err: stackmap.ErrTruncated}},
	})
	var sb strings.Builder
	if err := Render(&sb, b); err != nil {
		t.Fatal(err)
	}
	want := "error[E4002] loop: stackmap: stack map section truncated\n" +
		"  note: the back end wrote fewer bytes than the section header declares\n"
	if sb.String() != want {
		t.Fatalf("render =\n%s", sb.String())
	}
	if LowerFailed.Title() != "lowering failed" || Code(9999).Title() != "unknown failure" {
		t.Fatal("titles")
	}
}
