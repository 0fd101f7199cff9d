package ui

import (
	"errors"
	"math"
	"strings"
	"testing"

	"tfjit/internal/pipeline"
)

func TestProgressTracksUnits(t *testing.T) {
	events := make(chan pipeline.Event)
	m := NewProgressModel("compiling", []string{"add", "loop"}, events).(*progressModel)

	m.apply(pipeline.Event{Unit: "add", Stage: pipeline.StageLower, Status: pipeline.StatusWorking})
	m.apply(pipeline.Event{Unit: "loop", Stage: pipeline.StageBackend, Status: pipeline.StatusError, Err: errors.New("x")})
	m.apply(pipeline.Event{Unit: "ghost", Stage: pipeline.StageEmit, Status: pipeline.StatusDone})

	if m.rows[0].status != "lower" || m.rows[1].status != "error" {
		t.Fatalf("rows = %+v", m.rows)
	}
	if got, want := m.fraction(), 0.675; math.Abs(got-want) > 1e-9 {
		t.Fatalf("fraction = %v, want %v", got, want)
	}

	m.apply(pipeline.Event{Unit: "add", Stage: pipeline.StageEmit, Status: pipeline.StatusDone})
	if m.fraction() != 1 {
		t.Fatalf("fraction = %v after all units finished", m.fraction())
	}

	model, _ := m.Update(doneMsg{})
	view := model.View()
	if !strings.Contains(view, "done: compiling") || !strings.Contains(view, "add") {
		t.Fatalf("view = %q", view)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("a_very_long_unit_name", 10); got != "a_very_..." {
		t.Fatalf("truncate = %q", got)
	}
}
