package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRingTracerWrapsOldestFirst(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := range 5 {
		r.Emit(&Event{Seq: uint64(i), Scope: ScopeUnit})
	}
	got := r.Snapshot()
	if len(got) != 3 || got[0].Seq != 2 || got[2].Seq != 4 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestLevelFiltersScopes(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelUnit, ScopeUnit, true},
		{LevelUnit, ScopePass, false},
		{LevelPass, ScopePass, true},
		{LevelPass, ScopeBlock, false},
		{LevelDebug, ScopeBlock, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s) = %v", tt.level, tt.scope, got)
		}
	}

	r := NewRingTracer(8, LevelUnit)
	r.Emit(&Event{Scope: ScopePass})
	r.Emit(&Event{Scope: ScopePass, Kind: KindHeartbeat})
	if n := len(r.Snapshot()); n != 1 {
		t.Fatalf("kept %d events, want only the heartbeat", n)
	}
}

func TestStartNestsSpans(t *testing.T) {
	r := NewRingTracer(16, LevelPass)
	ctx := WithTracer(context.Background(), r)

	unit, ctx := Start(WithUnit(ctx, "add"), ScopeUnit, "unit:add")
	pass, passCtx := Start(ctx, ScopePass, "lower")
	block, blockCtx := Start(passCtx, ScopeBlock, "B0")
	if block.ID() != 0 || blockCtx != passCtx {
		t.Fatal("block span emitted below its level")
	}
	pass.WithExtra("blocks", "3").End("")
	unit.End("ok")

	evs := r.Snapshot()
	if len(evs) != 4 {
		t.Fatalf("got %d events", len(evs))
	}
	if evs[1].ParentID != unit.ID() || evs[1].Name != "lower" {
		t.Fatalf("pass begin = %+v", evs[1])
	}
	if evs[2].Kind != KindSpanEnd || evs[2].Extra["blocks"] != "3" {
		t.Fatalf("pass end = %+v", evs[2])
	}
	if evs[3].Detail != "ok" || evs[3].ParentID != 0 {
		t.Fatalf("unit end = %+v", evs[3])
	}
	for _, ev := range evs {
		if ev.Unit != "add" {
			t.Fatalf("event %q lost its unit", ev.Name)
		}
	}
}

func TestFormats(t *testing.T) {
	ev := &Event{
		Time:   time.Unix(0, 0).UTC(),
		Seq:    7,
		Kind:   KindSpanEnd,
		Scope:  ScopePass,
		SpanID: 3,
		Unit:   "loop",
		Name:   "emit",
		Extra:  map[string]string{"b": "2", "a": "1"},
	}
	var j map[string]any
	if err := json.Unmarshal(FormatEvent(ev, FormatNDJSON), &j); err != nil {
		t.Fatal(err)
	}
	if j["kind"] != "end" || j["scope"] != "pass" || j["name"] != "emit" || j["unit"] != "loop" {
		t.Fatalf("ndjson = %v", j)
	}
	text := string(FormatEvent(ev, FormatText))
	if !strings.Contains(text, "[loop] ← emit {a=1, b=2}") {
		t.Fatalf("text = %q", text)
	}
}

func TestNewStreamAndBoth(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelUnit, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	Begin(tr, ScopeDriver, "build", 0).End("")
	if strings.Count(buf.String(), "\n") != 2 {
		t.Fatalf("stream output = %q", buf.String())
	}
	ring, ok := tr.(*MultiTracer).Ring()
	if !ok || len(ring.Snapshot()) != 2 {
		t.Fatal("ring member missing events")
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	off, err := New(Config{Level: LevelOff})
	if err != nil || off.Enabled() {
		t.Fatal("level off must yield a disabled tracer")
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("bad level accepted")
	}
	var nilBeat *Heartbeat
	nilBeat.Stop()
}
