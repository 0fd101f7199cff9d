package liveness_test

import (
	"errors"
	"maps"
	"slices"
	"testing"

	"tfjit/internal/cfg"
	"tfjit/internal/ir"
	"tfjit/internal/liveness"
	"tfjit/internal/testkit"
)

func analyze(t *testing.T, u *ir.Unit) *cfg.Store {
	t.Helper()
	store, err := liveness.Analyze(u)
	if err != nil {
		t.Fatalf("analyze %s: %v", u.Name, err)
	}
	return store
}

func liveIns(t *testing.T, s *cfg.Store, id cfg.BlockID) []int {
	t.Helper()
	b, err := s.FindBlock(id)
	if err != nil {
		t.Fatal(err)
	}
	return b.LiveIns
}

func TestAnalyze_Sound(t *testing.T) {
	for _, u := range []*ir.Unit{
		testkit.Diamond3(),
		testkit.Loop(),
		testkit.CallWithOperands(2, 3),
		testkit.StoreWithBarrier(ir.BarrierFull),
	} {
		t.Run(u.Name, func(t *testing.T) {
			store := analyze(t, u)
			if err := testkit.CheckLiveness(u, store); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	for _, u := range []*ir.Unit{testkit.Diamond3(), testkit.Loop()} {
		t.Run(u.Name, func(t *testing.T) {
			store := cfg.NewStore(u.NeedsFrame)
			a := liveness.NewAnalyzer(store)
			ir.Replay(u, a)
			a.Compute()
			first := testkit.SnapshotLiveIns(store)
			a.Compute()
			second := testkit.SnapshotLiveIns(store)
			if !maps.EqualFunc(first, second, slices.Equal[[]int]) {
				t.Fatalf("second Compute changed live-ins:\n%v\n%v", first, second)
			}
		})
	}
}

func TestAnalyze_Loop(t *testing.T) {
	u := testkit.Loop()
	store := analyze(t, u)

	// x=1, zero=2, limit=3, i=4, cmp=5, one=6, i2=7.
	if got, want := liveIns(t, store, 1), []int{1, 2, 3}; !slices.Equal(got, want) {
		t.Errorf("header live-ins = %v, want %v", got, want)
	}
	if got, want := liveIns(t, store, 2), []int{1, 2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("body live-ins = %v, want %v", got, want)
	}
	if got, want := liveIns(t, store, 3), []int{1, 2}; !slices.Equal(got, want) {
		t.Errorf("exit live-ins = %v, want %v", got, want)
	}
	if got := liveIns(t, store, 0); len(got) != 0 {
		t.Errorf("entry live-ins = %v, want none", got)
	}

	header := store.MustFind(1)
	if len(header.Predecessors()) != 2 || header.Predecessors()[1].ID != 2 {
		t.Errorf("header predecessors not in announced order")
	}
	if !store.MustFind(3).Deferred {
		t.Error("exit block should be deferred")
	}
}

func TestAnalyze_PhiInputsLiveOnEdgeOnly(t *testing.T) {
	u := testkit.Diamond3()
	store := analyze(t, u)

	// x=1, sel=2, pop=3, y1=4, y2=5, phi=6.
	if got := liveIns(t, store, 4); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("merge live-ins = %v, want [1 3]", got)
	}
	// y1 and y2 are defined in their own blocks; the phi must not leak them upwards.
	if got := liveIns(t, store, 1); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("B1 live-ins = %v, want [1 3]", got)
	}
	if got := liveIns(t, store, 3); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("B3 live-ins = %v, want [1 3]", got)
	}
}

func TestAnalyze_RejectsInvalidUnit(t *testing.T) {
	u := testkit.Loop()
	u.Blocks[1].Preds = []int{0}
	if _, err := liveness.Analyze(u); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAnalyze_RejectsValueReadAfterCallInBlock(t *testing.T) {
	ub := testkit.NewUnit("call_then_return", true)
	b0 := ub.Block(0)
	p := b0.Param(0)
	target := b0.Code(0x2001)
	b0.Call(true, ir.CallDescriptor{ReturnCount: 1}, target)
	pop := b0.Int32(0)
	b0.Return(pop, p)
	if _, err := liveness.Analyze(ub.Unit()); !errors.Is(err, ir.ErrCallNotAtBlockEnd) {
		t.Fatalf("expected call placement error, got %v", err)
	}
}

func TestAnalyzer_VisitationOrder(t *testing.T) {
	u := testkit.Diamond3()
	store := analyze(t, u)
	var ids []cfg.BlockID
	for _, b := range store.RPO() {
		ids = append(ids, b.ID)
	}
	if !slices.Equal(ids, []cfg.BlockID{0, 1, 2, 3, 4}) {
		t.Fatalf("visitation order = %v", ids)
	}
}
