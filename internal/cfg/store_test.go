package cfg_test

import (
	"errors"
	"testing"

	"tfjit/internal/cfg"
)

func TestEnsureBlockIdempotent(t *testing.T) {
	s := cfg.NewStore(false)
	a := s.EnsureBlock(3)
	b := s.EnsureBlock(3)
	if a != b {
		t.Fatal("EnsureBlock returned different blocks for the same id")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if len(s.RPO()) != 0 {
		t.Fatal("stub blocks must not enter visitation order")
	}
}

func TestFindBlockNotFound(t *testing.T) {
	s := cfg.NewStore(false)
	if _, err := s.FindBlock(9); !errors.Is(err, cfg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVisitTwicePanics(t *testing.T) {
	s := cfg.NewStore(false)
	b := s.EnsureBlock(0)
	s.Visit(b)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second visit")
		}
	}()
	s.Visit(b)
}

func TestCheckEdges(t *testing.T) {
	s := cfg.NewStore(true)
	b0, b1 := s.EnsureBlock(0), s.EnsureBlock(1)
	s.AddSuccessor(b0, b1)
	if err := s.CheckEdges(); err == nil {
		t.Fatal("expected missing predecessor edge")
	}
	s.AddPredecessor(b1, b0)
	if err := s.CheckEdges(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b1.PredIndex(b0) != 0 || b0.PredIndex(b1) != -1 {
		t.Fatal("PredIndex mismatch")
	}
	if !s.NeedsFrame() {
		t.Fatal("NeedsFrame lost")
	}
}

func TestTableReset(t *testing.T) {
	s := cfg.NewStore(false)
	b := s.EnsureBlock(0)
	tab := cfg.NewTable[int]()
	*tab.Ensure(b) = 5
	if v, ok := tab.Get(b); !ok || *v != 5 {
		t.Fatal("table lost value")
	}
	tab.Reset()
	if _, ok := tab.Get(b); ok || tab.Len() != 0 {
		t.Fatal("Reset left slots behind")
	}
}
