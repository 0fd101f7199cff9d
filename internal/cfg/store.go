// Package cfg holds the control-flow graph of one compilation unit:
// blocks, their edges, the order in which they were visited and the
// live-in sets computed by liveness analysis.
package cfg

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNotFound is returned when a block id has never been created.
var ErrNotFound = errors.New("block not found")

// BlockID identifies a block within a unit.
type BlockID int

// Block is one CFG node.
type Block struct {
	ID       BlockID
	Deferred bool
	// LiveIns is sorted and duplicate free.
	LiveIns []int

	preds   []*Block
	succs   []*Block
	visited bool
}

// Predecessors returns the predecessors in the order they were announced.
func (b *Block) Predecessors() []*Block { return b.preds }

// Successors returns the successors in terminator order.
func (b *Block) Successors() []*Block { return b.succs }

// PredIndex returns the position of p in b's predecessor list, or -1.
func (b *Block) PredIndex(p *Block) int {
	return slices.Index(b.preds, p)
}

// Store owns every block of one unit.
type Store struct {
	blocks     map[BlockID]*Block
	rpo        []*Block
	needsFrame bool
}

// NewStore creates an empty store.
func NewStore(needsFrame bool) *Store {
	return &Store{
		blocks:     make(map[BlockID]*Block),
		needsFrame: needsFrame,
	}
}

// NeedsFrame reports whether the unit keeps a frame pointer.
func (s *Store) NeedsFrame() bool { return s.needsFrame }

// EnsureBlock returns the block for id, creating an unvisited stub if needed.
func (s *Store) EnsureBlock(id BlockID) *Block {
	if b, ok := s.blocks[id]; ok {
		return b
	}
	b := &Block{ID: id}
	s.blocks[id] = b
	return b
}

// FindBlock returns the block for id or ErrNotFound.
func (s *Store) FindBlock(id BlockID) (*Block, error) {
	if b, ok := s.blocks[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("B%d: %w", id, ErrNotFound)
}

// MustFind is FindBlock for callers that already know the block exists.
func (s *Store) MustFind(id BlockID) *Block {
	b, err := s.FindBlock(id)
	if err != nil {
		panic(fmt.Errorf("cfg: %w", err))
	}
	return b
}

// Visit records b as the next block in visitation order.
// Visiting a block twice is a contract violation.
func (s *Store) Visit(b *Block) {
	if b.visited {
		panic(fmt.Errorf("cfg: B%d visited twice", b.ID))
	}
	b.visited = true
	s.rpo = append(s.rpo, b)
}

// RPO returns visited blocks in visitation order.
func (s *Store) RPO() []*Block { return s.rpo }

// Len reports how many blocks exist, including stubs.
func (s *Store) Len() int { return len(s.blocks) }

// AddPredecessor appends p to b's predecessor list.
func (s *Store) AddPredecessor(b, p *Block) {
	b.preds = append(b.preds, p)
}

// AddSuccessor appends succ to b's successor list.
func (s *Store) AddSuccessor(b, succ *Block) {
	b.succs = append(b.succs, succ)
}

// CheckEdges verifies that successor and predecessor lists mirror each other.
func (s *Store) CheckEdges() error {
	var errs []error
	for _, b := range s.sorted() {
		for _, succ := range b.succs {
			if !slices.Contains(succ.preds, b) {
				errs = append(errs, fmt.Errorf("B%d -> B%d: missing predecessor edge", b.ID, succ.ID))
			}
		}
		for _, p := range b.preds {
			if !slices.Contains(p.succs, b) {
				errs = append(errs, fmt.Errorf("B%d <- B%d: missing successor edge", b.ID, p.ID))
			}
		}
	}
	return errors.Join(errs...)
}

// Unvisited returns stub blocks that were referenced but never visited.
func (s *Store) Unvisited() []BlockID {
	var out []BlockID
	for _, b := range s.sorted() {
		if !b.visited {
			out = append(out, b.ID)
		}
	}
	return out
}

func (s *Store) sorted() []*Block {
	out := make([]*Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b *Block) int { return int(a.ID) - int(b.ID) })
	return out
}
